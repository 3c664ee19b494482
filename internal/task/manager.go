package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus 定义了任务可能的状态。
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

const (
	KindRecluster = "recluster"
	KindImport    = "import"
)

var (
	// ErrBusy 表示已有任务在运行。
	ErrBusy = errors.New("another task is already running")
	// ErrNotFound 表示任务 ID 不存在。
	ErrNotFound = errors.New("task not found")
)

// Task 结构体代表一个具体的后台任务。
type Task struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Status    TaskStatus `json:"status"`
	Progress  float64    `json:"progress"`
	Error     string     `json:"error,omitempty"`
	Result    any        `json:"result,omitempty"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// Func 是任务的执行体。report 用于上报 0 到 100 的进度。
type Func func(ctx context.Context, report func(progress float64)) (any, error)

// Manager 结构体是任务管理器，同一时间只允许一个任务运行。
type Manager struct {
	tasks map[string]*Task
	mu    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager 创建并返回一个新的任务管理器实例。
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		tasks:  make(map[string]*Task),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 创建一个新任务，并立即在后台启动它。
func (m *Manager) Start(kind string, fn Func) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.tasks {
		if task.Status == StatusRunning || task.Status == StatusPending {
			return "", fmt.Errorf("%w (ID: %s)", ErrBusy, task.ID)
		}
	}

	newTask := &Task{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		StartTime: time.Now(),
	}
	m.tasks[newTask.ID] = newTask

	m.wg.Add(1)
	go m.run(newTask, fn)

	return newTask.ID, nil
}

// Get 根据任务ID返回任务当前状态的副本。
func (m *Manager) Get(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, exists := m.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	snapshot := *task
	return &snapshot, nil
}

// Shutdown 取消正在运行的任务并等待其退出。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait 阻塞直到所有已启动的任务结束。
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(task *Task, fn Func) {
	defer m.wg.Done()

	m.mu.Lock()
	task.Status = StatusRunning
	m.mu.Unlock()
	slog.Info("任务启动", "task_id", task.ID, "kind", task.Kind)

	report := func(p float64) {
		m.mu.Lock()
		task.Progress = p
		m.mu.Unlock()
	}
	result, err := m.safeRun(fn, report)

	m.mu.Lock()
	defer m.mu.Unlock()
	endTime := time.Now()
	task.EndTime = &endTime
	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		slog.Error("任务失败", "task_id", task.ID, "kind", task.Kind, "error", err)
		return
	}
	task.Status = StatusCompleted
	task.Progress = 100
	task.Result = result
	slog.Info("任务已完成", "task_id", task.ID, "kind", task.Kind, "duration", endTime.Sub(task.StartTime))
}

// safeRun 把任务中的 panic 转换为错误，避免拖垮整个进程。
func (m *Manager) safeRun(fn Func, report func(float64)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(m.ctx, report)
}
