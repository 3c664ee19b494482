// Package blobstore 保存原图与裁剪后人脸的二进制内容。
// 键是不透明的字符串，例如 "images/<id>.jpg" 或 "faces/<imageID>_0.jpg"。
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound 表示键不存在。
var ErrNotFound = errors.New("blob 不存在")

// Store 是 blob 存储的抽象，GridFS、MinIO 与内存实现都满足它。
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete 删除不存在的键不算错误。
	Delete(ctx context.Context, key string) error
}

// Memory 是一个内存 blob 存储，用于测试与 memory 数据库后端。
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

type blob struct {
	data        []byte
	contentType string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]blob)}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return fmt.Errorf("blob 键不能为空")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.blobs[key] = blob{data: cp, contentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.blobs, key)
	m.mu.Unlock()
	return nil
}

// Keys 返回当前保存的所有键，测试中用于检查清理是否完成。
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	return keys
}
