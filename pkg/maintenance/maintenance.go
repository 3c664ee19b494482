package maintenance

import (
	"FaceGallery/internal/gallery"
	"FaceGallery/internal/models"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database"
	"FaceGallery/pkg/hasher"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Maintenance 定义了维护工具的接口
type Maintenance interface {
	Audit(ctx context.Context) (*AuditReport, error)
	Repair(ctx context.Context) (*RepairReport, error)
	GenerateBlobManifest(ctx context.Context, outputPath string) (*ManifestReport, error)
	BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) error
}

// Repairer 按 Face→Person 映射重建引用，由 gallery.Service 实现。
type Repairer interface {
	RebuildReferences(ctx context.Context) (*gallery.RebuildReport, error)
}

// AuditReport 列出所有违反引用约束的记录，只读。
type AuditReport struct {
	PersonsChecked int      `json:"persons_checked"`
	FacesChecked   int      `json:"faces_checked"`
	ImagesChecked  int      `json:"images_checked"`
	EmptyPersons   []string `json:"empty_persons"`
	PersonDrift    []string `json:"person_drift"`
	ImageDrift     []string `json:"image_drift"`
	DanglingFaces  []string `json:"dangling_faces"`
	OrphanFaces    []string `json:"orphan_faces"`
}

// Healthy 报告是否没有发现任何问题。
func (r *AuditReport) Healthy() bool {
	return len(r.EmptyPersons)+len(r.PersonDrift)+len(r.ImageDrift)+len(r.DanglingFaces)+len(r.OrphanFaces) == 0
}

type RepairReport struct {
	Before  *AuditReport           `json:"before"`
	Rebuild *gallery.RebuildReport `json:"rebuild,omitempty"`
	After   *AuditReport           `json:"after"`
}

type ManifestReport struct {
	Path    string   `json:"path"`
	Entries int      `json:"entries"`
	Missing []string `json:"missing"`
}

type defaultMaintenance struct {
	db         database.Store
	blobs      blobstore.Store
	repairer   Repairer
	numWorkers int
}

// NewMaintenance 创建一个新的维护模块实例
func NewMaintenance(db database.Store, blobs blobstore.Store, repairer Repairer, workerCount int) Maintenance {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &defaultMaintenance{db: db, blobs: blobs, repairer: repairer, numWorkers: workerCount}
}

// Audit 比较每个人物与图片的反范式字段和 faces 集合中的实际映射。
func (m *defaultMaintenance) Audit(ctx context.Context) (*AuditReport, error) {
	persons, err := m.db.Persons().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载人物失败: %w", err)
	}
	faces, err := m.db.Faces().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载人脸失败: %w", err)
	}
	images, err := m.db.Images().List(ctx, database.ImageFilter{})
	if err != nil {
		return nil, fmt.Errorf("加载图片失败: %w", err)
	}

	report := &AuditReport{
		PersonsChecked: len(persons),
		FacesChecked:   len(faces),
		ImagesChecked:  len(images),
		EmptyPersons:   []string{},
		PersonDrift:    []string{},
		ImageDrift:     []string{},
		DanglingFaces:  []string{},
		OrphanFaces:    []string{},
	}

	knownPersons := make(map[primitive.ObjectID]bool, len(persons))
	for _, p := range persons {
		knownPersons[p.ID] = true
	}
	knownImages := make(map[primitive.ObjectID]bool, len(images))
	for _, img := range images {
		knownImages[img.ID] = true
	}

	personFaces := make(map[primitive.ObjectID][]primitive.ObjectID)
	personImages := make(map[primitive.ObjectID][]primitive.ObjectID)
	imageFaces := make(map[primitive.ObjectID][]primitive.ObjectID)
	imagePersons := make(map[primitive.ObjectID][]primitive.ObjectID)
	for _, f := range faces {
		if !knownImages[f.ImageID] {
			report.OrphanFaces = append(report.OrphanFaces, f.ID.Hex())
		}
		imageFaces[f.ImageID] = append(imageFaces[f.ImageID], f.ID)
		if f.PersonID == nil {
			continue
		}
		if !knownPersons[*f.PersonID] {
			report.DanglingFaces = append(report.DanglingFaces, f.ID.Hex())
			continue
		}
		personFaces[*f.PersonID] = append(personFaces[*f.PersonID], f.ID)
		personImages[*f.PersonID] = models.AddID(personImages[*f.PersonID], f.ImageID)
		imagePersons[f.ImageID] = models.AddID(imagePersons[f.ImageID], *f.PersonID)
	}

	for _, p := range persons {
		switch {
		case len(personFaces[p.ID]) == 0:
			report.EmptyPersons = append(report.EmptyPersons, p.ID.Hex())
		case !sameSet(p.Faces, personFaces[p.ID]) || !sameSet(p.Images, personImages[p.ID]):
			report.PersonDrift = append(report.PersonDrift, p.ID.Hex())
		}
	}
	for _, img := range images {
		if !sameSet(img.Faces, imageFaces[img.ID]) || !sameSet(img.Persons, imagePersons[img.ID]) {
			report.ImageDrift = append(report.ImageDrift, img.ID.Hex())
		}
	}

	slog.Info("引用完整性检查完成",
		"persons", report.PersonsChecked,
		"faces", report.FacesChecked,
		"images", report.ImagesChecked,
		"healthy", report.Healthy(),
	)
	return report, nil
}

// Repair 在发现问题时重建引用，并返回修复前后的检查结果。
func (m *defaultMaintenance) Repair(ctx context.Context) (*RepairReport, error) {
	before, err := m.Audit(ctx)
	if err != nil {
		return nil, err
	}
	out := &RepairReport{Before: before, After: before}
	if before.Healthy() {
		return out, nil
	}
	if m.repairer == nil {
		return nil, errors.New("未配置引用修复器")
	}
	if out.Rebuild, err = m.repairer.RebuildReferences(ctx); err != nil {
		return nil, fmt.Errorf("重建引用失败: %w", err)
	}
	if out.After, err = m.Audit(ctx); err != nil {
		return nil, err
	}
	if !out.After.Healthy() {
		slog.Warn("修复后仍存在问题", "orphan_faces", len(out.After.OrphanFaces))
	}
	return out, nil
}

// GenerateBlobManifest 并发地读取每张图片与人脸裁剪图的 blob，生成 "sha256 *key" 格式的清单。
// 读取失败的键记录在 Missing 中。
func (m *defaultMaintenance) GenerateBlobManifest(ctx context.Context, outputPath string) (*ManifestReport, error) {
	slog.Info("开始生成 blob 清单", "output", outputPath)

	// --- 1. 收集所有 blob 键 ---
	images, err := m.db.Images().List(ctx, database.ImageFilter{})
	if err != nil {
		return nil, err
	}
	faces, err := m.db.Faces().List(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, img := range images {
		if img.ImageKey != "" {
			keys = append(keys, img.ImageKey)
		}
	}
	for _, f := range faces {
		if f.CroppedFaceKey != "" {
			keys = append(keys, f.CroppedFaceKey)
		}
	}

	// --- 2. 创建输出文件 ---
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return nil, fmt.Errorf("无法创建清单目录: %w", err)
	}
	manifestPath := filepath.Join(outputPath, fmt.Sprintf("manifest_%s.txt", time.Now().Format("2006-01-02")))
	file, err := os.Create(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("无法创建清单文件: %w", err)
	}
	defer file.Close()

	// --- 3. 并发计算哈希 ---
	type line struct{ key, hash string }
	var wg sync.WaitGroup
	tasks := make(chan string, m.numWorkers)
	results := make(chan line, m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range tasks {
				data, err := m.blobs.Get(ctx, key)
				if err != nil {
					slog.Warn("读取 blob 失败", "key", key, "error", err)
					results <- line{key: key}
					continue
				}
				results <- line{key: key, hash: hasher.SHA256FromBytes(data)}
			}
		}()
	}
	go func() {
		for _, k := range keys {
			tasks <- k
		}
		close(tasks)
		wg.Wait()
		close(results)
	}()

	// 单独收集结果，排序后写入，保证清单内容稳定
	var lines []line
	report := &ManifestReport{Path: manifestPath, Missing: []string{}}
	for r := range results {
		if r.hash == "" {
			report.Missing = append(report.Missing, r.key)
			continue
		}
		lines = append(lines, r)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].key < lines[j].key })
	sort.Strings(report.Missing)

	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s *%s\n", l.hash, l.key)
	}
	if _, err := file.WriteString(b.String()); err != nil {
		return nil, fmt.Errorf("写入清单文件失败: %w", err)
	}
	report.Entries = len(lines)

	slog.Info("blob 清单生成完毕", "path", manifestPath, "entries", report.Entries, "missing", len(report.Missing))
	return report, nil
}

// BackupDatabase 调用 mongodump 工具来备份数据库
func (m *defaultMaintenance) BackupDatabase(ctx context.Context, dbURI, dbName, outputPath string) error {
	slog.Info("开始执行数据库备份", "db", dbName)

	// 检查 mongodump 命令是否存在
	if _, err := exec.LookPath("mongodump"); err != nil {
		slog.Error("在系统 PATH 中找不到 'mongodump' 命令，请安装 MongoDB Database Tools")
		return fmt.Errorf("'mongodump' command not found in PATH")
	}

	// 1. 创建输出文件路径
	if err := os.MkdirAll(outputPath, 0755); err != nil {
		return fmt.Errorf("无法创建备份目录: %w", err)
	}
	backupFileName := fmt.Sprintf("db_backup_%s.gz", time.Now().Format("2006-01-02_150405"))
	archiveFile := filepath.Join(outputPath, backupFileName)
	slog.Info("数据库备份文件将被保存到", "path", archiveFile)

	// 2. 构建并执行命令
	cmd := exec.CommandContext(ctx, "mongodump",
		"--uri", dbURI,
		"--db", dbName,
		"--archive="+archiveFile,
		"--gzip",
	)
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		slog.Debug("mongodump 输出", "output", string(out))
	}
	if err != nil {
		return fmt.Errorf("执行 mongodump 失败: %w", err)
	}

	slog.Info("数据库备份成功", "path", archiveFile)
	return nil
}

// sameSet 忽略顺序比较两个 ID 集合，a 中的重复元素视为不一致。
func sameSet(a, b []primitive.ObjectID) bool {
	ua, ub := models.UniqueIDs(a), models.UniqueIDs(b)
	if len(ua) != len(a) || len(ua) != len(ub) {
		return false
	}
	for _, id := range ua {
		if !models.ContainsID(ub, id) {
			return false
		}
	}
	return true
}
