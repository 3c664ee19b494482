// Package scanner 把本地目录中的照片批量导入图库。
package scanner

import (
	"FaceGallery/internal/gallery"
	"FaceGallery/pkg/hasher"
	"FaceGallery/pkg/metrics"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/facette/natsort"
)

// Uploader 是导入器需要的两段式上传接口，由 gallery.Service 实现。
type Uploader interface {
	Prepare(ctx context.Context, in gallery.UploadInput) (*gallery.PreparedUpload, error)
	Commit(ctx context.Context, p *gallery.PreparedUpload) (*gallery.UploadResult, error)
}

// ImportOptions 指定导入的图片归属的相册/分区，可以为空。
type ImportOptions struct {
	AlbumID   string
	SectionID string
}

type ImportReport struct {
	Root          string              `json:"root"`
	TotalFiles    int                 `json:"total_files"`
	Imported      int                 `json:"imported"`
	Duplicates    int                 `json:"duplicates"`
	Failed        int                 `json:"failed"`
	FacesDetected int                 `json:"faces_detected"`
	Errors        []gallery.FileError `json:"errors"`
}

type Importer struct {
	uploader   Uploader
	numWorkers int
	patterns   []string
}

// NewImporter 创建导入器。patterns 是作用于文件名的 glob，为空时接受所有文件。
func NewImporter(u Uploader, workerCount int, patterns []string) (*Importer, error) {
	for _, p := range patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("无效的文件匹配模式 '%s': %w", p, err)
		}
	}
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &Importer{uploader: u, numWorkers: workerCount, patterns: patterns}, nil
}

type prepared struct {
	path   string
	upload *gallery.PreparedUpload
}

// ImportDirectory 递归导入 root 下所有匹配的文件。解码与检测由多个 worker 并发完成，
// 写入由单个 goroutine 串行提交。progress 可以为 nil。
func (im *Importer) ImportDirectory(ctx context.Context, root string, opts ImportOptions, progress func(float64)) (*ImportReport, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("无法获取导入路径的绝对路径 '%s': %w", root, err)
	}

	// --- 1. 收集文件 ---
	files, err := im.collect(absRoot)
	if err != nil {
		return nil, err
	}
	report := &ImportReport{Root: absRoot, TotalFiles: len(files), Errors: []gallery.FileError{}}
	if len(files) == 0 {
		slog.Info("没有找到可导入的文件", "root", absRoot)
		return report, nil
	}
	slog.Info("开始导入目录", "root", absRoot, "files", len(files), "workers", im.numWorkers)

	var (
		mu   sync.Mutex
		seen = make(map[string]string)
		done int
	)
	record := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		fn()
		done++
		if progress != nil {
			progress(float64(done) / float64(len(files)) * 100)
		}
	}
	fail := func(path string, err error) {
		record(func() {
			report.Failed++
			report.Errors = append(report.Errors, gallery.FileError{Filename: path, Error: gallery.MessageOf(err)})
		})
		metrics.ImportedFiles.WithLabelValues("failed").Inc()
		slog.Warn("导入文件失败", "path", path, "error", err)
	}
	duplicate := func(path, of string) {
		record(func() { report.Duplicates++ })
		metrics.ImportedFiles.WithLabelValues("duplicate").Inc()
		slog.Debug("跳过重复文件", "path", path, "same_as", of)
	}

	// --- 2. 并发预处理 ---
	tasks := make(chan string)
	results := make(chan prepared, im.numWorkers)
	var wg sync.WaitGroup
	for i := 0; i < im.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range tasks {
				hash, err := hasher.SHA256File(path)
				if err != nil {
					fail(path, err)
					continue
				}
				mu.Lock()
				first, dup := seen[hash]
				if !dup {
					seen[hash] = path
				}
				mu.Unlock()
				if dup {
					duplicate(path, first)
					continue
				}

				data, err := os.ReadFile(path)
				if err != nil {
					fail(path, err)
					continue
				}
				p, err := im.uploader.Prepare(ctx, gallery.UploadInput{
					Filename:  filepath.Base(path),
					Data:      data,
					AlbumID:   opts.AlbumID,
					SectionID: opts.SectionID,
				})
				if err != nil {
					fail(path, err)
					continue
				}
				results <- prepared{path: path, upload: p}
			}
		}()
	}
	go func() {
		defer close(tasks)
		for _, f := range files {
			select {
			case tasks <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// --- 3. 串行提交 ---
	for r := range results {
		res, err := im.uploader.Commit(ctx, r.upload)
		switch {
		case errors.Is(err, gallery.ErrConflict):
			duplicate(r.path, "existing image")
		case err != nil:
			fail(r.path, err)
		default:
			record(func() {
				report.Imported++
				report.FacesDetected += res.FacesDetected
			})
			metrics.ImportedFiles.WithLabelValues("imported").Inc()
		}
	}

	sort.Slice(report.Errors, func(i, j int) bool { return report.Errors[i].Filename < report.Errors[j].Filename })
	slog.Info("目录导入完成",
		"root", absRoot,
		"imported", report.Imported,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"faces", report.FacesDetected,
	)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// collect 按自然顺序 (img2 在 img10 之前) 返回所有匹配的普通文件。
func (im *Importer) collect(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if im.matches(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("扫描目录 %s 失败: %w", root, err)
	}
	natsort.Sort(files)
	return files, nil
}

func (im *Importer) matches(name string) bool {
	if len(im.patterns) == 0 {
		return true
	}
	lower := strings.ToLower(name)
	for _, p := range im.patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), lower); ok {
			return true
		}
	}
	return false
}
