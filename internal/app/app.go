// Package app 按配置组装服务端与命令行工具共用的组件。
package app

import (
	"FaceGallery/config"
	"FaceGallery/internal/gallery"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database"
	"FaceGallery/pkg/database/memory"
	"FaceGallery/pkg/database/mongo"
	"FaceGallery/pkg/detector"
	"FaceGallery/pkg/maintenance"
	"FaceGallery/pkg/scanner"
	"context"
	"fmt"
	"log/slog"
	"time"
)

// App 持有一次运行所需的全部组件。
type App struct {
	DB          database.Store
	Blobs       blobstore.Store
	Service     *gallery.Service
	Importer    *scanner.Importer
	Maintenance maintenance.Maintenance
}

// New 连接数据库与 blob 存储，并创建核心服务。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// --- 1. 数据库 ---
	var db database.Store
	var mongoStore *mongo.Store
	switch cfg.Database.Backend {
	case "memory":
		slog.Warn("使用内存数据库，重启后数据将丢失")
		db = memory.NewStore()
	case "mongo", "":
		s, err := mongo.NewStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("无法连接到数据库: %w", err)
		}
		db, mongoStore = s, s
	default:
		return nil, fmt.Errorf("未知的数据库后端 '%s'", cfg.Database.Backend)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("无法创建/验证数据库索引: %w", err)
	}

	// --- 2. blob 存储 ---
	blobs, err := newBlobStore(ctx, cfg, mongoStore)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}
	slog.Info("存储初始化完成", "database", cfg.Database.Backend, "blobs", cfg.Storage.Backend)

	// --- 3. 核心服务 ---
	det := detector.NewClient(detector.Config{
		BaseURL:    cfg.Detector.URL,
		Timeout:    cfg.Detector.Timeout,
		RetryCount: cfg.Detector.RetryCount,
		Backoff:    time.Second,
	})
	svc := gallery.NewService(db, blobs, det, gallery.OptionsFromConfig(cfg))

	importer, err := scanner.NewImporter(svc, cfg.Scanner.WorkerCount, cfg.Scanner.FilePatterns)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}

	return &App{
		DB:          db,
		Blobs:       blobs,
		Service:     svc,
		Importer:    importer,
		Maintenance: maintenance.NewMaintenance(db, blobs, svc, cfg.Scanner.WorkerCount),
	}, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, mongoStore *mongo.Store) (blobstore.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return blobstore.NewMemory(), nil
	case "gridfs", "":
		if mongoStore == nil {
			return nil, fmt.Errorf("gridfs 存储需要 mongo 数据库后端")
		}
		return blobstore.NewGridFS(mongoStore.Database(), cfg.Storage.Bucket), nil
	case "minio":
		m, err := blobstore.NewMinIO(blobstore.MinIOConfig{
			Endpoint:  cfg.Storage.MinIO.Endpoint,
			AccessKey: cfg.Storage.MinIO.AccessKey,
			SecretKey: cfg.Storage.MinIO.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.MinIO.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("无法创建 bucket '%s': %w", cfg.Storage.Bucket, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("未知的存储后端 '%s'", cfg.Storage.Backend)
	}
}

// Close 断开数据库连接。
func (a *App) Close(ctx context.Context) error {
	return a.DB.Close(ctx)
}
