// Package gallery 实现人脸到人物身份的分配、重新聚类与引用完整性维护。
//
// 所有会修改 Person/Face/Image 的操作都在 Service.mu 下串行执行；
// 解码与人脸检测等耗时步骤在锁外完成。
package gallery

import (
	"FaceGallery/config"
	"FaceGallery/internal/models"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database"
	"FaceGallery/pkg/detector"
	"FaceGallery/pkg/matcher"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Options 是服务的运行参数，通常由 OptionsFromConfig 生成。
type Options struct {
	Tolerance         float64
	MinFaceSize       int
	MaxFileSize       int64
	MaxDimension      int
	AllowedExtensions []string
	SearchMaxResults  int
	DBSCANEps         float64
	DBSCANMinSamples  int
}

// DefaultOptions 返回与默认配置一致的参数。
func DefaultOptions() Options {
	return Options{
		Tolerance:         matcher.DefaultTolerance,
		MaxFileSize:       10 * 1024 * 1024,
		MaxDimension:      1920,
		AllowedExtensions: []string{"png", "jpg", "jpeg", "gif"},
		SearchMaxResults:  20,
		DBSCANEps:         0.4,
		DBSCANMinSamples:  2,
	}
}

// OptionsFromConfig 从全局配置中提取服务参数。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tolerance:         cfg.Recognition.Tolerance,
		MinFaceSize:       cfg.Recognition.MinFaceSize,
		MaxFileSize:       cfg.Upload.MaxFileSize,
		MaxDimension:      cfg.Upload.MaxDimension,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		SearchMaxResults:  cfg.Recognition.SearchMaxResults,
		DBSCANEps:         cfg.Recognition.DBSCANEps,
		DBSCANMinSamples:  cfg.Recognition.DBSCANMinSamples,
	}
}

var noFilter database.ImageFilter

// Service 是图库的核心服务，所有修改操作都经由它完成。
type Service struct {
	db       database.Store
	blobs    blobstore.Store
	detector detector.Detector
	opts     Options

	// mu 串行化所有修改操作
	mu  sync.Mutex
	now func() time.Time
}

// NewService 创建服务，Tolerance 未设置时使用默认值。
func NewService(db database.Store, blobs blobstore.Store, det detector.Detector, opts Options) *Service {
	if opts.Tolerance <= 0 {
		opts.Tolerance = matcher.DefaultTolerance
	}
	return &Service{
		db:       db,
		blobs:    blobs,
		detector: det,
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Options 返回服务当前使用的参数。
func (s *Service) Options() Options {
	return s.opts
}

// parseID 把十六进制字符串解析为 ObjectID，格式错误返回 InvalidReference。
func parseID(what, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, newError(KindInvalidReference, "invalid %s ID: %q", what, hex)
	}
	return id, nil
}

// nextPersonName 从存储中的原子计数器取得下一个自动名称。
func (s *Service) nextPersonName(ctx context.Context) (string, error) {
	n, err := s.db.NextSequence(ctx, database.PersonCounterName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Person %d", n), nil
}

// createPerson 创建一个只包含一张人脸的人物。name 为空时自动命名。
func (s *Service) createPerson(ctx context.Context, name string, faceID, imageID primitive.ObjectID) (*models.Person, error) {
	if name == "" {
		var err error
		if name, err = s.nextPersonName(ctx); err != nil {
			return nil, err
		}
	}
	p := &models.Person{
		Name:   name,
		Faces:  []primitive.ObjectID{faceID},
		Images: []primitive.ObjectID{imageID},
	}
	if err := s.db.Persons().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("创建人物失败: %w", err)
	}
	slog.Debug("已创建新人物", "person_id", p.ID.Hex(), "name", p.Name)
	return p, nil
}

// deleteBlob 尽力删除一个 blob，失败只记录警告。
func (s *Service) deleteBlob(ctx context.Context, key string) {
	if key == "" || s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("删除 blob 失败", "key", key, "error", err)
	}
}
