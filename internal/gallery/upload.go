package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/detector"
	"FaceGallery/pkg/hasher"
	"FaceGallery/pkg/metrics"
	"FaceGallery/pkg/thumbnailer"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UploadInput struct {
	Filename  string
	Data      []byte
	AlbumID   string
	SectionID string
}

type UploadResult struct {
	ImageID         string       `json:"image_id"`
	Filename        string       `json:"filename"`
	FacesDetected   int          `json:"faces_detected"`
	PersonsAssigned int          `json:"persons_assigned"`
	Assignments     []Assignment `json:"assignments"`
	Message         string       `json:"message"`
}

type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type BatchUploadResult struct {
	TotalFiles int            `json:"total_files"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []UploadResult `json:"results"`
	Errors     []FileError    `json:"errors"`
}

// PreparedUpload 是已完成解码、缩放、检测与裁剪，但还没有写入存储的上传。
// Prepare 可以并发调用，Commit 在服务锁下串行写入。
type PreparedUpload struct {
	imageID   primitive.ObjectID
	filename  string
	processed *thumbnailer.Processed
	fileHash  string
	pHash     string
	takenAt   *time.Time
	albumID   *primitive.ObjectID
	sectionID *primitive.ObjectID
	faces     []preparedFace
}

type preparedFace struct {
	detector.Face
	crop []byte
}

// FileHash 返回原始上传内容的 SHA-256。
func (p *PreparedUpload) FileHash() string { return p.fileHash }

// Upload 完成一次完整的上传：校验、缩放、检测、保存并分配人脸。
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	prepared, err := s.Prepare(ctx, in)
	if err != nil {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return s.Commit(ctx, prepared)
}

// UploadMany 逐个处理文件，单个文件失败不会影响其他文件。
func (s *Service) UploadMany(ctx context.Context, inputs []UploadInput) *BatchUploadResult {
	out := &BatchUploadResult{TotalFiles: len(inputs), Results: []UploadResult{}, Errors: []FileError{}}
	for _, in := range inputs {
		res, err := s.Upload(ctx, in)
		if err != nil {
			out.Errors = append(out.Errors, FileError{Filename: in.Filename, Error: MessageOf(err)})
			continue
		}
		out.Results = append(out.Results, *res)
	}
	out.Successful = len(out.Results)
	out.Failed = len(out.Errors)
	return out
}

// Prepare 执行上传中不需要加锁的部分。
func (s *Service) Prepare(ctx context.Context, in UploadInput) (*PreparedUpload, error) {
	// --- 1. 校验输入 ---
	if len(in.Data) == 0 {
		return nil, invalidInput("no file provided")
	}
	if s.opts.MaxFileSize > 0 && int64(len(in.Data)) > s.opts.MaxFileSize {
		return nil, invalidInput("file %s exceeds the maximum size of %d bytes", in.Filename, s.opts.MaxFileSize)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(in.Filename), "."))
	if !s.allowedExtension(ext) {
		return nil, invalidInput("file type %q is not allowed", ext)
	}

	p := &PreparedUpload{imageID: primitive.NewObjectID(), filename: filepath.Base(in.Filename)}
	var err error
	if p.albumID, err = s.groupRef(ctx, models.GroupAlbum, in.AlbumID); err != nil {
		return nil, err
	}
	if p.sectionID, err = s.groupRef(ctx, models.GroupSection, in.SectionID); err != nil {
		return nil, err
	}

	// --- 2. 解码、缩放、计算哈希 ---
	p.fileHash = hasher.SHA256FromBytes(in.Data)
	p.processed, err = thumbnailer.Process(in.Data, ext, s.opts.MaxDimension)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "invalid image file " + in.Filename, Err: err}
	}
	p.pHash = hasher.PerceptualHash(p.processed.Image)
	p.takenAt = thumbnailer.TakenAt(in.Data)

	// --- 3. 人脸检测 ---
	detected, err := s.detect(ctx, p.processed.Data)
	if err != nil {
		return nil, err
	}
	for i, d := range detected {
		if s.opts.MinFaceSize > 0 && (d.Box.Width() < s.opts.MinFaceSize || d.Box.Height() < s.opts.MinFaceSize) {
			slog.Debug("忽略过小的人脸", "filename", p.filename, "index", i, "width", d.Box.Width(), "height", d.Box.Height())
			continue
		}
		pf := preparedFace{Face: d}
		if crop, err := thumbnailer.CropFace(p.processed.Image, d.Box); err != nil {
			slog.Warn("裁剪人脸失败", "filename", p.filename, "index", i, "error", err)
		} else {
			pf.crop = crop
		}
		p.faces = append(p.faces, pf)
	}
	return p, nil
}

// Commit 把 Prepare 的结果写入 blob 存储与数据库并分配人脸。
func (s *Service) Commit(ctx context.Context, p *PreparedUpload) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dup, err := s.db.Images().GetByFileHash(ctx, p.fileHash); err != nil {
		return nil, err
	} else if dup != nil {
		metrics.Uploads.WithLabelValues("duplicate").Inc()
		return nil, newError(KindConflict, "image %s was already uploaded as %s", p.filename, dup.ID.Hex())
	}

	// --- 1. 写入 blob ---
	var written []string
	cleanup := func() {
		for _, k := range written {
			s.deleteBlob(ctx, k)
		}
	}
	imageKey := fmt.Sprintf("images/%s.%s", p.imageID.Hex(), p.processed.Format)
	if err := s.blobs.Put(ctx, imageKey, p.processed.Data, p.processed.MimeType); err != nil {
		return nil, fmt.Errorf("保存图片内容失败: %w", err)
	}
	written = append(written, imageKey)

	faces := make([]DetectedFace, 0, len(p.faces))
	for i, f := range p.faces {
		df := DetectedFace{Embedding: f.Embedding, Box: f.Box}
		if f.crop != nil {
			name := fmt.Sprintf("%s_%d.jpg", p.imageID.Hex(), i)
			key := "faces/" + name
			if err := s.blobs.Put(ctx, key, f.crop, "image/jpeg"); err != nil {
				cleanup()
				return nil, fmt.Errorf("保存人脸裁剪图失败: %w", err)
			}
			written = append(written, key)
			df.CropKey, df.CropFilename = key, name
		}
		faces = append(faces, df)
	}

	// --- 2. 创建图片记录 ---
	img := &models.Image{
		ID:             p.imageID,
		FileName:       p.filename,
		MimeType:       p.processed.MimeType,
		ImageKey:       imageKey,
		FileHash:       p.fileHash,
		PerceptualHash: p.pHash,
		TakenAt:        p.takenAt,
		Width:          p.processed.Width,
		Height:         p.processed.Height,
		AlbumID:        p.albumID,
		SectionID:      p.sectionID,
	}
	if err := s.db.Images().Create(ctx, img); err != nil {
		cleanup()
		return nil, fmt.Errorf("创建图片记录失败: %w", err)
	}

	// --- 3. 分配人脸 ---
	assignments, err := s.ingest(ctx, p.imageID, faces)
	if err != nil {
		// 已写入的人脸与人物保持一致状态，可以通过删除图片或重建引用恢复
		metrics.Uploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("分配人脸失败: %w", err)
	}

	persons := make([]primitive.ObjectID, 0, len(assignments))
	for _, a := range assignments {
		persons = models.AddID(persons, a.PersonID)
	}
	res := &UploadResult{
		ImageID:         p.imageID.Hex(),
		Filename:        p.filename,
		FacesDetected:   len(assignments),
		PersonsAssigned: len(persons),
		Assignments:     assignments,
	}
	if len(assignments) == 0 {
		res.Message = "no faces detected in the image"
	} else {
		res.Message = fmt.Sprintf("detected %d faces, assigned to %d persons", len(assignments), len(persons))
	}
	metrics.Uploads.WithLabelValues("success").Inc()
	slog.Info("图片上传完成", "image_id", res.ImageID, "filename", res.Filename, "faces", res.FacesDetected)
	return res, nil
}

func (s *Service) detect(ctx context.Context, data []byte) ([]detector.Face, error) {
	if s.detector == nil {
		return nil, fmt.Errorf("未配置人脸检测器")
	}
	start := time.Now()
	faces, err := s.detector.Detect(ctx, data)
	metrics.DetectDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("人脸检测失败: %w", err)
	}
	return faces, nil
}

func (s *Service) allowedExtension(ext string) bool {
	if ext == "" {
		return false
	}
	for _, a := range s.opts.AllowedExtensions {
		if strings.EqualFold(strings.TrimPrefix(a, "."), ext) {
			return true
		}
	}
	return false
}

// groupRef 校验可选的相册/分区 ID。空字符串表示不关联。
func (s *Service) groupRef(ctx context.Context, kind models.GroupKind, hex string) (*primitive.ObjectID, error) {
	if strings.TrimSpace(hex) == "" {
		return nil, nil
	}
	id, err := parseID(string(kind), hex)
	if err != nil {
		return nil, err
	}
	g, err := s.db.Groups(kind).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, notFound("%s %s not found", kind, hex)
	}
	return &id, nil
}
