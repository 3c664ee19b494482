package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PersonSummary struct {
	PersonID    string `json:"person_id"`
	PersonName  string `json:"person_name"`
	TotalFaces  int    `json:"total_faces"`
	TotalImages int    `json:"total_images"`
	// Thumbnail 是用作头像的人脸 ID
	Thumbnail string `json:"thumbnail,omitempty"`
}

type FaceView struct {
	models.Face
	PersonName string `json:"person_name,omitempty"`
}

type PersonDetail struct {
	models.Person
	FaceDetails []FaceView     `json:"face_details"`
	ImageList   []models.Image `json:"image_list"`
}

type ImageSummary struct {
	models.Image
	PersonRefs []PersonRef `json:"person_refs"`
}

type ImageDetail struct {
	models.Image
	FaceDetails []FaceView `json:"face_details"`
}

// BlobContent 是从 blob 存储中读取的文件。
type BlobContent struct {
	Data     []byte
	MimeType string
	Filename string
}

// foldName 去掉变音符号并转为小写，"José" 与 "jose" 因此相等。
func foldName(s string) string {
	return strings.ToLower(unidecode.Unidecode(s))
}

// ListPersons 返回所有人物，query 非空时按名称做不区分变音符号的包含匹配。
func (s *Service) ListPersons(ctx context.Context, query string) ([]PersonSummary, error) {
	persons, err := s.db.Persons().List(ctx)
	if err != nil {
		return nil, err
	}
	q := foldName(strings.TrimSpace(query))
	out := make([]PersonSummary, 0, len(persons))
	for _, p := range persons {
		if q != "" && !strings.Contains(foldName(p.Name), q) {
			continue
		}
		sum := PersonSummary{
			PersonID:    p.ID.Hex(),
			PersonName:  p.Name,
			TotalFaces:  len(p.Faces),
			TotalImages: len(p.Images),
		}
		if len(p.Faces) > 0 {
			sum.Thumbnail = p.Faces[0].Hex()
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) GetPerson(ctx context.Context, personID string) (*PersonDetail, error) {
	pid, err := parseID("person", personID)
	if err != nil {
		return nil, err
	}
	p, err := s.db.Persons().GetByID(ctx, pid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("person %s not found", personID)
	}
	faces, err := s.db.Faces().ListByPerson(ctx, pid)
	if err != nil {
		return nil, err
	}
	detail := &PersonDetail{Person: *p, FaceDetails: make([]FaceView, 0, len(faces)), ImageList: []models.Image{}}
	for _, f := range faces {
		detail.FaceDetails = append(detail.FaceDetails, FaceView{Face: f, PersonName: p.Name})
	}
	for _, id := range p.Images {
		img, err := s.db.Images().GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if img != nil {
			detail.ImageList = append(detail.ImageList, *img)
		}
	}
	return detail, nil
}

// ListImages 返回图片列表，最新的在前。albumID/sectionID 为空表示不过滤。
func (s *Service) ListImages(ctx context.Context, albumID, sectionID string) ([]ImageSummary, error) {
	var filter database.ImageFilter
	var err error
	if filter.AlbumID, err = s.groupRef(ctx, models.GroupAlbum, albumID); err != nil {
		return nil, err
	}
	if filter.SectionID, err = s.groupRef(ctx, models.GroupSection, sectionID); err != nil {
		return nil, err
	}
	images, err := s.db.Images().List(ctx, filter)
	if err != nil {
		return nil, err
	}

	persons := make(map[primitive.ObjectID]*models.Person)
	out := make([]ImageSummary, 0, len(images))
	for i := len(images) - 1; i >= 0; i-- {
		img := images[i]
		sum := ImageSummary{Image: img, PersonRefs: []PersonRef{}}
		for _, pid := range img.Persons {
			p, err := s.loadPerson(ctx, persons, pid)
			if err != nil {
				return nil, err
			}
			if p != nil {
				sum.PersonRefs = append(sum.PersonRefs, PersonRef{ID: p.ID.Hex(), Name: p.Name})
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (s *Service) GetImage(ctx context.Context, imageID string) (*ImageDetail, error) {
	img, err := s.findImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	faces, err := s.db.Faces().ListByImage(ctx, img.ID)
	if err != nil {
		return nil, err
	}
	persons := make(map[primitive.ObjectID]*models.Person)
	detail := &ImageDetail{Image: *img, FaceDetails: make([]FaceView, 0, len(faces))}
	for _, f := range faces {
		v := FaceView{Face: f}
		if f.PersonID != nil {
			p, err := s.loadPerson(ctx, persons, *f.PersonID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				v.PersonName = p.Name
			}
		}
		detail.FaceDetails = append(detail.FaceDetails, v)
	}
	return detail, nil
}

// ImageFile 读取原图内容。
func (s *Service) ImageFile(ctx context.Context, imageID string) (*BlobContent, error) {
	img, err := s.findImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	data, err := s.readBlob(ctx, img.ImageKey, "image data")
	if err != nil {
		return nil, err
	}
	return &BlobContent{Data: data, MimeType: img.MimeType, Filename: img.FileName}, nil
}

// FaceImage 读取人脸裁剪图。
func (s *Service) FaceImage(ctx context.Context, faceID string) (*BlobContent, error) {
	fid, err := parseID("face", faceID)
	if err != nil {
		return nil, err
	}
	f, err := s.db.Faces().GetByID(ctx, fid)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, notFound("face %s not found", faceID)
	}
	data, err := s.readBlob(ctx, f.CroppedFaceKey, "face image data")
	if err != nil {
		return nil, err
	}
	return &BlobContent{Data: data, MimeType: "image/jpeg", Filename: f.CroppedFaceFilename}, nil
}

// SimilarImages 返回感知哈希相同的其他图片。
func (s *Service) SimilarImages(ctx context.Context, imageID string, limit int) ([]models.Image, error) {
	img, err := s.findImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if img.PerceptualHash == "" {
		return []models.Image{}, nil
	}
	found, err := s.db.Images().FindSimilarByPHash(ctx, img.PerceptualHash, limit+1)
	if err != nil {
		return nil, err
	}
	out := make([]models.Image, 0, len(found))
	for _, f := range found {
		if f.ID != img.ID && len(out) < limit {
			out = append(out, f)
		}
	}
	return out, nil
}

// Reset 删除所有数据。blob 不会被清理。
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	slog.Warn("正在重置图库数据")
	if err := s.db.DropAllCollections(ctx); err != nil {
		return err
	}
	return s.db.EnsureIndexes(ctx)
}

func (s *Service) findImage(ctx context.Context, imageID string) (*models.Image, error) {
	iid, err := parseID("image", imageID)
	if err != nil {
		return nil, err
	}
	img, err := s.db.Images().GetByID(ctx, iid)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, notFound("image %s not found", imageID)
	}
	return img, nil
}

func (s *Service) readBlob(ctx context.Context, key, what string) ([]byte, error) {
	if key == "" {
		return nil, notFound("%s not found", what)
	}
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, &Error{Kind: KindNotFound, Message: what + " not found", Err: err}
		}
		return nil, fmt.Errorf("读取 %s 失败: %w", key, err)
	}
	return data, nil
}
