package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/matcher"
	"FaceGallery/pkg/thumbnailer"
	"context"
	"fmt"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PersonRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ImageRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

type SearchMatch struct {
	FaceID     string     `json:"face_id"`
	Person     *PersonRef `json:"person,omitempty"`
	Image      *ImageRef  `json:"image,omitempty"`
	Distance   float64    `json:"distance"`
	Confidence float64    `json:"confidence"`
}

type SearchResult struct {
	Matches      []SearchMatch      `json:"matches"`
	TotalMatches int                `json:"total_matches"`
	Tolerance    float64            `json:"tolerance"`
	MaxResults   int                `json:"max_results"`
	QueryFace    models.BoundingBox `json:"query_face"`
}

// SearchByImage 检测查询图片中的人脸后调用 Search。图片必须恰好包含一张人脸。
func (s *Service) SearchByImage(ctx context.Context, data []byte, tolerance float64, maxResults int) (*SearchResult, error) {
	if len(data) == 0 {
		return nil, invalidInput("no image data provided")
	}
	processed, err := thumbnailer.Process(data, ".jpg", s.opts.MaxDimension)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "invalid image file", Err: err}
	}
	detected, err := s.detect(ctx, processed.Data)
	if err != nil {
		return nil, err
	}
	faces := make([]DetectedFace, len(detected))
	for i, d := range detected {
		faces[i] = DetectedFace{Embedding: d.Embedding, Box: d.Box}
	}
	return s.Search(ctx, faces, tolerance, maxResults)
}

// Search 用唯一的查询人脸与库中所有带向量的人脸比较，按置信度降序返回距离不超过容差的结果。
func (s *Service) Search(ctx context.Context, faces []DetectedFace, tolerance float64, maxResults int) (*SearchResult, error) {
	switch {
	case len(faces) == 0:
		return nil, newError(KindInsufficientData, "no face detected in the query image")
	case len(faces) > 1:
		return nil, newError(KindAmbiguousInput, "query image contains %d faces, exactly one is required", len(faces))
	}
	query := faces[0]
	if len(query.Embedding) == 0 {
		return nil, newError(KindInsufficientData, "query face has no embedding")
	}
	if tolerance <= 0 {
		tolerance = s.opts.Tolerance
	}
	if maxResults <= 0 {
		maxResults = s.opts.SearchMaxResults
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	stored, err := s.db.Faces().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载人脸失败: %w", err)
	}

	result := &SearchResult{Matches: []SearchMatch{}, Tolerance: tolerance, MaxResults: maxResults, QueryFace: query.Box}
	persons := make(map[primitive.ObjectID]*models.Person)
	images := make(map[primitive.ObjectID]*models.Image)
	for _, f := range stored {
		if !f.HasEmbedding() {
			continue
		}
		d := matcher.Distance(query.Embedding, f.Embedding)
		if d > tolerance {
			continue
		}
		m := SearchMatch{
			FaceID:     f.ID.Hex(),
			Distance:   round(d, 4),
			Confidence: round(math.Max(0, 1-d/tolerance)*100, 1),
		}
		if f.PersonID != nil {
			p, err := s.loadPerson(ctx, persons, *f.PersonID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				m.Person = &PersonRef{ID: p.ID.Hex(), Name: p.Name}
			}
		}
		img, err := s.loadImage(ctx, images, f.ImageID)
		if err != nil {
			return nil, err
		}
		if img != nil {
			m.Image = &ImageRef{ID: img.ID.Hex(), Filename: img.FileName}
		}
		result.Matches = append(result.Matches, m)
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Confidence > result.Matches[j].Confidence
	})
	if len(result.Matches) > maxResults {
		result.Matches = result.Matches[:maxResults]
	}
	result.TotalMatches = len(result.Matches)
	return result, nil
}

func (s *Service) loadImage(ctx context.Context, cache map[primitive.ObjectID]*models.Image, id primitive.ObjectID) (*models.Image, error) {
	if img, ok := cache[id]; ok {
		return img, nil
	}
	img, err := s.db.Images().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cache[id] = img
	return img, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
