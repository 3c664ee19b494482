package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/matcher"
	"FaceGallery/pkg/metrics"
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DetectedFace 是待入库的一张人脸。CropKey 指向已保存的裁剪图，可以为空。
type DetectedFace struct {
	Embedding    []float64
	Box          models.BoundingBox
	CropKey      string
	CropFilename string
}

// Assignment 记录一张人脸被分配到的人物。
type Assignment struct {
	FaceID     primitive.ObjectID `json:"face_id"`
	PersonID   primitive.ObjectID `json:"person_id"`
	PersonName string             `json:"person_name"`
	NewPerson  bool               `json:"new_person"`
}

// Ingest 把一张图片中检测到的人脸按检测顺序逐个分配给已有人物或新人物。
func (s *Service) Ingest(ctx context.Context, imageID string, faces []DetectedFace) ([]Assignment, error) {
	id, err := parseID("image", imageID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ingest(ctx, id, faces)
}

// ingest 要求调用方持有 s.mu。
func (s *Service) ingest(ctx context.Context, imageID primitive.ObjectID, faces []DetectedFace) ([]Assignment, error) {
	image, err := s.db.Images().GetByID(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("查询图片失败: %w", err)
	}
	if image == nil {
		return nil, notFound("image %s not found", imageID.Hex())
	}

	assignments := make([]Assignment, 0, len(faces))
	if len(faces) == 0 {
		return assignments, nil
	}

	// --- 1. 候选池：所有已分配人脸的特征向量 ---
	assigned, err := s.db.Faces().ListAssigned(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载已分配人脸失败: %w", err)
	}
	pool := make([]matcher.Candidate, 0, len(assigned)+len(faces))
	for _, f := range assigned {
		if f.HasEmbedding() {
			pool = append(pool, matcher.Candidate{Embedding: f.Embedding, PersonID: *f.PersonID})
		}
	}

	persons := make(map[primitive.ObjectID]*models.Person)
	for i, df := range faces {
		if len(df.Embedding) == 0 {
			slog.Warn("跳过没有特征向量的人脸", "image_id", imageID.Hex(), "index", i)
			continue
		}
		faceID := primitive.NewObjectID()

		// --- 2. 匹配已有人物 ---
		var person *models.Person
		if pid, ok := matcher.Match(df.Embedding, pool, s.opts.Tolerance); ok {
			person, err = s.loadPerson(ctx, persons, pid)
			if err != nil {
				return nil, err
			}
			if person == nil {
				slog.Warn("匹配到的人物已不存在，将创建新人物", "person_id", pid.Hex())
			}
		}

		// --- 3. 没有匹配则新建人物 ---
		created := false
		if person == nil {
			person, err = s.createPerson(ctx, "", faceID, imageID)
			if err != nil {
				return nil, err
			}
			persons[person.ID] = person
			created = true
		}

		// --- 4. 保存人脸 ---
		face := &models.Face{
			ID:                  faceID,
			Embedding:           df.Embedding,
			ImageID:             imageID,
			Location:            df.Box,
			PersonID:            &person.ID,
			CroppedFaceKey:      df.CropKey,
			CroppedFaceFilename: df.CropFilename,
		}
		if err := s.db.Faces().Create(ctx, face); err != nil {
			return nil, fmt.Errorf("保存人脸失败: %w", err)
		}

		// --- 5. 更新人物的人脸/图片集合 ---
		if !created {
			person.AddFace(faceID, imageID)
			if err := s.db.Persons().Update(ctx, person); err != nil {
				return nil, err
			}
		}

		pool = append(pool, matcher.Candidate{Embedding: df.Embedding, PersonID: person.ID})
		image.Faces = models.AddID(image.Faces, faceID)
		image.Persons = models.AddID(image.Persons, person.ID)
		assignments = append(assignments, Assignment{
			FaceID:     faceID,
			PersonID:   person.ID,
			PersonName: person.Name,
			NewPerson:  created,
		})
		if created {
			metrics.PersonsCreated.WithLabelValues("ingest").Inc()
		}
	}

	// --- 6. 更新图片的反范式字段 ---
	if err := s.db.Images().UpdateReferences(ctx, image); err != nil {
		return nil, err
	}
	metrics.FacesIngested.Add(float64(len(assignments)))
	slog.Info("图片人脸入库完成", "image_id", imageID.Hex(), "faces", len(assignments))
	return assignments, nil
}

// loadPerson 带缓存地读取人物，同一次入库中对同一人物的修改因此不会丢失。
func (s *Service) loadPerson(ctx context.Context, cache map[primitive.ObjectID]*models.Person, id primitive.ObjectID) (*models.Person, error) {
	if p, ok := cache[id]; ok {
		return p, nil
	}
	p, err := s.db.Persons().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("查询人物失败: %w", err)
	}
	if p != nil {
		cache[id] = p
	}
	return p, nil
}
