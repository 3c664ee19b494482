package gallery

import (
	"FaceGallery/internal/models"
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RebuildReport 统计一次引用重建修改了多少记录。
type RebuildReport struct {
	PersonsUpdated   int `json:"persons_updated"`
	PersonsDeleted   int `json:"persons_deleted"`
	ImagesUpdated    int `json:"images_updated"`
	DanglingCleared  int `json:"dangling_person_refs_cleared"`
	PersonsInspected int `json:"persons_inspected"`
	ImagesInspected  int `json:"images_inspected"`
}

// RebuildReferences 只根据 Face→Person 映射重新计算所有人物与图片的反范式字段，
// 删除没有人脸的人物，并清除指向不存在人物的 personId。可以重复执行。
func (s *Service) RebuildReferences(ctx context.Context) (*RebuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildReferences(ctx)
}

func (s *Service) rebuildReferences(ctx context.Context) (*RebuildReport, error) {
	report := &RebuildReport{}

	persons, err := s.db.Persons().List(ctx)
	if err != nil {
		return nil, err
	}
	faces, err := s.db.Faces().List(ctx)
	if err != nil {
		return nil, err
	}
	known := make(map[primitive.ObjectID]bool, len(persons))
	for _, p := range persons {
		known[p.ID] = true
	}

	// --- 1. 清除悬空的 personId ---
	byPerson := make(map[primitive.ObjectID][]models.Face)
	byImage := make(map[primitive.ObjectID][]models.Face)
	for i := range faces {
		f := &faces[i]
		if f.PersonID != nil && !known[*f.PersonID] {
			slog.Warn("清除指向不存在人物的人脸分配", "face_id", f.ID.Hex(), "person_id", f.PersonID.Hex())
			f.PersonID = nil
			if err := s.db.Faces().Update(ctx, f); err != nil {
				return nil, err
			}
			report.DanglingCleared++
		}
		if f.PersonID != nil {
			byPerson[*f.PersonID] = append(byPerson[*f.PersonID], *f)
		}
		byImage[f.ImageID] = append(byImage[f.ImageID], *f)
	}

	// --- 2. 重建人物集合，删除空人物 ---
	for i := range persons {
		p := &persons[i]
		report.PersonsInspected++
		owned := byPerson[p.ID]
		if len(owned) == 0 {
			if err := s.db.Persons().Delete(ctx, p.ID); err != nil {
				return nil, fmt.Errorf("删除空人物 %s 失败: %w", p.ID.Hex(), err)
			}
			report.PersonsDeleted++
			continue
		}
		faceIDs, imageIDs := faceAndImageIDs(owned)
		if sameSet(p.Faces, faceIDs) && sameSet(p.Images, imageIDs) {
			continue
		}
		p.Faces, p.Images = faceIDs, imageIDs
		if err := s.db.Persons().Update(ctx, p); err != nil {
			return nil, err
		}
		report.PersonsUpdated++
	}

	// --- 3. 重建图片的人脸/人物集合 ---
	images, err := s.db.Images().List(ctx, noFilter)
	if err != nil {
		return nil, err
	}
	for i := range images {
		img := &images[i]
		report.ImagesInspected++
		faceIDs, personIDs := imageRefs(byImage[img.ID])
		if sameSet(img.Faces, faceIDs) && sameSet(img.Persons, personIDs) {
			continue
		}
		img.Faces, img.Persons = faceIDs, personIDs
		if err := s.db.Images().UpdateReferences(ctx, img); err != nil {
			return nil, err
		}
		report.ImagesUpdated++
	}

	slog.Debug("引用重建完成",
		"persons_updated", report.PersonsUpdated,
		"persons_deleted", report.PersonsDeleted,
		"images_updated", report.ImagesUpdated,
	)
	return report, nil
}

// refreshImage 按当前人脸重新计算一张图片的 faces 与 persons。
func (s *Service) refreshImage(ctx context.Context, imageID primitive.ObjectID) error {
	img, err := s.db.Images().GetByID(ctx, imageID)
	if err != nil || img == nil {
		return err
	}
	faces, err := s.db.Faces().ListByImage(ctx, imageID)
	if err != nil {
		return err
	}
	img.Faces, img.Persons = imageRefs(faces)
	return s.db.Images().UpdateReferences(ctx, img)
}

func faceAndImageIDs(faces []models.Face) (faceIDs, imageIDs []primitive.ObjectID) {
	faceIDs = make([]primitive.ObjectID, 0, len(faces))
	imageIDs = make([]primitive.ObjectID, 0, len(faces))
	for _, f := range faces {
		faceIDs = append(faceIDs, f.ID)
		imageIDs = models.AddID(imageIDs, f.ImageID)
	}
	return faceIDs, imageIDs
}

func imageRefs(faces []models.Face) (faceIDs, personIDs []primitive.ObjectID) {
	faceIDs = make([]primitive.ObjectID, 0, len(faces))
	personIDs = make([]primitive.ObjectID, 0, len(faces))
	for _, f := range faces {
		faceIDs = append(faceIDs, f.ID)
		if f.PersonID != nil {
			personIDs = models.AddID(personIDs, *f.PersonID)
		}
	}
	return faceIDs, personIDs
}

// sameSet 忽略顺序与重复比较两个 ID 集合。
func sameSet(a, b []primitive.ObjectID) bool {
	ua, ub := models.UniqueIDs(a), models.UniqueIDs(b)
	if len(ua) != len(ub) || len(ua) != len(a) {
		return false
	}
	for _, id := range ua {
		if !models.ContainsID(ub, id) {
			return false
		}
	}
	return true
}
