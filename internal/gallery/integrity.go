package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/metrics"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewPersonTarget 作为 MoveFace 的目标时表示移动到一个新建的人物。
const NewPersonTarget = "new"

const noPerson = "No person"

type MoveResult struct {
	FaceID             string `json:"face_id"`
	FromPerson         string `json:"from_person"`
	ToPerson           string `json:"to_person"`
	TargetPersonID     string `json:"target_person_id"`
	NewPerson          bool   `json:"new_person"`
	DeletedEmptyPerson string `json:"deleted_empty_person,omitempty"`
}

type DeleteFaceResult struct {
	FaceID             string `json:"face_id"`
	DeletedFacesCount  int    `json:"deleted_faces_count"`
	FromPerson         string `json:"from_person"`
	DeletedEmptyPerson string `json:"deleted_empty_person,omitempty"`
}

type DeleteImageResult struct {
	ImageID           string   `json:"image_id"`
	DeletedFacesCount int64    `json:"deleted_faces_count"`
	DeletedPersons    []string `json:"deleted_persons"`
}

type RenameResult struct {
	PersonID string `json:"person_id"`
	OldName  string `json:"old_name"`
	NewName  string `json:"new_name"`
}

// MoveFace 把人脸手动分配给 target 指定的人物；target 为 "new" 时新建人物，
// customName 为空则自动命名。被移动的人脸此后不再参与重新聚类。
func (s *Service) MoveFace(ctx context.Context, faceID, target, customName string) (*MoveResult, error) {
	fid, err := parseID("face", faceID)
	if err != nil {
		return nil, err
	}
	toNew := strings.EqualFold(strings.TrimSpace(target), NewPersonTarget)
	var tid primitive.ObjectID
	if !toNew {
		if strings.TrimSpace(target) == "" {
			return nil, invalidInput("target_person_id is required")
		}
		if tid, err = parseID("target person", target); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	face, err := s.db.Faces().GetByID(ctx, fid)
	if err != nil {
		return nil, err
	}
	if face == nil {
		return nil, notFound("face %s not found", faceID)
	}

	var targetPerson *models.Person
	if !toNew {
		if targetPerson, err = s.db.Persons().GetByID(ctx, tid); err != nil {
			return nil, err
		}
		if targetPerson == nil {
			return nil, notFound("target person %s not found", target)
		}
	}

	now := s.now()
	result := &MoveResult{FaceID: fid.Hex(), FromPerson: noPerson, NewPerson: toNew}

	// 移动到当前人物只需要标记为手动分配
	if targetPerson != nil && face.PersonID != nil && *face.PersonID == targetPerson.ID {
		face.IsManualAssignment = true
		face.ManualAssignmentDate = &now
		if err := s.db.Faces().Update(ctx, face); err != nil {
			return nil, err
		}
		targetPerson.AddFace(face.ID, face.ImageID)
		if err := s.db.Persons().Update(ctx, targetPerson); err != nil {
			return nil, err
		}
		result.FromPerson, result.ToPerson = targetPerson.Name, targetPerson.Name
		result.TargetPersonID = targetPerson.ID.Hex()
		return result, nil
	}

	// --- 1. 源人物侧清理 ---
	from, deleted, err := s.releaseFace(ctx, face)
	if err != nil {
		return nil, err
	}
	if from != nil {
		result.FromPerson = from.Name
		if deleted {
			result.DeletedEmptyPerson = from.Name
		}
	}

	// --- 2. 加入目标人物 ---
	if toNew {
		targetPerson, err = s.createPerson(ctx, strings.TrimSpace(customName), face.ID, face.ImageID)
		if err != nil {
			return nil, err
		}
		metrics.PersonsCreated.WithLabelValues("manual").Inc()
	} else {
		targetPerson.AddFace(face.ID, face.ImageID)
		if err := s.db.Persons().Update(ctx, targetPerson); err != nil {
			return nil, err
		}
	}

	// --- 3. 标记为手动分配 ---
	face.PersonID = &targetPerson.ID
	face.IsManualAssignment = true
	face.ManualAssignmentDate = &now
	if err := s.db.Faces().Update(ctx, face); err != nil {
		return nil, err
	}

	// --- 4. 重新计算图片的人物集合 ---
	if err := s.refreshImage(ctx, face.ImageID); err != nil {
		return nil, err
	}

	result.ToPerson = targetPerson.Name
	result.TargetPersonID = targetPerson.ID.Hex()
	slog.Info("人脸已手动移动",
		"face_id", result.FaceID,
		"from", result.FromPerson,
		"to", result.ToPerson,
		"deleted_empty_person", result.DeletedEmptyPerson,
	)
	return result, nil
}

// DeleteFace 删除一张人脸及其裁剪图，并维护人物与图片的引用。
func (s *Service) DeleteFace(ctx context.Context, faceID string) (*DeleteFaceResult, error) {
	fid, err := parseID("face", faceID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	face, err := s.db.Faces().GetByID(ctx, fid)
	if err != nil {
		return nil, err
	}
	if face == nil {
		return nil, notFound("face %s not found", faceID)
	}

	result := &DeleteFaceResult{FaceID: fid.Hex(), DeletedFacesCount: 1, FromPerson: noPerson}
	from, deleted, err := s.releaseFace(ctx, face)
	if err != nil {
		return nil, err
	}
	if from != nil {
		result.FromPerson = from.Name
		if deleted {
			result.DeletedEmptyPerson = from.Name
		}
	}

	if err := s.db.Faces().Delete(ctx, fid); err != nil {
		return nil, fmt.Errorf("删除人脸失败: %w", err)
	}
	if err := s.refreshImage(ctx, face.ImageID); err != nil {
		return nil, err
	}
	s.deleteBlob(ctx, face.CroppedFaceKey)
	return result, nil
}

// DeleteImage 删除图片及其所有人脸。只出现在这张图片中的人物会被一并删除。
func (s *Service) DeleteImage(ctx context.Context, imageID string) (*DeleteImageResult, error) {
	iid, err := parseID("image", imageID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteImage(ctx, iid)
}

func (s *Service) deleteImage(ctx context.Context, iid primitive.ObjectID) (*DeleteImageResult, error) {
	img, err := s.db.Images().GetByID(ctx, iid)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, notFound("image %s not found", iid.Hex())
	}
	faces, err := s.db.Faces().ListByImage(ctx, iid)
	if err != nil {
		return nil, err
	}

	// --- 1. 按人物分组，保持首次出现的顺序 ---
	var order []primitive.ObjectID
	groups := make(map[primitive.ObjectID][]primitive.ObjectID)
	for _, f := range faces {
		if f.PersonID == nil {
			continue
		}
		pid := *f.PersonID
		if _, ok := groups[pid]; !ok {
			order = append(order, pid)
		}
		groups[pid] = append(groups[pid], f.ID)
	}

	result := &DeleteImageResult{ImageID: iid.Hex(), DeletedPersons: []string{}}
	for _, pid := range order {
		p, err := s.db.Persons().GetByID(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		owned, err := s.db.Faces().ListByPerson(ctx, pid)
		if err != nil {
			return nil, err
		}
		elsewhere := 0
		for _, f := range owned {
			if f.ImageID != iid {
				elsewhere++
			}
		}
		if elsewhere == 0 {
			if err := s.db.Persons().Delete(ctx, pid); err != nil {
				return nil, err
			}
			result.DeletedPersons = append(result.DeletedPersons, p.Name)
			continue
		}
		for _, fid := range groups[pid] {
			p.RemoveFace(fid)
		}
		p.RemoveImage(iid)
		if err := s.db.Persons().Update(ctx, p); err != nil {
			return nil, err
		}
	}

	// --- 2. 删除人脸与图片 ---
	n, err := s.db.Faces().DeleteByImage(ctx, iid)
	if err != nil {
		return nil, fmt.Errorf("删除图片人脸失败: %w", err)
	}
	result.DeletedFacesCount = n
	if err := s.db.Images().Delete(ctx, iid); err != nil {
		return nil, fmt.Errorf("删除图片失败: %w", err)
	}

	// --- 3. 清理 blob ---
	s.deleteBlob(ctx, img.ImageKey)
	for _, f := range faces {
		s.deleteBlob(ctx, f.CroppedFaceKey)
	}

	slog.Info("图片已删除", "image_id", iid.Hex(), "faces", n, "deleted_persons", result.DeletedPersons)
	return result, nil
}

// RenamePerson 只修改人物名称。
func (s *Service) RenamePerson(ctx context.Context, personID, name string) (*RenameResult, error) {
	pid, err := parseID("person", personID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidInput("name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.db.Persons().GetByID(ctx, pid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, notFound("person %s not found", personID)
	}
	result := &RenameResult{PersonID: pid.Hex(), OldName: p.Name, NewName: name}
	p.Name = name
	if err := s.db.Persons().Update(ctx, p); err != nil {
		return nil, err
	}
	return result, nil
}

// releaseFace 把人脸从其当前人物中移除。人物不再拥有其他人脸时被删除，
// 否则在该人物没有同图片的其他人脸时移除图片引用。所有会缩小人物人脸集合的操作都经过这里。
// 返回原人物 (可能为 nil) 以及它是否被删除。
func (s *Service) releaseFace(ctx context.Context, face *models.Face) (*models.Person, bool, error) {
	if face.PersonID == nil {
		return nil, false, nil
	}
	p, err := s.db.Persons().GetByID(ctx, *face.PersonID)
	if err != nil {
		return nil, false, err
	}
	if p == nil {
		return nil, false, nil
	}

	owned, err := s.db.Faces().ListByPerson(ctx, p.ID)
	if err != nil {
		return nil, false, err
	}
	remaining, sameImage := 0, false
	for _, f := range owned {
		if f.ID == face.ID {
			continue
		}
		remaining++
		if f.ImageID == face.ImageID {
			sameImage = true
		}
	}

	if remaining == 0 {
		if err := s.db.Persons().Delete(ctx, p.ID); err != nil {
			return nil, false, fmt.Errorf("删除空人物失败: %w", err)
		}
		slog.Info("人物已没有人脸，已删除", "person_id", p.ID.Hex(), "name", p.Name)
		return p, true, nil
	}

	p.RemoveFace(face.ID)
	if !sameImage {
		p.RemoveImage(face.ImageID)
	}
	if err := s.db.Persons().Update(ctx, p); err != nil {
		return nil, false, err
	}
	return p, false, nil
}
