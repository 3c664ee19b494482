package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/matcher"
	"FaceGallery/pkg/metrics"
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	StatusSuccess = "success"

	reclusterMethod = "incremental_first_match"
)

// ReclusterParameters 记录本次聚类使用的参数。
type ReclusterParameters struct {
	Tolerance float64 `json:"tolerance"`
	Method    string  `json:"method"`
}

// ReclusterSummary 是一次重新聚类的结果。
// TotalFaces 是参与本次聚类的自动人脸数，TotalFacesAssigned 是结束时所有已分配人物的人脸数。
type ReclusterSummary struct {
	Status                         string              `json:"status"`
	Message                        string              `json:"message"`
	TotalFaces                     int                 `json:"total_faces"`
	TotalFacesAssigned             int64               `json:"total_faces_assigned"`
	TotalPersons                   int64               `json:"total_persons"`
	ManuallyAssignedFacesPreserved int64               `json:"manually_assigned_faces_preserved"`
	ExistingPersonsPreserved       int                 `json:"existing_persons_preserved"`
	NewPersonsCreated              int                 `json:"new_persons_created"`
	Parameters                     ReclusterParameters `json:"parameters"`
}

// Recluster 重新计算所有自动分配的人脸，手动分配的人脸及其人物保持不变。
// 每一步都可以安全地重复执行，失败后直接再次调用即可。
func (s *Service) Recluster(ctx context.Context) (*ReclusterSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	summary, err := s.recluster(ctx)
	metrics.ReclusterDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReclusterRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ReclusterRuns.WithLabelValues(summary.Status).Inc()
	return summary, nil
}

func (s *Service) recluster(ctx context.Context) (*ReclusterSummary, error) {
	summary := &ReclusterSummary{Parameters: ReclusterParameters{Tolerance: s.opts.Tolerance, Method: reclusterMethod}}

	manual, err := s.db.Faces().CountManual(ctx)
	if err != nil {
		return nil, err
	}
	summary.ManuallyAssignedFacesPreserved = manual

	// --- 1. 选出所有自动分配的人脸 ---
	automatic, err := s.db.Faces().ListAutomatic(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载自动分配人脸失败: %w", err)
	}
	summary.TotalFaces = len(automatic)
	var candidates []models.Face
	for _, f := range automatic {
		if f.HasEmbedding() {
			candidates = append(candidates, f)
		}
	}

	if len(automatic) == 0 || len(candidates) < 2 {
		if err := s.fillTotals(ctx, summary); err != nil {
			return nil, err
		}
		// 两种情况都不修改任何数据
		summary.Status = StatusSuccess
		if len(automatic) == 0 {
			summary.Message = "all faces are manually assigned"
		} else {
			summary.Message = "need at least 2 faces for clustering"
		}
		return summary, nil
	}

	// --- 2. 每个已有人物的代表向量：按存储顺序第一张带向量的人脸 ---
	existing, err := s.db.Persons().List(ctx)
	if err != nil {
		return nil, err
	}
	reps, err := s.representatives(ctx, existing)
	if err != nil {
		return nil, err
	}

	// --- 3. 清除自动人脸的分配 ---
	ids := make([]primitive.ObjectID, len(candidates))
	for i, f := range candidates {
		ids[i] = f.ID
	}
	if _, err := s.db.Faces().ClearAssignments(ctx, ids); err != nil {
		return nil, err
	}

	// --- 4. 逐个重新分配 ---
	var processed []matcher.Candidate
	for i := range candidates {
		face := &candidates[i]
		pid, ok := matcher.Match(face.Embedding, reps, s.opts.Tolerance)
		if !ok {
			pid, ok = matcher.Match(face.Embedding, processed, s.opts.Tolerance)
		}
		if !ok {
			p, err := s.createPerson(ctx, "", face.ID, face.ImageID)
			if err != nil {
				return nil, err
			}
			pid = p.ID
			summary.NewPersonsCreated++
			metrics.PersonsCreated.WithLabelValues("recluster").Inc()
		}

		face.PersonID = &pid
		face.IsManualAssignment = false
		if err := s.db.Faces().Update(ctx, face); err != nil {
			return nil, err
		}
		processed = append(processed, matcher.Candidate{Embedding: face.Embedding, PersonID: pid})
	}

	// --- 5. 根据 Face→Person 映射完整重建引用 ---
	if _, err := s.rebuildReferences(ctx); err != nil {
		return nil, fmt.Errorf("重建引用失败: %w", err)
	}

	for _, p := range existing {
		kept, err := s.db.Persons().GetByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if kept != nil {
			summary.ExistingPersonsPreserved++
		}
	}
	if err := s.fillTotals(ctx, summary); err != nil {
		return nil, err
	}
	summary.Status = StatusSuccess
	summary.Message = fmt.Sprintf("re-clustered %d faces into %d persons", len(candidates), summary.TotalPersons)

	slog.Info("重新聚类完成",
		"faces", len(candidates),
		"assigned", summary.TotalFacesAssigned,
		"persons", summary.TotalPersons,
		"new_persons", summary.NewPersonsCreated,
		"preserved_persons", summary.ExistingPersonsPreserved,
	)
	return summary, nil
}

func (s *Service) fillTotals(ctx context.Context, summary *ReclusterSummary) error {
	var err error
	if summary.TotalFacesAssigned, err = s.db.Faces().CountAssigned(ctx); err != nil {
		return err
	}
	if summary.TotalPersons, err = s.db.Persons().Count(ctx); err != nil {
		return err
	}
	return nil
}

// representatives 按人物的存储顺序返回代表向量，没有可用向量的人物被跳过。
func (s *Service) representatives(ctx context.Context, persons []models.Person) ([]matcher.Candidate, error) {
	faces, err := s.db.Faces().ListAssigned(ctx)
	if err != nil {
		return nil, err
	}
	first := make(map[primitive.ObjectID][]float64)
	for _, f := range faces {
		if !f.HasEmbedding() {
			continue
		}
		if _, seen := first[*f.PersonID]; !seen {
			first[*f.PersonID] = f.Embedding
		}
	}

	reps := make([]matcher.Candidate, 0, len(persons))
	for _, p := range persons {
		if emb, ok := first[p.ID]; ok {
			reps = append(reps, matcher.Candidate{Embedding: emb, PersonID: p.ID})
		}
	}
	return reps, nil
}
