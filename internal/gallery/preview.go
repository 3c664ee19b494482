package gallery

import (
	"FaceGallery/pkg/cluster"
	"context"
	"fmt"
)

type PreviewParams struct {
	Eps        float64 `json:"eps"`
	MinSamples int     `json:"min_samples"`
}

// PreviewResult 是 DBSCAN 预览的结果，只用于展示，不会写入任何数据。
type PreviewResult struct {
	cluster.Summary
	Parameters PreviewParams `json:"parameters"`
}

// Preview 对所有已存储的特征向量运行 DBSCAN。eps 或 minSamples 不大于 0 时使用配置值。
func (s *Service) Preview(ctx context.Context, eps float64, minSamples int) (*PreviewResult, error) {
	if eps <= 0 {
		eps = s.opts.DBSCANEps
	}
	if minSamples <= 0 {
		minSamples = s.opts.DBSCANMinSamples
	}

	faces, err := s.db.Faces().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载人脸失败: %w", err)
	}
	var points [][]float64
	for _, f := range faces {
		if f.HasEmbedding() {
			points = append(points, f.Embedding)
		}
	}
	if len(points) < 2 {
		return nil, newError(KindInsufficientData, "need at least 2 faces with embeddings for clustering preview, found %d", len(points))
	}

	labels := cluster.DBSCAN(points, eps, minSamples)
	return &PreviewResult{
		Summary:    cluster.Summarize(labels),
		Parameters: PreviewParams{Eps: eps, MinSamples: minSamples},
	}, nil
}
