// Package detector 对接外部人脸检测/特征提取服务。
package detector

import (
	"FaceGallery/internal/models"
	"context"
	"errors"
)

var (
	// ErrUnavailable 表示重试耗尽后检测服务仍不可用。
	ErrUnavailable = errors.New("人脸检测服务不可用")
	// ErrInvalidResponse 表示检测服务返回了无法解析的内容。
	ErrInvalidResponse = errors.New("人脸检测服务返回了无效响应")
)

// Face 是检测结果中的一张人脸，按检测顺序返回。
type Face struct {
	Box       models.BoundingBox `json:"box"`
	Embedding []float64          `json:"embedding"`
}

// Detector 从图片字节中检测人脸并计算特征向量。
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Face, error)
}

// Func 让普通函数满足 Detector 接口，测试中常用。
type Func func(ctx context.Context, image []byte) ([]Face, error)

func (f Func) Detect(ctx context.Context, image []byte) ([]Face, error) {
	return f(ctx, image)
}
