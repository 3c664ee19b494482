// Package thumbnailer 负责上传图片的解码、缩放、重新编码与人脸裁剪。
package thumbnailer

import (
	"FaceGallery/internal/models"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	// 匿名导入 image解码器
	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxDimension 是原图缩放后长边的最大像素数。
	DefaultMaxDimension = 1920
	jpegQuality         = 85
	faceJPEGQuality     = 90
	// FacePadding 是裁剪人脸时在每个方向额外保留的比例。
	FacePadding = 0.10
)

// Processed 是经过缩放和重新编码的图片。
type Processed struct {
	Image    image.Image
	Data     []byte
	MimeType string
	Format   string
	Width    int
	Height   int
}

// Decode 解码任意受支持格式 (jpeg/png/gif/webp) 的图片。
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("无法解码图片: %w", err)
	}
	return img, format, nil
}

// Process 解码图片，把长边缩放到 maxDimension 以内 (Lanczos)，
// 然后按扩展名重新编码：.png 保持 PNG，其余一律 JPEG 质量 85。
func Process(data []byte, ext string, maxDimension int) (*Processed, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	b := img.Bounds()
	if b.Dx() > maxDimension || b.Dy() > maxDimension {
		img = imaging.Fit(img, maxDimension, maxDimension, imaging.Lanczos)
	}

	out := &Processed{Image: img, Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	buf := new(bytes.Buffer)
	if strings.EqualFold(strings.TrimPrefix(ext, "."), "png") {
		err = png.Encode(buf, img)
		out.MimeType, out.Format = "image/png", "png"
	} else {
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality})
		out.MimeType, out.Format = "image/jpeg", "jpg"
	}
	if err != nil {
		return nil, fmt.Errorf("重新编码图片失败: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

// PaddedBox 把框向四周扩展 padding 比例，并裁剪到图片边界内。
func PaddedBox(box models.BoundingBox, bounds image.Rectangle, padding float64) image.Rectangle {
	padX := int(float64(box.Width()) * padding)
	padY := int(float64(box.Height()) * padding)
	r := image.Rect(box.Left-padX, box.Top-padY, box.Right+padX, box.Bottom+padY)
	return r.Intersect(bounds)
}

// CropFace 按检测框 (含 10% 边距) 裁剪人脸并编码为 JPEG 质量 90。
func CropFace(img image.Image, box models.BoundingBox) ([]byte, error) {
	rect := PaddedBox(box, img.Bounds(), FacePadding)
	if rect.Empty() {
		return nil, fmt.Errorf("人脸框 %+v 不在图片范围内", box)
	}
	face := imaging.Crop(img, rect)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, face, &jpeg.Options{Quality: faceJPEGQuality}); err != nil {
		return nil, fmt.Errorf("编码人脸图片失败: %w", err)
	}
	return buf.Bytes(), nil
}
