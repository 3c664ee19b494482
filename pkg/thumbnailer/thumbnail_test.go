package thumbnailer

import (
	"FaceGallery/internal/models"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestProcessDownscalesLongEdge(t *testing.T) {
	p, err := Process(encodePNG(t, 400, 200), ".jpg", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, p.Width)
	assert.Equal(t, 50, p.Height)
	assert.Equal(t, "image/jpeg", p.MimeType)

	_, err = jpeg.Decode(bytes.NewReader(p.Data))
	assert.NoError(t, err)
}

func TestProcessKeepsSmallPNG(t *testing.T) {
	p, err := Process(encodePNG(t, 40, 30), "PNG", 1920)
	require.NoError(t, err)
	assert.Equal(t, 40, p.Width)
	assert.Equal(t, 30, p.Height)
	assert.Equal(t, "image/png", p.MimeType)
	assert.Equal(t, "png", p.Format)
}

func TestProcessRejectsGarbage(t *testing.T) {
	_, err := Process([]byte("definitely not an image"), ".jpg", 0)
	assert.Error(t, err)
}

func TestPaddedBoxClampsToBounds(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	r := PaddedBox(models.BoundingBox{Top: 0, Left: 0, Right: 50, Bottom: 50}, bounds, FacePadding)
	assert.Equal(t, image.Rect(0, 0, 55, 55), r)

	r = PaddedBox(models.BoundingBox{Top: 20, Left: 20, Right: 70, Bottom: 70}, bounds, FacePadding)
	assert.Equal(t, image.Rect(15, 15, 75, 75), r)
}

func TestCropFace(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	data, err := CropFace(img, models.BoundingBox{Top: 20, Left: 20, Right: 70, Bottom: 70})
	require.NoError(t, err)
	face, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 60, face.Bounds().Dx())

	_, err = CropFace(img, models.BoundingBox{Top: 200, Left: 200, Right: 300, Bottom: 300})
	assert.Error(t, err)
}

// exifJPEG 构造一个只含 APP1 EXIF 段的最小 JPEG，IFD0 中只有 DateTime 一个字段。
func exifJPEG(dateTime string) []byte {
	tiff := []byte{'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08}
	tiff = append(tiff, 0x00, 0x01)
	tiff = append(tiff, 0x01, 0x32, 0x00, 0x02, 0x00, 0x00, 0x00, 0x14, 0x00, 0x00, 0x00, 0x1A)
	tiff = append(tiff, 0x00, 0x00, 0x00, 0x00)
	tiff = append(tiff, []byte(dateTime)...)
	tiff = append(tiff, 0x00)

	payload := append([]byte("Exif\x00\x00"), tiff...)
	n := len(payload) + 2
	out := []byte{0xFF, 0xD8, 0xFF, 0xE1, byte(n >> 8), byte(n)}
	out = append(out, payload...)
	return append(out, 0xFF, 0xD9)
}

func TestTakenAt(t *testing.T) {
	assert.Nil(t, TakenAt(encodePNG(t, 10, 10)))
	assert.Nil(t, TakenAt([]byte("garbage")))

	ts := TakenAt(exifJPEG("2021:07:04 10:30:00"))
	require.NotNil(t, ts)
	assert.Equal(t, 2021, ts.Year())
	assert.Equal(t, 7, int(ts.Month()))
	assert.Equal(t, 4, ts.Day())
	assert.Equal(t, 10, ts.Hour())
}
