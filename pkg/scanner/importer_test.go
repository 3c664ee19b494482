package scanner

import (
	"FaceGallery/internal/gallery"
	"FaceGallery/internal/models"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database/memory"
	"FaceGallery/pkg/detector"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, seed int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for x := 0; x < 24; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: uint8(seed * 50), G: uint8(x * 9), B: uint8(y * 7), A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return buf.Bytes()
}

func newService(t *testing.T) (*gallery.Service, *memory.Store) {
	t.Helper()
	var n atomic.Int64
	det := detector.Func(func(context.Context, []byte) ([]detector.Face, error) {
		// 每张图片一张人脸，向量彼此远离
		i := float64(n.Add(1))
		return []detector.Face{{
			Box:       models.BoundingBox{Top: 2, Left: 2, Right: 20, Bottom: 20},
			Embedding: []float64{i * 10, 0},
		}}, nil
	})
	db := memory.NewStore()
	return gallery.NewService(db, blobstore.NewMemory(), det, gallery.DefaultOptions()), db
}

func TestImportDirectory(t *testing.T) {
	root := t.TempDir()
	data := writePNG(t, filepath.Join(root, "a.png"), 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a (1).png"), data, 0644))
	writePNG(t, filepath.Join(root, "b.JPG"), 2)
	writePNG(t, filepath.Join(root, "sub", "c.png"), 3)
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.png"), []byte("not an image"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello"), 0644))

	svc, db := newService(t)
	im, err := NewImporter(svc, 3, []string{"*.png", "*.jpg"})
	require.NoError(t, err)

	var last float64
	report, err := im.ImportDirectory(context.Background(), root, ImportOptions{}, func(p float64) { last = p })
	require.NoError(t, err)
	assert.Equal(t, 5, report.TotalFiles)
	assert.Equal(t, 3, report.Imported)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.FacesDetected)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, filepath.Join(report.Root, "broken.png"), report.Errors[0].Filename)
	assert.Equal(t, 100.0, last)

	n, err := db.Images().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	persons, err := db.Persons().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), persons)

	// 再次导入时所有有效文件都被识别为重复
	again, err := im.ImportDirectory(context.Background(), root, ImportOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
	assert.Equal(t, 4, again.Duplicates)
	assert.Equal(t, 1, again.Failed)
}

func TestImportDirectory_IntoAlbum(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 1)

	svc, db := newService(t)
	album, err := svc.CreateGroup(context.Background(), models.GroupAlbum, "Imported", "")
	require.NoError(t, err)
	im, err := NewImporter(svc, 1, nil)
	require.NoError(t, err)

	report, err := im.ImportDirectory(context.Background(), root, ImportOptions{AlbumID: album.ID.Hex()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)

	n, err := db.Images().CountByGroup(context.Background(), models.GroupAlbum, album.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestImportDirectory_EmptyAndInvalid(t *testing.T) {
	svc, _ := newService(t)
	_, err := NewImporter(svc, 1, []string{"[bad"})
	assert.Error(t, err)

	im, err := NewImporter(svc, 0, []string{"*.png"})
	require.NoError(t, err)
	report, err := im.ImportDirectory(context.Background(), t.TempDir(), ImportOptions{}, nil)
	require.NoError(t, err)
	assert.Zero(t, report.TotalFiles)

	_, err = im.ImportDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), ImportOptions{}, nil)
	assert.Error(t, err)
}

func TestCollectUsesNaturalOrder(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"img10.png", "img2.png", "img1.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0644))
	}
	im, err := NewImporter(nil, 1, []string{"*.png"})
	require.NoError(t, err)
	files, err := im.collect(root)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "img1.png", filepath.Base(files[0]))
	assert.Equal(t, "img2.png", filepath.Base(files[1]))
	assert.Equal(t, "img10.png", filepath.Base(files[2]))
}
