package maintenance

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	db    *memory.Store
	blobs *blobstore.Memory
	svc   *gallery.Service
	m     Maintenance
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	det := detector.Func(func(context.Context, []byte) ([]detector.Face, error) {
		return []detector.Face{{Box: models.BoundingBox{Top: 1, Left: 1, Right: 12, Bottom: 12}, Embedding: []float64{0, 0}}}, nil
	})
	f := &fixture{db: memory.NewStore(), blobs: blobstore.NewMemory()}
	f.svc = gallery.NewService(f.db, f.blobs, det, gallery.DefaultOptions())
	f.m = NewMaintenance(f.db, f.blobs, f.svc, 2)
	return f
}

func (f *fixture) upload(t *testing.T, seed int) *gallery.UploadResult {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		img.Set(x, x, color.RGBA{R: uint8(seed * 40), A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	res, err := f.svc.Upload(context.Background(), gallery.UploadInput{Filename: "x.png", Data: buf.Bytes()})
	require.NoError(t, err)
	return res
}

func TestAudit_HealthyLibrary(t *testing.T) {
	f := newFixture(t)
	f.upload(t, 1)
	f.upload(t, 2)

	report, err := f.m.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, 1, report.PersonsChecked)
	assert.Equal(t, 2, report.FacesChecked)
	assert.Equal(t, 2, report.ImagesChecked)
}

func TestAuditDetectsDriftAndRepairFixesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.upload(t, 1)
	f.upload(t, 2)

	p, err := f.db.Persons().GetByID(ctx, first.Assignments[0].PersonID)
	require.NoError(t, err)
	p.Faces = p.Faces[:1]
	require.NoError(t, f.db.Persons().Update(ctx, p))
	require.NoError(t, f.db.Persons().Create(ctx, &models.Person{Name: "empty"}))
	missing := primitive.NewObjectID()
	require.NoError(t, f.db.Faces().Create(ctx, &models.Face{ImageID: first.Assignments[0].FaceID, PersonID: &missing}))

	report, err := f.m.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy())
	assert.Len(t, report.PersonDrift, 1)
	assert.Len(t, report.EmptyPersons, 1)
	assert.Len(t, report.DanglingFaces, 1)
	assert.Len(t, report.OrphanFaces, 1)

	repaired, err := f.m.Repair(ctx)
	require.NoError(t, err)
	require.NotNil(t, repaired.Rebuild)
	assert.Equal(t, 1, repaired.Rebuild.PersonsDeleted)
	assert.Equal(t, 1, repaired.Rebuild.DanglingCleared)
	assert.Empty(t, repaired.After.PersonDrift)
	assert.Empty(t, repaired.After.EmptyPersons)
	assert.Empty(t, repaired.After.DanglingFaces)
	// 指向不存在图片的人脸只会被报告
	assert.Len(t, repaired.After.OrphanFaces, 1)
}

func TestRepair_NoopWhenHealthy(t *testing.T) {
	f := newFixture(t)
	f.upload(t, 1)
	out, err := f.m.Repair(context.Background())
	require.NoError(t, err)
	assert.Nil(t, out.Rebuild)
	assert.True(t, out.After.Healthy())
}

func TestGenerateBlobManifest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.upload(t, 1)
	f.upload(t, 2)

	faceKey := "faces/" + res.ImageID + "_0.jpg"
	require.NoError(t, f.blobs.Delete(ctx, faceKey))

	out, err := f.m.GenerateBlobManifest(ctx, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Entries)
	assert.Equal(t, []string{faceKey}, out.Missing)

	content, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], " *faces/")
	assert.Len(t, strings.SplitN(lines[0], " ", 2)[0], 64)
}
