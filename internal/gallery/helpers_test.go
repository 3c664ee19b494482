package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/blobstore"
	"FaceGallery/pkg/database"
	"FaceGallery/pkg/database/memory"
	"FaceGallery/pkg/detector"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeDetector 返回预先设置的检测结果。
type fakeDetector struct {
	mu    sync.Mutex
	faces []detector.Face
	err   error
	calls int
}

func (f *fakeDetector) set(faces ...detector.Face) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faces = faces
}

func (f *fakeDetector) Detect(context.Context, []byte) ([]detector.Face, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]detector.Face, len(f.faces))
	copy(out, f.faces)
	return out, nil
}

type fixture struct {
	svc   *Service
	db    *memory.Store
	blobs *blobstore.Memory
	det   *fakeDetector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: memory.NewStore(), blobs: blobstore.NewMemory(), det: &fakeDetector{}}
	f.svc = NewService(f.db, f.blobs, f.det, DefaultOptions())
	return f
}

func (f *fixture) addImage(t *testing.T, name string) primitive.ObjectID {
	t.Helper()
	img := &models.Image{FileName: name, MimeType: "image/jpeg"}
	require.NoError(t, f.db.Images().Create(context.Background(), img))
	return img.ID
}

// ingest 创建一张图片并按顺序入库给定向量。
func (f *fixture) ingest(t *testing.T, name string, embeddings ...[]float64) (primitive.ObjectID, []Assignment) {
	t.Helper()
	id := f.addImage(t, name)
	faces := make([]DetectedFace, len(embeddings))
	for i, e := range embeddings {
		faces[i] = DetectedFace{Embedding: e, Box: models.BoundingBox{Top: 0, Left: 0, Right: 10, Bottom: 10}}
	}
	out, err := f.svc.Ingest(context.Background(), id.Hex(), faces)
	require.NoError(t, err)
	return id, out
}

func (f *fixture) person(t *testing.T, id primitive.ObjectID) *models.Person {
	t.Helper()
	p, err := f.db.Persons().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) face(t *testing.T, id primitive.ObjectID) *models.Face {
	t.Helper()
	face, err := f.db.Faces().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, face)
	return face
}

func (f *fixture) personCount(t *testing.T) int64 {
	t.Helper()
	n, err := f.db.Persons().Count(context.Background())
	require.NoError(t, err)
	return n
}

// mapping 返回当前 Face→Person 映射。
func (f *fixture) mapping(t *testing.T) map[primitive.ObjectID]primitive.ObjectID {
	t.Helper()
	faces, err := f.db.Faces().List(context.Background())
	require.NoError(t, err)
	out := make(map[primitive.ObjectID]primitive.ObjectID, len(faces))
	for _, face := range faces {
		if face.PersonID != nil {
			out[face.ID] = *face.PersonID
		}
	}
	return out
}

// assertConsistent 检查 Person↔Face↔Image 的全部引用约束。
func assertConsistent(t *testing.T, db database.Store) {
	t.Helper()
	ctx := context.Background()
	persons, err := db.Persons().List(ctx)
	require.NoError(t, err)
	faces, err := db.Faces().List(ctx)
	require.NoError(t, err)
	images, err := db.Images().List(ctx, database.ImageFilter{})
	require.NoError(t, err)

	byID := make(map[primitive.ObjectID]models.Person)
	for _, p := range persons {
		byID[p.ID] = p
		assert.NotEmpty(t, p.Faces, "person %s (%s) has no faces", p.Name, p.ID.Hex())
	}

	ownedFaces := make(map[primitive.ObjectID][]primitive.ObjectID)
	ownedImages := make(map[primitive.ObjectID][]primitive.ObjectID)
	imageFaces := make(map[primitive.ObjectID][]primitive.ObjectID)
	imagePersons := make(map[primitive.ObjectID][]primitive.ObjectID)
	for _, face := range faces {
		imageFaces[face.ImageID] = append(imageFaces[face.ImageID], face.ID)
		if face.PersonID == nil {
			continue
		}
		p, ok := byID[*face.PersonID]
		if assert.True(t, ok, "face %s points at missing person", face.ID.Hex()) {
			assert.True(t, models.ContainsID(p.Faces, face.ID), "person %s does not list face %s", p.Name, face.ID.Hex())
		}
		ownedFaces[*face.PersonID] = append(ownedFaces[*face.PersonID], face.ID)
		ownedImages[*face.PersonID] = models.AddID(ownedImages[*face.PersonID], face.ImageID)
		imagePersons[face.ImageID] = models.AddID(imagePersons[face.ImageID], *face.PersonID)
	}

	for _, p := range persons {
		assert.True(t, sameSet(p.Faces, ownedFaces[p.ID]), "person %s faces drifted", p.Name)
		assert.True(t, sameSet(p.Images, ownedImages[p.ID]), "person %s images drifted", p.Name)
	}
	for _, img := range images {
		assert.True(t, sameSet(img.Faces, imageFaces[img.ID]), "image %s faces drifted", img.FileName)
		assert.True(t, sameSet(img.Persons, imagePersons[img.ID]), "image %s persons drifted", img.FileName)
	}
}

// testPNG 生成一张内容由 seed 决定的 PNG，保证不同 seed 的文件哈希不同。
func testPNG(t *testing.T, seed int, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(seed * 37), G: uint8(x * 3), B: uint8(y * 5), A: 255})
		}
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func ids(as []Assignment) (faces, persons []primitive.ObjectID) {
	for _, a := range as {
		faces = append(faces, a.FaceID)
		persons = append(persons, a.PersonID)
	}
	return faces, persons
}
