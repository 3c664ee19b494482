package gallery

import (
	"FaceGallery/internal/models"
	"FaceGallery/pkg/database"
	"FaceGallery/pkg/database/memory"
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecluster_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.jpg", []float64{0, 0}, []float64{5, 5})
	f.ingest(t, "b.jpg", []float64{0.1, 0})
	f.ingest(t, "c.jpg", []float64{5.1, 5}, []float64{10, 0})
	before := f.mapping(t)

	first, err := f.svc.Recluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, 5, first.TotalFaces)
	assert.Equal(t, int64(5), first.TotalFacesAssigned)
	assert.Equal(t, 3, first.ExistingPersonsPreserved)
	assert.Zero(t, first.NewPersonsCreated)
	assert.Equal(t, before, f.mapping(t))

	second, err := f.svc.Recluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, f.mapping(t))
	assert.Equal(t, first.TotalPersons, second.TotalPersons)
	assertConsistent(t, f.db)
}

func TestRecluster_PreservesManualAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, b := f.ingest(t, "b.jpg", []float64{1, 0})

	moved, err := f.svc.MoveFace(ctx, b[0].FaceID.Hex(), a[0].PersonID.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, "Person 2", moved.DeletedEmptyPerson)

	// 只剩一张自动人脸，不做任何修改
	sum, err := f.svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, "need at least 2 faces for clustering", sum.Message)
	assert.Equal(t, 1, sum.TotalFaces)

	_, c := f.ingest(t, "c.jpg", []float64{0.1, 0})
	require.Equal(t, a[0].PersonID, c[0].PersonID)
	_, err = f.svc.RenamePerson(ctx, a[0].PersonID.Hex(), "Alice")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		sum, err = f.svc.Recluster(ctx)
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, sum.Status)
		assert.Equal(t, int64(1), sum.ManuallyAssignedFacesPreserved)
	}

	face := f.face(t, b[0].FaceID)
	require.NotNil(t, face.PersonID)
	assert.Equal(t, a[0].PersonID, *face.PersonID)
	assert.True(t, face.IsManualAssignment)
	assert.Equal(t, "Alice", f.person(t, a[0].PersonID).Name)
	assert.Equal(t, int64(1), f.personCount(t))
	assertConsistent(t, f.db)
}

func TestRecluster_AllManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, err := f.svc.MoveFace(ctx, a[0].FaceID.Hex(), NewPersonTarget, "Bob")
	require.NoError(t, err)

	sum, err := f.svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Equal(t, "all faces are manually assigned", sum.Message)
	assert.Equal(t, int64(1), sum.TotalPersons)
}

func TestRecluster_EmptyLibrary(t *testing.T) {
	f := newFixture(t)
	sum, err := f.svc.Recluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status)
	assert.Zero(t, sum.TotalFaces)
}

func TestRecluster_SplitsWithTighterTolerance(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{0.3, 0})
	require.Equal(t, a[0].PersonID, a[1].PersonID)

	opts := DefaultOptions()
	opts.Tolerance = 0.1
	tight := NewService(f.db, f.blobs, f.det, opts)

	sum, err := tight.Recluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.NewPersonsCreated)
	assert.Equal(t, 1, sum.ExistingPersonsPreserved)
	assert.Equal(t, int64(2), sum.TotalPersons)
	assert.Equal(t, a[0].PersonID, *f.face(t, a[0].FaceID).PersonID)
	assert.Equal(t, "Person 2", f.person(t, *f.face(t, a[1].FaceID).PersonID).Name)
	assertConsistent(t, f.db)
}

func TestRecluster_RemovesPersonsLeftWithoutFaces(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, b := f.ingest(t, "b.jpg", []float64{1, 0})

	opts := DefaultOptions()
	opts.Tolerance = 2
	loose := NewService(f.db, f.blobs, f.det, opts)

	sum, err := loose.Recluster(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalPersons)
	assert.Equal(t, 1, sum.ExistingPersonsPreserved)
	assert.Nil(t, f.person(t, b[0].PersonID))
	assert.Equal(t, a[0].PersonID, *f.face(t, b[0].FaceID).PersonID)
	assertConsistent(t, f.db)
}

func TestRecluster_AssignsUnassignedFacesWithFreshNames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := f.addImage(t, "legacy.jpg")
	for _, e := range [][]float64{{0, 0}, {9, 9}} {
		require.NoError(t, f.db.Faces().Create(ctx, &models.Face{ImageID: img, Embedding: e}))
	}
	require.NoError(t, f.db.EnsureSequenceAtLeast(ctx, database.PersonCounterName, 7))

	sum, err := f.svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.NewPersonsCreated)

	persons, err := f.db.Persons().List(ctx)
	require.NoError(t, err)
	names := make([]string, len(persons))
	for i, p := range persons {
		names[i] = p.Name
	}
	assert.ElementsMatch(t, []string{"Person 8", "Person 9"}, names)
	assertConsistent(t, f.db)
}

func TestRecluster_SummaryCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	f.ingest(t, "b.jpg", []float64{5, 0})
	f.ingest(t, "c.jpg", []float64{10, 0})
	_, err := f.svc.MoveFace(ctx, a[0].FaceID.Hex(), a[0].PersonID.Hex(), "")
	require.NoError(t, err)
	_, err = f.svc.RenamePerson(ctx, a[0].PersonID.Hex(), "Bob")
	require.NoError(t, err)

	sum, err := f.svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status)
	// 只统计参与聚类的自动人脸；已分配总数包含手动人脸
	assert.Equal(t, 2, sum.TotalFaces)
	assert.Equal(t, int64(3), sum.TotalFacesAssigned)
	assert.Equal(t, int64(3), sum.TotalPersons)
	assert.Equal(t, int64(1), sum.ManuallyAssignedFacesPreserved)
	assert.Equal(t, DefaultOptions().Tolerance, sum.Parameters.Tolerance)
	assert.Equal(t, "incremental_first_match", sum.Parameters.Method)
}

var errStoreDown = errors.New("store down")

// flakyStore 在第 failOn 次 Faces().Update 时返回错误，failOn 为 0 时不出错。
type flakyStore struct {
	*memory.Store
	faces *flakyFaces
}

type flakyFaces struct {
	database.FaceStore
	failOn  int
	updates int
}

func (s *flakyStore) Faces() database.FaceStore { return s.faces }

func (f *flakyFaces) Update(ctx context.Context, face *models.Face) error {
	f.updates++
	if f.failOn > 0 && f.updates == f.failOn {
		return errStoreDown
	}
	return f.FaceStore.Update(ctx, face)
}

func TestRecluster_RetryAfterFailedPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{5, 5})
	f.ingest(t, "b.jpg", []float64{0.1, 0})
	_, c := f.ingest(t, "c.jpg", []float64{5.1, 5}, []float64{10, 0})
	_, err := f.svc.MoveFace(ctx, c[1].FaceID.Hex(), NewPersonTarget, "Carol")
	require.NoError(t, err)
	carol := *f.face(t, c[1].FaceID).PersonID

	faces := &flakyFaces{FaceStore: f.db.Faces(), failOn: 3}
	svc := NewService(&flakyStore{Store: f.db, faces: faces}, f.blobs, f.det, DefaultOptions())

	_, err = svc.Recluster(ctx)
	require.ErrorIs(t, err, errStoreDown)

	faces.failOn = 0
	sum, err := svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sum.Status)
	assertConsistent(t, f.db)

	// 手动人脸与其人物保持不变，所有自动人脸都重新获得了人物
	manual := f.face(t, c[1].FaceID)
	assert.True(t, manual.IsManualAssignment)
	assert.Equal(t, carol, *manual.PersonID)
	assert.Equal(t, "Carol", f.person(t, carol).Name)
	for _, id := range []primitive.ObjectID{a[0].FaceID, a[1].FaceID, c[0].FaceID} {
		assert.NotNil(t, f.face(t, id).PersonID)
	}
	assert.Equal(t, int64(5), sum.TotalFacesAssigned)

	again, err := svc.Recluster(ctx)
	require.NoError(t, err)
	assert.Equal(t, sum.TotalPersons, again.TotalPersons)
}
