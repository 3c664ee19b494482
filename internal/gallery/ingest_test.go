package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestIngest_CloseFacesInOneImageShareNewPerson(t *testing.T) {
	f := newFixture(t)
	_, as := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{0.3, 0})

	require.Len(t, as, 2)
	assert.True(t, as[0].NewPerson)
	assert.False(t, as[1].NewPerson)
	assert.Equal(t, as[0].PersonID, as[1].PersonID)
	assert.Equal(t, "Person 1", as[0].PersonName)

	st, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalFaces)
	assert.Equal(t, int64(1), st.TotalPersons)
	assertConsistent(t, f.db)
}

func TestIngest_DistantFaceCreatesSecondPerson(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, b := f.ingest(t, "b.jpg", []float64{1, 0})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].PersonID, b[0].PersonID)
	assert.Equal(t, "Person 1", a[0].PersonName)
	assert.Equal(t, "Person 2", b[0].PersonName)
	assert.Equal(t, int64(2), f.personCount(t))
	assertConsistent(t, f.db)
}

func TestIngest_MatchesExistingPersonAcrossImages(t *testing.T) {
	f := newFixture(t)
	imgA, a := f.ingest(t, "a.jpg", []float64{0, 0})
	imgB, b := f.ingest(t, "b.jpg", []float64{0.2, 0.2})

	assert.Equal(t, a[0].PersonID, b[0].PersonID)
	p := f.person(t, a[0].PersonID)
	assert.ElementsMatch(t, []primitive.ObjectID{a[0].FaceID, b[0].FaceID}, p.Faces)
	assert.ElementsMatch(t, []primitive.ObjectID{imgA, imgB}, p.Images)
	assertConsistent(t, f.db)
}

func TestIngest_FirstMatchWinsOverNearest(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, b := f.ingest(t, "b.jpg", []float64{1, 0})
	require.NotEqual(t, a[0].PersonID, b[0].PersonID)

	// (0.55, 0) 与两者距离都不超过 0.6，离 Person 2 更近，但 Person 1 的人脸排在前面
	_, c := f.ingest(t, "c.jpg", []float64{0.55, 0})
	assert.Equal(t, a[0].PersonID, c[0].PersonID)
}

func TestIngest_ToleranceSeparatesPersons(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, b := f.ingest(t, "b.jpg", []float64{0.5, 0})
	_, c := f.ingest(t, "c.jpg", []float64{0, 0.75})

	assert.Equal(t, a[0].PersonID, b[0].PersonID)
	assert.NotEqual(t, a[0].PersonID, c[0].PersonID)
}

func TestIngest_ZeroFacesIsSuccess(t *testing.T) {
	f := newFixture(t)
	id := f.addImage(t, "empty.jpg")
	as, err := f.svc.Ingest(context.Background(), id.Hex(), nil)
	require.NoError(t, err)
	assert.Empty(t, as)
	assert.Zero(t, f.personCount(t))
}

func TestIngest_SkipsFacesWithoutEmbedding(t *testing.T) {
	f := newFixture(t)
	id := f.addImage(t, "a.jpg")
	as, err := f.svc.Ingest(context.Background(), id.Hex(), []DetectedFace{
		{Embedding: nil},
		{Embedding: []float64{1, 1}},
	})
	require.NoError(t, err)
	require.Len(t, as, 1)
	assertConsistent(t, f.db)
}

func TestIngest_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), "not-an-id", nil)
	assert.True(t, errors.Is(err, ErrInvalidReference))

	_, err = f.svc.Ingest(context.Background(), primitive.NewObjectID().Hex(), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestIngest_EveryFaceAssignedAfterManyCalls(t *testing.T) {
	f := newFixture(t)
	embeddings := [][]float64{{0, 0}, {3, 3}, {0.1, 0.1}, {6, 0}, {3.2, 3.1}, {0, 6}, {6.3, 0.2}}
	for i, e := range embeddings {
		f.ingest(t, "img"+string(rune('a'+i))+".jpg", e, []float64{e[0] + 20, e[1]})
	}

	faces, err := f.db.Faces().List(context.Background())
	require.NoError(t, err)
	require.Len(t, faces, 2*len(embeddings))
	for _, face := range faces {
		require.NotNil(t, face.PersonID)
		assert.False(t, face.IsManualAssignment)
	}
	assertConsistent(t, f.db)
}

func TestIngest_CounterNeverReusesNumbers(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	_, err := f.svc.DeleteFace(context.Background(), a[0].FaceID.Hex())
	require.NoError(t, err)

	_, b := f.ingest(t, "b.jpg", []float64{5, 5})
	assert.Equal(t, "Person 2", b[0].PersonName)
}
