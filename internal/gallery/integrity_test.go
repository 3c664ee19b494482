package gallery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMoveFace_IntoExistingPersonDeletesEmptySource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	imgB, b := f.ingest(t, "b.jpg", []float64{1, 0})

	res, err := f.svc.MoveFace(ctx, b[0].FaceID.Hex(), a[0].PersonID.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, "Person 2", res.FromPerson)
	assert.Equal(t, "Person 1", res.ToPerson)
	assert.Equal(t, "Person 2", res.DeletedEmptyPerson)
	assert.False(t, res.NewPerson)

	assert.Equal(t, int64(1), f.personCount(t))
	face := f.face(t, b[0].FaceID)
	assert.True(t, face.IsManualAssignment)
	assert.NotNil(t, face.ManualAssignmentDate)
	assert.Contains(t, f.person(t, a[0].PersonID).Images, imgB)
	assertConsistent(t, f.db)
}

func TestMoveFace_ToNewPersonKeepsSharedImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	imgA, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{0.2, 0})

	res, err := f.svc.MoveFace(ctx, a[1].FaceID.Hex(), "new", "  Alice ")
	require.NoError(t, err)
	assert.True(t, res.NewPerson)
	assert.Equal(t, "Alice", res.ToPerson)
	assert.Empty(t, res.DeletedEmptyPerson)

	src := f.person(t, a[0].PersonID)
	assert.Equal(t, []primitive.ObjectID{a[0].FaceID}, src.Faces)
	assert.Equal(t, []primitive.ObjectID{imgA}, src.Images)
	assertConsistent(t, f.db)
}

func TestMoveFace_ToNewPersonWithoutNameUsesCounter(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{0.2, 0})

	res, err := f.svc.MoveFace(context.Background(), a[1].FaceID.Hex(), NewPersonTarget, "")
	require.NoError(t, err)
	assert.Equal(t, "Person 2", res.ToPerson)
}

func TestMoveFace_OntoCurrentPersonOnlyMarksManual(t *testing.T) {
	f := newFixture(t)
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})

	res, err := f.svc.MoveFace(context.Background(), a[0].FaceID.Hex(), a[0].PersonID.Hex(), "")
	require.NoError(t, err)
	assert.Equal(t, "Person 1", res.FromPerson)
	assert.Equal(t, "Person 1", res.ToPerson)
	assert.True(t, f.face(t, a[0].FaceID).IsManualAssignment)
	assert.Equal(t, int64(1), f.personCount(t))
	assertConsistent(t, f.db)
}

func TestMoveFace_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})
	missing := primitive.NewObjectID().Hex()

	tests := []struct {
		name   string
		face   string
		target string
		want   error
	}{
		{"malformed face", "xyz", a[0].PersonID.Hex(), ErrInvalidReference},
		{"missing face", missing, a[0].PersonID.Hex(), ErrNotFound},
		{"malformed target", a[0].FaceID.Hex(), "xyz", ErrInvalidReference},
		{"missing target", a[0].FaceID.Hex(), missing, ErrNotFound},
		{"empty target", a[0].FaceID.Hex(), " ", ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.MoveFace(ctx, tt.face, tt.target, "")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assertConsistent(t, f.db)
}

func TestDeleteFace_OnlyFaceRemovesPerson(t *testing.T) {
	f := newFixture(t)
	imgA, a := f.ingest(t, "a.jpg", []float64{0, 0})

	res, err := f.svc.DeleteFace(context.Background(), a[0].FaceID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "Person 1", res.DeletedEmptyPerson)
	assert.Equal(t, 1, res.DeletedFacesCount)

	assert.Zero(t, f.personCount(t))
	img, err := f.db.Images().GetByID(context.Background(), imgA)
	require.NoError(t, err)
	assert.Empty(t, img.Faces)
	assert.Empty(t, img.Persons)
	assertConsistent(t, f.db)
}

func TestDeleteFace_KeepsImageWhenPersonHasAnotherFaceThere(t *testing.T) {
	f := newFixture(t)
	imgA, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{0.1, 0})

	_, err := f.svc.DeleteFace(context.Background(), a[0].FaceID.Hex())
	require.NoError(t, err)
	p := f.person(t, a[1].PersonID)
	assert.Equal(t, []primitive.ObjectID{a[1].FaceID}, p.Faces)
	assert.Equal(t, []primitive.ObjectID{imgA}, p.Images)
	assertConsistent(t, f.db)
}

func TestDeleteFace_Missing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DeleteFace(context.Background(), primitive.NewObjectID().Hex())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeleteImage_RemovesPersonsOnlySeenThere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	imgA, a := f.ingest(t, "a.jpg", []float64{0, 0}, []float64{5, 5})
	imgB, b := f.ingest(t, "b.jpg", []float64{0.1, 0})
	require.Equal(t, a[0].PersonID, b[0].PersonID)

	res, err := f.svc.DeleteImage(ctx, imgA.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.DeletedFacesCount)
	assert.Equal(t, []string{"Person 2"}, res.DeletedPersons)

	p := f.person(t, a[0].PersonID)
	assert.Equal(t, []primitive.ObjectID{b[0].FaceID}, p.Faces)
	assert.Equal(t, []primitive.ObjectID{imgB}, p.Images)
	gone, err := f.db.Images().GetByID(ctx, imgA)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assertConsistent(t, f.db)

	_, err = f.svc.DeleteImage(ctx, imgA.Hex())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRenamePerson(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, a := f.ingest(t, "a.jpg", []float64{0, 0})

	res, err := f.svc.RenamePerson(ctx, a[0].PersonID.Hex(), "  José  ")
	require.NoError(t, err)
	assert.Equal(t, "Person 1", res.OldName)
	assert.Equal(t, "José", res.NewName)

	found, err := f.svc.ListPersons(ctx, "jose")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a[0].FaceID.Hex(), found[0].Thumbnail)

	_, err = f.svc.RenamePerson(ctx, a[0].PersonID.Hex(), "   ")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = f.svc.RenamePerson(ctx, primitive.NewObjectID().Hex(), "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}
