package gallery

import (
	"FaceGallery/pkg/detector"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func query(e ...float64) []DetectedFace {
	return []DetectedFace{{Embedding: e}}
}

func TestSearch_RanksByConfidence(t *testing.T) {
	f := newFixture(t)
	_, far := f.ingest(t, "far.jpg", []float64{0.3, 0})
	_, near := f.ingest(t, "near.jpg", []float64{0, 0})
	f.ingest(t, "other.jpg", []float64{5, 5})

	res, err := f.svc.Search(context.Background(), query(0, 0), 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, 2, res.TotalMatches)
	assert.Equal(t, DefaultOptions().Tolerance, res.Tolerance)
	assert.Equal(t, 20, res.MaxResults)

	assert.Equal(t, near[0].FaceID.Hex(), res.Matches[0].FaceID)
	assert.Equal(t, 100.0, res.Matches[0].Confidence)
	assert.Equal(t, 0.0, res.Matches[0].Distance)
	assert.Equal(t, far[0].FaceID.Hex(), res.Matches[1].FaceID)
	assert.Equal(t, 50.0, res.Matches[1].Confidence)
	assert.Equal(t, 0.3, res.Matches[1].Distance)

	require.NotNil(t, res.Matches[0].Person)
	assert.Equal(t, "Person 1", res.Matches[0].Person.Name)
	require.NotNil(t, res.Matches[0].Image)
	assert.Equal(t, "near.jpg", res.Matches[0].Image.Filename)
}

func TestSearch_TruncatesToMaxResults(t *testing.T) {
	f := newFixture(t)
	for _, e := range [][]float64{{0.1, 0}, {0.2, 0}, {0.05, 0}} {
		f.ingest(t, "x.jpg", e)
	}
	res, err := f.svc.Search(context.Background(), query(0, 0), 0.6, 2)
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.Equal(t, 2, res.TotalMatches)
	assert.GreaterOrEqual(t, res.Matches[0].Confidence, res.Matches[1].Confidence)
	assert.Equal(t, 0.05, res.Matches[0].Distance)
}

func TestSearch_NoMatchesIsEmptyList(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.jpg", []float64{5, 5})
	res, err := f.svc.Search(context.Background(), query(0, 0), 0.6, 10)
	require.NoError(t, err)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
}

func TestSearch_RequiresExactlyOneFace(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Search(context.Background(), nil, 0, 0)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = f.svc.Search(context.Background(), append(query(0, 0), query(1, 1)...), 0, 0)
	assert.True(t, errors.Is(err, ErrAmbiguousInput))
	assert.Equal(t, KindAmbiguousInput, KindOf(err))
}

func TestSearchByImage(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.jpg", []float64{0, 0})

	f.det.set(detector.Face{Embedding: []float64{0.1, 0}})
	res, err := f.svc.SearchByImage(context.Background(), testPNG(t, 1, 32, 32), 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)

	f.det.set()
	_, err = f.svc.SearchByImage(context.Background(), testPNG(t, 2, 32, 32), 0, 0)
	assert.True(t, errors.Is(err, ErrInsufficientData))

	_, err = f.svc.SearchByImage(context.Background(), []byte("not an image"), 0, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	for _, e := range [][]float64{{0, 0}, {0.1, 0}, {5, 5}, {5.1, 5}, {20, 20}} {
		f.ingest(t, "x.jpg", e)
	}
	before := f.mapping(t)

	res, err := f.svc.Preview(context.Background(), 0.4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalFaces)
	assert.Equal(t, 2, res.UniqueClusters)
	assert.Equal(t, 1, res.Outliers)
	assert.Equal(t, PreviewParams{Eps: 0.4, MinSamples: 2}, res.Parameters)

	// 使用配置中的默认参数，且不修改任何分配
	res, err = f.svc.Preview(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().DBSCANEps, res.Parameters.Eps)
	assert.Equal(t, before, f.mapping(t))
}

func TestPreview_NeedsTwoEmbeddings(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "a.jpg", []float64{0, 0})
	_, err := f.svc.Preview(context.Background(), 0.4, 2)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}
