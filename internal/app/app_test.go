package app

import (
	"FaceGallery/config"
	"FaceGallery/pkg/blobstore"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Backend = "memory"
	cfg.Storage.Backend = "memory"
	return cfg
}

func TestNew_MemoryBackends(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &blobstore.Memory{}, a.Blobs)
	assert.NotNil(t, a.Service)
	assert.NotNil(t, a.Importer)

	st, err := a.Service.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.TotalImages)
}

func TestNew_RejectsBadBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Backend = "gridfs"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err, "gridfs 需要 mongo")

	cfg = memoryConfig()
	cfg.Database.Backend = "sqlite"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Scanner.FilePatterns = []string{"[oops"}
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
