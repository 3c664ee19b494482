package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Recognition.Tolerance)
	assert.Equal(t, 0, cfg.Recognition.MinFaceSize)
	assert.Equal(t, 0.4, cfg.Recognition.DBSCANEps)
	assert.Equal(t, 2, cfg.Recognition.DBSCANMinSamples)
	assert.Equal(t, 20, cfg.Recognition.SearchMaxResults)
	assert.Equal(t, int64(10*1024*1024), cfg.Upload.MaxFileSize)
	assert.Equal(t, 1920, cfg.Upload.MaxDimension)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "gif"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, "mongo", cfg.Database.Backend)
	assert.Equal(t, "gridfs", cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Detector.Timeout)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yml := `
database:
  backend: memory
  name: from_file
recognition:
  tolerance: 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644))
	t.Setenv("DATABASE_NAME", "from_env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Backend)
	assert.Equal(t, "from_env", cfg.Database.Name)
	assert.Equal(t, 0.5, cfg.Recognition.Tolerance)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("recognition:\n  tolerance: 0\n"), 0o644))
	_, err := Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("storage:\n  backend: ftp\n"), 0o644))
	_, err = Load(dir)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Recognition.Tolerance = 0.45
	cfg.Database.Backend = "memory"
	require.NoError(t, Save(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.45, loaded.Recognition.Tolerance)
	assert.Equal(t, "memory", loaded.Database.Backend)
	assert.Equal(t, cfg.Server.Timeout, loaded.Server.Timeout)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_NAME=from_dotenv\nLOGGER_LEVEL=debug\n"), 0o644))
	// 已存在的环境变量优先于 .env
	t.Setenv("LOGGER_LEVEL", "warn")
	t.Cleanup(func() { os.Unsetenv("DATABASE_NAME") })

	prev := C
	t.Cleanup(func() { C = prev })
	require.NoError(t, LoadConfig(dir))
	assert.Equal(t, "from_dotenv", C.Database.Name)
	assert.Equal(t, "warn", C.Logger.Level)
}
