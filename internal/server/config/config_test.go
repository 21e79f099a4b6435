package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, BackendFilesystem, cfg.StorageBackend)
		assert.Equal(t, int64(536870912), cfg.MaxFileSize)
		assert.Equal(t, 8, cfg.FilenameLength)
		assert.False(t, cfg.InviteOnly)
	})

	t.Run("s3 backend requires bucket and region", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "s3")
		t.Setenv("S3_BUCKET", "")
		t.Setenv("S3_REGION", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("s3 backend with bucket and region", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "s3")
		t.Setenv("S3_BUCKET", "stash-files")
		t.Setenv("S3_REGION", "eu-west-1")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, BackendS3, cfg.StorageBackend)
		assert.Equal(t, "stash-files", cfg.S3Bucket)
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "ftp")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("filename length bounds", func(t *testing.T) {
		t.Setenv("STORAGE_BACKEND", "filesystem")
		t.Setenv("FILENAME_LENGTH", "2")

		_, err := Load()
		require.Error(t, err)
	})
}
