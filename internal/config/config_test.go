package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, BackendFS, cfg.BlobBackend)
	assert.Equal(t, 168*time.Hour, cfg.SnippetTTL)
	assert.Equal(t, time.Hour, cfg.JanitorInterval)
	assert.Equal(t, int64(10485760), cfg.MaxContentBytes)
	assert.Equal(t, time.Hour, cfg.ReservationTTL)
	assert.Equal(t, 6, cfg.IDMinLen)
	assert.Equal(t, 10, cfg.IDMaxLen)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SNIPPET_TTL", "24h")
	t.Setenv("MAX_CONTENT_BYTES", "1024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.SnippetTTL)
	assert.Equal(t, int64(1024), cfg.MaxContentBytes)
}

func TestLoadS3RequiresCredentials(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "s3")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_BUCKET", "snippets")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ACCESS_KEY")
}

func TestLoadS3Complete(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "s3")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("S3_BUCKET", "snippets")
	t.Setenv("S3_ACCESS_KEY", "minioadmin")
	t.Setenv("S3_SECRET_KEY", "minioadmin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendS3, cfg.BlobBackend)
	assert.Equal(t, "snippets", cfg.S3Bucket)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "tape")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLOB_BACKEND")
}

func TestLoadRejectsBadIDBounds(t *testing.T) {
	t.Setenv("ID_MIN_LEN", "8")
	t.Setenv("ID_MAX_LEN", "6")

	_, err := Load()
	require.Error(t, err)
}
