package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t)
	Load()

	require.Equal(t, "0.0.0.0:3000", Addr)
	require.Equal(t, "data", StorageDir)
	require.Equal(t, uint64(5*1024*1024*1024), MinFreeBytes)
	require.Equal(t, 0.10, MinFreeRatio)
	require.Equal(t, 5, CleanupBatch)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDEO_SERVER_ADDR", "127.0.0.1:8080")
	t.Setenv("VIDEO_STORAGE_DIR", "/srv/videos")
	t.Setenv("VIDEO_STORAGE_MIN_FREE_BYTES", "1024")
	t.Setenv("VIDEO_STORAGE_MIN_FREE_RATIO", "0.25")
	t.Setenv("VIDEO_STORAGE_CLEANUP_BATCH", "2")
	t.Setenv("VIDEO_SERVER_ENCODER", "nvenc")

	Load()

	require.Equal(t, "127.0.0.1:8080", Addr)
	require.Equal(t, "/srv/videos", StorageDir)
	require.Equal(t, uint64(1024), MinFreeBytes)
	require.Equal(t, 0.25, MinFreeRatio)
	require.Equal(t, 2, CleanupBatch)
	require.Equal(t, "nvenc", PreferredEncoder)
}

func TestLoadClampsMinFreeRatio(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDEO_STORAGE_MIN_FREE_RATIO", "5")
	Load()
	require.Equal(t, 0.9, MinFreeRatio)
}

func TestLoadRejectsNonPositiveCleanupBatch(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIDEO_STORAGE_CLEANUP_BATCH", "0")
	Load()
	require.Equal(t, 5, CleanupBatch)
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"VIDEO_SERVER_ADDR",
		"VIDEO_STORAGE_DIR",
		"VIDEO_STORAGE_MIN_FREE_BYTES",
		"VIDEO_STORAGE_MIN_FREE_RATIO",
		"VIDEO_STORAGE_CLEANUP_BATCH",
		"VIDEO_SERVER_ENCODER",
		"VIDEO_VAAPI_DEVICE",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
