package cleanup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/storage"
	"github.com/stretchr/testify/require"
)

func plentifulDisk(free, total uint64) diskStater {
	return func(path string) (uint64, uint64, error) {
		return free, total, nil
	}
}

func TestEnsureCapacityNoopWhenWithinBudget(t *testing.T) {
	root := t.TempDir()
	layout, err := storage.Initialize(root)
	require.NoError(t, err)
	jobs := jobstore.New()

	cfg := Config{MinFreeBytes: 100, MinFreeRatio: 0.1, MaxBatch: 5}
	err = ensureCapacity("job", layout, jobs, cfg, plentifulDisk(1000, 2000))
	require.NoError(t, err)
}

func TestEnsureCapacityPrunesOldestCandidateFirst(t *testing.T) {
	root := t.TempDir()
	layout, err := storage.Initialize(root)
	require.NoError(t, err)
	jobs := jobstore.New()

	oldID := uuid.New()
	newID := uuid.New()
	jobs.Create(oldID.String())
	jobs.Complete(oldID.String())
	time.Sleep(2 * time.Millisecond) // distinct last_update_unix_ms values
	jobs.Create(newID.String())
	jobs.Complete(newID.String())

	require.NoError(t, storage.EnsureDir(layout.HLSDir(oldID)))
	require.NoError(t, storage.EnsureDir(layout.HLSDir(newID)))

	calls := 0
	stat := func(path string) (uint64, uint64, error) {
		calls++
		if calls == 1 {
			return 0, 100, nil
		}
		return 100, 100, nil
	}

	cfg := Config{MinFreeBytes: 50, MinFreeRatio: 0.1, MaxBatch: 5}
	err = ensureCapacity("job", layout, jobs, cfg, stat)
	require.NoError(t, err)
	require.True(t, calls >= 2)
	require.NoDirExists(t, layout.HLSDir(oldID))
	require.DirExists(t, layout.HLSDir(newID))
}

func TestEnsureCapacitySkipsActiveJobs(t *testing.T) {
	root := t.TempDir()
	layout, err := storage.Initialize(root)
	require.NoError(t, err)
	jobs := jobstore.New()

	activeID := uuid.New()
	jobs.Create(activeID.String())
	jobs.UpdateStage(activeID.String(), jobstore.StageTranscoding)
	require.NoError(t, storage.EnsureDir(layout.HLSDir(activeID)))

	cfg := Config{MinFreeBytes: 50, MinFreeRatio: 0.1, MaxBatch: 5}
	err = ensureCapacity("job", layout, jobs, cfg, plentifulDisk(0, 100))
	require.NoError(t, err)
	require.DirExists(t, layout.HLSDir(activeID))
}

func TestEnsureCapacityNoCandidatesReturnsNil(t *testing.T) {
	root := t.TempDir()
	layout, err := storage.Initialize(root)
	require.NoError(t, err)
	jobs := jobstore.New()

	cfg := Config{MinFreeBytes: 50, MinFreeRatio: 0.1, MaxBatch: 5}
	err = ensureCapacity("job", layout, jobs, cfg, plentifulDisk(0, 100))
	require.NoError(t, err)
}
