package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/livepeer/video-ingest/cleanup"
	"github.com/livepeer/video-ingest/encoder"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/media"
	"github.com/livepeer/video-ingest/storage"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	hasAudio bool
	duration time.Duration
	geometry media.Geometry
}

func (f fakeProber) ProbeGeometry(ctx context.Context, jobID, path string) (media.Geometry, error) {
	return f.geometry, nil
}

func (f fakeProber) ProbeDuration(ctx context.Context, jobID, path string) (time.Duration, bool) {
	return f.duration, f.duration > 0
}

func (f fakeProber) ProbeHasAudio(ctx context.Context, jobID, path string) (bool, error) {
	return f.hasAudio, nil
}

func newTestDeps(t *testing.T) (Deps, *storage.Layout) {
	root := t.TempDir()
	layout, err := storage.Initialize(root)
	require.NoError(t, err)

	jobs := jobstore.New()
	deps := Deps{
		Jobs:    jobs,
		Layout:  layout,
		Prober:  fakeProber{hasAudio: false, geometry: media.Geometry{Width: 1920, Height: 1080}},
		Cleanup: cleanup.Config{MinFreeBytes: 0, MinFreeRatio: 0, MaxBatch: 5},
	}
	return deps, layout
}

func TestRunLocalFailsWhenEncoderBinaryMissing(t *testing.T) {
	deps, layout := newTestDeps(t)
	id := uuid.New()

	incoming := layout.IncomingPath(id)
	require.NoError(t, storage.EnsureParent(incoming))
	require.NoError(t, os.WriteFile(incoming, []byte("fake video bytes"), 0o644))

	deps.Jobs.Create(id.String())
	RunLocal(context.Background(), deps, id, incoming, EncodeRequest{Params: encoder.DefaultParams()})

	snap, ok := deps.Jobs.Status(id.String())
	require.True(t, ok)
	require.Equal(t, jobstore.StageFailed, snap.Stage)
	require.NotEmpty(t, snap.Error)
}

func TestRunLocalRemovesIncomingFileOnFailure(t *testing.T) {
	deps, layout := newTestDeps(t)
	id := uuid.New()
	incoming := layout.IncomingPath(id)
	require.NoError(t, storage.EnsureParent(incoming))
	require.NoError(t, os.WriteFile(incoming, []byte("fake"), 0o644))

	deps.Jobs.Create(id.String())
	RunLocal(context.Background(), deps, id, incoming, EncodeRequest{Params: encoder.DefaultParams()})

	_, err := os.Stat(incoming)
	require.True(t, os.IsNotExist(err))
}

func TestEnsureHLSReadyFailsWhenSourceMissing(t *testing.T) {
	_, layout := newTestDeps(t)
	id := uuid.New()
	err := EnsureHLSReady(context.Background(), "job", layout, id, fakeProber{})
	require.Error(t, err)
}

func TestEnsureDASHReadySkipsWhenManifestExists(t *testing.T) {
	_, layout := newTestDeps(t)
	id := uuid.New()

	source := layout.DownloadPath(id)
	require.NoError(t, storage.EnsureParent(source))
	require.NoError(t, os.WriteFile(source, []byte("video"), 0o644))

	manifest := manifestPath(layout, id)
	require.NoError(t, storage.EnsureDir(filepath.Dir(manifest)))
	require.NoError(t, os.WriteFile(manifest, []byte("<MPD/>"), 0o644))

	err := EnsureDASHReady(context.Background(), "job", layout, id, fakeProber{})
	require.NoError(t, err)
}
