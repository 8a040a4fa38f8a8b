// Package pipeline drives a single submission from acquisition through
// transcoding to segmentation. A driver runs once per accepted job on its
// own goroutine and reports every transition to the job store.
package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/livepeer/video-ingest/acquire"
	"github.com/livepeer/video-ingest/cleanup"
	"github.com/livepeer/video-ingest/encoder"
	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/media"
	"github.com/livepeer/video-ingest/metrics"
	"github.com/livepeer/video-ingest/progress"
	"github.com/livepeer/video-ingest/segment"
	"github.com/livepeer/video-ingest/storage"
)

// Deps bundles the shared collaborators every driver invocation needs.
type Deps struct {
	Jobs    *jobstore.Store
	Layout  *storage.Layout
	Prober  media.Prober
	Cleanup cleanup.Config
}

// EncodeRequest carries the client-controllable transcode knobs alongside
// the always-present encoder candidate override.
type EncodeRequest struct {
	Params   encoder.Params
	Explicit encoder.Kind
}

// RunLocal drives a job whose bytes are already on disk at incomingPath.
func RunLocal(ctx context.Context, deps Deps, id uuid.UUID, incomingPath string, req EncodeRequest) {
	jobID := id.String()
	metrics.Metrics.JobsStarted.WithLabelValues("local").Inc()
	run(ctx, deps, id, jobID, req, func() error { return nil }, incomingPath)
}

// RunRemote drives a job that must first be fetched over HTTP or aria2.
func RunRemote(ctx context.Context, deps Deps, id uuid.UUID, sourceURL string, req EncodeRequest) {
	jobID := id.String()
	incomingPath := deps.Layout.IncomingPath(id)
	metrics.Metrics.JobsStarted.WithLabelValues("remote").Inc()

	acquireFn := func() error {
		deps.Jobs.UpdateStage(jobID, jobstore.StageDownloading)
		if err := storage.EnsureParent(incomingPath); err != nil {
			return err
		}
		if acquire.ShouldUseAria2(sourceURL) {
			deps.Jobs.UpdateProgress(jobID, 0)
			if err := acquire.AcquireAria2(ctx, jobID, sourceURL, incomingPath); err != nil {
				return err
			}
			deps.Jobs.UpdateProgress(jobID, 1)
			return nil
		}
		return acquire.AcquireHTTP(ctx, jobID, sourceURL, incomingPath, deps.Jobs)
	}

	run(ctx, deps, id, jobID, req, acquireFn, incomingPath)
}

// RunYtDlp drives a job fetched through the yt-dlp CLI.
func RunYtDlp(ctx context.Context, deps Deps, id uuid.UUID, sourceURL string, req EncodeRequest) {
	jobID := id.String()
	incomingPath := deps.Layout.IncomingPath(id)
	metrics.Metrics.JobsStarted.WithLabelValues("yt-dlp").Inc()

	acquireFn := func() error {
		deps.Jobs.UpdateStage(jobID, jobstore.StageDownloading)
		if err := storage.EnsureParent(incomingPath); err != nil {
			return err
		}
		return acquire.AcquireYtDlp(ctx, jobID, sourceURL, incomingPath)
	}

	run(ctx, deps, id, jobID, req, acquireFn, incomingPath)
}

func run(ctx context.Context, deps Deps, id uuid.UUID, jobID string, req EncodeRequest, acquireFn func() error, incomingPath string) {
	start := progress.Clock.Now()
	stage := string(jobstore.StageComplete)
	if err := runSteps(ctx, deps, id, jobID, req, acquireFn, incomingPath); err != nil {
		stage = string(jobstore.StageFailed)
		log.LogError(jobID, "pipeline failed", err)
		deps.Jobs.Fail(jobID, err.Error())
		if removeErr := os.Remove(incomingPath); removeErr != nil && !os.IsNotExist(removeErr) {
			log.LogError(jobID, "failed to remove incoming temp file after pipeline failure", removeErr)
		}
	}
	metrics.Metrics.JobsTerminal.WithLabelValues(stage).Inc()
	metrics.Metrics.JobDurationSeconds.WithLabelValues(stage).Observe(progress.Clock.Now().Sub(start).Seconds())
}

func runSteps(ctx context.Context, deps Deps, id uuid.UUID, jobID string, req EncodeRequest, acquireFn func() error, incomingPath string) error {
	if err := cleanup.EnsureCapacity(jobID, deps.Layout, deps.Jobs, deps.Cleanup); err != nil {
		return err
	}

	if err := acquireFn(); err != nil {
		return err
	}

	deps.Jobs.UpdateStage(jobID, jobstore.StageTranscoding)

	downloadPath := deps.Layout.DownloadPath(id)
	if err := storage.EnsureParent(downloadPath); err != nil {
		return err
	}

	hasAudio, err := deps.Prober.ProbeHasAudio(ctx, jobID, incomingPath)
	if err != nil {
		return err
	}
	duration, _ := deps.Prober.ProbeDuration(ctx, jobID, incomingPath)

	tmpOutput := downloadPath + ".encoding.webm"
	if err := encoder.Encode(ctx, jobID, incomingPath, tmpOutput, req.Explicit, req.Params, hasAudio, duration, deps.Jobs); err != nil {
		return err
	}
	if err := os.Rename(tmpOutput, downloadPath); err != nil {
		return errors.WrapIO(err, "finalizing encoded output to %s", downloadPath)
	}

	if err := os.Remove(incomingPath); err != nil && !os.IsNotExist(err) {
		log.LogError(jobID, "failed to remove incoming temp file after successful transcode", err)
	}

	deps.Jobs.UpdateProgress(jobID, 0.95)
	deps.Jobs.UpdateStage(jobID, jobstore.StageFinalizing)

	if err := runSegmenter(ctx, jobID, deps.Layout, id, downloadPath, deps.Prober, hasAudio); err != nil {
		return err
	}

	deps.Jobs.Complete(jobID)
	return nil
}

func runSegmenter(ctx context.Context, jobID string, layout *storage.Layout, id uuid.UUID, downloadPath string, prober media.Prober, hasAudio bool) error {
	geometry, err := prober.ProbeGeometry(ctx, jobID, downloadPath)
	if err != nil {
		return err
	}
	renditions := media.SelectRenditions(geometry)

	hlsDir := layout.HLSDir(id)
	dashDir := layout.DASHDir(id)

	errs := make(chan error, 2)
	go func() { errs <- segment.GenerateHLS(ctx, jobID, downloadPath, hlsDir, renditions, hasAudio) }()
	go func() { errs <- segment.GenerateDASH(ctx, jobID, downloadPath, dashDir, renditions, hasAudio) }()

	var first error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// EnsureHLSReady generates the HLS ladder on demand if it hasn't been built
// yet, for the lazy-ensure-then-serve delivery path.
func EnsureHLSReady(ctx context.Context, jobID string, layout *storage.Layout, id uuid.UUID, prober media.Prober) error {
	source := layout.DownloadPath(id)
	if _, err := os.Stat(source); err != nil {
		return errors.NotFoundf("source video missing for hls generation: %s", source)
	}
	if _, err := os.Stat(indexPath(layout, id)); err == nil {
		return nil
	}

	hasAudio, _ := prober.ProbeHasAudio(ctx, jobID, source)
	geometry, err := prober.ProbeGeometry(ctx, jobID, source)
	if err != nil {
		return err
	}
	renditions := media.SelectRenditions(geometry)
	return segment.GenerateHLS(ctx, jobID, source, layout.HLSDir(id), renditions, hasAudio)
}

// EnsureDASHReady is the DASH counterpart to EnsureHLSReady.
func EnsureDASHReady(ctx context.Context, jobID string, layout *storage.Layout, id uuid.UUID, prober media.Prober) error {
	source := layout.DownloadPath(id)
	if _, err := os.Stat(source); err != nil {
		return errors.NotFoundf("source video missing for dash generation: %s", source)
	}
	if _, err := os.Stat(manifestPath(layout, id)); err == nil {
		return nil
	}

	hasAudio, _ := prober.ProbeHasAudio(ctx, jobID, source)
	geometry, err := prober.ProbeGeometry(ctx, jobID, source)
	if err != nil {
		return err
	}
	renditions := media.SelectRenditions(geometry)
	return segment.GenerateDASH(ctx, jobID, source, layout.DASHDir(id), renditions, hasAudio)
}

func indexPath(layout *storage.Layout, id uuid.UUID) string {
	return filepath.Join(layout.HLSDir(id), "index.m3u8")
}

func manifestPath(layout *storage.Layout, id uuid.UUID) string {
	return filepath.Join(layout.DASHDir(id), "manifest.mpd")
}
