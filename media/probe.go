// Package media wraps ffprobe invocations used by the encoder orchestrator
// and segmenter: source geometry, duration, and audio-stream presence.
package media

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/log"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// Geometry is the probed pixel dimensions of a video's first stream.
type Geometry struct {
	Width  int
	Height int
}

// Prober is the narrow surface the encoder orchestrator and segmenter
// depend on, so tests can substitute a fake without shelling out.
type Prober interface {
	ProbeGeometry(ctx context.Context, jobID, path string) (Geometry, error)
	ProbeDuration(ctx context.Context, jobID, path string) (time.Duration, bool)
	ProbeHasAudio(ctx context.Context, jobID, path string) (bool, error)
}

// FFProbe is the production Prober, backed by gopkg.in/vansante/go-ffprobe.v2.
type FFProbe struct{}

func (FFProbe) probe(ctx context.Context, path string) (*ffprobe.ProbeData, error) {
	var data *ffprobe.ProbeData
	operation := func() error {
		probeCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
		d, err := ffprobe.ProbeURL(probeCtx, path, "-loglevel", "error")
		if err != nil {
			return err
		}
		data = d
		return nil
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = 500 * time.Millisecond
	backOff.MaxInterval = 2 * time.Second
	backOff.MaxElapsedTime = 0

	if err := backoff.Retry(operation, backoff.WithMaxRetries(backOff, 3)); err != nil {
		return nil, errors.WrapTranscode(err, "probing %s", path)
	}
	return data, nil
}

// ProbeGeometry returns the first video stream's width and height. Both
// must be positive; anything else is a transcode-class failure.
func (f FFProbe) ProbeGeometry(ctx context.Context, jobID, path string) (Geometry, error) {
	data, err := f.probe(ctx, path)
	if err != nil {
		return Geometry{}, err
	}

	stream := data.FirstVideoStream()
	if stream == nil || stream.Width <= 0 || stream.Height <= 0 {
		return Geometry{}, errors.Transcodef("no video stream with positive dimensions in %s", path)
	}
	return Geometry{Width: stream.Width, Height: stream.Height}, nil
}

// ProbeDuration returns the source duration. A probe failure is logged and
// treated as "unknown duration" rather than propagated: progress monitoring
// degrades to a plain stderr drain when duration can't be determined.
func (f FFProbe) ProbeDuration(ctx context.Context, jobID, path string) (time.Duration, bool) {
	data, err := f.probe(ctx, path)
	if err != nil {
		log.LogError(jobID, "failed to probe duration, continuing without it", err)
		return 0, false
	}
	if data.Format == nil || data.Format.DurationSeconds <= 0 {
		return 0, false
	}
	return time.Duration(data.Format.DurationSeconds * float64(time.Second)), true
}

// ProbeHasAudio reports whether the source has at least one audio stream.
func (f FFProbe) ProbeHasAudio(ctx context.Context, jobID, path string) (bool, error) {
	data, err := f.probe(ctx, path)
	if err != nil {
		return false, err
	}
	return data.FirstAudioStream() != nil, nil
}
