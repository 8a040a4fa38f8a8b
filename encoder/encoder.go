// Package encoder selects and drives an AV1 encoder backend via ffmpeg,
// falling back through candidates and reporting progress to a job store.
package encoder

import (
	"context"
	"os/exec"
	"time"

	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/metrics"
)

// Encode tries each candidate backend in order until one succeeds. hasAudio
// picks the audio fragment; totalDuration, when > 0, drives the stderr
// progress monitor. sink may be nil to skip progress reporting entirely.
func Encode(ctx context.Context, jobID, input, output string, explicit Kind, params Params, hasAudio bool, totalDuration time.Duration, sink ProgressSink) error {
	candidates := Candidates(explicit)

	var lastErr error
	for _, kind := range candidates {
		if err := runOnce(ctx, jobID, input, output, kind, params, hasAudio, totalDuration, sink); err != nil {
			metrics.Metrics.EncoderCandidateTries.WithLabelValues(string(kind), "failure").Inc()
			log.LogError(jobID, "encoder candidate failed, trying next", err, "encoder", string(kind))
			lastErr = err
			continue
		}
		metrics.Metrics.EncoderCandidateTries.WithLabelValues(string(kind), "success").Inc()
		return nil
	}
	return errors.WrapTranscode(lastErr, "all encoder candidates exhausted")
}

func runOnce(ctx context.Context, jobID, input, output string, kind Kind, params Params, hasAudio bool, totalDuration time.Duration, sink ProgressSink) error {
	args := []string{"-y", "-i", input}
	args = append(args, ArgsFor(kind, params)...)
	if hasAudio {
		args = append(args, "-c:a", "libopus", "-b:a", "192k")
	} else {
		args = append(args, "-an")
	}
	args = append(args, output)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdin = nil
	cmd.Stdout = nil

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.WrapDependency(err, "opening ffmpeg stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			return errors.WrapDependency(err, "ffmpeg binary not available")
		}
		return errors.WrapIO(err, "starting ffmpeg")
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errors.Transcodef("progress monitor panicked: %v", r)
			}
		}()
		if totalDuration > 0 && sink != nil {
			monitorStderr(stderr, jobID, totalDuration.Seconds(), sink)
		} else {
			drainStderr(stderr, jobID)
		}
		done <- nil
	}()
	monitorErr := <-done

	if err := cmd.Wait(); err != nil {
		return errors.WrapTranscode(err, "ffmpeg exited with error using %s", kind)
	}
	return monitorErr
}
