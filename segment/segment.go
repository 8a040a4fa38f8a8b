// Package segment drives ffmpeg to produce the HLS and DASH renditions of a
// transcoded source, given a rendition ladder planned by the media package.
package segment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/media"
)

const (
	segmentLength = 4
	cpuUsed       = 6
	gopSize       = 120
)

// BuildFilterComplex builds the scale filter graph that produces one output
// pad per rung, e.g. "[0:v]scale=-2:1080:flags=lanczos[v0];[0:v]scale=-2:720:flags=lanczos[v1]".
func BuildFilterComplex(renditions []media.Rendition) string {
	parts := make([]string, len(renditions))
	for i, r := range renditions {
		parts[i] = fmt.Sprintf("[0:v]scale=-2:%d:flags=lanczos[v%d]", r.Height, i)
	}
	return strings.Join(parts, ";")
}

// BuildVarStreamMap builds the HLS master-playlist var_stream_map value,
// e.g. "v:0,a:0,name:1080p v:1,a:0,name:720p".
func BuildVarStreamMap(renditions []media.Rendition, hasAudio bool) string {
	parts := make([]string, len(renditions))
	for i, r := range renditions {
		if hasAudio {
			parts[i] = fmt.Sprintf("v:%d,a:0,name:%s", i, r.Name)
		} else {
			parts[i] = fmt.Sprintf("v:%d,name:%s", i, r.Name)
		}
	}
	return strings.Join(parts, " ")
}

func baseArgs(sourcePath string, renditions []media.Rendition, hasAudio bool) []string {
	args := []string{"-y", "-i", sourcePath, "-filter_complex", BuildFilterComplex(renditions)}
	for i := range renditions {
		args = append(args, "-map", fmt.Sprintf("[v%d]", i))
	}
	if hasAudio {
		args = append(args, "-map", "0:a:0")
	}

	args = append(args,
		"-c:v", "libaom-av1",
		"-pix_fmt", "yuv420p",
		"-row-mt", "1",
		"-cpu-used", strconv.Itoa(cpuUsed),
		"-g", strconv.Itoa(gopSize),
		"-keyint_min", strconv.Itoa(gopSize),
		"-sc_threshold", "0",
	)

	for i, r := range renditions {
		args = append(args,
			fmt.Sprintf("-b:v:%d", i), fmt.Sprintf("%dk", r.BitrateKbps),
			fmt.Sprintf("-maxrate:v:%d", i), fmt.Sprintf("%dk", r.MaxrateKbps),
			fmt.Sprintf("-bufsize:v:%d", i), fmt.Sprintf("%dk", r.BufsizeKbps),
			fmt.Sprintf("-metadata:s:v:%d", i), "variant="+r.Name,
		)
	}

	if hasAudio {
		args = append(args, "-c:a", "aac", "-b:a", "192k", "-ac", "2")
	} else {
		args = append(args, "-an")
	}
	return args
}

// GenerateHLS purges and recreates hlsDir, then invokes ffmpeg to produce an
// fMP4 HLS ladder: per-rung variant playlists, a master playlist copied from
// the muxer's index.m3u8.
func GenerateHLS(ctx context.Context, jobID, sourcePath, hlsDir string, renditions []media.Rendition, hasAudio bool) error {
	if err := recreateDir(hlsDir); err != nil {
		return err
	}

	args := baseArgs(sourcePath, renditions, hasAudio)
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentLength),
		"-hls_playlist_type", "event",
		"-hls_flags", "independent_segments+append_list+omit_endlist",
		"-hls_segment_type", "fmp4",
		"-hls_fmp4_init_filename", "init_%v.m4s",
		"-hls_segment_filename", filepath.Join(hlsDir, "segment_%v_%05d.m4s"),
		"-master_pl_name", "index.m3u8",
		"-var_stream_map", BuildVarStreamMap(renditions, hasAudio),
		filepath.Join(hlsDir, "stream_%v.m3u8"),
	)

	if err := runFFmpeg(ctx, jobID, args); err != nil {
		return err
	}

	indexPath := filepath.Join(hlsDir, "index.m3u8")
	if _, err := os.Stat(indexPath); err != nil {
		return errors.Transcodef("hls generation did not produce %s", indexPath)
	}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return errors.WrapIO(err, "reading %s", indexPath)
	}
	if err := os.WriteFile(filepath.Join(hlsDir, "master.m3u8"), data, 0o644); err != nil {
		return errors.WrapIO(err, "writing master.m3u8")
	}
	return nil
}

// GenerateDASH purges and recreates dashDir, then invokes ffmpeg to produce a
// CMAF DASH ladder with a template+timeline manifest.
func GenerateDASH(ctx context.Context, jobID, sourcePath, dashDir string, renditions []media.Rendition, hasAudio bool) error {
	if err := recreateDir(dashDir); err != nil {
		return err
	}

	adaptationSets := "id=0,streams=v"
	if hasAudio {
		adaptationSets = "id=0,streams=v id=1,streams=a"
	}

	args := baseArgs(sourcePath, renditions, hasAudio)
	args = append(args,
		"-f", "dash",
		"-seg_duration", strconv.Itoa(segmentLength),
		"-use_template", "1",
		"-use_timeline", "1",
		"-streaming", "1",
		"-remove_at_exit", "0",
		"-init_seg_name", "init_$RepresentationID$.m4s",
		"-media_seg_name", "chunk_$RepresentationID$_$Number$.m4s",
		"-adaptation_sets", adaptationSets,
		filepath.Join(dashDir, "manifest.mpd"),
	)

	return runFFmpeg(ctx, jobID, args)
}

func recreateDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.WrapIO(err, "purging %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIO(err, "creating %s", dir)
	}
	return nil
}

func runFFmpeg(ctx context.Context, jobID string, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = nil
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.Error); ok {
			return errors.WrapDependency(err, "ffmpeg binary not available")
		}
		log.LogError(jobID, "segmenting ffmpeg invocation failed", err, "stderr", stderr.String())
		return errors.WrapTranscode(err, "ffmpeg segmenting failed")
	}
	return nil
}
