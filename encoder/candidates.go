package encoder

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/livepeer/video-ingest/config"
)

// Kind identifies one of the AV1 encoder backends this orchestrator knows
// how to drive.
type Kind string

const (
	KindVideoToolboxAV1 Kind = "videotoolbox_av1"
	KindNvencAV1        Kind = "nvenc_av1"
	KindQSVAV1          Kind = "qsv_av1"
	KindVaapiAV1        Kind = "vaapi_av1"
	KindSoftwareAV1     Kind = "software_av1"
)

// Params are the user-tunable encode knobs, clamped to their valid ranges.
// Backend selection itself is driven by the explicit Kind argument threaded
// through EncodeRequest, not by a field here.
type Params struct {
	CRF     int
	CPUUsed int
}

func (p Params) sanitized() Params {
	p.CRF = clampInt(p.CRF, 0, 63)
	p.CPUUsed = clampInt(p.CPUUsed, 0, 8)
	return p
}

// DefaultParams returns the baseline encode knobs: crf=24, cpu_used=4.
func DefaultParams() Params {
	return Params{CRF: 24, CPUUsed: 4}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func encoderFromEnv() (Kind, bool) {
	switch strings.ToLower(config.PreferredEncoder) {
	case "videotoolbox", "vt":
		return KindVideoToolboxAV1, true
	case "nvenc", "cuda":
		return KindNvencAV1, true
	case "qsv", "quicksync":
		return KindQSVAV1, true
	case "vaapi":
		return KindVaapiAV1, true
	case "software", "cpu":
		return KindSoftwareAV1, true
	default:
		return "", false
	}
}

// Candidates builds the ordered list of encoder backends to try, deduplicated
// while preserving first occurrence so a backend named twice doesn't get
// silently reordered.
func Candidates(explicit Kind) []Kind {
	var order []Kind
	if explicit != "" {
		order = append(order, explicit)
	} else if kind, ok := encoderFromEnv(); ok {
		order = append(order, kind)
	} else {
		switch runtime.GOOS {
		case "darwin":
			order = append(order, KindVideoToolboxAV1)
		case "windows":
			order = append(order, KindNvencAV1, KindQSVAV1)
		case "linux":
			order = append(order, KindVaapiAV1, KindNvencAV1)
		}
	}
	order = append(order, KindSoftwareAV1)
	return dedupPreserveOrder(order)
}

func dedupPreserveOrder(kinds []Kind) []Kind {
	seen := make(map[Kind]struct{}, len(kinds))
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ArgsFor builds the encoder-specific ffmpeg argument fragment for a
// candidate backend.
func ArgsFor(kind Kind, p Params) []string {
	p = p.sanitized()
	crf := strconv.Itoa(p.CRF)
	cpuUsed := strconv.Itoa(p.CPUUsed)

	switch kind {
	case KindVideoToolboxAV1:
		return []string{"-c:v", "av1_videotoolbox", "-q:v", crf, "-pix_fmt", "yuv420p"}
	case KindNvencAV1:
		cq := strconv.Itoa(clampInt(p.CRF, 0, 51))
		return []string{
			"-hwaccel", "cuda", "-hwaccel_output_format", "cuda",
			"-c:v", "av1_nvenc", "-preset", "p5", "-cq", cq, "-pix_fmt", "yuv420p",
		}
	case KindQSVAV1:
		return []string{"-hwaccel", "qsv", "-c:v", "av1_qsv", "-global_quality", crf, "-pix_fmt", "yuv420p"}
	case KindVaapiAV1:
		device := config.VAAPIDevice
		return []string{
			"-hwaccel", "vaapi", "-hwaccel_device", device, "-hwaccel_output_format", "vaapi",
			"-vf", "format=nv12,hwupload", "-c:v", "av1_vaapi", "-qp", crf,
		}
	case KindSoftwareAV1:
		return []string{
			"-c:v", "libaom-av1", "-crf", crf, "-b:v", "0",
			"-g", "120", "-cpu-used", cpuUsed, "-pix_fmt", "yuv420p",
		}
	default:
		panic(fmt.Sprintf("unknown encoder candidate %q", kind))
	}
}
