package encoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/progress"
)

const (
	progressEpsilon     = 0.005
	maxProgressInterval = 3 * time.Second
	progressLogInterval = 10 * time.Second
)

// ProgressSink is the narrow job-store surface the stderr monitor reports
// through, so it can be tested without a real job store.
type ProgressSink interface {
	UpdateProgress(jobID string, ratio float64)
	UpdateStageETA(jobID string, eta *float64)
}

type ffmpegMetrics struct {
	timeSeconds float64
	speed       float64
	hasSpeed    bool
}

// monitorStderr throttles progress updates: a ratio update is pushed when
// it has moved at least progressEpsilon or
// maxProgressInterval has elapsed; a human log line is emitted at most every
// progressLogInterval, or unconditionally once progress nears completion.
// last_reported never decreases, guarding against multi-pass rewinds.
func monitorStderr(r io.Reader, jobID string, totalSeconds float64, sink ProgressSink) {
	var lastReported float64
	lastUpdate := progress.Clock.Now()
	lastLog := progress.Clock.Now()

	forEachLine(r, func(line string) {
		processLine(line, jobID, totalSeconds, sink, &lastReported, &lastUpdate, &lastLog)
	})

	if lastReported < 1.0-progressEpsilon {
		sink.UpdateProgress(jobID, 1.0)
	}
	zero := 0.0
	sink.UpdateStageETA(jobID, &zero)
}

// drainStderr is used when total duration is unknown: log lines, no
// progress tracking.
func drainStderr(r io.Reader, jobID string) {
	forEachLine(r, func(line string) {
		log.Log(jobID, "ffmpeg", "line", line)
	})
}

// forEachLine splits a byte stream on '\r' or '\n' (ffmpeg rewrites its
// progress line with bare '\r'), collapsing runs of consecutive delimiters
// and surfacing any trailing partial line once the stream closes.
func forEachLine(r io.Reader, fn func(line string)) {
	reader := bufio.NewReader(r)
	var buf []byte
	chunk := make([]byte, 4096)

	flushComplete := func() {
		for {
			idx := indexAny(buf, '\r', '\n')
			if idx < 0 {
				return
			}
			line := strings.TrimRight(string(buf[:idx]), "\r\n")
			rest := idx + 1
			for rest < len(buf) && (buf[rest] == '\r' || buf[rest] == '\n') {
				rest++
			}
			buf = buf[rest:]
			if line != "" {
				fn(line)
			}
		}
	}

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			flushComplete()
		}
		if err != nil {
			break
		}
	}

	if trimmed := strings.TrimSpace(string(buf)); trimmed != "" {
		fn(trimmed)
	}
}

func indexAny(buf []byte, a, b byte) int {
	for i, c := range buf {
		if c == a || c == b {
			return i
		}
	}
	return -1
}

func processLine(line, jobID string, totalSeconds float64, sink ProgressSink, lastReported *float64, lastUpdate, lastLog *time.Time) {
	log.Log(jobID, "ffmpeg", "line", line)

	metrics, ok := parseFFmpegMetrics(line)
	if !ok || totalSeconds <= 0 {
		return
	}

	ratio := clamp01(metrics.timeSeconds / totalSeconds)
	if ratio < *lastReported {
		return
	}

	if metrics.timeSeconds > 0 && metrics.hasSpeed && metrics.speed > 0 {
		eta := maxFloat(totalSeconds-metrics.timeSeconds, 0) / metrics.speed
		sink.UpdateStageETA(jobID, &eta)
	}

	now := progress.Clock.Now()
	delta := ratio - *lastReported
	if delta >= progressEpsilon || now.Sub(*lastUpdate) >= maxProgressInterval {
		sink.UpdateProgress(jobID, ratio)
		*lastReported = ratio
		*lastUpdate = now
	}

	if now.Sub(*lastLog) >= progressLogInterval || (1.0-ratio) <= progressEpsilon {
		if metrics.hasSpeed {
			log.Log(jobID, "ffmpeg progress", "progress", ratio, "speed", metrics.speed)
		} else {
			log.Log(jobID, "ffmpeg progress", "progress", ratio)
		}
		*lastLog = now
	}
}

func parseFFmpegMetrics(line string) (ffmpegMetrics, bool) {
	timeToken, ok := extractToken(line, "time=", isTimecodeChar)
	if !ok {
		return ffmpegMetrics{}, false
	}
	seconds, ok := parseTimecode(timeToken)
	if !ok {
		return ffmpegMetrics{}, false
	}

	metrics := ffmpegMetrics{timeSeconds: seconds}
	if speedToken, ok := extractToken(line, "speed=", isSpeedChar); ok {
		if speed, ok := parseSpeed(speedToken); ok {
			metrics.speed = speed
			metrics.hasSpeed = true
		}
	}
	return metrics, true
}

func isTimecodeChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == ':' || c == '.'
}

func isSpeedChar(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'x' || c == 'X' || c == 'N' || c == 'A' || c == '/'
}

func extractToken(line, needle string, allowed func(byte) bool) (string, bool) {
	idx := strings.Index(line, needle)
	if idx < 0 {
		return "", false
	}
	rest := line[idx+len(needle):]
	end := 0
	for end < len(rest) && allowed(rest[end]) {
		end++
	}
	if end == 0 {
		return "", false
	}
	return rest[:end], true
}

func parseTimecode(value string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return hours*3600 + minutes*60 + seconds, true
}

func parseSpeed(value string) (float64, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || strings.EqualFold(trimmed, "N/A") {
		return 0, false
	}
	trimmed = strings.TrimRight(trimmed, "xX")
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
