// Package delivery serves progressive video and HLS/DASH assets over HTTP,
// including single-range byte requests. It only serves files already on
// disk; lazy generation of derived manifests is done by the pipeline
// package's EnsureHLSReady/EnsureDASHReady before these functions run.
package delivery

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/livepeer/video-ingest/errors"
)

// ByteRange is an inclusive, bounds-checked [start, end] window into a file
// of the given total size.
type ByteRange struct {
	Start, End, Length int64
}

// ParseRange parses a "bytes=start-[end]" Range header value against
// fileSize. Multi-range requests and any other unit are rejected.
func ParseRange(raw string, fileSize int64) (ByteRange, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "bytes=") {
		return ByteRange{}, errors.Validationf("unsupported range unit")
	}
	spec := raw[len("bytes="):]
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return ByteRange{}, errors.Validationf("invalid range format")
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return ByteRange{}, errors.Validationf("range start must be numeric")
	}

	var end int64
	if parts[1] == "" {
		end = fileSize - 1
	} else {
		end, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ByteRange{}, errors.Validationf("range end must be numeric")
		}
	}

	if start > end || end >= fileSize {
		return ByteRange{}, errors.Validationf("invalid range bounds")
	}

	return ByteRange{Start: start, End: end, Length: end - start + 1}, nil
}

// ServeProgressive streams download.webm from path, honoring a single Range
// header when present.
func ServeProgressive(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundf("video not found under %s", path)
		}
		return errors.WrapIO(err, "opening %s", path)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.WrapIO(err, "statting %s", path)
	}
	fileSize := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "video/webm")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filepath.Base(path)))

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(fileSize, 10))
		w.WriteHeader(http.StatusOK)
		_, err := io.Copy(w, file)
		return err
	}

	byteRange, err := ParseRange(rangeHeader, fileSize)
	if err != nil {
		return err
	}
	if _, err := file.Seek(byteRange.Start, io.SeekStart); err != nil {
		return errors.WrapIO(err, "seeking %s", path)
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", byteRange.Start, byteRange.End, fileSize))
	w.Header().Set("Content-Length", strconv.FormatInt(byteRange.Length, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, err = io.CopyN(w, file, byteRange.Length)
	return err
}

// ValidateRelativePath rejects absolute paths and parent-directory escapes
// in an HLS/DASH asset path taken from a URL.
func ValidateRelativePath(relpath string) error {
	if strings.HasPrefix(relpath, "/") || strings.Contains(relpath, "..") {
		return errors.Validationf("invalid asset path")
	}
	return nil
}

// ServeStaticFile streams a single HLS/DASH asset, inferring its MIME type
// from the extension and defaulting .m3u8/.mpd when the stdlib table lacks
// them.
func ServeStaticFile(w http.ResponseWriter, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NotFoundf("asset not found: %s", path)
		}
		return errors.WrapIO(err, "opening %s", path)
	}
	defer file.Close()

	w.Header().Set("Content-Type", contentTypeFor(path))
	w.WriteHeader(http.StatusOK)
	_, err = io.Copy(w, file)
	return err
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mpd":
		return "application/dash+xml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
