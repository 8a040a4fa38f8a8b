package delivery

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRangeOpenEnded(t *testing.T) {
	r, err := ParseRange("bytes=10-", 100)
	require.NoError(t, err)
	require.Equal(t, ByteRange{Start: 10, End: 99, Length: 90}, r)
}

func TestParseRangeClosed(t *testing.T) {
	r, err := ParseRange("bytes=10-19", 100)
	require.NoError(t, err)
	require.Equal(t, ByteRange{Start: 10, End: 19, Length: 10}, r)
}

func TestParseRangeRejectsOutOfBounds(t *testing.T) {
	_, err := ParseRange("bytes=10-200", 100)
	require.Error(t, err)
}

func TestParseRangeRejectsStartAfterEnd(t *testing.T) {
	_, err := ParseRange("bytes=50-10", 100)
	require.Error(t, err)
}

func TestParseRangeRejectsNonByteUnit(t *testing.T) {
	_, err := ParseRange("items=0-1", 100)
	require.Error(t, err)
}

func TestValidateRelativePathRejectsAbsoluteAndTraversal(t *testing.T) {
	require.Error(t, ValidateRelativePath("/etc/passwd"))
	require.Error(t, ValidateRelativePath("../secret"))
	require.NoError(t, ValidateRelativePath("stream_0.m3u8"))
}

func TestServeProgressiveFullBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "download.webm")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/videos/x/download", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, ServeProgressive(rec, req, path))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	require.Equal(t, "0123456789", rec.Body.String())
}

func TestServeProgressiveRangeRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "download.webm")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/videos/x/download", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	require.NoError(t, ServeProgressive(rec, req, path))

	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
	require.Equal(t, "234", rec.Body.String())
}

func TestServeProgressiveMissingFile(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/videos/x/download", nil)
	rec := httptest.NewRecorder()
	err := ServeProgressive(rec, req, "/nonexistent/download.webm")
	require.Error(t, err)
}

func TestContentTypeForDefaultsM3U8AndMPD(t *testing.T) {
	require.Equal(t, "application/vnd.apple.mpegurl", contentTypeFor("stream_0.m3u8"))
	require.Equal(t, "application/dash+xml", contentTypeFor("manifest.mpd"))
}

func TestServeStaticFileSetsContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.m3u8")
	require.NoError(t, os.WriteFile(path, []byte("#EXTM3U"), 0o644))

	rec := httptest.NewRecorder()
	require.NoError(t, ServeStaticFile(rec, path))
	require.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	require.Equal(t, "#EXTM3U", rec.Body.String())
}
