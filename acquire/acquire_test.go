package acquire

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldUseAria2Magnet(t *testing.T) {
	require.True(t, ShouldUseAria2("magnet:?xt=urn:btih:abc123"))
}

func TestShouldUseAria2Torrent(t *testing.T) {
	require.True(t, ShouldUseAria2("https://example.com/file.TORRENT"))
}

func TestShouldUseAria2FTPScheme(t *testing.T) {
	require.True(t, ShouldUseAria2("ftp://example.com/file.mp4"))
	require.True(t, ShouldUseAria2("p2p://example.com/file.mp4"))
}

func TestShouldUseAria2FalseForPlainHTTP(t *testing.T) {
	require.False(t, ShouldUseAria2("https://example.com/video.mp4"))
}

type recordingSink struct {
	ratios []float64
}

func (r *recordingSink) UpdateProgress(jobID string, ratio float64) {
	r.ratios = append(r.ratios, ratio)
}

func TestAcquireHTTPStreamsBodyAndReportsProgress(t *testing.T) {
	body := []byte("some video bytes, pretend this is bigger")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = io.Copy(w, io.NopCloser(newSlowReader(body)))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "incoming", "video.incoming")
	sink := &recordingSink{}
	err := AcquireHTTP(context.Background(), "job-1", srv.URL, dest, sink)
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, body, got)
	require.NotEmpty(t, sink.ratios)
	require.Equal(t, 1.0, sink.ratios[len(sink.ratios)-1])
}

func TestAcquireHTTPRetriesTransientServerError(t *testing.T) {
	body := []byte("eventually served")
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "video.incoming")
	err := AcquireHTTP(context.Background(), "job-1", srv.URL, dest, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&hits))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, body, got)
}

func TestAcquireHTTPFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "video.incoming")
	err := AcquireHTTP(context.Background(), "job-1", srv.URL, dest, nil)
	require.Error(t, err)
}

func TestLastNonEmptyLine(t *testing.T) {
	require.Equal(t, "/tmp/foo.mp4", lastNonEmptyLine("some log\n/tmp/foo.mp4\n\n"))
	require.Equal(t, "", lastNonEmptyLine("\n\n"))
}

func TestDiffSnapshots(t *testing.T) {
	before := map[string]struct{}{"a": {}}
	after := map[string]struct{}{"a": {}, "b": {}}
	require.Equal(t, []string{"b"}, diffSnapshots(before, after))
}

type slowReader struct {
	data []byte
	pos  int
}

func newSlowReader(data []byte) *slowReader {
	return &slowReader{data: data}
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}
