package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, StatusFor(KindValidation))
	require.Equal(t, http.StatusNotFound, StatusFor(KindNotFound))
	require.Equal(t, http.StatusServiceUnavailable, StatusFor(KindDependency))
	require.Equal(t, http.StatusInternalServerError, StatusFor(KindTranscode))
	require.Equal(t, http.StatusInternalServerError, StatusFor(KindIO))
	require.Equal(t, http.StatusInternalServerError, StatusFor(KindHTTP))
}

func TestKindOfUnwrapsThroughFmtErrorf(t *testing.T) {
	base := NotFoundf("job %s not found", "abc")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, KindNotFound, kind)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("boom"))
	require.False(t, ok)
}

func TestWriteHTTPErrorUsesKindStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, WrapDependency(errors.New("not on PATH"), "ffmpeg missing"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "ffmpeg missing")
	require.Contains(t, rec.Body.String(), "not on PATH")
}

func TestWriteHTTPErrorDefaultsToInternalServerError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteHTTPError(rec, errors.New("something unexpected"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
