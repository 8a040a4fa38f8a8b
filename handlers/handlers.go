// Package handlers wires the HTTP surface onto the pipeline driver, job
// store, and delivery layer: submission endpoints that kick off a
// background job, status polling, and artifact serving.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/video-ingest/cleanup"
	"github.com/livepeer/video-ingest/delivery"
	"github.com/livepeer/video-ingest/encoder"
	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/media"
	"github.com/livepeer/video-ingest/pipeline"
	"github.com/livepeer/video-ingest/storage"
)

const maxUploadBytes = 32 << 30 // 32 GiB, generous ceiling for a multipart form

// Collection bundles the dependencies every handler needs.
type Collection struct {
	Jobs    *jobstore.Store
	Layout  *storage.Layout
	Prober  media.Prober
	Cleanup cleanup.Config
}

// UploadResponse is returned by every submission endpoint.
type UploadResponse struct {
	ID              string `json:"id"`
	StatusURL       string `json:"status_url"`
	DownloadURL     string `json:"download_url"`
	HLSMasterURL    string `json:"hls_master_url"`
	DASHManifestURL string `json:"dash_manifest_url"`
}

// JobStatusResponse mirrors a jobstore.Snapshot over the wire.
type JobStatusResponse struct {
	ID                        string   `json:"id"`
	Stage                     string   `json:"stage"`
	Progress                  float64  `json:"progress"`
	StageProgress             float64  `json:"stage_progress"`
	CurrentStageIndex         int      `json:"current_stage_index,omitempty"`
	TotalStages               int      `json:"total_stages"`
	ElapsedSeconds            float64  `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
	Error                     string   `json:"error,omitempty"`
	StartedAtUnixMs           int64    `json:"started_at_unix_ms"`
	LastUpdateUnixMs          int64    `json:"last_update_unix_ms"`
}

func newUploadResponse(id uuid.UUID) UploadResponse {
	idStr := id.String()
	return UploadResponse{
		ID:              idStr,
		StatusURL:       "/jobs/" + idStr,
		DownloadURL:     "/videos/" + idStr + "/download",
		HLSMasterURL:    "/videos/" + idStr + "/hls/master.m3u8",
		DASHManifestURL: "/videos/" + idStr + "/dash/manifest.mpd",
	}
}

func snapshotResponse(snap jobstore.Snapshot) JobStatusResponse {
	return JobStatusResponse{
		ID:                        snap.ID,
		Stage:                     string(snap.Stage),
		Progress:                  snap.Progress,
		StageProgress:             snap.StageProgress,
		CurrentStageIndex:         snap.CurrentStageIndex,
		TotalStages:               snap.TotalStages,
		ElapsedSeconds:            snap.ElapsedSeconds,
		EstimatedRemainingSeconds: snap.EstimatedRemainingSeconds,
		Error:                     snap.Error,
		StartedAtUnixMs:           snap.StartedAtUnixMs,
		LastUpdateUnixMs:          snap.LastUpdateUnixMs,
	}
}

func (c *Collection) deps() pipeline.Deps {
	return pipeline.Deps{Jobs: c.Jobs, Layout: c.Layout, Prober: c.Prober, Cleanup: c.Cleanup}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.LogNoJobID("failed to write JSON response", "error", err)
	}
}

// Healthz reports liveness only; it does not probe dependencies.
func (c *Collection) Healthz() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		_, _ = io.WriteString(w, "ok")
	}
}

// UploadMultipart accepts a file field, streams it to the incoming path for
// a freshly minted job id, and starts the local-path driver.
func (c *Collection) UploadMultipart() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if !HasContentType(req, "multipart/form-data") {
			errors.WriteHTTPUnsupportedMediaType(w, "requires multipart/form-data content type")
			return
		}
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			errors.WriteHTTPError(w, errors.WrapValidation(err, "parsing multipart form"))
			return
		}
		file, _, err := req.FormFile("file")
		if err != nil {
			errors.WriteHTTPError(w, errors.WrapValidation(err, "reading file field"))
			return
		}
		defer file.Close()

		id := uuid.New()
		jobID := id.String()
		incoming := c.Layout.IncomingPath(id)
		if err := storage.EnsureParent(incoming); err != nil {
			errors.WriteHTTPError(w, err)
			return
		}

		c.Jobs.Create(jobID)
		c.Jobs.SetPlan(jobID, []jobstore.Stage{jobstore.StageUploading, jobstore.StageTranscoding, jobstore.StageFinalizing})
		c.Jobs.UpdateStage(jobID, jobstore.StageUploading)

		dest, err := os.Create(incoming)
		if err != nil {
			wrapped := errors.WrapIO(err, "creating %s", incoming)
			c.Jobs.Fail(jobID, wrapped.Error())
			errors.WriteHTTPError(w, wrapped)
			return
		}
		if _, err := io.Copy(dest, file); err != nil {
			_ = dest.Close()
			wrapped := errors.WrapIO(err, "writing upload to %s", incoming)
			c.Jobs.Fail(jobID, wrapped.Error())
			errors.WriteHTTPError(w, wrapped)
			return
		}
		if err := dest.Close(); err != nil {
			wrapped := errors.WrapIO(err, "closing %s", incoming)
			c.Jobs.Fail(jobID, wrapped.Error())
			errors.WriteHTTPError(w, wrapped)
			return
		}
		c.Jobs.UpdateProgress(jobID, 1)

		go pipeline.RunLocal(context.Background(), c.deps(), id, incoming, EncodeRequestFromQuery(req))

		writeJSON(w, newUploadResponse(id))
	}
}

// remoteSubmitRequest is the shared shape of /upload/remote and
// /download/yt-dlp.
type remoteSubmitRequest struct {
	URL       string `json:"url"`
	Transcode *struct {
		CRF     *int `json:"crf"`
		CPUUsed *int `json:"cpu_used"`
	} `json:"transcode,omitempty"`
}

func (r remoteSubmitRequest) toEncodeRequest() pipeline.EncodeRequest {
	params := encoder.DefaultParams()
	if r.Transcode != nil {
		if r.Transcode.CRF != nil {
			params.CRF = *r.Transcode.CRF
		}
		if r.Transcode.CPUUsed != nil {
			params.CPUUsed = *r.Transcode.CPUUsed
		}
	}
	return pipeline.EncodeRequest{Params: params}
}

func decodeRemoteSubmitRequest(req *http.Request, w http.ResponseWriter) (remoteSubmitRequest, bool) {
	var body remoteSubmitRequest
	if !HasContentType(req, "application/json") {
		errors.WriteHTTPUnsupportedMediaType(w, "requires application/json content type")
		return body, false
	}
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		errors.WriteHTTPError(w, errors.WrapIO(err, "reading request body"))
		return body, false
	}
	if err := validateAgainstSchema("SubmitRemote", payload); err != nil {
		errors.WriteHTTPError(w, err)
		return body, false
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		errors.WriteHTTPError(w, errors.WrapValidation(err, "invalid request payload"))
		return body, false
	}
	if body.URL == "" {
		errors.WriteHTTPError(w, errors.Validationf("url is required"))
		return body, false
	}
	return body, true
}

// UploadRemote submits a remote URL to be fetched over HTTP or aria2,
// depending on the scheme.
func (c *Collection) UploadRemote() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		body, ok := decodeRemoteSubmitRequest(req, w)
		if !ok {
			return
		}

		id := uuid.New()
		jobID := id.String()
		c.Jobs.Create(jobID)
		c.Jobs.SetPlan(jobID, []jobstore.Stage{jobstore.StageDownloading, jobstore.StageTranscoding, jobstore.StageFinalizing})
		log.AddContext(jobID, "source", body.URL)

		go pipeline.RunRemote(context.Background(), c.deps(), id, body.URL, body.toEncodeRequest())

		writeJSON(w, newUploadResponse(id))
	}
}

// DownloadYtDlp submits a remote URL to be fetched through the yt-dlp CLI.
func (c *Collection) DownloadYtDlp() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		body, ok := decodeRemoteSubmitRequest(req, w)
		if !ok {
			return
		}

		id := uuid.New()
		jobID := id.String()
		c.Jobs.Create(jobID)
		c.Jobs.SetPlan(jobID, []jobstore.Stage{jobstore.StageDownloading, jobstore.StageTranscoding, jobstore.StageFinalizing})
		log.AddContext(jobID, "source", body.URL)

		go pipeline.RunYtDlp(context.Background(), c.deps(), id, body.URL, body.toEncodeRequest())

		writeJSON(w, newUploadResponse(id))
	}
}

// JobStatus serves the current snapshot of a job.
func (c *Collection) JobStatus() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		id := ps.ByName("id")
		snap, ok := c.Jobs.Status(id)
		if !ok {
			errors.WriteHTTPError(w, errors.NotFoundf("unknown job id %s", id))
			return
		}
		writeJSON(w, snapshotResponse(snap))
	}
}

// DownloadVideo serves the progressive download.webm for a job, honoring a
// single Range header.
func (c *Collection) DownloadVideo() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		id, err := parseVideoID(ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		if err := delivery.ServeProgressive(w, req, c.Layout.DownloadPath(id)); err != nil {
			errors.WriteHTTPError(w, err)
		}
	}
}

// HLSAsset lazily generates the HLS ladder on first request, then serves
// the requested asset under the HLS directory.
func (c *Collection) HLSAsset() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		id, err := parseVideoID(ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		relpath := strings.TrimPrefix(ps.ByName("path"), "/")
		if err := delivery.ValidateRelativePath(relpath); err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		if err := pipeline.EnsureHLSReady(req.Context(), id.String(), c.Layout, id, c.Prober); err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		if err := delivery.ServeStaticFile(w, filepath.Join(c.Layout.HLSDir(id), relpath)); err != nil {
			errors.WriteHTTPError(w, err)
		}
	}
}

// DASHAsset is the DASH counterpart to HLSAsset.
func (c *Collection) DASHAsset() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		id, err := parseVideoID(ps.ByName("id"))
		if err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		relpath := strings.TrimPrefix(ps.ByName("path"), "/")
		if err := delivery.ValidateRelativePath(relpath); err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		if err := pipeline.EnsureDASHReady(req.Context(), id.String(), c.Layout, id, c.Prober); err != nil {
			errors.WriteHTTPError(w, err)
			return
		}
		if err := delivery.ServeStaticFile(w, filepath.Join(c.Layout.DASHDir(id), relpath)); err != nil {
			errors.WriteHTTPError(w, err)
		}
	}
}

func parseVideoID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, errors.WrapValidation(err, "invalid video id %q", raw)
	}
	return id, nil
}

// EncodeRequestFromQuery lets a multipart upload override crf/cpu_used via
// query parameters, since multipart bodies carry no JSON sidecar.
func EncodeRequestFromQuery(req *http.Request) pipeline.EncodeRequest {
	params := encoder.DefaultParams()
	if v := req.URL.Query().Get("crf"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			params.CRF = parsed
		}
	}
	if v := req.URL.Query().Get("cpu_used"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			params.CPUUsed = parsed
		}
	}
	return pipeline.EncodeRequest{Params: params}
}

// HasContentType reports whether req's Content-Type header matches
// mimetype, ignoring parameters. A request can list multiple comma
// separated media types; any match wins.
func HasContentType(r *http.Request, mimetype string) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		return mimetype == "application/octet-stream"
	}
	for _, v := range strings.Split(contentType, ",") {
		t, _, err := mime.ParseMediaType(v)
		if err != nil {
			break
		}
		if t == mimetype {
			return true
		}
	}
	return false
}
