package main

import (
	"flag"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/livepeer/video-ingest/cleanup"
	"github.com/livepeer/video-ingest/config"
	"github.com/livepeer/video-ingest/handlers"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/media"
	"github.com/livepeer/video-ingest/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	addr := flag.String("addr", "", "Address to listen on, overrides VIDEO_SERVER_ADDR when set")
	flag.Parse()

	config.Load()
	if *addr != "" {
		config.Addr = *addr
	}

	layout, err := storage.Initialize(config.StorageDir)
	if err != nil {
		log.LogNoJobID("failed to initialize storage layout", "error", err)
		return
	}

	router := StartVideoIngestRouter(jobstore.New(), layout)

	log.LogNoJobID("starting video-ingest server", "version", config.Version, "addr", config.Addr)
	if err := http.ListenAndServe(config.Addr, router); err != nil {
		log.LogNoJobID("http server exited", "error", err)
	}
}

// StartVideoIngestRouter builds a fresh handler collection and registers
// its routes, split out from main so tests can exercise it without binding
// a real port.
func StartVideoIngestRouter(jobs *jobstore.Store, layout *storage.Layout) *httprouter.Router {
	collection := &handlers.Collection{
		Jobs:    jobs,
		Layout:  layout,
		Prober:  media.FFProbe{},
		Cleanup: cleanup.FromGlobalConfig(),
	}

	router := httprouter.New()
	router.GET("/healthz", collection.Healthz())
	router.POST("/upload/multipart", collection.UploadMultipart())
	router.POST("/upload/remote", collection.UploadRemote())
	router.POST("/download/yt-dlp", collection.DownloadYtDlp())
	router.GET("/jobs/:id", collection.JobStatus())
	router.GET("/videos/:id", collection.DownloadVideo())
	router.GET("/videos/:id/download", collection.DownloadVideo())
	router.GET("/videos/:id/hls/*path", collection.HLSAsset())
	router.GET("/videos/:id/dash/*path", collection.DASHAsset())
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	return router
}
