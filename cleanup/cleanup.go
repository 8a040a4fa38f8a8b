// Package cleanup frees disk space by pruning derived HLS/DASH artifacts of
// completed or failed jobs, oldest first, when the storage root is running
// low on room for the next job.
package cleanup

import (
	"sort"

	"github.com/google/uuid"
	"github.com/livepeer/video-ingest/config"
	"github.com/livepeer/video-ingest/errors"
	"github.com/livepeer/video-ingest/jobstore"
	"github.com/livepeer/video-ingest/log"
	"github.com/livepeer/video-ingest/metrics"
	"github.com/livepeer/video-ingest/storage"
	"github.com/shirou/gopsutil/v3/disk"
)

// Config mirrors the tunables in config.go, read once per call so tests can
// pass fixed values without mutating globals.
type Config struct {
	MinFreeBytes uint64
	MinFreeRatio float64
	MaxBatch     int
}

// FromGlobalConfig snapshots the current package-level config vars.
func FromGlobalConfig() Config {
	return Config{
		MinFreeBytes: config.MinFreeBytes,
		MinFreeRatio: config.MinFreeRatio,
		MaxBatch:     config.CleanupBatch,
	}
}

// diskStater is the narrow disk-usage surface, overridable in tests.
type diskStater func(path string) (free, total uint64, err error)

func gopsutilDiskStat(path string) (free, total uint64, err error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, 0, errors.WrapIO(err, "querying disk usage for %s", path)
	}
	return usage.Free, usage.Total, nil
}

// EnsureCapacity is triggered at the start of every pipeline run. It prunes
// derived artifacts of the oldest completed/failed jobs until the storage
// root clears the configured free-space thresholds or MaxBatch is reached.
func EnsureCapacity(jobID string, layout *storage.Layout, jobs *jobstore.Store, cfg Config) error {
	return ensureCapacity(jobID, layout, jobs, cfg, gopsutilDiskStat)
}

func ensureCapacity(jobID string, layout *storage.Layout, jobs *jobstore.Store, cfg Config, stat diskStater) error {
	ok, err := withinBudget(layout.RootDir(), cfg, stat)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	all := jobs.List()
	active := map[string]struct{}{}
	var candidates []jobstore.Snapshot
	for _, snap := range all {
		if snap.Stage == jobstore.StageComplete || snap.Stage == jobstore.StageFailed {
			candidates = append(candidates, snap)
		} else {
			active[snap.ID] = struct{}{}
		}
	}

	if len(candidates) == 0 {
		log.Log(jobID, "storage cleanup requested but no completed jobs available to prune")
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastUpdateUnixMs < candidates[j].LastUpdateUnixMs
	})

	pruned := 0
	for _, candidate := range candidates {
		if pruned >= cfg.MaxBatch {
			break
		}
		if _, isActive := active[candidate.ID]; isActive {
			continue
		}

		id, err := uuid.Parse(candidate.ID)
		if err != nil {
			continue
		}
		didPrune, err := layout.PruneTranscodes(id)
		if err != nil {
			return err
		}
		if didPrune {
			pruned++
			metrics.Metrics.CleanupPrunes.Inc()
			log.Log(jobID, "pruned derived renditions during cleanup", "pruned_job", candidate.ID)
		}

		ok, err := withinBudget(layout.RootDir(), cfg, stat)
		if err != nil {
			return err
		}
		if ok {
			break
		}
	}

	return nil
}

func withinBudget(root string, cfg Config, stat diskStater) (bool, error) {
	free, total, err := stat(root)
	if err != nil {
		return false, err
	}
	freeRatio := 1.0
	if total > 0 {
		freeRatio = float64(free) / float64(total)
	}
	return free >= cfg.MinFreeBytes && freeRatio >= cfg.MinFreeRatio, nil
}
