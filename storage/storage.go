// Package storage computes the deterministic on-disk layout for job
// artifacts and manages directory lifecycle. No index is persisted: every
// path is a pure function of the job id and the fixed root.
package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/livepeer/video-ingest/errors"
)

// Layout is the initialized root of the storage tree.
type Layout struct {
	root      string
	videosDir string
	tmpDir    string
	libsDir   string
}

// Initialize creates the fixed top-level directories: videos and libs under
// root, and the incoming directory under the system temp subdirectory.
func Initialize(root string) (*Layout, error) {
	l := &Layout{
		root:      root,
		videosDir: filepath.Join(root, "videos"),
		tmpDir:    filepath.Join(os.TempDir(), "video-ingest"),
		libsDir:   filepath.Join(root, "libs"),
	}
	for _, dir := range []string{l.videosDir, l.tmpDir, l.libsDir, filepath.Join(l.tmpDir, "incoming")} {
		if err := EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// IncomingPath is the partial-upload/download destination for a job, named
// with the id's simple (no-hyphen) form.
func (l *Layout) IncomingPath(id uuid.UUID) string {
	simple := strings.ReplaceAll(id.String(), "-", "")
	return filepath.Join(l.tmpDir, "incoming", simple+".incoming")
}

// VideoDir is the per-job root, named with the id's hyphenated form.
func (l *Layout) VideoDir(id uuid.UUID) string {
	return filepath.Join(l.videosDir, id.String())
}

// DownloadPath is the progressive output for a job.
func (l *Layout) DownloadPath(id uuid.UUID) string {
	return filepath.Join(l.VideoDir(id), "download.webm")
}

// HLSDir is the HLS output directory for a job.
func (l *Layout) HLSDir(id uuid.UUID) string {
	return filepath.Join(l.tmpDir, "hls", id.String())
}

// DASHDir is the DASH output directory for a job.
func (l *Layout) DASHDir(id uuid.UUID) string {
	return filepath.Join(l.tmpDir, "dash", id.String())
}

// TmpDir is the system temp subdirectory used for incoming transfers.
func (l *Layout) TmpDir() string {
	return l.tmpDir
}

// LibsDir is the optional cache of tool binaries.
func (l *Layout) LibsDir() string {
	return l.libsDir
}

// RootDir is the configured storage root.
func (l *Layout) RootDir() string {
	return l.root
}

// PruneTranscodes removes a job's HLS and DASH subtrees, reporting whether
// anything was actually removed. Missing directories are not an error.
func (l *Layout) PruneTranscodes(id uuid.UUID) (bool, error) {
	pruned := false
	for _, dir := range []string{l.HLSDir(id), l.DASHDir(id)} {
		existed, err := removeIfExists(dir)
		if err != nil {
			return pruned, err
		}
		pruned = pruned || existed
	}
	return pruned, nil
}

func removeIfExists(dir string) (bool, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WrapIO(err, "statting %s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, errors.WrapIO(err, "removing %s", dir)
	}
	return true, nil
}

// EnsureDir creates dir (and parents) if it doesn't already exist.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIO(err, "creating %s", dir)
	}
	return nil
}

// EnsureParent creates path's parent directory if it doesn't already exist.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}
