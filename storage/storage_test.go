package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInitializeCreatesTopLevelDirs(t *testing.T) {
	root := t.TempDir()
	l, err := Initialize(root)
	require.NoError(t, err)

	require.DirExists(t, filepath.Join(root, "videos"))
	require.DirExists(t, l.LibsDir())
	require.DirExists(t, l.TmpDir())
}

func TestIncomingPathUsesSimpleUUIDForm(t *testing.T) {
	root := t.TempDir()
	l, err := Initialize(root)
	require.NoError(t, err)

	id := uuid.New()
	path := l.IncomingPath(id)
	require.Equal(t, strings.ReplaceAll(id.String(), "-", "")+".incoming", filepath.Base(path))
}

func TestVideoDirUsesHyphenatedUUIDForm(t *testing.T) {
	root := t.TempDir()
	l, err := Initialize(root)
	require.NoError(t, err)

	id := uuid.New()
	require.True(t, strings.HasSuffix(l.VideoDir(id), id.String()))
	require.True(t, strings.HasSuffix(l.DownloadPath(id), "download.webm"))
}

func TestPruneTranscodesRemovesHLSAndDASH(t *testing.T) {
	root := t.TempDir()
	l, err := Initialize(root)
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, EnsureDir(filepath.Join(l.HLSDir(id), "720p")))
	require.NoError(t, EnsureDir(l.DASHDir(id)))

	pruned, err := l.PruneTranscodes(id)
	require.NoError(t, err)
	require.True(t, pruned)
	require.NoDirExists(t, l.HLSDir(id))
	require.NoDirExists(t, l.DASHDir(id))
}

func TestPruneTranscodesNoopOnMissingDirs(t *testing.T) {
	root := t.TempDir()
	l, err := Initialize(root)
	require.NoError(t, err)

	pruned, err := l.PruneTranscodes(uuid.New())
	require.NoError(t, err)
	require.False(t, pruned)
}

func TestEnsureParentCreatesParentOnly(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a", "b", "file.txt")
	require.NoError(t, EnsureParent(target))
	require.DirExists(t, filepath.Join(root, "a", "b"))
	_, err := os.Stat(target)
	require.True(t, os.IsNotExist(err))
}
