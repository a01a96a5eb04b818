package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/testutil"
)

func TestOnRunEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "VisualGenome")

	out, err := OnRunEnsureDir(context.Background(), &EnsureDirInput{Path: path})
	require.NoError(t, err)
	assert.DirExists(t, path)
	assert.Equal(t, path, out.GetAttr("path").AsString())

	// Running again on an existing directory is fine.
	_, err = OnRunEnsureDir(context.Background(), &EnsureDirInput{Path: path})
	require.NoError(t, err)

	_, err = OnRunEnsureDir(context.Background(), &EnsureDirInput{})
	assert.Error(t, err)
}

func TestOnRunMergeDir(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"VG_100K/1.jpg":     "one",
		"VG_100K/2.jpg":     "old",
		"VG_100K_2/2.jpg":   "new",
		"VG_100K_2/3.jpg":   "three",
		"VG_100K_2/sub/4.x": "four",
	})
	from := filepath.Join(root, "VG_100K_2")
	into := filepath.Join(root, "VG_100K")

	out, err := OnRunMergeDir(context.Background(), &MergeDirInput{From: from, Into: into})
	require.NoError(t, err)

	moved, _ := out.GetAttr("moved").AsBigFloat().Int64()
	assert.EqualValues(t, 3, moved)
	assert.NoDirExists(t, from)

	for name, want := range map[string]string{"1.jpg": "one", "2.jpg": "new", "3.jpg": "three", "sub/4.x": "four"} {
		got, err := os.ReadFile(filepath.Join(into, name))
		require.NoError(t, err, name)
		assert.Equal(t, want, string(got), name)
	}
}

func TestOnRunMergeDir_KeepSource(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"a/x": "x"})
	keep := false

	_, err := OnRunMergeDir(context.Background(), &MergeDirInput{
		From:         filepath.Join(root, "a"),
		Into:         filepath.Join(root, "b"),
		RemoveSource: &keep,
	})
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(root, "a"))
	assert.FileExists(t, filepath.Join(root, "b", "x"))
}

func TestOnRunMergeDir_MissingSource(t *testing.T) {
	root := t.TempDir()
	out, err := OnRunMergeDir(context.Background(), &MergeDirInput{
		From: filepath.Join(root, "missing"),
		Into: filepath.Join(root, "into"),
	})
	require.NoError(t, err)
	moved, _ := out.GetAttr("moved").AsBigFloat().Int64()
	assert.Zero(t, moved)
}

func TestOnRunRemove(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"gone/a/b.txt": "b"})

	_, err := OnRunRemove(context.Background(), &RemoveInput{Path: filepath.Join(root, "gone")})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root, "gone"))

	// Removing a missing path succeeds.
	_, err = OnRunRemove(context.Background(), &RemoveInput{Path: filepath.Join(root, "gone")})
	require.NoError(t, err)
}
