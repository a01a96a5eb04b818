package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/testutil"
)

func TestFindFilesByExtension(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"b.hcl":            "",
		"a/main.hcl":       "",
		"a/notes.txt":      "",
		".vgprep/x.hcl":    "",
		"a/.hidden/y.hcl":  "",
		"c/d/e/nested.hcl": "",
	})

	files, err := FindFilesByExtension(root, ".hcl")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "main.hcl"),
		filepath.Join(root, "b.hcl"),
		filepath.Join(root, "c", "d", "e", "nested.hcl"),
	}, files)
}

func TestFindFilesByExtension_MissingRoot(t *testing.T) {
	_, err := FindFilesByExtension(filepath.Join(t.TempDir(), "nope"), ".hcl")
	require.Error(t, err)
}

func TestFindFilesByExtension_PanicsOnEmptyExtension(t *testing.T) {
	assert.Panics(t, func() { _, _ = FindFilesByExtension(t.TempDir(), "") })
}
