package fetch_pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/vgprep/internal/app"
	"github.com/vk/vgprep/internal/cli"
	"github.com/vk/vgprep/internal/testutil"
)

const relationshipsJSON = `[
  {"image_id": 1, "relationships": [
    {"relationship_id": 10, "predicate": "on",
     "subject": {"object_id": 1, "x": 0, "y": 0, "w": 10, "h": 10, "name": "cup"},
     "object":  {"object_id": 2, "x": 0, "y": 5, "w": 20, "h": 10, "name": "table"}},
    {"relationship_id": 11, "predicate": "has",
     "subject": {"object_id": 3, "x": 1, "y": 1, "w": 8, "h": 8, "name": "man"},
     "object":  {"object_id": 4, "x": 2, "y": 2, "w": 3, "h": 3, "name": "hat"}}
  ]},
  {"image_id": 2, "relationships": [
    {"relationship_id": 12, "predicate": "on top of",
     "subject": {"object_id": 5, "x": 0, "y": 0, "w": 5, "h": 5, "name": "book"},
     "object":  {"object_id": 6, "x": 0, "y": 0, "w": 9, "h": 9, "name": "desk"}}
  ]}
]`

// datasetServer serves a miniature VisualGenome mirror and counts requests
// per path.
type datasetServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
	broken   map[string]bool
}

func newDatasetServer(t *testing.T, broken ...string) *datasetServer {
	t.Helper()
	root := t.TempDir()

	testutil.WriteZip(t, filepath.Join(root, "metadata", "image_data.json.zip"), map[string]string{
		"image_data.json": `[{"image_id": 1}, {"image_id": 2}]`,
	})
	testutil.WriteZip(t, filepath.Join(root, "metadata", "objects.json.zip"), map[string]string{
		"objects.json": `[]`,
	})
	testutil.WriteZip(t, filepath.Join(root, "metadata", "relationships.json.zip"), map[string]string{
		"relationships.json": relationshipsJSON,
	})
	testutil.WriteFiles(t, root, map[string]string{
		"metadata/object_alias.txt":       "cup,mug\ntable,desk\n",
		"metadata/relationship_alias.txt": "on,on top of\n",
	})
	testutil.WriteZip(t, filepath.Join(root, "images", "VG_100K_2", "images.zip"), map[string]string{
		"VG_100K/":      "",
		"VG_100K/1.jpg": "jpeg-1",
	})
	testutil.WriteZip(t, filepath.Join(root, "images", "VG_100K_2", "images2.zip"), map[string]string{
		"VG_100K_2/":      "",
		"VG_100K_2/2.jpg": "jpeg-2",
	})

	s := &datasetServer{requests: map[string]int{}, broken: map[string]bool{}}
	for _, p := range broken {
		s.broken[p] = true
	}
	files := http.FileServer(http.Dir(root))
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests[r.URL.Path]++
		broken := s.broken[r.URL.Path]
		s.mu.Unlock()
		if broken {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *datasetServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

func (s *datasetServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// runCLI parses args the way the binary does and runs the resulting app.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg, exit, err := cli.Parse(args, &testutil.SafeBuffer{})
	require.NoError(t, err)
	require.False(t, exit)

	out := &testutil.SafeBuffer{}
	logs := &testutil.SafeBuffer{}
	err = app.NewApp(out, logs, cfg).Run(context.Background())
	if err != nil {
		t.Logf("logs:\n%s", logs.String())
	}
	return out.String(), err
}

func fetchArgs(s *datasetServer, dataDir string, extra ...string) []string {
	args := []string{
		"fetch",
		"--data-dir", dataDir,
		"--workers", "4",
		"--var", "metadata_base_url=" + s.URL + "/metadata",
		"--var", "images_base_url=" + s.URL + "/images",
	}
	return append(args, extra...)
}
