package http_client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client, err := Create(context.Background(), &Input{Timeout: "5s", UserAgent: "vgprep-test"})
	require.NoError(t, err)
	defer Destroy(client)
	assert.Equal(t, 5*time.Second, client.Timeout)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "vgprep-test", got)
}

func TestCreate_Defaults(t *testing.T) {
	client, err := Create(context.Background(), &Input{})
	require.NoError(t, err)
	assert.Zero(t, client.Timeout)
	assert.NoError(t, Destroy(client))
}

func TestCreate_InvalidTimeout(t *testing.T) {
	_, err := Create(context.Background(), &Input{Timeout: "soon"})
	assert.Error(t, err)
}
