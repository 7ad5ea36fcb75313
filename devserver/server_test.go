package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/hotswap/internal/testutil"
	"github.com/GoCodeAlone/hotswap/transport"
)

func publishFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	pub, err := transport.NewPublisher(dir)
	require.NoError(t, err)
	_, err = pub.Publish(&transport.Update{
		Runtime:      "main",
		PreviousHash: "h0",
		Hash:         "h1",
		Chunks: []*transport.Chunk{{
			ID:      "main",
			Modules: map[string]transport.ModuleSource{"./a": {Version: "2"}},
		}},
	})
	require.NoError(t, err)
	return dir
}

func TestServer(t *testing.T) {
	dir := publishFixture(t)
	logger := &testutil.Logger{}
	srv := httptest.NewServer(New(dir, logger).Handler())
	t.Cleanup(srv.Close)

	t.Run("should_serve_published_updates_to_http_transport", func(t *testing.T) {
		tr, err := transport.NewHTTPTransport(srv.URL)
		require.NoError(t, err)

		m, err := tr.FetchManifest(context.Background(), "main", "h0")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "h1", m.Hash)
		assert.Equal(t, []string{"main"}, m.Chunks)

		chunk, err := tr.FetchChunk(context.Background(), "main", "h0")
		require.NoError(t, err)
		assert.Equal(t, "2", chunk.Modules["./a"].Version)
	})

	t.Run("should_report_no_update_for_unknown_hash", func(t *testing.T) {
		tr, err := transport.NewHTTPTransport(srv.URL)
		require.NoError(t, err)

		m, err := tr.FetchManifest(context.Background(), "main", "h1")
		require.NoError(t, err)
		assert.Nil(t, m)

		_, err = tr.FetchChunk(context.Background(), "main", "h1")
		var loadErr *transport.ChunkLoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, transport.ChunkMissing, loadErr.Type)
	})

	t.Run("should_set_headers", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/main.h0.hot-update.json")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("should_refuse_other_files", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o600))
		for _, path := range []string{"/secret.txt", "/.tmp-1.hot-update.json", "/..%2Fmain.h0.hot-update.json"} {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		}
	})

	t.Run("should_answer_health_checks", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestUpdateFileType(t *testing.T) {
	cases := map[string]bool{
		"main.hot-update.json":        true,
		"main.abc.hot-update.msgpack": true,
		"main.json":                   false,
		"":                            false,
		".hidden.hot-update.json":     false,
		`a\b.hot-update.json`:         false,
	}
	for name, want := range cases {
		_, ok := updateFileType(name)
		assert.Equal(t, want, ok, name)
	}
}
