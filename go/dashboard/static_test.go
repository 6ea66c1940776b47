package dashboard

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticUIEmbedded(t *testing.T) {
	var s = NewServer(newStubAdapter(), Config{})

	var w = get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "<title>Queue Vision</title>")

	w = get(t, s, "/app.js")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "javascript")
}

func TestStaticUIPathOverride(t *testing.T) {
	var dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dev build</h1>"), 0o644))

	var s = NewServer(newStubAdapter(), Config{UIPath: dir})

	var w = get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dev build")
}
