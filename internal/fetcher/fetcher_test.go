package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_DownloadToFileThroughInterface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Beurre doux AOP;2;kg;18,00"))
	}))
	defer srv.Close()

	// Scheme dispatch hands callers a Fetcher; both transports satisfy it.
	var f Fetcher = newTestFetcher()
	dest := filepath.Join(t.TempDir(), "extract.csv")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/achats.csv", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(26), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "Beurre doux AOP;2;kg;18,00", string(data))
}

func TestFetcher_FTPSatisfiesInterface(t *testing.T) {
	var f Fetcher = NewFTPFetcher(FTPOptions{})
	assert.NotNil(t, f)
}
