package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads a remote purchase extract. Callers pick the
// implementation from the URL scheme; HTTP additionally supports
// conditional downloads via ETags.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*FTPFetcher)(nil)
)
