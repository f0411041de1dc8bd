// Package fetch downloads remote archives and extracts them to local storage.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/woozymasta/mapcomp/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Fetcher retrieves remote resources over HTTP.
type Fetcher struct {
	Client *http.Client
	// Force re-downloads and re-extracts even when outputs already exist.
	Force bool
}

// New returns a Fetcher using client, or http.DefaultClient when nil.
func New(client *http.Client, force bool) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Client: client, Force: force}
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func (f *Fetcher) open(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &NetworkError{URL: url, Status: resp.StatusCode}
	}

	return resp, nil
}

// Get returns the body of url.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	metrics.BytesDownloaded.Add(float64(len(body)))

	return body, nil
}

// Download stores the body of url at dest.
// An existing non-empty dest is kept unless Force is set.
// The body is written to a temporary file first, so dest is never left truncated.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	if !f.Force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			log.Debug().Str("path", dest).Msg("Archive exists, skipping download")
			return nil
		}
	}

	log.Info().Str("url", url).Str("path", dest).Msg("Downloading archive")

	resp, err := f.open(ctx, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &ExtractionError{Archive: dest, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return &ExtractionError{Archive: dest, Err: err}
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	metrics.BytesDownloaded.Add(float64(n))

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return &ExtractionError{Archive: dest, Err: err}
	}

	log.Debug().Str("path", dest).Int64("bytes", n).Msg("Archive saved")
	return nil
}

// Fetch makes the dataset behind source available under workDir and returns the
// directory holding its extracted files. Source is an http(s) URL or a local path
// to a zip archive or to an already extracted directory.
func (f *Fetcher) Fetch(ctx context.Context, source, workDir string) (string, error) {
	archive := source

	if isRemote(source) {
		name := path.Base(strings.SplitN(source, "?", 2)[0])
		if name == "" || name == "/" || name == "." {
			name = "dataset.zip"
		}
		archive = filepath.Join(workDir, name)
		if err := f.Download(ctx, source, archive); err != nil {
			return "", err
		}
	} else {
		info, err := os.Stat(source)
		if err != nil {
			return "", &ExtractionError{Archive: source, Err: err}
		}
		if info.IsDir() {
			return source, nil
		}
	}

	dir := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(archive), filepath.Ext(archive)))

	if !f.Force {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
			log.Debug().Str("dir", dir).Msg("Dataset already extracted, skipping")
			return dir, nil
		}
	}

	files, err := Extract(archive, dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", &ExtractionError{Archive: archive, Err: fmt.Errorf("archive is empty")}
	}

	log.Info().Str("archive", archive).Str("dir", dir).Int("files", len(files)).Msg("Archive extracted")
	return dir, nil
}
