package manifest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cloudkoala/plystream/internal/httpx"
)

// Status reports the outcome of a manifest fetch.
type Status int

const (
	// StatusAvailable means a chunked variant exists and the manifest
	// parsed successfully.
	StatusAvailable Status = iota
	// StatusUnavailable means no chunked variant exists for the
	// dataset. Callers should fall back to a monolithic load.
	StatusUnavailable
)

// Result is the outcome of fetching a manifest. When Status is
// StatusAvailable, Manifest holds the parsed manifest and ChunkBase the
// URL prefix chunk filenames resolve against.
type Result struct {
	Status    Status
	Manifest  *Manifest
	ChunkBase string
}

// Fetcher retrieves dataset manifests over HTTP.
type Fetcher struct {
	baseURL string
	client  *httpx.Client
}

// NewFetcher creates a Fetcher resolving datasets against baseURL.
func NewFetcher(baseURL string, client *httpx.Client) *Fetcher {
	if client == nil {
		client = httpx.NewClient(httpx.DefaultOptions())
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// PathForDataset expands a bare dataset name to the conventional
// manifest location under the chunk tree.
func PathForDataset(name string) string {
	return path.Join("models/chunks", name, name+"_manifest.json")
}

// Fetch retrieves and parses the manifest for pathOrName. A bare
// dataset name (no slash, no .json suffix) is expanded via
// PathForDataset; anything else is treated as an explicit manifest
// path relative to the base URL.
//
// A not-found response is a soft signal and yields StatusUnavailable
// with a nil error. Malformed content is a real error for this attempt,
// wrapping ErrMalformed.
func (f *Fetcher) Fetch(ctx context.Context, pathOrName string) (Result, error) {
	manifestPath := pathOrName
	if !strings.Contains(pathOrName, "/") && !strings.HasSuffix(pathOrName, ".json") {
		manifestPath = PathForDataset(pathOrName)
	}

	manifestURL, err := url.JoinPath(f.baseURL, manifestPath)
	if err != nil {
		return Result{}, fmt.Errorf("manifest: build url: %w", err)
	}

	data, err := f.client.GetAll(ctx, manifestURL)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return Result{Status: StatusUnavailable}, nil
		}
		return Result{}, fmt.Errorf("manifest: fetch %s: %w", manifestPath, err)
	}

	m, err := Parse(data)
	if err != nil {
		return Result{}, fmt.Errorf("manifest: parse %s: %w", manifestPath, err)
	}

	chunkBase, err := url.JoinPath(f.baseURL, path.Dir(manifestPath))
	if err != nil {
		return Result{}, fmt.Errorf("manifest: build chunk base: %w", err)
	}

	return Result{
		Status:    StatusAvailable,
		Manifest:  m,
		ChunkBase: chunkBase + "/",
	}, nil
}
