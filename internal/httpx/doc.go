// Package httpx provides the HTTP client used to fetch manifests and
// chunk files.
//
// This package handles:
//   - Connection pooling sized for a small pool of parallel chunk fetches
//   - Retry with exponential backoff and jitter for transient failures
//   - Sentinel errors for the status codes callers branch on
//
// # Usage
//
//	client := httpx.NewClient(httpx.DefaultOptions())
//	body, size, err := client.Get(ctx, url)
//	if errors.Is(err, httpx.ErrNotFound) {
//	    // resource does not exist
//	}
//	defer body.Close()
package httpx
