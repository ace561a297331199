package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudkoala/plystream/internal/httpx"
	"github.com/cloudkoala/plystream/pkg/manifest"
	"github.com/cloudkoala/plystream/pkg/ply"
)

// ErrNoChunkedVariant is returned by Load when no chunk manifest exists
// for the requested dataset. It is a soft outcome: callers are expected
// to fall back to loading the original single file.
var ErrNoChunkedVariant = errors.New("loader: no chunked variant available")

// Defaults for Options.
const (
	DefaultMaxConcurrentDownloads = 2
	DefaultMaxBufferSize          = 8
)

// LoadedChunk is one decoded chunk, handed to the consumer exactly once.
// Ownership of the geometry passes to the consumer; the loader keeps no
// reference after delivery.
type LoadedChunk struct {
	Info     manifest.ChunkInfo
	Geometry *ply.Geometry
}

// Consumer receives the outward calls a session makes. All calls
// happen one at a time on the session's sequencer goroutine, and no
// call begins after Session.Cancel has returned.
type Consumer interface {
	// ChunkReady delivers a decoded chunk. Chunks arrive in
	// non-decreasing priority order, exactly once each.
	ChunkReady(chunk *LoadedChunk)

	// Progress reports chunk-count progress after each queue slot is
	// resolved. For a dataset of K chunks the sequence is
	// (1, K), (2, K), ..., (K, K).
	Progress(loaded, total int)

	// ChunkError reports a chunk that failed to download or decode.
	// Non-fatal: the session continues and the chunk is skipped.
	// Reported in queue order, before the Progress tick for the
	// failed slot and always before Complete.
	ChunkError(filename string, err error)

	// Complete fires once all queue slots have been consumed, unless
	// the session was cancelled.
	Complete()
}

// Detacher is an optional interface a Consumer can implement to be told,
// during cancellation, to drop geometry it already received.
type Detacher interface {
	Detach()
}

// ConsumerFuncs adapts plain functions to the Consumer interface.
// Nil fields are ignored.
type ConsumerFuncs struct {
	OnChunkReady func(chunk *LoadedChunk)
	OnProgress   func(loaded, total int)
	OnChunkError func(filename string, err error)
	OnComplete   func()
	OnDetach     func()
}

func (c *ConsumerFuncs) ChunkReady(chunk *LoadedChunk) {
	if c.OnChunkReady != nil {
		c.OnChunkReady(chunk)
	}
}

func (c *ConsumerFuncs) Progress(loaded, total int) {
	if c.OnProgress != nil {
		c.OnProgress(loaded, total)
	}
}

func (c *ConsumerFuncs) ChunkError(filename string, err error) {
	if c.OnChunkError != nil {
		c.OnChunkError(filename, err)
	}
}

func (c *ConsumerFuncs) Complete() {
	if c.OnComplete != nil {
		c.OnComplete()
	}
}

func (c *ConsumerFuncs) Detach() {
	if c.OnDetach != nil {
		c.OnDetach()
	}
}

// Options configures a Loader.
type Options struct {
	// MaxConcurrentDownloads bounds the number of in-flight chunk
	// downloads. Default: 2.
	MaxConcurrentDownloads int

	// MaxBufferSize bounds the number of decoded-but-undelivered
	// chunks held in memory. Default: 8.
	MaxBufferSize int

	// HTTPOptions configures the HTTP client.
	HTTPOptions httpx.Options

	// Transform, when set, is applied to each decoded geometry before
	// delivery. Pass-through for model orientation; the loader makes
	// no ordering or mutation guarantees about its contents.
	Transform func(*ply.Geometry)

	// ByteProgress, when set, receives per-chunk download progress.
	// Independent of buffering and delivery state; intended for UI.
	ByteProgress func(filename string, received, total int64)
}

// Loader streams chunked datasets from a base URL. At most one session
// is active per Loader; starting a new one cancels the previous.
type Loader struct {
	opts    Options
	client  *httpx.Client
	fetcher *manifest.Fetcher

	mu     sync.Mutex
	active *Session
}

// New creates a Loader for datasets served under baseURL.
func New(baseURL string, opts Options) *Loader {
	if opts.MaxConcurrentDownloads <= 0 {
		opts.MaxConcurrentDownloads = DefaultMaxConcurrentDownloads
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = DefaultMaxBufferSize
	}

	// NewClient fills in unset HTTP option fields individually.
	client := httpx.NewClient(opts.HTTPOptions)
	return &Loader{
		opts:    opts,
		client:  client,
		fetcher: manifest.NewFetcher(baseURL, client),
	}
}

// Load fetches the manifest for pathOrName and starts a streaming
// session delivering chunks to consumer. A missing manifest yields
// ErrNoChunkedVariant; a malformed one yields an error wrapping
// manifest.ErrMalformed. Any session already running on this Loader is
// cancelled before the new one starts.
func (l *Loader) Load(ctx context.Context, pathOrName string, consumer Consumer) (*Session, error) {
	if consumer == nil {
		return nil, errors.New("loader: nil consumer")
	}

	res, err := l.fetcher.Fetch(ctx, pathOrName)
	if err != nil {
		return nil, err
	}
	if res.Status == manifest.StatusUnavailable {
		return nil, fmt.Errorf("%w: %s", ErrNoChunkedVariant, pathOrName)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active != nil {
		l.active.Cancel()
	}

	s, err := newSession(ctx, sessionConfig{
		manifest:     res.Manifest,
		chunkBase:    res.ChunkBase,
		client:       l.client,
		consumer:     consumer,
		maxDownloads: l.opts.MaxConcurrentDownloads,
		maxBuffer:    l.opts.MaxBufferSize,
		transform:    l.opts.Transform,
		byteProgress: l.opts.ByteProgress,
	})
	if err != nil {
		return nil, err
	}
	l.active = s
	s.start()
	return s, nil
}

// Cancel aborts the active session, if any. Safe to call at any time.
func (l *Loader) Cancel() {
	l.mu.Lock()
	s := l.active
	l.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
}

// Active returns the most recently started session, or nil.
func (l *Loader) Active() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}
