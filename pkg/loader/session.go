package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/cloudkoala/plystream/internal/httpx"
	"github.com/cloudkoala/plystream/pkg/manifest"
	"github.com/cloudkoala/plystream/pkg/ply"
)

// State is the lifecycle stage of a session.
type State int32

const (
	// StateStreaming means downloads and delivery are in progress.
	StateStreaming State = iota + 1
	// StateCancelled is terminal: the session was aborted.
	StateCancelled
	// StateCompleted is terminal: every chunk was consumed.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ErrChecksumMismatch is reported through Consumer.ChunkError when a
// downloaded chunk does not match the checksum recorded in the manifest.
var ErrChecksumMismatch = errors.New("loader: chunk checksum mismatch")

// errCancelled marks a download aborted by session cancellation. Never
// surfaced to the consumer.
var errCancelled = errors.New("loader: session cancelled")

type sessionConfig struct {
	manifest     *manifest.Manifest
	chunkBase    string
	client       *httpx.Client
	consumer     Consumer
	maxDownloads int
	maxBuffer    int
	transform    func(*ply.Geometry)
	byteProgress func(filename string, received, total int64)
}

// readySlot is a resolved queue slot. A set err marks a failed
// download: the slot resolves empty so the cursor can advance instead
// of stalling on a chunk that will never arrive, and the sequencer
// reports the error when it consumes the slot. counted records whether
// the slot occupies ready-buffer capacity; a chunk handed directly to
// a waiting sequencer never does.
type readySlot struct {
	chunk   *LoadedChunk
	err     error
	counted bool
}

// Session is one progressive load of a single dataset. It owns the
// priority queue, the in-flight set, the ready buffer, and the
// consumption cursor.
type Session struct {
	// ID tags the session for logging and correlation.
	ID uuid.UUID

	cfg     sessionConfig
	queue   []manifest.ChunkInfo
	decoder *zstd.Decoder

	ctx      context.Context
	cancelFn context.CancelFunc

	cancelled atomic.Bool
	state     atomic.Int32

	mu          sync.Mutex
	cond        *sync.Cond
	downloading map[int]struct{}
	ready       map[int]*readySlot
	buffered    int // slots in ready holding counted geometry
	processed   int // consumption cursor into queue

	// deliverMu serializes consumer callbacks against Cancel: a
	// callback runs entirely under it, and Cancel passes through it
	// after setting the token, so no callback can begin once Cancel
	// has returned.
	deliverMu sync.Mutex

	done chan struct{}
}

func newSession(ctx context.Context, cfg sessionConfig) (*Session, error) {
	var decoder *zstd.Decoder
	switch cfg.manifest.Compression {
	case "":
	case manifest.CompressionZstd:
		var err error
		decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("loader: init zstd decoder: %w", err)
		}
	default:
		return nil, fmt.Errorf("loader: unsupported chunk compression %q", cfg.manifest.Compression)
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:          uuid.New(),
		cfg:         cfg,
		queue:       cfg.manifest.LoadOrder(),
		decoder:     decoder,
		ctx:         sctx,
		cancelFn:    cancel,
		downloading: make(map[int]struct{}),
		ready:       make(map[int]*readySlot),
		done:        make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.state.Store(int32(StateStreaming))
	return s, nil
}

func (s *Session) start() {
	// Propagate parent context cancellation into the session.
	go func() {
		<-s.ctx.Done()
		if s.State() == StateStreaming {
			s.Cancel()
		}
	}()

	go s.run()
}

// Manifest returns the manifest this session is loading.
func (s *Session) Manifest() *manifest.Manifest {
	return s.cfg.manifest
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done returns a channel closed when the session has fully stopped,
// whether by completion or cancellation.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session has fully stopped.
func (s *Session) Wait() {
	<-s.done
}

// Cancel aborts the session: in-flight downloads observe the cancelled
// context and fail fast, the ready buffer is released, and no consumer
// callback begins after Cancel returns. A callback already in progress
// is waited out first, so Cancel must not be called from inside a
// consumer callback. Idempotent.
func (s *Session) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.state.CompareAndSwap(int32(StateStreaming), int32(StateCancelled))
	s.cancelFn()

	s.mu.Lock()
	clear(s.downloading)
	clear(s.ready)
	s.buffered = 0
	s.cond.Broadcast()
	s.mu.Unlock()

	// Wait out any callback already running. With the token set, the
	// sequencer cannot start another one past this point.
	s.deliverMu.Lock()
	s.deliverMu.Unlock()

	// Geometry already delivered belongs to the consumer; tell it to
	// let go if it knows how.
	if d, ok := s.cfg.consumer.(Detacher); ok {
		d.Detach()
	}
}

// run is the sequencer: it drains the queue strictly in priority order,
// blocking on per-slot readiness rather than polling, and refills the
// download pipeline after every consumed slot.
func (s *Session) run() {
	defer close(s.done)
	defer s.cancelFn()

	s.mu.Lock()
	s.startNextDownloadsLocked(0)

	for s.processed < len(s.queue) && !s.cancelled.Load() {
		slot, ok := s.ready[s.processed]
		if !ok {
			s.cond.Wait()
			continue
		}

		delete(s.ready, s.processed)
		if slot.counted {
			s.buffered--
		}
		s.processed++
		loaded := s.processed
		s.startNextDownloadsLocked(s.processed)
		s.mu.Unlock()

		s.deliver(s.queue[loaded-1], slot, loaded)

		s.mu.Lock()
	}
	finished := s.processed == len(s.queue)
	s.mu.Unlock()

	if finished {
		s.deliverMu.Lock()
		if !s.cancelled.Load() && s.state.CompareAndSwap(int32(StateStreaming), int32(StateCompleted)) {
			s.cfg.consumer.Complete()
		}
		s.deliverMu.Unlock()
	}
}

// deliver makes the consumer callbacks for one consumed slot: the
// chunk or its error, then the progress tick. The token is re-checked
// under deliverMu before each call, so a cancellation that lands
// mid-slot suppresses whatever has not started yet.
func (s *Session) deliver(info manifest.ChunkInfo, slot *readySlot, loaded int) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.cancelled.Load() {
		return
	}
	switch {
	case slot.err != nil:
		s.cfg.consumer.ChunkError(info.Filename, slot.err)
	case slot.chunk != nil:
		s.cfg.consumer.ChunkReady(slot.chunk)
	}
	if !s.cancelled.Load() {
		s.cfg.consumer.Progress(loaded, len(s.queue))
	}
}

// startNextDownloadsLocked scans the queue from index from, skipping
// slots that are resolved or already downloading, and starts downloads
// until the concurrency limit is hit, the buffer is full, or the queue
// ends. The slot the cursor is waiting on is exempt from the buffer
// check: it is handed straight to the sequencer on completion and never
// occupies buffer capacity, which closes the stall window where the
// required chunk would otherwise be dropped and never refetched.
//
// Callers must hold s.mu.
func (s *Session) startNextDownloadsLocked(from int) {
	if s.cancelled.Load() {
		return
	}
	for idx := from; idx < len(s.queue); idx++ {
		if len(s.downloading) >= s.cfg.maxDownloads {
			return
		}
		if _, ok := s.ready[idx]; ok {
			continue
		}
		if _, ok := s.downloading[idx]; ok {
			continue
		}
		if s.buffered >= s.cfg.maxBuffer && idx != s.processed {
			return
		}
		s.downloading[idx] = struct{}{}
		go s.download(idx)
	}
}

// download fetches, verifies, and decodes one chunk, then resolves its
// queue slot. Runs on its own goroutine; concurrency is bounded by the
// size of the downloading set.
func (s *Session) download(idx int) {
	info := s.queue[idx]
	chunk, err := s.fetchChunk(info)

	s.mu.Lock()
	delete(s.downloading, idx)

	if s.cancelled.Load() || errors.Is(err, errCancelled) || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}

	if err != nil {
		// Resolve the slot empty so the cursor can advance past the
		// failed chunk. The sequencer reports the error when it
		// consumes the slot, which keeps ChunkError on the delivery
		// goroutine and ahead of Complete.
		s.ready[idx] = &readySlot{err: err}
		s.cond.Broadcast()
		s.mu.Unlock()
		return
	}

	switch {
	case idx == s.processed:
		// The sequencer is waiting on exactly this slot: hand the
		// chunk over directly, bypassing buffer capacity.
		s.ready[idx] = &readySlot{chunk: chunk}
	case s.buffered < s.cfg.maxBuffer:
		s.ready[idx] = &readySlot{chunk: chunk, counted: true}
		s.buffered++
	default:
		// Buffer full: discard the decoded geometry. The slot stays
		// unresolved and a later refill pass downloads it again. A
		// deliberate trade of bandwidth for a hard memory cap.
		s.startNextDownloadsLocked(s.processed)
		s.mu.Unlock()
		return
	}

	s.startNextDownloadsLocked(s.processed)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// fetchChunk downloads and decodes a single chunk file.
func (s *Session) fetchChunk(info manifest.ChunkInfo) (*LoadedChunk, error) {
	body, size, err := s.cfg.client.Get(s.ctx, s.cfg.chunkBase+info.Filename)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, errCancelled
		}
		return nil, fmt.Errorf("download %s: %w", info.Filename, err)
	}
	defer body.Close()

	if size <= 0 {
		size = info.FileSizeBytes
	}

	var r io.Reader = body
	if s.cfg.byteProgress != nil {
		r = &countingReader{
			r:     body,
			total: size,
			report: func(received, total int64) {
				if !s.cancelled.Load() {
					s.cfg.byteProgress(info.Filename, received, total)
				}
			},
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, errCancelled
		}
		return nil, fmt.Errorf("read %s: %w", info.Filename, err)
	}

	if info.Checksum != "" {
		if sum := fmt.Sprintf("%016x", xxhash.Sum64(data)); sum != info.Checksum {
			return nil, fmt.Errorf("%w: %s: got %s, want %s", ErrChecksumMismatch, info.Filename, sum, info.Checksum)
		}
	}

	if s.decoder != nil {
		data, err = s.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", info.Filename, err)
		}
	}

	geom, err := ply.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", info.Filename, err)
	}

	if s.cfg.transform != nil {
		s.cfg.transform(geom)
	}

	return &LoadedChunk{Info: info, Geometry: geom}, nil
}

// countingReader reports cumulative bytes read.
type countingReader struct {
	r        io.Reader
	total    int64
	received int64
	report   func(received, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.received += int64(n)
		c.report(c.received, c.total)
	}
	return n, err
}
