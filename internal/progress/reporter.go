package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Dataset is the dataset being streamed (for display).
	Dataset string

	// TotalChunks is the number of chunks in the load queue.
	TotalChunks int

	// TotalBytes is the summed size of all chunk files.
	TotalBytes int64

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information. Its update
// methods mirror the loader's progress callbacks and are safe for
// concurrent use.
type Reporter struct {
	opts Options

	mu           sync.Mutex
	loadedChunks int
	failedChunks int
	chunkBytes   map[string]int64 // per-chunk received bytes
	startTime    time.Time
	lastUpdate   time.Time
	lastBytes    int64
	stopCh       chan struct{}
	stopped      bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:       opts,
		chunkBytes: make(map[string]int64),
		stopCh:     make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[plystream] Streaming: %s\n", r.opts.Dataset)
	fmt.Fprintf(r.opts.Output, "[plystream] Chunks: %d | Total: %s\n",
		r.opts.TotalChunks,
		FormatBytes(r.opts.TotalBytes),
	)

	go r.updateLoop()
}

// Stop stops the progress reporter.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
}

// ChunkLoaded records chunk-count progress. Matches the loader's
// Progress callback.
func (r *Reporter) ChunkLoaded(loaded, total int) {
	r.mu.Lock()
	r.loadedChunks = loaded
	r.mu.Unlock()
}

// ChunkBytes records per-chunk byte progress. Matches the loader's
// ByteProgress callback.
func (r *Reporter) ChunkBytes(filename string, received, total int64) {
	r.mu.Lock()
	r.chunkBytes[filename] = received
	r.mu.Unlock()
}

// ChunkFailed records a chunk that failed to download.
func (r *Reporter) ChunkFailed(filename string) {
	r.mu.Lock()
	r.failedChunks++
	delete(r.chunkBytes, filename)
	r.mu.Unlock()
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) receivedBytesLocked() int64 {
	var total int64
	for _, n := range r.chunkBytes {
		total += n
	}
	return total
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	r.mu.Lock()
	now := time.Now()
	loaded := r.loadedChunks
	failed := r.failedChunks
	received := r.receivedBytesLocked()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(received-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = received
	r.mu.Unlock()

	var percent float64
	if r.opts.TotalChunks > 0 {
		percent = float64(loaded) / float64(r.opts.TotalChunks) * 100
	}

	line := fmt.Sprintf("\r[plystream] Progress: %.1f%% | %d/%d chunks | %s | Speed: %s/s",
		percent,
		loaded,
		r.opts.TotalChunks,
		FormatBytes(received),
		FormatBytes(int64(speed)),
	)
	if failed > 0 {
		line += fmt.Sprintf(" | %d failed", failed)
	}
	fmt.Fprint(r.opts.Output, line+"    ")
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	r.mu.Lock()
	loaded := r.loadedChunks
	failed := r.failedChunks
	received := r.receivedBytesLocked()
	duration := time.Since(r.startTime)
	r.mu.Unlock()

	if duration <= 0 {
		duration = time.Millisecond
	}
	avgSpeed := float64(received) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\n[plystream] Loaded %d/%d chunks | %s | Average speed: %s/s | Total time: %s\n",
		loaded,
		r.opts.TotalChunks,
		FormatBytes(received),
		FormatBytes(int64(avgSpeed)),
		FormatDuration(duration),
	)
	if failed > 0 {
		fmt.Fprintf(r.opts.Output, "[plystream] %d chunks failed and were skipped\n", failed)
	}
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// ParseMB parses a fractional megabyte count such as "0.2" or "1.5".
func ParseMB(s string) (float64, error) {
	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil {
		return 0, fmt.Errorf("invalid megabyte value: %s", s)
	}
	if value <= 0 {
		return 0, fmt.Errorf("megabyte value must be positive: %s", s)
	}
	return value, nil
}
