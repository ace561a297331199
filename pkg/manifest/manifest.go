package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/cloudkoala/plystream/pkg/ply"
)

// ErrMalformed is returned when manifest content cannot be parsed or
// fails validation.
var ErrMalformed = errors.New("manifest: malformed manifest")

// CompressionZstd marks chunk payloads compressed with zstd.
const CompressionZstd = "zstd"

// Manifest describes a chunked dataset.
type Manifest struct {
	OriginalFile       string          `json:"original_file"`
	TotalVertices      int             `json:"total_vertices"`
	ChunkCount         int             `json:"chunk_count"`
	OverallBoundingBox ply.BoundingBox `json:"overall_bounding_box"`
	TargetChunkSizeMB  float64         `json:"target_chunk_size_mb"`

	// Compression is empty for raw PLY chunk files, or "zstd" when
	// chunk payloads are zstd-compressed.
	Compression string `json:"compression,omitempty"`

	Chunks []ChunkInfo `json:"chunks"`
}

// ChunkInfo describes a single chunk file. Immutable once parsed.
type ChunkInfo struct {
	Filename      string          `json:"filename"`
	VertexCount   int             `json:"vertex_count"`
	BoundingBox   ply.BoundingBox `json:"bounding_box"`
	Priority      int             `json:"priority"`
	FileSizeBytes int64           `json:"file_size_bytes"`

	// Checksum is the xxhash64 of the stored chunk bytes, hex encoded.
	// Empty when the pipeline did not record one.
	Checksum string `json:"checksum,omitempty"`
}

// Parse decodes and validates manifest JSON.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Chunks) == 0 {
		return fmt.Errorf("%w: no chunks", ErrMalformed)
	}
	if m.ChunkCount != len(m.Chunks) {
		return fmt.Errorf("%w: chunk_count %d does not match %d chunk entries", ErrMalformed, m.ChunkCount, len(m.Chunks))
	}
	for i, c := range m.Chunks {
		if c.Filename == "" {
			return fmt.Errorf("%w: chunk %d has no filename", ErrMalformed, i)
		}
		if c.VertexCount < 0 || c.FileSizeBytes < 0 {
			return fmt.Errorf("%w: chunk %d has negative counts", ErrMalformed, i)
		}
	}
	return nil
}

// LoadOrder returns the chunks stably sorted by ascending priority.
// This single ordering governs both the preferred download start order
// and the mandatory delivery order, so queue indexes from one are valid
// in the other.
func (m *Manifest) LoadOrder() []ChunkInfo {
	order := make([]ChunkInfo, len(m.Chunks))
	copy(order, m.Chunks)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Priority < order[j].Priority
	})
	return order
}

// TotalBytes returns the summed size of all chunk files.
func (m *Manifest) TotalBytes() int64 {
	var total int64
	for _, c := range m.Chunks {
		total += c.FileSizeBytes
	}
	return total
}
