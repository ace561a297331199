package chunker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"

	"github.com/cloudkoala/plystream/pkg/manifest"
	"github.com/cloudkoala/plystream/pkg/ply"
)

// Strategy selects how vertices are assigned to chunks.
type Strategy string

const (
	// StrategyRadial assigns vertices with a feathered probability that
	// favors vertices near the origin, so early chunks sketch the whole
	// form and later chunks fill in detail.
	StrategyRadial Strategy = "radial"

	// StrategySequential slices vertices in input order.
	StrategySequential Strategy = "sequential"
)

// ErrEmptyGeometry is returned when the input has no vertices.
var ErrEmptyGeometry = errors.New("chunker: geometry has no vertices")

// Conservative estimate of stored bytes per vertex, including header
// overhead amortized across the chunk.
const bytesPerVertex = 20

// Models larger than this along any axis are scaled down so the
// longest axis becomes targetDimension, matching the viewer's
// auto-scaling.
const (
	maxUnscaledDimension = 50.0
	targetDimension      = 20.0
)

// Options configures chunking.
type Options struct {
	// TargetChunkSizeMB is the approximate size of each chunk file.
	TargetChunkSizeMB float64

	// Strategy selects the chunking strategy.
	Strategy Strategy

	// Compress stores chunk payloads zstd-compressed and records the
	// compression scheme in the manifest.
	Compress bool

	// Checksum records an xxhash64 digest per chunk in the manifest.
	Checksum bool

	// Seed seeds the feathered selection for StrategyRadial. Zero
	// picks a time-based seed.
	Seed uint64
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetChunkSizeMB: 0.2,
		Strategy:          StrategyRadial,
		Checksum:          true,
	}
}

// Chunker splits PLY geometry into prioritized chunk files.
type Chunker struct {
	opts    Options
	encoder *zstd.Encoder
}

// New creates a Chunker. Options zero values fall back to defaults.
func New(opts Options) (*Chunker, error) {
	if opts.TargetChunkSizeMB <= 0 {
		opts.TargetChunkSizeMB = DefaultOptions().TargetChunkSizeMB
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategyRadial
	}
	c := &Chunker{opts: opts}
	if opts.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("chunker: init zstd encoder: %w", err)
		}
		c.encoder = enc
	}
	return c, nil
}

// ChunkStream decodes a PLY stream and chunks it under baseName.
func (c *Chunker) ChunkStream(ctx context.Context, r io.Reader, baseName string, bucket *blob.Bucket) (*manifest.Manifest, error) {
	g, err := ply.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("chunker: decode %s: %w", baseName, err)
	}
	return c.Chunk(ctx, g, baseName, bucket)
}

// Chunk splits g into chunk files written under baseName/ in the
// bucket, plus a manifest at baseName/baseName_manifest.json. The
// geometry is auto-scaled in place when it exceeds the viewer's size
// threshold.
func (c *Chunker) Chunk(ctx context.Context, g *ply.Geometry, baseName string, bucket *blob.Bucket) (*manifest.Manifest, error) {
	if g.VertexCount() == 0 {
		return nil, ErrEmptyGeometry
	}

	autoScale(g)
	overall := g.Bounds()

	var groups [][]int
	switch c.opts.Strategy {
	case StrategySequential:
		groups = c.chunkSequential(g)
	case StrategyRadial:
		groups = c.chunkRadial(g)
	default:
		return nil, fmt.Errorf("chunker: unknown strategy %q", c.opts.Strategy)
	}

	m := &manifest.Manifest{
		OriginalFile:       baseName + ".ply",
		TotalVertices:      g.VertexCount(),
		ChunkCount:         len(groups),
		OverallBoundingBox: overall,
		TargetChunkSizeMB:  c.opts.TargetChunkSizeMB,
	}
	if c.opts.Compress {
		m.Compression = manifest.CompressionZstd
	}

	for i, group := range groups {
		info, err := c.writeChunk(ctx, bucket, baseName, i, g, group, overall)
		if err != nil {
			return nil, err
		}
		m.Chunks = append(m.Chunks, *info)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("chunker: marshal manifest: %w", err)
	}
	key := path.Join(baseName, baseName+"_manifest.json")
	if err := bucket.WriteAll(ctx, key, data, nil); err != nil {
		return nil, fmt.Errorf("chunker: write manifest: %w", err)
	}
	return m, nil
}

// autoScale shrinks oversized models so the longest axis fits the
// viewer's working volume.
func autoScale(g *ply.Geometry) {
	b := g.Bounds()
	maxDim := math.Max(b.Max.X-b.Min.X, math.Max(b.Max.Y-b.Min.Y, b.Max.Z-b.Min.Z))
	if maxDim <= maxUnscaledDimension {
		return
	}
	scale := float32(targetDimension / maxDim)
	for i := range g.Positions {
		g.Positions[i] *= scale
	}
}

func (c *Chunker) verticesPerChunk() int {
	target := int(c.opts.TargetChunkSizeMB * 1024 * 1024)
	n := target / bytesPerVertex
	if n < 1 {
		n = 1
	}
	return n
}

// chunkSequential slices vertex indices in input order.
func (c *Chunker) chunkSequential(g *ply.Geometry) [][]int {
	perChunk := c.verticesPerChunk()
	count := g.VertexCount()

	var groups [][]int
	for start := 0; start < count; start += perChunk {
		end := start + perChunk
		if end > count {
			end = count
		}
		group := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			group = append(group, i)
		}
		groups = append(groups, group)
	}
	return groups
}

// chunkRadial selects vertices for each chunk with a probability that
// falls off linearly with distance from the origin, from 100% at the
// center to 20% at the far edge. A per-round boost guarantees every
// vertex is eventually selected, and the last rounds take everything
// that remains.
func (c *Chunker) chunkRadial(g *ply.Geometry) [][]int {
	perChunk := c.verticesPerChunk()
	count := g.VertexCount()

	type candidate struct {
		index    int
		distance float64
	}
	remaining := make([]candidate, count)
	var maxDistance float64
	for i := 0; i < count; i++ {
		p := g.Position(i)
		d := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
		remaining[i] = candidate{index: i, distance: d}
		if d > maxDistance {
			maxDistance = d
		}
	}
	// Closest first, so early chunks are seeded from the center out.
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].distance < remaining[j].distance
	})

	seed := c.opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	var groups [][]int
	round := 0
	for len(remaining) > 0 {
		round++
		sweepAll := len(remaining) <= perChunk*3/2
		boost := math.Min(0.3, float64(round-1)*0.1)

		var group []int
		kept := remaining[:0]
		full := false
		for _, cand := range remaining {
			if full {
				kept = append(kept, cand)
				continue
			}
			p := 1.0
			if !sweepAll && maxDistance > 0 {
				p = math.Min(1.0, 1.0-(cand.distance/maxDistance)*0.8+boost)
			}
			if rng.Float64() < p {
				group = append(group, cand.index)
				if len(group) >= perChunk {
					full = true
				}
			} else {
				kept = append(kept, cand)
			}
		}
		remaining = kept

		if len(group) > 0 {
			groups = append(groups, group)
			continue
		}
		if len(remaining) > 0 {
			// Nothing selected this round. Force the leftovers into a
			// final chunk rather than spinning.
			final := make([]int, len(remaining))
			for i, cand := range remaining {
				final[i] = cand.index
			}
			groups = append(groups, final)
			break
		}
	}
	return groups
}

// writeChunk encodes one chunk (with bounding-box anchor points) and
// stores it, returning its manifest entry.
func (c *Chunker) writeChunk(ctx context.Context, bucket *blob.Bucket, baseName string, index int, g *ply.Geometry, group []int, overall ply.BoundingBox) (*manifest.ChunkInfo, error) {
	chunk := buildChunkGeometry(g, group, overall)

	var buf bytes.Buffer
	if err := ply.Encode(&buf, chunk); err != nil {
		return nil, fmt.Errorf("chunker: encode chunk %d: %w", index, err)
	}
	payload := buf.Bytes()

	filename := fmt.Sprintf("%s_chunk_%03d.ply", baseName, index)
	if c.opts.Compress {
		payload = c.encoder.EncodeAll(payload, nil)
		filename += ".zst"
	}

	key := path.Join(baseName, filename)
	if err := bucket.WriteAll(ctx, key, payload, nil); err != nil {
		return nil, fmt.Errorf("chunker: write chunk %d: %w", index, err)
	}

	info := &manifest.ChunkInfo{
		Filename:      filename,
		VertexCount:   len(group),
		BoundingBox:   boundsOf(g, group),
		Priority:      index,
		FileSizeBytes: int64(len(payload)),
	}
	if c.opts.Checksum {
		info.Checksum = fmt.Sprintf("%016x", xxhash.Sum64(payload))
	}
	return info, nil
}

// buildChunkGeometry copies the selected vertices and appends eight
// black anchor points at the corners of the overall bounding box, so
// every chunk reports the same extents to the viewer.
func buildChunkGeometry(g *ply.Geometry, group []int, overall ply.BoundingBox) *ply.Geometry {
	chunk := &ply.Geometry{
		Positions: make([]float32, 0, (len(group)+8)*3),
		Colors:    make([]uint8, 0, (len(group)+8)*3),
	}
	hasColor := g.HasColor()
	for _, i := range group {
		chunk.Positions = append(chunk.Positions, g.Positions[i*3], g.Positions[i*3+1], g.Positions[i*3+2])
		if hasColor {
			chunk.Colors = append(chunk.Colors, g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2])
		} else {
			chunk.Colors = append(chunk.Colors, 255, 255, 255)
		}
	}
	for _, corner := range corners(overall) {
		chunk.Positions = append(chunk.Positions, float32(corner.X), float32(corner.Y), float32(corner.Z))
		chunk.Colors = append(chunk.Colors, 0, 0, 0)
	}
	return chunk
}

func corners(b ply.BoundingBox) []ply.Vec3 {
	return []ply.Vec3{
		{X: b.Min.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Min.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Min.Z},
		{X: b.Max.X, Y: b.Min.Y, Z: b.Max.Z},
		{X: b.Min.X, Y: b.Max.Y, Z: b.Max.Z},
		{X: b.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	}
}

func boundsOf(g *ply.Geometry, group []int) ply.BoundingBox {
	if len(group) == 0 {
		return ply.BoundingBox{}
	}
	first := g.Position(group[0])
	b := ply.BoundingBox{Min: first, Max: first}
	for _, i := range group[1:] {
		p := g.Position(i)
		b.Min.X = math.Min(b.Min.X, p.X)
		b.Min.Y = math.Min(b.Min.Y, p.Y)
		b.Min.Z = math.Min(b.Min.Z, p.Z)
		b.Max.X = math.Max(b.Max.X, p.X)
		b.Max.Y = math.Max(b.Max.Y, p.Y)
		b.Max.Z = math.Max(b.Max.Z, p.Z)
	}
	return b
}

// ManifestKey returns the bucket key of a dataset's manifest.
func ManifestKey(baseName string) string {
	return path.Join(baseName, baseName+"_manifest.json")
}

// AutoChunk chunks every .ply object at the root of src that does not
// already have a manifest in dst. It returns the base names that were
// processed.
func (c *Chunker) AutoChunk(ctx context.Context, src, dst *blob.Bucket) ([]string, error) {
	var processed []string

	iter := src.List(&blob.ListOptions{})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return processed, fmt.Errorf("chunker: list source: %w", err)
		}
		if obj.IsDir || !strings.HasSuffix(obj.Key, ".ply") {
			continue
		}
		baseName := strings.TrimSuffix(path.Base(obj.Key), ".ply")

		exists, err := dst.Exists(ctx, ManifestKey(baseName))
		if err != nil {
			return processed, fmt.Errorf("chunker: check manifest for %s: %w", baseName, err)
		}
		if exists {
			continue
		}

		r, err := src.NewReader(ctx, obj.Key, nil)
		if err != nil {
			return processed, fmt.Errorf("chunker: open %s: %w", obj.Key, err)
		}
		_, err = c.ChunkStream(ctx, r, baseName, dst)
		r.Close()
		if err != nil {
			return processed, err
		}
		processed = append(processed, baseName)
	}
	return processed, nil
}
