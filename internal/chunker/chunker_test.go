package chunker

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob/memblob"

	"github.com/cloudkoala/plystream/pkg/manifest"
	"github.com/cloudkoala/plystream/pkg/ply"
)

// tinyChunkSizeMB yields four vertices per chunk at 20 bytes/vertex.
const tinyChunkSizeMB = 80.0 / (1024 * 1024)

// ringGeometry builds n colored vertices spread along a line from the
// origin, so radial distances are distinct and deterministic.
func ringGeometry(n int) *ply.Geometry {
	g := &ply.Geometry{}
	for i := 0; i < n; i++ {
		g.Positions = append(g.Positions, float32(i), 0, 0)
		g.Colors = append(g.Colors, uint8(i%256), 10, 20)
	}
	return g
}

func testChunker(t *testing.T, opts Options) *Chunker {
	t.Helper()
	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestChunkSequential(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategySequential,
		Checksum:          true,
	})

	m, err := c.Chunk(ctx, ringGeometry(10), "model", bucket)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	if m.ChunkCount != 3 {
		t.Fatalf("ChunkCount = %d, want 3", m.ChunkCount)
	}
	if m.TotalVertices != 10 {
		t.Errorf("TotalVertices = %d, want 10", m.TotalVertices)
	}
	wantCounts := []int{4, 4, 2}
	for i, chunk := range m.Chunks {
		if chunk.VertexCount != wantCounts[i] {
			t.Errorf("chunk %d VertexCount = %d, want %d", i, chunk.VertexCount, wantCounts[i])
		}
		if chunk.Priority != i {
			t.Errorf("chunk %d Priority = %d, want %d", i, chunk.Priority, i)
		}
		wantName := fmt.Sprintf("model_chunk_%03d.ply", i)
		if chunk.Filename != wantName {
			t.Errorf("chunk %d Filename = %q, want %q", i, chunk.Filename, wantName)
		}
	}
}

func TestChunkWritesDecodablePLY(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategySequential,
	})

	m, err := c.Chunk(ctx, ringGeometry(4), "model", bucket)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	data, err := bucket.ReadAll(ctx, "model/"+m.Chunks[0].Filename)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	g, err := ply.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	// 4 vertices plus 8 bounding-box anchors.
	if got := g.VertexCount(); got != 12 {
		t.Fatalf("VertexCount = %d, want 12", got)
	}
	// Anchors are appended last and colored black.
	for i := 4; i < 12; i++ {
		r, gc, b := g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2]
		if r != 0 || gc != 0 || b != 0 {
			t.Errorf("anchor %d color = (%d,%d,%d), want black", i, r, gc, b)
		}
	}
	if int64(len(data)) != m.Chunks[0].FileSizeBytes {
		t.Errorf("FileSizeBytes = %d, want %d", m.Chunks[0].FileSizeBytes, len(data))
	}
}

func TestChunkManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategySequential,
		Checksum:          true,
	})
	if _, err := c.Chunk(ctx, ringGeometry(10), "model", bucket); err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	data, err := bucket.ReadAll(ctx, ManifestKey("model"))
	if err != nil {
		t.Fatalf("ReadAll(manifest) error = %v", err)
	}
	m, err := manifest.Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	for _, chunk := range m.Chunks {
		payload, err := bucket.ReadAll(ctx, "model/"+chunk.Filename)
		if err != nil {
			t.Fatalf("ReadAll(%s) error = %v", chunk.Filename, err)
		}
		want := fmt.Sprintf("%016x", xxhash.Sum64(payload))
		if chunk.Checksum != want {
			t.Errorf("chunk %s checksum = %q, want %q", chunk.Filename, chunk.Checksum, want)
		}
	}
}

func TestChunkRadialCoversAllVertices(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategyRadial,
		Seed:              42,
	})

	m, err := c.Chunk(ctx, ringGeometry(20), "model", bucket)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}

	total := 0
	for _, chunk := range m.Chunks {
		total += chunk.VertexCount
	}
	if total != 20 {
		t.Errorf("chunks cover %d vertices, want 20", total)
	}
	if m.ChunkCount < 2 {
		t.Errorf("ChunkCount = %d, want at least 2", m.ChunkCount)
	}
}

func TestChunkRadialDeterministicWithSeed(t *testing.T) {
	ctx := context.Background()

	run := func() *manifest.Manifest {
		bucket := memblob.OpenBucket(nil)
		defer bucket.Close()
		c := testChunker(t, Options{
			TargetChunkSizeMB: tinyChunkSizeMB,
			Strategy:          StrategyRadial,
			Seed:              7,
		})
		m, err := c.Chunk(ctx, ringGeometry(20), "model", bucket)
		if err != nil {
			t.Fatalf("Chunk() error = %v", err)
		}
		return m
	}

	a, b := run(), run()
	if a.ChunkCount != b.ChunkCount {
		t.Fatalf("chunk counts differ: %d vs %d", a.ChunkCount, b.ChunkCount)
	}
	for i := range a.Chunks {
		if a.Chunks[i].VertexCount != b.Chunks[i].VertexCount {
			t.Errorf("chunk %d vertex counts differ: %d vs %d", i, a.Chunks[i].VertexCount, b.Chunks[i].VertexCount)
		}
	}
}

func TestChunkCompressed(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategySequential,
		Compress:          true,
	})

	m, err := c.Chunk(ctx, ringGeometry(4), "model", bucket)
	if err != nil {
		t.Fatalf("Chunk() error = %v", err)
	}
	if m.Compression != manifest.CompressionZstd {
		t.Fatalf("Compression = %q, want %q", m.Compression, manifest.CompressionZstd)
	}
	if want := "model_chunk_000.ply.zst"; m.Chunks[0].Filename != want {
		t.Fatalf("Filename = %q, want %q", m.Chunks[0].Filename, want)
	}

	payload, err := bucket.ReadAll(ctx, "model/"+m.Chunks[0].Filename)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("zstd.NewReader() error = %v", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		t.Fatalf("DecodeAll() error = %v", err)
	}
	g, err := ply.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := g.VertexCount(); got != 12 {
		t.Errorf("VertexCount = %d, want 12", got)
	}
}

func TestAutoScale(t *testing.T) {
	g := &ply.Geometry{
		Positions: []float32{0, 0, 0, 100, 0, 0},
	}
	autoScale(g)

	b := g.Bounds()
	if got := b.Max.X - b.Min.X; math.Abs(got-20) > 1e-6 {
		t.Errorf("scaled width = %v, want 20", got)
	}

	small := &ply.Geometry{
		Positions: []float32{0, 0, 0, 10, 0, 0},
	}
	autoScale(small)
	if small.Positions[3] != 10 {
		t.Errorf("small model was scaled: x = %v, want 10", small.Positions[3])
	}
}

func TestChunkEmptyGeometry(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	c := testChunker(t, DefaultOptions())
	if _, err := c.Chunk(context.Background(), &ply.Geometry{}, "model", bucket); err != ErrEmptyGeometry {
		t.Fatalf("Chunk() error = %v, want ErrEmptyGeometry", err)
	}
}

func TestAutoChunk(t *testing.T) {
	ctx := context.Background()
	src := memblob.OpenBucket(nil)
	defer src.Close()
	dst := memblob.OpenBucket(nil)
	defer dst.Close()

	for _, name := range []string{"alpha", "beta"} {
		var buf bytes.Buffer
		if err := ply.Encode(&buf, ringGeometry(6)); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if err := src.WriteAll(ctx, name+".ply", buf.Bytes(), nil); err != nil {
			t.Fatalf("WriteAll() error = %v", err)
		}
	}
	// Non-PLY objects are skipped.
	if err := src.WriteAll(ctx, "readme.txt", []byte("hi"), nil); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	// alpha already has chunks.
	if err := dst.WriteAll(ctx, ManifestKey("alpha"), []byte("{}"), nil); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}

	c := testChunker(t, Options{
		TargetChunkSizeMB: tinyChunkSizeMB,
		Strategy:          StrategySequential,
	})
	processed, err := c.AutoChunk(ctx, src, dst)
	if err != nil {
		t.Fatalf("AutoChunk() error = %v", err)
	}
	if len(processed) != 1 || processed[0] != "beta" {
		t.Fatalf("processed = %v, want [beta]", processed)
	}
	exists, err := dst.Exists(ctx, ManifestKey("beta"))
	if err != nil || !exists {
		t.Fatalf("beta manifest exists = %v, err = %v", exists, err)
	}
}
