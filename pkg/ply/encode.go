package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Encode writes g to w as a binary little-endian PLY file.
// Positions are written as float32 and colors, when present, as uint8.
// This matches the layout produced by the offline chunk pipeline.
func Encode(w io.Writer, g *Geometry) error {
	bw := bufio.NewWriter(w)

	n := g.VertexCount()
	if _, err := fmt.Fprintf(bw, "ply\nformat binary_little_endian 1.0\nelement vertex %d\n", n); err != nil {
		return fmt.Errorf("ply: write header: %w", err)
	}
	header := "property float x\nproperty float y\nproperty float z\n"
	if g.HasColor() {
		header += "property uchar red\nproperty uchar green\nproperty uchar blue\n"
	}
	header += "end_header\n"
	if _, err := bw.WriteString(header); err != nil {
		return fmt.Errorf("ply: write header: %w", err)
	}

	record := make([]byte, 0, 15)
	for i := 0; i < n; i++ {
		record = record[:0]
		for axis := 0; axis < 3; axis++ {
			record = binary.LittleEndian.AppendUint32(record, math.Float32bits(g.Positions[i*3+axis]))
		}
		if g.HasColor() {
			record = append(record, g.Colors[i*3], g.Colors[i*3+1], g.Colors[i*3+2])
		}
		if _, err := bw.Write(record); err != nil {
			return fmt.Errorf("ply: write vertex %d: %w", i, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("ply: flush: %w", err)
	}
	return nil
}
