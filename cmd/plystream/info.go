package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/cloudkoala/plystream/internal/httpx"
	"github.com/cloudkoala/plystream/internal/progress"
	"github.com/cloudkoala/plystream/pkg/manifest"
)

func runInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)

	baseURL := fs.String("url", "", "Base URL serving chunked models (required)")
	dataset := fs.String("dataset", "", "Dataset name or manifest path (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: plystream info [options]

Fetch a dataset manifest and print its chunk layout in load order.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *baseURL == "" || *dataset == "" {
		fmt.Fprintln(os.Stderr, "Error: -url and -dataset are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	fetcher := manifest.NewFetcher(*baseURL, httpx.NewClient(httpx.DefaultOptions()))
	res, err := fetcher.Fetch(context.Background(), *dataset)
	if err != nil {
		if errors.Is(err, manifest.ErrMalformed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitMalformed
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if res.Status == manifest.StatusUnavailable {
		fmt.Fprintf(os.Stderr, "[plystream] No chunked variant available for %s\n", *dataset)
		return ExitNoChunkedVariant
	}

	m := res.Manifest
	fmt.Printf("Original file:  %s\n", m.OriginalFile)
	fmt.Printf("Total vertices: %d\n", m.TotalVertices)
	fmt.Printf("Chunks:         %d (%s total)\n", m.ChunkCount, progress.FormatBytes(m.TotalBytes()))
	fmt.Printf("Target size:    %.2f MB\n", m.TargetChunkSizeMB)
	if m.Compression != "" {
		fmt.Printf("Compression:    %s\n", m.Compression)
	}
	b := m.OverallBoundingBox
	fmt.Printf("Bounds:         (%.2f, %.2f, %.2f) to (%.2f, %.2f, %.2f)\n",
		b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)

	fmt.Println("\nLoad order:")
	for _, chunk := range m.LoadOrder() {
		fmt.Printf("  %3d  %-40s %8d vertices  %s\n",
			chunk.Priority, chunk.Filename, chunk.VertexCount, progress.FormatBytes(chunk.FileSizeBytes))
	}
	return ExitSuccess
}
