package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gocloud.dev/blob/fileblob"

	"github.com/cloudkoala/plystream/internal/chunker"
	"github.com/cloudkoala/plystream/internal/progress"
)

func runChunk(args []string) int {
	fs := flag.NewFlagSet("chunk", flag.ExitOnError)

	input := fs.String("input", "", "Input PLY file, or a directory to process in bulk (required)")
	output := fs.String("output", "", "Output directory for chunked models (required)")
	size := fs.String("size", "0.2", "Target chunk size in megabytes")
	strategy := fs.String("strategy", "radial", "Chunking strategy: radial or sequential")
	compress := fs.Bool("compress", false, "Store chunk payloads zstd-compressed")
	seed := fs.Uint64("seed", 0, "Seed for radial selection (0 = random)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: plystream chunk [options]

Split a PLY file into prioritized chunks plus a manifest. When -input
is a directory, every .ply file in it without existing chunks is
processed.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	if *input == "" || *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -input and -output are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	sizeMB, err := progress.ParseMB(*size)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	c, err := chunker.New(chunker.Options{
		TargetChunkSizeMB: sizeMB,
		Strategy:          chunker.Strategy(*strategy),
		Compress:          *compress,
		Checksum:          true,
		Seed:              *seed,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[plystream] Received interrupt, shutting down...")
		cancel()
	}()

	if err := os.MkdirAll(*output, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	dst, err := fileblob.OpenBucket(*output, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer dst.Close()

	info, err := os.Stat(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	if info.IsDir() {
		src, err := fileblob.OpenBucket(*input, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		}
		defer src.Close()

		processed, err := c.AutoChunk(ctx, src, dst)
		for _, name := range processed {
			fmt.Fprintf(os.Stderr, "[plystream] Chunked %s\n", name)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
		fmt.Fprintf(os.Stderr, "[plystream] Processed %d new models\n", len(processed))
		return ExitSuccess
	}

	baseName := strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	f, err := os.Open(*input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer f.Close()

	m, err := c.ChunkStream(ctx, f, baseName, dst)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintf(os.Stderr, "[plystream] Chunked %s: %d vertices into %d chunks (%s)\n",
		baseName, m.TotalVertices, m.ChunkCount, progress.FormatBytes(m.TotalBytes()))
	return ExitSuccess
}
