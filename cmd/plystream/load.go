package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudkoala/plystream/internal/config"
	"github.com/cloudkoala/plystream/internal/httpx"
	"github.com/cloudkoala/plystream/internal/progress"
	"github.com/cloudkoala/plystream/pkg/loader"
	"github.com/cloudkoala/plystream/pkg/manifest"
	"github.com/cloudkoala/plystream/pkg/ply"
)

func runLoad(args []string) int {
	fs := flag.NewFlagSet("load", flag.ExitOnError)

	baseURL := fs.String("url", "", "Base URL serving chunked models (required)")
	dataset := fs.String("dataset", "", "Dataset name or manifest path (required)")
	configPath := fs.String("config", "", "Path to YAML config file")
	concurrency := fs.Int("concurrency", 0, "Max concurrent chunk downloads")
	buffer := fs.Int("buffer", 0, "Max buffered chunks awaiting delivery")
	output := fs.String("output", "", "Write the merged geometry to this PLY file")
	showProgress := fs.Bool("progress", false, "Show progress output")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: plystream load [options]

Stream a chunked dataset: chunks download concurrently and are
delivered strictly in priority order. With -output the delivered
geometry is merged into a single PLY file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		fileCfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(config.Config{
		BaseURL:                *baseURL,
		Dataset:                *dataset,
		MaxConcurrentDownloads: *concurrency,
		MaxBufferSize:          *buffer,
		Progress:               *showProgress,
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
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

	return streamDataset(ctx, cfg, *output)
}

func streamDataset(ctx context.Context, cfg config.Config, output string) int {
	httpOpts := httpx.DefaultOptions()
	httpOpts.RetryAttempts = cfg.Retry.Attempts
	httpOpts.RetryBackoff = cfg.Retry.Backoff
	httpOpts.RetryMaxBackoff = cfg.Retry.MaxBackoff

	// Fetch the manifest up front so progress totals are known before
	// the stream starts.
	fetcher := manifest.NewFetcher(cfg.BaseURL, httpx.NewClient(httpOpts))
	res, err := fetcher.Fetch(ctx, cfg.Dataset)
	if err != nil {
		if errors.Is(err, manifest.ErrMalformed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitMalformed
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	if res.Status == manifest.StatusUnavailable {
		fmt.Fprintf(os.Stderr, "[plystream] No chunked variant available for %s\n", cfg.Dataset)
		return ExitNoChunkedVariant
	}
	m := res.Manifest

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			Dataset:     cfg.Dataset,
			TotalChunks: m.ChunkCount,
			TotalBytes:  m.TotalBytes(),
		})
		reporter.Start()
		defer reporter.Stop()
	}

	merged := &ply.Geometry{}
	failed := 0
	consumer := &loader.ConsumerFuncs{
		OnChunkReady: func(chunk *loader.LoadedChunk) {
			if output != "" {
				appendGeometry(merged, chunk.Geometry)
			}
		},
		OnProgress: func(loaded, total int) {
			if reporter != nil {
				reporter.ChunkLoaded(loaded, total)
			}
		},
		OnChunkError: func(filename string, err error) {
			failed++
			if reporter != nil {
				reporter.ChunkFailed(filename)
			}
			fmt.Fprintf(os.Stderr, "[plystream] Chunk %s failed: %v\n", filename, err)
		},
	}

	opts := loader.Options{
		MaxConcurrentDownloads: cfg.MaxConcurrentDownloads,
		MaxBufferSize:          cfg.MaxBufferSize,
		HTTPOptions:            httpOpts,
	}
	if reporter != nil {
		opts.ByteProgress = reporter.ChunkBytes
	}

	l := loader.New(cfg.BaseURL, opts)
	session, err := l.Load(ctx, cfg.Dataset, consumer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	session.Wait()

	if session.State() == loader.StateCancelled {
		fmt.Fprintln(os.Stderr, "[plystream] Stream cancelled")
		return ExitGeneralError
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "[plystream] Stream finished with %d failed chunks\n", failed)
		return ExitGeneralError
	}

	if output != "" {
		if err := writePLY(output, merged); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		}
		fmt.Fprintf(os.Stderr, "[plystream] Wrote %d vertices to %s\n", merged.VertexCount(), output)
	}
	return ExitSuccess
}

func appendGeometry(dst, src *ply.Geometry) {
	before := dst.VertexCount()
	dst.Positions = append(dst.Positions, src.Positions...)
	if src.HasColor() {
		// Backfill white for any earlier colorless chunks.
		for len(dst.Colors) < before*3 {
			dst.Colors = append(dst.Colors, 255)
		}
		dst.Colors = append(dst.Colors, src.Colors...)
	} else if dst.HasColor() {
		for i := 0; i < src.VertexCount()*3; i++ {
			dst.Colors = append(dst.Colors, 255)
		}
	}
}

func writePLY(path string, g *ply.Geometry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ply.Encode(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
