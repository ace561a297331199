// Package progress provides console progress reporting for streaming
// loads.
//
// The reporter consumes the loader's chunk-count and per-chunk byte
// callbacks and periodically renders a human-readable status line.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    Dataset:     "castleton",
//	    TotalChunks: numChunks,
//	    TotalBytes:  totalBytes,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	// Wire into the loader:
//	// consumer.OnProgress   -> reporter.ChunkLoaded
//	// Options.ByteProgress  -> reporter.ChunkBytes
//
// # Output Format
//
//	[plystream] Streaming: castleton
//	[plystream] Chunks: 42 | Total: 8.40 MB
//	[plystream] Progress: 45.2% | 19/42 chunks | 3.80 MB | Speed: 1.20 MB/s
package progress
