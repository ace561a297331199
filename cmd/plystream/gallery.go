package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"gocloud.dev/blob/fileblob"

	"github.com/cloudkoala/plystream/internal/gallery"
)

func runGallery(args []string) int {
	fs := flag.NewFlagSet("gallery", flag.ExitOnError)

	dir := fs.String("dir", "", "Gallery directory containing PNG images (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: plystream gallery [options]

Reconcile the gallery manifest against the PNG files actually present:
new images are added, missing ones removed, and stale random-rotation
candidates pruned.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Error: -dir is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	bucket, err := fileblob.OpenBucket(*dir, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitStorageError
	}
	defer bucket.Close()

	changes, err := gallery.Update(context.Background(), bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	if !changes.Any() {
		fmt.Fprintln(os.Stderr, "[plystream] Gallery manifest is up to date")
		return ExitSuccess
	}
	for _, f := range changes.Added {
		fmt.Fprintf(os.Stderr, "[plystream] Added %s\n", f)
	}
	for _, f := range changes.Removed {
		fmt.Fprintf(os.Stderr, "[plystream] Removed %s\n", f)
	}
	for _, f := range changes.CandidatesRemoved {
		fmt.Fprintf(os.Stderr, "[plystream] Pruned candidate %s\n", f)
	}
	fmt.Fprintf(os.Stderr, "[plystream] Gallery manifest updated (%d added, %d removed)\n",
		len(changes.Added), len(changes.Removed))
	return ExitSuccess
}
