package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitNoChunkedVariant = 3
	ExitMalformed        = 4
	ExitStorageError     = 5
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "load":
		return runLoad(cmdArgs)
	case "chunk":
		return runChunk(cmdArgs)
	case "info":
		return runInfo(cmdArgs)
	case "gallery":
		return runGallery(cmdArgs)
	case "serve":
		return runServe(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: plystream <command> [options]

Commands:
  load     Stream a chunked dataset in priority order, optionally merging to a PLY file
  chunk    Split PLY files into prioritized chunks plus a manifest
  info     Fetch and summarize a dataset manifest
  gallery  Reconcile the gallery manifest against its image files
  serve    Serve chunked models and gallery assets over HTTP

Run 'plystream <command> -h' for command-specific help.`)
}
