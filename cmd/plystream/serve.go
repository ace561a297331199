package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	addr := fs.String("addr", ":8080", "Listen address")
	models := fs.String("models", "", "Directory with chunked models (required)")
	galleryDir := fs.String("gallery", "", "Gallery directory to serve (optional)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: plystream serve [options]

Serve chunked models (and optionally gallery assets) over HTTP for
local development. Models are exposed under /models/chunks/, so a
loader pointed at http://<addr> resolves dataset names directly.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if *models == "" {
		fmt.Fprintln(os.Stderr, "Error: -models is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if _, err := os.Stat(*models); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.Static("/models/chunks", *models)
	if *galleryDir != "" {
		router.Static("/gallery", *galleryDir)
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(os.Stderr, "[plystream] Serving %s on %s\n", *models, *addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	case <-sigCh:
		fmt.Fprintln(os.Stderr, "\n[plystream] Received interrupt, shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	return ExitSuccess
}
