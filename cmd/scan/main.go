// Command scan drives one pass of the library scanner over the
// configured media library roots: a cobra-driven single-pass/--watch CLI
// that delegates the actual work to internal/scanner.Scanner.Run instead of
// a self-contained ingest loop.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"lms/internal/config"
	"lms/internal/objstore"
	"lms/internal/scanner"
	"lms/internal/som"
	"lms/internal/store"
)

var flagWatch bool

var rootCmd = &cobra.Command{
	Use: "lms-scan",
	Short: "Run a library scan pass against the configured media library roots",
	RunE: run,
}

func init {
	rootCmd.Flags.BoolVar(&flagWatch, "watch", false, "After the initial pass, watch library roots and rescan on filesystem events")
}

func main {
	if err := rootCmd.Execute; err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background, syscall.SIGINT, syscall.SIGTERM)
	defer stop

	cfg := config.Load

	db, err := store.Open(cfg.DBPath, cfg.DBPoolSize)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close
	db.ShowQueries(cfg.DBShowQueries)

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var obj objstore.ObjectStore
	switch cfg.StoreBackend {
	case "s3":
		obj, err = objstore.NewS3(ctx, objstore.S3Config{
			Endpoint: cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket: cfg.StoreBucket,
		})
	default:
		obj, err = objstore.NewLocalFS(cfg.StoreRoot)
	}
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	recommender := som.New

	progress := func(s scanner.StepStats) {
		slog.Info("scan progress", "step", s.Step, "processed", s.ProcessedElems, "total", s.TotalElems)
	}
	sc := scanner.New(db, cfg, obj, recommender, progress)

	runOnce := func error {
		stats, err := sc.Run(ctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		slog.Info("scan complete",
			"added", stats.Added, "updated", stats.Updated, "removed", stats.Removed,
			"lyrics_linked", stats.LyricsLinked, "playlist_files", stats.PlaylistFiles,
			"images_linked", stats.ImagesLinked, "artists_fetched", stats.ArtistsFetched,
			"errors", stats.Errors)
		return nil
	}

	if err := runOnce; err != nil {
		return err
	}
	if !flagWatch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close

	for _, root := range cfg.MediaLibraryRoots {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr == nil && info.IsDir {
				_ = watcher.Add(path)
			}
			return nil
		})
	}
	slog.Info("watching library roots", "roots", cfg.MediaLibraryRoots)

	for {
		select {
		case <-ctx.Done:
			return nil
		case _, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := runOnce; err != nil {
				slog.Error("rescan failed", "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "err", err)
		}
	}
}
