package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/0xcro3dile/docqa/internal/adapters/filewatcher"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

// WatchFolder turns dir into a drop folder: the newest supported file is
// ingested at start, then every created or modified file replaces the
// indexed document. It blocks until ctx is done.
func (a *App) WatchFolder(ctx context.Context, dir string, debounce time.Duration) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch folder: %s is not a directory", dir)
	}

	log := a.Logger.With("component", "drop-folder", "dir", dir)

	if newest := a.newestSupported(dir); newest != "" {
		a.ingestFromFolder(ctx, newest)
	}

	watcher, err := filewatcher.NewFSNotifyWatcher(a.Loader.SupportedExtensions(),
		filewatcher.WithDebounce(debounce),
		filewatcher.WithLogger(a.Logger),
	)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Stop()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	log.Info("watching for documents", "extensions", a.Loader.SupportedExtensions())

	for ev := range events {
		switch ev.Operation {
		case ports.FileCreated, ports.FileModified:
			a.ingestFromFolder(ctx, ev.Path)
		case ports.FileDeleted:
			log.Info("document removed from folder; index unchanged", "path", ev.Path)
		}
	}
	return ctx.Err()
}

func (a *App) ingestFromFolder(ctx context.Context, path string) {
	log := a.Logger.With("ingestion_id", uuid.NewString(), "path", path)
	log.Info("ingesting dropped document")

	res := a.IngestFile(ctx, path)
	if !res.Success {
		log.Error("ingestion failed", "outcome", res.Outcome, "error", res.Err)
		return
	}
	log.Info("ingestion finished", "chunks", res.ChunkCount, "words", res.TotalWordCount)
}

// newestSupported returns the most recently modified supported file in dir, or "".
func (a *App) newestSupported(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !a.Loader.Supports(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
