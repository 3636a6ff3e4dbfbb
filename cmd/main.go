package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/yago-123/bitalloc"
)

func main() {
	capacity := flag.Uint64("capacity", 1000, "number of slots")
	width := flag.Uint("width", 64, "word width in bits (32, 64 or 128)")
	workers := flag.Int("workers", 8, "concurrent workers")
	rounds := flag.Int("rounds", 10000, "acquire/release rounds per worker")
	snapshotPath := flag.String("snapshot", "", "write a snapshot to this file and restore it")
	verbose := flag.Bool("v", false, "log compare-and-swap retries")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := bitalloc.NewTextLogger(level)

	alloc := bitalloc.New(*capacity,
		bitalloc.WithWordWidth(bitalloc.WordWidth(*width)),
		bitalloc.WithLogger(logger),
	)
	defer alloc.Close()

	logger.Info("allocator created",
		"capacity", alloc.Capacity(),
		"len", alloc.Len(),
		"word_width", uint(alloc.WordWidth()),
	)

	var g errgroup.Group
	for w := range *workers {
		g.Go(func() error {
			for range *rounds {
				h, err := alloc.Acquire()
				if err != nil {
					return fmt.Errorf("worker %d: %w", w, err)
				}
				if errRelease := h.Release(); errRelease != nil {
					return fmt.Errorf("worker %d: %w", w, errRelease)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("churn failed", "error", err)
		return
	}

	// Leave a few slots held so the snapshot has content
	held := min(*capacity, 5)
	for range held {
		idx, ok := alloc.AllocBit()
		if !ok {
			break
		}
		logger.Info("allocated slot", "index", idx)
	}

	if *snapshotPath == "" {
		return
	}
	if err := writeSnapshot(alloc, *snapshotPath); err != nil {
		logger.Error("writing snapshot failed", "path", *snapshotPath, "error", err)
		return
	}

	restored, err := readSnapshot(*snapshotPath, logger)
	if err != nil {
		logger.Error("restoring snapshot failed", "path", *snapshotPath, "error", err)
		return
	}
	logger.Info("restored allocator from snapshot",
		"path", *snapshotPath,
		"allocated", restored.Count(),
	)
}

func writeSnapshot(alloc *bitalloc.Allocator, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err = alloc.Snapshot().WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readSnapshot(path string, logger *bitalloc.Logger) (*bitalloc.Allocator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	snap, err := bitalloc.ReadSnapshot(f)
	if err != nil {
		return nil, err
	}
	return bitalloc.NewFromSnapshot(snap, bitalloc.WithLogger(logger))
}
