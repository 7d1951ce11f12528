package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"swfpack/internal/bundle"
	"swfpack/internal/catalog"
	"swfpack/internal/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path|dir>...",
	Short: "Record container inventories into the catalog database",
	Long: `Scan indexes each given container (directories are walked for *.zip
files) and records its payload keys and sizes into the SQLite catalog, so
collections of containers can be searched without re-opening every file.
Re-scanning a container replaces its previous rows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		start := time.Now()

		paths, err := collectContainers(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			slog.Info("No containers found", "args", args)
			return nil
		}

		cat, err := catalog.Open(catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer cat.Close()

		progress := utils.NewProgress(len(paths), progressEnabled())

		scanned := 0
		recorded := 0
		failures := 0
		for i, path := range paths {
			progress.Update(i+1, filepath.Base(path))

			n, err := scanContainer(ctx, cat, path)
			if err != nil {
				slog.Error("Failed to scan container", "path", path, "error", err)
				failures++
				continue
			}

			scanned++
			recorded += n
		}

		progress.Finish()

		fmt.Printf("Containers scanned: %d/%d\n", scanned, len(paths))
		fmt.Printf("Payloads recorded: %d\n", recorded)
		fmt.Printf("Failures: %d\n", failures)
		fmt.Printf("Duration: %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Println("Try running: swfpack query --containers")

		if failures > 0 {
			return fmt.Errorf("%d of %d containers failed to scan", failures, len(paths))
		}
		return nil
	},
}

// scanContainer indexes one container and records its inventory, returning
// the number of payload rows written.
func scanContainer(ctx context.Context, cat *catalog.Catalog, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stating container: %w", err)
	}

	b, err := bundle.OpenZipped(abs)
	if err != nil {
		return 0, err
	}
	defer b.Close()

	payloads := make([]catalog.PayloadInfo, 0, b.Len())
	for _, key := range b.Keys() {
		r, ok, err := b.Openable(key)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		payloads = append(payloads, catalog.PayloadInfo{Key: key, Size: r.Size()})
	}

	if err := cat.RecordContainer(ctx, abs, info.Size(), payloads); err != nil {
		return 0, err
	}

	return len(payloads), nil
}

// collectContainers expands the command arguments into container paths,
// walking directories for *.zip files.
func collectContainers(args []string) ([]string, error) {
	var paths []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stating %s: %w", arg, err)
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".zip") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}

	return paths, nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
