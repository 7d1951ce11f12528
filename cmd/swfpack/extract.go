package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"swfpack/internal/bundle"
	"swfpack/internal/utils"
)

var extractCmd = &cobra.Command{
	Use:   "extract <archive.zip> [key...]",
	Short: "Extract payloads from a container into a directory",
	Long: `Extract decompresses payloads out of the container and writes them
under the output directory, preserving any directory components of their
entry names. With no keys given, every indexed payload is extracted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()

		b, err := bundle.OpenZipped(args[0])
		if err != nil {
			return fmt.Errorf("opening container: %w", err)
		}
		defer b.Close()

		keys := args[1:]
		if len(keys) == 0 {
			keys = b.Keys()
		}

		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}

		progress := utils.NewProgress(len(keys), progressEnabled())

		var written int64
		for i, key := range keys {
			progress.Update(i+1, key)

			r, ok, err := b.Openable(key)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", key, err)
			}
			if !ok {
				return fmt.Errorf("container has no payload named %q", key)
			}

			dest, err := payloadDestination(cfg.Output, key)
			if err != nil {
				return err
			}

			n, err := writePayload(dest, r)
			if err != nil {
				return fmt.Errorf("writing %s: %w", dest, err)
			}
			written += n

			slog.Debug("Extracted payload", "key", key, "dest", dest, "size", n)
		}

		progress.Finish()

		fmt.Printf("Extracted %d payloads (%s) to %s in %s\n",
			len(keys), utils.Bytes(written), cfg.Output, time.Since(start).Round(time.Millisecond))

		return nil
	},
}

// payloadDestination maps an entry name onto the output directory, refusing
// names that would escape it.
func payloadDestination(dir, key string) (string, error) {
	dest := filepath.Join(dir, filepath.FromSlash(key))

	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry name %q escapes the output directory", key)
	}

	return dest, nil
}

func writePayload(dest string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, err
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, err
	}

	return n, f.Close()
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
