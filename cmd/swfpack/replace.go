package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"swfpack/internal/bundle"
)

var replaceCmd = &cobra.Command{
	Use:   "replace <archive.zip> <key> <payload-file>",
	Short: "Replace the bytes of an existing payload in place",
	Long: `Replace rewrites the container with the named payload's bytes taken
from the given file. Every other entry is copied through byte-identical, and
the container is swapped atomically so it always holds either the old or the
new content. Replace never adds new entries; the key must already exist.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, key, payloadFile := args[0], args[1], args[2]

		b, err := bundle.OpenZipped(archive)
		if err != nil {
			return fmt.Errorf("opening container: %w", err)
		}
		defer b.Close()

		f, err := os.Open(payloadFile)
		if err != nil {
			return fmt.Errorf("opening replacement payload: %w", err)
		}
		defer f.Close()

		ok, err := b.Put(key, f)
		if err != nil {
			return fmt.Errorf("replacing %s: %w", key, err)
		}
		if !ok {
			if b.ReadOnly() {
				return fmt.Errorf("container %s is not writable", archive)
			}
			return fmt.Errorf("container has no payload named %q (replace never adds entries)", key)
		}

		slog.Info("Replaced payload", "container", archive, "key", key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replaceCmd)
}
