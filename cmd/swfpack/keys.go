package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"swfpack/internal/bundle"
	"swfpack/internal/utils"
)

var keysLong bool

var keysCmd = &cobra.Command{
	Use:   "keys <archive.zip>",
	Short: "List the payload keys of a container",
	Long: `Keys prints the name of every recognized Flash payload inside the
container, one per line. Entries with unrecognized extensions are part of
the container but never indexed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := bundle.OpenZipped(args[0])
		if err != nil {
			return fmt.Errorf("opening container: %w", err)
		}
		defer b.Close()

		slog.Debug("Opened container", "path", args[0], "keys", b.Len(), "read_only", b.ReadOnly())

		for _, key := range b.Keys() {
			if !keysLong {
				fmt.Println(key)
				continue
			}

			r, ok, err := b.Openable(key)
			if err != nil {
				return fmt.Errorf("extracting %s: %w", key, err)
			}
			if !ok {
				continue
			}
			fmt.Printf("%8s  %s\n", utils.Bytes(r.Size()), key)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.Flags().BoolVarP(&keysLong, "long", "l", false, "include uncompressed payload sizes")
}
