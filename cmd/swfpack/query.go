package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"swfpack/internal/catalog"
	"swfpack/internal/utils"
)

var queryCmd = &cobra.Command{
	Use:   "query [SQL]",
	Short: "Query the catalog database directly from command line",
	Long: `Query inspects the inventory recorded by scan: list scanned
containers, find which containers hold a given key, or run an arbitrary SQL
query against the catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		listContainers, err := cmd.Flags().GetBool("containers")
		if err != nil {
			return fmt.Errorf("failed to get containers flag: %w", err)
		}
		key, err := cmd.Flags().GetString("key")
		if err != nil {
			return fmt.Errorf("failed to get key flag: %w", err)
		}

		slog.Debug("Query parameters",
			"catalog", cfg.Catalog,
			"list-containers", listContainers,
			"key", key)

		cat, err := catalog.Open(catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer cat.Close()

		// Handle --containers flag
		if listContainers {
			containers, err := cat.Containers(ctx)
			if err != nil {
				return fmt.Errorf("listing containers: %w", err)
			}

			fmt.Println("Scanned containers:")
			for _, c := range containers {
				fmt.Printf("  %8s  %s  (scanned %s)\n",
					utils.Bytes(c.Size), c.Path, c.ScannedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		}

		// Handle --key flag
		if key != "" {
			hits, err := cat.FindKey(ctx, key)
			if err != nil {
				return fmt.Errorf("finding key %s: %w", key, err)
			}

			if len(hits) == 0 {
				fmt.Printf("No container holds %q\n", key)
				return nil
			}

			for _, p := range hits {
				fmt.Printf("  %8s  %s\n", utils.Bytes(p.Size), p.ContainerPath)
			}
			return nil
		}

		// Handle SQL query execution
		if len(args) > 0 {
			query := args[0]
			slog.Debug("Executing SQL query", "query", query)

			rows, err := cat.Query(ctx, query)
			if err != nil {
				return fmt.Errorf("executing query: %w", err)
			}
			defer rows.Close()

			columns, err := rows.Columns()
			if err != nil {
				return fmt.Errorf("getting column names: %w", err)
			}

			for i, col := range columns {
				if i > 0 {
					fmt.Print("\t")
				}
				fmt.Print(col)
			}
			fmt.Println()

			for i, col := range columns {
				if i > 0 {
					fmt.Print("\t")
				}
				fmt.Print(strings.Repeat("-", len(col)))
			}
			fmt.Println()

			for rows.Next() {
				values := make([]interface{}, len(columns))
				valuePtrs := make([]interface{}, len(columns))
				for i := range values {
					valuePtrs[i] = &values[i]
				}

				if err := rows.Scan(valuePtrs...); err != nil {
					return fmt.Errorf("scanning row: %w", err)
				}

				for i, val := range values {
					if i > 0 {
						fmt.Print("\t")
					}
					if val != nil {
						fmt.Print(val)
					} else {
						fmt.Print("NULL")
					}
				}
				fmt.Println()
			}

			if err := rows.Err(); err != nil {
				return fmt.Errorf("iterating rows: %w", err)
			}

			return nil
		}

		return fmt.Errorf("no query provided, use --containers to list containers or --key <key> to find a payload")
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("containers", false, "List scanned containers")
	queryCmd.Flags().String("key", "", "Find containers holding the given payload key")
}
