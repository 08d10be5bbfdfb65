package main

import (
	"encoding/json"
	"fmt"

	"github.com/nepalentity/entmigrate"
	"github.com/spf13/cobra"
)

type migrationListing struct {
	Name        string `json:"name"`
	Prefix      int    `json:"prefix"`
	Status      string `json:"status"`
	Author      string `json:"author,omitempty"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
}

func newListCmd() *cobra.Command {
	var pendingOnly bool
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List migrations with their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfigFromEnv()
			mgr := entmigrate.NewManager(cfg.MigrationsDir, cfg.RepoPath, nil)

			migrations, err := mgr.DiscoverMigrations()
			if err != nil {
				return fmt.Errorf("failed to discover migrations: %w", err)
			}

			applied, err := mgr.AppliedMigrations(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to query applied migrations: %w", err)
			}
			appliedSet := make(map[string]bool, len(applied))
			for _, name := range applied {
				appliedSet[name] = true
			}

			appliedCount := 0
			var listings []migrationListing
			for _, m := range migrations {
				isApplied := appliedSet[m.FullName()]
				if isApplied {
					appliedCount++
				}
				if pendingOnly && isApplied {
					continue
				}
				status := "pending"
				if isApplied {
					status = "applied"
				}
				date := ""
				if m.Date != nil {
					date = m.Date.Format("2006-01-02")
				}
				listings = append(listings, migrationListing{
					Name:        m.FullName(),
					Prefix:      m.Prefix,
					Status:      status,
					Author:      m.Author,
					Date:        date,
					Description: m.Description,
				})
			}

			if outputJSON {
				out, err := json.MarshalIndent(map[string]any{
					"migrations": listings,
					"summary": map[string]int{
						"total":   len(migrations),
						"applied": appliedCount,
						"pending": len(migrations) - appliedCount,
					},
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			if len(listings) == 0 {
				if pendingOnly {
					fmt.Println("No pending migrations. All migrations have been applied.")
				} else {
					fmt.Println("No migrations found.")
				}
				return nil
			}

			fmt.Println("Migration                      | Status  | Author               | Date")
			fmt.Println("-------------------------------|---------|----------------------|-----------")
			for _, l := range listings {
				author := l.Author
				if author == "" {
					author = "unknown"
				}
				date := l.Date
				if date == "" {
					date = "unknown"
				}
				fmt.Printf("%-30s | %-7s | %-20s | %s\n", l.Name, l.Status, author, date)
				if l.Description != "" {
					fmt.Printf("  %s\n", l.Description)
				}
			}
			fmt.Printf("\nTotal: %d migrations (%d applied, %d pending)\n",
				len(migrations), appliedCount, len(migrations) - appliedCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Show only pending migrations")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	return cmd
}
