package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var folderPattern = regexp.MustCompile(`^(\d{3})-`)

const scriptTemplate = `var AUTHOR = "%s";
var DATE = "%s";
var DESCRIPTION = "%s";

function migrate(ctx) {
	ctx.log("Starting migration");

	// ctx.createEntity({slug: "example", type: "person", data: {...}});

	ctx.log("Migration completed");
}
`

func newCreateCmd() *cobra.Command {
	var author string
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new migration folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			cfg := getConfigFromEnv()

			if err := os.MkdirAll(cfg.MigrationsDir, 0o755); err != nil {
				return fmt.Errorf("failed to create migrations directory: %w", err)
			}

			prefix, err := nextPrefix(cfg.MigrationsDir)
			if err != nil {
				return err
			}

			folder := filepath.Join(cfg.MigrationsDir, fmt.Sprintf("%03d-%s", prefix, name))
			if err := os.MkdirAll(folder, 0o755); err != nil {
				return fmt.Errorf("failed to create migration folder: %w", err)
			}

			if description == "" {
				description = "TODO: describe this migration"
			}
			script := fmt.Sprintf(scriptTemplate, author, time.Now().Format("2006-01-02"), description)

			scriptPath := filepath.Join(folder, "migrate.js")
			if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
				return fmt.Errorf("failed to create migration script: %w", err)
			}

			fmt.Printf("Created migration: %s\n", folder)
			return nil
		},
	}

	cmd.Flags().StringVar(&author, "author", "unknown", "Author recorded in the script metadata")
	cmd.Flags().StringVar(&description, "description", "", "Description recorded in the script metadata")
	return cmd
}

// nextPrefix returns one past the highest existing migration prefix.
func nextPrefix(migrationsDir string) (int, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	next := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		matches := folderPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		prefix, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if prefix >= next {
			next = prefix + 1
		}
	}
	return next, nil
}
