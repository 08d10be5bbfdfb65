package main

import (
	"fmt"

	"github.com/nepalentity/entmigrate"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var runAll bool
	var dryRun bool
	var noCommit bool
	var force bool
	var continueOnFailure bool

	cmd := &cobra.Command{
		Use:   "run [migration-name]",
		Short: "Run one migration or all pending migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !runAll {
				return fmt.Errorf("must specify either a migration name or --all")
			}
			if len(args) == 1 && runAll {
				return fmt.Errorf("cannot specify both a migration name and --all")
			}

			cfg := getConfigFromEnv()
			runner, err := entmigrate.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create runner: %w", err)
			}

			if runAll {
				pending, err := runner.Manager().PendingMigrations(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to determine pending migrations: %w", err)
				}
				if len(pending) == 0 {
					fmt.Println("No pending migrations to run.")
					return nil
				}

				fmt.Printf("Found %d pending migration(s):\n", len(pending))
				for _, m := range pending {
					fmt.Printf("  - %s\n", m.FullName())
				}
				fmt.Println()

				results, summary := runner.RunMigrations(cmd.Context(), pending, entmigrate.BatchOptions{
					DryRun:        dryRun,
					AutoCommit:    !noCommit,
					StopOnFailure: !continueOnFailure,
				})

				for _, result := range results {
					printResult(result)
				}
				fmt.Printf("\nBatch complete: %s\n", summary)

				if summary.Failed > 0 {
					return fmt.Errorf("%d migration(s) failed", summary.Failed)
				}
				return nil
			}

			migration, err := runner.Manager().MigrationByName(args[0])
			if err != nil {
				return err
			}

			result := runner.RunMigration(cmd.Context(), *migration, entmigrate.Options{
				DryRun:     dryRun,
				AutoCommit: !noCommit,
				Force:      force,
			})
			printResult(result)

			if result.Status == entmigrate.StatusFailed {
				return fmt.Errorf("migration %s failed: %v", migration.FullName(), result.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&runAll, "all", false, "Run all pending migrations")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Execute without committing changes")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Skip the commit and push step")
	cmd.Flags().BoolVar(&force, "force", false, "Re-execute even if already applied")
	cmd.Flags().BoolVar(&continueOnFailure, "continue-on-failure", false, "Keep running after a failed migration")
	return cmd
}

func printResult(result *entmigrate.MigrationResult) {
	switch result.Status {
	case entmigrate.StatusCompleted:
		fmt.Printf("✓ %s\n", result.Migration.FullName())
		fmt.Printf("  Duration: %.1fs\n", result.DurationSeconds)
		fmt.Printf("  Entities created: %d\n", result.EntitiesCreated)
		fmt.Printf("  Relationships created: %d\n", result.RelationshipsCreated)
		if result.CommitSHA != "" {
			fmt.Printf("  Commit: %s\n", result.CommitSHA)
		}
	case entmigrate.StatusSkipped:
		fmt.Printf("⊘ %s (skipped - already applied)\n", result.Migration.FullName())
	case entmigrate.StatusFailed:
		fmt.Printf("✗ %s (FAILED)\n", result.Migration.FullName())
		fmt.Printf("  Error: %v\n", result.Err)
	}
}
