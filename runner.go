package entmigrate

import (
	"context"
	"fmt"
)

// Runner drives the per-migration state machine and the sequential batch
// loop. It never returns an error to its caller: every failure mode is
// encoded in the returned result.
type Runner struct {
	store   EntityStore
	search  Searcher
	manager Manager
	loader  *scriptLoader
	persist *persistence
	logger  Logger
	clock   clock
}

func newRunner(store EntityStore, search Searcher, manager Manager, git GitClient, logger Logger) *Runner {
	return &Runner{
		store:   store,
		search:  search,
		manager: manager,
		loader:  newScriptLoader(logger),
		persist: newPersistence(git, manager, logger),
		logger:  logger,
		clock:   systemClock{},
	}
}

// RunMigration executes one migration: idempotence check, script load and
// validation, execution with count tracking, then optional persistence. A
// COMPLETED run whose persistence step fails is downgraded to FAILED before
// being returned.
func (r *Runner) RunMigration(ctx context.Context, migration Migration, opts Options) *MigrationResult {
	r.logger.Info("running migration", "migration", migration.FullName())

	result := &MigrationResult{
		Migration: migration,
		Status:    StatusRunning,
	}

	applied, err := r.manager.IsApplied(ctx, migration)
	if err != nil {
		// A stale "not yet applied" is safe; the commit itself is the
		// durability boundary.
		r.logger.Warn("idempotence check failed, treating as not applied", "error", err)
		applied = false
	}

	if applied && !opts.Force {
		r.logger.Info("migration already applied (persisted snapshot exists), skipping",
			"migration", migration.FullName())
		result.Status = StatusSkipped
		result.Logs = append(result.Logs,
			fmt.Sprintf("Migration %s already applied, skipping", migration.FullName()))
		return result
	}

	if applied && opts.Force {
		r.logger.Warn("force flag set: re-executing already-applied migration",
			"migration", migration.FullName())
		result.Logs = append(result.Logs, "WARNING: Force re-execution of already-applied migration")
	}

	proc, meta, err := r.loader.load(migration)
	if err != nil {
		r.logger.Error("failed to load migration script", "error", err)
		result.Status = StatusFailed
		result.Err = err
		result.Logs = append(result.Logs, fmt.Sprintf("Failed to load migration script: %v", err))
		return result
	}

	// Discovery may not have seen the metadata; the validated script is
	// authoritative for the commit message.
	applyMetadata(&migration, meta)
	result.Migration = migration

	execContext := newContext(ctx, r.store, r.search, migration.FolderPath, r.logger)
	jsContext, err := execContext.bind(proc.vm)
	if err != nil {
		result.Status = StatusFailed
		result.Err = fmt.Errorf("failed to build execution context: %w", err)
		result.Logs = append(result.Logs, fmt.Sprintf("Failed to build execution context: %v", err))
		return result
	}

	entitiesBefore := r.countEntities(ctx)
	relationshipsBefore := r.countRelationships(ctx)

	r.logger.Info("executing migration", "migration", migration.FullName())
	start := r.clock.Now()
	runErr := proc.invoke(jsContext)
	result.DurationSeconds = r.clock.Now().Sub(start).Seconds()

	if runErr != nil {
		result.Status = StatusFailed
		result.Err = runErr
		result.Logs = append(result.Logs, execContext.Logs()...)
		result.Logs = append(result.Logs, fmt.Sprintf("ERROR: %v", runErr))
		result.Logs = append(result.Logs, "Traceback:\n"+trace(runErr))
		r.logger.Error("migration failed", "migration", migration.FullName(),
			"duration", fmt.Sprintf("%.1fs", result.DurationSeconds), "error", runErr)
		return result
	}

	entitiesAfter := r.countEntities(ctx)
	relationshipsAfter := r.countRelationships(ctx)

	result.EntitiesCreated = clampDelta(entitiesAfter-entitiesBefore, "entity", result)
	result.RelationshipsCreated = clampDelta(relationshipsAfter-relationshipsBefore, "relationship", result)

	result.Logs = append(result.Logs, execContext.Logs()...)
	result.Status = StatusCompleted

	r.logger.Info("migration completed",
		"migration", migration.FullName(),
		"duration", fmt.Sprintf("%.1fs", result.DurationSeconds),
		"entities", result.EntitiesCreated,
		"relationships", result.RelationshipsCreated)

	if opts.AutoCommit && !opts.DryRun {
		if err := r.persist.CommitAndPush(ctx, migration, result, false); err != nil {
			r.logger.Error("failed to commit changes", "error", err)
			result.Status = StatusFailed
			result.Err = err
			result.Logs = append(result.Logs, fmt.Sprintf("ERROR: Failed to commit changes: %v", err))
		}
	}

	return result
}

// RunMigrations executes migrations strictly in the given order. Force is
// never applied in batch mode. When stopOnFailure is set, migrations after
// the first failure are not attempted and not represented in the output.
func (r *Runner) RunMigrations(ctx context.Context, migrations []Migration, opts BatchOptions) ([]*MigrationResult, Summary) {
	r.logger.Info("running migration batch", "count", len(migrations))

	var results []*MigrationResult
	var summary Summary

	for i, migration := range migrations {
		r.logger.Info("processing migration",
			"position", fmt.Sprintf("%d/%d", i+1, len(migrations)), "migration", migration.FullName())

		result := r.RunMigration(ctx, migration, Options{
			DryRun:     opts.DryRun,
			AutoCommit: opts.AutoCommit,
		})
		results = append(results, result)

		switch result.Status {
		case StatusCompleted:
			summary.Completed++
			r.logger.Info("migration completed",
				"migration", migration.FullName(),
				"entities", result.EntitiesCreated, "relationships", result.RelationshipsCreated)
		case StatusSkipped:
			summary.Skipped++
			r.logger.Info("migration skipped (already applied)", "migration", migration.FullName())
		case StatusFailed:
			summary.Failed++
			r.logger.Error("migration failed", "migration", migration.FullName(), "error", result.Err)
			if opts.StopOnFailure {
				r.logger.Error("stopping batch execution due to failure", "migration", migration.FullName())
				return results, summary
			}
		}
	}

	r.logger.Info("batch execution complete", "summary", summary.String())
	return results, summary
}

func (r *Runner) countEntities(ctx context.Context) int {
	entities, err := r.store.ListEntities(ctx)
	if err != nil {
		r.logger.Warn("failed to count entities", "error", err)
		return 0
	}
	return len(entities)
}

func (r *Runner) countRelationships(ctx context.Context) int {
	relationships, err := r.store.ListRelationships(ctx)
	if err != nil {
		r.logger.Warn("failed to count relationships", "error", err)
		return 0
	}
	return len(relationships)
}

// clampDelta guards the created counters against deletions or concurrent
// mutation making the full-listing delta negative. The clamp is never
// silent: an integrity warning lands in the result logs.
func clampDelta(delta int, kind string, result *MigrationResult) int {
	if delta >= 0 {
		return delta
	}
	result.Logs = append(result.Logs,
		fmt.Sprintf("WARNING: negative %s delta (%d); counting integrity cannot be guaranteed, reporting 0 created", kind, delta))
	return 0
}

func applyMetadata(migration *Migration, meta *scriptMetadata) {
	if migration.Author == "" {
		migration.Author = meta.Author
	}
	if migration.Description == "" {
		migration.Description = meta.Description
	}
	if migration.Date == nil && meta.Date != "" {
		if t, err := parseScriptDate(meta.Date); err == nil {
			migration.Date = &t
		}
	}
}
