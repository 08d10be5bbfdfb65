package entmigrate

import (
	"context"
	"fmt"
)

// Config wires a Runner to a migrations directory and the git repository
// holding the record store.
type Config struct {
	// MigrationsDir holds the NNN-name migration folders.
	MigrationsDir string
	// RepoPath is the git working copy that is both the record store and
	// the durability mechanism.
	RepoPath string
	// Logger is optional; a logrus-backed default is used when nil.
	Logger Logger
}

// New builds a Runner over a file-backed store and an exec-based git client,
// and applies best-effort repository tuning for large working trees.
func New(cfg Config) (*Runner, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = newDefaultLogger()
	}

	store, err := NewFileStore(cfg.RepoPath, logger)
	if err != nil {
		return nil, err
	}

	git := newExecGit(cfg.RepoPath, logger)
	mgr := newManagerWithGit(cfg.MigrationsDir, cfg.RepoPath, git, logger)

	tuneRepository(context.Background(), cfg.RepoPath, git, logger)

	runner := newRunner(store, store, mgr, git, logger)
	logger.Info("migration runner initialized",
		"migrations", cfg.MigrationsDir, "repo", cfg.RepoPath)
	return runner, nil
}

// Manager exposes the runner's discovery and idempotence collaborator.
func (r *Runner) Manager() Manager {
	return r.manager
}

func validateConfig(cfg Config) error {
	if cfg.MigrationsDir == "" {
		return fmt.Errorf("%w: MigrationsDir is required", ErrInvalidConfig)
	}
	if cfg.RepoPath == "" {
		return fmt.Errorf("%w: RepoPath is required", ErrInvalidConfig)
	}
	return nil
}
