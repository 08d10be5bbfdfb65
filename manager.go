package entmigrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/parser"
)

var migrationFolderPattern = regexp.MustCompile(`^(\d{3})-(.+)$`)

const appliedCacheKey = "applied-migrations"

// manager discovers migration folders and answers idempotence queries
// against the repository's commit history. The applied set is cached; the
// runner invalidates it through ClearCache after a confirmed push.
type manager struct {
	migrationsDir string
	repoPath      string
	git           GitClient
	logger        Logger
	cache         gcache.Cache
}

// NewManager builds a Manager over a migrations directory and the git
// repository holding the record store.
func NewManager(migrationsDir, repoPath string, logger Logger) Manager {
	if logger == nil {
		logger = newDefaultLogger()
	}
	return newManagerWithGit(migrationsDir, repoPath, newExecGit(repoPath, logger), logger)
}

func newManagerWithGit(migrationsDir, repoPath string, git GitClient, logger Logger) *manager {
	return &manager{
		migrationsDir: migrationsDir,
		repoPath:      repoPath,
		git:           git,
		logger:        logger,
		cache:         gcache.New(8).LRU().Build(),
	}
}

func (m *manager) RepoPath() string {
	return m.repoPath
}

// DiscoverMigrations scans the migrations directory for NNN-name folders,
// sorted by prefix. Folders without a script are skipped with a warning.
func (m *manager) DiscoverMigrations() ([]Migration, error) {
	m.logger.Debug("discovering migrations", "dir", m.migrationsDir)

	entries, err := os.ReadDir(m.migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Warn("migrations directory does not exist", "dir", m.migrationsDir)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		matches := migrationFolderPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			m.logger.Warn("skipping folder with invalid migration name", "folder", entry.Name())
			continue
		}

		prefix, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		folderPath := filepath.Join(m.migrationsDir, entry.Name())

		scriptPath := filepath.Join(folderPath, "migrate.js")
		if _, err := os.Stat(scriptPath); err != nil {
			scriptPath = filepath.Join(folderPath, "run.js")
			if _, err := os.Stat(scriptPath); err != nil {
				m.logger.Warn("skipping migration folder without script", "folder", entry.Name())
				continue
			}
		}

		readmePath := filepath.Join(folderPath, "README.md")
		if _, err := os.Stat(readmePath); err != nil {
			readmePath = ""
		}

		migration := Migration{
			Prefix:     prefix,
			Name:       matches[2],
			FolderPath: folderPath,
			ScriptPath: scriptPath,
			ReadmePath: readmePath,
		}
		m.fillMetadata(&migration)

		migrations = append(migrations, migration)
		m.logger.Debug("discovered migration", "migration", migration.FullName())
	}

	// ReadDir returns entries sorted by name; zero-padded prefixes keep that
	// identical to prefix order.
	m.logger.Info("discovered migrations", "count", len(migrations))
	return migrations, nil
}

// fillMetadata statically extracts the AUTHOR/DATE/DESCRIPTION constants
// from the script without executing it. Failures only cost the display
// metadata; the loader re-validates before execution.
func (m *manager) fillMetadata(migration *Migration) {
	src, err := os.ReadFile(migration.ScriptPath)
	if err != nil {
		m.logger.Warn("failed to read script for metadata", "script", migration.ScriptPath, "error", err)
		return
	}

	program, err := parser.ParseFile(nil, migration.ScriptPath, string(src), 0)
	if err != nil {
		m.logger.Warn("failed to parse script for metadata", "script", migration.ScriptPath, "error", err)
		return
	}

	for _, stmt := range program.Body {
		varStmt, ok := stmt.(*ast.VariableStatement)
		if !ok {
			continue
		}
		for _, expr := range varStmt.List {
			varExpr, ok := expr.(*ast.VariableExpression)
			if !ok {
				continue
			}
			lit, ok := varExpr.Initializer.(*ast.StringLiteral)
			if !ok {
				continue
			}
			switch varExpr.Name {
			case "AUTHOR":
				migration.Author = lit.Value
			case "DATE":
				if t, err := time.Parse("2006-01-02", lit.Value); err == nil {
					migration.Date = &t
				} else {
					m.logger.Warn("invalid DATE format in script", "script", migration.ScriptPath, "date", lit.Value)
				}
			case "DESCRIPTION":
				migration.Description = lit.Value
			}
		}
	}
}

// AppliedMigrations returns the full names of migrations whose snapshots are
// already committed, folding batch commits into one entry. Results are
// cached until ClearCache.
func (m *manager) AppliedMigrations(ctx context.Context) ([]string, error) {
	if cached, err := m.cache.Get(appliedCacheKey); err == nil {
		applied := cached.([]string)
		m.logger.Debug("returning cached applied migrations", "count", len(applied))
		return applied, nil
	}

	applied := m.queryAppliedMigrations(ctx)
	if err := m.cache.Set(appliedCacheKey, applied); err != nil {
		m.logger.Warn("failed to cache applied migrations", "error", err)
	}
	return applied, nil
}

func (m *manager) queryAppliedMigrations(ctx context.Context) []string {
	if _, err := os.Stat(m.repoPath); err != nil {
		m.logger.Warn("repository does not exist", "path", m.repoPath)
		return []string{}
	}
	if _, err := os.Stat(filepath.Join(m.repoPath, ".git")); err != nil {
		m.logger.Warn("not a git repository", "path", m.repoPath)
		return []string{}
	}

	m.logger.Info("querying git log for applied migrations", "repo", m.repoPath)

	lines, err := m.git.Log(ctx, "^Migration:", "%s")
	if err != nil {
		m.logger.Error("git log query failed", "error", err)
		return []string{}
	}

	applied := make([]string, 0, len(lines))
	seen := make(map[string]bool)
	for _, line := range lines {
		if !strings.HasPrefix(line, "Migration: ") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(line, "Migration: "))
		if idx := strings.Index(name, " (Batch "); idx >= 0 {
			name = name[:idx]
		}
		if !seen[name] {
			seen[name] = true
			applied = append(applied, name)
			m.logger.Debug("found applied migration", "migration", name)
		}
	}

	m.logger.Info("found applied migrations in git history", "count", len(applied))
	return applied
}

// ClearCache drops the cached applied set so the next idempotence check
// observes new commits. This is the single invalidation entry point.
func (m *manager) ClearCache() {
	m.logger.Debug("clearing applied migrations cache")
	m.cache.Purge()
}

func (m *manager) PendingMigrations(ctx context.Context) ([]Migration, error) {
	all, err := m.DiscoverMigrations()
	if err != nil {
		return nil, err
	}

	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	appliedSet := make(map[string]bool, len(applied))
	for _, name := range applied {
		appliedSet[name] = true
	}

	var pending []Migration
	for _, migration := range all {
		if !appliedSet[migration.FullName()] {
			pending = append(pending, migration)
		}
	}

	m.logger.Info("determined pending migrations", "count", len(pending))
	return pending, nil
}

func (m *manager) MigrationByName(name string) (*Migration, error) {
	migrations, err := m.DiscoverMigrations()
	if err != nil {
		return nil, err
	}
	for _, migration := range migrations {
		if migration.FullName() == name {
			return &migration, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMigrationNotFound, name)
}

func (m *manager) IsApplied(ctx context.Context, migration Migration) (bool, error) {
	applied, err := m.AppliedMigrations(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range applied {
		if name == migration.FullName() {
			return true, nil
		}
	}
	return false, nil
}
