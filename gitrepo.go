package entmigrate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	statusTimeout    = 30 * time.Second
	stageAllTimeout  = 300 * time.Second
	stageFileTimeout = 10 * time.Second
	commitTimeout    = 300 * time.Second
	remoteTimeout    = 10 * time.Second
	pushTimeout      = 1800 * time.Second
	configTimeout    = 10 * time.Second
	logTimeout       = 30 * time.Second

	// batchCommitThreshold bounds a single commit; changesets at or above it
	// are partitioned into fixed batches of this size.
	batchCommitThreshold = 1000
)

// execGit runs the git CLI against one repository. Calls never run
// concurrently against the same repository; the runner is strictly
// sequential.
type execGit struct {
	repoPath string
	logger   Logger
}

func newExecGit(repoPath string, logger Logger) *execGit {
	return &execGit{repoPath: repoPath, logger: logger}
}

func (g *execGit) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = g.repoPath

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("%w: git %s timed out after %s", ErrGitOperation, args[0], timeout)
	}
	if err != nil {
		return "", fmt.Errorf("%w: git %s: %v: %s", ErrGitOperation, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Status lists changed paths, staged and unstaged, relative to the
// repository root. Porcelain format: 2-character code, space, path.
func (g *execGit) Status(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, statusTimeout, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if len(line) < 4 {
			continue
		}
		if strings.TrimSpace(line[:2]) == "" {
			continue
		}
		changed = append(changed, strings.TrimSpace(line[3:]))
	}
	return changed, nil
}

func (g *execGit) AddAll(ctx context.Context) error {
	_, err := g.run(ctx, stageAllTimeout, "add", "-A")
	return err
}

func (g *execGit) Add(ctx context.Context, path string) error {
	_, err := g.run(ctx, stageFileTimeout, "add", path)
	return err
}

func (g *execGit) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, commitTimeout, "commit", "-m", message)
	return err
}

func (g *execGit) Remotes(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, remoteTimeout, "remote")
	if err != nil {
		return nil, err
	}
	var remotes []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			remotes = append(remotes, line)
		}
	}
	return remotes, nil
}

func (g *execGit) Push(ctx context.Context) error {
	_, err := g.run(ctx, pushTimeout, "push")
	return err
}

func (g *execGit) SetConfig(ctx context.Context, key, value string) error {
	_, err := g.run(ctx, configTimeout, "config", key, value)
	return err
}

func (g *execGit) Head(ctx context.Context) (string, error) {
	out, err := g.run(ctx, configTimeout, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *execGit) Log(ctx context.Context, grep, format string) ([]string, error) {
	out, err := g.run(ctx, logTimeout, "log", "--grep="+grep, "--format="+format)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// persistence durably records a migration's side effects by committing the
// repository changes and pushing them. A confirmed success invalidates the
// manager's applied cache so the next idempotence check observes the new
// commit.
type persistence struct {
	git     GitClient
	manager Manager
	logger  Logger
}

func newPersistence(git GitClient, manager Manager, logger Logger) *persistence {
	return &persistence{git: git, manager: manager, logger: logger}
}

func (p *persistence) CommitAndPush(ctx context.Context, migration Migration, result *MigrationResult, dryRun bool) error {
	if dryRun {
		p.logger.Info("dry run mode: skipping commit and push")
		return nil
	}

	p.logger.Info("committing changes", "migration", migration.FullName())

	changed, err := p.git.Status(ctx)
	if err != nil {
		p.logger.Error("failed to enumerate changed files", "error", err)
		changed = nil
	}

	if len(changed) == 0 {
		p.logger.Info("no changes to commit")
		return nil
	}

	p.logger.Info("found changed files", "count", len(changed))

	if len(changed) < batchCommitThreshold {
		if err := p.commitAll(ctx, migration, result); err != nil {
			return err
		}
	} else {
		if err := p.commitInBatches(ctx, migration, result, changed); err != nil {
			return err
		}
	}

	if err := p.pushToRemote(ctx); err != nil {
		return err
	}

	if sha, err := p.git.Head(ctx); err == nil {
		result.CommitSHA = sha
	}

	// Only after a confirmed successful push; never speculatively.
	p.manager.ClearCache()

	p.logger.Info("successfully committed and pushed migration", "migration", migration.FullName())
	return nil
}

func (p *persistence) commitAll(ctx context.Context, migration Migration, result *MigrationResult) error {
	p.logger.Info("creating single commit for all changes")

	if err := p.git.AddAll(ctx); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}
	if err := p.git.Commit(ctx, commitMessage(migration, result, 0, 0)); err != nil {
		return fmt.Errorf("failed to commit changes: %w", err)
	}
	return nil
}

func (p *persistence) commitInBatches(ctx context.Context, migration Migration, result *MigrationResult, changed []string) error {
	totalBatches := (len(changed) + batchCommitThreshold - 1) / batchCommitThreshold

	p.logger.Info("creating batch commits",
		"files", len(changed), "batches", totalBatches, "batchSize", batchCommitThreshold)

	for batch := 1; batch <= totalBatches; batch++ {
		start := (batch - 1) * batchCommitThreshold
		end := start + batchCommitThreshold
		if end > len(changed) {
			end = len(changed)
		}
		files := changed[start:end]

		p.logger.Info("processing batch", "batch", batch, "total", totalBatches, "files", len(files))

		// Staged one at a time to bound any single invocation's size.
		for _, file := range files {
			if err := p.git.Add(ctx, file); err != nil {
				return fmt.Errorf("failed to stage %s in batch %d: %w", file, batch, err)
			}
		}

		if err := p.git.Commit(ctx, commitMessage(migration, result, batch, totalBatches)); err != nil {
			return fmt.Errorf("failed to commit batch %d/%d: %w", batch, totalBatches, err)
		}
	}

	p.logger.Info("created batch commits", "batches", totalBatches)
	return nil
}

// pushToRemote pushes the new commits. A repository with no remote or no
// upstream branch is a warning, not a failure: local persistence is
// acceptable.
func (p *persistence) pushToRemote(ctx context.Context) error {
	remotes, err := p.git.Remotes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list remotes: %w", err)
	}
	if len(remotes) == 0 {
		p.logger.Warn("no git remote configured, skipping push; changes are committed locally")
		return nil
	}

	p.logger.Debug("pushing commits to remote")

	if err := p.git.Push(ctx); err != nil {
		if isNoUpstreamError(err) {
			p.logger.Warn("no push destination or upstream branch configured, skipping push; changes are committed locally")
			return nil
		}
		return fmt.Errorf("failed to push commits: %w", err)
	}

	p.logger.Info("successfully pushed commits to remote")
	return nil
}

func isNoUpstreamError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "No configured push destination") ||
		strings.Contains(msg, "no upstream branch")
}

// commitMessage renders the snapshot commit message. batch and totalBatches
// are zero for a single unbatched commit.
func commitMessage(migration Migration, result *MigrationResult, batch, totalBatches int) string {
	author := migration.Author
	if author == "" {
		author = "unknown"
	}
	date := "unknown"
	if migration.Date != nil {
		date = migration.Date.Format("2006-01-02")
	}
	description := migration.Description
	if description == "" {
		description = "No description provided"
	}

	title := "Migration: " + migration.FullName()
	if totalBatches > 0 {
		title += fmt.Sprintf(" (Batch %d/%d)", batch, totalBatches)
	}

	return strings.Join([]string{
		title,
		"",
		description,
		"",
		"Author: " + author,
		"Date: " + date,
		fmt.Sprintf("Entities created: %d", result.EntitiesCreated),
		fmt.Sprintf("Relationships created: %d", result.RelationshipsCreated),
		fmt.Sprintf("Duration: %.1fs", result.DurationSeconds),
	}, "\n")
}

// tuneRepository applies best-effort git configuration for very large
// working trees. Failures are logged and swallowed; tuning never blocks
// construction.
func tuneRepository(ctx context.Context, repoPath string, git GitClient, logger Logger) {
	if _, err := os.Stat(repoPath); err != nil {
		logger.Warn("repository does not exist, skipping git configuration", "path", repoPath)
		return
	}
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		logger.Warn("not a git repository, skipping git configuration", "path", repoPath)
		return
	}

	logger.Info("configuring git for large repository operations")

	configs := [][2]string{
		{"core.preloadindex", "true"},
		{"core.fscache", "true"},
		{"gc.auto", "0"},
	}
	for _, kv := range configs {
		if err := git.SetConfig(ctx, kv[0], kv[1]); err != nil {
			logger.Warn("failed to set git config", "key", kv[0], "error", err)
			continue
		}
		logger.Debug("set git config", "key", kv[0], "value", kv[1])
	}

	logger.Info("git configuration complete")
}

// gitAvailable reports whether the git CLI can be invoked at all.
func gitAvailable() bool {
	_, err := exec.LookPath("git")
	return err == nil
}
