package entmigrate

import (
	"fmt"
	"time"
)

// Status of a migration execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Migration describes one migration folder. Immutable once discovered.
type Migration struct {
	Prefix      int
	Name        string
	FolderPath  string
	ScriptPath  string
	ReadmePath  string
	Author      string
	Date        *time.Time
	Description string
}

// FullName returns the canonical identity, e.g. "000-initial-locations".
// It is the key used in commit messages and for idempotence tracking.
func (m Migration) FullName() string {
	return fmt.Sprintf("%03d-%s", m.Prefix, m.Name)
}

func (m Migration) String() string {
	return m.FullName()
}

// MigrationResult is produced by every runner invocation against one
// migration. It is mutated during the run and terminal once returned.
type MigrationResult struct {
	Migration            Migration
	Status               Status
	DurationSeconds      float64
	EntitiesCreated      int
	EntitiesUpdated      int
	RelationshipsCreated int
	RelationshipsUpdated int
	Err                  error
	Logs                 []string
	CommitSHA            string
}

func (r *MigrationResult) String() string {
	switch r.Status {
	case StatusCompleted:
		return fmt.Sprintf("migration %s completed in %.1fs (created: %d entities, %d relationships)",
			r.Migration.FullName(), r.DurationSeconds, r.EntitiesCreated, r.RelationshipsCreated)
	case StatusFailed:
		return fmt.Sprintf("migration %s failed after %.1fs: %v",
			r.Migration.FullName(), r.DurationSeconds, r.Err)
	case StatusSkipped:
		return fmt.Sprintf("migration %s skipped (already applied)", r.Migration.FullName())
	default:
		return fmt.Sprintf("migration %s is %s", r.Migration.FullName(), r.Status)
	}
}

// Summary aggregates one batch run for reporting.
type Summary struct {
	Completed int
	Skipped   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d completed, %d skipped, %d failed", s.Completed, s.Skipped, s.Failed)
}

// Entity is a record in the versioned store. Documents carry arbitrary
// payloads; only the fields the runner itself needs are typed.
type Entity struct {
	Slug string         `json:"slug"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Relationship links two entities by slug.
type Relationship struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	From string         `json:"from"`
	To   string         `json:"to"`
	Data map[string]any `json:"data,omitempty"`
}
