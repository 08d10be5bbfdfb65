package entmigrate

import (
	"context"
	"time"
)

// Manager discovers migrations and answers whether one has already been
// durably applied. It owns the applied-migrations cache; ClearCache is the
// single invalidation entry point.
type Manager interface {
	RepoPath() string
	DiscoverMigrations() ([]Migration, error)
	AppliedMigrations(ctx context.Context) ([]string, error)
	PendingMigrations(ctx context.Context) ([]Migration, error)
	MigrationByName(name string) (*Migration, error)
	IsApplied(ctx context.Context, migration Migration) (bool, error)
	ClearCache()
}

// EntityStore is the versioned record store the migration scripts mutate.
// The bulk listing calls double as the before/after counting collaborator.
type EntityStore interface {
	CreateEntity(ctx context.Context, entity Entity) (*Entity, error)
	UpdateEntity(ctx context.Context, entity Entity) (*Entity, error)
	GetEntity(ctx context.Context, slug string) (*Entity, error)
	ListEntities(ctx context.Context) ([]Entity, error)
	CreateRelationship(ctx context.Context, rel Relationship) (*Relationship, error)
	ListRelationships(ctx context.Context) ([]Relationship, error)
}

// Searcher provides read-only lookups for migration scripts.
type Searcher interface {
	SearchEntities(ctx context.Context, query string) ([]Entity, error)
}

// GitClient is the effectful version-control surface. Implementations invoke
// the git CLI; tests substitute a mock.
type GitClient interface {
	Status(ctx context.Context) ([]string, error)
	AddAll(ctx context.Context) error
	Add(ctx context.Context, path string) error
	Commit(ctx context.Context, message string) error
	Remotes(ctx context.Context) ([]string, error)
	Push(ctx context.Context) error
	SetConfig(ctx context.Context, key, value string) error
	Head(ctx context.Context) (string, error)
	Log(ctx context.Context, grep, format string) ([]string, error)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options controls a single runner invocation.
type Options struct {
	DryRun     bool
	AutoCommit bool
	Force      bool
}

// BatchOptions controls a sequential batch run. Force is never applied in
// batch mode.
type BatchOptions struct {
	DryRun        bool
	AutoCommit    bool
	StopOnFailure bool
}

// clock lets tests pin durations.
type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
