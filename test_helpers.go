package entmigrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockManager struct {
	mu            sync.Mutex
	repoPath      string
	migrations    []Migration
	applied       map[string]bool
	IsAppliedFunc func(ctx context.Context, migration Migration) (bool, error)
	appliedCalls  int
	clearCalls    int
}

func newMockManager() *mockManager {
	return &mockManager{applied: make(map[string]bool)}
}

func (m *mockManager) RepoPath() string { return m.repoPath }

func (m *mockManager) DiscoverMigrations() ([]Migration, error) {
	return m.migrations, nil
}

func (m *mockManager) AppliedMigrations(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.applied {
		names = append(names, name)
	}
	return names, nil
}

func (m *mockManager) PendingMigrations(ctx context.Context) ([]Migration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []Migration
	for _, migration := range m.migrations {
		if !m.applied[migration.FullName()] {
			pending = append(pending, migration)
		}
	}
	return pending, nil
}

func (m *mockManager) MigrationByName(name string) (*Migration, error) {
	for _, migration := range m.migrations {
		if migration.FullName() == name {
			return &migration, nil
		}
	}
	return nil, ErrMigrationNotFound
}

func (m *mockManager) IsApplied(ctx context.Context, migration Migration) (bool, error) {
	m.mu.Lock()
	m.appliedCalls++
	m.mu.Unlock()
	if m.IsAppliedFunc != nil {
		return m.IsAppliedFunc(ctx, migration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[migration.FullName()], nil
}

func (m *mockManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
}

func (m *mockManager) markApplied(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[name] = true
}

type mockGit struct {
	mu          sync.Mutex
	StatusFunc  func(ctx context.Context) ([]string, error)
	CommitFunc  func(ctx context.Context, message string) error
	PushFunc    func(ctx context.Context) error
	RemotesFunc func(ctx context.Context) ([]string, error)
	LogFunc     func(ctx context.Context, grep, format string) ([]string, error)

	addAllCalls int
	addedFiles  []string
	commits     []string
	pushCalls   int
	statusCalls int
	configs     map[string]string
}

func newMockGit() *mockGit {
	return &mockGit{configs: make(map[string]string)}
}

func (g *mockGit) Status(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	if g.StatusFunc != nil {
		return g.StatusFunc(ctx)
	}
	return nil, nil
}

func (g *mockGit) AddAll(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addAllCalls++
	return nil
}

func (g *mockGit) Add(ctx context.Context, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addedFiles = append(g.addedFiles, path)
	return nil
}

func (g *mockGit) Commit(ctx context.Context, message string) error {
	if g.CommitFunc != nil {
		return g.CommitFunc(ctx, message)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.commits = append(g.commits, message)
	return nil
}

func (g *mockGit) Remotes(ctx context.Context) ([]string, error) {
	if g.RemotesFunc != nil {
		return g.RemotesFunc(ctx)
	}
	return []string{"origin"}, nil
}

func (g *mockGit) Push(ctx context.Context) error {
	g.mu.Lock()
	g.pushCalls++
	g.mu.Unlock()
	if g.PushFunc != nil {
		return g.PushFunc(ctx)
	}
	return nil
}

func (g *mockGit) SetConfig(ctx context.Context, key, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configs[key] = value
	return nil
}

func (g *mockGit) Head(ctx context.Context) (string, error) {
	return "deadbeef", nil
}

func (g *mockGit) Log(ctx context.Context, grep, format string) ([]string, error) {
	if g.LogFunc != nil {
		return g.LogFunc(ctx, grep, format)
	}
	return nil, nil
}

// mockStore is an in-memory EntityStore and Searcher. listCounts, when set,
// overrides successive ListEntities results with fixed-size dummy listings
// so tests can simulate shrinking stores.
type mockStore struct {
	mu            sync.Mutex
	entities      map[string]Entity
	relationships map[string]Relationship
	listErr       error
	listCalls     int
	listCounts    []int
}

func newMockStore() *mockStore {
	return &mockStore{
		entities:      make(map[string]Entity),
		relationships: make(map[string]Relationship),
	}
}

func (s *mockStore) CreateEntity(ctx context.Context, entity Entity) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.Slug]; ok {
		return nil, ErrEntityExists
	}
	s.entities[entity.Slug] = entity
	return &entity, nil
}

func (s *mockStore) UpdateEntity(ctx context.Context, entity Entity) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entity.Slug]; !ok {
		return nil, ErrEntityNotFound
	}
	s.entities[entity.Slug] = entity
	return &entity, nil
}

func (s *mockStore) GetEntity(ctx context.Context, slug string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[slug]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return &entity, nil
}

func (s *mockStore) ListEntities(ctx context.Context) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.listCounts) > 0 {
		n := s.listCounts[0]
		s.listCounts = s.listCounts[1:]
		return make([]Entity, n), nil
	}
	var out []Entity
	for _, entity := range s.entities {
		out = append(out, entity)
	}
	return out, nil
}

func (s *mockStore) CreateRelationship(ctx context.Context, rel Relationship) (*Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rel.ID == "" {
		rel.ID = rel.From + "->" + rel.To
	}
	s.relationships[rel.ID] = rel
	return &rel, nil
}

func (s *mockStore) ListRelationships(ctx context.Context) ([]Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Relationship
	for _, rel := range s.relationships {
		out = append(out, rel)
	}
	return out, nil
}

func (s *mockStore) SearchEntities(ctx context.Context, query string) ([]Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	var out []Entity
	for _, entity := range s.entities {
		if strings.Contains(strings.ToLower(entity.Slug), q) {
			out = append(out, entity)
		}
	}
	return out, nil
}

type mockLogger struct {
	mu       sync.RWMutex
	DebugLog []string
	InfoLog  []string
	WarnLog  []string
	ErrorLog []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{}
}

func (m *mockLogger) Debug(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DebugLog = append(m.DebugLog, msg)
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoLog = append(m.InfoLog, msg)
}

func (m *mockLogger) Warn(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WarnLog = append(m.WarnLog, msg)
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorLog = append(m.ErrorLog, msg)
}

// writeMigration lays out a migration folder with the given script under dir
// and returns the matching Migration.
func writeMigration(t *testing.T, dir string, prefix int, name, script string) Migration {
	t.Helper()

	folder := filepath.Join(dir, Migration{Prefix: prefix, Name: name}.FullName())
	if err := os.MkdirAll(folder, 0o755); err != nil {
		t.Fatalf("failed to create migration folder: %v", err)
	}
	scriptPath := filepath.Join(folder, "migrate.js")
	if err := os.WriteFile(scriptPath, []byte(script), 0o644); err != nil {
		t.Fatalf("failed to write migration script: %v", err)
	}

	return Migration{
		Prefix:     prefix,
		Name:       name,
		FolderPath: folder,
		ScriptPath: scriptPath,
	}
}

const validScript = `
var AUTHOR = "tester@example.org";
var DATE = "2024-11-08";
var DESCRIPTION = "Test migration";

function migrate(ctx) {
	ctx.log("running");
}
`

type fixedClock struct {
	times []time.Time
	idx   int
}

func (c *fixedClock) Now() time.Time {
	if c.idx >= len(c.times) {
		return c.times[len(c.times)-1]
	}
	t := c.times[c.idx]
	c.idx++
	return t
}
