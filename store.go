package entmigrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	uuid "github.com/satori/go.uuid"
	"github.com/tidwall/gjson"
)

const (
	entityDir       = "entity"
	relationshipDir = "relationship"
)

// fileStore keeps entities and relationships as JSON documents inside the
// repository working tree. Every mutation lands in the tree, which is what
// the git persistence layer commits as the migration's snapshot.
type fileStore struct {
	basePath string
	logger   Logger
}

// NewFileStore builds an EntityStore rooted at basePath, normally the
// repository path. The store doubles as the Searcher for migration scripts.
func NewFileStore(basePath string, logger Logger) (*fileStore, error) {
	if logger == nil {
		logger = newDefaultLogger()
	}
	for _, dir := range []string{entityDir, relationshipDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}
	return &fileStore{basePath: basePath, logger: logger}, nil
}

func (s *fileStore) entityPath(slug string) string {
	return filepath.Join(s.basePath, entityDir, slug+".json")
}

func (s *fileStore) relationshipPath(id string) string {
	return filepath.Join(s.basePath, relationshipDir, id+".json")
}

func (s *fileStore) CreateEntity(ctx context.Context, entity Entity) (*Entity, error) {
	if entity.Slug == "" {
		return nil, fmt.Errorf("entity requires a slug")
	}
	path := s.entityPath(entity.Slug)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityExists, entity.Slug)
	}
	if err := s.writeDocument(path, entity); err != nil {
		return nil, err
	}
	s.logger.Debug("created entity", "slug", entity.Slug)
	return &entity, nil
}

func (s *fileStore) UpdateEntity(ctx context.Context, entity Entity) (*Entity, error) {
	path := s.entityPath(entity.Slug)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entity.Slug)
	}
	if err := s.writeDocument(path, entity); err != nil {
		return nil, err
	}
	s.logger.Debug("updated entity", "slug", entity.Slug)
	return &entity, nil
}

func (s *fileStore) GetEntity(ctx context.Context, slug string) (*Entity, error) {
	data, err := os.ReadFile(s.entityPath(slug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, slug)
		}
		return nil, fmt.Errorf("failed to read entity %s: %w", slug, err)
	}
	var entity Entity
	if err := json.Unmarshal(data, &entity); err != nil {
		return nil, fmt.Errorf("failed to decode entity %s: %w", slug, err)
	}
	return &entity, nil
}

// ListEntities returns every stored entity. The runner uses the length as
// its before/after count; documents are probed, not fully decoded.
func (s *fileStore) ListEntities(ctx context.Context) ([]Entity, error) {
	docs, err := s.listDocuments(entityDir)
	if err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(docs))
	for _, doc := range docs {
		entities = append(entities, Entity{
			Slug: gjson.GetBytes(doc, "slug").String(),
			Type: gjson.GetBytes(doc, "type").String(),
		})
	}
	return entities, nil
}

func (s *fileStore) CreateRelationship(ctx context.Context, rel Relationship) (*Relationship, error) {
	if rel.ID == "" {
		rel.ID = uuid.Must(uuid.NewV4()).String()
	}
	path := s.relationshipPath(rel.ID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("relationship %s already exists", rel.ID)
	}
	if err := s.writeDocument(path, rel); err != nil {
		return nil, err
	}
	s.logger.Debug("created relationship", "id", rel.ID, "from", rel.From, "to", rel.To)
	return &rel, nil
}

func (s *fileStore) ListRelationships(ctx context.Context) ([]Relationship, error) {
	docs, err := s.listDocuments(relationshipDir)
	if err != nil {
		return nil, err
	}
	rels := make([]Relationship, 0, len(docs))
	for _, doc := range docs {
		rels = append(rels, Relationship{
			ID:   gjson.GetBytes(doc, "id").String(),
			Type: gjson.GetBytes(doc, "type").String(),
			From: gjson.GetBytes(doc, "from").String(),
			To:   gjson.GetBytes(doc, "to").String(),
		})
	}
	return rels, nil
}

// SearchEntities matches the query as a case-insensitive substring of the
// raw entity documents.
func (s *fileStore) SearchEntities(ctx context.Context, query string) ([]Entity, error) {
	docs, err := s.listDocuments(entityDir)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var matches []Entity
	for _, doc := range docs {
		if !strings.Contains(strings.ToLower(string(doc)), needle) {
			continue
		}
		matches = append(matches, Entity{
			Slug: gjson.GetBytes(doc, "slug").String(),
			Type: gjson.GetBytes(doc, "type").String(),
		})
	}
	return matches, nil
}

func (s *fileStore) listDocuments(dir string) ([][]byte, error) {
	root := filepath.Join(s.basePath, dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s documents: %w", dir, err)
	}

	var docs [][]byte
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", entry.Name(), err)
		}
		docs = append(docs, data)
	}
	return docs, nil
}

func (s *fileStore) writeDocument(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}
