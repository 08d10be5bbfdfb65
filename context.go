package entmigrate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/robertkrimen/otto"
	"github.com/tidwall/gjson"
)

// Context is the per-run bundle handed to a migration script. It is bound to
// exactly one migration, exposes the collaborator services, folder-scoped
// file helpers and an append-only log sink whose contents are copied into
// the result.
type Context struct {
	ctx    context.Context
	store  EntityStore
	search Searcher
	dir    string
	logger Logger

	mu   sync.Mutex
	logs []string
}

func newContext(ctx context.Context, store EntityStore, search Searcher, dir string, logger Logger) *Context {
	return &Context{
		ctx:    ctx,
		store:  store,
		search: search,
		dir:    dir,
		logger: logger,
	}
}

// Dir is the migration folder path. Scripts use it to reach their
// supporting files.
func (c *Context) Dir() string {
	return c.dir
}

// Log records a migration progress message. Messages are kept in order and
// copied into the result after the run.
func (c *Context) Log(message string) {
	c.mu.Lock()
	c.logs = append(c.logs, message)
	c.mu.Unlock()
	c.logger.Info("migration log", "message", message)
}

// Logs returns a copy of the accumulated log lines.
func (c *Context) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.logs))
	copy(out, c.logs)
	return out
}

// ReadCSV reads a CSV file from the migration folder and returns one map
// per row keyed by the header line.
func (c *Context) ReadCSV(filename string) ([]map[string]string, error) {
	f, err := os.Open(filepath.Join(c.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file %s: %w", filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file %s: %w", filename, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(header))
		for i, key := range header {
			if i < len(record) {
				row[key] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadJSON reads and decodes a JSON file from the migration folder.
func (c *Context) ReadJSON(filename string) (any, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file %s: %w", filename, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON file %s: %w", filename, err)
	}
	return out, nil
}

// GetJSON probes a JSON file for a single path without decoding the whole
// document.
func (c *Context) GetJSON(filename, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, filename))
	if err != nil {
		return "", fmt.Errorf("failed to read JSON file %s: %w", filename, err)
	}
	return gjson.GetBytes(data, path).String(), nil
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
	multiHyphen = regexp.MustCompile(`-{2,}`)
	multiSpace  = regexp.MustCompile(`\s+`)
)

// Slugify normalizes a display name into a store slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = multiHyphen.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(s string) string {
	return multiSpace.ReplaceAllString(strings.TrimSpace(s), " ")
}

// bind projects the context into the script VM as a plain object. Service
// failures on the Go side surface as thrown JavaScript errors so scripts can
// try/catch or let them propagate to the runner.
func (c *Context) bind(vm *otto.Otto) (otto.Value, error) {
	obj, err := vm.Object(`({})`)
	if err != nil {
		return otto.UndefinedValue(), err
	}

	throw := func(call otto.FunctionCall, err error) {
		panic(call.Otto.MakeCustomError("MigrationError", err.Error()))
	}
	result := func(call otto.FunctionCall, v any) otto.Value {
		val, err := call.Otto.ToValue(v)
		if err != nil {
			throw(call, err)
		}
		return val
	}

	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(obj.Set("dir", c.dir))

	must(obj.Set("log", func(call otto.FunctionCall) otto.Value {
		c.Log(call.Argument(0).String())
		return otto.UndefinedValue()
	}))

	must(obj.Set("createEntity", func(call otto.FunctionCall) otto.Value {
		entity, err := entityFromValue(call.Argument(0))
		if err != nil {
			throw(call, err)
		}
		created, err := c.store.CreateEntity(c.ctx, entity)
		if err != nil {
			throw(call, err)
		}
		return result(call, entityToMap(*created))
	}))

	must(obj.Set("updateEntity", func(call otto.FunctionCall) otto.Value {
		entity, err := entityFromValue(call.Argument(0))
		if err != nil {
			throw(call, err)
		}
		updated, err := c.store.UpdateEntity(c.ctx, entity)
		if err != nil {
			throw(call, err)
		}
		return result(call, entityToMap(*updated))
	}))

	must(obj.Set("getEntity", func(call otto.FunctionCall) otto.Value {
		entity, err := c.store.GetEntity(c.ctx, call.Argument(0).String())
		if err != nil {
			throw(call, err)
		}
		return result(call, entityToMap(*entity))
	}))

	must(obj.Set("listEntities", func(call otto.FunctionCall) otto.Value {
		entities, err := c.store.ListEntities(c.ctx)
		if err != nil {
			throw(call, err)
		}
		out := make([]map[string]any, 0, len(entities))
		for _, e := range entities {
			out = append(out, entityToMap(e))
		}
		return result(call, out)
	}))

	must(obj.Set("createRelationship", func(call otto.FunctionCall) otto.Value {
		rel, err := relationshipFromValue(call.Argument(0))
		if err != nil {
			throw(call, err)
		}
		created, err := c.store.CreateRelationship(c.ctx, rel)
		if err != nil {
			throw(call, err)
		}
		return result(call, relationshipToMap(*created))
	}))

	must(obj.Set("search", func(call otto.FunctionCall) otto.Value {
		entities, err := c.search.SearchEntities(c.ctx, call.Argument(0).String())
		if err != nil {
			throw(call, err)
		}
		out := make([]map[string]any, 0, len(entities))
		for _, e := range entities {
			out = append(out, entityToMap(e))
		}
		return result(call, out)
	}))

	must(obj.Set("readCSV", func(call otto.FunctionCall) otto.Value {
		rows, err := c.ReadCSV(call.Argument(0).String())
		if err != nil {
			throw(call, err)
		}
		return result(call, rows)
	}))

	must(obj.Set("readJSON", func(call otto.FunctionCall) otto.Value {
		data, err := c.ReadJSON(call.Argument(0).String())
		if err != nil {
			throw(call, err)
		}
		return result(call, data)
	}))

	must(obj.Set("getJSON", func(call otto.FunctionCall) otto.Value {
		value, err := c.GetJSON(call.Argument(0).String(), call.Argument(1).String())
		if err != nil {
			throw(call, err)
		}
		return result(call, value)
	}))

	must(obj.Set("slugify", func(call otto.FunctionCall) otto.Value {
		return result(call, Slugify(call.Argument(0).String()))
	}))

	must(obj.Set("normalizeWhitespace", func(call otto.FunctionCall) otto.Value {
		return result(call, NormalizeWhitespace(call.Argument(0).String()))
	}))

	return obj.Value(), nil
}

func entityFromValue(val otto.Value) (Entity, error) {
	raw, err := val.Export()
	if err != nil {
		return Entity{}, fmt.Errorf("invalid entity argument: %w", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Entity{}, fmt.Errorf("entity argument must be an object")
	}
	entity := Entity{
		Slug: stringField(m, "slug"),
		Type: stringField(m, "type"),
	}
	if data, ok := m["data"].(map[string]any); ok {
		entity.Data = data
	}
	if entity.Slug == "" {
		return Entity{}, fmt.Errorf("entity requires a slug")
	}
	return entity, nil
}

func relationshipFromValue(val otto.Value) (Relationship, error) {
	raw, err := val.Export()
	if err != nil {
		return Relationship{}, fmt.Errorf("invalid relationship argument: %w", err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return Relationship{}, fmt.Errorf("relationship argument must be an object")
	}
	rel := Relationship{
		ID:   stringField(m, "id"),
		Type: stringField(m, "type"),
		From: stringField(m, "from"),
		To:   stringField(m, "to"),
	}
	if data, ok := m["data"].(map[string]any); ok {
		rel.Data = data
	}
	if rel.From == "" || rel.To == "" {
		return Relationship{}, fmt.Errorf("relationship requires from and to slugs")
	}
	return rel, nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func entityToMap(e Entity) map[string]any {
	out := map[string]any{"slug": e.Slug, "type": e.Type}
	if e.Data != nil {
		out["data"] = e.Data
	}
	return out
}

func relationshipToMap(r Relationship) map[string]any {
	out := map[string]any{"id": r.ID, "type": r.Type, "from": r.From, "to": r.To}
	if r.Data != nil {
		out["data"] = r.Data
	}
	return out
}
