package entmigrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robertkrimen/otto"
)

func newTestContext(t *testing.T, store *mockStore) *Context {
	t.Helper()
	return newContext(context.Background(), store, store, t.TempDir(), newMockLogger())
}

func TestContextLog(t *testing.T) {
	c := newTestContext(t, newMockStore())
	c.Log("first")
	c.Log("second")

	logs := c.Logs()
	if len(logs) != 2 || logs[0] != "first" || logs[1] != "second" {
		t.Fatalf("unexpected logs: %v", logs)
	}

	// Logs returns a copy; mutating it must not affect the context.
	logs[0] = "mutated"
	if c.Logs()[0] != "first" {
		t.Error("expected Logs to return an independent copy")
	}
}

func TestContextReadCSV(t *testing.T) {
	c := newTestContext(t, newMockStore())
	csv := "name,born\nAda Lovelace,1815\nAlan Turing,1912\n"
	if err := os.WriteFile(filepath.Join(c.Dir(), "people.csv"), []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := c.ReadCSV("people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["name"] != "Ada Lovelace" || rows[0]["born"] != "1815" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["name"] != "Alan Turing" {
		t.Errorf("unexpected second row: %v", rows[1])
	}

	if _, err := c.ReadCSV("absent.csv"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestContextReadJSON(t *testing.T) {
	c := newTestContext(t, newMockStore())
	doc := `{"title": "records", "count": 2}`
	if err := os.WriteFile(filepath.Join(c.Dir(), "data.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := c.ReadJSON("data.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", out)
	}
	if m["title"] != "records" {
		t.Errorf("unexpected document: %v", m)
	}
}

func TestContextGetJSON(t *testing.T) {
	c := newTestContext(t, newMockStore())
	doc := `{"people": [{"name": "Ada"}, {"name": "Alan"}]}`
	if err := os.WriteFile(filepath.Join(c.Dir(), "data.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := c.GetJSON("data.json", "people.1.name")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Alan" {
		t.Errorf("expected Alan, got %q", got)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ada Lovelace", "ada-lovelace"},
		{"  Trimmed  ", "trimmed"},
		{"Multiple   spaces", "multiple-spaces"},
		{"Dots.and/slashes", "dots-and-slashes"},
		{"--edges--", "edges"},
		{"ALLCAPS", "allcaps"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	if got := NormalizeWhitespace("  a\t b \n c  "); got != "a b c" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestBindExposesServices(t *testing.T) {
	store := newMockStore()
	c := newTestContext(t, store)

	vm := otto.New()
	jsContext, err := c.bind(vm)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := vm.Set("ctx", jsContext); err != nil {
		t.Fatal(err)
	}

	_, err = vm.Run(`
		ctx.log("creating " + ctx.slugify("Ada Lovelace"));
		ctx.createEntity({slug: "ada-lovelace", type: "person", data: {born: "1815"}});
		ctx.createEntity({slug: "analytical-engine", type: "machine"});
		ctx.createRelationship({type: "designed", from: "ada-lovelace", to: "analytical-engine"});
		var found = ctx.search("ada");
		if (found.length !== 1) throw new Error("search failed");
		var all = ctx.listEntities();
		if (all.length !== 2) throw new Error("list failed");
	`)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}

	if len(store.entities) != 2 {
		t.Errorf("expected 2 entities, got %d", len(store.entities))
	}
	if len(store.relationships) != 1 {
		t.Errorf("expected 1 relationship, got %d", len(store.relationships))
	}
	logs := c.Logs()
	if len(logs) != 1 || logs[0] != "creating ada-lovelace" {
		t.Errorf("unexpected logs: %v", logs)
	}
}

func TestBindStoreErrorsThrow(t *testing.T) {
	store := newMockStore()
	c := newTestContext(t, store)

	vm := otto.New()
	jsContext, err := c.bind(vm)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := vm.Set("ctx", jsContext); err != nil {
		t.Fatal(err)
	}

	// A Go-side failure must surface as a catchable JavaScript error.
	_, err = vm.Run(`
		var caught = "";
		try {
			ctx.getEntity("absent");
		} catch (e) {
			caught = e.message;
		}
		if (caught === "") throw new Error("expected a thrown error");
	`)
	if err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func TestBindRejectsInvalidArguments(t *testing.T) {
	c := newTestContext(t, newMockStore())

	vm := otto.New()
	jsContext, err := c.bind(vm)
	if err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if err := vm.Set("ctx", jsContext); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		script string
	}{
		{"entity without slug", `ctx.createEntity({type: "person"})`},
		{"relationship without endpoints", `ctx.createRelationship({type: "knows"})`},
		{"non-object entity", `ctx.createEntity("just a string")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := vm.Run(tt.script); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestEntityFromValueRequiresSlug(t *testing.T) {
	vm := otto.New()
	val, err := vm.ToValue(map[string]any{"type": "person"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := entityFromValue(val); err == nil {
		t.Error("expected slug requirement to be enforced")
	}
}
