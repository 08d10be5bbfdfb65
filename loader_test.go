package entmigrate

import (
	"errors"
	"strings"
	"testing"
)

func TestLoaderValidScript(t *testing.T) {
	dir := t.TempDir()
	migration := writeMigration(t, dir, 0, "example", validScript)

	loader := newScriptLoader(newMockLogger())
	proc, meta, err := loader.load(migration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proc == nil {
		t.Fatal("expected a procedure")
	}
	if meta.Author != "tester@example.org" {
		t.Errorf("unexpected author: %q", meta.Author)
	}
	if meta.Date != "2024-11-08" {
		t.Errorf("unexpected date: %q", meta.Date)
	}
	if meta.Description != "Test migration" {
		t.Errorf("unexpected description: %q", meta.Description)
	}
}

func TestLoaderValidationFailures(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantErr     error
		wantInError string
	}{
		{
			name: "missing migrate function",
			script: `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
`,
			wantErr:     ErrMissingMigrate,
			wantInError: "migrate",
		},
		{
			name: "migrate is not a function",
			script: `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
var migrate = 42;
`,
			wantErr: ErrMissingMigrate,
		},
		{
			name: "migrate takes no arguments",
			script: `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
function migrate() {}
`,
			wantErr: ErrMissingMigrate,
		},
		{
			name: "migrate takes two arguments",
			script: `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
function migrate(ctx, extra) {}
`,
			wantErr: ErrMissingMigrate,
		},
		{
			name: "missing all metadata",
			script: `
function migrate(ctx) {}
`,
			wantErr:     ErrMissingMetadata,
			wantInError: "AUTHOR, DATE, DESCRIPTION",
		},
		{
			name: "missing description only",
			script: `
var AUTHOR = "a";
var DATE = "2024-01-01";
function migrate(ctx) {}
`,
			wantErr:     ErrMissingMetadata,
			wantInError: "DESCRIPTION",
		},
		{
			name: "empty metadata string",
			script: `
var AUTHOR = "";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
function migrate(ctx) {}
`,
			wantErr:     ErrMissingMetadata,
			wantInError: "AUTHOR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			migration := writeMigration(t, dir, 1, "broken", tt.script)

			loader := newScriptLoader(newMockLogger())
			proc, _, err := loader.load(migration)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if proc != nil {
				t.Error("expected no procedure on validation failure")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantInError != "" && !strings.Contains(err.Error(), tt.wantInError) {
				t.Errorf("expected error to mention %q, got %v", tt.wantInError, err)
			}
		})
	}
}

func TestLoaderMissingScript(t *testing.T) {
	loader := newScriptLoader(newMockLogger())
	_, _, err := loader.load(Migration{
		Prefix:     0,
		Name:       "ghost",
		ScriptPath: "/nonexistent/migrate.js",
	})
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("expected ErrScriptNotFound, got %v", err)
	}
}

func TestLoaderSyntaxError(t *testing.T) {
	dir := t.TempDir()
	migration := writeMigration(t, dir, 2, "bad-syntax", `
var AUTHOR = "a";
function migrate(ctx) {
	var x = ;
}
`)

	loader := newScriptLoader(newMockLogger())
	_, _, err := loader.load(migration)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var serr *SyntaxError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *SyntaxError, got %T: %v", err, err)
	}
	if serr.File != migration.ScriptPath {
		t.Errorf("expected file %q, got %q", migration.ScriptPath, serr.File)
	}
	if serr.Line != 4 {
		t.Errorf("expected line 4, got %d", serr.Line)
	}
	msg := serr.Error()
	if !strings.Contains(msg, "^") {
		t.Errorf("expected caret in diagnostic, got:\n%s", msg)
	}
	if !strings.Contains(msg, "var x = ;") {
		t.Errorf("expected offending source in diagnostic, got:\n%s", msg)
	}
}

func TestLoaderIsolatedNamespaces(t *testing.T) {
	dir := t.TempDir()
	first := writeMigration(t, dir, 3, "sets-global", `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
var LEAKED = "value";
function migrate(ctx) {}
`)
	second := writeMigration(t, dir, 4, "reads-global", `
var AUTHOR = "a";
var DATE = "2024-01-01";
var DESCRIPTION = "d";
function migrate(ctx) {}
`)

	loader := newScriptLoader(newMockLogger())
	if _, _, err := loader.load(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proc, _, err := loader.load(second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	leaked, err := proc.vm.Get("LEAKED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !leaked.IsUndefined() {
		t.Error("expected fresh namespace per load, found symbol from previous script")
	}
}
