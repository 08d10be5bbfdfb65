package entmigrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoMigrations      = errors.New("no migrations found")
	ErrMigrationNotFound = errors.New("migration not found")
	ErrScriptNotFound    = errors.New("migration script not found")
	ErrMissingMigrate    = errors.New("migration script must define a 'migrate' function taking one argument")
	ErrMissingMetadata   = errors.New("migration script is missing required metadata")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrGitOperation      = errors.New("git operation failed")
	ErrEntityNotFound    = errors.New("entity not found")
	ErrEntityExists      = errors.New("entity already exists")
)

// SyntaxError describes a script that failed to parse. It renders a single
// diagnostic with the offending line and a caret at the reported column.
type SyntaxError struct {
	File    string
	Line    int
	Column  int
	Source  string
	Message string
}

func (e *SyntaxError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "syntax error in migration script:\n")
	fmt.Fprintf(&b, "  File: %s\n", e.File)
	fmt.Fprintf(&b, "  Line %d: %s\n", e.Line, e.Source)
	if e.Column > 0 {
		fmt.Fprintf(&b, "  %s^\n", strings.Repeat(" ", e.Column-1))
	}
	b.WriteString("  " + e.Message)
	return b.String()
}
