package entmigrate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robertkrimen/otto"
	"github.com/robertkrimen/otto/parser"
)

// scriptMetadata is the declared AUTHOR / DATE / DESCRIPTION triple every
// migration script must carry.
type scriptMetadata struct {
	Author      string
	Date        string
	Description string
}

// procedure is a validated migrate() function bound to the disposable VM it
// was loaded into. The VM lives exactly as long as one run and is never
// shared between migrations.
type procedure struct {
	vm *otto.Otto
	fn otto.Value
}

// invoke calls migrate(context) inside the script VM. A JavaScript exception
// surfaces as an error whose trace() output carries the script stack.
func (p *procedure) invoke(jsContext otto.Value) error {
	_, err := p.fn.Call(otto.UndefinedValue(), jsContext)
	return err
}

// trace renders the fullest available text for a script failure, including
// the JavaScript stack when the error originated inside the VM.
func trace(err error) string {
	switch e := err.(type) {
	case *otto.Error:
		return e.String()
	case otto.Error:
		return e.String()
	}
	return err.Error()
}

type scriptLoader struct {
	logger Logger
}

func newScriptLoader(logger Logger) *scriptLoader {
	return &scriptLoader{logger: logger}
}

// load reads, parses and validates one migration script inside a fresh VM.
// Validation order: file exists, parses, defines a one-argument migrate
// function, declares non-empty AUTHOR/DATE/DESCRIPTION. Any failure discards
// the VM and returns no procedure.
func (l *scriptLoader) load(migration Migration) (*procedure, *scriptMetadata, error) {
	l.logger.Debug("loading migration script", "migration", migration.FullName())

	src, err := os.ReadFile(migration.ScriptPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrScriptNotFound, migration.ScriptPath)
		}
		return nil, nil, fmt.Errorf("failed to read migration script %s: %w", migration.ScriptPath, err)
	}

	if _, err := parser.ParseFile(nil, migration.ScriptPath, string(src), 0); err != nil {
		serr := toSyntaxError(migration.ScriptPath, string(src), err)
		l.logger.Error("migration script failed to parse", "migration", migration.FullName(), "error", serr)
		return nil, nil, serr
	}

	vm := otto.New()

	script, err := vm.Compile(migration.ScriptPath, src)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile migration script %s: %w", migration.FullName(), err)
	}

	if _, err := vm.Run(script); err != nil {
		return nil, nil, fmt.Errorf("failed to load migration script %s: %s", migration.FullName(), trace(err))
	}

	fn, err := vm.Get("migrate")
	if err != nil || !fn.IsFunction() {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingMigrate, migration.FullName())
	}

	arity, err := functionArity(fn)
	if err != nil || arity != 1 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingMigrate, migration.FullName())
	}

	meta := &scriptMetadata{
		Author:      stringConstant(vm, "AUTHOR"),
		Date:        stringConstant(vm, "DATE"),
		Description: stringConstant(vm, "DESCRIPTION"),
	}

	var missing []string
	if meta.Author == "" {
		missing = append(missing, "AUTHOR")
	}
	if meta.Date == "" {
		missing = append(missing, "DATE")
	}
	if meta.Description == "" {
		missing = append(missing, "DESCRIPTION")
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s: %s",
			ErrMissingMetadata, migration.FullName(), strings.Join(missing, ", "))
	}

	l.logger.Debug("validated migration script",
		"migration", migration.FullName(), "author", meta.Author, "date", meta.Date)

	return &procedure{vm: vm, fn: fn}, meta, nil
}

// functionArity reports the number of declared parameters of a script
// function via its length property.
func functionArity(fn otto.Value) (int, error) {
	length, err := fn.Object().Get("length")
	if err != nil {
		return 0, err
	}
	n, err := length.ToInteger()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// stringConstant reads a global string binding from the VM, returning ""
// when absent or not a string.
func stringConstant(vm *otto.Otto, name string) string {
	val, err := vm.Get(name)
	if err != nil || !val.IsString() {
		return ""
	}
	s, err := val.ToString()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// parseScriptDate parses the DATE constant's YYYY-MM-DD form.
func parseScriptDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// toSyntaxError converts a parser failure into the caret diagnostic. The
// parser reports an error list; only the first entry is surfaced.
func toSyntaxError(path, src string, err error) error {
	var first *parser.Error
	switch e := err.(type) {
	case parser.ErrorList:
		if len(e) > 0 {
			first = e[0]
		}
	case *parser.Error:
		first = e
	}
	if first == nil {
		return fmt.Errorf("failed to parse migration script %s: %w", path, err)
	}

	lines := strings.Split(src, "\n")
	source := ""
	if first.Position.Line >= 1 && first.Position.Line <= len(lines) {
		source = lines[first.Position.Line-1]
	}

	return &SyntaxError{
		File:    path,
		Line:    first.Position.Line,
		Column:  first.Position.Column,
		Source:  source,
		Message: first.Message,
	}
}
