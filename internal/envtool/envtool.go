// Package envtool implements the denv core: it builds an environment
// array from scratch and hands it to a command.
//
// Mutations are applied in option order to an initially empty
// environment, with last-writer-wins semantics per variable.
package envtool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Env is an environment array under construction.
type Env struct {
	log     *zap.Logger
	entries []string
}

func New(log *zap.Logger) *Env {
	return &Env{log: log}
}

// Entries returns the environment in the NAME=VALUE form expected by
// exec.
func (e *Env) Entries() []string { return e.entries }

// Del removes a variable. Unknown names are a no-op.
func (e *Env) Del(name string) {
	for i, entry := range e.entries {
		if entryName(entry) == name {
			e.entries = append(e.entries[:i], e.entries[i+1:]...)
			return
		}
	}
}

// add inserts a NAME=VALUE entry, replacing any previous binding.
func (e *Env) add(entry string) {
	name, _, found := strings.Cut(entry, "=")
	if !found {
		return
	}
	e.Del(name)
	e.entries = append(e.entries, entry)
}

// Set applies a VAR[=VALUE] argument: with a value the variable is
// set, without one it is removed.
func (e *Env) Set(arg string) {
	if strings.Contains(arg, "=") {
		e.add(arg)
	} else {
		e.Del(arg)
	}
}

// InheritAll copies every variable of the calling process.
func (e *Env) InheritAll() {
	for _, entry := range os.Environ() {
		e.add(entry)
	}
}

// Inherit copies one variable of the calling process. Inheriting an
// undefined variable is a no-op.
func (e *Env) Inherit(name string) {
	value, ok := os.LookupEnv(name)
	if !ok {
		e.log.Debug("cannot inherit undefined variable", zap.String("name", name))
		return
	}
	e.add(name + "=" + value)
}

// LoadDir applies an envdir-style directory: every regular file whose
// name does not start with a dot contributes NAME=first-line, with
// trailing whitespace trimmed; an empty file removes the variable.
func (e *Env) LoadDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("cannot open directory %q: %w", path, err)
	}

	for _, de := range entries {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !de.Type().IsRegular() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(path, name))
		if err != nil {
			return fmt.Errorf("cannot read %q: %w", filepath.Join(path, name), err)
		}
		if len(data) == 0 {
			e.Del(name)
			continue
		}

		value := firstLine(string(data))
		if value == "" {
			e.Del(name)
		} else {
			e.add(name + "=" + value)
		}
	}
	return nil
}

// LoadFile applies an environment.d-style file: one NAME=VALUE per
// line, '#' comments, a NAME with no value removes the variable.
// $VARIABLE expansions are not supported.
func (e *Env) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %q: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		name, value, found := strings.Cut(line, "=")
		if !found || value == "" {
			e.Del(name)
		} else {
			e.add(line)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, " \t\v\f\r\n")
}

func entryName(entry string) string {
	name, _, _ := strings.Cut(entry, "=")
	return name
}
