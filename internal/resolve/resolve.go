// Package resolve implements C3: the module graph. It loads the entry file
// and every file reachable from it via `@import`, builds one Module per
// source file, resolves `@load` and `bank ... as ...` bindings (`@use` is
// parsed but not bound), and
// detects import cycles.
package resolve

import (
	"os"
	"path/filepath"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/lexer"
	"github.com/schollz/collidertracker/internal/parser"
)

// Bank is a registered sample bank: `bank publisher.name as alias` exposes
// `alias.<trigger>` identifiers that dereference to sample URIs.
type Bank struct {
	Fullname string
	Alias    string
	// Triggers maps a trigger name to its sample URI. The resolver creates it
	// empty and nothing fills it; the scheduler builds trigger URIs from
	// Fullname instead (spec §4.3/§6).
	Triggers map[string]string
}

// LoadBinding is a resolved `@load "./path" as alias` binding.
type LoadBinding struct {
	Alias string
	URI   string
}

// Module is one resolved source file.
type Module struct {
	Path       string
	Dir        string
	Statements []*ast.Statement
	Imports    map[string]*Module // alias -> imported module
	Exports    map[string]bool    // exported symbol names
	Banks      map[string]*Bank   // alias -> bank
	Loads      map[string]*LoadBinding
	Errors     *diag.Log
}

// Graph is the full set of resolved modules rooted at an entry file.
type Graph struct {
	Entry   *Module
	Modules map[string]*Module // absolute path -> Module
}

// CycleError reports an import cycle, carrying the cycle path for
// diagnostics (spec §4.3, §9).
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	s := "import cycle: "
	for i, p := range e.Path {
		if i > 0 {
			s += " -> "
		}
		s += p
	}
	return s
}

// Source abstracts file reading so tests can resolve in-memory sources
// without touching disk.
type Source interface {
	ReadFile(path string) ([]byte, error)
}

// FileSource reads from the OS filesystem.
type FileSource struct{}

func (FileSource) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Resolve loads entryPath and every file it (transitively) imports.
func Resolve(entryPath string, src Source) (*Graph, error) {
	g := &Graph{Modules: make(map[string]*Module)}
	resolving := make(map[string]bool)
	var path []string

	var load func(p string) (*Module, error)
	load = func(p string) (*Module, error) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if m, ok := g.Modules[abs]; ok {
			return m, nil
		}
		if resolving[abs] {
			cycle := append(append([]string{}, path...), abs)
			return nil, &CycleError{Path: cycle}
		}
		resolving[abs] = true
		path = append(path, abs)
		defer func() {
			delete(resolving, abs)
			path = path[:len(path)-1]
		}()

		data, err := src.ReadFile(abs)
		if err != nil {
			return nil, err
		}
		toks, lexLog := lexer.Tokenize(abs, data)
		stmts, parseLog := parser.Parse(abs, toks)

		m := &Module{
			Path:       abs,
			Dir:        filepath.Dir(abs),
			Statements: stmts,
			Imports:    make(map[string]*Module),
			Exports:    make(map[string]bool),
			Banks:      make(map[string]*Bank),
			Loads:      make(map[string]*LoadBinding),
			Errors:     &diag.Log{},
		}
		mergeLog(m.Errors, lexLog)
		mergeLog(m.Errors, parseLog)
		g.Modules[abs] = m

		for _, s := range stmts {
			switch s.Kind {
			case ast.StmtImport:
				importPath := filepath.Join(m.Dir, s.ImportPath)
				imported, err := load(importPath)
				if err != nil {
					if cycle, ok := err.(*CycleError); ok {
						m.Errors.Errorf(abs, s.Span.Line, s.Span.Column, "%s", cycle.Error())
						continue
					}
					m.Errors.Errorf(abs, s.Span.Line, s.Span.Column, "cannot import %q: %v", s.ImportPath, err)
					continue
				}
				for _, name := range s.ImportNames {
					if !imported.Exports[name] {
						m.Errors.Errorf(abs, s.Span.Line, s.Span.Column, "%q is not exported by %s", name, importPath)
						continue
					}
					m.Imports[name] = imported
				}
			case ast.StmtExport:
				for _, name := range s.ExportNames {
					m.Exports[name] = true
				}
			case ast.StmtLoad:
				uri := s.LoadPath
				if !hasScheme(s.LoadPath) {
					uri = "file://" + filepath.Join(m.Dir, s.LoadPath)
				}
				alias := s.LoadAlias
				if alias == "" {
					alias = s.LoadPath
				}
				m.Loads[alias] = &LoadBinding{Alias: alias, URI: uri}
			case ast.StmtBank:
				alias := s.BankAlias
				if alias == "" {
					alias = s.BankFullname
				}
				m.Banks[alias] = &Bank{Fullname: s.BankFullname, Alias: alias, Triggers: make(map[string]string)}
			case ast.StmtUse:
				// `@use publisher.plugin as alias` addresses a plugin by
				// dotted name rather than a path; resolution of the
				// plugin's own module is out of scope for the core (addon
				// package manager is a Non-goal), and the resolver records
				// nothing for it, so no binding or namespace is created.
				_ = s
			}
		}
		return m, nil
	}

	entry, err := load(entryPath)
	if err != nil {
		return nil, err
	}
	g.Entry = entry
	return g, nil
}

func hasScheme(uri string) bool {
	for i := 0; i < len(uri); i++ {
		if uri[i] == ':' {
			return i+2 < len(uri) && uri[i+1] == '/' && uri[i+2] == '/'
		}
		if uri[i] == '/' || uri[i] == '.' {
			return false
		}
	}
	return false
}

func mergeLog(dst, src *diag.Log) {
	for _, e := range src.Entries() {
		dst.Add(e)
	}
}

// HasErrors reports whether any module in the graph accumulated a fatal
// diagnostic, matching spec §7's "pipeline halts before scheduling if any
// fatal error exists".
func (g *Graph) HasErrors() bool {
	for _, m := range g.Modules {
		if m.Errors.HasErrors() {
			return true
		}
	}
	return false
}
