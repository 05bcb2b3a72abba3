// Package testutil holds test helpers that keep package import boundaries in
// place: the public table model and the pure pipeline packages must not reach
// into storage drivers or cloud SDKs.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ImportRule reports whether importPath is forbidden and names the reason.
type ImportRule func(importPath string) (bool, string)

// InternalImports forbids any scoretrack/internal package.
func InternalImports(importPath string) (bool, string) {
	return strings.HasPrefix(importPath, "scoretrack/internal/"), "public packages stay free of internal code"
}

// InfraImports forbids the storage drivers under internal/infra.
func InfraImports(importPath string) (bool, string) {
	return strings.HasPrefix(importPath, "scoretrack/internal/infra/"), "storage drivers are reached through internal/blob and internal/persistence"
}

// IOImports forbids blob, persistence and cloud SDK packages.
func IOImports(importPath string) (bool, string) {
	switch {
	case strings.HasPrefix(importPath, "github.com/aws/"):
		return true, "cloud SDKs belong to the blob drivers"
	case importPath == "scoretrack/internal/blob", importPath == "scoretrack/internal/persistence":
		return true, "transforms must not perform I/O"
	case strings.HasPrefix(importPath, "database/sql"):
		return true, "transforms must not perform I/O"
	}
	return false, ""
}

// AssertImports parses every non-test .go file in dir and fails t when an
// import matches any rule. Build tags are not evaluated.
func AssertImports(t testing.TB, dir string, rules ...ImportRule) {
	t.Helper()
	viols, err := importViolations(dir, rules)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failOnViolations(t, dir, viols)
}

func importViolations(dir string, rules []ImportRule) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			for _, rule := range rules {
				if bad, reason := rule(path); bad {
					viols = append(viols, path+" in "+name+": "+reason)
				}
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failOnViolations(t fatalLogger, dir string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports in %s:\n%s", dir, strings.Join(viols, "\n"))
	}
}
