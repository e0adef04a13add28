// Package arch holds architectural constraint tests.
package arch

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// forbiddenImports lists, per directory, imports that must not appear in
// non-test files. Entries ending in "/" match a whole subtree.
var forbiddenImports = map[string][]string{
	"../core": {
		"net",
		"net/http",
		"crypto/tls",
		"log/slog",
		"github.com/spiffe/go-spiffe/",
		"github.com/prometheus/",
		"github.com/spf13/",
	},
	"../wire": {
		"net",
		"crypto/tls",
		"github.com/sufield/mvrp/internal/transport",
		"github.com/sufield/mvrp/internal/adapters/",
	},
	"../transport": {
		"github.com/sufield/mvrp/internal/config",
		"github.com/sufield/mvrp/internal/cli",
		"github.com/prometheus/",
		"net/http",
	},
	"../../pkg/mvrp": {
		"github.com/sufield/mvrp/internal/cli",
		"github.com/spf13/",
	},
}

// TestImportGraphConstraints keeps the protocol core free of transport and
// framework packages, and the transport free of configuration loading.
func TestImportGraphConstraints(t *testing.T) {
	t.Parallel()

	for dir, forbidden := range forbiddenImports {
		t.Run(dir, func(t *testing.T) {
			t.Parallel()
			for file, imports := range importsUnder(t, dir) {
				for _, imp := range imports {
					for _, bad := range forbidden {
						if imp == strings.TrimSuffix(bad, "/") || (strings.HasSuffix(bad, "/") && strings.HasPrefix(imp, bad)) {
							t.Errorf("%s imports %s", file, imp)
						}
					}
				}
			}
		})
	}
}

func importsUnder(t *testing.T, dir string) map[string][]string {
	t.Helper()
	result := make(map[string][]string)
	fset := token.NewFileSet()
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		for _, spec := range node.Imports {
			imp, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				return err
			}
			result[path] = append(result[path], imp)
		}
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, result, "no Go files under %s", dir)
	return result
}
