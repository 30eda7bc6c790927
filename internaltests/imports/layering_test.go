package imports_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

const modulePath = "github.com/leeforge/imgcompress"

// forbidden lists imports a package directory must not use. The pipeline core
// sits below the queue and config layers and never reaches the network.
var forbidden = map[string][]string{
	"media/processor": {
		modulePath + "/config",
		modulePath + "/media/queue",
		"net/http",
	},
	"media/storage": {
		modulePath + "/media/processor",
		modulePath + "/media/queue",
		modulePath + "/config",
	},
	"media/queue": {
		modulePath + "/config",
	},
	"errors": {
		modulePath + "/",
	},
}

var legacy = []string{
	"github.com/leeforge/framework",
}

func importsOf(t *testing.T, path string) []string {
	t.Helper()
	f, err := parser.ParseFile(token.NewFileSet(), path, nil, parser.ImportsOnly)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	out := make([]string, 0, len(f.Imports))
	for _, spec := range f.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			t.Fatalf("bad import in %s: %v", path, err)
		}
		out = append(out, p)
	}
	return out
}

func TestPackageLayering(t *testing.T) {
	root := filepath.Clean("../..")
	var hits []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}

		rel, _ := filepath.Rel(root, filepath.Dir(path))
		rel = filepath.ToSlash(rel)
		for _, imp := range importsOf(t, path) {
			for _, l := range legacy {
				if strings.HasPrefix(imp, l) {
					hits = append(hits, path+": "+imp)
				}
			}
			if strings.HasSuffix(path, "_test.go") {
				continue
			}
			for _, bad := range forbidden[rel] {
				if imp == bad || strings.HasSuffix(bad, "/") && strings.HasPrefix(imp, bad) {
					hits = append(hits, path+": "+imp)
				}
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}

	if len(hits) > 0 {
		t.Fatalf("forbidden imports found: %v", hits[:min(10, len(hits))])
	}
}
