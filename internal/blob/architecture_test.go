package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Only the blob facade reaches into blob drivers, and only the s3 driver
// speaks to the AWS SDK. Everything else depends on blob.Store.
func TestBlobLayering(t *testing.T) {
	layers := []struct {
		forbidden string
		allowed   []string
	}{
		{"panelflow/internal/infra/blob", []string{"panelflow/internal/blob", "panelflow/internal/infra/blob"}},
		{"github.com/aws/aws-sdk-go-v2", []string{"panelflow/internal/infra/blob/s3"}},
	}

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "panelflow/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		for _, layer := range layers {
			if underAny(pkg.PkgPath, layer.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if under(importPath, layer.forbidden) {
					violations = append(violations, pkg.PkgPath+" imports "+importPath)
				}
			}
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		t.Fatalf("blob layering broken:\n%s", strings.Join(compact(violations), "\n"))
	}
}

func under(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if under(path, p) {
			return true
		}
	}
	return false
}

// compact drops adjacent duplicates; test variants of a package repeat its imports.
func compact(sorted []string) []string {
	out := sorted[:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
