package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		pred func(string) bool
		in   string
		want bool
	}{
		{InternalImportForbidden, "panelflow/internal/core", true},
		{InternalImportForbidden, "panelflow/pkg/domain", false},
		{InfraImportForbidden, "panelflow/internal/infra/persistence/memory", true},
		{InfraImportForbidden, "panelflow/internal/events", true},
		{InfraImportForbidden, "panelflow/internal/tabular", false},
		{DriverImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{DriverImportForbidden, "database/sql", true},
		{DriverImportForbidden, "github.com/xuri/excelize/v2", false},
		{Any(InternalImportForbidden, DriverImportForbidden), "modernc.org/sqlite", true},
		{Any(), "fmt", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("%s: got %v, want %v", c.in, got, c.want)
		}
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	AssertNoDirectImports(t, dir, func(string) bool { return false }, "none")
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestDirectViolationsReported(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport _ \"database/sql\"\n")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x_test.go"), []byte("package tmp\nimport _ \"modernc.org/sqlite\"\n"), 0o600); err != nil {
		t.Fatalf("write test source: %v", err)
	}

	viols, err := directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if want := []string{"database/sql (in x.go)"}; !slices.Equal(viols, want) {
		t.Fatalf("violations: got %v, want %v", viols, want)
	}

	rec := &recordingFatal{}
	failIfDirectViolations(rec, "drivers", viols)
	if !strings.Contains(rec.msg, "drivers") {
		t.Fatalf("failure message does not name the reason: %q", rec.msg)
	}
}
