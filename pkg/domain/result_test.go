package domain

import (
	"context"
	"fmt"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	err := RuleViolationError{Result: result}
	if err.Error() == "" {
		t.Fatalf("expected error string")
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{"warn"})
	res, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 {
		t.Fatalf("expected violation")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn}}}, nil
}

type emptyView struct{}

func (emptyView) ListPanels() []Panel                    { return nil }
func (emptyView) ListProjects() []Project                { return nil }
func (emptyView) ListBuildings() []Building              { return nil }
func (emptyView) ListItems() []Item                      { return nil }
func (emptyView) FindPanel(string) (Panel, bool)         { return Panel{}, false }
func (emptyView) FindPanelBySerial(string) (Panel, bool) { return Panel{}, false }
func (emptyView) FindProject(string) (Project, bool)     { return Project{}, false }
func (emptyView) FindBuilding(string) (Building, bool)   { return Building{}, false }

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(errorRule{})
	_, err := engine.Evaluate(context.Background(), emptyView{}, nil)
	if err == nil || err.Error() != "rule error: boom" {
		t.Fatalf("expected wrapped evaluation error, got %v", err)
	}

	var nilEngine *RulesEngine
	res, err := nilEngine.Evaluate(context.Background(), emptyView{}, nil)
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("nil engine should evaluate nothing, got %+v %v", res, err)
	}
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}
