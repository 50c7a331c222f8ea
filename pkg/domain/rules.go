package domain

import (
	"context"
	"fmt"
)

// RuleView provides read-only access to domain entities for rule evaluation.
type RuleView interface {
	ListPanels() []Panel
	ListProjects() []Project
	ListBuildings() []Building
	ListItems() []Item
	FindPanel(id string) (Panel, bool)
	FindPanelBySerial(serial string) (Panel, bool)
	FindProject(id string) (Project, bool)
	FindBuilding(id string) (Building, bool)
}

// Rule defines an evaluation executed within a transaction boundary.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error)
}

// RulesEngine runs rules in registration order against one transaction's
// changes. A nil engine evaluates nothing.
type RulesEngine struct {
	rules []Rule
}

func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends rules to the engine.
func (e *RulesEngine) Register(rules ...Rule) {
	e.rules = append(e.rules, rules...)
}

// Rules returns the registered rules in evaluation order.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate collects every rule's violations. The first rule error aborts
// evaluation and names the failing rule.
func (e *RulesEngine) Evaluate(ctx context.Context, view RuleView, changes []Change) (Result, error) {
	var combined Result
	if e == nil {
		return combined, nil
	}
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
