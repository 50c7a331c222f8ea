package core

import "panelflow/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in panel invariants.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(
		PanelLifecycleRule(),
		SerialUniquenessRule(),
		PanelReferenceRule(),
		MilestoneOrderRule(),
	)
	return engine
}
