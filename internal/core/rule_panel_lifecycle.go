package core

import (
	"context"
	"fmt"

	"panelflow/pkg/domain"
)

const panelLifecycleRuleName = "panel_lifecycle"

// PanelLifecycleRule blocks writes that would corrupt a panel's lifecycle:
// statuses outside the catalog, leaving a terminal status and any history
// that is not an append-only extension of the stored one.
func PanelLifecycleRule() domain.Rule {
	return panelLifecycleRule{}
}

type panelLifecycleRule struct{}

func (panelLifecycleRule) Name() string { return panelLifecycleRuleName }

func (panelLifecycleRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     panelLifecycleRuleName,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityPanel,
			EntityID: id,
		})
	}

	for _, change := range changes {
		if change.Entity != domain.EntityPanel {
			continue
		}
		after, ok := change.After.(domain.Panel)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			block(after.ID, "panel %s is set to invalid status %s", after.SerialNumber, after.Status)
			continue
		}

		before, ok := change.Before.(domain.Panel)
		if !ok {
			continue
		}
		if before.Status.Terminal() && after.Status != before.Status {
			block(after.ID, "cannot move panel %s from terminal status %s to %s", after.SerialNumber, before.Status, after.Status)
		}
		if !after.History.Extends(before.History) {
			block(after.ID, "status history of panel %s may only be appended to", after.SerialNumber)
		}
	}
	return res, nil
}
