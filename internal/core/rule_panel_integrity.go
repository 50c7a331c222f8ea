package core

import (
	"context"
	"fmt"
	"sort"

	"panelflow/pkg/domain"
)

// SerialUniquenessRule blocks commits where two panels share a serial number
// or a panel has none.
func SerialUniquenessRule() domain.Rule {
	return serialUniquenessRule{}
}

type serialUniquenessRule struct{}

func (serialUniquenessRule) Name() string { return "serial_uniqueness" }

func (serialUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if !touches(changes, domain.EntityPanel) {
		return res, nil
	}
	owners := make(map[string][]string)
	for _, panel := range view.ListPanels() {
		serial := domain.NormalizeSerial(panel.SerialNumber)
		if serial == "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "serial_uniqueness",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("panel %s has no serial number", panel.ID),
				Entity:   domain.EntityPanel,
				EntityID: panel.ID,
			})
			continue
		}
		owners[serial] = append(owners[serial], panel.ID)
	}
	serials := make([]string, 0, len(owners))
	for serial, ids := range owners {
		if len(ids) > 1 {
			serials = append(serials, serial)
		}
	}
	sort.Strings(serials)
	for _, serial := range serials {
		ids := owners[serial]
		sort.Strings(ids)
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "serial_uniqueness",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("serial number %s is used by %d panels", serial, len(ids)),
			Entity:   domain.EntityPanel,
			EntityID: ids[0],
		})
	}
	return res, nil
}

// PanelReferenceRule blocks panels whose project is missing or whose building
// belongs to another project.
func PanelReferenceRule() domain.Rule {
	return panelReferenceRule{}
}

type panelReferenceRule struct{}

func (panelReferenceRule) Name() string { return "panel_reference" }

func (panelReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		panel, ok := change.After.(domain.Panel)
		if change.Entity != domain.EntityPanel || !ok {
			continue
		}
		if msg := referenceProblem(view, panel); msg != "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "panel_reference",
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityPanel,
				EntityID: panel.ID,
			})
		}
	}
	return res, nil
}

func referenceProblem(view domain.RuleView, panel domain.Panel) string {
	if panel.ProjectID == "" {
		return fmt.Sprintf("panel %s has no project", panel.SerialNumber)
	}
	if _, ok := view.FindProject(panel.ProjectID); !ok {
		return fmt.Sprintf("panel %s references unknown project %s", panel.SerialNumber, panel.ProjectID)
	}
	if panel.BuildingID == nil {
		return ""
	}
	building, ok := view.FindBuilding(*panel.BuildingID)
	if !ok {
		return fmt.Sprintf("panel %s references unknown building %s", panel.SerialNumber, *panel.BuildingID)
	}
	if building.ProjectID != panel.ProjectID {
		return fmt.Sprintf("panel %s building %s belongs to project %s, not %s", panel.SerialNumber, building.ID, building.ProjectID, panel.ProjectID)
	}
	return ""
}

// MilestoneOrderRule blocks panels without a manufactured date and panels
// whose reached milestones go backwards in time.
func MilestoneOrderRule() domain.Rule {
	return milestoneOrderRule{}
}

type milestoneOrderRule struct{}

func (milestoneOrderRule) Name() string { return "milestone_order" }

func (milestoneOrderRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		panel, ok := change.After.(domain.Panel)
		if change.Entity != domain.EntityPanel || !ok {
			continue
		}
		var msg string
		if panel.ManufacturedDate.IsZero() {
			msg = fmt.Sprintf("panel %s has no manufactured date", panel.SerialNumber)
		} else {
			reached := panel.Milestones()
			for i := 1; i < len(reached); i++ {
				if reached[i].Before(reached[i-1]) {
					msg = fmt.Sprintf("panel %s milestone %s precedes %s", panel.SerialNumber, reached[i], reached[i-1])
					break
				}
			}
		}
		if msg != "" {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "milestone_order",
				Severity: domain.SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityPanel,
				EntityID: panel.ID,
			})
		}
	}
	return res, nil
}

func touches(changes []domain.Change, entity domain.EntityType) bool {
	for _, c := range changes {
		if c.Entity == entity {
			return true
		}
	}
	return false
}
