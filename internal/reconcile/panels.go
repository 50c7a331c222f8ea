package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

func (r *Reconciler) reconcilePanels(ctx context.Context, b *batch, records []tabular.Record, defaults Defaults) (Report, error) {
	if err := b.machine.fire(eventProcess); err != nil {
		return b.report, err
	}
	snap, err := TakeSnapshot(ctx, r.store)
	if err != nil {
		b.report.Errors = append(b.report.Errors, err.Error())
		_ = b.machine.fire(eventFail)
		r.finish(ctx, b)
		return b.report, err
	}

	now := r.opts.Now()
	plans := prepareAll(ctx, r.opts.Workers, records, func(index int, raw tabular.Row) prepared[domain.Panel] {
		return r.preparePanel(index, raw, snap, defaults, now)
	})
	writes := classify(b, plans, "serial_number", func(p domain.Panel) string { return p.ID })

	err = r.persist(ctx, b, func(ctx context.Context) error {
		_, err := r.store.UpsertPanels(ctx, writes)
		return err
	})
	return b.report, err
}

// preparePanel takes one raw row to a merged or created panel. Everything it
// reads comes from snap, so rows are independent of each other.
func (r *Reconciler) preparePanel(index int, raw tabular.Row, snap *Snapshot, defaults Defaults, now time.Time) prepared[domain.Panel] {
	row, err := NormalizePanel(index, raw)
	plan := prepared[domain.Panel]{index: index, key: domain.NormalizeSerial(row.SerialNumber.Value), warnings: row.Warnings}
	if err != nil {
		plan.err = err
		return plan
	}
	res, err := Resolve(row, snap)
	if err != nil {
		plan.err = err
		return plan
	}
	plan.kind = res.Kind

	// Later milestones are stamped with the transition day, so a future
	// manufactured date would leave the panel unable to move forward.
	if d, ok := row.ManufacturedDate.Get(); ok && domain.DateOf(now).Before(d) {
		plan.warnings = append(plan.warnings, fmt.Sprintf("row %d: manufactured date %s is in the future, ignored", index, d))
		row.ManufacturedDate = Field[domain.Date]{}
	}

	refs, err := resolveReferences(&row, res, snap, defaults)
	if err != nil {
		plan.err = err
		return plan
	}

	var panel domain.Panel
	if res.Kind == ResolutionMatch {
		existing := res.Existing
		if status, ok := row.Status.Get(); ok && existing.Status.Terminal() && status != existing.Status {
			plan.err = ValidationError{Row: index, Field: "status", Reason: domain.TerminalStateError{PanelID: existing.ID, Status: existing.Status}.Error()}
			return plan
		}
		if projectID, ok := row.ProjectRef.Get(); ok && projectID != existing.ProjectID {
			plan.warnings = append(plan.warnings, fmt.Sprintf("row %d: serial %s matched a panel of project %s, moving it to %s", index, plan.key, existing.ProjectID, projectID))
			r.opts.Logger.Warn("serial matched across projects",
				zap.Int("row", index),
				zap.String("serial_number", plan.key),
				zap.String("from_project", existing.ProjectID),
				zap.String("to_project", projectID))
		}
		panel = Merge(existing, row)
	} else {
		panel = Create(row, refs, now, r.opts.Actor)
	}

	if panel.ProjectID == "" {
		plan.err = ValidationError{Row: index, Field: "project", Reason: "required for new panels"}
		return plan
	}
	if panel.BuildingID != nil {
		if b, ok := snap.Building(panel.ProjectID, *panel.BuildingID); !ok || b.ProjectID != panel.ProjectID {
			plan.err = ValidationError{Row: index, Field: "building", Reason: fmt.Sprintf("building %s does not belong to project %s", *panel.BuildingID, panel.ProjectID)}
			return plan
		}
	}
	plan.record = panel
	return plan
}

// resolveReferences rewrites the row's project and building references to
// ids and returns the ids a created panel falls back to. Batch defaults only
// apply to new panels.
func resolveReferences(row *Row, res Resolution, snap *Snapshot, defaults Defaults) (Defaults, error) {
	var out Defaults

	projectRef, hasProject := row.ProjectRef.Get()
	if !hasProject && res.Kind == ResolutionNew && defaults.ProjectID != "" {
		projectRef, hasProject = defaults.ProjectID, true
	}
	switch {
	case hasProject:
		p, ok := snap.Project(projectRef)
		if !ok {
			return out, ValidationError{Row: row.Index, Field: "project", Reason: fmt.Sprintf("unknown project %q", projectRef)}
		}
		out.ProjectID = p.ID
		if row.ProjectRef.Present {
			row.ProjectRef = Some(p.ID)
		}
	case res.Kind == ResolutionMatch:
		out.ProjectID = res.Existing.ProjectID
	}

	buildingRef, hasBuilding := row.BuildingRef.Get()
	if !hasBuilding && res.Kind == ResolutionNew && defaults.BuildingID != "" {
		buildingRef, hasBuilding = defaults.BuildingID, true
	}
	if hasBuilding {
		b, ok := snap.Building(out.ProjectID, buildingRef)
		if !ok {
			return out, ValidationError{Row: row.Index, Field: "building", Reason: fmt.Sprintf("unknown building %q", buildingRef)}
		}
		out.BuildingID = b.ID
		if row.BuildingRef.Present {
			row.BuildingRef = Some(b.ID)
		}
	}
	return out, nil
}
