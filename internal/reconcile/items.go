package reconcile

import (
	"context"
	"fmt"
	"strings"

	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

// ImportItems reconciles an uploaded payload of administrative items. Items
// match on name within their project; the project comes from the row or the
// batch default.
func (r *Reconciler) ImportItems(ctx context.Context, req Request) (Report, error) {
	b := r.begin(KindItems)
	records, err := r.parse(ctx, b, req)
	if err != nil {
		return b.report, err
	}
	return r.reconcileItems(ctx, b, records, req.ProjectID)
}

// ReconcileItems reconciles item rows decoded by the caller.
func (r *Reconciler) ReconcileItems(ctx context.Context, rows []tabular.Row, projectID string) (Report, error) {
	b := r.begin(KindItems)
	if err := b.machine.fire(eventParse); err != nil {
		return b.report, err
	}
	return r.reconcileItems(ctx, b, tabular.Number(rows), projectID)
}

func (r *Reconciler) reconcileItems(ctx context.Context, b *batch, records []tabular.Record, defaultProject string) (Report, error) {
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

	plans := prepareAll(ctx, r.opts.Workers, records, func(index int, raw tabular.Row) prepared[domain.Item] {
		return prepareItem(index, raw, snap, defaultProject)
	})
	writes := classify(b, plans, "name", func(it domain.Item) string { return it.ID })

	err = r.persist(ctx, b, func(ctx context.Context) error {
		_, err := r.store.UpsertItems(ctx, writes)
		return err
	})
	return b.report, err
}

func prepareItem(index int, raw tabular.Row, snap *Snapshot, defaultProject string) prepared[domain.Item] {
	row, err := NormalizeItem(index, raw)
	plan := prepared[domain.Item]{index: index, warnings: row.Warnings}
	if err != nil {
		plan.err = err
		return plan
	}
	name := strings.TrimSpace(row.Name.Value)
	if !row.Name.Present || name == "" {
		plan.err = ValidationError{Row: index, Field: "name", Reason: "missing identity key"}
		return plan
	}
	ref := row.ProjectRef.Or(defaultProject)
	if ref == "" {
		plan.err = ValidationError{Row: index, Field: "project", Reason: "required for items"}
		return plan
	}
	project, ok := snap.Project(ref)
	if !ok {
		plan.err = ValidationError{Row: index, Field: "project", Reason: fmt.Sprintf("unknown project %q", ref)}
		return plan
	}
	plan.key = project.ID + "/" + name

	if existing, ok := snap.Item(project.ID, name); ok {
		plan.kind = ResolutionMatch
		plan.record = MergeItem(existing, row)
		return plan
	}
	plan.kind = ResolutionNew
	plan.record = CreateItem(row, project.ID)
	return plan
}

// MergeItem overlays the present fields of row onto existing. Name and
// project are the identity and stay as they are.
func MergeItem(existing domain.Item, row ItemRow) domain.Item {
	it := existing
	row.Description.apply(&it.Description)
	row.Status.apply(&it.Status)
	row.Quantity.apply(&it.Quantity)
	row.Unit.apply(&it.Unit)
	row.Notes.apply(&it.Notes)
	return it
}

// CreateItem builds a new item in projectID. A missing status becomes
// In Progress.
func CreateItem(row ItemRow, projectID string) domain.Item {
	it := domain.Item{
		Name:      strings.TrimSpace(row.Name.Value),
		ProjectID: projectID,
		Status:    domain.ItemStatusInProgress,
	}
	return MergeItem(it, row)
}
