package reconcile

import (
	"time"

	"panelflow/pkg/domain"
)

// Defaults fill required fields of panels created by a batch.
type Defaults struct {
	ProjectID  string
	BuildingID string
}

// Merge overlays the present fields of row onto existing. Dimensions merge
// per measurement. ID, history and milestone dates are never touched; the
// row's project and building must already be resolved to ids.
func Merge(existing domain.Panel, row Row) domain.Panel {
	p := existing.Clone()
	if serial, ok := row.SerialNumber.Get(); ok {
		p.SerialNumber = domain.NormalizeSerial(serial)
	}
	row.Type.apply(&p.Type)
	row.ProjectRef.apply(&p.ProjectID)
	if id, ok := row.BuildingRef.Get(); ok {
		p.BuildingID = &id
	}
	row.Width.apply(&p.Dimensions.Width)
	row.Height.apply(&p.Dimensions.Height)
	row.Thickness.apply(&p.Dimensions.Thickness)
	row.Weight.apply(&p.Weight)
	row.Status.apply(&p.Status)
	row.TransmittalNumber.apply(&p.TransmittalNumber)
	row.DrawingNumber.apply(&p.DrawingNumber)
	row.PanelTag.apply(&p.PanelTag)
	row.Quantity.apply(&p.Quantity)
	row.Area.apply(&p.Area)
	row.IssuedBy.apply(&p.IssuedBy)
	row.ApprovedBy.apply(&p.ApprovedBy)
	row.Notes.apply(&p.Notes)
	return p
}

// Create builds a structurally complete panel from row. Absent fields take
// their defaults: status manufactured, zero dimensions and weight, today as
// manufactured date and the batch project and building. The history opens
// with the initial status attributed to actor.
func Create(row Row, defaults Defaults, now time.Time, actor string) domain.Panel {
	p := domain.Panel{
		Status:           domain.DefaultStatus,
		ProjectID:        defaults.ProjectID,
		ManufacturedDate: row.ManufacturedDate.Or(domain.DateOf(now)),
	}
	if defaults.BuildingID != "" {
		id := defaults.BuildingID
		p.BuildingID = &id
	}
	p = Merge(p, row)
	p.History = domain.NewStatusHistory(domain.StatusEntry{
		Status:    p.Status,
		Date:      now.UTC(),
		UpdatedBy: actor,
		Notes:     "created by import",
	})
	return p
}
