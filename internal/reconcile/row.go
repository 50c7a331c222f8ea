package reconcile

import "panelflow/pkg/domain"

// Row is the canonical field set of one panel row. Project and building are
// references as written in the source (id, project code or building name) and
// are resolved against the snapshot later.
type Row struct {
	Index int

	SerialNumber Field[string]
	Type         Field[string]
	ProjectRef   Field[string]
	BuildingRef  Field[string]

	Width     Field[float64]
	Height    Field[float64]
	Thickness Field[float64]
	Weight    Field[float64]

	Status           Field[domain.Status]
	ManufacturedDate Field[domain.Date]

	TransmittalNumber Field[string]
	DrawingNumber     Field[string]
	PanelTag          Field[string]
	Quantity          Field[float64]
	Area              Field[float64]
	IssuedBy          Field[string]
	ApprovedBy        Field[string]
	Notes             Field[string]

	// Warnings records lenient fallbacks such as an unrecognised status.
	Warnings []string
}

// ItemRow is the canonical field set of one administrative item row.
type ItemRow struct {
	Index int

	Name        Field[string]
	ProjectRef  Field[string]
	Description Field[string]
	Status      Field[domain.ItemStatus]
	Quantity    Field[float64]
	Unit        Field[string]
	Notes       Field[string]

	Warnings []string
}
