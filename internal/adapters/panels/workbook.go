package panels

import (
	"context"

	"panelflow/internal/core"
	"panelflow/internal/tabular"
)

// Catalog is the read side needed to render panels.
type Catalog interface {
	ListPanels(ctx context.Context, filter core.PanelFilter) []core.Panel
	ListProjects(ctx context.Context) []core.Project
	ListBuildings(ctx context.Context, projectID string) []core.Building
}

// Headers are chosen so an exported workbook imports back unchanged.
var panelHeaders = []string{
	"Serial Number", "Type", "Project", "Building",
	"Width", "Height", "Thickness", "Weight",
	"Status", "Manufactured Date", "Delivered Date", "Installed Date", "Inspected Date",
	"Transmittal Number", "Drawing Number", "Panel Tag", "Quantity", "Area",
	"Issued By", "Approved By", "Notes",
}

var panelWidths = []float64{
	18, 12, 12, 16,
	10, 10, 10, 10,
	22, 16, 16, 16, 16,
	18, 18, 12, 10, 10,
	14, 14, 30,
}

// PanelSheet lays out the panels matching filter, one row per panel in
// serial order. Projects are written by code and buildings by name.
func PanelSheet(ctx context.Context, catalog Catalog, filter core.PanelFilter) tabular.Sheet {
	projects := make(map[string]string)
	for _, p := range catalog.ListProjects(ctx) {
		projects[p.ID] = p.Code
	}
	buildings := make(map[string]string)
	for _, b := range catalog.ListBuildings(ctx, "") {
		buildings[b.ID] = b.Name
	}

	panels := catalog.ListPanels(ctx, filter)
	rows := make([][]any, 0, len(panels))
	for _, p := range panels {
		project := projects[p.ProjectID]
		if project == "" {
			project = p.ProjectID
		}
		var building string
		if p.BuildingID != nil {
			if building = buildings[*p.BuildingID]; building == "" {
				building = *p.BuildingID
			}
		}
		rows = append(rows, []any{
			p.SerialNumber, p.Type, project, building,
			p.Dimensions.Width, p.Dimensions.Height, p.Dimensions.Thickness, p.Weight,
			p.Status.Label(), p.ManufacturedDate.String(), p.DeliveredDate.String(), p.InstalledDate.String(), p.InspectedDate.String(),
			p.TransmittalNumber, p.DrawingNumber, p.PanelTag, p.Quantity, p.Area,
			p.IssuedBy, p.ApprovedBy, p.Notes,
		})
	}
	return tabular.Sheet{Name: "Panels", Headers: panelHeaders, Widths: panelWidths, Rows: rows}
}

// PanelWorkbook renders PanelSheet as xlsx bytes.
func PanelWorkbook(ctx context.Context, catalog Catalog, filter core.PanelFilter) ([]byte, int, error) {
	sheet := PanelSheet(ctx, catalog, filter)
	data, err := tabular.WriteXLSX(sheet)
	if err != nil {
		return nil, 0, err
	}
	return data, len(sheet.Rows), nil
}
