package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"panelflow/pkg/domain"
)

var testNow = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

type seeded struct {
	project  Project
	building Building
	panel    Panel
}

// seedPanel creates a project, a building and one delivered panel with weight 500.
func seedPanel(t *testing.T, svc *Service) seeded {
	t.Helper()
	ctx := context.Background()
	project, _, err := svc.CreateProject(ctx, Project{Code: "PRJ-1", Name: "Tower A"})
	require.NoError(t, err)
	building, _, err := svc.CreateBuilding(ctx, Building{ProjectID: project.ID, Name: "Block 1"})
	require.NoError(t, err)

	buildingID := building.ID
	_, err = svc.Store().UpsertPanels(ctx, []Panel{{
		SerialNumber:     "PNL-001",
		ProjectID:        project.ID,
		BuildingID:       &buildingID,
		Status:           domain.StatusDelivered,
		ManufacturedDate: "2024-05-01",
		DeliveredDate:    "2024-05-10",
		Weight:           500,
		History: domain.NewStatusHistory(
			domain.StatusEntry{Status: domain.StatusManufactured, Date: testNow.Add(-13 * 24 * time.Hour), UpdatedBy: "factory"},
			domain.StatusEntry{Status: domain.StatusDelivered, Date: testNow.Add(-4 * 24 * time.Hour), UpdatedBy: "store"},
		),
	}})
	require.NoError(t, err)
	panel, ok := svc.Store().FindPanelBySerial("PNL-001")
	require.True(t, ok)
	return seeded{project: project, building: building, panel: panel}
}
