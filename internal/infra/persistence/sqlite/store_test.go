package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelflow/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	ctx := context.Background()

	var projectID string
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		p, err := tx.CreateProject(domain.Project{Code: "PRJ", Name: "Persist"})
		projectID = p.ID
		return err
	})
	require.NoError(t, err)

	history := domain.NewStatusHistory(domain.StatusEntry{Status: domain.StatusManufactured, UpdatedBy: "import"})
	_, err = store.UpsertPanels(ctx, []domain.Panel{{
		SerialNumber:     "PNL-9",
		ProjectID:        projectID,
		Status:           domain.StatusManufactured,
		ManufacturedDate: "2024-03-01",
		History:          history,
	}})
	require.NoError(t, err)
	_, err = store.UpsertItems(ctx, []domain.Item{{Name: "Transmittal 7", ProjectID: projectID, Status: domain.ItemStatusCompleted}})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reloaded.Close() })

	assert.Equal(t, path, reloaded.Path())
	assert.NotNil(t, reloaded.DB())
	panel, ok := reloaded.FindPanelBySerial("PNL-9")
	require.True(t, ok)
	assert.Equal(t, domain.Date("2024-03-01"), panel.ManufacturedDate)
	assert.Equal(t, history.Entries(), panel.History.Entries())
	assert.Len(t, reloaded.ListProjects(), 1)
	assert.Len(t, reloaded.ListItems(), 1)
}

func TestSQLiteStoreRollsBackMemoryOnPersistFailure(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = store.UpsertPanels(ctx, []domain.Panel{{SerialNumber: "KEEP"}})
	require.NoError(t, err)

	require.NoError(t, store.DB().Close())
	_, err = store.UpsertPanels(ctx, []domain.Panel{{SerialNumber: "LOST"}})
	require.Error(t, err)

	panels := store.ListPanels()
	require.Len(t, panels, 1)
	assert.Equal(t, "KEEP", panels[0].SerialNumber)
}

func TestSQLiteStoreSkipsPersistOnCallbackError(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	boom := errors.New("boom")
	_, err = store.RunInTransaction(context.Background(), func(domain.Transaction) error { return boom })
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count))
	assert.Zero(t, count)
}
