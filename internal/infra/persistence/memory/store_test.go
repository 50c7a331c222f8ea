package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panelflow/pkg/domain"
)

var fixedNow = time.Date(2024, 5, 14, 8, 0, 0, 0, time.UTC)

type blockSerialRule struct{ serial string }

func (r blockSerialRule) Name() string { return "block_serial" }

func (r blockSerialRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, c := range changes {
		if p, ok := c.After.(domain.Panel); ok && p.SerialNumber == r.serial {
			res.Violations = append(res.Violations, domain.Violation{Rule: r.Name(), Severity: domain.SeverityBlock, Message: "blocked " + p.SerialNumber})
		}
	}
	return res, nil
}

func newTestStore(rules ...domain.Rule) *Store {
	engine := domain.NewRulesEngine()
	for _, r := range rules {
		engine.Register(r)
	}
	s := NewStore(engine)
	s.SetNowFunc(func() time.Time { return fixedNow })
	return s
}

func seedProject(t *testing.T, s *Store) domain.Project {
	t.Helper()
	var project domain.Project
	_, err := s.RunInTransaction(context.Background(), func(tx Transaction) error {
		var err error
		project, err = tx.CreateProject(domain.Project{Code: "PRJ-1", Name: "Tower A"})
		return err
	})
	require.NoError(t, err)
	return project
}

func TestUpsertPanelsCreatesAndUpdates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	_, err := s.UpsertPanels(ctx, []Panel{
		{SerialNumber: "PNL-002", Status: domain.StatusManufactured},
		{SerialNumber: "PNL-001", Status: domain.StatusManufactured},
	})
	require.NoError(t, err)

	panels := s.ListPanels()
	require.Len(t, panels, 2)
	assert.Equal(t, "PNL-001", panels[0].SerialNumber)
	assert.NotEmpty(t, panels[0].ID)
	assert.Equal(t, fixedNow, panels[0].CreatedAt)

	updated := panels[0]
	updated.Weight = 750
	_, err = s.UpsertPanels(ctx, []Panel{updated})
	require.NoError(t, err)

	got, ok := s.GetPanel(updated.ID)
	require.True(t, ok)
	assert.Equal(t, 750.0, got.Weight)
	assert.Len(t, s.ListPanels(), 2)

	bySerial, ok := s.FindPanelBySerial("  PNL-002 ")
	require.True(t, ok)
	assert.Equal(t, "PNL-002", bySerial.SerialNumber)
	_, ok = s.FindPanelBySerial("")
	assert.False(t, ok)
}

func TestBlockingRuleDiscardsWholeBatch(t *testing.T) {
	s := newTestStore(blockSerialRule{serial: "BAD"})

	res, err := s.UpsertPanels(context.Background(), []Panel{
		{SerialNumber: "GOOD"},
		{SerialNumber: "BAD"},
	})
	require.Error(t, err)
	var violation domain.RuleViolationError
	require.True(t, errors.As(err, &violation))
	assert.True(t, res.HasBlocking())
	assert.Empty(t, s.ListPanels())
}

func TestMutatorErrorRollsBack(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, err := s.UpsertPanels(ctx, []Panel{{SerialNumber: "PNL-1", Status: domain.StatusIssued}})
	require.NoError(t, err)
	id := s.ListPanels()[0].ID

	boom := errors.New("boom")
	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		if _, err := tx.UpdatePanel(id, func(p *Panel) error {
			p.Status = domain.StatusProduced
			return nil
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, _ := s.GetPanel(id)
	assert.Equal(t, domain.StatusIssued, got.Status)

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePanel("missing", func(*Panel) error { return nil })
		return err
	})
	var notFound domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestUpdatePanelRecordsBeforeAndAfter(t *testing.T) {
	var seen []domain.Change
	recorder := recordingRule{seen: &seen}
	s := newTestStore(recorder)
	ctx := context.Background()
	_, err := s.UpsertPanels(ctx, []Panel{{SerialNumber: "PNL-1", Status: domain.StatusIssued}})
	require.NoError(t, err)
	id := s.ListPanels()[0].ID
	seen = nil

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePanel(id, func(p *Panel) error {
			p.Status = domain.StatusProduced
			p.ID = "tampered"
			return nil
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, domain.ActionUpdate, seen[0].Action)
	assert.Equal(t, domain.StatusIssued, seen[0].Before.(Panel).Status)
	assert.Equal(t, domain.StatusProduced, seen[0].After.(Panel).Status)
	assert.Equal(t, id, seen[0].After.(Panel).ID)
}

type recordingRule struct{ seen *[]domain.Change }

func (recordingRule) Name() string { return "recording" }

func (r recordingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	*r.seen = append(*r.seen, changes...)
	return domain.Result{}, nil
}

func TestProjectsBuildingsAndItems(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	project := seedProject(t, s)

	_, err := s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{ProjectID: "nope", Name: "B"})
		return err
	})
	require.Error(t, err)

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateBuilding(domain.Building{ProjectID: project.ID, Name: "Block B"})
		return err
	})
	require.NoError(t, err)
	require.Len(t, s.ListBuildings(), 1)

	_, err = s.RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.CreateProject(domain.Project{Base: domain.Base{ID: project.ID}})
		return err
	})
	require.Error(t, err)

	_, err = s.UpsertItems(ctx, []Item{{Name: "Anchor bolt", ProjectID: project.ID, Status: domain.ItemStatusInProgress, Quantity: 10}})
	require.NoError(t, err)
	require.NoError(t, s.View(ctx, func(view TransactionView) error {
		item, ok := view.FindItemByName(project.ID, "Anchor bolt")
		require.True(t, ok)
		assert.Equal(t, 10.0, item.Quantity)
		_, ok = view.FindItemByName("other", "Anchor bolt")
		assert.False(t, ok)
		return nil
	}))
}

func TestViewIsIsolatedFromLaterWrites(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	_, err := s.UpsertPanels(ctx, []Panel{{SerialNumber: "PNL-1"}})
	require.NoError(t, err)

	require.NoError(t, s.View(ctx, func(view TransactionView) error {
		_, err := s.UpsertPanels(ctx, []Panel{{SerialNumber: "PNL-2"}})
		require.NoError(t, err)
		assert.Len(t, view.ListPanels(), 1)
		return nil
	}))
	assert.Len(t, s.ListPanels(), 2)
}

func TestExportImportRoundTripMigrates(t *testing.T) {
	s := newTestStore()
	project := seedProject(t, s)
	_, err := s.UpsertPanels(context.Background(), []Panel{{SerialNumber: "PNL-1", ProjectID: project.ID, Status: domain.StatusDelivered}})
	require.NoError(t, err)

	snapshot := s.ExportState()
	buckets, err := snapshot.EncodeBuckets()
	require.NoError(t, err)
	assert.Len(t, buckets, len(Buckets))

	var decoded Snapshot
	for name, payload := range buckets {
		require.NoError(t, decoded.DecodeBucket(name, payload))
	}
	require.NoError(t, decoded.DecodeBucket("unknown", []byte("garbage")))
	require.Error(t, decoded.DecodeBucket("panels", []byte("{")))

	legacy := Snapshot{Panels: map[string]Panel{"old": {SerialNumber: "OLD"}}}
	other := NewStore(nil)
	other.ImportState(legacy)
	got, ok := other.GetPanel("old")
	require.True(t, ok)
	assert.Equal(t, "old", got.ID)
	assert.Equal(t, domain.DefaultStatus, got.Status)

	other.ImportState(decoded)
	assert.Len(t, other.ListPanels(), 1)
	assert.Len(t, other.ListProjects(), 1)
}
