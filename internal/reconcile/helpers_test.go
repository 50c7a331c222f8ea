package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"panelflow/internal/core"
	"panelflow/internal/infra/persistence/memory"
	"panelflow/internal/tabular"
	"panelflow/pkg/domain"
)

var testNow = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	project  domain.Project
	other    domain.Project
	building domain.Building
	foreign  domain.Building
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	store.SetNowFunc(func() time.Time { return testNow })
	f := &fixture{store: store}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		if f.project, err = tx.CreateProject(domain.Project{Code: "TWR", Name: "Tower"}); err != nil {
			return err
		}
		if f.other, err = tx.CreateProject(domain.Project{Code: "MALL", Name: "Mall"}); err != nil {
			return err
		}
		if f.building, err = tx.CreateBuilding(domain.Building{ProjectID: f.project.ID, Name: "Block A"}); err != nil {
			return err
		}
		f.foreign, err = tx.CreateBuilding(domain.Building{ProjectID: f.other.ID, Name: "Podium"})
		return err
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) seedPanel(t *testing.T, p domain.Panel) domain.Panel {
	t.Helper()
	if p.ProjectID == "" {
		p.ProjectID = f.project.ID
	}
	if p.Status == "" {
		p.Status = domain.StatusManufactured
	}
	if p.ManufacturedDate == "" {
		p.ManufacturedDate = "2024-05-01"
	}
	_, err := f.store.UpsertPanels(context.Background(), []domain.Panel{p})
	require.NoError(t, err)
	got, ok := f.store.FindPanelBySerial(p.SerialNumber)
	require.True(t, ok)
	return got
}

func (f *fixture) reconciler(opts Options) *Reconciler {
	return f.reconcilerFor(f.store, opts)
}

func (f *fixture) reconcilerFor(store Store, opts Options) *Reconciler {
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	if opts.NewBatchID == nil {
		var (
			mu sync.Mutex
			n  int
		)
		opts.NewBatchID = func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("batch-%d", n)
		}
	}
	return New(store, opts)
}

func panelRows(serials ...string) []tabular.Row {
	rows := make([]tabular.Row, 0, len(serials))
	for _, s := range serials {
		rows = append(rows, tabular.Row{"Serial Number": s, "Width": "100"})
	}
	return rows
}

// failingStore reads from a real store and rejects every write.
type failingStore struct {
	Store
	err error
}

func (s failingStore) UpsertPanels(context.Context, []domain.Panel) (domain.Result, error) {
	return domain.Result{}, s.err
}

func (s failingStore) UpsertItems(context.Context, []domain.Item) (domain.Result, error) {
	return domain.Result{}, s.err
}

type countingMetrics struct {
	mu      sync.Mutex
	rows    map[string]int
	batches map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{rows: map[string]int{}, batches: map[string]int{}}
}

func (m *countingMetrics) ImportRow(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[kind+"/"+outcome]++
}

func (m *countingMetrics) ImportBatch(kind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[kind+"/"+result]++
}

type memoryArchive struct {
	keys []string
	err  error
}

func (a *memoryArchive) Archive(_ context.Context, kind, batchID, filename string, _ []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := kind + "/" + batchID + "/" + filename
	a.keys = append(a.keys, key)
	return key, nil
}
