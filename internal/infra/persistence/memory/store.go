// Package memory provides an in-memory implementation of the panel record
// store used for tests, ephemeral environments and as the transactional core
// of the sqlite and postgres snapshot stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"panelflow/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Panel aliases domain.Panel for in-memory persistence operations.
	Panel = domain.Panel
	// Project aliases domain.Project.
	Project = domain.Project
	// Building aliases domain.Building.
	Building = domain.Building
	// Item aliases domain.Item.
	Item = domain.Item
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	panels    map[string]Panel
	projects  map[string]Project
	buildings map[string]Building
	items     map[string]Item
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Panels    map[string]Panel    `json:"panels"`
	Projects  map[string]Project  `json:"projects"`
	Buildings map[string]Building `json:"buildings"`
	Items     map[string]Item     `json:"items"`
}

func newMemoryState() memoryState {
	return memoryState{
		panels:    make(map[string]Panel),
		projects:  make(map[string]Project),
		buildings: make(map[string]Building),
		items:     make(map[string]Item),
	}
}

func (s memoryState) clone() memoryState {
	cp := memoryState{
		panels:    make(map[string]Panel, len(s.panels)),
		projects:  make(map[string]Project, len(s.projects)),
		buildings: make(map[string]Building, len(s.buildings)),
		items:     make(map[string]Item, len(s.items)),
	}
	for k, v := range s.panels {
		cp.panels[k] = v.Clone()
	}
	for k, v := range s.projects {
		cp.projects[k] = v
	}
	for k, v := range s.buildings {
		cp.buildings[k] = v
	}
	for k, v := range s.items {
		cp.items[k] = v
	}
	return cp
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cp := state.clone()
	return Snapshot{Panels: cp.panels, Projects: cp.projects, Buildings: cp.buildings, Items: cp.items}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{panels: s.Panels, projects: s.Projects, buildings: s.Buildings, items: s.Items}
	if state.panels == nil {
		state.panels = map[string]Panel{}
	}
	if state.projects == nil {
		state.projects = map[string]Project{}
	}
	if state.buildings == nil {
		state.buildings = map[string]Building{}
	}
	if state.items == nil {
		state.items = map[string]Item{}
	}
	return state.clone()
}

// migrateSnapshot repairs records persisted by older builds: panels without a
// status get the default status and blank keys are filled from the map key.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	for id, panel := range snapshot.Panels {
		if panel.ID == "" {
			panel.ID = id
		}
		if !panel.Status.Valid() {
			panel.Status = domain.DefaultStatus
		}
		snapshot.Panels[id] = panel
	}
	for id, item := range snapshot.Items {
		if item.ID == "" {
			item.ID = id
		}
		if _, ok := domain.ParseItemStatus(string(item.Status)); !ok {
			item.Status = domain.ItemStatusInProgress
		}
		snapshot.Items[id] = item
	}
	return snapshot
}

// Store provides an in-memory transactional store for the panel domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used to stamp CreatedAt/UpdatedAt.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := memoryStateFromSnapshot(snapshot)
	migrated := migrateSnapshot(Snapshot{Panels: state.panels, Projects: state.projects, Buildings: state.buildings, Items: state.items})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryState{panels: migrated.Panels, projects: migrated.Projects, buildings: migrated.Buildings, items: migrated.Items}
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn succeeds and no blocking rule
// violation is reported.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// UpsertPanels writes every panel in one transaction.
func (s *Store) UpsertPanels(ctx context.Context, panels []Panel) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		for _, p := range panels {
			if _, err := tx.UpsertPanel(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertItems writes every item in one transaction.
func (s *Store) UpsertItems(ctx context.Context, items []Item) (Result, error) {
	return s.RunInTransaction(ctx, func(tx Transaction) error {
		for _, it := range items {
			if _, err := tx.UpsertItem(it); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPanel returns a panel by id.
func (s *Store) GetPanel(id string) (Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.panels[id]
	if !ok {
		return Panel{}, false
	}
	return p.Clone(), true
}

// FindPanelBySerial returns the panel holding serial.
func (s *Store) FindPanelBySerial(serial string) (Panel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findBySerial(&s.state, serial)
}

// ListPanels returns every panel ordered by serial number.
func (s *Store) ListPanels() []Panel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPanels(&s.state)
}

// ListProjects returns every project ordered by code.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProjects(&s.state)
}

// ListBuildings returns every building ordered by project then name.
func (s *Store) ListBuildings() []Building {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBuildings(&s.state)
}

// ListItems returns every item ordered by project then name.
func (s *Store) ListItems() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listItems(&s.state)
}

func findBySerial(state *memoryState, serial string) (Panel, bool) {
	serial = domain.NormalizeSerial(serial)
	if serial == "" {
		return Panel{}, false
	}
	for _, p := range state.panels {
		if domain.NormalizeSerial(p.SerialNumber) == serial {
			return p.Clone(), true
		}
	}
	return Panel{}, false
}

func listPanels(state *memoryState) []Panel {
	out := make([]Panel, 0, len(state.panels))
	for _, p := range state.panels {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SerialNumber != out[j].SerialNumber {
			return out[i].SerialNumber < out[j].SerialNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func listProjects(state *memoryState) []Project {
	out := make([]Project, 0, len(state.projects))
	for _, p := range state.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code || (out[i].Code == out[j].Code && out[i].ID < out[j].ID) })
	return out
}

func listBuildings(state *memoryState) []Building {
	out := make([]Building, 0, len(state.buildings))
	for _, b := range state.buildings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func listItems(state *memoryState) []Item {
	out := make([]Item, 0, len(state.items))
	for _, it := range state.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProjectID != out[j].ProjectID {
			return out[i].ProjectID < out[j].ProjectID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListPanels() []Panel       { return listPanels(v.state) }
func (v transactionView) ListProjects() []Project   { return listProjects(v.state) }
func (v transactionView) ListBuildings() []Building { return listBuildings(v.state) }
func (v transactionView) ListItems() []Item         { return listItems(v.state) }

func (v transactionView) FindPanel(id string) (Panel, bool) {
	p, ok := v.state.panels[id]
	if !ok {
		return Panel{}, false
	}
	return p.Clone(), true
}

func (v transactionView) FindPanelBySerial(serial string) (Panel, bool) {
	return findBySerial(v.state, serial)
}

func (v transactionView) FindProject(id string) (Project, bool) {
	p, ok := v.state.projects[id]
	return p, ok
}

func (v transactionView) FindBuilding(id string) (Building, bool) {
	b, ok := v.state.buildings[id]
	return b, ok
}

func (v transactionView) FindItemByName(projectID, name string) (Item, bool) {
	for _, it := range v.state.items {
		if it.ProjectID == projectID && it.Name == name {
			return it, true
		}
	}
	return Item{}, false
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindPanel exposes panel lookup within the transaction scope.
func (tx *transaction) FindPanel(id string) (Panel, bool) {
	return transactionView{state: &tx.state}.FindPanel(id)
}

// FindPanelBySerial exposes serial lookup within the transaction scope.
func (tx *transaction) FindPanelBySerial(serial string) (Panel, bool) {
	return findBySerial(&tx.state, serial)
}

// UpsertPanel creates the panel when its id is unknown and replaces it otherwise.
func (tx *transaction) UpsertPanel(p Panel) (Panel, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	current, exists := tx.state.panels[p.ID]
	if exists {
		p.CreatedAt = current.CreatedAt
	} else {
		p.CreatedAt = tx.now
	}
	p.UpdatedAt = tx.now
	tx.state.panels[p.ID] = p.Clone()
	if exists {
		tx.recordChange(Change{Entity: domain.EntityPanel, Action: domain.ActionUpdate, Before: current.Clone(), After: p.Clone()})
	} else {
		tx.recordChange(Change{Entity: domain.EntityPanel, Action: domain.ActionCreate, After: p.Clone()})
	}
	return p.Clone(), nil
}

// UpdatePanel mutates an existing panel using the provided mutator function.
func (tx *transaction) UpdatePanel(id string, mutator func(*Panel) error) (Panel, error) {
	current, ok := tx.state.panels[id]
	if !ok {
		return Panel{}, domain.ErrNotFound{Entity: domain.EntityPanel, ID: id}
	}
	before := current.Clone()
	next := current.Clone()
	if err := mutator(&next); err != nil {
		return Panel{}, err
	}
	next.ID = id
	next.CreatedAt = before.CreatedAt
	next.UpdatedAt = tx.now
	tx.state.panels[id] = next.Clone()
	tx.recordChange(Change{Entity: domain.EntityPanel, Action: domain.ActionUpdate, Before: before, After: next.Clone()})
	return next.Clone(), nil
}

// CreateProject stores a new project.
func (tx *transaction) CreateProject(p Project) (Project, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.projects[p.ID]; exists {
		return Project{}, fmt.Errorf("project %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.projects[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityProject, Action: domain.ActionCreate, After: p})
	return p, nil
}

// CreateBuilding stores a new building under an existing project.
func (tx *transaction) CreateBuilding(b Building) (Building, error) {
	if _, ok := tx.state.projects[b.ProjectID]; !ok {
		return Building{}, domain.ErrNotFound{Entity: domain.EntityProject, ID: b.ProjectID}
	}
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.buildings[b.ID]; exists {
		return Building{}, fmt.Errorf("building %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.buildings[b.ID] = b
	tx.recordChange(Change{Entity: domain.EntityBuilding, Action: domain.ActionCreate, After: b})
	return b, nil
}

// UpsertItem creates or replaces an item.
func (tx *transaction) UpsertItem(it Item) (Item, error) {
	if it.ID == "" {
		it.ID = tx.store.newID()
	}
	current, exists := tx.state.items[it.ID]
	if exists {
		it.CreatedAt = current.CreatedAt
	} else {
		it.CreatedAt = tx.now
	}
	it.UpdatedAt = tx.now
	tx.state.items[it.ID] = it
	action := domain.ActionCreate
	var before any
	if exists {
		action = domain.ActionUpdate
		before = current
	}
	tx.recordChange(Change{Entity: domain.EntityItem, Action: action, Before: before, After: it})
	return it, nil
}
