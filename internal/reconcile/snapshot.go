package reconcile

import (
	"context"
	"fmt"

	"panelflow/pkg/domain"
)

// Snapshot is the read-only view of existing records taken once at batch
// start. Writes made by the batch are never visible through it.
type Snapshot struct {
	panels         map[string]domain.Panel
	projects       map[string]domain.Project
	projectsByCode map[string]domain.Project
	buildings      map[string]domain.Building
	items          map[string]domain.Item
}

// NewSnapshot indexes the given records.
func NewSnapshot(panels []domain.Panel, projects []domain.Project, buildings []domain.Building, items []domain.Item) *Snapshot {
	s := &Snapshot{
		panels:         make(map[string]domain.Panel, len(panels)),
		projects:       make(map[string]domain.Project, len(projects)),
		projectsByCode: make(map[string]domain.Project, len(projects)),
		buildings:      make(map[string]domain.Building, len(buildings)),
		items:          make(map[string]domain.Item, len(items)),
	}
	for _, p := range panels {
		if serial := domain.NormalizeSerial(p.SerialNumber); serial != "" {
			s.panels[serial] = p.Clone()
		}
	}
	for _, p := range projects {
		s.projects[p.ID] = p
		if p.Code != "" {
			s.projectsByCode[p.Code] = p
		}
	}
	for _, b := range buildings {
		s.buildings[b.ID] = b
	}
	for _, it := range items {
		s.items[itemKey(it.ProjectID, it.Name)] = it
	}
	return s
}

// TakeSnapshot reads every record the reconciler needs in one view.
func TakeSnapshot(ctx context.Context, store Store) (*Snapshot, error) {
	var snap *Snapshot
	err := store.View(ctx, func(v domain.TransactionView) error {
		snap = NewSnapshot(v.ListPanels(), v.ListProjects(), v.ListBuildings(), v.ListItems())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

// Panel returns the panel holding serial.
func (s *Snapshot) Panel(serial string) (domain.Panel, bool) {
	p, ok := s.panels[domain.NormalizeSerial(serial)]
	if !ok {
		return domain.Panel{}, false
	}
	return p.Clone(), true
}

// Project resolves a project by id, then by code.
func (s *Snapshot) Project(ref string) (domain.Project, bool) {
	if p, ok := s.projects[ref]; ok {
		return p, true
	}
	p, ok := s.projectsByCode[ref]
	return p, ok
}

// Building resolves a building by id, then by name within projectID.
func (s *Snapshot) Building(projectID, ref string) (domain.Building, bool) {
	if b, ok := s.buildings[ref]; ok {
		return b, true
	}
	for _, b := range s.buildings {
		if b.ProjectID == projectID && b.Name == ref {
			return b, true
		}
	}
	return domain.Building{}, false
}

// Item returns the item named name within projectID.
func (s *Snapshot) Item(projectID, name string) (domain.Item, bool) {
	it, ok := s.items[itemKey(projectID, name)]
	return it, ok
}

func itemKey(projectID, name string) string {
	return projectID + "\x00" + name
}
