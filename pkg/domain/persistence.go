package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	UpsertPanel(Panel) (Panel, error)
	UpdatePanel(id string, mutator func(*Panel) error) (Panel, error)
	CreateProject(Project) (Project, error)
	CreateBuilding(Building) (Building, error)
	UpsertItem(Item) (Item, error)
	FindPanel(id string) (Panel, bool)
	FindPanelBySerial(serial string) (Panel, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
	FindItemByName(projectID, name string) (Item, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
//
// UpsertPanels and UpsertItems are the batch writes used by reconciliation:
// every record is written in one transaction or none is.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPanel(id string) (Panel, bool)
	FindPanelBySerial(serial string) (Panel, bool)
	ListPanels() []Panel
	UpsertPanels(ctx context.Context, panels []Panel) (Result, error)
	ListProjects() []Project
	ListBuildings() []Building
	ListItems() []Item
	UpsertItems(ctx context.Context, items []Item) (Result, error)
}
