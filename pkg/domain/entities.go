// Package domain defines the panel records, the lifecycle status catalog,
// the role-transition policy and the rule evaluation primitives used by
// panelflow.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPanel identifies a precast panel record.
	EntityPanel EntityType = "panel"
	// EntityProject identifies a project record.
	EntityProject EntityType = "project"
	// EntityBuilding identifies a building within a project.
	EntityBuilding EntityType = "building"
	// EntityItem identifies an administrative document item.
	EntityItem EntityType = "item"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Dimensions holds the physical size of a panel. Every measurement is
// non-negative; zero means "not measured".
type Dimensions struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
}

// Negative reports whether any measurement is below zero.
func (d Dimensions) Negative() bool {
	return d.Width < 0 || d.Height < 0 || d.Thickness < 0
}

// Panel is a precast construction element tracked from manufacture to final approval.
type Panel struct {
	Base
	SerialNumber string     `json:"serial_number"`
	Type         string     `json:"type"`
	ProjectID    string     `json:"project_id"`
	BuildingID   *string    `json:"building_id,omitempty"`
	Dimensions   Dimensions `json:"dimensions"`
	Weight       float64    `json:"weight"`

	Status           Status        `json:"status"`
	ManufacturedDate Date          `json:"manufactured_date"`
	DeliveredDate    Date          `json:"delivered_date,omitempty"`
	InstalledDate    Date          `json:"installed_date,omitempty"`
	InspectedDate    Date          `json:"inspected_date,omitempty"`
	History          StatusHistory `json:"status_history"`

	TransmittalNumber string  `json:"transmittal_number,omitempty"`
	DrawingNumber     string  `json:"drawing_number,omitempty"`
	PanelTag          string  `json:"panel_tag,omitempty"`
	Quantity          float64 `json:"quantity,omitempty"`
	Area              float64 `json:"area,omitempty"`
	IssuedBy          string  `json:"issued_by,omitempty"`
	ApprovedBy        string  `json:"approved_by,omitempty"`
	Notes             string  `json:"notes,omitempty"`
}

// Milestones returns the reached milestone dates in lifecycle order. Unset
// milestones are skipped.
func (p Panel) Milestones() []Date {
	out := make([]Date, 0, 4)
	for _, d := range []Date{p.ManufacturedDate, p.DeliveredDate, p.InstalledDate, p.InspectedDate} {
		if !d.IsZero() {
			out = append(out, d)
		}
	}
	return out
}

// Clone returns a deep copy of the panel.
func (p Panel) Clone() Panel {
	cp := p
	if p.BuildingID != nil {
		id := *p.BuildingID
		cp.BuildingID = &id
	}
	cp.History = p.History.clone()
	return cp
}

// NormalizeSerial trims the natural key used for reconciliation. Matching is
// case-sensitive, so only surrounding whitespace is removed.
func NormalizeSerial(serial string) string {
	return strings.TrimSpace(serial)
}

// Project groups buildings and panels.
type Project struct {
	Base
	Code string `json:"code"`
	Name string `json:"name"`
}

// Building is a structure within a project that panels are installed into.
type Building struct {
	Base
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// ItemStatus enumerates the progress states of an administrative item.
type ItemStatus string

// Item statuses. ItemStatusInProgress is the ingestion fallback.
const (
	ItemStatusInProgress ItemStatus = "In Progress"
	ItemStatusCompleted  ItemStatus = "Completed"
	ItemStatusOnHold     ItemStatus = "On Hold"
)

// ItemStatuses lists the recognised item statuses.
func ItemStatuses() []ItemStatus {
	return []ItemStatus{ItemStatusInProgress, ItemStatusCompleted, ItemStatusOnHold}
}

// ParseItemStatus resolves a user supplied label, ignoring case and spacing.
func ParseItemStatus(raw string) (ItemStatus, bool) {
	folded := foldLabel(raw)
	for _, s := range ItemStatuses() {
		if foldLabel(string(s)) == folded {
			return s, true
		}
	}
	return "", false
}

// Item is an administrative document item (transmittals, submittals) tracked
// per project alongside panels. Name is its natural key.
type Item struct {
	Base
	Name        string     `json:"name"`
	ProjectID   string     `json:"project_id"`
	Description string     `json:"description,omitempty"`
	Status      ItemStatus `json:"status"`
	Quantity    float64    `json:"quantity,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

func foldLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
