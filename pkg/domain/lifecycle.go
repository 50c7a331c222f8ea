package domain

import "time"

// TransitionRequest asks for one lifecycle change. It is not persisted.
type TransitionRequest struct {
	PanelID string
	Status  Status
	Role    Role
	Actor   string
	Notes   string
}

// milestoneFor maps statuses to the milestone they stamp. approved_material
// is an acceptance of delivered material and stamps nothing.
var milestoneFor = map[Status]func(*Panel) *Date{
	StatusDelivered:     func(p *Panel) *Date { return &p.DeliveredDate },
	StatusInstalled:     func(p *Panel) *Date { return &p.InstalledDate },
	StatusChecked:       func(p *Panel) *Date { return &p.InspectedDate },
	StatusInspected:     func(p *Panel) *Date { return &p.InspectedDate },
	StatusApprovedFinal: func(p *Panel) *Date { return &p.InspectedDate },
}

// Transition applies a status change to panel on behalf of role. The input is
// never modified: on error it is returned untouched, on success a copy with
// the new status, any newly reached milestone date and one more history
// entry is returned. Milestones already set are never overwritten.
func Transition(panel Panel, requested Status, role Role, actor string, notes string, now time.Time) (Panel, error) {
	if panel.Status.Terminal() {
		return panel, TerminalStateError{PanelID: panel.ID, Status: panel.Status}
	}
	if !CanTransition(panel.Status, requested, role) {
		return panel, InvalidTransitionError{PanelID: panel.ID, From: panel.Status, To: requested, Role: role}
	}

	next := panel.Clone()
	next.Status = requested
	if field, ok := milestoneFor[requested]; ok {
		if d := field(&next); d.IsZero() {
			*d = DateOf(now)
		}
	}
	next.History = next.History.Append(StatusEntry{
		Status:    requested,
		Date:      now.UTC(),
		UpdatedBy: actor,
		Notes:     notes,
	})
	return next, nil
}

// Apply runs Transition for the request against panel.
func (r TransitionRequest) Apply(panel Panel, now time.Time) (Panel, error) {
	return Transition(panel, r.Status, r.Role, r.Actor, r.Notes, now)
}
