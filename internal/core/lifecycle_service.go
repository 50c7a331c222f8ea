package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"panelflow/internal/events"
	"panelflow/pkg/domain"
)

// Transition result labels used for metrics and logs.
const (
	transitionApplied  = "applied"
	transitionInvalid  = "invalid_transition"
	transitionTerminal = "terminal_state"
	transitionNotFound = "not_found"
	transitionRejected = "rule_rejected"
	transitionError    = "error"
)

func panelLockKey(id string) string { return "panel:" + id }

// TransitionPanel moves one panel to req.Status on behalf of req.Role. Calls
// for the same panel are serialized so concurrent requests each see the
// history written by the previous one.
func (s *Service) TransitionPanel(ctx context.Context, req domain.TransitionRequest) (Panel, Result, error) {
	release, err := s.locker.Acquire(ctx, panelLockKey(req.PanelID))
	if err != nil {
		s.countTransition(req.Status, transitionError)
		return Panel{}, Result{}, fmt.Errorf("lock panel %s: %w", req.PanelID, err)
	}
	defer release()

	now := s.clock.Now()
	var (
		from    Status
		updated Panel
	)
	res, err := s.run(ctx, "transition_panel", func(tx Transaction) error {
		current, ok := tx.FindPanel(req.PanelID)
		if !ok {
			return ErrNotFound{Entity: EntityPanel, ID: req.PanelID}
		}
		from = current.Status
		next, err := req.Apply(current, now)
		if err != nil {
			return err
		}
		updated, err = tx.UpdatePanel(req.PanelID, func(p *Panel) error {
			*p = next
			return nil
		})
		return err
	})
	if err != nil {
		s.countTransition(req.Status, transitionResult(err))
		return Panel{}, res, err
	}
	s.countTransition(req.Status, transitionApplied)
	s.logger.Info("panel transitioned",
		zap.String("panel_id", updated.ID),
		zap.String("serial_number", updated.SerialNumber),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)),
		zap.String("role", string(req.Role)),
		zap.String("actor", req.Actor))

	event := events.Event{
		Kind:  events.KindPanelTransitioned,
		Topic: events.PanelStatusTopic(updated.ID),
		At:    now,
		Payload: events.PanelTransition{
			PanelID:      updated.ID,
			SerialNumber: updated.SerialNumber,
			From:         string(from),
			To:           string(updated.Status),
			Role:         string(req.Role),
			Actor:        req.Actor,
		},
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish transition event", zap.String("panel_id", updated.ID), zap.Error(err))
	}
	return updated, res, nil
}

// AllowedNextStates looks the panel up and returns the statuses role may move it to.
func (s *Service) AllowedNextStates(ctx context.Context, panelID string, role Role) ([]Status, error) {
	panel, err := s.GetPanel(ctx, panelID)
	if err != nil {
		return nil, err
	}
	return domain.AllowedNextStates(panel.Status, role), nil
}

func (s *Service) countTransition(status Status, result string) {
	if c, ok := s.metrics.(transitionCounter); ok {
		c.Transition(string(status), result)
	}
}

func transitionResult(err error) string {
	var (
		notFound  ErrNotFound
		violation RuleViolationError
	)
	switch {
	case errors.Is(err, domain.ErrTerminalState):
		return transitionTerminal
	case errors.Is(err, domain.ErrInvalidTransition):
		return transitionInvalid
	case errors.As(err, &notFound):
		return transitionNotFound
	case errors.As(err, &violation):
		return transitionRejected
	default:
		return transitionError
	}
}
