// Package events publishes panel lifecycle and import outcomes to an MQTT
// feed so downstream dashboards can follow progress without polling.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind identifies the event payload.
type Kind string

const (
	KindPanelTransitioned Kind = "panel.transitioned"
	KindImportReported    Kind = "import.reported"
)

// Event is the envelope published on the feed.
type Event struct {
	Kind    Kind      `json:"kind"`
	Topic   string    `json:"-"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PanelTransition is the payload of KindPanelTransitioned.
type PanelTransition struct {
	PanelID      string `json:"panel_id"`
	SerialNumber string `json:"serial_number"`
	From         string `json:"from"`
	To           string `json:"to"`
	Role         string `json:"role"`
	Actor        string `json:"actor"`
}

// ImportSummary is the payload of KindImportReported.
type ImportSummary struct {
	BatchID   string `json:"batch_id"`
	Kind      string `json:"kind"`
	State     string `json:"state"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
	Persisted bool   `json:"persisted"`
}

// PanelStatusTopic is the topic carrying status changes of one panel.
func PanelStatusTopic(panelID string) string {
	return "panelflow/panels/" + panelID + "/status"
}

// ImportTopic is the topic carrying the report of one batch.
func ImportTopic(batchID string) string {
	return "panelflow/imports/" + batchID
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop discards every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
