package domain

import (
	"encoding/json"
	"time"
)

// StatusEntry records one accepted lifecycle transition.
type StatusEntry struct {
	Status    Status    `json:"status"`
	Date      time.Time `json:"date"`
	UpdatedBy string    `json:"updated_by"`
	Notes     string    `json:"notes,omitempty"`
}

// StatusHistory is the append-only transition log of a panel. Entries are
// unexported; the only mutation is Append, which returns a new log and never
// shares backing storage with the receiver.
type StatusHistory struct {
	entries []StatusEntry
}

// NewStatusHistory builds a log from previously persisted entries.
func NewStatusHistory(entries ...StatusEntry) StatusHistory {
	return StatusHistory{entries: append([]StatusEntry(nil), entries...)}
}

// Append returns a log with entry added at the end.
func (h StatusHistory) Append(entry StatusEntry) StatusHistory {
	out := make([]StatusEntry, len(h.entries), len(h.entries)+1)
	copy(out, h.entries)
	return StatusHistory{entries: append(out, entry)}
}

// Len returns the number of entries.
func (h StatusHistory) Len() int { return len(h.entries) }

// Entries returns a copy of the entries in append order.
func (h StatusHistory) Entries() []StatusEntry {
	return append([]StatusEntry(nil), h.entries...)
}

// Last returns the most recent entry.
func (h StatusHistory) Last() (StatusEntry, bool) {
	if len(h.entries) == 0 {
		return StatusEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Extends reports whether h starts with every entry of prev, in order.
func (h StatusHistory) Extends(prev StatusHistory) bool {
	if len(h.entries) < len(prev.entries) {
		return false
	}
	for i, e := range prev.entries {
		got := h.entries[i]
		if got.Status != e.Status || !got.Date.Equal(e.Date) || got.UpdatedBy != e.UpdatedBy || got.Notes != e.Notes {
			return false
		}
	}
	return true
}

func (h StatusHistory) clone() StatusHistory {
	if h.entries == nil {
		return StatusHistory{}
	}
	return StatusHistory{entries: append([]StatusEntry(nil), h.entries...)}
}

// MarshalJSON encodes the log as a JSON array.
func (h StatusHistory) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

// UnmarshalJSON decodes a JSON array into the log.
func (h *StatusHistory) UnmarshalJSON(data []byte) error {
	var entries []StatusEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}
