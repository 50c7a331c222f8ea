package reconcile

import "panelflow/pkg/domain"

// ResolutionKind says whether a row matched an existing panel.
type ResolutionKind int

const (
	ResolutionNew ResolutionKind = iota
	ResolutionMatch
)

func (k ResolutionKind) String() string {
	if k == ResolutionMatch {
		return "match"
	}
	return "new"
}

// Resolution is the identity decision for one row. Existing is set for matches.
type Resolution struct {
	Kind     ResolutionKind
	Existing domain.Panel
}

// Resolve matches row to a snapshot panel by exact, case-sensitive equality
// on the trimmed serial number. Matching is global across projects. A row
// without a serial number is rejected before any match is attempted.
func Resolve(row Row, snap *Snapshot) (Resolution, error) {
	serial := domain.NormalizeSerial(row.SerialNumber.Value)
	if !row.SerialNumber.Present || serial == "" {
		return Resolution{}, ValidationError{Row: row.Index, Field: "serial_number", Reason: "missing identity key"}
	}
	if existing, ok := snap.Panel(serial); ok {
		return Resolution{Kind: ResolutionMatch, Existing: existing}, nil
	}
	return Resolution{Kind: ResolutionNew}, nil
}
