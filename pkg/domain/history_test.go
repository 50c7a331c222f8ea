package domain

import (
	"encoding/json"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestAppendDoesNotAliasReceiver(t *testing.T) {
	base := NewStatusHistory(StatusEntry{Status: StatusIssued, UpdatedBy: "a"})
	left := base.Append(StatusEntry{Status: StatusProduced, UpdatedBy: "b"})
	right := base.Append(StatusEntry{Status: StatusOnHold, UpdatedBy: "c"})

	if base.Len() != 1 {
		t.Fatalf("base grew to %d entries", base.Len())
	}
	if last, _ := left.Last(); last.Status != StatusProduced {
		t.Fatalf("left last: got %s", last.Status)
	}
	if last, _ := right.Last(); last.Status != StatusOnHold {
		t.Fatalf("right last: got %s", last.Status)
	}

	entries := left.Entries()
	entries[0].Status = StatusCancelled
	if first := left.Entries()[0]; first.Status != StatusIssued {
		t.Fatalf("Entries leaked internal storage, first is now %s", first.Status)
	}
}

func TestExtends(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := NewStatusHistory(StatusEntry{Status: StatusIssued, Date: at, UpdatedBy: "a"})
	cases := []struct {
		name string
		next StatusHistory
		base StatusHistory
		want bool
	}{
		{"identical", prev, prev, true},
		{"appended", prev.Append(StatusEntry{Status: StatusProduced}), prev, true},
		{"truncated", StatusHistory{}, prev, false},
		{"from empty", prev, StatusHistory{}, true},
		{"edited", NewStatusHistory(StatusEntry{Status: StatusIssued, Date: at, UpdatedBy: "mallory"}), prev, false},
	}
	for _, c := range cases {
		if got := c.next.Extends(c.base); got != c.want {
			t.Errorf("%s: Extends = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestHistoryJSON(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	panel := Panel{Base: Base{ID: "p"}, Status: StatusIssued, History: NewStatusHistory(StatusEntry{Status: StatusIssued, Date: at, UpdatedBy: "a"})}

	data, err := json.Marshal(panel)
	if err != nil {
		t.Fatalf("marshal panel: %v", err)
	}
	if !strings.Contains(string(data), `"status_history":[{"status":"issued"`) {
		t.Fatalf("unexpected history encoding: %s", data)
	}

	var decoded Panel
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal panel: %v", err)
	}
	if !reflect.DeepEqual(panel.History.Entries(), decoded.History.Entries()) {
		t.Fatalf("history mismatch: got %+v, want %+v", decoded.History.Entries(), panel.History.Entries())
	}

	empty, err := json.Marshal(Panel{})
	if err != nil {
		t.Fatalf("marshal empty panel: %v", err)
	}
	if !strings.Contains(string(empty), `"status_history":[]`) {
		t.Fatalf("empty history should encode as [], got %s", empty)
	}
}

func TestDateHelpers(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil || d != "2024-02-29" {
		t.Fatalf("ParseDate leap day = %q, %v", d, err)
	}
	if _, err := ParseDate("2023-02-29"); err == nil {
		t.Fatalf("expected 2023-02-29 to be rejected")
	}

	if got := DateOf(time.Date(2024, 5, 14, 23, 0, 0, 0, time.UTC)); got != "2024-05-14" {
		t.Fatalf("DateOf: got %q", got)
	}
	if !DateOf(time.Time{}).IsZero() {
		t.Fatalf("zero time should give a zero date")
	}
	if !Date("2024-01-01").Before("2024-01-02") {
		t.Fatalf("expected 2024-01-01 before 2024-01-02")
	}
	if Date("").Before("2024-01-02") {
		t.Fatalf("an unset date precedes nothing")
	}
	if got := Date("2024-05-14").Time(); !got.Equal(time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Time: got %v", got)
	}
}

func TestPanelMilestonesAndClone(t *testing.T) {
	building := "b"
	panel := Panel{ManufacturedDate: "2024-01-01", InstalledDate: "2024-02-01", BuildingID: &building}
	if got := panel.Milestones(); !slices.Equal(got, []Date{"2024-01-01", "2024-02-01"}) {
		t.Fatalf("milestones: got %v", got)
	}

	cp := panel.Clone()
	*cp.BuildingID = "other"
	if *panel.BuildingID != "b" {
		t.Fatalf("clone shares building pointer")
	}
}

func TestRuleViolationErrorMessage(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{
		{Rule: "x", Severity: SeverityWarn, Message: "ignored"},
		{Rule: "y", Severity: SeverityBlock, Message: "serial taken"},
	}}}
	if got := err.Error(); got != "transaction blocked by rules: serial taken" {
		t.Fatalf("message: got %q", got)
	}
	if got := (RuleViolationError{}).Error(); got != "transaction blocked by rules" {
		t.Fatalf("empty message: got %q", got)
	}
}
