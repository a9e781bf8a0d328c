package domain

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		event    *PatientEvent
		fallback Status
		want     Status
	}{
		{"No event keeps fallback", nil, StatusSuspected, StatusSuspected},
		{"Registered", &PatientEvent{Type: EventRegistered}, StatusSuspected, StatusRegistered},
		{"Positive result", &PatientEvent{Type: EventTestResultPositive}, StatusTested, StatusTestResultPositive},
		{"Recovered overrides positive", &PatientEvent{Type: EventRecovered}, StatusTestResultPositive, StatusRecovered},
		{"Quarantined", &PatientEvent{Type: EventQuarantined}, StatusSuspected, StatusQuarantined},
		{"Unknown type keeps fallback", &PatientEvent{Type: "BOGUS"}, StatusTested, StatusTested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.event, tt.fallback); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestEveryEventTypeHasStatus(t *testing.T) {
	for e, s := range statusByEvent {
		if string(e) != string(s) {
			t.Errorf("event %s maps to differently named status %s", e, s)
		}
		if !e.Valid() || !s.Valid() {
			t.Errorf("expected %s to be valid", e)
		}
	}
}

func TestLatestTieBreak(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	if Latest(nil) != nil {
		t.Fatal("Expected nil for empty history")
	}

	events := []PatientEvent{
		{Type: EventSuspected, Timestamp: ts.Add(-time.Hour), Seq: 1},
		{Type: EventTested, Timestamp: ts, Seq: 3},
		{Type: EventQuarantined, Timestamp: ts, Seq: 2},
	}

	latest := Latest(events)
	if latest.Type != EventTested {
		t.Errorf("Expected highest sequence to win a timestamp tie, got %s", latest.Type)
	}

	events = append(events, PatientEvent{Type: EventRecovered, Timestamp: ts.Add(time.Minute), Seq: 0})
	if Latest(events).Type != EventRecovered {
		t.Error("Expected later timestamp to win regardless of sequence")
	}
}

func TestSortEvents(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	events := []PatientEvent{
		{Type: EventTested, Timestamp: ts, Seq: 4},
		{Type: EventSuspected, Timestamp: ts.Add(-time.Hour), Seq: 9},
		{Type: EventQuarantined, Timestamp: ts, Seq: 2},
	}

	SortEvents(events)

	want := []EventType{EventSuspected, EventQuarantined, EventTested}
	for i, e := range events {
		if e.Type != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], e.Type)
		}
	}
}

func TestMonotonicTimestamp(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	latest := &PatientEvent{Timestamp: ts}

	if got := MonotonicTimestamp(ts.Add(-time.Hour), latest); !got.Equal(ts) {
		t.Errorf("Expected clamp to %v, got %v", ts, got)
	}
	if got := MonotonicTimestamp(ts.Add(time.Hour), latest); !got.Equal(ts.Add(time.Hour)) {
		t.Errorf("Expected later timestamp unchanged, got %v", got)
	}
	if got := MonotonicTimestamp(ts, nil); !got.Equal(ts) {
		t.Errorf("Expected timestamp unchanged without history, got %v", got)
	}
}

func TestTestStatusEvent(t *testing.T) {
	tests := []struct {
		status TestStatus
		want   EventType
	}{
		{TestStatusPending, EventTested},
		{TestStatusInProgress, EventTested},
		{TestStatusFinishedPositive, EventTestResultPositive},
		{TestStatusFinishedNegative, EventTestResultNegative},
		{TestStatusFinishedInvalid, EventTestResultInvalid},
	}

	for _, tt := range tests {
		got, ok := tt.status.Event()
		if !ok || got != tt.want {
			t.Errorf("%s: expected %s, got %s (ok=%v)", tt.status, tt.want, got, ok)
		}
	}

	if _, ok := TestStatus("LOST").Event(); ok {
		t.Error("Expected unknown test status to have no event")
	}
}
