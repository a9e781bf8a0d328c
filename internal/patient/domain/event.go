package domain

import (
	"sort"
	"time"

	"github.com/imis-health/casetracker/internal/shared/types"
)

// EventType is the fixed vocabulary of ledger facts
type EventType string

const (
	EventRegistered          EventType = "REGISTERED"
	EventSuspected           EventType = "SUSPECTED"
	EventScheduledForTesting EventType = "SCHEDULED_FOR_TESTING"
	EventTested              EventType = "TESTED"
	EventTestResultPositive  EventType = "TEST_RESULT_POSITIVE"
	EventTestResultNegative  EventType = "TEST_RESULT_NEGATIVE"
	EventTestResultInvalid   EventType = "TEST_RESULT_INVALID"
	EventQuarantined         EventType = "QUARANTINED"
	EventDoctorsVisit        EventType = "DOCTORS_VISIT"
	EventRecovered           EventType = "RECOVERED"
	EventDeceased            EventType = "DECEASED"
)

// Status is the derived case status cached on the patient
type Status string

const (
	StatusRegistered          Status = "REGISTERED"
	StatusSuspected           Status = "SUSPECTED"
	StatusScheduledForTesting Status = "SCHEDULED_FOR_TESTING"
	StatusTested              Status = "TESTED"
	StatusTestResultPositive  Status = "TEST_RESULT_POSITIVE"
	StatusTestResultNegative  Status = "TEST_RESULT_NEGATIVE"
	StatusTestResultInvalid   Status = "TEST_RESULT_INVALID"
	StatusQuarantined         Status = "QUARANTINED"
	StatusDoctorsVisit        Status = "DOCTORS_VISIT"
	StatusRecovered           Status = "RECOVERED"
	StatusDeceased            Status = "DECEASED"
)

var statusByEvent = map[EventType]Status{
	EventRegistered:          StatusRegistered,
	EventSuspected:           StatusSuspected,
	EventScheduledForTesting: StatusScheduledForTesting,
	EventTested:              StatusTested,
	EventTestResultPositive:  StatusTestResultPositive,
	EventTestResultNegative:  StatusTestResultNegative,
	EventTestResultInvalid:   StatusTestResultInvalid,
	EventQuarantined:         StatusQuarantined,
	EventDoctorsVisit:        StatusDoctorsVisit,
	EventRecovered:           StatusRecovered,
	EventDeceased:            StatusDeceased,
}

// Valid reports whether t is part of the vocabulary
func (t EventType) Valid() bool {
	_, ok := statusByEvent[t]
	return ok
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	_, ok := statusByEvent[EventType(s)]
	return ok
}

// InitialEvent is the registration event recorded for a patient created with
// the given status.
func (s Status) InitialEvent() EventType {
	return EventType(s)
}

// PatientEvent is an immutable ledger entry. Seq is assigned by the store on
// append and orders events that share a timestamp.
type PatientEvent struct {
	ID                  types.ID  `json:"id"`
	PatientID           string    `json:"patientId"`
	Type                EventType `json:"eventType"`
	Timestamp           time.Time `json:"eventTimestamp"`
	Seq                 int64     `json:"-"`
	Comment             string    `json:"comment,omitempty"`
	LabTestID           *types.ID `json:"labTestId,omitempty"`
	ResponsibleDoctorID *types.ID `json:"responsibleDoctorId,omitempty"`
}

// NewEvent builds an unsaved ledger entry
func NewEvent(patientID string, t EventType, ts time.Time, comment string) PatientEvent {
	return PatientEvent{
		ID:        types.NewID(),
		PatientID: patientID,
		Type:      t,
		Timestamp: ts,
		Comment:   comment,
	}
}

// DeriveStatus maps the latest event to the patient's status. Without an
// event the caller's fallback is returned unchanged.
func DeriveStatus(latest *PatientEvent, fallback Status) Status {
	if latest == nil {
		return fallback
	}
	if s, ok := statusByEvent[latest.Type]; ok {
		return s
	}
	return fallback
}

// Before orders events by timestamp, then by insertion sequence.
func (e PatientEvent) Before(o PatientEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.Seq < o.Seq
}

// SortEvents sorts a history into ledger order in place
func SortEvents(events []PatientEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Before(events[j])
	})
}

// Latest returns the current event of a history: the maximum timestamp, with
// the highest sequence winning ties. Nil for an empty history.
func Latest(events []PatientEvent) *PatientEvent {
	if len(events) == 0 {
		return nil
	}
	latest := events[0]
	for _, e := range events[1:] {
		if latest.Before(e) {
			latest = e
		}
	}
	return &latest
}

// MonotonicTimestamp clamps ts so that a new event never sorts before the
// current latest event.
func MonotonicTimestamp(ts time.Time, latest *PatientEvent) time.Time {
	if latest != nil && ts.Before(latest.Timestamp) {
		return latest.Timestamp
	}
	return ts
}
