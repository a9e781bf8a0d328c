package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/imis-health/casetracker/internal/kurrentdb"
	"github.com/imis-health/casetracker/internal/patient/domain"
)

// StreamAppender is the part of kurrentdb.Publisher the mirror needs
type StreamAppender interface {
	Append(ctx context.Context, stream string, events ...kurrentdb.Event) error
}

// KurrentDBMirror copies committed ledger events to one KurrentDB stream per
// patient. Postgres remains the source of truth.
type KurrentDBMirror struct {
	appender StreamAppender
}

// NewKurrentDBMirror creates a mirror writing through appender
func NewKurrentDBMirror(appender StreamAppender) *KurrentDBMirror {
	return &KurrentDBMirror{appender: appender}
}

// StreamName returns the mirror stream of a patient
func StreamName(patientID string) string {
	return "patient-" + patientID
}

type mirroredEvent struct {
	PatientID           string    `json:"patientId"`
	EventType           string    `json:"eventType"`
	EventTimestamp      time.Time `json:"eventTimestamp"`
	Seq                 int64     `json:"seq"`
	Comment             string    `json:"comment,omitempty"`
	LabTestID           string    `json:"labTestId,omitempty"`
	ResponsibleDoctorID string    `json:"responsibleDoctorId,omitempty"`
}

// Mirror appends events to the patient's stream in ledger order
func (m *KurrentDBMirror) Mirror(ctx context.Context, patientID string, events []domain.PatientEvent) error {
	if len(events) == 0 {
		return nil
	}

	out := make([]kurrentdb.Event, 0, len(events))
	for _, e := range events {
		data := mirroredEvent{
			PatientID:      e.PatientID,
			EventType:      string(e.Type),
			EventTimestamp: e.Timestamp.UTC(),
			Seq:            e.Seq,
			Comment:        e.Comment,
		}
		if e.LabTestID != nil {
			data.LabTestID = e.LabTestID.String()
		}
		if e.ResponsibleDoctorID != nil {
			data.ResponsibleDoctorID = e.ResponsibleDoctorID.String()
		}
		out = append(out, kurrentdb.Event{
			ID:       e.ID,
			Type:     string(e.Type),
			Data:     data,
			Metadata: map[string]string{"source": "casetracker", "seq": fmt.Sprint(e.Seq)},
		})
	}

	return m.appender.Append(ctx, StreamName(patientID), out...)
}
