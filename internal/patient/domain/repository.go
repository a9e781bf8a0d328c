package domain

import (
	"context"

	"github.com/imis-health/casetracker/internal/shared/types"
)

// Ledger is the append-only event trail
type Ledger interface {
	// AppendEvent stores e and assigns its Seq. It never rejects based on
	// existing history.
	AppendEvent(ctx context.Context, e *PatientEvent) error
	// LatestEvent returns nil when the patient has no events.
	LatestEvent(ctx context.Context, patientID string) (*PatientEvent, error)
	// EventsFor returns the full history in ledger order.
	EventsFor(ctx context.Context, patientID string) ([]PatientEvent, error)
}

// Tx is the write side, valid only inside Store.WithinTx
type Tx interface {
	Ledger

	// LockPatient loads the patient and holds a write lock on it until the
	// transaction ends.
	LockPatient(ctx context.Context, id string) (*Patient, error)
	InsertPatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error

	LockLabTest(ctx context.Context, id types.ID) (*LabTest, error)
	// LockLabTestsByTestID returns every lab test carrying the external test
	// id, across laboratories.
	LockLabTestsByTestID(ctx context.Context, testID string) ([]LabTest, error)
	InsertLabTest(ctx context.Context, t *LabTest) error
	UpdateLabTest(ctx context.Context, t *LabTest) error

	LatestQuarantineIncident(ctx context.Context, patientID string) (*QuarantineIncident, error)
	InsertQuarantineIncident(ctx context.Context, q *QuarantineIncident) error

	LockExposureContact(ctx context.Context, id types.ID) (*ExposureContact, error)
	InsertExposureContact(ctx context.Context, c *ExposureContact) error
	UpdateExposureContact(ctx context.Context, c *ExposureContact) error
	DeleteExposureContact(ctx context.Context, id types.ID) error
}

// Reader is the query side
type Reader interface {
	FindPatient(ctx context.Context, id string) (*Patient, error)
	LatestEvent(ctx context.Context, patientID string) (*PatientEvent, error)
	EventsFor(ctx context.Context, patientID string) ([]PatientEvent, error)
	// LatestEvents returns the current event of each given patient.
	LatestEvents(ctx context.Context, patientIDs []string) (map[string]PatientEvent, error)

	// FindPatients and CountPatients must evaluate the same predicate
	// identically.
	FindPatients(ctx context.Context, pred Predicate, sort Sort, page Page) ([]Patient, error)
	CountPatients(ctx context.Context, pred Predicate) (int64, error)

	FindLabTest(ctx context.Context, id types.ID) (*LabTest, error)
	LabTestsFor(ctx context.Context, patientID string) ([]LabTest, error)
	QuarantineIncidentsFor(ctx context.Context, patientID string) ([]QuarantineIncident, error)

	FindExposureContact(ctx context.Context, id types.ID) (*ExposureContact, error)
	// ExposureContactsBySource lists the people the patient exposed.
	ExposureContactsBySource(ctx context.Context, patientID string) ([]ExposureContact, error)
	// ExposureContactsByContact lists the sources that exposed the patient.
	ExposureContactsByContact(ctx context.Context, patientID string) ([]ExposureContact, error)
}

// Store combines both sides. WithinTx commits when fn returns nil and rolls
// back otherwise.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
