package service

import (
	"context"
	"time"

	"github.com/imis-health/casetracker/internal/institution"
	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/metrics"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// CreatePatient stores a new patient together with its registration event.
// Institution-reported patients start as SUSPECTED; everyone else starts with
// the requested status, or REGISTERED.
func (s *Service) CreatePatient(ctx context.Context, actor Actor, d domain.Demographics) (*domain.Patient, error) {
	initial := domain.StatusRegistered
	if d.PatientStatus != "" {
		initial = d.PatientStatus
	}
	if actor.ReportedByInstitution() {
		initial = domain.StatusSuspected
		if _, err := s.directory.Get(ctx, *actor.InstitutionID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	p, err := domain.NewPatient(d, initial, now)
	if err != nil {
		return nil, err
	}
	reportedAt, err := domain.ParseDate("dateOfReporting", d.DateOfReporting)
	if err != nil {
		return nil, err
	}

	if p.ID == "" {
		p.ID = s.newID(p.FirstName, p.LastName, p.Zip, p.DateOfBirth)
	}
	if actor.ReportedByInstitution() {
		p.ReportingInstitutionID = actor.InstitutionID
	}

	ts := now
	if reportedAt != nil {
		ts = *reportedAt
	}
	e := domain.NewEvent(p.ID, initial.InitialEvent(), ts, "")
	e.ResponsibleDoctorID = doctorFor(actor)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		// a colliding id surfaces here as Conflict; no retry
		if err := tx.InsertPatient(ctx, p); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, &e); err != nil {
			return err
		}
		p.Apply(e, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.Events = []domain.PatientEvent{e}
	metrics.RecordPatientCreated(string(initial))
	s.committed(ctx, p.ID, e)

	s.logger.Info().
		Str("patient_id", p.ID).
		Str("status", string(p.Status)).
		Bool("institution_reported", actor.ReportedByInstitution()).
		Msg("patient created")

	return p, nil
}

// SendToQuarantine orders quarantine until the given date. A new order
// supersedes the previous incident.
func (s *Service) SendToQuarantine(ctx context.Context, actor Actor, patientID string, until time.Time, comment string) (*domain.Patient, error) {
	now := s.now()
	var (
		p *domain.Patient
		e domain.PatientEvent
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		p, err = tx.LockPatient(ctx, patientID)
		if err != nil {
			return err
		}

		e = domain.NewEvent(p.ID, domain.EventQuarantined, now, comment)
		e.ResponsibleDoctorID = doctorFor(actor)
		p.QuarantineUntil = &until
		if err := appendEvent(ctx, tx, p, &e, now); err != nil {
			return err
		}

		previous, err := tx.LatestQuarantineIncident(ctx, p.ID)
		if err != nil {
			return err
		}
		incident := domain.QuarantineIncident{
			ID:        types.NewID(),
			PatientID: p.ID,
			EventID:   e.ID,
			Until:     until,
			Comment:   comment,
			CreatedAt: now,
		}
		if previous != nil {
			incident.SupersedesID = previous.ID.Ptr()
		}
		return tx.InsertQuarantineIncident(ctx, &incident)
	})
	if err != nil {
		return nil, err
	}

	if until.Before(now.Truncate(24 * time.Hour)) {
		s.logger.Warn().
			Str("patient_id", p.ID).
			Str("until", until.Format(domain.DateLayout)).
			Msg("quarantine ordered with an end date in the past")
	}

	metrics.RecordQuarantineOrder()
	s.committed(ctx, p.ID, e)

	s.logger.Info().
		Str("patient_id", p.ID).
		Str("until", until.Format(domain.DateLayout)).
		Msg("quarantine ordered")

	return p, nil
}

// LabResult reports the new state of a lab test. The test is addressed
// either by LabTestID or by LaboratoryID and TestID.
type LabResult struct {
	LabTestID    *types.ID         `json:"labTestId,omitempty"`
	LaboratoryID *types.ID         `json:"laboratoryId,omitempty"`
	TestID       string            `json:"testId,omitempty"`
	Status       domain.TestStatus `json:"testStatus"`
	Comment      string            `json:"comment,omitempty"`
	Report       []byte            `json:"report,omitempty"`
}

// IngestLabResult updates the lab test and appends the matching ledger event
// for its patient in one transaction.
func (s *Service) IngestLabResult(ctx context.Context, actor Actor, r LabResult) (*domain.LabTest, error) {
	eventType, ok := r.Status.Event()
	if !ok {
		return nil, errors.InvalidInput("testStatus", "unknown test status "+string(r.Status))
	}

	lab := r.LaboratoryID
	if lab == nil && r.LabTestID == nil && actor.InstitutionType == institution.TypeLaboratory {
		lab = actor.InstitutionID
	}
	if r.LabTestID == nil && (lab == nil || r.TestID == "") {
		return nil, errors.InvalidInput("testId", "either labTestId or laboratoryId and testId are required")
	}
	if lab != nil {
		if _, err := institution.RequireLaboratory(ctx, s.directory, *lab); err != nil {
			return nil, err
		}
	}

	now := s.now()
	var (
		lt *domain.LabTest
		e  domain.PatientEvent
	)

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		lt, err = s.resolveLabTest(ctx, tx, r, lab)
		if err != nil {
			return err
		}

		lt.Status = r.Status
		lt.Comment = r.Comment
		if r.Report != nil {
			lt.Report = r.Report
		}
		lt.LastUpdate = now
		if err := tx.UpdateLabTest(ctx, lt); err != nil {
			return err
		}

		p, err := tx.LockPatient(ctx, lt.PatientID)
		if err != nil {
			return err
		}
		e = domain.NewEvent(p.ID, eventType, now, r.Comment)
		e.LabTestID = lt.ID.Ptr()
		return appendEvent(ctx, tx, p, &e, now)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordLabResult(string(lt.Status))
	s.committed(ctx, lt.PatientID, e)

	s.logger.Info().
		Str("lab_test_id", lt.ID.String()).
		Str("patient_id", lt.PatientID).
		Str("test_status", string(lt.Status)).
		Msg("lab result ingested")

	return lt, nil
}

func (s *Service) resolveLabTest(ctx context.Context, tx domain.Tx, r LabResult, lab *types.ID) (*domain.LabTest, error) {
	if r.LabTestID != nil {
		lt, err := tx.LockLabTest(ctx, *r.LabTestID)
		if err != nil {
			return nil, err
		}
		if lab != nil && lt.LaboratoryID != *lab {
			return nil, errors.Conflict("lab test " + lt.ID.String() + " does not belong to laboratory " + lab.String())
		}
		if r.TestID != "" && lt.TestID != r.TestID {
			return nil, errors.Conflict("lab test " + lt.ID.String() + " does not carry test id " + r.TestID)
		}
		if lab == nil {
			if _, err := institution.RequireLaboratory(ctx, s.directory, lt.LaboratoryID); err != nil {
				return nil, err
			}
		}
		return lt, nil
	}

	candidates, err := tx.LockLabTestsByTestID(ctx, r.TestID)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].LaboratoryID == *lab {
			return &candidates[i], nil
		}
	}
	if len(candidates) > 0 {
		return nil, errors.Conflict("test id " + r.TestID + " does not belong to laboratory " + lab.String())
	}
	return nil, errors.NotFound("lab test", r.TestID)
}

// LabTestRegistration creates a pending test order
type LabTestRegistration struct {
	LaboratoryID *types.ID           `json:"laboratoryId,omitempty"`
	TestID       string              `json:"testId"`
	PatientID    string              `json:"patientId"`
	TestType     domain.TestType     `json:"testType,omitempty"`
	TestMaterial domain.TestMaterial `json:"testMaterial,omitempty"`
	Comment      string              `json:"comment,omitempty"`
}

// RegisterLabTest creates a PENDING lab test and appends TESTED to the
// patient's ledger.
func (s *Service) RegisterLabTest(ctx context.Context, actor Actor, r LabTestRegistration) (*domain.LabTest, error) {
	lab := r.LaboratoryID
	if lab == nil && actor.InstitutionType == institution.TypeLaboratory {
		lab = actor.InstitutionID
	}
	details := map[string]string{}
	if lab == nil {
		details["laboratoryId"] = "is required"
	}
	if r.TestID == "" {
		details["testId"] = "is required"
	}
	if r.PatientID == "" {
		details["patientId"] = "is required"
	}
	if len(details) > 0 {
		return nil, errors.Validation("invalid lab test", details)
	}
	if _, err := institution.RequireLaboratory(ctx, s.directory, *lab); err != nil {
		return nil, err
	}

	now := s.now()
	lt := &domain.LabTest{
		ID:           types.NewID(),
		LaboratoryID: *lab,
		TestID:       r.TestID,
		TestType:     r.TestType,
		TestMaterial: r.TestMaterial,
		Status:       domain.TestStatusPending,
		Comment:      r.Comment,
		LastUpdate:   now,
	}
	var e domain.PatientEvent

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		p, err := tx.LockPatient(ctx, r.PatientID)
		if err != nil {
			return err
		}
		lt.PatientID = p.ID
		if err := tx.InsertLabTest(ctx, lt); err != nil {
			return err
		}

		e = domain.NewEvent(p.ID, domain.EventTested, now, r.Comment)
		e.LabTestID = lt.ID.Ptr()
		return appendEvent(ctx, tx, p, &e, now)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, lt.PatientID, e)

	s.logger.Info().
		Str("lab_test_id", lt.ID.String()).
		Str("laboratory_id", lt.LaboratoryID.String()).
		Str("patient_id", lt.PatientID).
		Msg("lab test registered")

	return lt, nil
}

// EventRequest records an arbitrary vocabulary event
type EventRequest struct {
	Type      domain.EventType `json:"eventType"`
	Timestamp *time.Time       `json:"eventTimestamp,omitempty"`
	Comment   string           `json:"comment,omitempty"`
}

// RecordEvent appends an event and re-derives the status. A timestamp
// earlier than the current latest event is moved up to it.
func (s *Service) RecordEvent(ctx context.Context, actor Actor, patientID string, r EventRequest) (*domain.Patient, error) {
	if !r.Type.Valid() {
		return nil, errors.InvalidInput("eventType", "unknown event type "+string(r.Type))
	}

	now := s.now()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}

	var (
		p *domain.Patient
		e domain.PatientEvent
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		p, err = tx.LockPatient(ctx, patientID)
		if err != nil {
			return err
		}
		e = domain.NewEvent(p.ID, r.Type, ts, r.Comment)
		e.ResponsibleDoctorID = doctorFor(actor)
		return appendEvent(ctx, tx, p, &e, now)
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, p.ID, e)

	s.logger.Info().
		Str("patient_id", p.ID).
		Str("event_type", string(e.Type)).
		Msg("event recorded")

	return p, nil
}
