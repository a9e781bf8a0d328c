package service

import (
	"context"
	"time"

	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/metrics"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// PatientPage is one page of results and the total ignoring paging
type PatientPage struct {
	Data  []domain.Patient `json:"data"`
	Total int64            `json:"total"`
}

// SimpleQuery is the free-text search request
type SimpleQuery struct {
	Query                string
	OrderBy              string
	Order                string
	OffsetPage           int
	PageSize             int
	IncludePatientEvents bool
}

// QueryPatients returns one page of patients matching every criterion
func (s *Service) QueryPatients(ctx context.Context, c domain.Criteria) ([]domain.Patient, error) {
	defer observe("criteria", time.Now())

	pred, err := c.Predicate()
	if err != nil {
		return nil, err
	}
	return s.page(ctx, pred, c.OrderBy, c.Order, c.OffsetPage, c.PageSize, c.IncludePatientEvents)
}

// CountQueryPatients counts all patients matching the criteria
func (s *Service) CountQueryPatients(ctx context.Context, c domain.Criteria) (int64, error) {
	pred, err := c.Predicate()
	if err != nil {
		return 0, err
	}
	return s.store.CountPatients(ctx, pred)
}

// QueryPatientsWithCount returns the page and total from the same predicate
func (s *Service) QueryPatientsWithCount(ctx context.Context, c domain.Criteria) (*PatientPage, error) {
	defer observe("criteria", time.Now())

	pred, err := c.Predicate()
	if err != nil {
		return nil, err
	}
	data, err := s.page(ctx, pred, c.OrderBy, c.Order, c.OffsetPage, c.PageSize, c.IncludePatientEvents)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountPatients(ctx, pred)
	if err != nil {
		return nil, err
	}
	return &PatientPage{Data: data, Total: total}, nil
}

// QueryPatientsSimple requires every token of the query to match at least one
// of the simple search attributes
func (s *Service) QueryPatientsSimple(ctx context.Context, q SimpleQuery) ([]domain.Patient, error) {
	defer observe("simple", time.Now())

	return s.page(ctx, domain.SimplePredicate(q.Query), q.OrderBy, q.Order, q.OffsetPage, q.PageSize, q.IncludePatientEvents)
}

// QueryPatientsSimpleCount counts the matches of a free-text query
func (s *Service) QueryPatientsSimpleCount(ctx context.Context, query string) (int64, error) {
	return s.store.CountPatients(ctx, domain.SimplePredicate(query))
}

func (s *Service) page(ctx context.Context, pred domain.Predicate, orderBy, order string, offsetPage, pageSize int, hydrate bool) ([]domain.Patient, error) {
	sort, err := domain.ParseSort(orderBy, order)
	if err != nil {
		return nil, err
	}
	page, err := domain.ParsePage(offsetPage, pageSize, s.paging.DefaultPageSize, s.paging.MaxPageSize)
	if err != nil {
		return nil, err
	}

	patients, err := s.store.FindPatients(ctx, pred, sort, page)
	if err != nil {
		return nil, err
	}
	if hydrate && len(patients) > 0 {
		if err := s.hydrate(ctx, patients); err != nil {
			return nil, err
		}
	}
	return patients, nil
}

// hydrate attaches only the latest event to each patient
func (s *Service) hydrate(ctx context.Context, patients []domain.Patient) error {
	ids := make([]string, len(patients))
	for i := range patients {
		ids[i] = patients[i].ID
	}
	latest, err := s.store.LatestEvents(ctx, ids)
	if err != nil {
		return err
	}
	for i := range patients {
		if e, ok := latest[patients[i].ID]; ok {
			patients[i].Events = []domain.PatientEvent{e}
		}
	}
	return nil
}

func observe(mode string, start time.Time) {
	metrics.RecordQuery(mode, time.Since(start))
}

// FindPatient loads a patient without events
func (s *Service) FindPatient(ctx context.Context, id string) (*domain.Patient, error) {
	return s.store.FindPatient(ctx, id)
}

// LatestEventFor returns the current event, or nil for a patient without
// history
func (s *Service) LatestEventFor(ctx context.Context, patientID string) (*domain.PatientEvent, error) {
	if _, err := s.store.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.LatestEvent(ctx, patientID)
}

// EventsFor returns the full history in ledger order
func (s *Service) EventsFor(ctx context.Context, patientID string) ([]domain.PatientEvent, error) {
	if _, err := s.store.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.EventsFor(ctx, patientID)
}

func (s *Service) LabTestsFor(ctx context.Context, patientID string) ([]domain.LabTest, error) {
	if _, err := s.store.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.LabTestsFor(ctx, patientID)
}

func (s *Service) FindLabTest(ctx context.Context, id types.ID) (*domain.LabTest, error) {
	return s.store.FindLabTest(ctx, id)
}

func (s *Service) QuarantineIncidentsFor(ctx context.Context, patientID string) ([]domain.QuarantineIncident, error) {
	if _, err := s.store.FindPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.store.QuarantineIncidentsFor(ctx, patientID)
}
