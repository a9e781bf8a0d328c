// Package service is the single writer of the patient ledger and the read
// path for patient search.
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/imis-health/casetracker/internal/institution"
	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/config"
	"github.com/imis-health/casetracker/internal/shared/metrics"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// Actor is the user and institution an operation is performed for. A zero
// InstitutionID means a self-registration without an institution.
type Actor struct {
	UserID          types.ID
	InstitutionID   *types.ID
	InstitutionType institution.Type
}

// ReportedByInstitution reports whether the actor acts for an institution
func (a Actor) ReportedByInstitution() bool {
	return a.InstitutionID != nil && !a.InstitutionID.IsZero()
}

// Clock supplies "now"
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Mirror receives committed ledger events
type Mirror interface {
	Mirror(ctx context.Context, patientID string, events []domain.PatientEvent) error
}

// IDGenerator assigns ids to new patients
type IDGenerator func(firstName, lastName, zip string, dateOfBirth *time.Time) string

// Service implements the case lifecycle and patient queries
type Service struct {
	store     domain.Store
	directory institution.Directory
	paging    config.QueryConfig
	logger    zerolog.Logger

	clock  Clock
	mirror Mirror
	newID  IDGenerator
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMirror sends committed events to m
func WithMirror(m Mirror) Option {
	return func(s *Service) { s.mirror = m }
}

// WithIDGenerator replaces domain.NewPatientID
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.newID = g }
}

// New creates a Service
func New(store domain.Store, directory institution.Directory, paging config.QueryConfig, logger zerolog.Logger, opts ...Option) *Service {
	if paging.DefaultPageSize <= 0 {
		paging.DefaultPageSize = 20
	}
	if paging.MaxPageSize < paging.DefaultPageSize {
		paging.MaxPageSize = paging.DefaultPageSize
	}

	s := &Service{
		store:     store,
		directory: directory,
		paging:    paging,
		logger:    logger.With().Str("component", "patient_service").Logger(),
		clock:     systemClock{},
		newID:     domain.NewPatientID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// appendEvent clamps e behind the current latest event, appends it and
// re-derives the status of p from it. The caller must hold the patient lock.
func appendEvent(ctx context.Context, tx domain.Tx, p *domain.Patient, e *domain.PatientEvent, now time.Time) error {
	latest, err := tx.LatestEvent(ctx, p.ID)
	if err != nil {
		return err
	}
	e.Timestamp = domain.MonotonicTimestamp(e.Timestamp, latest)

	if err := tx.AppendEvent(ctx, e); err != nil {
		return err
	}
	p.Apply(*e, now)
	return tx.UpdatePatient(ctx, p)
}

// doctorFor attributes events recorded by a doctor's office to it
func doctorFor(actor Actor) *types.ID {
	if actor.InstitutionType == institution.TypeDoctorsOffice && actor.ReportedByInstitution() {
		id := *actor.InstitutionID
		return &id
	}
	return nil
}

// committed runs after a transaction succeeded. Mirror failures are logged
// and never undo the commit.
func (s *Service) committed(ctx context.Context, patientID string, events ...domain.PatientEvent) {
	for _, e := range events {
		metrics.RecordEventAppended(string(e.Type))
	}
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Mirror(ctx, patientID, events); err != nil {
		metrics.RecordMirrorFailure(len(events))
		s.logger.Warn().Err(err).
			Str("patient_id", patientID).
			Int("events", len(events)).
			Msg("ledger mirror append failed")
	}
}
