package service

import (
	"context"

	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/metrics"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// ContactRequest records that the source patient exposed the contact patient
type ContactRequest struct {
	SourcePatientID  string `json:"sourcePatientId"`
	ContactPatientID string `json:"contactPatientId"`
	domain.ContactDetails
}

// RecordExposureContact links two existing patients
func (s *Service) RecordExposureContact(ctx context.Context, actor Actor, req ContactRequest) (*domain.ExposureContact, error) {
	now := s.now()
	c, err := domain.NewExposureContact(req.SourcePatientID, req.ContactPatientID, req.ContactDetails, now)
	if err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		// lock in id order so concurrent links between the same pair cannot deadlock
		first, second := c.SourcePatientID, c.ContactPatientID
		if second < first {
			first, second = second, first
		}
		for _, id := range []string{first, second} {
			if _, err := tx.LockPatient(ctx, id); err != nil {
				return err
			}
		}
		return tx.InsertExposureContact(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordExposureContact("created")
	s.logger.Info().
		Str("contact_id", c.ID.String()).
		Str("source_patient_id", c.SourcePatientID).
		Str("contact_patient_id", c.ContactPatientID).
		Bool("institution_reported", actor.ReportedByInstitution()).
		Msg("exposure contact recorded")

	return c, nil
}

// UpdateExposureContact replaces the date and comment of a contact
func (s *Service) UpdateExposureContact(ctx context.Context, actor Actor, id types.ID, d domain.ContactDetails) (*domain.ExposureContact, error) {
	now := s.now()
	var c *domain.ExposureContact

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		c, err = tx.LockExposureContact(ctx, id)
		if err != nil {
			return err
		}
		if err := c.Revise(d, now); err != nil {
			return err
		}
		return tx.UpdateExposureContact(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordExposureContact("updated")
	s.logger.Info().
		Str("contact_id", c.ID.String()).
		Bool("institution_reported", actor.ReportedByInstitution()).
		Msg("exposure contact updated")

	return c, nil
}

// RemoveExposureContact deletes a contact. The patients and their ledgers
// are untouched.
func (s *Service) RemoveExposureContact(ctx context.Context, actor Actor, id types.ID) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.DeleteExposureContact(ctx, id)
	})
	if err != nil {
		return err
	}

	metrics.RecordExposureContact("removed")
	s.logger.Info().
		Str("contact_id", id.String()).
		Bool("institution_reported", actor.ReportedByInstitution()).
		Msg("exposure contact removed")
	return nil
}

// FindExposureContact loads a contact by id
func (s *Service) FindExposureContact(ctx context.Context, id types.ID) (*domain.ExposureContact, error) {
	return s.store.FindExposureContact(ctx, id)
}

// ContactsOf lists the people the patient exposed
func (s *Service) ContactsOf(ctx context.Context, sourcePatientID string) ([]domain.ExposureContact, error) {
	if _, err := s.store.FindPatient(ctx, sourcePatientID); err != nil {
		return nil, err
	}
	return s.store.ExposureContactsBySource(ctx, sourcePatientID)
}

// SourcesOf lists the patients that exposed the contact patient
func (s *Service) SourcesOf(ctx context.Context, contactPatientID string) ([]domain.ExposureContact, error) {
	if _, err := s.store.FindPatient(ctx, contactPatientID); err != nil {
		return nil, err
	}
	return s.store.ExposureContactsByContact(ctx, contactPatientID)
}
