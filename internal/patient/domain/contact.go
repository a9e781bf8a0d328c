package domain

import (
	"strings"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// ExposureContact links a source patient to a person they exposed. Both
// sides are patients; the pair is fixed once recorded.
type ExposureContact struct {
	ID               types.ID   `json:"id"`
	SourcePatientID  string     `json:"sourcePatientId"`
	ContactPatientID string     `json:"contactPatientId"`
	DateOfContact    *time.Time `json:"dateOfContact,omitempty"`
	Comment          string     `json:"comment,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ContactDetails is the editable part of an exposure contact
type ContactDetails struct {
	DateOfContact string `json:"dateOfContact"`
	Comment       string `json:"comment"`
}

// NewExposureContact validates the pair and the details
func NewExposureContact(sourcePatientID, contactPatientID string, d ContactDetails, now time.Time) (*ExposureContact, error) {
	sourcePatientID = strings.TrimSpace(sourcePatientID)
	contactPatientID = strings.TrimSpace(contactPatientID)

	details := map[string]string{}
	if sourcePatientID == "" {
		details["sourcePatientId"] = "sourcePatientId is required"
	}
	if contactPatientID == "" {
		details["contactPatientId"] = "contactPatientId is required"
	}
	if len(details) > 0 {
		return nil, apperrors.Validation("invalid exposure contact", details)
	}
	if sourcePatientID == contactPatientID {
		return nil, apperrors.InvalidInput("contactPatientId", "a patient cannot be their own contact")
	}

	c := &ExposureContact{
		ID:               types.NewID(),
		SourcePatientID:  sourcePatientID,
		ContactPatientID: contactPatientID,
		CreatedAt:        now,
	}
	if err := c.Revise(d, now); err != nil {
		return nil, err
	}
	return c, nil
}

// Revise replaces the editable details. A contact date after now is rejected.
func (c *ExposureContact) Revise(d ContactDetails, now time.Time) error {
	date, err := ParseDate("dateOfContact", d.DateOfContact)
	if err != nil {
		return err
	}
	if date != nil && date.After(now) {
		return apperrors.InvalidInput("dateOfContact", "dateOfContact must not be in the future")
	}
	c.DateOfContact = date
	c.Comment = d.Comment
	c.UpdatedAt = now
	return nil
}
