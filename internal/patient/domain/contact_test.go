package domain

import (
	"testing"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
)

func TestNewExposureContact(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)

	c, err := NewExposureContact(" AAAA0001 ", "BBBB0002", ContactDetails{DateOfContact: "2025-06-10", Comment: "office"}, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.SourcePatientID != "AAAA0001" || c.ContactPatientID != "BBBB0002" {
		t.Errorf("unexpected pair %s -> %s", c.SourcePatientID, c.ContactPatientID)
	}
	if c.ID.IsZero() || !c.CreatedAt.Equal(now) || !c.UpdatedAt.Equal(now) {
		t.Errorf("unexpected identity or timestamps: %+v", c)
	}

	tests := []struct {
		name            string
		source, contact string
		date            string
	}{
		{"missing source", "", "BBBB0002", ""},
		{"missing contact", "AAAA0001", " ", ""},
		{"same patient", "AAAA0001", "AAAA0001", ""},
		{"malformed date", "AAAA0001", "BBBB0002", "10.06.2025"},
		{"future date", "AAAA0001", "BBBB0002", "2025-06-11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExposureContact(tt.source, tt.contact, ContactDetails{DateOfContact: tt.date}, now)
			if !apperrors.IsValidation(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}
