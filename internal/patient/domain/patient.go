package domain

import (
	"strings"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// DateLayout is the wire format for calendar dates (date of birth,
// date of reporting, quarantine end).
const DateLayout = "2006-01-02"

// RiskOccupation flags patients working in exposed professions
type RiskOccupation string

const (
	RiskOccupationNone        RiskOccupation = "NO_RISK_OCCUPATION"
	RiskOccupationFireFighter RiskOccupation = "FIRE_FIGHTER"
	RiskOccupationDoctor      RiskOccupation = "DOCTOR"
	RiskOccupationCaregiver   RiskOccupation = "CAREGIVER"
	RiskOccupationNurse       RiskOccupation = "NURSE"
)

// Patient is the aggregate root of a case. Status is a cached projection of
// the latest ledger event and is only ever written together with an append.
type Patient struct {
	ID          string     `json:"id"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Gender      string     `json:"gender"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`

	types.Address
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`

	InsuranceCompany          string         `json:"insuranceCompany"`
	InsuranceMembershipNumber string         `json:"insuranceMembershipNumber"`
	RiskOccupation            RiskOccupation `json:"riskOccupation,omitempty"`

	Status          Status     `json:"patientStatus"`
	QuarantineUntil *time.Time `json:"quarantineUntil,omitempty"`

	ReportingInstitutionID *types.ID `json:"reportingInstitutionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Events is only populated on read paths that ask for it (usually just
	// the latest event).
	Events []PatientEvent `json:"events,omitempty"`
}

// Demographics is the caller-supplied part of a new patient
type Demographics struct {
	ID                        string         `json:"id,omitempty"`
	FirstName                 string         `json:"firstName"`
	LastName                  string         `json:"lastName"`
	Gender                    string         `json:"gender"`
	DateOfBirth               string         `json:"dateOfBirth"`
	Street                    string         `json:"street"`
	HouseNumber               string         `json:"houseNumber"`
	Zip                       string         `json:"zip"`
	City                      string         `json:"city"`
	Country                   string         `json:"country,omitempty"`
	Email                     string         `json:"email"`
	PhoneNumber               string         `json:"phoneNumber"`
	InsuranceCompany          string         `json:"insuranceCompany"`
	InsuranceMembershipNumber string         `json:"insuranceMembershipNumber"`
	RiskOccupation            RiskOccupation `json:"riskOccupation,omitempty"`
	// PatientStatus is the initial status for self-registered patients.
	// Institution-reported patients always start as SUSPECTED.
	PatientStatus Status `json:"patientStatus,omitempty"`
	// DateOfReporting back-dates the registration event.
	DateOfReporting string `json:"dateOfReporting,omitempty"`
}

// NewPatient validates demographics and builds an unsaved patient. The id is
// left empty unless the caller supplied one.
func NewPatient(d Demographics, initial Status, now time.Time) (*Patient, error) {
	details := map[string]string{}
	if strings.TrimSpace(d.FirstName) == "" {
		details["firstName"] = "is required"
	}
	if strings.TrimSpace(d.LastName) == "" {
		details["lastName"] = "is required"
	}
	if !initial.Valid() {
		details["patientStatus"] = "unknown status " + string(initial)
	}
	dob, err := ParseDate("dateOfBirth", d.DateOfBirth)
	if err != nil {
		details["dateOfBirth"] = "must be YYYY-MM-DD"
	}
	if len(details) > 0 {
		return nil, apperrors.Validation("invalid patient", details)
	}

	addr := types.NewAddress(d.Street, d.HouseNumber, d.Zip, d.City)
	if d.Country != "" {
		addr.Country = strings.ToUpper(d.Country)
	}

	return &Patient{
		ID:                        strings.ToUpper(strings.TrimSpace(d.ID)),
		FirstName:                 strings.TrimSpace(d.FirstName),
		LastName:                  strings.TrimSpace(d.LastName),
		Gender:                    d.Gender,
		DateOfBirth:               dob,
		Address:                   addr,
		Email:                     d.Email,
		PhoneNumber:               d.PhoneNumber,
		InsuranceCompany:          d.InsuranceCompany,
		InsuranceMembershipNumber: d.InsuranceMembershipNumber,
		RiskOccupation:            d.RiskOccupation,
		Status:                    initial,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}, nil
}

// Apply re-derives the cached status from an event that was just appended.
func (p *Patient) Apply(e PatientEvent, now time.Time) {
	p.Status = DeriveStatus(&e, p.Status)
	p.UpdatedAt = now
}

// ParseDate parses an optional YYYY-MM-DD value. Empty input yields nil.
func ParseDate(field, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, apperrors.InvalidInput(field, field+" must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}
