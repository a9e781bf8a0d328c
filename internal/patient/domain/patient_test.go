package domain

import (
	"regexp"
	"sync"
	"testing"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
)

var patientIDPattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

func TestNewPatientID(t *testing.T) {
	dob := time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC)

	id := NewPatientID("Anna", "Muster", "10115", &dob)
	if !patientIDPattern.MatchString(id) {
		t.Errorf("Expected 8 uppercase hex characters, got %q", id)
	}

	if NewPatientID("Anna", "Muster", "10115", nil) == "" {
		t.Error("Expected id without date of birth")
	}

	if patientID("Anna", "Muster", "10115", &dob, "salt") != patientID("Anna", "Muster", "10115", &dob, "salt") {
		t.Error("Expected the same salt to produce the same id")
	}
	if patientID("Anna", "Muster", "10115", &dob, "salt-a") == patientID("Anna", "Muster", "10115", &dob, "salt-b") {
		t.Error("Expected different salts to produce different ids")
	}
}

func TestNewPatientIDConcurrent(t *testing.T) {
	const n = 200
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- NewPatientID("Max", "Mustermann", "80331", nil)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		seen[id] = true
	}
	// 200 draws from 2^32 collide with probability ~5e-6.
	if len(seen) < n-1 {
		t.Errorf("Expected distinct ids, got %d unique of %d", len(seen), n)
	}
}

func TestNewPatient(t *testing.T) {
	now := time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

	p, err := NewPatient(Demographics{
		ID:          " ab12cd34 ",
		FirstName:   "Anna",
		LastName:    "Muster",
		DateOfBirth: "1980-05-17",
		Zip:         "10115",
		City:        "Berlin",
	}, StatusSuspected, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.ID != "AB12CD34" {
		t.Errorf("Expected normalized id, got %q", p.ID)
	}
	if p.Status != StatusSuspected {
		t.Errorf("Expected status %s, got %s", StatusSuspected, p.Status)
	}
	if p.DateOfBirth == nil || p.DateOfBirth.Format(DateLayout) != "1980-05-17" {
		t.Errorf("Expected date of birth, got %v", p.DateOfBirth)
	}
	if p.Country != "DE" {
		t.Errorf("Expected default country DE, got %s", p.Country)
	}
}

func TestNewPatientValidation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		d           Demographics
		status      Status
		expectError bool
	}{
		{"Valid", Demographics{FirstName: "A", LastName: "B"}, StatusRegistered, false},
		{"Missing first name", Demographics{LastName: "B"}, StatusRegistered, true},
		{"Missing last name", Demographics{FirstName: "A"}, StatusRegistered, true},
		{"Bad date of birth", Demographics{FirstName: "A", LastName: "B", DateOfBirth: "17.05.1980"}, StatusRegistered, true},
		{"Unknown status", Demographics{FirstName: "A", LastName: "B"}, Status("HEALTHY"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPatient(tt.d, tt.status, now)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				if !apperrors.IsValidation(err) {
					t.Errorf("Expected validation error, got %v", err)
				}
			}
			if !tt.expectError && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestPatientApply(t *testing.T) {
	now := time.Now()
	p := &Patient{Status: StatusSuspected}

	p.Apply(PatientEvent{Type: EventTestResultNegative}, now)

	if p.Status != StatusTestResultNegative {
		t.Errorf("Expected %s, got %s", StatusTestResultNegative, p.Status)
	}
	if !p.UpdatedAt.Equal(now) {
		t.Error("Expected UpdatedAt to be set")
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("until", "")
	if err != nil || d != nil {
		t.Errorf("Expected nil date for blank input, got %v, %v", d, err)
	}

	d, err = ParseDate("until", "2025-12-31")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if d.Year() != 2025 || d.Month() != time.December || d.Day() != 31 {
		t.Errorf("unexpected date %v", d)
	}

	if _, err := ParseDate("until", "31.12.2025"); !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
