package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PatientIDLength is the length of generated patient identifiers
const PatientIDLength = 8

// NewPatientID derives a pseudonymous patient id from identity attributes and
// a fresh random nonce. Uniqueness is not checked here; the store's primary
// key rejects the rare collision.
func NewPatientID(firstName, lastName, zip string, dateOfBirth *time.Time) string {
	return patientID(firstName, lastName, zip, dateOfBirth, nonce())
}

func patientID(firstName, lastName, zip string, dateOfBirth *time.Time, salt string) string {
	dob := ""
	if dateOfBirth != nil {
		dob = dateOfBirth.Format(DateLayout)
	}
	sum := sha256.Sum256([]byte(firstName + lastName + zip + dob + salt))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:PatientIDLength])
}

// nonce returns 32 random hex characters from a version 4 UUID.
func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
