package domain

import (
	"time"

	"github.com/imis-health/casetracker/internal/shared/types"
)

// TestStatus is the processing state of a lab test
type TestStatus string

const (
	TestStatusPending          TestStatus = "PENDING"
	TestStatusInProgress       TestStatus = "IN_PROGRESS"
	TestStatusFinishedPositive TestStatus = "FINISHED_POSITIVE"
	TestStatusFinishedNegative TestStatus = "FINISHED_NEGATIVE"
	TestStatusFinishedInvalid  TestStatus = "FINISHED_INVALID"
)

var eventByTestStatus = map[TestStatus]EventType{
	TestStatusPending:          EventTested,
	TestStatusInProgress:       EventTested,
	TestStatusFinishedPositive: EventTestResultPositive,
	TestStatusFinishedNegative: EventTestResultNegative,
	TestStatusFinishedInvalid:  EventTestResultInvalid,
}

// Event returns the ledger event a lab test in this status produces
func (s TestStatus) Event() (EventType, bool) {
	e, ok := eventByTestStatus[s]
	return e, ok
}

// TestType is the kind of assay
type TestType string

const (
	TestTypePCR      TestType = "PCR"
	TestTypeAntibody TestType = "ANTIBODY"
	TestTypeAntigen  TestType = "ANTIGEN"
)

// TestMaterial is the sample the test was run on
type TestMaterial string

const (
	TestMaterialRachenabstrich TestMaterial = "RACHENABSTRICH"
	TestMaterialNasenabstrich  TestMaterial = "NASENABSTRICH"
	TestMaterialBlood          TestMaterial = "BLOOD"
)

// LabTest is a test order at a laboratory. Unlike events it is updated in
// place; every update is mirrored by a ledger append.
type LabTest struct {
	ID           types.ID     `json:"id"`
	LaboratoryID types.ID     `json:"laboratoryId"`
	TestID       string       `json:"testId"`
	PatientID    string       `json:"patientId"`
	TestType     TestType     `json:"testType,omitempty"`
	TestMaterial TestMaterial `json:"testMaterial,omitempty"`
	Status       TestStatus   `json:"testStatus"`
	Comment      string       `json:"comment,omitempty"`
	Report       []byte       `json:"report,omitempty"`
	LastUpdate   time.Time    `json:"lastUpdate"`
}

// QuarantineIncident records one quarantine order. A newer order supersedes
// the previous one instead of editing it.
type QuarantineIncident struct {
	ID           types.ID  `json:"id"`
	PatientID    string    `json:"patientId"`
	EventID      types.ID  `json:"eventId"`
	Until        time.Time `json:"until"`
	Comment      string    `json:"comment,omitempty"`
	SupersedesID *types.ID `json:"supersedesId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
