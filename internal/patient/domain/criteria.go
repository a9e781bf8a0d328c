package domain

import (
	"strings"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
)

// Field names a searchable patient attribute
type Field string

const (
	FieldID                        Field = "id"
	FieldFirstName                 Field = "firstName"
	FieldLastName                  Field = "lastName"
	FieldGender                    Field = "gender"
	FieldEmail                     Field = "email"
	FieldPhoneNumber               Field = "phoneNumber"
	FieldStreet                    Field = "street"
	FieldHouseNumber               Field = "houseNumber"
	FieldZip                       Field = "zip"
	FieldCity                      Field = "city"
	FieldInsuranceCompany          Field = "insuranceCompany"
	FieldInsuranceMembershipNumber Field = "insuranceMembershipNumber"
	FieldDoctorID                  Field = "doctorId"
	FieldLaboratoryID              Field = "laboratoryId"
	FieldStatus                    Field = "patientStatus"
)

// SimpleSearchFields are the attributes every free-text token is matched against.
var SimpleSearchFields = []Field{
	FieldFirstName, FieldLastName, FieldID, FieldEmail, FieldPhoneNumber, FieldCity,
}

// MatchKind selects how a clause compares values
type MatchKind int

const (
	// MatchFuzzy is case-insensitive substring containment
	MatchFuzzy MatchKind = iota
	// MatchExact is case-sensitive equality
	MatchExact
)

// Clause is a single field matcher. A wildcard clause matches every patient.
type Clause struct {
	Field    Field
	Kind     MatchKind
	Value    string
	Wildcard bool
}

// Group is a disjunction of clauses
type Group []Clause

// Predicate is a conjunction of groups. The zero value matches everything.
type Predicate struct {
	Groups []Group
}

// clause normalizes raw input: blank values become wildcards.
func clause(f Field, kind MatchKind, value string) Clause {
	value = strings.TrimSpace(value)
	if value == "" {
		return Clause{Field: f, Kind: kind, Wildcard: true}
	}
	return Clause{Field: f, Kind: kind, Value: value}
}

// And appends a group that must match
func (p Predicate) And(g ...Clause) Predicate {
	groups := make([]Group, len(p.Groups), len(p.Groups)+1)
	copy(groups, p.Groups)
	return Predicate{Groups: append(groups, Group(g))}
}

// Candidate is what a predicate is evaluated against in memory: the patient
// plus the ids reachable through its ledger and lab tests.
type Candidate struct {
	Patient       *Patient
	DoctorIDs     []string
	LaboratoryIDs []string
}

// Matches evaluates the predicate in memory
func (p Predicate) Matches(c Candidate) bool {
	for _, g := range p.Groups {
		if !g.matches(c) {
			return false
		}
	}
	return true
}

func (g Group) matches(c Candidate) bool {
	for _, cl := range g {
		if cl.Matches(c) {
			return true
		}
	}
	return false
}

// Matches evaluates a single clause in memory
func (cl Clause) Matches(c Candidate) bool {
	if cl.Wildcard {
		return true
	}
	switch cl.Field {
	case FieldDoctorID:
		return cl.matchAny(c.DoctorIDs)
	case FieldLaboratoryID:
		return cl.matchAny(c.LaboratoryIDs)
	}
	return cl.match(FieldValue(c.Patient, cl.Field))
}

func (cl Clause) matchAny(values []string) bool {
	for _, v := range values {
		if cl.match(v) {
			return true
		}
	}
	return false
}

func (cl Clause) match(v string) bool {
	if cl.Kind == MatchExact {
		return v == cl.Value
	}
	return strings.Contains(strings.ToLower(v), strings.ToLower(cl.Value))
}

// FieldValue returns the scalar attribute for f. Relation fields yield "".
func FieldValue(p *Patient, f Field) string {
	switch f {
	case FieldID:
		return p.ID
	case FieldFirstName:
		return p.FirstName
	case FieldLastName:
		return p.LastName
	case FieldGender:
		return p.Gender
	case FieldEmail:
		return p.Email
	case FieldPhoneNumber:
		return p.PhoneNumber
	case FieldStreet:
		return p.Street
	case FieldHouseNumber:
		return p.HouseNumber
	case FieldZip:
		return p.Zip
	case FieldCity:
		return p.City
	case FieldInsuranceCompany:
		return p.InsuranceCompany
	case FieldInsuranceMembershipNumber:
		return p.InsuranceMembershipNumber
	case FieldStatus:
		return string(p.Status)
	}
	return ""
}

// Criteria is the multi-field search request. Every field is optional.
type Criteria struct {
	FirstName                 string `json:"firstName,omitempty"`
	LastName                  string `json:"lastName,omitempty"`
	ID                        string `json:"id,omitempty"`
	Gender                    string `json:"gender,omitempty"`
	Email                     string `json:"email,omitempty"`
	PhoneNumber               string `json:"phoneNumber,omitempty"`
	Street                    string `json:"street,omitempty"`
	HouseNumber               string `json:"houseNumber,omitempty"`
	Zip                       string `json:"zip,omitempty"`
	City                      string `json:"city,omitempty"`
	InsuranceCompany          string `json:"insuranceCompany,omitempty"`
	InsuranceMembershipNumber string `json:"insuranceMembershipNumber,omitempty"`
	DoctorID                  string `json:"doctorId,omitempty"`
	LaboratoryID              string `json:"laboratoryId,omitempty"`
	PatientStatus             Status `json:"patientStatus,omitempty"`

	OrderBy              string `json:"orderBy,omitempty"`
	Order                string `json:"order,omitempty"`
	OffsetPage           int    `json:"offsetPage"`
	PageSize             int    `json:"pageSize"`
	IncludePatientEvents bool   `json:"includePatientEvents,omitempty"`
}

// Predicate composes every field, populated or not, into one conjunction.
func (c Criteria) Predicate() (Predicate, error) {
	if c.PatientStatus != "" && !c.PatientStatus.Valid() {
		return Predicate{}, apperrors.InvalidInput("patientStatus", "unknown patient status "+string(c.PatientStatus))
	}

	fields := []Clause{
		clause(FieldFirstName, MatchFuzzy, c.FirstName),
		clause(FieldLastName, MatchFuzzy, c.LastName),
		clause(FieldID, MatchFuzzy, c.ID),
		clause(FieldGender, MatchFuzzy, c.Gender),
		clause(FieldEmail, MatchFuzzy, c.Email),
		clause(FieldPhoneNumber, MatchFuzzy, c.PhoneNumber),
		clause(FieldStreet, MatchFuzzy, c.Street),
		clause(FieldHouseNumber, MatchFuzzy, c.HouseNumber),
		clause(FieldZip, MatchFuzzy, c.Zip),
		clause(FieldCity, MatchFuzzy, c.City),
		clause(FieldInsuranceCompany, MatchFuzzy, c.InsuranceCompany),
		clause(FieldInsuranceMembershipNumber, MatchFuzzy, c.InsuranceMembershipNumber),
		clause(FieldDoctorID, MatchFuzzy, c.DoctorID),
		clause(FieldLaboratoryID, MatchFuzzy, c.LaboratoryID),
		clause(FieldStatus, MatchExact, string(c.PatientStatus)),
	}

	var p Predicate
	for _, cl := range fields {
		p = p.And(cl)
	}
	return p, nil
}

// SimplePredicate builds the free-text predicate: every whitespace-separated
// token must fuzzy-match at least one of SimpleSearchFields.
func SimplePredicate(query string) Predicate {
	var p Predicate
	for _, token := range strings.Fields(query) {
		g := make([]Clause, 0, len(SimpleSearchFields))
		for _, f := range SimpleSearchFields {
			g = append(g, clause(f, MatchFuzzy, token))
		}
		p = p.And(g...)
	}
	return p
}
