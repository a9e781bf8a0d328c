package domain

import (
	"math"
	"testing"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

func samplePatients() []*Patient {
	return []*Patient{
		{
			ID: "AAAA0001", FirstName: "John", LastName: "Doe", Email: "john@example.org",
			Address: types.NewAddress("Hauptstr.", "1", "10115", "Berlin"), Status: StatusSuspected,
			InsuranceCompany: "AOK",
		},
		{
			ID: "AAAA0002", FirstName: "Jane", LastName: "Doe", Email: "jane@example.org",
			Address: types.NewAddress("Ring", "12a", "80331", "Munich"), Status: StatusTestResultPositive,
			InsuranceCompany: "TK",
		},
		{
			ID: "AAAA0003", FirstName: "Doe", LastName: "Johnson", Email: "dj@example.org",
			Address: types.NewAddress("Weg", "7", "20095", "Hamburg"), Status: StatusSuspected,
		},
		{
			ID: "AAAA0004", FirstName: "Erika", LastName: "Mustermann", PhoneNumber: "+49 30 1234",
			Address: types.NewAddress("Allee", "3", "10117", "Berlin"), Status: StatusRecovered,
		},
	}
}

func matchingIDs(t *testing.T, p Predicate, patients []*Patient) []string {
	t.Helper()
	var ids []string
	for _, pt := range patients {
		if p.Matches(Candidate{Patient: pt}) {
			ids = append(ids, pt.ID)
		}
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCriteriaPredicate(t *testing.T) {
	patients := samplePatients()

	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"Empty matches all", Criteria{}, []string{"AAAA0001", "AAAA0002", "AAAA0003", "AAAA0004"}},
		{"Fuzzy is case-insensitive", Criteria{LastName: "DOE"}, []string{"AAAA0001", "AAAA0002"}},
		{"Substring", Criteria{FirstName: "j"}, []string{"AAAA0001", "AAAA0002"}},
		{"Conjunction", Criteria{LastName: "doe", City: "munich"}, []string{"AAAA0002"}},
		{"Zip prefix", Criteria{Zip: "101"}, []string{"AAAA0001", "AAAA0004"}},
		{"Status is exact", Criteria{PatientStatus: StatusSuspected}, []string{"AAAA0001", "AAAA0003"}},
		{"Whitespace-only value is a wildcard", Criteria{City: "   "}, []string{"AAAA0001", "AAAA0002", "AAAA0003", "AAAA0004"}},
		{"No match", Criteria{InsuranceCompany: "barmer"}, nil},
		{"House number", Criteria{HouseNumber: "12A"}, []string{"AAAA0002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.criteria.Predicate()
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got := matchingIDs(t, p, patients); !equalIDs(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCriteriaPredicateAlwaysHasEveryField(t *testing.T) {
	p, err := Criteria{FirstName: "x"}.Predicate()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(p.Groups) != 15 {
		t.Fatalf("Expected one group per field, got %d", len(p.Groups))
	}

	wildcards := 0
	for _, g := range p.Groups {
		if len(g) != 1 {
			t.Errorf("Expected single-clause groups, got %d", len(g))
		}
		if g[0].Wildcard {
			wildcards++
		}
	}
	if wildcards != 14 {
		t.Errorf("Expected 14 wildcard clauses, got %d", wildcards)
	}
}

func TestCriteriaPredicateRejectsUnknownStatus(t *testing.T) {
	_, err := Criteria{PatientStatus: "HEALTHY"}.Predicate()
	if !apperrors.IsValidation(err) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestCriteriaRelationFields(t *testing.T) {
	p, err := Criteria{DoctorID: "beef", LaboratoryID: "cafe"}.Predicate()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	pt := samplePatients()[0]
	both := Candidate{Patient: pt, DoctorIDs: []string{"0000-BEEF"}, LaboratoryIDs: []string{"x", "cafe-1"}}
	if !p.Matches(both) {
		t.Error("Expected match on doctor and laboratory")
	}
	if p.Matches(Candidate{Patient: pt, DoctorIDs: []string{"beef"}}) {
		t.Error("Expected no match without a laboratory")
	}
}

func TestSimplePredicate(t *testing.T) {
	patients := samplePatients()

	tests := []struct {
		query string
		want  []string
	}{
		{"john doe", []string{"AAAA0001", "AAAA0003"}},
		{"doe", []string{"AAAA0001", "AAAA0002", "AAAA0003"}},
		{"  berlin  ", []string{"AAAA0001", "AAAA0004"}},
		{"aaaa0002", []string{"AAAA0002"}},
		{"1234", []string{"AAAA0004"}},
		{"", []string{"AAAA0001", "AAAA0002", "AAAA0003", "AAAA0004"}},
		// street is not part of the simple search
		{"hauptstr", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			if got := matchingIDs(t, SimplePredicate(tt.query), patients); !equalIDs(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		orderBy, order string
		want           Sort
		expectError    bool
	}{
		{"", "", Sort{Key: "id"}, false},
		{"lastName", "DESC", Sort{Key: "lastName", Desc: true}, false},
		{"dateOfBirth", "asc", Sort{Key: "dateOfBirth"}, false},
		{"patientStatus", "", Sort{Key: "patientStatus"}, false},
		{"password", "", Sort{}, true},
		{"id", "sideways", Sort{}, true},
	}

	for _, tt := range tests {
		got, err := ParseSort(tt.orderBy, tt.order)
		if tt.expectError {
			if !apperrors.IsValidation(err) {
				t.Errorf("%s/%s: expected validation error, got %v", tt.orderBy, tt.order, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s/%s: unexpected error %v", tt.orderBy, tt.order, err)
		}
		if got != tt.want {
			t.Errorf("Expected %+v, got %+v", tt.want, got)
		}
	}
}

func TestSortCompare(t *testing.T) {
	dob := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Patient{ID: "A", LastName: "Doe", DateOfBirth: &dob}
	b := &Patient{ID: "B", LastName: "Doe"}

	byName := Sort{Key: "lastName"}
	if byName.Compare(a, b) >= 0 {
		t.Error("Expected id to break ties")
	}
	if (Sort{Key: "lastName", Desc: true}).Compare(a, b) >= 0 {
		t.Error("Expected tie-break by id ascending even when descending")
	}

	byDOB := Sort{Key: SortDateOfBirth}
	if byDOB.Compare(a, b) >= 0 {
		t.Error("Expected missing dates last when ascending")
	}
	if (Sort{Key: SortDateOfBirth, Desc: true}).Compare(a, b) <= 0 {
		t.Error("Expected missing dates first when descending")
	}
}

func TestParsePage(t *testing.T) {
	p, err := ParsePage(2, 0, 20, 100)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.Size != 20 || p.Skip() != 40 {
		t.Errorf("unexpected page %+v (skip %d)", p, p.Skip())
	}

	for _, tc := range [][2]int{{-1, 10}, {0, -5}, {0, 101}, {math.MaxInt/10 + 1, 10}, {math.MaxInt, 100}} {
		if _, err := ParsePage(tc[0], tc[1], 20, 100); !apperrors.IsValidation(err) {
			t.Errorf("ParsePage(%d, %d): expected validation error, got %v", tc[0], tc[1], err)
		}
	}

	last, err := ParsePage(math.MaxInt/10, 10, 20, 100)
	if err != nil {
		t.Fatalf("Expected the last addressable page, got %v", err)
	}
	if last.Skip() < 0 {
		t.Errorf("Skip overflowed to %d", last.Skip())
	}
}
