package domain

import (
	"math"
	"strings"
	"time"

	apperrors "github.com/imis-health/casetracker/internal/shared/errors"
)

// SortKey is an attribute patients can be ordered by
type SortKey string

// Sort keys that are not search fields
const (
	SortCreatedAt   SortKey = "createdAt"
	SortDateOfBirth SortKey = "dateOfBirth"
)

var sortKeys = map[SortKey]bool{
	SortKey(FieldID):                        true,
	SortKey(FieldFirstName):                 true,
	SortKey(FieldLastName):                  true,
	SortKey(FieldGender):                    true,
	SortDateOfBirth:                         true,
	SortKey(FieldEmail):                     true,
	SortKey(FieldPhoneNumber):               true,
	SortKey(FieldStreet):                    true,
	SortKey(FieldHouseNumber):               true,
	SortKey(FieldZip):                       true,
	SortKey(FieldCity):                      true,
	SortKey(FieldInsuranceCompany):          true,
	SortKey(FieldInsuranceMembershipNumber): true,
	SortKey(FieldStatus):                    true,
	SortCreatedAt:                           true,
}

// Sort is a validated ordering. Results are always tie-broken by id ascending.
type Sort struct {
	Key  SortKey
	Desc bool
}

// ParseSort validates orderBy/order. Empty values default to id ascending.
func ParseSort(orderBy, order string) (Sort, error) {
	s := Sort{Key: SortKey(FieldID)}
	if orderBy != "" {
		if !sortKeys[SortKey(orderBy)] {
			return Sort{}, apperrors.InvalidInput("orderBy", "cannot order by "+orderBy)
		}
		s.Key = SortKey(orderBy)
	}
	switch strings.ToLower(order) {
	case "", "asc":
	case "desc":
		s.Desc = true
	default:
		return Sort{}, apperrors.InvalidInput("order", "order must be asc or desc")
	}
	return s, nil
}

// Compare orders two patients. Missing dates sort after present ones when
// ascending, mirroring Postgres' default NULL placement.
func (s Sort) Compare(a, b *Patient) int {
	var c int
	switch s.Key {
	case SortDateOfBirth:
		c = compareTimes(a.DateOfBirth, b.DateOfBirth)
	case SortCreatedAt:
		c = compareTimes(&a.CreatedAt, &b.CreatedAt)
	default:
		c = strings.Compare(FieldValue(a, Field(s.Key)), FieldValue(b, Field(s.Key)))
	}
	if s.Desc {
		c = -c
	}
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	return c
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}

// Page is a validated page request. Offset is a page index, not a row offset.
type Page struct {
	Offset int
	Size   int
}

// ParsePage validates paging input against the configured limits. A zero
// size selects the default.
func ParsePage(offsetPage, pageSize, defaultSize, maxSize int) (Page, error) {
	if offsetPage < 0 {
		return Page{}, apperrors.InvalidInput("offsetPage", "offsetPage must not be negative")
	}
	if pageSize == 0 {
		pageSize = defaultSize
	}
	if pageSize <= 0 || pageSize > maxSize {
		return Page{}, apperrors.InvalidInput("pageSize", "pageSize must be between 1 and the configured maximum")
	}
	// Skip must stay representable, in memory and as a Postgres OFFSET.
	if offsetPage > math.MaxInt/pageSize {
		return Page{}, apperrors.InvalidInput("offsetPage", "offsetPage is out of range")
	}
	return Page{Offset: offsetPage, Size: pageSize}, nil
}

// Skip is the number of rows before the page
func (p Page) Skip() int {
	return p.Offset * p.Size
}
