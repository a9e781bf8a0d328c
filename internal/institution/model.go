package institution

import (
	"context"
	"strings"
	"time"

	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// Type defines the kind of institution
type Type string

const (
	TypeLaboratory         Type = "LABORATORY"
	TypeDoctorsOffice      Type = "DOCTORS_OFFICE"
	TypeTestSite           Type = "TEST_SITE"
	TypeClinic             Type = "CLINIC"
	TypeDepartmentOfHealth Type = "DEPARTMENT_OF_HEALTH"
	TypeGovernmentAgency   Type = "GOVERNMENT_AGENCY"
)

// Valid reports whether t is a known institution type
func (t Type) Valid() bool {
	switch t {
	case TypeLaboratory, TypeDoctorsOffice, TypeTestSite, TypeClinic,
		TypeDepartmentOfHealth, TypeGovernmentAgency:
		return true
	}
	return false
}

// Institution is an organization that reports or consumes case data
type Institution struct {
	ID      types.ID          `json:"id"`
	Name    string            `json:"name"`
	Type    Type              `json:"institutionType"`
	Address types.Address     `json:"address"`
	Contact types.ContactInfo `json:"contact"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Directory resolves institutions by id
type Directory interface {
	Get(ctx context.Context, id types.ID) (*Institution, error)
	List(ctx context.Context, filter ListFilter) ([]Institution, int, error)
	Create(ctx context.Context, inst *Institution) error
}

// ListFilter defines filters for listing institutions
type ListFilter struct {
	Type   *Type  `json:"type,omitempty"`
	Search string `json:"search,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (f ListFilter) limit() int {
	if f.Limit > 0 && f.Limit <= 100 {
		return f.Limit
	}
	return 50
}

// CreateRequest is the payload for registering an institution
type CreateRequest struct {
	Name    string            `json:"name"`
	Type    Type              `json:"institutionType"`
	Address types.Address     `json:"address"`
	Contact types.ContactInfo `json:"contact"`
}

// NewInstitution validates req and builds an unsaved institution
func NewInstitution(req CreateRequest, now time.Time) (*Institution, error) {
	details := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		details["name"] = "name is required"
	}
	if !req.Type.Valid() {
		details["institutionType"] = "unknown institution type"
	}
	if len(details) > 0 {
		return nil, errors.Validation("validation failed", details)
	}

	addr := req.Address
	if addr.Country == "" {
		addr.Country = "DE"
	}

	return &Institution{
		ID:        types.NewID(),
		Name:      strings.TrimSpace(req.Name),
		Type:      req.Type,
		Address:   addr,
		Contact:   req.Contact,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RequireLaboratory resolves id and checks that it is a laboratory. Other
// institution types are reported as a missing laboratory.
func RequireLaboratory(ctx context.Context, dir Directory, id types.ID) (*Institution, error) {
	inst, err := dir.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst.Type != TypeLaboratory {
		return nil, errors.NotFound("laboratory", id.String())
	}
	return inst, nil
}
