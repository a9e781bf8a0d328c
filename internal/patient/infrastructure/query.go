package infrastructure

import (
	"fmt"
	"strings"

	"github.com/imis-health/casetracker/internal/patient/domain"
)

// scalarColumns maps searchable patient fields to columns of patients p.
var scalarColumns = map[domain.Field]string{
	domain.FieldID:                        "p.id",
	domain.FieldFirstName:                 "p.first_name",
	domain.FieldLastName:                  "p.last_name",
	domain.FieldGender:                    "p.gender",
	domain.FieldEmail:                     "p.email",
	domain.FieldPhoneNumber:               "p.phone_number",
	domain.FieldStreet:                    "p.street",
	domain.FieldHouseNumber:               "p.house_number",
	domain.FieldZip:                       "p.zip",
	domain.FieldCity:                      "p.city",
	domain.FieldInsuranceCompany:          "p.insurance_company",
	domain.FieldInsuranceMembershipNumber: "p.insurance_membership_number",
	domain.FieldStatus:                    "p.current_status",
}

// relationSubqueries match a field through the ledger or the lab tests. %s
// is replaced by the comparison on the related column.
var relationSubqueries = map[domain.Field]string{
	domain.FieldDoctorID:     "EXISTS (SELECT 1 FROM patient_events e WHERE e.patient_id = p.id AND e.responsible_doctor_id::text %s)",
	domain.FieldLaboratoryID: "EXISTS (SELECT 1 FROM lab_tests lt WHERE lt.patient_id = p.id AND lt.laboratory_id::text %s)",
}

// Text sort keys use the "C" collation so ordering is bytewise and matches
// the in-memory store.
var sortColumns = map[domain.SortKey]string{
	domain.SortKey(domain.FieldID):                        `p.id COLLATE "C"`,
	domain.SortKey(domain.FieldFirstName):                 `p.first_name COLLATE "C"`,
	domain.SortKey(domain.FieldLastName):                  `p.last_name COLLATE "C"`,
	domain.SortKey(domain.FieldGender):                    `p.gender COLLATE "C"`,
	domain.SortDateOfBirth:                                `p.date_of_birth`,
	domain.SortKey(domain.FieldEmail):                     `p.email COLLATE "C"`,
	domain.SortKey(domain.FieldPhoneNumber):               `p.phone_number COLLATE "C"`,
	domain.SortKey(domain.FieldStreet):                    `p.street COLLATE "C"`,
	domain.SortKey(domain.FieldHouseNumber):               `p.house_number COLLATE "C"`,
	domain.SortKey(domain.FieldZip):                       `p.zip COLLATE "C"`,
	domain.SortKey(domain.FieldCity):                      `p.city COLLATE "C"`,
	domain.SortKey(domain.FieldInsuranceCompany):          `p.insurance_company COLLATE "C"`,
	domain.SortKey(domain.FieldInsuranceMembershipNumber): `p.insurance_membership_number COLLATE "C"`,
	domain.SortKey(domain.FieldStatus):                    `p.current_status COLLATE "C"`,
	domain.SortCreatedAt:                                  `p.created_at`,
}

// whereBuilder renders a predicate into a WHERE condition with positional
// arguments. Count and page queries share one rendering.
type whereBuilder struct {
	args []any
}

func (b *whereBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) predicate(pred domain.Predicate) (string, error) {
	if len(pred.Groups) == 0 {
		return "TRUE", nil
	}
	conds := make([]string, 0, len(pred.Groups))
	for _, g := range pred.Groups {
		c, err := b.group(g)
		if err != nil {
			return "", err
		}
		conds = append(conds, c)
	}
	return strings.Join(conds, " AND "), nil
}

func (b *whereBuilder) group(g domain.Group) (string, error) {
	if len(g) == 0 {
		return "FALSE", nil
	}
	parts := make([]string, 0, len(g))
	for _, cl := range g {
		p, err := b.clause(cl)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

func (b *whereBuilder) clause(cl domain.Clause) (string, error) {
	if cl.Wildcard {
		return "TRUE", nil
	}

	if sub, ok := relationSubqueries[cl.Field]; ok {
		return fmt.Sprintf(sub, b.comparison(cl)), nil
	}

	col, ok := scalarColumns[cl.Field]
	if !ok {
		return "", fmt.Errorf("field %q is not searchable", cl.Field)
	}
	if cl.Kind == domain.MatchExact {
		return col + " " + b.comparison(cl), nil
	}
	return "COALESCE(" + col + ", '') " + b.comparison(cl), nil
}

func (b *whereBuilder) comparison(cl domain.Clause) string {
	if cl.Kind == domain.MatchExact {
		return "= " + b.bind(cl.Value)
	}
	return "ILIKE " + b.bind("%"+escapeLike(cl.Value)+"%") + ` ESCAPE '\'`
}

// escapeLike makes LIKE metacharacters in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func orderBy(s domain.Sort) (string, error) {
	col, ok := sortColumns[s.Key]
	if !ok {
		return "", fmt.Errorf("cannot order by %q", s.Key)
	}
	dir := "ASC"
	if s.Desc {
		dir = "DESC"
	}
	clause := col + " " + dir
	if s.Key != domain.SortKey(domain.FieldID) {
		clause += `, p.id COLLATE "C" ASC`
	}
	return clause, nil
}

// patientQuery is a rendered search: the page query and the count query over
// the same condition.
type patientQuery struct {
	where string
	args  []any
}

func buildPatientQuery(pred domain.Predicate) (patientQuery, error) {
	var b whereBuilder
	where, err := b.predicate(pred)
	if err != nil {
		return patientQuery{}, err
	}
	return patientQuery{where: where, args: b.args}, nil
}

func (q patientQuery) countSQL() string {
	return "SELECT COUNT(*) FROM patients p WHERE " + q.where
}

// pageSQL returns the page query and its arguments (the condition's
// arguments followed by LIMIT and OFFSET).
func (q patientQuery) pageSQL(s domain.Sort, page domain.Page) (string, []any, error) {
	order, err := orderBy(s)
	if err != nil {
		return "", nil, err
	}
	args := make([]any, len(q.args), len(q.args)+2)
	copy(args, q.args)
	args = append(args, page.Size, page.Skip())

	sql := fmt.Sprintf("SELECT %s FROM patients p WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		patientColumns("p."), q.where, order, len(args)-1, len(args))
	return sql, args, nil
}
