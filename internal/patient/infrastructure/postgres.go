package infrastructure

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/shared/database"
	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

const (
	patientsPKey       = "patients_pkey"
	labTestIDUniqueKey = "lab_tests_laboratory_test_id_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements domain.Store using PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL patient store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithinTx runs fn in one read-committed transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{q: tx})
	})
}

// --- Read side ---

func (s *PostgresStore) FindPatient(ctx context.Context, id string) (*domain.Patient, error) {
	return findPatient(ctx, s.pool, id, false)
}

func (s *PostgresStore) LatestEvent(ctx context.Context, patientID string) (*domain.PatientEvent, error) {
	return latestEvent(ctx, s.pool, patientID)
}

func (s *PostgresStore) EventsFor(ctx context.Context, patientID string) ([]domain.PatientEvent, error) {
	return eventsFor(ctx, s.pool, patientID)
}

// LatestEvents loads the current event of each patient in one round trip
func (s *PostgresStore) LatestEvents(ctx context.Context, patientIDs []string) (map[string]domain.PatientEvent, error) {
	out := make(map[string]domain.PatientEvent, len(patientIDs))
	if len(patientIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT DISTINCT ON (patient_id) ` + eventColumns + `
		FROM patient_events
		WHERE patient_id = ANY($1)
		ORDER BY patient_id, event_timestamp DESC, seq DESC`

	rows, err := s.pool.Query(ctx, query, patientIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest events")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		out[e.PatientID] = *e
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to load latest events")
	}
	return out, nil
}

// FindPatients runs the rendered predicate with ordering and paging
func (s *PostgresStore) FindPatients(ctx context.Context, pred domain.Predicate, sort domain.Sort, page domain.Page) ([]domain.Patient, error) {
	q, err := buildPatientQuery(pred)
	if err != nil {
		return nil, errors.InvalidInput("criteria", err.Error())
	}
	sql, args, err := q.pageSQL(sort, page)
	if err != nil {
		return nil, errors.InvalidInput("orderBy", err.Error())
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query patients")
	}
	defer rows.Close()

	patients := []domain.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to query patients")
	}
	return patients, nil
}

// CountPatients counts every match of the predicate, ignoring paging
func (s *PostgresStore) CountPatients(ctx context.Context, pred domain.Predicate) (int64, error) {
	q, err := buildPatientQuery(pred)
	if err != nil {
		return 0, errors.InvalidInput("criteria", err.Error())
	}
	var total int64
	if err := s.pool.QueryRow(ctx, q.countSQL(), q.args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "failed to count patients")
	}
	return total, nil
}

func (s *PostgresStore) FindLabTest(ctx context.Context, id types.ID) (*domain.LabTest, error) {
	return findLabTest(ctx, s.pool, id, false)
}

func (s *PostgresStore) LabTestsFor(ctx context.Context, patientID string) ([]domain.LabTest, error) {
	return queryLabTests(ctx, s.pool,
		`SELECT `+labTestColumns+` FROM lab_tests WHERE patient_id = $1 ORDER BY last_update, id`, patientID)
}

func (s *PostgresStore) QuarantineIncidentsFor(ctx context.Context, patientID string) ([]domain.QuarantineIncident, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+quarantineColumns+`
		FROM quarantine_incidents
		WHERE patient_id = $1
		ORDER BY created_at, id`, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query quarantine incidents")
	}
	defer rows.Close()

	incidents := []domain.QuarantineIncident{}
	for rows.Next() {
		q, err := scanQuarantine(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan quarantine incident")
		}
		incidents = append(incidents, *q)
	}
	return incidents, rows.Err()
}

func (s *PostgresStore) FindExposureContact(ctx context.Context, id types.ID) (*domain.ExposureContact, error) {
	return findExposureContact(ctx, s.pool, id, false)
}

func (s *PostgresStore) ExposureContactsBySource(ctx context.Context, patientID string) ([]domain.ExposureContact, error) {
	return queryExposureContacts(ctx, s.pool,
		`SELECT `+contactColumns+` FROM exposure_contacts WHERE source_patient_id = $1 ORDER BY created_at, id`, patientID)
}

func (s *PostgresStore) ExposureContactsByContact(ctx context.Context, patientID string) ([]domain.ExposureContact, error) {
	return queryExposureContacts(ctx, s.pool,
		`SELECT `+contactColumns+` FROM exposure_contacts WHERE contact_patient_id = $1 ORDER BY created_at, id`, patientID)
}

// --- Write side ---

type pgTx struct {
	q querier
}

func (t *pgTx) LockPatient(ctx context.Context, id string) (*domain.Patient, error) {
	return findPatient(ctx, t.q, id, true)
}

func (t *pgTx) InsertPatient(ctx context.Context, p *domain.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns("") + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := t.q.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, p.Gender, p.DateOfBirth,
		p.Email, p.PhoneNumber,
		p.Street, p.HouseNumber, p.Zip, p.City, p.Country,
		p.InsuranceCompany, p.InsuranceMembershipNumber, p.RiskOccupation,
		p.Status, p.QuarantineUntil, p.ReportingInstitutionID,
		p.CreatedAt, p.UpdatedAt,
	)
	if database.IsUniqueViolation(err, patientsPKey) {
		return errors.Conflict("patient id " + p.ID + " already exists")
	}
	if err != nil {
		return errors.Wrap(err, "failed to insert patient")
	}
	return nil
}

// UpdatePatient writes the mutable state. Identity and demographics are
// fixed after creation.
func (t *pgTx) UpdatePatient(ctx context.Context, p *domain.Patient) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE patients
		SET current_status = $2, quarantine_until = $3, updated_at = $4
		WHERE id = $1`,
		p.ID, p.Status, p.QuarantineUntil, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID)
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, e *domain.PatientEvent) error {
	err := t.q.QueryRow(ctx, `
		INSERT INTO patient_events (id, patient_id, event_type, event_timestamp, comment, lab_test_id, responsible_doctor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		e.ID, e.PatientID, e.Type, e.Timestamp, e.Comment, e.LabTestID, e.ResponsibleDoctorID,
	).Scan(&e.Seq)
	if err != nil {
		return errors.Wrap(err, "failed to append event")
	}
	return nil
}

func (t *pgTx) LatestEvent(ctx context.Context, patientID string) (*domain.PatientEvent, error) {
	return latestEvent(ctx, t.q, patientID)
}

func (t *pgTx) EventsFor(ctx context.Context, patientID string) ([]domain.PatientEvent, error) {
	return eventsFor(ctx, t.q, patientID)
}

func (t *pgTx) LockLabTest(ctx context.Context, id types.ID) (*domain.LabTest, error) {
	return findLabTest(ctx, t.q, id, true)
}

func (t *pgTx) LockLabTestsByTestID(ctx context.Context, testID string) ([]domain.LabTest, error) {
	return queryLabTests(ctx, t.q,
		`SELECT `+labTestColumns+` FROM lab_tests WHERE test_id = $1 ORDER BY id FOR UPDATE`, testID)
}

func (t *pgTx) InsertLabTest(ctx context.Context, lt *domain.LabTest) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO lab_tests (`+labTestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		lt.ID, lt.LaboratoryID, lt.TestID, lt.PatientID, lt.TestType, lt.TestMaterial,
		lt.Status, lt.Comment, lt.Report, lt.LastUpdate,
	)
	if database.IsUniqueViolation(err, labTestIDUniqueKey) {
		return errors.Conflict("test " + lt.TestID + " already exists for this laboratory")
	}
	if err != nil {
		return errors.Wrap(err, "failed to insert lab test")
	}
	return nil
}

func (t *pgTx) UpdateLabTest(ctx context.Context, lt *domain.LabTest) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE lab_tests
		SET test_status = $2, comment = $3, report = $4, last_update = $5
		WHERE id = $1`,
		lt.ID, lt.Status, lt.Comment, lt.Report, lt.LastUpdate,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update lab test")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("lab test", lt.ID.String())
	}
	return nil
}

func (t *pgTx) LatestQuarantineIncident(ctx context.Context, patientID string) (*domain.QuarantineIncident, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+quarantineColumns+`
		FROM quarantine_incidents
		WHERE patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, patientID)
	q, err := scanQuarantine(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load quarantine incident")
	}
	return q, nil
}

func (t *pgTx) InsertQuarantineIncident(ctx context.Context, q *domain.QuarantineIncident) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO quarantine_incidents (`+quarantineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		q.ID, q.PatientID, q.EventID, q.Until, q.Comment, q.SupersedesID, q.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert quarantine incident")
	}
	return nil
}

func (t *pgTx) LockExposureContact(ctx context.Context, id types.ID) (*domain.ExposureContact, error) {
	return findExposureContact(ctx, t.q, id, true)
}

func (t *pgTx) InsertExposureContact(ctx context.Context, c *domain.ExposureContact) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO exposure_contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.SourcePatientID, c.ContactPatientID, c.DateOfContact, c.Comment, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert exposure contact")
	}
	return nil
}

func (t *pgTx) UpdateExposureContact(ctx context.Context, c *domain.ExposureContact) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE exposure_contacts
		SET date_of_contact = $2, comment = $3, updated_at = $4
		WHERE id = $1`,
		c.ID, c.DateOfContact, c.Comment, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update exposure contact")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("exposure contact", c.ID.String())
	}
	return nil
}

func (t *pgTx) DeleteExposureContact(ctx context.Context, id types.ID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM exposure_contacts WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete exposure contact")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("exposure contact", id.String())
	}
	return nil
}

// --- Shared helpers ---

const (
	eventColumns      = `id, patient_id, event_type, event_timestamp, seq, comment, lab_test_id, responsible_doctor_id`
	labTestColumns    = `id, laboratory_id, test_id, patient_id, test_type, test_material, test_status, comment, report, last_update`
	quarantineColumns = `id, patient_id, event_id, until, comment, supersedes_id, created_at`
	contactColumns    = `id, source_patient_id, contact_patient_id, date_of_contact, comment, created_at, updated_at`
)

var patientColumnNames = []string{
	"id", "first_name", "last_name", "gender", "date_of_birth",
	"email", "phone_number",
	"street", "house_number", "zip", "city", "country",
	"insurance_company", "insurance_membership_number", "risk_occupation",
	"current_status", "quarantine_until", "reporting_institution_id",
	"created_at", "updated_at",
}

func patientColumns(prefix string) string {
	cols := make([]string, len(patientColumnNames))
	for i, c := range patientColumnNames {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	p := &domain.Patient{}
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Gender, &p.DateOfBirth,
		&p.Email, &p.PhoneNumber,
		&p.Street, &p.HouseNumber, &p.Zip, &p.City, &p.Country,
		&p.InsuranceCompany, &p.InsuranceMembershipNumber, &p.RiskOccupation,
		&p.Status, &p.QuarantineUntil, &p.ReportingInstitutionID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func findPatient(ctx context.Context, q querier, id string, lock bool) (*domain.Patient, error) {
	query := `SELECT ` + patientColumns("") + ` FROM patients WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	p, err := scanPatient(q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("patient", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patient")
	}
	return p, nil
}

func scanEvent(row pgx.Row) (*domain.PatientEvent, error) {
	e := &domain.PatientEvent{}
	err := row.Scan(&e.ID, &e.PatientID, &e.Type, &e.Timestamp, &e.Seq, &e.Comment, &e.LabTestID, &e.ResponsibleDoctorID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func latestEvent(ctx context.Context, q querier, patientID string) (*domain.PatientEvent, error) {
	row := q.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM patient_events
		WHERE patient_id = $1
		ORDER BY event_timestamp DESC, seq DESC
		LIMIT 1`, patientID)
	e, err := scanEvent(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest event")
	}
	return e, nil
}

func eventsFor(ctx context.Context, q querier, patientID string) ([]domain.PatientEvent, error) {
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+`
		FROM patient_events
		WHERE patient_id = $1
		ORDER BY event_timestamp, seq`, patientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}
	defer rows.Close()

	events := []domain.PatientEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}
	return events, nil
}

func scanLabTest(row pgx.Row) (*domain.LabTest, error) {
	lt := &domain.LabTest{}
	err := row.Scan(&lt.ID, &lt.LaboratoryID, &lt.TestID, &lt.PatientID, &lt.TestType, &lt.TestMaterial,
		&lt.Status, &lt.Comment, &lt.Report, &lt.LastUpdate)
	if err != nil {
		return nil, err
	}
	return lt, nil
}

func findLabTest(ctx context.Context, q querier, id types.ID, lock bool) (*domain.LabTest, error) {
	query := `SELECT ` + labTestColumns + ` FROM lab_tests WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	lt, err := scanLabTest(q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("lab test", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find lab test")
	}
	return lt, nil
}

func queryLabTests(ctx context.Context, q querier, sql string, args ...any) ([]domain.LabTest, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query lab tests")
	}
	defer rows.Close()

	tests := []domain.LabTest{}
	for rows.Next() {
		lt, err := scanLabTest(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan lab test")
		}
		tests = append(tests, *lt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to query lab tests")
	}
	return tests, nil
}

func scanQuarantine(row pgx.Row) (*domain.QuarantineIncident, error) {
	q := &domain.QuarantineIncident{}
	err := row.Scan(&q.ID, &q.PatientID, &q.EventID, &q.Until, &q.Comment, &q.SupersedesID, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func scanExposureContact(row pgx.Row) (*domain.ExposureContact, error) {
	c := &domain.ExposureContact{}
	err := row.Scan(&c.ID, &c.SourcePatientID, &c.ContactPatientID, &c.DateOfContact, &c.Comment, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func findExposureContact(ctx context.Context, q querier, id types.ID, lock bool) (*domain.ExposureContact, error) {
	query := `SELECT ` + contactColumns + ` FROM exposure_contacts WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	c, err := scanExposureContact(q.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("exposure contact", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find exposure contact")
	}
	return c, nil
}

func queryExposureContacts(ctx context.Context, q querier, sql string, args ...any) ([]domain.ExposureContact, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query exposure contacts")
	}
	defer rows.Close()

	contacts := []domain.ExposureContact{}
	for rows.Next() {
		c, err := scanExposureContact(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan exposure contact")
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to query exposure contacts")
	}
	return contacts, nil
}
