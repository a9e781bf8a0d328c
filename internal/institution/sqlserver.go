package institution

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// SQLServerDirectory reads institutions from a legacy SQL Server registry.
// The registry is owned elsewhere, so the directory is read-only.
type SQLServerDirectory struct {
	db *sql.DB
}

// OpenSQLServer connects to the registry and verifies the connection
func OpenSQLServer(ctx context.Context, dsn string) (*SQLServerDirectory, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLServerDirectory(db), nil
}

// NewSQLServerDirectory wraps an open registry connection
func NewSQLServerDirectory(db *sql.DB) *SQLServerDirectory {
	return &SQLServerDirectory{db: db}
}

const sqlServerColumns = `CAST(id AS NVARCHAR(36)), name, type,
	street, house_number, zip, city, country,
	email, phone_number,
	created_at, updated_at`

func scanSQLServer(scan func(dest ...any) error) (*Institution, error) {
	inst := &Institution{}
	var id string
	err := scan(
		&id, &inst.Name, &inst.Type,
		&inst.Address.Street, &inst.Address.HouseNumber, &inst.Address.Zip, &inst.Address.City, &inst.Address.Country,
		&inst.Contact.Email, &inst.Contact.PhoneNumber,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// SQL Server renders uniqueidentifier in upper case
	parsed, err := types.ParseID(strings.ToLower(id))
	if err != nil {
		return nil, err
	}
	inst.ID = parsed
	return inst, nil
}

// Get retrieves an institution by ID
func (d *SQLServerDirectory) Get(ctx context.Context, id types.ID) (*Institution, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+sqlServerColumns+` FROM dbo.Institutions WHERE id = @p1`, id.String())
	inst, err := scanSQLServer(row.Scan)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("institution", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get institution")
	}
	return inst, nil
}

// List returns institutions matching the filter with the total count
func (d *SQLServerDirectory) List(ctx context.Context, filter ListFilter) ([]Institution, int, error) {
	typ := ""
	if filter.Type != nil {
		typ = string(*filter.Type)
	}
	search := "%" + filter.Search + "%"

	const where = `WHERE (@p1 = '' OR type = @p1) AND (name LIKE @p2 OR city LIKE @p2)`

	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dbo.Institutions `+where, typ, search).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count institutions")
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+sqlServerColumns+`
		FROM dbo.Institutions `+where+`
		ORDER BY name, id
		OFFSET @p3 ROWS FETCH NEXT @p4 ROWS ONLY`,
		typ, search, filter.Offset, filter.limit())
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list institutions")
	}
	defer rows.Close()

	institutions := []Institution{}
	for rows.Next() {
		inst, err := scanSQLServer(rows.Scan)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan institution")
		}
		institutions = append(institutions, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to list institutions")
	}
	return institutions, total, nil
}

// Create is not supported by the registry
func (d *SQLServerDirectory) Create(context.Context, *Institution) error {
	return errors.Forbidden("institution registry is read-only")
}

// Ping checks the registry connection
func (d *SQLServerDirectory) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the registry connection
func (d *SQLServerDirectory) Close() error {
	return d.db.Close()
}
