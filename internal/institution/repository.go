package institution

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imis-health/casetracker/internal/shared/database"
	"github.com/imis-health/casetracker/internal/shared/errors"
	"github.com/imis-health/casetracker/internal/shared/types"
)

// PostgresDirectory stores institutions in the application database
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new institution repository
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const institutionColumns = `id, name, type,
	street, house_number, zip, city, country,
	email, phone_number,
	created_at, updated_at`

func scanInstitution(row pgx.Row) (*Institution, error) {
	inst := &Institution{}
	err := row.Scan(
		&inst.ID, &inst.Name, &inst.Type,
		&inst.Address.Street, &inst.Address.HouseNumber, &inst.Address.Zip, &inst.Address.City, &inst.Address.Country,
		&inst.Contact.Email, &inst.Contact.PhoneNumber,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Create inserts a new institution
func (d *PostgresDirectory) Create(ctx context.Context, inst *Institution) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO institutions (`+institutionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inst.ID, inst.Name, inst.Type,
		inst.Address.Street, inst.Address.HouseNumber, inst.Address.Zip, inst.Address.City, inst.Address.Country,
		inst.Contact.Email, inst.Contact.PhoneNumber,
		inst.CreatedAt, inst.UpdatedAt,
	)
	if database.IsUniqueViolation(err, "") {
		return errors.Conflict("institution already exists")
	}
	if err != nil {
		return errors.Wrap(err, "failed to create institution")
	}
	return nil
}

// Get retrieves an institution by ID
func (d *PostgresDirectory) Get(ctx context.Context, id types.ID) (*Institution, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, id)
	inst, err := scanInstitution(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("institution", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get institution")
	}
	return inst, nil
}

// List returns institutions matching the filter with the total count
func (d *PostgresDirectory) List(ctx context.Context, filter ListFilter) ([]Institution, int, error) {
	var conditions []string
	var args []any
	argNum := 1

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argNum))
		args = append(args, *filter.Type)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR city ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := d.pool.QueryRow(ctx, "SELECT COUNT(*) FROM institutions "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count institutions")
	}

	query := fmt.Sprintf(`SELECT %s FROM institutions %s ORDER BY name, id LIMIT $%d OFFSET $%d`,
		institutionColumns, whereClause, argNum, argNum+1)
	args = append(args, filter.limit(), filter.Offset)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list institutions")
	}
	defer rows.Close()

	institutions := []Institution{}
	for rows.Next() {
		inst, err := scanInstitution(rows)
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
