package clinic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const clinicColumns = `id, name, owner_id, address, phone, email,
	emr_enabled, emr_plan, emr_expires_at, created_at, updated_at`

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(
		&c.ID, &c.Name, &c.OwnerID, &c.Address, &c.Phone, &c.Email,
		&c.EMREnabled, &c.EMRPlan, &c.EMRExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan clinic: %w", err)
	}
	return &c, nil
}

func (r *PGRepository) Create(ctx context.Context, c *Clinic) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinics (id, name, owner_id, address, phone, email,
			emr_enabled, emr_plan, emr_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.ID, c.Name, c.OwnerID, c.Address, c.Phone, c.Email,
		c.EMREnabled, c.EMRPlan, c.EMRExpiresAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert clinic: %w", err)
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clinics`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clinics: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+clinicColumns+` FROM clinics ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list clinics: %w", err)
	}
	defer rows.Close()

	var out []*Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Update(ctx context.Context, c *Clinic) error {
	c.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinics
		SET name = $2, address = $3, phone = $4, email = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.Name, c.Address, c.Phone, c.Email, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) OwnerID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var ownerID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT owner_id FROM clinics WHERE id = $1`, id).Scan(&ownerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("clinic owner: %w", err)
	}
	return ownerID, nil
}

func (r *PGRepository) SetEMRStatus(ctx context.Context, id uuid.UUID, enabled bool, plan string, expiresAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinics
		SET emr_enabled = $2, emr_plan = $3, emr_expires_at = $4, updated_at = now()
		WHERE id = $1`,
		id, enabled, plan, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("set emr status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
