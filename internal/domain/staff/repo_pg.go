package staff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

// PGRepository is the PostgreSQL implementation of Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const memberColumns = `id, clinic_id, user_id, name, email, role, status,
	invited_by, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(
		&m.ID, &m.ClinicID, &m.UserID, &m.Name, &m.Email, &m.Role, &m.Status,
		&m.InvitedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan staff member: %w", err)
	}
	return &m, nil
}

func (r *PGRepository) Create(ctx context.Context, m *Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO clinic_staff (id, clinic_id, user_id, name, email, role,
			status, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.ClinicID, m.UserID, m.Name, m.Email, m.Role,
		m.Status, m.InvitedBy, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyMember
		}
		return fmt.Errorf("insert staff member: %w", err)
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM clinic_staff WHERE id = $1`, id)
	return scanMember(row)
}

func (r *PGRepository) GetByClinicAndUser(ctx context.Context, clinicID, userID uuid.UUID) (*Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM clinic_staff WHERE clinic_id = $1 AND user_id = $2`,
		clinicID, userID)
	return scanMember(row)
}

func (r *PGRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM clinic_staff WHERE clinic_id = $1 ORDER BY created_at`,
		clinicID)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PGRepository) Update(ctx context.Context, m *Member) error {
	m.UpdatedAt = time.Now()
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinic_staff
		SET name = $2, email = $3, role = $4, status = $5, updated_at = $6
		WHERE id = $1`,
		m.ID, m.Name, m.Email, m.Role, m.Status, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update staff member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) ActiveHeadcount(ctx context.Context, clinicID uuid.UUID) (Headcount, error) {
	var hc Headcount
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE role = 'doctor'), COUNT(*)
		FROM clinic_staff
		WHERE clinic_id = $1 AND status = 'active'`,
		clinicID).Scan(&hc.Doctors, &hc.Total)
	if err != nil {
		return Headcount{}, fmt.Errorf("staff headcount: %w", err)
	}
	return hc, nil
}

func (r *PGRepository) ActiveRole(ctx context.Context, clinicID, userID uuid.UUID) (entitlement.Role, error) {
	var role entitlement.Role
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM clinic_staff
		WHERE clinic_id = $1 AND user_id = $2 AND status = 'active'`,
		clinicID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("staff role: %w", err)
	}
	return role, nil
}
