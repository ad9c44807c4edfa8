package subscription

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
//
// Two partial unique indexes back the lifecycle invariants: at most one
// active and at most one pending record per clinic. The active guard is
// additionally enforced by the guarded insert in CreatePending so a clinic
// can never buy a second subscription while one is running.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const subColumns = `id, clinic_id, purchased_by, plan, duration, status,
	start_date, expiry_date, auto_renew, limits,
	order_id, payment_id, signature, amount, currency, paid_at, invoice_number,
	upgrade_order_id, upgrade_tier, upgrade_amount,
	plan_history, reminder_30, reminder_7, reminder_1,
	previous_id, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(
		&r.ID, &r.ClinicID, &r.PurchasedBy, &r.Plan, &r.Duration, &r.Status,
		&r.StartDate, &r.ExpiryDate, &r.AutoRenew, &r.Limits,
		&r.Payment.OrderID, &r.Payment.PaymentID, &r.Payment.Signature,
		&r.Payment.Amount, &r.Payment.Currency, &r.Payment.PaidAt, &r.Payment.InvoiceNumber,
		&r.Payment.UpgradeOrderID, &r.Payment.UpgradeTier, &r.Payment.UpgradeAmount,
		&r.PlanHistory, &r.Reminders.Sent30, &r.Reminders.Sent7, &r.Reminders.Sent1,
		&r.PreviousID, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &r, nil
}

const insertSubSQL = `
	INSERT INTO emr_subscriptions (id, clinic_id, purchased_by, plan, duration,
		status, start_date, expiry_date, auto_renew, limits,
		order_id, payment_id, signature, amount, currency, paid_at, invoice_number,
		upgrade_order_id, upgrade_tier, upgrade_amount,
		plan_history, reminder_30, reminder_7, reminder_1,
		previous_id, created_at, updated_at)
	SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27`

func insertArgs(r *Record) []interface{} {
	return []interface{}{
		r.ID, r.ClinicID, r.PurchasedBy, r.Plan, r.Duration,
		r.Status, r.StartDate, r.ExpiryDate, r.AutoRenew, r.Limits,
		r.Payment.OrderID, r.Payment.PaymentID, r.Payment.Signature,
		r.Payment.Amount, r.Payment.Currency, r.Payment.PaidAt, r.Payment.InvoiceNumber,
		r.Payment.UpgradeOrderID, r.Payment.UpgradeTier, r.Payment.UpgradeAmount,
		r.PlanHistory, r.Reminders.Sent30, r.Reminders.Sent7, r.Reminders.Sent1,
		r.PreviousID, r.CreatedAt, r.UpdatedAt,
	}
}

func (p *PGRepository) CreatePending(ctx context.Context, rec *Record) error {
	return p.createPending(ctx, rec, true)
}

func (p *PGRepository) CreatePendingRenewal(ctx context.Context, rec *Record) error {
	return p.createPending(ctx, rec, false)
}

func (p *PGRepository) createPending(ctx context.Context, rec *Record, guardActive bool) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now()
	rec.Status = StatusPending
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// An unpaid order from an earlier attempt is abandoned, not a conflict.
	if _, err := tx.Exec(ctx,
		`DELETE FROM emr_subscriptions WHERE clinic_id = $1 AND status = 'pending'`,
		rec.ClinicID); err != nil {
		return fmt.Errorf("drop abandoned pending: %w", err)
	}

	sql := insertSubSQL
	args := insertArgs(rec)
	if guardActive {
		sql += `
	WHERE NOT EXISTS (
		SELECT 1 FROM emr_subscriptions
		WHERE clinic_id = $2 AND status = 'active' AND expiry_date > $28
	)`
		args = append(args, now)
	}

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveSubscription
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateActiveSubscription
	}
	return tx.Commit(ctx)
}

func (p *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions WHERE id = $1`, id)
	return scanRecord(row)
}

func (p *PGRepository) GetByOrderID(ctx context.Context, orderID string) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions WHERE order_id = $1`, orderID)
	return scanRecord(row)
}

func (p *PGRepository) GetByUpgradeOrderID(ctx context.Context, orderID string) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions WHERE upgrade_order_id = $1`, orderID)
	return scanRecord(row)
}

func (p *PGRepository) GetActiveForClinic(ctx context.Context, clinicID uuid.UUID) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions WHERE clinic_id = $1 AND status = 'active'`,
		clinicID)
	return scanRecord(row)
}

func (p *PGRepository) GetLatestForClinic(ctx context.Context, clinicID uuid.UUID) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions
		WHERE clinic_id = $1 ORDER BY created_at DESC LIMIT 1`,
		clinicID)
	return scanRecord(row)
}

func (p *PGRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM emr_subscriptions WHERE clinic_id = $1`, clinicID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscriptions: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions
		WHERE clinic_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		clinicID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

const updateSubSQL = `
	UPDATE emr_subscriptions
	SET plan = $2, duration = $3, status = $4, start_date = $5, expiry_date = $6,
		auto_renew = $7, limits = $8, order_id = $9, payment_id = $10,
		signature = $11, amount = $12, currency = $13, paid_at = $14,
		invoice_number = $15, upgrade_order_id = $16, upgrade_tier = $17,
		upgrade_amount = $18, plan_history = $19, previous_id = $20,
		updated_at = $21
	WHERE id = $1`

func updateArgs(r *Record) []interface{} {
	return []interface{}{
		r.ID, r.Plan, r.Duration, r.Status, r.StartDate, r.ExpiryDate,
		r.AutoRenew, r.Limits, r.Payment.OrderID, r.Payment.PaymentID,
		r.Payment.Signature, r.Payment.Amount, r.Payment.Currency, r.Payment.PaidAt,
		r.Payment.InvoiceNumber, r.Payment.UpgradeOrderID, r.Payment.UpgradeTier,
		r.Payment.UpgradeAmount, r.PlanHistory, r.PreviousID, r.UpdatedAt,
	}
}

func (p *PGRepository) Update(ctx context.Context, rec *Record) error {
	rec.UpdatedAt = time.Now()
	tag, err := p.pool.Exec(ctx, updateSubSQL, updateArgs(rec)...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PGRepository) ActivateRenewal(ctx context.Context, rec *Record, supersededID uuid.UUID) error {
	rec.UpdatedAt = time.Now()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Demote the superseded record first so the active partial index
	// never sees two active rows for the clinic.
	if _, err := tx.Exec(ctx,
		`UPDATE emr_subscriptions SET status = 'expired', updated_at = $2
		WHERE id = $1 AND status = 'active'`,
		supersededID, rec.UpdatedAt); err != nil {
		return fmt.Errorf("demote superseded: %w", err)
	}

	tag, err := tx.Exec(ctx, updateSubSQL, updateArgs(rec)...)
	if err != nil {
		return fmt.Errorf("activate renewal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (p *PGRepository) ListExpiringWithin(ctx context.Context, now, cutoff time.Time) ([]*Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions
		WHERE status = 'active' AND expiry_date > $1 AND expiry_date <= $2
		ORDER BY expiry_date`,
		now, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGRepository) ListExpired(ctx context.Context, now time.Time) ([]*Record, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+subColumns+` FROM emr_subscriptions
		WHERE status = 'active' AND expiry_date <= $1
		ORDER BY expiry_date`,
		now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PGRepository) DemoteExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`UPDATE emr_subscriptions SET status = 'expired', updated_at = now()
		WHERE id = $1 AND status = 'active'`,
		id)
	if err != nil {
		return false, fmt.Errorf("demote expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PGRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, window int) (bool, error) {
	var col string
	switch window {
	case 30:
		col = "reminder_30"
	case 7:
		col = "reminder_7"
	case 1:
		col = "reminder_1"
	default:
		return false, fmt.Errorf("unknown reminder window %d", window)
	}

	tag, err := p.pool.Exec(ctx,
		`UPDATE emr_subscriptions SET `+col+` = true, updated_at = now()
		WHERE id = $1 AND `+col+` = false`,
		id)
	if err != nil {
		return false, fmt.Errorf("mark reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
