package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for subscription records.
type Repository interface {
	// CreatePending inserts a new pending record, replacing any abandoned
	// pending order for the clinic. It fails with
	// ErrDuplicateActiveSubscription when the clinic already holds an
	// unexpired active subscription.
	CreatePending(ctx context.Context, rec *Record) error

	// CreatePendingRenewal inserts a pending record that is allowed to
	// coexist with the active subscription it will supersede.
	CreatePendingRenewal(ctx context.Context, rec *Record) error

	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	GetByOrderID(ctx context.Context, orderID string) (*Record, error)
	GetByUpgradeOrderID(ctx context.Context, orderID string) (*Record, error)

	// GetActiveForClinic returns the clinic's active record, ErrNotFound
	// when there is none.
	GetActiveForClinic(ctx context.Context, clinicID uuid.UUID) (*Record, error)

	// GetLatestForClinic returns the clinic's most recent record of any
	// status.
	GetLatestForClinic(ctx context.Context, clinicID uuid.UUID) (*Record, error)

	ListByClinic(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Record, int, error)

	Update(ctx context.Context, rec *Record) error

	// ActivateRenewal persists the activated renewal and demotes the
	// record it supersedes to expired in the same transaction.
	ActivateRenewal(ctx context.Context, rec *Record, supersededID uuid.UUID) error

	// ListExpiringWithin returns active records whose expiry falls after
	// now and at or before the cutoff.
	ListExpiringWithin(ctx context.Context, now, cutoff time.Time) ([]*Record, error)

	// ListExpired returns active records whose expiry has lapsed.
	ListExpired(ctx context.Context, now time.Time) ([]*Record, error)

	// DemoteExpired flips the record from active to expired and reports
	// whether this call did the flip. A false return means another caller
	// already demoted it, so side effects belong to that caller.
	DemoteExpired(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkReminderSent flips the reminder flag for the given window (30,
	// 7, or 1) and reports whether this call did the flip. A false return
	// means the reminder was already sent.
	MarkReminderSent(ctx context.Context, id uuid.UUID, window int) (bool, error)
}
