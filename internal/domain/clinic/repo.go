package clinic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence boundary for clinics.
type Repository interface {
	Create(ctx context.Context, c *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	List(ctx context.Context, limit, offset int) ([]*Clinic, int, error)
	Update(ctx context.Context, c *Clinic) error
	OwnerID(ctx context.Context, id uuid.UUID) (uuid.UUID, error)

	// SetEMRStatus updates only the denormalized EMR block.
	SetEMRStatus(ctx context.Context, id uuid.UUID, enabled bool, plan string, expiresAt *time.Time) error
}
