package staff

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

// Headcount is the active roster size broken out for limit checks.
type Headcount struct {
	Doctors int
	Total   int
}

// Repository is the persistence boundary for the staff roster.
type Repository interface {
	Create(ctx context.Context, m *Member) error
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	GetByClinicAndUser(ctx context.Context, clinicID, userID uuid.UUID) (*Member, error)
	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Member, error)
	Update(ctx context.Context, m *Member) error

	// ActiveHeadcount counts active members for plan limit checks.
	ActiveHeadcount(ctx context.Context, clinicID uuid.UUID) (Headcount, error)

	// ActiveRole returns the active role of userID in clinicID, or ""
	// when the user holds no active roster entry.
	ActiveRole(ctx context.Context, clinicID, userID uuid.UUID) (entitlement.Role, error)
}
