package entitlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrClinicNotFound is returned when role resolution targets an unknown clinic.
var ErrClinicNotFound = errors.New("clinic not found")

// StaffDirectory answers role lookups against the clinic staff roster.
// An empty role with nil error means the user is not on the roster.
type StaffDirectory interface {
	ActiveRole(ctx context.Context, clinicID, userID uuid.UUID) (Role, error)
}

// ClinicDirectory answers clinic existence and ownership lookups.
type ClinicDirectory interface {
	OwnerID(ctx context.Context, clinicID uuid.UUID) (uuid.UUID, error)
}

// RoleResolver determines a user's effective role in a clinic. The staff
// roster wins; a user who owns the clinic but holds no staff record acts
// as admin. Everyone else resolves to the empty role.
type RoleResolver struct {
	staff   StaffDirectory
	clinics ClinicDirectory
}

func NewRoleResolver(staff StaffDirectory, clinics ClinicDirectory) *RoleResolver {
	return &RoleResolver{staff: staff, clinics: clinics}
}

// Resolve returns the user's effective role in the clinic, or "" when the
// user is not a member.
func (r *RoleResolver) Resolve(ctx context.Context, clinicID, userID uuid.UUID) (Role, error) {
	role, err := r.staff.ActiveRole(ctx, clinicID, userID)
	if err != nil {
		return "", err
	}
	if role != "" {
		return role, nil
	}

	ownerID, err := r.clinics.OwnerID(ctx, clinicID)
	if err != nil {
		return "", err
	}
	if ownerID == userID {
		return RoleAdmin, nil
	}
	return "", nil
}
