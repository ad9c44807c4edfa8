// Package staff manages the clinic staff roster: invitations, role changes,
// and deactivation, with headcount enforced against the clinic's plan limits.
package staff

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

var (
	ErrNotFound        = errors.New("staff member not found")
	ErrAlreadyMember   = errors.New("user is already a member of this clinic")
	ErrInvalidRole     = errors.New("invalid staff role")
	ErrDoctorLimit     = errors.New("plan doctor limit reached")
	ErrStaffLimit      = errors.New("plan staff limit reached")
	ErrNoSubscription  = errors.New("clinic has no active subscription")
	ErrAlreadyActive   = errors.New("staff member is already active")
	ErrAlreadyInactive = errors.New("staff member is already inactive")
)

// Status of a roster entry.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Member is one clinic roster entry.
type Member struct {
	ID        uuid.UUID        `json:"id"`
	ClinicID  uuid.UUID        `json:"clinic_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Role      entitlement.Role `json:"role"`
	Status    Status           `json:"status"`
	InvitedBy uuid.UUID        `json:"invited_by"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Active reports whether the member currently counts against plan limits
// and resolves a role.
func (m *Member) Active() bool {
	return m.Status == StatusActive
}

// ValidRole reports whether r names an assignable clinic role. Admin is
// reserved for the clinic owner and cannot be granted through the roster.
func ValidRole(r entitlement.Role) bool {
	switch r {
	case entitlement.RoleDoctor, entitlement.RoleStaff, entitlement.RoleReceptionist:
		return true
	default:
		return false
	}
}
