package staff

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

// LimitSource reports the headcount limits of the clinic's current plan.
// The second return is false when the clinic has no active subscription.
type LimitSource interface {
	ClinicLimits(ctx context.Context, clinicID uuid.UUID) (entitlement.Limits, bool, error)
}

// Service implements roster operations.
type Service struct {
	repo   Repository
	limits LimitSource
	log    zerolog.Logger
}

func NewService(repo Repository, limits LimitSource, log zerolog.Logger) *Service {
	return &Service{repo: repo, limits: limits, log: log}
}

// InviteInput carries the fields for adding a user to the roster.
type InviteInput struct {
	UserID uuid.UUID        `json:"user_id" validate:"required"`
	Name   string           `json:"name" validate:"required,min=2,max=200"`
	Email  string           `json:"email" validate:"required,email"`
	Role   entitlement.Role `json:"role" validate:"required"`
}

// Invite adds a user to the clinic roster as an active member. The clinic's
// plan headcount limits are enforced: doctors count against both the doctor
// and the total staff limit.
func (s *Service) Invite(ctx context.Context, clinicID, invitedBy uuid.UUID, in InviteInput) (*Member, error) {
	if !ValidRole(in.Role) {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.GetByClinicAndUser(ctx, clinicID, in.UserID); err == nil {
		return nil, ErrAlreadyMember
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	limits, active, err := s.limits.ClinicLimits(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNoSubscription
	}

	hc, err := s.repo.ActiveHeadcount(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if !limits.AllowsStaff(hc.Total) {
		return nil, ErrStaffLimit
	}
	if in.Role == entitlement.RoleDoctor && !limits.AllowsDoctors(hc.Doctors) {
		return nil, ErrDoctorLimit
	}

	m := &Member{
		ID:        uuid.New(),
		ClinicID:  clinicID,
		UserID:    in.UserID,
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Role:      in.Role,
		Status:    StatusActive,
		InvitedBy: invitedBy,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("clinic_id", clinicID.String()).
		Str("user_id", in.UserID.String()).
		Str("role", string(in.Role)).
		Msg("staff member invited")
	return m, nil
}

func (s *Service) List(ctx context.Context, clinicID uuid.UUID) ([]*Member, error) {
	return s.repo.ListByClinic(ctx, clinicID)
}

// ChangeRole moves a member to a different role. Promoting to doctor
// re-checks the plan's doctor limit.
func (s *Service) ChangeRole(ctx context.Context, memberID uuid.UUID, role entitlement.Role) (*Member, error) {
	if !ValidRole(role) {
		return nil, ErrInvalidRole
	}
	m, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.Role == role {
		return m, nil
	}

	if role == entitlement.RoleDoctor && m.Active() {
		limits, active, err := s.limits.ClinicLimits(ctx, m.ClinicID)
		if err != nil {
			return nil, err
		}
		if !active {
			return nil, ErrNoSubscription
		}
		hc, err := s.repo.ActiveHeadcount(ctx, m.ClinicID)
		if err != nil {
			return nil, err
		}
		if !limits.AllowsDoctors(hc.Doctors) {
			return nil, ErrDoctorLimit
		}
	}

	m.Role = role
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Deactivate removes a member from the active roster. Their record is kept
// so the entry can be reactivated without a fresh invite.
func (s *Service) Deactivate(ctx context.Context, memberID uuid.UUID) (*Member, error) {
	m, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !m.Active() {
		return nil, ErrAlreadyInactive
	}
	m.Status = StatusInactive
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	s.log.Info().Str("member_id", memberID.String()).Msg("staff member deactivated")
	return m, nil
}

// Reactivate returns a deactivated member to the active roster, re-checking
// the plan limits the member will count against.
func (s *Service) Reactivate(ctx context.Context, memberID uuid.UUID) (*Member, error) {
	m, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.Active() {
		return nil, ErrAlreadyActive
	}

	limits, active, err := s.limits.ClinicLimits(ctx, m.ClinicID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrNoSubscription
	}
	hc, err := s.repo.ActiveHeadcount(ctx, m.ClinicID)
	if err != nil {
		return nil, err
	}
	if !limits.AllowsStaff(hc.Total) {
		return nil, ErrStaffLimit
	}
	if m.Role == entitlement.RoleDoctor && !limits.AllowsDoctors(hc.Doctors) {
		return nil, ErrDoctorLimit
	}

	m.Status = StatusActive
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ActiveRole implements the role lookup used by access checks.
func (s *Service) ActiveRole(ctx context.Context, clinicID, userID uuid.UUID) (entitlement.Role, error) {
	return s.repo.ActiveRole(ctx, clinicID, userID)
}
