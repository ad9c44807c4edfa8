package clinic

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service implements clinic business operations.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// CreateInput carries the fields for registering a clinic.
type CreateInput struct {
	Name    string `json:"name" validate:"required,min=2,max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=20"`
	Email   string `json:"email" validate:"omitempty,email"`
}

// Create registers a new clinic owned by ownerID. EMR starts disabled; it is
// enabled when the clinic activates a subscription.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Clinic, error) {
	c := &Clinic{
		ID:      uuid.New(),
		Name:    strings.TrimSpace(in.Name),
		OwnerID: ownerID,
		Address: strings.TrimSpace(in.Address),
		Phone:   strings.TrimSpace(in.Phone),
		Email:   strings.TrimSpace(in.Email),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Str("clinic_id", c.ID.String()).Str("owner_id", ownerID.String()).Msg("clinic registered")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Clinic, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// UpdateInput carries the mutable clinic profile fields.
type UpdateInput struct {
	Name    string `json:"name" validate:"required,min=2,max=200"`
	Address string `json:"address" validate:"max=500"`
	Phone   string `json:"phone" validate:"max=20"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*Clinic, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Address = strings.TrimSpace(in.Address)
	c.Phone = strings.TrimSpace(in.Phone)
	c.Email = strings.TrimSpace(in.Email)
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// OwnerID returns the clinic's owner.
func (s *Service) OwnerID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	return s.repo.OwnerID(ctx, id)
}

// GrantEMR flips the clinic's EMR block on for the given plan and expiry.
// Called when a subscription activates or upgrades.
func (s *Service) GrantEMR(ctx context.Context, id uuid.UUID, plan string, expiresAt time.Time) error {
	if err := s.repo.SetEMRStatus(ctx, id, true, plan, &expiresAt); err != nil {
		return err
	}
	s.log.Info().
		Str("clinic_id", id.String()).
		Str("plan", plan).
		Time("expires_at", expiresAt).
		Msg("emr enabled")
	return nil
}

// RevokeEMR disables the clinic's EMR access. The recorded plan is kept so
// renewal flows can show what the clinic previously had.
func (s *Service) RevokeEMR(ctx context.Context, id uuid.UUID, plan string) error {
	if err := s.repo.SetEMRStatus(ctx, id, false, plan, nil); err != nil {
		return err
	}
	s.log.Info().Str("clinic_id", id.String()).Msg("emr disabled")
	return nil
}
