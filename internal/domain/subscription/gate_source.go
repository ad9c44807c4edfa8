package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

// Service feeds the entitlement gate directly.
var _ entitlement.SubscriptionSource = (*Service)(nil)

// ActiveSubscription implements the gate's subscription lookup. It returns
// nil when the clinic has no usable subscription, an info with zero days
// remaining when the last term has lapsed, and the running term otherwise.
// A pending renewal never masks the running term it will supersede.
func (s *Service) ActiveSubscription(ctx context.Context, clinicID uuid.UUID) (*entitlement.SubscriptionInfo, error) {
	rec, err := s.repo.GetActiveForClinic(ctx, clinicID)
	if errors.Is(err, ErrNotFound) {
		return s.lapsedInfo(ctx, clinicID)
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	if rec.IsExpired(now) {
		s.expireNow(ctx, rec)
		return expiredInfo(rec), nil
	}
	return &entitlement.SubscriptionInfo{
		Plan:          rec.Plan,
		ExpiresAt:     *rec.ExpiryDate,
		DaysRemaining: rec.DaysRemaining(now),
	}, nil
}

// lapsedInfo distinguishes "never subscribed" from "subscription ran out"
// so the gate can tell the clinic to renew rather than subscribe.
func (s *Service) lapsedInfo(ctx context.Context, clinicID uuid.UUID) (*entitlement.SubscriptionInfo, error) {
	latest, err := s.repo.GetLatestForClinic(ctx, clinicID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if latest.Status == StatusExpired {
		return expiredInfo(latest), nil
	}
	return nil, nil
}

func expiredInfo(rec *Record) *entitlement.SubscriptionInfo {
	info := &entitlement.SubscriptionInfo{Plan: rec.Plan}
	if rec.ExpiryDate != nil {
		info.ExpiresAt = *rec.ExpiryDate
	}
	return info
}
