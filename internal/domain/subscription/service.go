package subscription

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
	"github.com/clinicore/clinicore/internal/platform/payment"
)

// ClinicInfo is the contact block used for receipts and reminders.
type ClinicInfo struct {
	Name  string
	Email string
}

// ClinicDirectory is the clinic-side surface the engine needs: contact
// lookups for notifications and the EMR enablement switch.
type ClinicDirectory interface {
	Info(ctx context.Context, clinicID uuid.UUID) (ClinicInfo, error)
	OwnerID(ctx context.Context, clinicID uuid.UUID) (uuid.UUID, error)
	GrantEMR(ctx context.Context, clinicID uuid.UUID, plan string, expiresAt time.Time) error
	RevokeEMR(ctx context.Context, clinicID uuid.UUID, plan string) error
}

// Notifier delivers a rendered template to a recipient. Delivery failures
// are logged, never surfaced to the subscription flow.
type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// Reminder windows in days, checked smallest first so a subscription only
// ever receives the most urgent applicable reminder.
var reminderWindows = [3]int{1, 7, 30}

// Service implements the subscription engine.
type Service struct {
	repo     Repository
	clinics  ClinicDirectory
	gateway  payment.Gateway
	verifier *SignatureVerifier
	catalog  *entitlement.Catalog
	notifier Notifier
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(
	repo Repository,
	clinics ClinicDirectory,
	gateway payment.Gateway,
	verifier *SignatureVerifier,
	catalog *entitlement.Catalog,
	notifier Notifier,
	log zerolog.Logger,
) *Service {
	return &Service{
		repo:     repo,
		clinics:  clinics,
		gateway:  gateway,
		verifier: verifier,
		catalog:  catalog,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// Plans returns the purchasable plan catalog.
func (s *Service) Plans() []entitlement.Plan {
	return s.catalog.Plans()
}

// PlanDetail returns one plan together with the screens its tier unlocks.
func (s *Service) PlanDetail(tier entitlement.Tier) (entitlement.Plan, []entitlement.Screen, error) {
	plan, ok := s.catalog.Plan(tier)
	if !ok {
		return entitlement.Plan{}, nil, ErrInvalidPlan
	}
	var screens []entitlement.Screen
	for _, sc := range s.catalog.Screens() {
		if plan.Tier.Covers(sc.RequiredTier) {
			screens = append(screens, sc)
		}
	}
	return plan, screens, nil
}

func (s *Service) planPrice(tier entitlement.Tier, duration entitlement.Duration) (entitlement.Plan, int, error) {
	plan, ok := s.catalog.Plan(tier)
	if !ok {
		return entitlement.Plan{}, 0, ErrInvalidPlan
	}
	if !duration.Valid() {
		return entitlement.Plan{}, 0, ErrInvalidDuration
	}
	price, ok := plan.Price(duration)
	if !ok {
		return entitlement.Plan{}, 0, ErrInvalidDuration
	}
	return plan, price, nil
}

// OrderResult pairs the stored record with the gateway order the client
// completes checkout against.
type OrderResult struct {
	Subscription *Record        `json:"subscription"`
	Order        *payment.Order `json:"order"`
}

// CreateOrder starts a purchase: it validates the plan, refuses clinics
// that already hold an unexpired active subscription, creates the gateway
// order for the full plan price, and stores a pending record.
func (s *Service) CreateOrder(ctx context.Context, clinicID, userID uuid.UUID, tier entitlement.Tier, duration entitlement.Duration) (*OrderResult, error) {
	plan, price, err := s.planPrice(tier, duration)
	if err != nil {
		return nil, err
	}
	if _, err := s.clinics.Info(ctx, clinicID); err != nil {
		return nil, err
	}

	// An active record past its expiry is demoted now rather than
	// blocking the purchase until the next sweep.
	if active, err := s.repo.GetActiveForClinic(ctx, clinicID); err == nil {
		if !active.IsExpired(s.now()) {
			return nil, ErrDuplicateActiveSubscription
		}
		s.expireNow(ctx, active)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(price) * 100,
		Currency: plan.Currency,
		Receipt:  "emr_" + clinicID.String()[:8],
		Notes: map[string]string{
			"type":      "subscription",
			"clinic_id": clinicID.String(),
			"plan":      string(tier),
			"duration":  string(duration),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	rec := &Record{
		ID:          uuid.New(),
		ClinicID:    clinicID,
		PurchasedBy: userID,
		Plan:        tier,
		Duration:    duration,
		Limits:      plan.Limits,
		Payment: PaymentDetails{
			OrderID:  order.ID,
			Amount:   price,
			Currency: plan.Currency,
		},
	}
	if err := s.repo.CreatePending(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("clinic_id", clinicID.String()).
		Str("plan", string(tier)).
		Str("order_id", order.ID).
		Int("amount", price).
		Msg("subscription order created")
	return &OrderResult{Subscription: rec, Order: order}, nil
}

// VerifyInput is the checkout callback payload.
type VerifyInput struct {
	OrderID   string
	PaymentID string
	Signature string
}

// VerifyAndActivate completes a purchase. A valid signature activates the
// record with the term starting now; an invalid one cancels the record so
// the clinic can start over.
func (s *Service) VerifyAndActivate(ctx context.Context, in VerifyInput) (*Record, error) {
	rec, err := s.repo.GetByOrderID(ctx, in.OrderID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPending {
		return nil, ErrInvalidState
	}

	if !s.verifier.Verify(in.OrderID, in.PaymentID, in.Signature) {
		if err := rec.Cancel(); err != nil {
			return nil, err
		}
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, err
		}
		s.log.Warn().
			Str("order_id", in.OrderID).
			Str("clinic_id", rec.ClinicID.String()).
			Msg("payment signature mismatch, subscription cancelled")
		return nil, ErrSignatureMismatch
	}

	if err := rec.Activate(s.now(), in.PaymentID, in.Signature); err != nil {
		return nil, err
	}

	if rec.PreviousID != nil {
		err = s.repo.ActivateRenewal(ctx, rec, *rec.PreviousID)
	} else {
		err = s.repo.Update(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	if err := s.clinics.GrantEMR(ctx, rec.ClinicID, string(rec.Plan), *rec.ExpiryDate); err != nil {
		return nil, err
	}

	s.notifyClinic(ctx, rec, "payment-received", map[string]string{
		"amount":         strconv.Itoa(rec.Payment.Amount),
		"currency":       rec.Payment.Currency,
		"invoice_number": rec.Payment.InvoiceNumber,
	})

	s.log.Info().
		Str("clinic_id", rec.ClinicID.String()).
		Str("plan", string(rec.Plan)).
		Time("expiry", *rec.ExpiryDate).
		Msg("subscription activated")
	return rec, nil
}

// CreateUpgradeOrder prices a mid-term move to a higher plan and stamps the
// gateway order onto the active record. The clinic pays only the prorated
// difference over the days remaining.
func (s *Service) CreateUpgradeOrder(ctx context.Context, clinicID, userID uuid.UUID, newTier entitlement.Tier) (*OrderResult, error) {
	rec, err := s.activeUnexpired(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	newPlan, ok := s.catalog.Plan(newTier)
	if !ok {
		return nil, ErrInvalidPlan
	}
	if newTier.Rank() <= rec.Plan.Rank() {
		return nil, ErrInvalidUpgradeDirection
	}

	_, curPrice, err := s.planPrice(rec.Plan, rec.Duration)
	if err != nil {
		return nil, err
	}
	newPrice, ok := newPlan.Price(rec.Duration)
	if !ok {
		return nil, ErrInvalidDuration
	}

	prorated := ProratedAmount(curPrice, newPrice, rec.Duration.Days(), rec.DaysRemaining(s.now()))

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(prorated) * 100,
		Currency: newPlan.Currency,
		Receipt:  "emr_up_" + clinicID.String()[:8],
		Notes: map[string]string{
			"type":      "upgrade",
			"clinic_id": clinicID.String(),
			"from":      string(rec.Plan),
			"to":        string(newTier),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	rec.Payment.UpgradeOrderID = order.ID
	rec.Payment.UpgradeTier = newTier
	rec.Payment.UpgradeAmount = prorated
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("clinic_id", clinicID.String()).
		Str("from", string(rec.Plan)).
		Str("to", string(newTier)).
		Int("prorated", prorated).
		Msg("upgrade order created")
	return &OrderResult{Subscription: rec, Order: order}, nil
}

// VerifyAndUpgrade completes a pending upgrade. The plan changes
// immediately and the expiry date keeps its original term. A signature
// mismatch clears the upgrade order and leaves the subscription running on
// its current plan.
func (s *Service) VerifyAndUpgrade(ctx context.Context, in VerifyInput) (*Record, error) {
	rec, err := s.repo.GetByUpgradeOrderID(ctx, in.OrderID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusActive {
		return nil, ErrInvalidState
	}
	if !rec.HasPendingUpgrade() {
		return nil, ErrNoPendingUpgrade
	}

	if !s.verifier.Verify(in.OrderID, in.PaymentID, in.Signature) {
		rec.ClearUpgrade()
		if err := s.repo.Update(ctx, rec); err != nil {
			return nil, err
		}
		s.log.Warn().
			Str("order_id", in.OrderID).
			Str("clinic_id", rec.ClinicID.String()).
			Msg("upgrade signature mismatch, upgrade dropped")
		return nil, ErrSignatureMismatch
	}

	newLimits := rec.Limits
	if plan, ok := s.catalog.Plan(rec.Payment.UpgradeTier); ok {
		newLimits = plan.Limits
	}
	rec.ApplyUpgrade(s.now(), in.PaymentID, newLimits)
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.clinics.GrantEMR(ctx, rec.ClinicID, string(rec.Plan), *rec.ExpiryDate); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("clinic_id", rec.ClinicID.String()).
		Str("plan", string(rec.Plan)).
		Msg("subscription upgraded")
	return rec, nil
}

// CreateRenewalOrder starts a renewal purchase at the clinic's current
// plan; only the duration is the caller's choice, so a renewal can never
// move the plan sideways or down. Renewing while the current term still
// runs is allowed; the renewal activates on payment and supersedes the
// running term at that moment. A clinic that has never subscribed gets
// ErrNotFound and should subscribe instead.
func (s *Service) CreateRenewalOrder(ctx context.Context, clinicID, userID uuid.UUID, duration entitlement.Duration) (*OrderResult, error) {
	latest, err := s.repo.GetLatestForClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	tier := latest.Plan
	plan, price, err := s.planPrice(tier, duration)
	if err != nil {
		return nil, err
	}

	var previousID *uuid.UUID
	if latest.Status == StatusActive && !latest.IsExpired(s.now()) {
		id := latest.ID
		previousID = &id
	} else if latest.Status == StatusActive {
		s.expireNow(ctx, latest)
	}

	order, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		Amount:   int64(price) * 100,
		Currency: plan.Currency,
		Receipt:  "emr_rn_" + clinicID.String()[:8],
		Notes: map[string]string{
			"type":      "renewal",
			"clinic_id": clinicID.String(),
			"plan":      string(tier),
			"duration":  string(duration),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}

	rec := &Record{
		ID:          uuid.New(),
		ClinicID:    clinicID,
		PurchasedBy: userID,
		Plan:        tier,
		Duration:    duration,
		AutoRenew:   latest.AutoRenew,
		Limits:      plan.Limits,
		PreviousID:  previousID,
		Payment: PaymentDetails{
			OrderID:  order.ID,
			Amount:   price,
			Currency: plan.Currency,
		},
	}

	if previousID != nil {
		err = s.repo.CreatePendingRenewal(ctx, rec)
	} else {
		err = s.repo.CreatePending(ctx, rec)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("clinic_id", clinicID.String()).
		Str("plan", string(tier)).
		Str("order_id", order.ID).
		Msg("renewal order created")
	return &OrderResult{Subscription: rec, Order: order}, nil
}

// ToggleAutoRenew flips the auto-renew flag on the clinic's active
// subscription.
func (s *Service) ToggleAutoRenew(ctx context.Context, clinicID uuid.UUID, enabled bool) (*Record, error) {
	rec, err := s.activeUnexpired(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	rec.AutoRenew = enabled
	if err := s.repo.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Current returns the clinic's most recent subscription record of any
// status, demoting a lapsed active record on the way out.
func (s *Service) Current(ctx context.Context, clinicID uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetLatestForClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusActive && rec.IsExpired(s.now()) {
		s.expireNow(ctx, rec)
	}
	return rec, nil
}

// History returns the clinic's subscription records, newest first.
func (s *Service) History(ctx context.Context, clinicID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByClinic(ctx, clinicID, limit, offset)
}

// activeUnexpired returns the clinic's running subscription, demoting it
// first when the term has lapsed.
func (s *Service) activeUnexpired(ctx context.Context, clinicID uuid.UUID) (*Record, error) {
	rec, err := s.repo.GetActiveForClinic(ctx, clinicID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	if rec.IsExpired(s.now()) {
		s.expireNow(ctx, rec)
		return nil, ErrSubscriptionExpired
	}
	return rec, nil
}

// expireNow demotes a lapsed active record, disables the clinic's EMR
// access, and sends the expiry notice. The demotion is a conditional
// status flip in the store, so when two readers race over the same lapsed
// record only the one that wins the flip revokes and notifies. Returns
// whether this caller won.
func (s *Service) expireNow(ctx context.Context, rec *Record) bool {
	flipped, err := s.repo.DemoteExpired(ctx, rec.ID)
	if err != nil {
		s.log.Error().Err(err).Str("subscription_id", rec.ID.String()).Msg("expire update failed")
		return false
	}
	rec.Status = StatusExpired
	if !flipped {
		return false
	}
	if err := s.clinics.RevokeEMR(ctx, rec.ClinicID, string(rec.Plan)); err != nil {
		s.log.Error().Err(err).Str("clinic_id", rec.ClinicID.String()).Msg("emr revoke failed")
	}
	s.notifyClinic(ctx, rec, "subscription-expired", nil)
	s.log.Info().
		Str("clinic_id", rec.ClinicID.String()).
		Str("subscription_id", rec.ID.String()).
		Msg("subscription expired")
	return true
}

// RunExpirySweep demotes every active subscription whose term has lapsed
// and returns how many were demoted.
func (s *Service) RunExpirySweep(ctx context.Context) (int, error) {
	lapsed, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range lapsed {
		if s.expireNow(ctx, rec) {
			count++
		}
	}
	return count, nil
}

// windowFor maps days remaining to the most urgent reminder window, 0 when
// the expiry is more than the largest window away.
func windowFor(days int) int {
	for _, w := range reminderWindows {
		if days <= w {
			return w
		}
	}
	return 0
}

// Reminder describes one expiry notice the reminder sweep emitted.
type Reminder struct {
	SubscriptionID uuid.UUID        `json:"subscription_id"`
	ClinicID       uuid.UUID        `json:"clinic_id"`
	Plan           entitlement.Tier `json:"plan"`
	Window         int              `json:"window"`
	DaysRemaining  int              `json:"days_remaining"`
}

// RunReminderSweep sends expiry reminders for subscriptions entering the
// 30, 7, and 1 day windows and returns a descriptor for each notice that
// went out. The reminder flag is flipped before the send, so each window
// fires at most once per subscription even when sweeps overlap.
func (s *Service) RunReminderSweep(ctx context.Context) ([]Reminder, error) {
	now := s.now()
	candidates, err := s.repo.ListExpiringWithin(ctx, now, now.AddDate(0, 0, reminderWindows[len(reminderWindows)-1]))
	if err != nil {
		return nil, err
	}

	var sent []Reminder
	for _, rec := range candidates {
		days := rec.DaysRemaining(now)
		window := windowFor(days)
		if window == 0 {
			continue
		}

		flipped, err := s.repo.MarkReminderSent(ctx, rec.ID, window)
		if err != nil {
			s.log.Error().Err(err).Str("subscription_id", rec.ID.String()).Msg("reminder flag update failed")
			continue
		}
		if !flipped {
			continue
		}

		s.notifyClinic(ctx, rec, "subscription-expiring", map[string]string{
			"days": strconv.Itoa(days),
		})
		sent = append(sent, Reminder{
			SubscriptionID: rec.ID,
			ClinicID:       rec.ClinicID,
			Plan:           rec.Plan,
			Window:         window,
			DaysRemaining:  days,
		})
	}
	return sent, nil
}

// ClinicLimits reports the headcount limits the clinic bought, read from
// the running record's purchase-time snapshot rather than the live catalog.
// The second return is false when no unexpired subscription is running.
func (s *Service) ClinicLimits(ctx context.Context, clinicID uuid.UUID) (entitlement.Limits, bool, error) {
	rec, err := s.activeUnexpired(ctx, clinicID)
	if errors.Is(err, ErrNoActiveSubscription) || errors.Is(err, ErrSubscriptionExpired) {
		return entitlement.Limits{}, false, nil
	}
	if err != nil {
		return entitlement.Limits{}, false, err
	}
	return rec.Limits, true, nil
}

func (s *Service) notifyClinic(ctx context.Context, rec *Record, templateID string, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	info, err := s.clinics.Info(ctx, rec.ClinicID)
	if err != nil || info.Email == "" {
		return
	}

	data := map[string]string{
		"clinic_name": info.Name,
		"plan":        string(rec.Plan),
	}
	if rec.ExpiryDate != nil {
		data["expiry_date"] = rec.ExpiryDate.Format("2006-01-02")
	}
	for k, v := range extra {
		data[k] = v
	}

	if err := s.notifier.Notify(ctx, templateID, info.Email, data); err != nil {
		s.log.Warn().Err(err).
			Str("clinic_id", rec.ClinicID.String()).
			Str("template", templateID).
			Msg("notification failed")
	}
}
