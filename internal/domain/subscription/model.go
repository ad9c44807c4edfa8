// Package subscription implements the EMR subscription lifecycle: order
// creation, payment verification, upgrades with proration, renewals, expiry
// reminders, and the expiry sweep.
package subscription

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinicore/internal/domain/entitlement"
)

// Status of a subscription record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusExpired},
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
// Expired and cancelled are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PaymentDetails carries the gateway state of a record. The Upgrade fields
// hold an in-flight upgrade order stamped onto the active record; they are
// cleared when the upgrade completes or its signature fails.
type PaymentDetails struct {
	OrderID       string     `json:"order_id,omitempty"`
	PaymentID     string     `json:"payment_id,omitempty"`
	Signature     string     `json:"signature,omitempty"`
	Amount        int        `json:"amount"`
	Currency      string     `json:"currency"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`

	UpgradeOrderID string           `json:"upgrade_order_id,omitempty"`
	UpgradeTier    entitlement.Tier `json:"upgrade_tier,omitempty"`
	UpgradeAmount  int              `json:"upgrade_amount,omitempty"`
}

// PlanChange records one completed upgrade on a subscription.
type PlanChange struct {
	From           entitlement.Tier `json:"from"`
	To             entitlement.Tier `json:"to"`
	ProratedAmount int              `json:"prorated_amount"`
	PaymentID      string           `json:"payment_id,omitempty"`
	ChangedAt      time.Time        `json:"changed_at"`
}

// Reminders tracks which expiry reminders have been sent for this record.
// Each window fires at most once.
type Reminders struct {
	Sent30 bool `json:"sent_30"`
	Sent7  bool `json:"sent_7"`
	Sent1  bool `json:"sent_1"`
}

// Record is one subscription purchase lifecycle: created pending with a
// gateway order, activated on verified payment, and eventually expired or
// cancelled. Renewals are new records linked through PreviousID. Limits are
// copied from the plan at purchase and upgrade time, so a later catalog
// change never resizes a running subscription.
type Record struct {
	ID          uuid.UUID            `json:"id"`
	ClinicID    uuid.UUID            `json:"clinic_id"`
	PurchasedBy uuid.UUID            `json:"purchased_by"`
	Plan        entitlement.Tier     `json:"plan"`
	Duration    entitlement.Duration `json:"duration"`
	Status      Status               `json:"status"`
	StartDate   *time.Time           `json:"start_date,omitempty"`
	ExpiryDate  *time.Time           `json:"expiry_date,omitempty"`
	AutoRenew   bool                 `json:"auto_renew"`
	Limits      entitlement.Limits   `json:"limits"`
	Payment     PaymentDetails       `json:"payment"`
	PlanHistory []PlanChange         `json:"plan_history,omitempty"`
	Reminders   Reminders            `json:"reminders"`
	PreviousID  *uuid.UUID           `json:"previous_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// IsExpired reports whether an active record's term has lapsed by wall
// clock, regardless of whether the sweep has demoted it yet.
func (r *Record) IsExpired(now time.Time) bool {
	return r.ExpiryDate != nil && !now.Before(*r.ExpiryDate)
}

// DaysRemaining returns the whole days left until expiry, rounding partial
// days up and never going below zero.
func (r *Record) DaysRemaining(now time.Time) int {
	if r.ExpiryDate == nil {
		return 0
	}
	left := r.ExpiryDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}

// Activate moves a pending record to active. The term starts at the moment
// of payment verification, not order creation, so a clinic that pays days
// after subscribing still gets the full duration.
func (r *Record) Activate(now time.Time, paymentID, signature string) error {
	if !r.Status.CanTransitionTo(StatusActive) {
		return ErrInvalidState
	}
	start := now
	expiry := now.AddDate(0, 0, r.Duration.Days())
	r.Status = StatusActive
	r.StartDate = &start
	r.ExpiryDate = &expiry
	r.Payment.PaymentID = paymentID
	r.Payment.Signature = signature
	r.Payment.PaidAt = &start
	r.Payment.InvoiceNumber = newInvoiceNumber(now)
	return nil
}

// newInvoiceNumber issues a unique invoice token for a verified payment.
func newInvoiceNumber(now time.Time) string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "INV-" + now.Format("20060102") + "-" + token
}

// Cancel marks a pending record cancelled, used when payment verification
// fails. An active record can never be cancelled, only expired.
func (r *Record) Cancel() error {
	if !r.Status.CanTransitionTo(StatusCancelled) {
		return ErrInvalidState
	}
	r.Status = StatusCancelled
	return nil
}

// MarkExpired demotes an active record whose term has lapsed.
func (r *Record) MarkExpired() error {
	if !r.Status.CanTransitionTo(StatusExpired) {
		return ErrInvalidState
	}
	r.Status = StatusExpired
	return nil
}

// ApplyUpgrade completes the pending upgrade stamped on an active record:
// the plan changes immediately, the expiry date does not move, and the
// change is appended to the plan history. The upgrade fields are cleared.
func (r *Record) ApplyUpgrade(now time.Time, paymentID string, limits entitlement.Limits) {
	r.PlanHistory = append(r.PlanHistory, PlanChange{
		From:           r.Plan,
		To:             r.Payment.UpgradeTier,
		ProratedAmount: r.Payment.UpgradeAmount,
		PaymentID:      paymentID,
		ChangedAt:      now,
	})
	r.Plan = r.Payment.UpgradeTier
	r.Limits = limits
	r.ClearUpgrade()
}

// ClearUpgrade drops an in-flight upgrade order, leaving the record active
// on its current plan.
func (r *Record) ClearUpgrade() {
	r.Payment.UpgradeOrderID = ""
	r.Payment.UpgradeTier = ""
	r.Payment.UpgradeAmount = 0
}

// HasPendingUpgrade reports whether an upgrade order is awaiting payment.
func (r *Record) HasPendingUpgrade() bool {
	return r.Payment.UpgradeOrderID != ""
}

// ProratedAmount is the price of moving from one plan to another mid-term:
// the difference between the plans' daily rates over the days remaining,
// rounded to the nearest whole currency unit.
func ProratedAmount(currentPrice, newPrice, totalDays, daysRemaining int) int {
	if totalDays <= 0 || daysRemaining <= 0 {
		return 0
	}
	dailyDiff := (float64(newPrice) - float64(currentPrice)) / float64(totalDays)
	return int(math.Round(dailyDiff * float64(daysRemaining)))
}
