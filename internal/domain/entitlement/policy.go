package entitlement

import "time"

// Deny reason codes returned to API clients when screen access is refused.
const (
	ReasonAuthRequired        = "AUTH_REQUIRED"
	ReasonClinicIDRequired    = "CLINIC_ID_REQUIRED"
	ReasonScreenNotFound      = "SCREEN_NOT_FOUND"
	ReasonNotClinicMember     = "NOT_CLINIC_MEMBER"
	ReasonNoSubscription      = "NO_SUBSCRIPTION"
	ReasonSubscriptionExpired = "SUBSCRIPTION_EXPIRED"
	ReasonRoleNotAllowed      = "ROLE_NOT_ALLOWED"
	ReasonUpgradeRequired     = "PLAN_UPGRADE_REQUIRED"
)

// SubscriptionInfo is the minimal subscription view the evaluator needs.
type SubscriptionInfo struct {
	Plan          Tier
	ExpiresAt     time.Time
	DaysRemaining int
}

// Decision is the outcome of evaluating one screen for one user.
type Decision struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	RequiredTier Tier   `json:"required_tier,omitempty"`
	CurrentTier  Tier   `json:"current_tier,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ScreenState is one screen annotated with the caller's access decision,
// used to render the dashboard with locked and unlocked sections.
type ScreenState struct {
	Screen   Screen `json:"screen"`
	Unlocked bool   `json:"unlocked"`
	Reason   string `json:"reason,omitempty"`
}

// Evaluator applies the access policy for a catalog of screens.
type Evaluator struct {
	catalog *Catalog
}

func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate decides whether a user with the given role, under the given
// subscription, may open screenID. A role refusal takes precedence over a
// tier refusal: telling a receptionist to upgrade the clinic plan would not
// unlock a doctors-only screen.
func (e *Evaluator) Evaluate(screenID string, role Role, sub *SubscriptionInfo) Decision {
	screen, ok := e.catalog.Screen(screenID)
	if !ok {
		return deny(ReasonScreenNotFound)
	}
	if role == "" {
		return deny(ReasonNotClinicMember)
	}
	if !screen.AllowsRole(role) {
		return deny(ReasonRoleNotAllowed)
	}
	if sub == nil {
		d := deny(ReasonNoSubscription)
		d.RequiredTier = screen.RequiredTier
		return d
	}
	if !sub.ExpiresAt.IsZero() && sub.DaysRemaining <= 0 {
		d := deny(ReasonSubscriptionExpired)
		d.RequiredTier = screen.RequiredTier
		d.CurrentTier = sub.Plan
		return d
	}
	if !sub.Plan.Covers(screen.RequiredTier) {
		d := deny(ReasonUpgradeRequired)
		d.RequiredTier = screen.RequiredTier
		d.CurrentTier = sub.Plan
		return d
	}
	return allow()
}

// CanAccess is Evaluate reduced to a boolean.
func (e *Evaluator) CanAccess(screenID string, role Role, sub *SubscriptionInfo) bool {
	return e.Evaluate(screenID, role, sub).Allowed
}

// ResolveScreens evaluates every screen in the catalog for the caller and
// returns them in display order, each marked unlocked or locked with the
// deny reason.
func (e *Evaluator) ResolveScreens(role Role, sub *SubscriptionInfo) []ScreenState {
	screens := e.catalog.Screens()
	out := make([]ScreenState, 0, len(screens))
	for _, s := range screens {
		d := e.Evaluate(s.ID, role, sub)
		out = append(out, ScreenState{Screen: s, Unlocked: d.Allowed, Reason: d.Reason})
	}
	return out
}

// SplitScreens divides resolved states into the unlocked and locked sets
// for dashboard rendering. Screens refused by role land in neither list:
// locked means the caller's role could open the screen once the clinic's
// plan covers its tier, so it is worth showing next to an upgrade prompt.
func SplitScreens(states []ScreenState) (unlocked, locked []ScreenState) {
	unlocked = make([]ScreenState, 0, len(states))
	locked = make([]ScreenState, 0)
	for _, s := range states {
		switch {
		case s.Unlocked:
			unlocked = append(unlocked, s)
		case s.Reason == ReasonRoleNotAllowed:
			continue
		default:
			locked = append(locked, s)
		}
	}
	return unlocked, locked
}
