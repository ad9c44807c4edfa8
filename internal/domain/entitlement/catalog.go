// Package entitlement decides which EMR screens a user may open, combining
// the clinic's subscription plan with the user's clinic role. It owns the
// plan catalog and screen registry and exposes an echo middleware that
// gates clinical routes.
package entitlement

import "sort"

// Tier identifies a subscription plan level.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
)

// Rank orders tiers for upgrade and access comparisons. Unknown tiers rank 0,
// below every real plan, so a corrupted plan value never unlocks anything.
func (t Tier) Rank() int {
	switch t {
	case TierBasic:
		return 1
	case TierStandard:
		return 2
	case TierAdvanced:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t names a real plan tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Covers reports whether a subscription on tier t satisfies a screen that
// requires tier required.
func (t Tier) Covers(required Tier) bool {
	return t.Valid() && t.Rank() >= required.Rank()
}

// Role is a clinic staff role.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleDoctor       Role = "doctor"
	RoleStaff        Role = "staff"
	RoleReceptionist Role = "receptionist"
)

// Duration identifies a billing period.
type Duration string

const (
	DurationSixMonths Duration = "6_months"
	DurationOneYear   Duration = "1_year"
)

// Days returns the number of days in the billing period, or 0 for an
// unknown duration.
func (d Duration) Days() int {
	switch d {
	case DurationSixMonths:
		return 180
	case DurationOneYear:
		return 365
	default:
		return 0
	}
}

// Valid reports whether d names a supported billing period.
func (d Duration) Valid() bool {
	return d.Days() > 0
}

// Limits bounds clinic capacity under a plan. -1 means unlimited.
type Limits struct {
	MaxDoctors int `json:"max_doctors"`
	MaxStaff   int `json:"max_staff"`
}

// AllowsDoctors reports whether a clinic with count doctors can add another.
func (l Limits) AllowsDoctors(count int) bool {
	return l.MaxDoctors < 0 || count < l.MaxDoctors
}

// AllowsStaff reports whether a clinic with count staff can add another.
func (l Limits) AllowsStaff(count int) bool {
	return l.MaxStaff < 0 || count < l.MaxStaff
}

// Plan describes one purchasable subscription plan.
type Plan struct {
	Tier     Tier             `json:"tier"`
	Name     string           `json:"name"`
	Prices   map[Duration]int `json:"prices"` // whole currency units (INR)
	Currency string           `json:"currency"`
	Limits   Limits           `json:"limits"`
	Features []string         `json:"features"`
}

// Price returns the plan price for the given duration.
func (p Plan) Price(d Duration) (int, bool) {
	amt, ok := p.Prices[d]
	return amt, ok
}

// Screen describes one gated EMR screen.
type Screen struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	RequiredTier Tier   `json:"required_tier"`
	Roles        []Role `json:"roles"` // empty means every clinic role
	Order        int    `json:"order"`
}

// AllowsRole reports whether role may open the screen, tier permitting.
// Admin passes every role restriction.
func (s Screen) AllowsRole(role Role) bool {
	if role == RoleAdmin {
		return true
	}
	if len(s.Roles) == 0 {
		return true
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Catalog holds the plan and screen registry.
type Catalog struct {
	plans   map[Tier]Plan
	screens map[string]Screen
}

// NewCatalog builds a catalog from explicit plan and screen lists.
func NewCatalog(plans []Plan, screens []Screen) *Catalog {
	c := &Catalog{
		plans:   make(map[Tier]Plan, len(plans)),
		screens: make(map[string]Screen, len(screens)),
	}
	for _, p := range plans {
		c.plans[p.Tier] = p
	}
	for _, s := range screens {
		c.screens[s.ID] = s
	}
	return c
}

// Plan returns the plan for a tier.
func (c *Catalog) Plan(t Tier) (Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// Plans returns all plans ordered by tier rank.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier.Rank() < out[j].Tier.Rank() })
	return out
}

// Screen returns the screen with the given id.
func (c *Catalog) Screen(id string) (Screen, bool) {
	s, ok := c.screens[id]
	return s, ok
}

// Screens returns all screens in display order.
func (c *Catalog) Screens() []Screen {
	out := make([]Screen, 0, len(c.screens))
	for _, s := range c.screens {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// DefaultCatalog returns the production plan and screen registry.
func DefaultCatalog() *Catalog {
	plans := []Plan{
		{
			Tier:     TierBasic,
			Name:     "Basic",
			Currency: "INR",
			Prices:   map[Duration]int{DurationSixMonths: 5999, DurationOneYear: 9999},
			Limits:   Limits{MaxDoctors: 2, MaxStaff: 5},
			Features: []string{
				"Patient registration",
				"Vitals recording",
				"Basic prescriptions",
				"Visit history",
			},
		},
		{
			Tier:     TierStandard,
			Name:     "Standard",
			Currency: "INR",
			Prices:   map[Duration]int{DurationSixMonths: 9999, DurationOneYear: 17999},
			Limits:   Limits{MaxDoctors: 5, MaxStaff: 15},
			Features: []string{
				"Everything in Basic",
				"Medical history",
				"Diagnosis coding",
				"Lab orders",
				"Staff management",
			},
		},
		{
			Tier:     TierAdvanced,
			Name:     "Advanced",
			Currency: "INR",
			Prices:   map[Duration]int{DurationSixMonths: 19999, DurationOneYear: 35999},
			Limits:   Limits{MaxDoctors: -1, MaxStaff: -1},
			Features: []string{
				"Everything in Standard",
				"Drug interaction checks",
				"Vitals trend charts",
				"Analytics and reports",
				"Data export",
				"Audit logs",
			},
		},
	}

	screens := []Screen{
		{ID: "emr_dashboard", Name: "EMR Dashboard", Description: "Clinic overview and quick actions", RequiredTier: TierBasic, Order: 1},
		{ID: "patient_registration", Name: "Patient Registration", Description: "Register and manage patient records", RequiredTier: TierBasic, Roles: []Role{RoleDoctor, RoleStaff, RoleReceptionist}, Order: 2},
		{ID: "vitals_recorder", Name: "Vitals Recorder", Description: "Record patient vital signs", RequiredTier: TierBasic, Roles: []Role{RoleDoctor, RoleStaff}, Order: 3},
		{ID: "basic_prescription", Name: "Prescriptions", Description: "Write and print prescriptions", RequiredTier: TierBasic, Roles: []Role{RoleDoctor}, Order: 4},
		{ID: "visit_history", Name: "Visit History", Description: "Browse past patient visits", RequiredTier: TierBasic, Roles: []Role{RoleDoctor, RoleStaff, RoleReceptionist}, Order: 5},
		{ID: "medical_history", Name: "Medical History", Description: "Full longitudinal medical record", RequiredTier: TierStandard, Roles: []Role{RoleDoctor, RoleStaff}, Order: 6},
		{ID: "diagnosis_coding", Name: "Diagnosis Coding", Description: "ICD-coded diagnoses", RequiredTier: TierStandard, Roles: []Role{RoleDoctor}, Order: 7},
		{ID: "lab_orders", Name: "Lab Orders", Description: "Order lab tests and track results", RequiredTier: TierStandard, Roles: []Role{RoleDoctor, RoleStaff}, Order: 8},
		{ID: "staff_management", Name: "Staff Management", Description: "Invite and manage clinic staff", RequiredTier: TierStandard, Roles: []Role{RoleAdmin}, Order: 9},
		{ID: "drug_interactions", Name: "Drug Interactions", Description: "Check prescriptions for interactions", RequiredTier: TierAdvanced, Roles: []Role{RoleDoctor}, Order: 10},
		{ID: "vitals_trends", Name: "Vitals Trends", Description: "Chart vitals over time", RequiredTier: TierAdvanced, Roles: []Role{RoleDoctor, RoleStaff}, Order: 11},
		{ID: "analytics_reports", Name: "Analytics & Reports", Description: "Clinic performance analytics", RequiredTier: TierAdvanced, Roles: []Role{RoleAdmin, RoleDoctor}, Order: 12},
		{ID: "data_export", Name: "Data Export", Description: "Export clinic data", RequiredTier: TierAdvanced, Roles: []Role{RoleAdmin}, Order: 13},
		{ID: "audit_logs", Name: "Audit Logs", Description: "Review access and change history", RequiredTier: TierAdvanced, Roles: []Role{RoleAdmin}, Order: 14},
	}

	return NewCatalog(plans, screens)
}
