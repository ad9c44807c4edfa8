// Package clinic manages clinic records and their EMR enablement state.
package clinic

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("clinic not found")
	ErrDuplicateName = errors.New("a clinic with this name already exists")
)

// Clinic is a registered clinic. EMREnabled, EMRPlan, and EMRExpiresAt are
// denormalized from the clinic's subscription so access checks and listings
// do not join the subscription table.
type Clinic struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	Address      string     `json:"address,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Email        string     `json:"email,omitempty"`
	EMREnabled   bool       `json:"emr_enabled"`
	EMRPlan      string     `json:"emr_plan,omitempty"`
	EMRExpiresAt *time.Time `json:"emr_expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EMRStatus is the clinic's current EMR enablement block.
type EMRStatus struct {
	Enabled   bool       `json:"enabled"`
	Plan      string     `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// EMRStatus returns the clinic's EMR block.
func (c *Clinic) GetEMRStatus() EMRStatus {
	return EMRStatus{Enabled: c.EMREnabled, Plan: c.EMRPlan, ExpiresAt: c.EMRExpiresAt}
}
