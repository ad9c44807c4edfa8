package main

import (
	"errors"
	"testing"

	"github.com/clinicore/clinicore/internal/domain/clinic"
	"github.com/clinicore/clinicore/internal/domain/subscription"
)

func TestMapClinicErr(t *testing.T) {
	if got := mapClinicErr(nil); got != nil {
		t.Errorf("nil must map to nil, got %v", got)
	}
	if got := mapClinicErr(clinic.ErrNotFound); !errors.Is(got, subscription.ErrClinicNotFound) {
		t.Errorf("clinic.ErrNotFound must map to subscription.ErrClinicNotFound, got %v", got)
	}
	other := errors.New("connection refused")
	if got := mapClinicErr(other); got != other {
		t.Errorf("unrelated errors must pass through, got %v", got)
	}
}
