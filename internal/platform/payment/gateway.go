// Package payment defines the payment gateway contract used for subscription
// purchases and a Razorpay-compatible HTTP client implementing it. Amounts are
// in the currency's smallest unit (paise for INR).
package payment

import "context"

// OrderRequest describes a payment order to be created at the gateway.
type OrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Order is the gateway's record of a created order.
type Order struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// Gateway creates payment orders at an external payment provider. The call is
// the engine's only network hop; implementations must enforce a timeout so a
// slow provider cannot block a request indefinitely.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
}
