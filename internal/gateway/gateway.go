// Package gateway is the boundary to the payment gateway: order creation and
// the HMAC signatures it attaches to checkout callbacks and webhooks.
package gateway

import "context"

type OrderRequest struct {
	AmountMinor int64 // smallest currency unit, e.g. paise
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type Order struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}
