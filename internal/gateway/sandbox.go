package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sandbox issues order ids locally. It stands in for the real gateway when no
// credentials are configured and records every request it receives.
type Sandbox struct {
	mu       sync.Mutex
	requests []OrderRequest
	Err      error
}

func NewSandbox() *Sandbox { return &Sandbox{} }

func (g *Sandbox) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return Order{}, g.Err
	}
	g.requests = append(g.requests, req)
	id := "order_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
	return Order{ID: id, AmountMinor: req.AmountMinor, Currency: req.Currency, Status: "created"}, nil
}

func (g *Sandbox) Requests() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]OrderRequest(nil), g.requests...)
}
