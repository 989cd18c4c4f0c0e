package gateway

import (
	"context"
	"errors"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

type Razorpay struct {
	client *razorpay.Client
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret)}
}

func (g *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	body, err := g.client.Order.Create(map[string]interface{}{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return Order{}, fmt.Errorf("razorpay create order: %w", err)
	}
	return parseOrder(body)
}

func parseOrder(body map[string]interface{}) (Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return Order{}, errors.New("razorpay create order: response has no id")
	}
	o := Order{ID: id}
	// JSON numbers decode as float64
	if amt, ok := body["amount"].(float64); ok {
		o.AmountMinor = int64(amt)
	}
	o.Currency, _ = body["currency"].(string)
	o.Status, _ = body["status"].(string)
	return o, nil
}
