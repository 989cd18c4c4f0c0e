package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes and checks gateway HMAC-SHA256 signatures. Checkout
// callbacks sign "order_id|payment_id" with the key secret; webhooks sign
// the raw request body with the webhook secret.
type Signer struct {
	keySecret     []byte
	webhookSecret []byte
}

func NewSigner(keySecret, webhookSecret string) *Signer {
	return &Signer{keySecret: []byte(keySecret), webhookSecret: []byte(webhookSecret)}
}

func (s *Signer) Sign(orderID, paymentID string) string {
	return sum(s.keySecret, []byte(orderID+"|"+paymentID))
}

func (s *Signer) Verify(orderID, paymentID, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(orderID, paymentID)), []byte(signature))
}

// WebhookEnabled reports whether webhook bodies are signature-checked.
func (s *Signer) WebhookEnabled() bool { return len(s.webhookSecret) > 0 }

func (s *Signer) SignWebhook(body []byte) string { return sum(s.webhookSecret, body) }

func (s *Signer) VerifyWebhook(body []byte, signature string) bool {
	if !s.WebhookEnabled() {
		return true
	}
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.SignWebhook(body)), []byte(signature))
}

func sum(key, msg []byte) string {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return hex.EncodeToString(m.Sum(nil))
}
