package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFee(t *testing.T) {
	cases := []struct {
		amount, pct, fee, net string
	}{
		{"100.00", "1.0", "1.00", "99.00"},
		{"200.00", "1.0", "2.00", "198.00"},
		{"0.50", "1.0", "0.01", "0.49"}, // 0.005 rounds half-up
		{"123.45", "2.5", "3.09", "120.36"},
		{"99.99", "0", "0", "99.99"},
	}
	for _, c := range cases {
		fee, net := ComputeFee(dec(c.amount), dec(c.pct))
		assert.True(t, fee.Equal(dec(c.fee)), "%s@%s fee: got %s", c.amount, c.pct, fee)
		assert.True(t, net.Equal(dec(c.net)), "%s@%s net: got %s", c.amount, c.pct, net)
		assert.True(t, fee.Add(net).Equal(dec(c.amount)))
	}
}

func TestReceiptFor(t *testing.T) {
	assert.Equal(t, "ms_3f2a9c1b", receiptFor("3f2a9c1b-77de-4e0a-9b1c-0f5e2d6a8b90"))
	assert.Equal(t, "ms_abc", receiptFor("abc"))
}
