package validate

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect(t *testing.T) {
	assert.NoError(t, Collect(nil, Required("title", "x")))

	err := Collect(
		Required("title", "  "),
		UUID("contract_id", "nope"),
		Money("amount", decimal.RequireFromString("1.005")),
		OneOf("status", "paid", "pending", "funded"),
	)
	require.Error(t, err)
	var errs Errs
	require.True(t, errors.As(err, &errs))
	assert.Len(t, errs, 4)
	assert.Equal(t, "title", errs[0].Field)
	assert.Contains(t, err.Error(), "contract_id: must be a uuid")
}

func TestMoney(t *testing.T) {
	assert.Nil(t, Money("amount", decimal.RequireFromString("200.50")))
	assert.NotNil(t, Money("amount", decimal.Zero))
	assert.NotNil(t, Money("amount", decimal.NewFromInt(-5)))
}
