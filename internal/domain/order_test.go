package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderJSONCarriesFillPercentage(t *testing.T) {
	o := Order{Handle: "h-1", ID: 7, RequestedQuantity: 200, FilledQuantity: 50, RemainingQuantity: 150, Status: OrderStatusPartiallyFilled}

	data, err := json.Marshal(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.InDelta(t, 25.0, got["fill_percentage"], 1e-9)
	assert.Equal(t, "h-1", got["handle"])
	assert.Equal(t, "PARTIALLY_FILLED", got["status"])

	var back Order
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, o.FilledQuantity, back.FilledQuantity)
	assert.Equal(t, o.Status, back.Status)
}

func TestFillPercentageWithoutQuantity(t *testing.T) {
	assert.Zero(t, Order{}.FillPercentage())
}
