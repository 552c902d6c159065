package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{OrderStatusPendingPayment, OrderStatusPendingPickup, true},
		{OrderStatusPendingPayment, OrderStatusCancelled, true},
		{OrderStatusPendingPickup, OrderStatusPickedUp, true},
		{OrderStatusPendingPickup, OrderStatusCancelled, true},
		{OrderStatusPendingPayment, OrderStatusPickedUp, false},
		{OrderStatusPickedUp, OrderStatusCancelled, false},
		{OrderStatusPickedUp, OrderStatusPendingPickup, false},
		{OrderStatusCancelled, OrderStatusPendingPayment, false},
		{OrderStatusCancelled, OrderStatusPickedUp, false},
		{"UNKNOWN", OrderStatusCancelled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, CanTransitionTo(tc.from, tc.to),
			"%s -> %s", tc.from, tc.to)
	}
}

func TestProductHasSize(t *testing.T) {
	p := &Product{Sizes: []string{"S", "M", "L"}}

	assert.True(t, p.HasSize("M"))
	assert.False(t, p.HasSize("XL"))
	assert.False(t, p.HasSize(""))
}

func TestProductTotalStock(t *testing.T) {
	p := &Product{Stock: map[string]int{"S": 2, "M": 0, "L": 7}}
	assert.Equal(t, 9, p.TotalStock())

	assert.Equal(t, 0, (&Product{}).TotalStock())
}

func TestInsufficientStockError(t *testing.T) {
	err := &InsufficientStockError{ProductID: "tee", Size: "L", Requested: 3}

	var target *InsufficientStockError
	assert.True(t, errors.As(error(err), &target))
	assert.Contains(t, err.Error(), "tee")
	assert.Contains(t, err.Error(), "L")
}
