package models

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNotSellable     = errors.New("product not sellable at this event")
	ErrInvalidInput    = errors.New("invalid input")

	// Stale-caller signals, not system failures
	ErrAlreadyFinalized  = errors.New("order already finalized")
	ErrAlreadyRedeemed   = errors.New("pickup credential already redeemed")
	ErrWrongState        = errors.New("order not awaiting pickup")
	ErrCredentialUnknown = errors.New("pickup credential not found")
)

// InsufficientStockError identifies which line of an order could not be
// reserved so the caller can surface it verbatim
type InsufficientStockError struct {
	ProductID string
	Size      string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s size %s (requested %d)", e.ProductID, e.Size, e.Requested)
}
