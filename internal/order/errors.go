package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrProductNotFound         = errors.New("product not found")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrValidation              = errors.New("invalid order")
	ErrInsufficientInventory   = errors.New("insufficient inventory")
	ErrPersistence             = errors.New("order persistence failed")
	ErrPartialBatch            = fmt.Errorf("partial batch write: %w", ErrPersistence)
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

type Outcome int

const (
	OutcomePlaced Outcome = iota
	OutcomeInsufficientInventory
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlaced:
		return "placed"
	case OutcomeInsufficientInventory:
		return "insufficient_inventory"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failed"
	}
}

// OutcomeOf classifies the error returned by a placement.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomePlaced
	case errors.Is(err, ErrInsufficientInventory):
		return OutcomeInsufficientInventory
	case errors.Is(err, ErrValidation):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
