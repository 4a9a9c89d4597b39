package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrIngredientNotFound = errors.New("ingredient not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidAdjustment  = errors.New("invalid stock adjustment")
	ErrUnknownEmployee    = errors.New("unknown employee")
)

type Reason string

const (
	ReasonUsage      Reason = "Usage"
	ReasonRestock    Reason = "Restock"
	ReasonWaste      Reason = "Waste"
	ReasonCorrection Reason = "Correction"
)

func (r Reason) String() string {
	return string(r)
}

func (r Reason) Valid() bool {
	switch r {
	case ReasonUsage, ReasonRestock, ReasonWaste, ReasonCorrection:
		return true
	}
	return false
}

type Ingredient struct {
	ID              int64           `json:"ingredient_id"`
	Name            string          `json:"name"`
	QuantityInStock decimal.Decimal `json:"quantity_in_stock"`
	Unit            string          `json:"unit"`
}

// Adjustment is a signed stock change attributed to an employee.
type Adjustment struct {
	IngredientID int64
	Delta        decimal.Decimal
	EmployeeID   int64
	Reason       Reason
	Note         string
}

// Transaction is the append-only audit record written for every applied Adjustment,
// read back through Ledger.Transactions.
type Transaction struct {
	ID             uuid.UUID       `json:"transaction_id"`
	IngredientID   int64           `json:"ingredient_id"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	EmployeeID     int64           `json:"employee_id"`
	Reason         Reason          `json:"reason"`
	Note           string          `json:"note"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Shortfall describes the first ingredient that cannot cover a requirement.
type Shortfall struct {
	IngredientID int64
	Required     decimal.Decimal
	Available    decimal.Decimal
	Missing      bool
}

// Validate checks the adjustment shape and that the sign of Delta matches the
// reason: Restock adds stock, Usage and Waste remove it, Correction goes either way.
func (a Adjustment) Validate() error {
	switch {
	case a.IngredientID <= 0:
		return errors.Join(ErrInvalidAdjustment, errors.New("ingredient id must be positive"))
	case a.Delta.IsZero():
		return errors.Join(ErrInvalidAdjustment, errors.New("delta must be non-zero"))
	case a.EmployeeID <= 0:
		return errors.Join(ErrInvalidAdjustment, errors.New("employee id must be positive"))
	case !a.Reason.Valid():
		return errors.Join(ErrInvalidAdjustment, errors.New("unknown reason "+string(a.Reason)))
	}

	switch a.Reason {
	case ReasonRestock:
		if !a.Delta.IsPositive() {
			return errors.Join(ErrInvalidAdjustment, fmt.Errorf("restock delta must be positive, got %s", a.Delta))
		}
	case ReasonUsage, ReasonWaste:
		if !a.Delta.IsNegative() {
			return errors.Join(ErrInvalidAdjustment, fmt.Errorf("%s delta must be negative, got %s", a.Reason, a.Delta))
		}
	}
	return nil
}
