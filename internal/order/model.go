package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeDineIn   Type = "dine_in"
	TypeTakeout  Type = "takeout"
	TypeDelivery Type = "delivery"
)

func (t Type) String() string {
	return string(t)
}

func (t Type) Valid() bool {
	switch t {
	case TypeDineIn, TypeTakeout, TypeDelivery:
		return true
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) String() string {
	return string(p)
}

func (p PaymentStatus) Valid() bool {
	_, ok := allowedPaymentTransitions[p]
	return ok
}

type OrderItem struct {
	ID        int64           `json:"order_item_id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price_at_time"` // snapshot of the menu price when ordered
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            int64           `json:"order_id"`
	CustomerID    int64           `json:"customer_id"`
	CreatedAt     time.Time       `json:"order_datetime"`
	Type          Type            `json:"order_type"`
	Status        Status          `json:"order_status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItem     `json:"items"`
	EmployeeIDs   []int64         `json:"employee_ids"`
}

// Total is the sum of quantity times unit price over all items.
// TotalAmount is stored for reporting only and is never read back as authoritative.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// ResponsibleEmployee returns the employee every inventory deduction of the
// order is attributed to: the first assigned employee. Zero means none.
func ResponsibleEmployee(o *Order) int64 {
	if o == nil || len(o.EmployeeIDs) == 0 {
		return 0
	}
	return o.EmployeeIDs[0]
}
