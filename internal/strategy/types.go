package strategy

import "github.com/shopspring/decimal"

type State string

type Event string

const (
	StateIdle          State = "IDLE"
	StateAwaitingFills State = "AWAITING_FILLS"
	StateFilled        State = "FILLED"
)

const (
	EventSubmitted Event = "SUBMITTED"
	EventFilled    Event = "FILLED"
	EventReset     Event = "RESET"
	EventAborted   Event = "ABORTED"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Quote is the top-of-book bid observed on one market.
type Quote struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// FillEvent is one execution report for a spot order.
type FillEvent struct {
	OrderID             string
	Status              OrderStatus
	LastFilledQty       decimal.Decimal
	CumulativeFilledQty decimal.Decimal
	OrderQty            decimal.Decimal
}

// RemainingQty is the quantity still outstanding on the order.
func (f FillEvent) RemainingQty() decimal.Decimal {
	remains := f.OrderQty.Sub(f.CumulativeFilledQty)
	if remains.IsNegative() {
		return decimal.Zero
	}
	return remains
}

type PendingOrder struct {
	OrderID       string
	ClientOrderID string
	Size          decimal.Decimal
	Price         decimal.Decimal
}
