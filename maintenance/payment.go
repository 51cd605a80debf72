package maintenance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/society/dues-engine/generic"
)

// =============================================================================
// PAYMENT LEDGER RECORDS
// =============================================================================

// MaintenanceCategoryID is the category periodic society dues are booked
// under. It is seeded by the store.
const MaintenanceCategoryID int64 = 1

// Category groups payments (maintenance, parking, sinking fund, ...).
type Category struct {
	ID        int64
	Name      string
	Recurring bool
}

// Method is how the money was received. Informational only.
type Method string

const (
	MethodCash         Method = "cash"
	MethodUPIQR        Method = "upi_qr"
	MethodBankTransfer Method = "bank_transfer"
	MethodCheque       Method = "cheque"
)

// Payment is one entry in the society payment ledger.
type Payment struct {
	ID             string
	UserID         UserID
	CategoryID     int64
	Amount         decimal.Decimal
	Method         Method
	IntervalType   generic.IntervalType // empty for one-off payments
	Period         *generic.Period      // nil when the payment isn't tagged to a period
	PaymentDate    generic.Date
	Reference      string
	IdempotencyKey string
	CreatedAt      time.Time
}

// PeriodRecord projects the payment into the calculator's input shape.
func (p Payment) PeriodRecord(m Member) PaymentPeriod {
	pp := PaymentPeriod{
		UserID:       m.UserID,
		UserName:     m.UserName,
		HouseNumber:  m.HouseNumber,
		PaymentDate:  p.PaymentDate,
		CategoryID:   p.CategoryID,
		PaymentID:    p.ID,
		IntervalType: p.IntervalType,
	}
	if p.Period != nil {
		pp.PeriodStart = p.Period.Start.Ptr()
		pp.PeriodEnd = p.Period.End.Ptr()
	}
	return pp
}

// TotalCollected sums payment amounts.
func TotalCollected(payments []Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}
