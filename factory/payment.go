/*
Package factory provides JSON to Go payment conversion.

PURPOSE:
  Converts JSON payment submissions (from the collection desk, the UPI QR
  reconciliation import or demo scenarios) into maintenance.Payment values.
  All input validation for the ledger lives here; the store accepts what
  it is given.

JSON SCHEMA:
  {
    "user_id": "A-101",
    "category_id": 1,
    "amount": "4500.00",
    "method": "upi_qr",
    "interval_type": "quarterly",
    "period_start": "2024-01-01",
    "period_end": "2024-03-31",
    "payment_date": "2024-01-05",
    "reference": "UPI/412345678901",
    "idempotency_key": "desk-2024-01-05-17"
  }

PERIOD RULES:
  - Both bounds given: must satisfy start <= end.
  - Only period_start given: period_end is derived from interval_type
    (quarterly from 2024-01-01 covers 2024-01-01..2024-03-31).
  - Only period_end given, or start without interval_type: rejected.
  - Neither given: an untagged payment. Kept in the ledger, never counts
    towards coverage.

USAGE:
  f := factory.NewPaymentFactory()
  payment, err := f.Parse(body)

SEE ALSO:
  - maintenance/payment.go: Payment type definition
  - generic/period.go: IntervalType.PeriodFrom
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PaymentJSON is the JSON representation of a payment.
type PaymentJSON struct {
	ID             string `json:"id,omitempty"`
	UserID         string `json:"user_id" validate:"required"`
	CategoryID     int64  `json:"category_id,omitempty"`
	Amount         string `json:"amount" validate:"required"`
	Method         string `json:"method,omitempty"`
	IntervalType   string `json:"interval_type,omitempty"`
	PeriodStart    string `json:"period_start,omitempty"`
	PeriodEnd      string `json:"period_end,omitempty"`
	PaymentDate    string `json:"payment_date,omitempty"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// PaymentFactory creates payments from JSON.
type PaymentFactory struct {
	// Now supplies the default payment date. Defaults to time.Now.
	Now func() time.Time
	// Location is the society's timezone for the default payment date.
	Location *time.Location
	// NewID generates payment IDs. Defaults to uuid.NewString.
	NewID func() string
}

// NewPaymentFactory creates a new payment factory.
func NewPaymentFactory() *PaymentFactory {
	return &PaymentFactory{
		Now:      time.Now,
		Location: time.UTC,
		NewID:    uuid.NewString,
	}
}

// Parse parses a JSON payment body.
func (f *PaymentFactory) Parse(body []byte) (maintenance.Payment, error) {
	var pj PaymentJSON
	if err := json.Unmarshal(body, &pj); err != nil {
		return maintenance.Payment{}, fmt.Errorf("failed to parse payment JSON: %w", err)
	}
	return f.Build(pj)
}

// Build validates pj and returns the ledger entry.
func (f *PaymentFactory) Build(pj PaymentJSON) (maintenance.Payment, error) {
	userID := strings.TrimSpace(pj.UserID)
	if userID == "" {
		return maintenance.Payment{}, generic.ErrMissingUserID
	}

	amount, err := parseAmount(pj.Amount)
	if err != nil {
		return maintenance.Payment{}, err
	}

	method, err := parseMethod(pj.Method)
	if err != nil {
		return maintenance.Payment{}, err
	}

	var interval generic.IntervalType
	if pj.IntervalType != "" {
		if interval, err = generic.ParseIntervalType(pj.IntervalType); err != nil {
			return maintenance.Payment{}, err
		}
	}

	period, err := parsePeriod(pj.PeriodStart, pj.PeriodEnd, interval)
	if err != nil {
		return maintenance.Payment{}, err
	}

	paymentDate, err := f.paymentDate(pj.PaymentDate)
	if err != nil {
		return maintenance.Payment{}, err
	}

	categoryID := pj.CategoryID
	if categoryID == 0 {
		categoryID = maintenance.MaintenanceCategoryID
	}

	id := pj.ID
	if id == "" {
		id = f.newID()
	}

	return maintenance.Payment{
		ID:             id,
		UserID:         maintenance.UserID(userID),
		CategoryID:     categoryID,
		Amount:         amount,
		Method:         method,
		IntervalType:   interval,
		Period:         period,
		PaymentDate:    paymentDate,
		Reference:      pj.Reference,
		IdempotencyKey: pj.IdempotencyKey,
	}, nil
}

// ToJSON converts a payment back to its JSON form.
func (f *PaymentFactory) ToJSON(p maintenance.Payment) PaymentJSON {
	pj := PaymentJSON{
		ID:             p.ID,
		UserID:         string(p.UserID),
		CategoryID:     p.CategoryID,
		Amount:         p.Amount.StringFixed(2),
		Method:         string(p.Method),
		IntervalType:   string(p.IntervalType),
		PaymentDate:    p.PaymentDate.String(),
		Reference:      p.Reference,
		IdempotencyKey: p.IdempotencyKey,
	}
	if p.Period != nil {
		pj.PeriodStart = p.Period.Start.String()
		pj.PeriodEnd = p.Period.End.String()
	}
	return pj
}

func (f *PaymentFactory) paymentDate(s string) (generic.Date, error) {
	if s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			return generic.Date{}, fmt.Errorf("%w: payment_date: %v", generic.ErrInvalidDate, err)
		}
		return d, nil
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return generic.DateOf(now().In(loc)), nil
}

func (f *PaymentFactory) newID() string {
	if f.NewID != nil {
		return f.NewID()
	}
	return uuid.NewString()
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", generic.ErrInvalidAmount, s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive, got %s", generic.ErrInvalidAmount, amount)
	}
	return amount, nil
}

func parseMethod(s string) (maintenance.Method, error) {
	switch m := maintenance.Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return maintenance.MethodCash, nil
	case maintenance.MethodCash, maintenance.MethodUPIQR, maintenance.MethodBankTransfer, maintenance.MethodCheque:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", generic.ErrInvalidMethod, s)
	}
}

func parsePeriod(start, end string, interval generic.IntervalType) (*generic.Period, error) {
	switch {
	case start == "" && end == "":
		return nil, nil
	case start == "":
		return nil, fmt.Errorf("%w: period_end without period_start", generic.ErrInvalidPeriod)
	}

	s, err := generic.ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("%w: period_start: %v", generic.ErrInvalidPeriod, err)
	}

	if end == "" {
		if interval == "" {
			return nil, fmt.Errorf("%w: period_start without period_end needs interval_type", generic.ErrInvalidPeriod)
		}
		p, err := interval.PeriodFrom(s)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}

	e, err := generic.ParseDate(end)
	if err != nil {
		return nil, fmt.Errorf("%w: period_end: %v", generic.ErrInvalidPeriod, err)
	}
	p, err := generic.NewPeriod(s, e)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
