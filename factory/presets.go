package factory

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/society/dues-engine/generic"
)

// =============================================================================
// PRESET PAYMENTS
// =============================================================================

// MonthlyRate is the demo society's maintenance charge per month.
var MonthlyRate = decimal.NewFromInt(1500)

// RateFor returns the charge for one payment of the given interval.
func RateFor(interval generic.IntervalType) decimal.Decimal {
	return MonthlyRate.Mul(decimal.NewFromInt(int64(interval.Months())))
}

// MaintenancePayment returns a maintenance payment for one interval
// starting on start, paid on the start date. The period end is left for
// the factory to derive.
func MaintenancePayment(userID string, interval generic.IntervalType, start string) PaymentJSON {
	return PaymentJSON{
		UserID:       userID,
		Amount:       RateFor(interval).StringFixed(2),
		Method:       "upi_qr",
		IntervalType: string(interval),
		PeriodStart:  start,
		PaymentDate:  start,
	}
}

// MaintenanceSeries returns count consecutive payments of the given
// interval, the first one starting on firstStart.
func MaintenanceSeries(userID string, interval generic.IntervalType, firstStart string, count int) []PaymentJSON {
	start := generic.MustParseDate(firstStart)
	out := make([]PaymentJSON, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, MaintenancePayment(userID, interval, start.String()))
		start = start.AddMonths(interval.Months())
	}
	return out
}

// UntaggedPayment returns a payment that isn't tagged to any period, such
// as a lump sum collected at the desk before the period was recorded.
func UntaggedPayment(userID, paymentDate string, amount decimal.Decimal) PaymentJSON {
	return PaymentJSON{
		UserID:      userID,
		Amount:      amount.StringFixed(2),
		Method:      "cash",
		PaymentDate: paymentDate,
	}
}

// PresetJSON renders a preset as the body POST /api/payments accepts.
func PresetJSON(pj PaymentJSON) string {
	b, _ := json.Marshal(pj)
	return string(b)
}
