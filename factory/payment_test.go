package factory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/society/dues-engine/factory"
	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
)

func newFactory() *factory.PaymentFactory {
	f := factory.NewPaymentFactory()
	f.Now = func() time.Time { return time.Date(2025, 1, 14, 20, 0, 0, 0, time.UTC) }
	f.NewID = func() string { return "pay-1" }
	return f
}

func TestBuild_DerivesPeriodEndFromInterval(t *testing.T) {
	// GIVEN: A quarterly payment with only the period start
	// WHEN: Building the payment
	// THEN: The period covers the whole quarter

	p, err := newFactory().Build(factory.PaymentJSON{
		UserID:       "A-101",
		Amount:       "4500",
		Method:       "UPI_QR",
		IntervalType: "quarterly",
		PeriodStart:  "2024-01-01",
		PaymentDate:  "2024-01-05",
	})
	require.NoError(t, err)

	require.NotNil(t, p.Period)
	assert.Equal(t, generic.MustParseDate("2024-01-01"), p.Period.Start)
	assert.Equal(t, generic.MustParseDate("2024-03-31"), p.Period.End)
	assert.Equal(t, generic.IntervalQuarterly, p.IntervalType)
	assert.Equal(t, maintenance.MethodUPIQR, p.Method)
	assert.Equal(t, maintenance.MaintenanceCategoryID, p.CategoryID)
	assert.Equal(t, "pay-1", p.ID)
	assert.True(t, decimal.NewFromInt(4500).Equal(p.Amount))
}

func TestBuild_ExplicitBoundsWin(t *testing.T) {
	p, err := newFactory().Build(factory.PaymentJSON{
		UserID:       "A-101",
		Amount:       "1500.50",
		IntervalType: "annual",
		PeriodStart:  "2024-04-01",
		PeriodEnd:    "2024-04-30",
	})
	require.NoError(t, err)
	assert.Equal(t, generic.MustParseDate("2024-04-30"), p.Period.End)
}

func TestBuild_UntaggedPaymentIsAllowed(t *testing.T) {
	// GIVEN: No period at all
	// THEN: Payment is accepted without a period, dated today in the society zone

	f := newFactory()
	f.Location = time.FixedZone("IST", 5*3600+1800)

	p, err := f.Build(factory.PaymentJSON{UserID: "A-101", Amount: "200"})
	require.NoError(t, err)
	assert.Nil(t, p.Period)
	assert.Equal(t, maintenance.MethodCash, p.Method)
	assert.Equal(t, generic.MustParseDate("2025-01-15"), p.PaymentDate, "20:00 UTC is already the 15th in IST")
}

func TestBuild_Rejections(t *testing.T) {
	tests := []struct {
		name string
		pj   factory.PaymentJSON
		want error
	}{
		{
			name: "missing user",
			pj:   factory.PaymentJSON{Amount: "100"},
			want: generic.ErrMissingUserID,
		},
		{
			name: "zero amount",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "0"},
			want: generic.ErrInvalidAmount,
		},
		{
			name: "garbage amount",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "lots"},
			want: generic.ErrInvalidAmount,
		},
		{
			name: "inverted period",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", PeriodStart: "2024-12-31", PeriodEnd: "2024-10-01"},
			want: generic.ErrInvalidPeriod,
		},
		{
			name: "end without start",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", PeriodEnd: "2024-10-01"},
			want: generic.ErrInvalidPeriod,
		},
		{
			name: "start without end or interval",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", PeriodStart: "2024-10-01"},
			want: generic.ErrInvalidPeriod,
		},
		{
			name: "unknown interval",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", IntervalType: "fortnightly"},
			want: generic.ErrUnknownIntervalType,
		},
		{
			name: "unknown method",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", Method: "barter"},
			want: generic.ErrInvalidMethod,
		},
		{
			name: "bad payment date",
			pj:   factory.PaymentJSON{UserID: "u", Amount: "1", PaymentDate: "15/01/2025"},
			want: generic.ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFactory().Build(tt.pj)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, generic.IsClientError(err))
		})
	}
}

func TestParse_RoundTripsThroughJSON(t *testing.T) {
	f := newFactory()

	p, err := f.Parse([]byte(factory.PresetJSON(factory.MaintenancePayment("B-201", generic.IntervalHalfYearly, "2024-07-01"))))
	require.NoError(t, err)
	assert.Equal(t, generic.MustParseDate("2024-12-31"), p.Period.End)
	assert.True(t, decimal.NewFromInt(9000).Equal(p.Amount))

	pj := f.ToJSON(p)
	assert.Equal(t, "2024-07-01", pj.PeriodStart)
	assert.Equal(t, "2024-12-31", pj.PeriodEnd)
	assert.Equal(t, "9000.00", pj.Amount)

	_, err = f.Parse([]byte("{not json"))
	assert.Error(t, err)
}

func TestMaintenanceSeries_IsContiguous(t *testing.T) {
	series := factory.MaintenanceSeries("A-101", generic.IntervalMonthly, "2024-11-01", 3)
	require.Len(t, series, 3)
	assert.Equal(t, "2024-11-01", series[0].PeriodStart)
	assert.Equal(t, "2024-12-01", series[1].PeriodStart)
	assert.Equal(t, "2025-01-01", series[2].PeriodStart)
}
