package generic

import (
	"fmt"
	"strings"
)

// =============================================================================
// PERIOD - Inclusive calendar range a payment is declared to cover
// =============================================================================

// Period is the inclusive range [Start, End].
//
// Examples:
//   - Monthly dues for March 2024: 2024-03-01 - 2024-03-31
//   - Q2 dues 2024:                2024-04-01 - 2024-06-30
//   - Annual dues 2024:            2024-01-01 - 2024-12-31
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewPeriod builds a period, rejecting End before Start.
func NewPeriod(start, end Date) (Period, error) {
	p := Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate reports ErrInvalidPeriod for a missing bound or End before Start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("%w: missing bound in %s", ErrInvalidPeriod, p)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Len returns the number of days in the period, both ends included.
func (p Period) Len() int {
	return DaysBetween(p.Start, p.End) + 1
}

// Overlaps returns true if the two periods share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Mergeable returns true if the periods overlap or touch end-to-start, so
// their union is a single unbroken period.
func (p Period) Mergeable(other Period) bool {
	return p.Start.BeforeOrEqual(other.End.AddDays(1)) && other.Start.BeforeOrEqual(p.End.AddDays(1))
}

// Union returns the smallest period spanning both. Only meaningful when
// Mergeable is true.
func (p Period) Union(other Period) Period {
	return Period{Start: MinDate(p.Start, other.Start), End: MaxDate(p.End, other.End)}
}

// Clip restricts p to bounds. ok is false when they do not overlap.
func (p Period) Clip(bounds Period) (Period, bool) {
	if !p.Overlaps(bounds) {
		return Period{}, false
	}
	return Period{Start: MaxDate(p.Start, bounds.Start), End: MinDate(p.End, bounds.End)}, true
}

// NextPeriod returns the period of the same length starting the day after End.
func (p Period) NextPeriod() Period {
	newStart := p.End.AddDays(1)
	return Period{Start: newStart, End: newStart.AddDays(p.Len() - 1)}
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// INTERVAL TYPE - How long one dues payment is meant to cover
// =============================================================================

type IntervalType string

const (
	IntervalMonthly    IntervalType = "monthly"
	IntervalQuarterly  IntervalType = "quarterly"
	IntervalHalfYearly IntervalType = "half_yearly"
	IntervalAnnual     IntervalType = "annual"
)

// IntervalTypes lists the supported interval types, shortest first.
var IntervalTypes = []IntervalType{IntervalMonthly, IntervalQuarterly, IntervalHalfYearly, IntervalAnnual}

// ParseIntervalType accepts the canonical names plus a few spellings seen in
// imported ledgers ("half-yearly", "yearly").
func ParseIntervalType(s string) (IntervalType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return IntervalMonthly, nil
	case "quarterly":
		return IntervalQuarterly, nil
	case "half_yearly", "half-yearly", "halfyearly", "semi_annual":
		return IntervalHalfYearly, nil
	case "annual", "yearly":
		return IntervalAnnual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntervalType, s)
}

// Months returns the number of calendar months one payment covers.
func (it IntervalType) Months() int {
	switch it {
	case IntervalMonthly:
		return 1
	case IntervalQuarterly:
		return 3
	case IntervalHalfYearly:
		return 6
	case IntervalAnnual:
		return 12
	default:
		return 0
	}
}

// Valid reports whether it is one of the supported interval types.
func (it IntervalType) Valid() bool { return it.Months() > 0 }

// PeriodFrom returns the period one payment of this interval covers when it
// starts on start: [start, start + N months - 1 day].
func (it IntervalType) PeriodFrom(start Date) (Period, error) {
	if !it.Valid() {
		return Period{}, fmt.Errorf("%w: %q", ErrUnknownIntervalType, string(it))
	}
	return Period{Start: start, End: start.AddMonths(it.Months()).AddDays(-1)}, nil
}
