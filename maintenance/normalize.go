package maintenance

import (
	"sort"

	"github.com/society/dues-engine/generic"
)

// =============================================================================
// PERIOD NORMALIZER
// =============================================================================

// NormalizeMember turns one member's payment records into merged coverage.
//
// Records without both bounds carry no coverage and are dropped. Records
// whose start is after their end are dropped too, never swapped. Both show
// up in the returned diagnostics. What remains is sorted by start, end and
// payment date, then merged so overlapping and back-to-back periods become
// one block.
func NormalizeMember(records []PaymentPeriod) (generic.Coverage, Diagnostics) {
	var diags Diagnostics
	valid := make([]PaymentPeriod, 0, len(records))

	for _, r := range records {
		switch {
		case r.PeriodStart == nil || r.PeriodEnd == nil:
			diags.add(diagnosticFor(r, ReasonMissingPeriod))
		case r.PeriodStart.After(*r.PeriodEnd):
			diags.add(diagnosticFor(r, ReasonInvertedPeriod))
		default:
			valid = append(valid, r)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if c := a.PeriodStart.Compare(*b.PeriodStart); c != 0 {
			return c < 0
		}
		if c := a.PeriodEnd.Compare(*b.PeriodEnd); c != 0 {
			return c < 0
		}
		return a.PaymentDate.Before(b.PaymentDate)
	})

	periods := make([]generic.Period, len(valid))
	for i, r := range valid {
		periods[i] = generic.Period{Start: *r.PeriodStart, End: *r.PeriodEnd}
	}
	return generic.MergePeriods(periods), diags
}

func diagnosticFor(r PaymentPeriod, reason DiagnosticReason) Diagnostic {
	return Diagnostic{
		PaymentID:   r.PaymentID,
		UserID:      r.UserID,
		Reason:      reason,
		PaymentDate: r.PaymentDate,
		PeriodStart: r.PeriodStart,
		PeriodEnd:   r.PeriodEnd,
	}
}
