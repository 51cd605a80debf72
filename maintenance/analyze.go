package maintenance

import (
	"github.com/society/dues-engine/generic"
)

// =============================================================================
// COVERAGE ANALYZER
// =============================================================================

// Analysis is the outcome of walking one member's coverage.
type Analysis struct {
	Due            bool
	Gaps           []generic.Period
	CoveredThrough *generic.Date

	// Pending holds uncovered days that opened in the reference month. The
	// month's maintenance is payable until it ends, so they are not a gap yet.
	Pending []generic.Period
}

// BillingMonthStart returns the first day of the month referenceDate falls
// in. Uncovered days from here on are pending, not overdue.
func BillingMonthStart(referenceDate generic.Date) generic.Date {
	return generic.StartOfMonth(referenceDate.Year(), referenceDate.Month())
}

// AnalyzeCoverage checks that cov covers every day from obligationStart
// through referenceDate.
//
// Empty coverage is never due: without a valid period there is no
// obligation start to anchor on. A gap lying entirely after referenceDate
// is not reported, so a prepayment far in the future never makes a member
// due for dates that haven't happened yet. A gap that opens inside the
// reference month is pending; one that opened earlier is reported in full,
// up to referenceDate.
func AnalyzeCoverage(cov generic.Coverage, obligationStart, referenceDate generic.Date) Analysis {
	if cov.IsEmpty() {
		return Analysis{}
	}

	var a Analysis
	if end, ok := cov.CoveredThrough(obligationStart); ok {
		a.CoveredThrough = end.Ptr()
	}

	monthStart := BillingMonthStart(referenceDate)
	for _, gap := range cov.Gaps(obligationStart, referenceDate) {
		if gap.Start.Before(monthStart) {
			a.Gaps = append(a.Gaps, gap)
		} else {
			a.Pending = append(a.Pending, gap)
		}
	}
	a.Due = len(a.Gaps) > 0
	return a
}

// analyzeMember runs the normalizer and analyzer for one member group.
func analyzeMember(g memberGroup, referenceDate generic.Date) MemberStatus {
	cov, diags := NormalizeMember(g.records)

	ms := MemberStatus{
		Member:       g.member,
		ValidRecords: len(g.records) - diags.Total(),
		Diagnostics:  diags,
	}

	obligationStart, ok := cov.Start()
	if !ok {
		return ms
	}
	ms.ObligationStart = obligationStart.Ptr()

	a := AnalyzeCoverage(cov, obligationStart, referenceDate)
	ms.Due = a.Due
	ms.Gaps = a.Gaps
	ms.Pending = a.Pending
	ms.CoveredThrough = a.CoveredThrough
	return ms
}
