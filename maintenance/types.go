// Package maintenance implements the society dues domain on top of the
// generic calendar engine: payment periods in, members in arrears out.
package maintenance

import (
	"github.com/society/dues-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string

// =============================================================================
// INPUT - One record per historical payment
// =============================================================================

// PaymentPeriod is a payment as the calculator sees it. The caller filters
// records to one category before handing them over; CategoryID is carried
// along but never interpreted here.
type PaymentPeriod struct {
	UserID      UserID
	UserName    string // display only
	HouseNumber string // display only

	// Inclusive range the payment is declared to cover. Either bound may be
	// nil for ad hoc payments that were never tagged to a period.
	PeriodStart *generic.Date
	PeriodEnd   *generic.Date

	// When the money actually arrived. Tie-breaker and diagnostics only,
	// never a substitute for the period.
	PaymentDate generic.Date

	CategoryID   int64
	PaymentID    string
	IntervalType generic.IntervalType // informational
}

// Member is the identity carried through to the output.
type Member struct {
	UserID      UserID
	UserName    string
	HouseNumber string
}

func (pp PaymentPeriod) member() Member {
	return Member{UserID: pp.UserID, UserName: pp.UserName, HouseNumber: pp.HouseNumber}
}

// =============================================================================
// DIAGNOSTICS - Data-quality problems, counted not raised
// =============================================================================

type DiagnosticReason string

const (
	ReasonMissingPeriod  DiagnosticReason = "missing_period"
	ReasonInvertedPeriod DiagnosticReason = "inverted_period"
)

// Diagnostic describes one record the normalizer excluded.
type Diagnostic struct {
	PaymentID   string
	UserID      UserID
	Reason      DiagnosticReason
	PaymentDate generic.Date
	PeriodStart *generic.Date
	PeriodEnd   *generic.Date
}

// Diagnostics summarizes excluded records.
type Diagnostics struct {
	MissingPeriod  int
	InvertedPeriod int
	Records        []Diagnostic
}

func (d *Diagnostics) add(diag Diagnostic) {
	switch diag.Reason {
	case ReasonMissingPeriod:
		d.MissingPeriod++
	case ReasonInvertedPeriod:
		d.InvertedPeriod++
	}
	d.Records = append(d.Records, diag)
}

func (d *Diagnostics) merge(other Diagnostics) {
	d.MissingPeriod += other.MissingPeriod
	d.InvertedPeriod += other.InvertedPeriod
	d.Records = append(d.Records, other.Records...)
}

// Total returns the number of excluded records.
func (d Diagnostics) Total() int { return d.MissingPeriod + d.InvertedPeriod }

// =============================================================================
// OUTPUT
// =============================================================================

// MemberStatus is the per-member outcome of one calculation.
type MemberStatus struct {
	Member
	Due  bool
	Gaps []generic.Period

	// Uncovered days in the reference month, payable until it ends.
	Pending []generic.Period

	// Earliest valid period start. Nil when the member has no valid period,
	// in which case Due is always false.
	ObligationStart *generic.Date

	// Last day of unbroken coverage starting at ObligationStart.
	CoveredThrough *generic.Date

	ValidRecords int
	Diagnostics  Diagnostics
}

// HasObligation reports whether any valid period anchors the member.
func (ms MemberStatus) HasObligation() bool { return ms.ObligationStart != nil }

// DueResult is the outcome of one ComputeDue call.
type DueResult struct {
	ReferenceDate generic.Date

	// Members with at least one gap, in order of first appearance in the
	// input.
	UsersWithDue []Member

	// Every distinct member in the input, same order.
	Members []MemberStatus

	// Totals across all members.
	Diagnostics Diagnostics

	byID map[UserID]int // position in Members
}

func (r *DueResult) MemberCount() int  { return len(r.Members) }
func (r *DueResult) OverdueCount() int { return len(r.UsersWithDue) }

// PaidCount is the number of members in the input who are not due.
func (r *DueResult) PaidCount() int { return len(r.Members) - len(r.UsersWithDue) }

// Status returns the status of one member, if present in the input.
func (r *DueResult) Status(id UserID) (MemberStatus, bool) {
	if r.byID != nil {
		i, ok := r.byID[id]
		if !ok {
			return MemberStatus{}, false
		}
		return r.Members[i], true
	}
	for _, ms := range r.Members {
		if ms.UserID == id {
			return ms, true
		}
	}
	return MemberStatus{}, false
}

// IsDue reports whether the member is in UsersWithDue.
func (r *DueResult) IsDue(id UserID) bool {
	ms, ok := r.Status(id)
	return ok && ms.Due
}
