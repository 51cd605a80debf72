/*
due.go - Maintenance due calculator (aggregator)

PURPOSE:
  Given every maintenance payment ever made, decide as of a reference date
  which members have an uncovered gap in their payment history.

FLOW:
  1. Group records by UserID, keeping first-seen order
  2. Per member: NormalizeMember (drop malformed, merge) -> AnalyzeCoverage
  3. Collect members with at least one gap into UsersWithDue

PURITY:
  No I/O, no clock reads, no shared state between members. Two calls with
  the same input and reference date return identical results, and calls
  from concurrent requests need no locking. Per-member work is independent,
  so ComputeDueParallel fans it out without changing the result.

FAILURE SEMANTICS:
  - A malformed record (missing or inverted period) is dropped and counted
    in Diagnostics. It never affects other members.
  - A record without a UserID breaks the input contract: the whole call
    fails with a *generic.RecordError and no partial result.

SEE ALSO:
  - normalize.go: Period normalizer
  - analyze.go: Coverage analyzer
  - dashboard.go: Caller that loads records and applies category filtering
*/
package maintenance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/society/dues-engine/generic"
)

type memberGroup struct {
	member  Member
	records []PaymentPeriod
}

// ComputeDue returns the due/paid partition of all members in periods as of
// referenceDate. A zero referenceDate means today in UTC.
func ComputeDue(periods []PaymentPeriod, referenceDate generic.Date) (*DueResult, error) {
	groups, err := groupByMember(periods)
	if err != nil {
		return nil, err
	}
	if referenceDate.IsZero() {
		referenceDate = generic.Today(time.UTC)
	}

	statuses := make([]MemberStatus, len(groups))
	for i, g := range groups {
		statuses[i] = analyzeMember(g, referenceDate)
	}
	return assemble(referenceDate, statuses), nil
}

// ComputeDueParallel is ComputeDue with members analysed on up to workers
// goroutines. The result is identical to ComputeDue's. workers <= 0 means
// no limit.
func ComputeDueParallel(ctx context.Context, periods []PaymentPeriod, referenceDate generic.Date, workers int) (*DueResult, error) {
	groups, err := groupByMember(periods)
	if err != nil {
		return nil, err
	}
	if referenceDate.IsZero() {
		referenceDate = generic.Today(time.UTC)
	}

	statuses := make([]MemberStatus, len(groups))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := range groups {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			statuses[i] = analyzeMember(groups[i], referenceDate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assemble(referenceDate, statuses), nil
}

func groupByMember(periods []PaymentPeriod) ([]memberGroup, error) {
	index := make(map[UserID]int)
	var groups []memberGroup

	for i, pp := range periods {
		if pp.UserID == "" {
			return nil, &generic.RecordError{Index: i, Err: generic.ErrMissingUserID}
		}
		gi, ok := index[pp.UserID]
		if !ok {
			gi = len(groups)
			index[pp.UserID] = gi
			groups = append(groups, memberGroup{member: pp.member()})
		}
		groups[gi].records = append(groups[gi].records, pp)
	}
	return groups, nil
}

func assemble(referenceDate generic.Date, statuses []MemberStatus) *DueResult {
	res := &DueResult{
		ReferenceDate: referenceDate,
		UsersWithDue:  []Member{},
		Members:       statuses,
		byID:          make(map[UserID]int, len(statuses)),
	}
	for i, ms := range statuses {
		res.byID[ms.UserID] = i
		if ms.Due {
			res.UsersWithDue = append(res.UsersWithDue, ms.Member)
		}
		res.Diagnostics.merge(ms.Diagnostics)
	}
	return res
}

// =============================================================================
// CALCULATOR - ComputeDue with an injected clock
// =============================================================================

// Calculator resolves "today" from an injected clock so callers never need
// to read the wall clock themselves.
type Calculator struct {
	Now      func() time.Time // defaults to time.Now
	Location *time.Location   // calendar used for "today"; defaults to UTC
	Workers  int              // > 1 analyses members concurrently
}

// Today returns the current calendar day per the injected clock.
func (c Calculator) Today() generic.Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return generic.DateOf(now().In(loc))
}

// Compute runs the calculator. A zero asOf means Today().
func (c Calculator) Compute(ctx context.Context, periods []PaymentPeriod, asOf generic.Date) (*DueResult, error) {
	if asOf.IsZero() {
		asOf = c.Today()
	}
	if c.Workers > 1 {
		return ComputeDueParallel(ctx, periods, asOf, c.Workers)
	}
	return ComputeDue(periods, asOf)
}
