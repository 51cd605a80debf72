/*
dashboard.go - "Paid vs Overdue" breakdown for the society dashboard

PURPOSE:
  The dashboard is the calculator's caller. It loads payment periods for one
  category (maintenance by default), restricts them to active members, runs
  the calculator and turns the result into headcounts.

CATEGORY FILTERING:
  Happens here and in the store query, never inside the calculator.

HEADCOUNTS:
  Paid = ActiveMembers - Overdue. Active members who never paid a tagged
  period are not due (the calculator has no obligation start for them)
  and are therefore counted as Paid. They are also reported as NeverPaid
  so the gap is visible.

FALLBACK:
  If loading or computing fails, Summary logs the error and returns the
  conservative display (Paid 0 / Overdue 0, Degraded=true) instead of
  failing the page.
*/
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/lib/sl"
)

// Source is what the dashboard needs from persistence.
type Source interface {
	// ListPaymentPeriods returns every payment in the category joined with
	// the payer's identity. Untagged and malformed periods are included.
	ListPaymentPeriods(ctx context.Context, categoryID int64) ([]PaymentPeriod, error)

	// ListActiveMembers returns members who are not banned.
	ListActiveMembers(ctx context.Context) ([]Member, error)
}

// Recorder observes computations as of today (implemented by the metrics
// package). Historical what-if queries are not recorded.
type Recorder interface {
	ObserveDues(elapsed time.Duration, res *DueResult)
}

// Dashboard computes dues for one payment category.
type Dashboard struct {
	Source     Source
	CategoryID int64
	Calculator Calculator
	Logger     *slog.Logger
	Recorder   Recorder // optional
}

// NewDashboard creates a dashboard over the maintenance category.
func NewDashboard(src Source, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		Source:     src,
		CategoryID: MaintenanceCategoryID,
		Logger:     logger,
	}
}

// Summary is the dashboard headline.
type Summary struct {
	AsOf          generic.Date
	CategoryID    int64
	ActiveMembers int
	Overdue       int
	Paid          int
	NeverPaid     int
	UsersWithDue  []Member
	Diagnostics   Diagnostics
	Degraded      bool
}

// Dues runs the calculator over active members' payments.
func (d *Dashboard) Dues(ctx context.Context, asOf generic.Date) (*DueResult, []Member, error) {
	active, err := d.Source.ListActiveMembers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list active members: %w", err)
	}
	periods, err := d.Source.ListPaymentPeriods(ctx, d.CategoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("list payment periods for category %d: %w", d.CategoryID, err)
	}

	res, err := d.compute(ctx, onlyActive(periods, active), asOf)
	if err != nil {
		return nil, nil, err
	}
	return res, active, nil
}

// Summary returns headcounts, falling back to zeros on any failure.
func (d *Dashboard) Summary(ctx context.Context, asOf generic.Date) Summary {
	const op = "maintenance.Dashboard.Summary"
	log := d.logger().With(slog.String("op", op), slog.Int64("category_id", d.CategoryID))

	res, active, err := d.Dues(ctx, asOf)
	if err != nil {
		log.Error("failed to compute dues, showing fallback", sl.Err(err))
		if asOf.IsZero() {
			asOf = d.Calculator.Today()
		}
		return Summary{AsOf: asOf, CategoryID: d.CategoryID, UsersWithDue: []Member{}, Degraded: true}
	}

	s := Summary{
		AsOf:          res.ReferenceDate,
		CategoryID:    d.CategoryID,
		ActiveMembers: len(active),
		Overdue:       res.OverdueCount(),
		UsersWithDue:  res.UsersWithDue,
		Diagnostics:   res.Diagnostics,
	}
	s.Paid = s.ActiveMembers - s.Overdue
	for _, m := range active {
		if ms, ok := res.Status(m.UserID); !ok || !ms.HasObligation() {
			s.NeverPaid++
		}
	}

	log.Debug("dues summary computed",
		slog.String("as_of", s.AsOf.String()),
		slog.Int("active", s.ActiveMembers),
		slog.Int("overdue", s.Overdue),
		slog.Int("never_paid", s.NeverPaid),
	)
	return s
}

// MemberStatus returns gap detail for one member. Members with no records
// at all get an empty, not-due status if they are active.
func (d *Dashboard) MemberStatus(ctx context.Context, id UserID, asOf generic.Date) (MemberStatus, error) {
	periods, err := d.Source.ListPaymentPeriods(ctx, d.CategoryID)
	if err != nil {
		return MemberStatus{}, fmt.Errorf("list payment periods for category %d: %w", d.CategoryID, err)
	}

	var own []PaymentPeriod
	for _, pp := range periods {
		if pp.UserID == id {
			own = append(own, pp)
		}
	}

	if len(own) == 0 {
		active, err := d.Source.ListActiveMembers(ctx)
		if err != nil {
			return MemberStatus{}, fmt.Errorf("list active members: %w", err)
		}
		for _, m := range active {
			if m.UserID == id {
				return MemberStatus{Member: m}, nil
			}
		}
		return MemberStatus{}, fmt.Errorf("%w: %s", generic.ErrMemberNotFound, id)
	}

	// Not recorded: a single member must not overwrite society-wide gauges.
	res, err := d.Calculator.Compute(ctx, own, asOf)
	if err != nil {
		return MemberStatus{}, fmt.Errorf("compute dues: %w", err)
	}
	ms, _ := res.Status(id)
	return ms, nil
}

func (d *Dashboard) compute(ctx context.Context, periods []PaymentPeriod, asOf generic.Date) (*DueResult, error) {
	start := time.Now()
	res, err := d.Calculator.Compute(ctx, periods, asOf)
	if err != nil {
		return nil, fmt.Errorf("compute dues: %w", err)
	}
	if d.Recorder != nil && res.ReferenceDate.Equal(d.Calculator.Today()) {
		d.Recorder.ObserveDues(time.Since(start), res)
	}
	if n := res.Diagnostics.Total(); n > 0 {
		d.logger().Warn("payment records excluded from dues",
			slog.Int("missing_period", res.Diagnostics.MissingPeriod),
			slog.Int("inverted_period", res.Diagnostics.InvertedPeriod),
		)
	}
	return res, nil
}

func (d *Dashboard) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func onlyActive(periods []PaymentPeriod, active []Member) []PaymentPeriod {
	ok := make(map[UserID]bool, len(active))
	for _, m := range active {
		ok[m.UserID] = true
	}
	out := make([]PaymentPeriod, 0, len(periods))
	for _, pp := range periods {
		if ok[pp.UserID] {
			out = append(out, pp)
		}
	}
	return out
}
