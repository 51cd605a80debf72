package generic_test

import (
	"testing"
	"time"

	"github.com/society/dues-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) generic.Date { return generic.MustParseDate(s) }

func p(start, end string) generic.Period {
	return generic.Period{Start: d(start), End: d(end)}
}

func samePeriods(t *testing.T, got, want []generic.Period) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d periods %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("period %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// =============================================================================
// MERGE TESTS
// =============================================================================

func TestMergePeriods_Empty(t *testing.T) {
	cov := generic.MergePeriods(nil)
	if !cov.IsEmpty() {
		t.Fatalf("expected empty coverage, got %v", cov.Blocks())
	}
	if _, ok := cov.Start(); ok {
		t.Error("empty coverage should have no start")
	}
}

func TestMergePeriods_AdjacentQuartersCoalesce(t *testing.T) {
	// GIVEN: Two back-to-back quarters
	// WHEN: Merging
	// THEN: One 6-month block
	cov := generic.MergePeriods([]generic.Period{
		p("2024-04-01", "2024-06-30"),
		p("2024-01-01", "2024-03-31"),
	})
	samePeriods(t, cov.Blocks(), []generic.Period{p("2024-01-01", "2024-06-30")})
}

func TestMergePeriods_OverlapAndContainment(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-06-30"),
		p("2024-03-01", "2024-03-31"), // contained
		p("2024-06-15", "2024-09-30"), // overlaps tail
	})
	samePeriods(t, cov.Blocks(), []generic.Period{p("2024-01-01", "2024-09-30")})
}

func TestMergePeriods_OneDayGapStaysSeparate(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-01-30"),
		p("2024-02-01", "2024-02-29"),
	})
	samePeriods(t, cov.Blocks(), []generic.Period{
		p("2024-01-01", "2024-01-30"),
		p("2024-02-01", "2024-02-29"),
	})
}

func TestMergePeriods_DuplicatesMerge(t *testing.T) {
	q := p("2024-01-01", "2024-03-31")
	cov := generic.MergePeriods([]generic.Period{q, q, q})
	samePeriods(t, cov.Blocks(), []generic.Period{q})
}

func TestMergePeriods_Property(t *testing.T) {
	// For [a,b] and [c,d]: c <= b+1 gives one block [min(a,c), max(b,d)],
	// otherwise two blocks.
	a := d("2024-01-10")
	cases := []struct {
		name   string
		b, c   generic.Date
		dEnd   generic.Date
		merged bool
	}{
		{"overlapping", d("2024-01-31"), d("2024-01-20"), d("2024-02-10"), true},
		{"adjacent", d("2024-01-31"), d("2024-02-01"), d("2024-02-10"), true},
		{"one day apart", d("2024-01-31"), d("2024-02-02"), d("2024-02-10"), false},
		{"second inside first", d("2024-03-31"), d("2024-02-01"), d("2024-02-10"), true},
		{"second starts earlier", d("2024-01-31"), d("2024-01-01"), d("2024-01-15"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := generic.Period{Start: a, End: tc.b}
			second := generic.Period{Start: tc.c, End: tc.dEnd}
			blocks := generic.MergePeriods([]generic.Period{first, second}).Blocks()
			if tc.merged {
				samePeriods(t, blocks, []generic.Period{{
					Start: generic.MinDate(a, tc.c),
					End:   generic.MaxDate(tc.b, tc.dEnd),
				}})
			} else if len(blocks) != 2 {
				t.Errorf("expected two blocks, got %v", blocks)
			}
		})
	}
}

func TestMergePeriods_DoesNotMutateInput(t *testing.T) {
	in := []generic.Period{p("2024-04-01", "2024-06-30"), p("2024-01-01", "2024-03-31")}
	generic.MergePeriods(in)
	if !in[0].Start.Equal(d("2024-04-01")) {
		t.Error("input slice was reordered")
	}
}

func TestCoverage_BlocksIsACopy(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{p("2024-01-01", "2024-03-31")})
	blocks := cov.Blocks()
	blocks[0].End = d("2030-01-01")
	if !cov.Blocks()[0].End.Equal(d("2024-03-31")) {
		t.Error("coverage was mutated through Blocks()")
	}
}

// =============================================================================
// LOOKUP TESTS
// =============================================================================

func TestCoverage_CoversAndCoveredThrough(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-03-31"),
		p("2024-07-01", "2024-09-30"),
	})

	if !cov.Covers(d("2024-02-29")) {
		t.Error("expected 2024-02-29 to be covered")
	}
	if cov.Covers(d("2024-05-01")) {
		t.Error("expected 2024-05-01 to be uncovered")
	}
	if cov.Covers(d("2025-01-01")) {
		t.Error("expected 2025-01-01 to be uncovered")
	}

	end, ok := cov.CoveredThrough(d("2024-01-01"))
	if !ok || !end.Equal(d("2024-03-31")) {
		t.Errorf("expected covered through 2024-03-31, got %s (ok=%v)", end, ok)
	}
	if _, ok := cov.CoveredThrough(d("2024-04-01")); ok {
		t.Error("2024-04-01 is not covered")
	}
}

// =============================================================================
// GAP TESTS
// =============================================================================

func TestGaps_MiddleGap(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-03-31"),
		p("2024-07-01", "2024-09-30"),
	})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-08-15"))
	samePeriods(t, gaps, []generic.Period{p("2024-04-01", "2024-06-30")})
}

func TestGaps_TrailingGap(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{p("2024-01-01", "2024-03-31")})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-06-01"))
	samePeriods(t, gaps, []generic.Period{p("2024-04-01", "2024-06-01")})
}

func TestGaps_AllGapsReported(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-01-31"),
		p("2024-03-01", "2024-03-31"),
		p("2024-05-01", "2024-05-31"),
	})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-06-10"))
	samePeriods(t, gaps, []generic.Period{
		p("2024-02-01", "2024-02-29"),
		p("2024-04-01", "2024-04-30"),
		p("2024-06-01", "2024-06-10"),
	})
}

func TestGaps_FullCoverage(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{p("2024-01-01", "2024-12-31")})
	if gaps := cov.Gaps(d("2024-01-01"), d("2024-12-31")); len(gaps) != 0 {
		t.Errorf("expected no gaps, got %v", gaps)
	}
}

func TestGaps_FutureBlockClippedToThrough(t *testing.T) {
	// GIVEN: Q1 paid and a prepayment for July 2025
	// WHEN: Checking as of 2024-08-15
	// THEN: The gap stops at the reference date, not at the future block
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-03-31"),
		p("2025-07-01", "2025-09-30"),
	})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-08-15"))
	samePeriods(t, gaps, []generic.Period{p("2024-04-01", "2024-08-15")})
}

func TestGaps_GapEntirelyAfterThroughIgnored(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2024-01-01", "2024-03-31"),
		p("2024-07-01", "2024-09-30"),
	})
	if gaps := cov.Gaps(d("2024-01-01"), d("2024-03-15")); len(gaps) != 0 {
		t.Errorf("expected no gaps before 2024-03-15, got %v", gaps)
	}
}

func TestGaps_ThroughBeforeFrom(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{p("2025-01-01", "2025-12-31")})
	if gaps := cov.Gaps(d("2025-01-01"), d("2024-12-31")); gaps != nil {
		t.Errorf("expected nil, got %v", gaps)
	}
}

func TestGaps_BlocksBeforeFromAreSkipped(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		p("2023-01-01", "2023-12-31"),
		p("2024-03-01", "2024-03-31"),
	})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-03-31"))
	samePeriods(t, gaps, []generic.Period{p("2024-01-01", "2024-02-29")})
}

func TestGaps_EmptyCoverageIsOneGap(t *testing.T) {
	gaps := generic.Coverage{}.Gaps(d("2024-01-01"), d("2024-01-31"))
	samePeriods(t, gaps, []generic.Period{p("2024-01-01", "2024-01-31")})
}

func TestGaps_LeapYearBoundary(t *testing.T) {
	cov := generic.MergePeriods([]generic.Period{
		{Start: generic.NewDate(2024, time.January, 1), End: generic.NewDate(2024, time.February, 28)},
		{Start: generic.NewDate(2024, time.March, 1), End: generic.NewDate(2024, time.March, 31)},
	})
	gaps := cov.Gaps(d("2024-01-01"), d("2024-03-31"))
	samePeriods(t, gaps, []generic.Period{p("2024-02-29", "2024-02-29")})
}
