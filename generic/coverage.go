/*
coverage.go - Merged date coverage and gap analysis

PURPOSE:
  A Coverage is the union of a set of periods, stored as an ordered list of
  maximal blocks. It answers "which days in [from, through] are NOT
  covered?" which is how dues arrears are detected.

INVARIANTS (after MergePeriods):
  1. Blocks are strictly ordered by Start
  2. Blocks are pairwise non-overlapping
  3. No two neighbouring blocks are mergeable: there is at least one
     uncovered day between consecutive blocks

  Adjacent periods coalesce: [Jan 1, Mar 31] + [Apr 1, Jun 30] is one block
  [Jan 1, Jun 30].

IMMUTABILITY:
  Coverage never exposes its backing slice. It is built once and only read.

SEE ALSO:
  - period.go: Period and Mergeable
  - maintenance/normalize.go: Builds a Coverage per member
  - maintenance/analyze.go: Walks it against the obligation window
*/
package generic

import (
	"sort"
)

// Coverage is an ordered, non-overlapping, maximally merged set of periods.
type Coverage struct {
	blocks []Period
}

// MergePeriods sorts periods by Start (ties by End) and merges every
// overlapping or adjacent pair. Periods must be valid (Start <= End); the
// input slice is not modified.
func MergePeriods(periods []Period) Coverage {
	if len(periods) == 0 {
		return Coverage{}
	}

	sorted := make([]Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	blocks := make([]Period, 0, len(sorted))
	current := sorted[0]
	for _, p := range sorted[1:] {
		// Sorted by start, so p.Start >= current.Start; only the right edge matters.
		if p.Start.BeforeOrEqual(current.End.AddDays(1)) {
			current.End = MaxDate(current.End, p.End)
			continue
		}
		blocks = append(blocks, current)
		current = p
	}
	blocks = append(blocks, current)

	return Coverage{blocks: blocks}
}

// Blocks returns a copy of the merged blocks in order.
func (c Coverage) Blocks() []Period {
	out := make([]Period, len(c.blocks))
	copy(out, c.blocks)
	return out
}

func (c Coverage) Len() int      { return len(c.blocks) }
func (c Coverage) IsEmpty() bool { return len(c.blocks) == 0 }

// Start returns the first covered day.
func (c Coverage) Start() (Date, bool) {
	if c.IsEmpty() {
		return Date{}, false
	}
	return c.blocks[0].Start, true
}

// Covers returns true if d falls inside some block.
func (c Coverage) Covers(d Date) bool {
	i := c.blockAtOrAfter(d)
	return i < len(c.blocks) && c.blocks[i].Start.BeforeOrEqual(d)
}

// CoveredThrough returns the last day of the unbroken run of coverage that
// contains from. ok is false when from itself is not covered.
func (c Coverage) CoveredThrough(from Date) (Date, bool) {
	i := c.blockAtOrAfter(from)
	if i == len(c.blocks) || c.blocks[i].Start.After(from) {
		return Date{}, false
	}
	return c.blocks[i].End, true
}

// blockAtOrAfter returns the index of the first block whose End is >= d.
func (c Coverage) blockAtOrAfter(d Date) int {
	return sort.Search(len(c.blocks), func(i int) bool {
		return c.blocks[i].End.AfterOrEqual(d)
	})
}

// Gaps returns every uncovered range inside [from, through], in order.
//
// A cursor starts at from. Each block starting after the cursor opens a gap
// that ends the day before the block. The cursor then jumps past the block.
// Blocks starting after through are never reached, so coverage lying
// entirely in the future can't create a gap. Whatever is left between the
// cursor and through is the trailing gap.
func (c Coverage) Gaps(from, through Date) []Period {
	if through.Before(from) {
		return nil
	}

	var gaps []Period
	cursor := from
	for _, b := range c.blocks {
		if cursor.After(through) || b.Start.After(through) {
			break
		}
		if b.End.Before(cursor) {
			continue
		}
		if b.Start.After(cursor) {
			gaps = append(gaps, Period{Start: cursor, End: b.Start.AddDays(-1)})
		}
		cursor = MaxDate(cursor, b.End.AddDays(1))
	}

	if cursor.BeforeOrEqual(through) {
		gaps = append(gaps, Period{Start: cursor, End: through})
	}
	return gaps
}
