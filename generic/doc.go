/*
Package generic provides the calendar primitives of the dues engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms over calendar
  dates. Whether a period was paid as monthly maintenance, a quarterly
  sinking-fund contribution or an annual parking fee, the same merge and
  gap-walk logic applies.

KEY CONCEPTS:
  - Date: A calendar day with no time-of-day and no zone (time.go)
  - Period: An inclusive [Start, End] range of dates (period.go)
  - IntervalType: monthly, quarterly, half_yearly, annual (period.go)
  - Coverage: Merged union of periods, with gap analysis (coverage.go)

DESIGN PRINCIPLES:
  1. No wall clock: functions take dates, they never read time.Now
  2. No zones: a Date is midnight UTC internally, so adding a day is exact
  3. Immutability: Coverage is built once and only read

USAGE:
  q1, _ := generic.NewPeriod(generic.NewDate(2024, 1, 1), generic.NewDate(2024, 3, 31))
  q3, _ := generic.NewPeriod(generic.NewDate(2024, 7, 1), generic.NewDate(2024, 9, 30))
  cov := generic.MergePeriods([]generic.Period{q1, q3})
  gaps := cov.Gaps(q1.Start, generic.NewDate(2024, 8, 15))
  // gaps == [[2024-04-01, 2024-06-30]]

SEE ALSO:
  - maintenance: Dues calculator built on these primitives
*/
package generic
