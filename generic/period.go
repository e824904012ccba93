package generic

// =============================================================================
// PERIOD - Inclusive range of calendar days
// =============================================================================

// Period is the closed interval [Start, End] of calendar days.
//
// Examples:
//   - Weekly pay period: Mon 2024-01-01 - Sun 2024-01-07 (7 days)
//   - Monthly pay period: 2024-01-15 - 2024-01-31 (17 days, first cycle of a hire)
type Period struct {
	Start Date
	End   Date
}

// Validate rejects periods whose end comes before their start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the day is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Clamp pins d into the period.
func (p Period) Clamp(d Date) Date {
	if d.Before(p.Start) {
		return p.Start
	}
	if d.After(p.End) {
		return p.End
	}
	return d
}

// InclusiveDays counts the days in the period, both ends included.
// A single-day period has one day; an inverted period has none.
func (p Period) InclusiveDays() int {
	n := DaysBetween(p.Start, p.End) + 1
	if n < 0 {
		return 0
	}
	return n
}

// ElapsedDays counts the days from Start through asOf inclusive, with asOf
// clamped into the period first. The result is in [1, InclusiveDays()].
func (p Period) ElapsedDays(asOf Date) int {
	if p.InclusiveDays() == 0 {
		return 0
	}
	return Period{Start: p.Start, End: p.Clamp(asOf)}.InclusiveDays()
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
