package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

// ElapsedDaysInclusive counts the days from start through asOf, with asOf
// clamped into [start, end]. Same-day counts as one.
func ElapsedDaysInclusive(start, asOf, end generic.Date) int {
	return generic.Period{Start: start, End: end}.ElapsedDays(asOf)
}

// FullNet is salary + bonuses - deductions, floored at zero.
func FullNet(c Cycle, salary decimal.Decimal) decimal.Decimal {
	return floorZero(gross(c, salary)).Round(2)
}

// ProratedNet scales the cycle's gross by elapsed/total days as of asOf,
// floored at zero and rounded to cents. The division happens last so that
// 700 * 4/7 yields exactly 400.00.
func ProratedNet(c Cycle, salary decimal.Decimal, asOf generic.Date) decimal.Decimal {
	period := c.Period()
	total := period.InclusiveDays()
	if total <= 0 {
		return decimal.Zero
	}
	elapsed := period.ElapsedDays(asOf)
	scaled := gross(c, salary).
		Mul(decimal.NewFromInt(int64(elapsed))).
		Div(decimal.NewFromInt(int64(total)))
	return floorZero(scaled).Round(2)
}

func gross(c Cycle, salary decimal.Decimal) decimal.Decimal {
	return salary.Add(c.Bonuses).Sub(c.Deductions)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
