// Package balance reduces charge ledger rows into usage, encumbrance and
// remaining-balance figures.
package balance

import (
	"math"
	"time"

	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
)

// ProjectBalance summarizes the active allocation's ledger at a point in
// time. Encumbered is committed-but-not-yet-incurred spend (Total - Used).
type ProjectBalance struct {
	Used       float64
	Total      float64
	Encumbered float64
	Allocated  float64
}

// Remaining treats committed spend as already spent: authorization-hold
// semantics, not current-usage semantics.
func (b ProjectBalance) Remaining() float64 {
	return b.Allocated - b.Total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Used returns the SUs the charge has consumed as of now, rounded to two
// decimals. A charge that has not started yet consumes nothing.
func Used(c chargedomain.Charge, now time.Time) float64 {
	if c.StartTime.After(now) {
		return 0
	}
	end := now
	if c.EndTime != nil && c.EndTime.Before(now) {
		end = *c.EndTime
	}
	if end.Before(c.StartTime) {
		return 0
	}
	return round2(end.Sub(c.StartTime).Hours() * c.HourlyCost)
}

// Total returns the charge's full-lifetime cost regardless of now, rounded
// to two decimals. Negative durations are floored at zero; a charge without
// an end time has no committed cost yet.
func Total(c chargedomain.Charge) float64 {
	if c.EndTime == nil {
		return 0
	}
	hours := c.EndTime.Sub(c.StartTime).Hours()
	if hours < 0 {
		hours = 0
	}
	return round2(hours * c.HourlyCost)
}

// Reduce sums Used and Total over charges, rounding each charge's
// contribution before summation.
func Reduce(charges []chargedomain.Charge, now time.Time) (used, total float64) {
	for _, c := range charges {
		used += Used(c, now)
		total += Total(c)
	}
	return used, total
}
