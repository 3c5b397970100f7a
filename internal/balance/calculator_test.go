package balance

import (
	"testing"
	"time"

	chargedomain "github.com/testbedhq/balance/internal/charge/domain"
	"github.com/stretchr/testify/assert"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func charge(start, end string, rate float64) chargedomain.Charge {
	c := chargedomain.Charge{
		StartTime:  ts(start),
		HourlyCost: rate,
	}
	if end != "" {
		e := ts(end)
		c.EndTime = &e
	}
	return c
}

func TestUsedBeforeStart(t *testing.T) {
	c := charge("2026-03-01T00:00:00Z", "2026-03-02T00:00:00Z", 2)
	now := ts("2026-02-28T00:00:00Z")

	assert.Equal(t, 0.0, Used(c, now))
}

func TestUsedMidLease(t *testing.T) {
	c := charge("2026-03-01T00:00:00Z", "2026-03-02T00:00:00Z", 2)
	now := ts("2026-03-01T06:00:00Z")

	assert.Equal(t, 12.0, Used(c, now))
}

func TestUsedCapsAtEndTime(t *testing.T) {
	c := charge("2026-03-01T00:00:00Z", "2026-03-01T05:00:00Z", 3)
	now := ts("2026-03-10T00:00:00Z")

	assert.Equal(t, 15.0, Used(c, now))
	assert.Equal(t, 15.0, Total(c))
}

func TestUsedRoundsPerCharge(t *testing.T) {
	// 40 minutes at 1 SU/h is 0.666..., rounded to 0.67 before summation.
	c := charge("2026-03-01T00:00:00Z", "2026-03-01T00:40:00Z", 1)
	now := ts("2026-03-02T00:00:00Z")

	assert.Equal(t, 0.67, Used(c, now))

	used, total := Reduce([]chargedomain.Charge{c, c, c}, now)
	assert.InDelta(t, 2.01, used, 1e-9)
	assert.InDelta(t, 2.01, total, 1e-9)
}

func TestTotalOpenEndedChargeCommitsNothing(t *testing.T) {
	c := charge("2026-03-01T00:00:00Z", "", 5)
	now := ts("2026-03-01T02:00:00Z")

	assert.Equal(t, 0.0, Total(c))
	assert.Equal(t, 10.0, Used(c, now))
}

func TestTotalFloorsNegativeDuration(t *testing.T) {
	c := charge("2026-03-02T00:00:00Z", "2026-03-01T00:00:00Z", 5)

	assert.Equal(t, 0.0, Total(c))
}

func TestRemainingIsAllocatedMinusTotal(t *testing.T) {
	b := ProjectBalance{Used: 10, Total: 40, Encumbered: 30, Allocated: 100}

	assert.Equal(t, 60.0, b.Remaining())
}

func TestReduceEncumberedNeverNegative(t *testing.T) {
	now := ts("2026-03-01T12:00:00Z")
	charges := []chargedomain.Charge{
		charge("2026-03-01T00:00:00Z", "2026-03-02T00:00:00Z", 1),
		charge("2026-03-05T00:00:00Z", "2026-03-06T00:00:00Z", 2),
	}

	used, total := Reduce(charges, now)
	assert.Equal(t, 12.0, used)
	assert.Equal(t, 72.0, total)
	assert.GreaterOrEqual(t, total-used, 0.0)
}
