package demand

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
)

func testConstants() *arnsmachine.Constants {
	c := arnsmachine.DefaultConstants()
	c.Demand.PeriodLength = 10
	c.Demand.MovingAvgPeriods = 3
	return c
}

func TestFactorRisesWithDemand(t *testing.T) {
	c := testConstants()
	s := New(c, 0, nil)
	s.Tally(1_000)
	assert.True(t, s.Update(10, c))
	assert.True(t, s.Factor.Equal(decimal.RequireFromString("1.05")), s.Factor.String())
	assert.Equal(t, int64(1), s.CurrentPeriod)
	assert.Equal(t, []int64{1_000, 0, 0}, s.TrailingRevenues)
	assert.Zero(t, s.RevenueThisPeriod)

	// same period, no second rollover
	assert.False(t, s.Update(19, c))
}

func TestFactorFallsAndResets(t *testing.T) {
	c := testConstants()
	s := New(c, 0, Fees{1: 1_000, 2: 3})
	var h int64
	periods := 0
	for s.Factor.GreaterThan(c.Demand.Min) {
		h += c.Demand.PeriodLength
		require.True(t, s.Update(h, c))
		periods++
		assert.True(t, s.Factor.GreaterThanOrEqual(c.Demand.Min), "factor never drops below the minimum")
		require.Less(t, periods, 100)
	}
	assert.True(t, s.Factor.Equal(c.Demand.Min))
	assert.Equal(t, int64(1), s.ConsecutiveMinPeriods)

	for i := int64(1); i < c.Demand.StepDownThreshold; i++ {
		h += c.Demand.PeriodLength
		require.True(t, s.Update(h, c))
	}
	assert.True(t, s.Factor.Equal(c.Demand.BaseValue), s.Factor.String())
	assert.Zero(t, s.ConsecutiveMinPeriods)
	assert.Equal(t, int64(500), s.Fees[1])
	assert.Equal(t, int64(1), s.Fees[2], "fees never drop below one unit")
}

func TestApplyFloors(t *testing.T) {
	c := testConstants()
	s := New(c, 0, nil)
	s.Factor = decimal.RequireFromString("1.05")
	assert.Equal(t, int64(10), s.Apply(10))
	assert.Equal(t, int64(105), s.Apply(100))
	assert.Equal(t, int64(1_050_000), s.Apply(1_000_000))
}

func TestFeesFor(t *testing.T) {
	f := Fees{1: 100, 2: 50, 10: 5}
	assert.Equal(t, int64(50), f.For(2))
	assert.Equal(t, int64(50), f.For(5))
	assert.Equal(t, int64(5), f.For(40))
}

func TestCopyIsDeep(t *testing.T) {
	c := testConstants()
	s := New(c, 0, nil)
	cp := s.Copy()
	cp.Tally(5)
	cp.Fees[1] = 1
	cp.TrailingPurchases[0] = 9
	assert.Zero(t, s.PurchasesThisPeriod)
	assert.NotEqual(t, int64(1), s.Fees[1])
	assert.Zero(t, s.TrailingPurchases[0])
}

func TestReport(t *testing.T) {
	c := testConstants()
	s := New(c, 0, nil)
	s.TrailingPurchases = []int64{1, 2, 3}
	s.TrailingRevenues = []int64{10, 20, 60}
	r := s.Report(c)
	assert.Equal(t, 2.0, r.MeanPurchases)
	assert.Equal(t, 20.0, r.MedianRevenue)
	assert.Equal(t, "30", r.MovingAverage)
}
