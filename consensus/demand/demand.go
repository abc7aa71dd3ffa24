// Package demand adjusts registration fees to the trailing demand for names.
package demand

import (
	"sort"

	"github.com/shopspring/decimal"

	"arnsmachine/arnsmachine"
)

// Fees is the base registration fee per name length, in base units.
type Fees map[int64]int64

func (f Fees) Copy() Fees {
	c := make(Fees, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

func (f Fees) lengths() []int64 {
	keys := make([]int64, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// For returns the base fee for a name of the given length. Lengths past the end of the
// table use the fee of the longest listed length.
func (f Fees) For(length int64) int64 {
	if fee, ok := f[length]; ok {
		return fee
	}
	var fee int64
	for _, l := range f.lengths() {
		if l > length {
			break
		}
		fee = f[l]
	}
	return fee
}

// Rescale permanently multiplies every fee by factor, never going below one unit.
func (f Fees) Rescale(factor decimal.Decimal) {
	for _, l := range f.lengths() {
		fee := arnsmachine.MulFloor(f[l], factor)
		if fee < 1 {
			fee = 1
		}
		f[l] = fee
	}
}

// State is the demand factoring state.
type State struct {
	PeriodZeroHeight      int64           `json:"periodZeroBlockHeight"`
	CurrentPeriod         int64           `json:"currentPeriod"`
	Factor                decimal.Decimal `json:"demandFactor"`
	PurchasesThisPeriod   int64           `json:"purchasesThisPeriod"`
	RevenueThisPeriod     int64           `json:"revenueThisPeriod"`
	TrailingPurchases     []int64         `json:"trailingPeriodPurchases"`
	TrailingRevenues      []int64         `json:"trailingPeriodRevenues"`
	ConsecutiveMinPeriods int64           `json:"consecutivePeriodsWithMinDemandFactor"`
	Fees                  Fees            `json:"fees"`
}

// New returns the state the ledger starts with at periodZero.
func New(c *arnsmachine.Constants, periodZero int64, fees Fees) *State {
	if fees == nil {
		fees = Fees(c.Demand.GenesisFees).Copy()
	}
	return &State{
		PeriodZeroHeight:  periodZero,
		Factor:            c.Demand.BaseValue,
		TrailingPurchases: make([]int64, c.Demand.MovingAvgPeriods),
		TrailingRevenues:  make([]int64, c.Demand.MovingAvgPeriods),
		Fees:              fees.Copy(),
	}
}

func (s *State) Copy() *State {
	c := *s
	c.TrailingPurchases = append([]int64(nil), s.TrailingPurchases...)
	c.TrailingRevenues = append([]int64(nil), s.TrailingRevenues...)
	c.Fees = s.Fees.Copy()
	return &c
}

// Tally records one completed purchase worth revenue.
func (s *State) Tally(revenue int64) {
	s.PurchasesThisPeriod++
	s.RevenueThisPeriod += revenue
}

// Apply returns floor(amount × demand factor).
func (s *State) Apply(amount int64) int64 {
	return arnsmachine.MulFloor(amount, s.Factor)
}

// PeriodAt returns the period index containing height.
func (s *State) PeriodAt(height int64, c *arnsmachine.Constants) int64 {
	if height <= s.PeriodZeroHeight || c.Demand.PeriodLength <= 0 {
		return 0
	}
	return (height - s.PeriodZeroHeight) / c.Demand.PeriodLength
}

// Update rolls the state over if height has entered a later period. It reports whether a
// rollover happened.
func (s *State) Update(height int64, c *arnsmachine.Constants) bool {
	if s.PeriodAt(height, c) <= s.CurrentPeriod {
		return false
	}
	s.rollover(c)
	return true
}

func (s *State) tally(c *arnsmachine.Constants) int64 {
	if c.Demand.Criteria == "purchases" {
		return s.PurchasesThisPeriod
	}
	return s.RevenueThisPeriod
}

func (s *State) trailing(c *arnsmachine.Constants) []int64 {
	if c.Demand.Criteria == "purchases" {
		return s.TrailingPurchases
	}
	return s.TrailingRevenues
}

// MovingAverage is the mean of the trailing ring buffer for the configured criteria.
func (s *State) MovingAverage(c *arnsmachine.Constants) decimal.Decimal {
	buf := s.trailing(c)
	if len(buf) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range buf {
		sum = sum.Add(decimal.NewFromInt(v))
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(buf))), arnsmachine.DecimalPrecision)
}

func (s *State) rollover(c *arnsmachine.Constants) {
	d := c.Demand
	tally := s.tally(c)
	if tally > 0 && decimal.NewFromInt(tally).GreaterThanOrEqual(s.MovingAverage(c)) {
		s.Factor = s.Factor.Mul(decimal.NewFromInt(1).Add(d.UpAdjustment)).Truncate(arnsmachine.DecimalPrecision)
	} else if s.Factor.GreaterThan(d.Min) {
		s.Factor = s.Factor.Mul(decimal.NewFromInt(1).Sub(d.DownAdjustment)).Truncate(arnsmachine.DecimalPrecision)
		if s.Factor.LessThan(d.Min) {
			s.Factor = d.Min
		}
	}

	if s.Factor.Equal(d.Min) {
		s.ConsecutiveMinPeriods++
		if s.ConsecutiveMinPeriods >= d.StepDownThreshold {
			s.ConsecutiveMinPeriods = 0
			s.Factor = d.BaseValue
			s.Fees.Rescale(d.Min)
			arnsmachine.LogCLI("demand factor held at its minimum long enough, base fees rescaled", 4)
		}
	} else {
		s.ConsecutiveMinPeriods = 0
	}

	if n := int64(len(s.TrailingPurchases)); n > 0 {
		idx := s.CurrentPeriod % n
		s.TrailingPurchases[idx] = s.PurchasesThisPeriod
		s.TrailingRevenues[idx] = s.RevenueThisPeriod
	}
	s.PurchasesThisPeriod = 0
	s.RevenueThisPeriod = 0
	s.CurrentPeriod++
}

func (s *State) AppendTo(hs *arnsmachine.HashSeq) {
	hs.AppendAll(s.PeriodZeroHeight, s.CurrentPeriod, s.Factor.String(), s.PurchasesThisPeriod,
		s.RevenueThisPeriod, s.ConsecutiveMinPeriods)
	for i := range s.TrailingPurchases {
		hs.AppendAll(s.TrailingPurchases[i], s.TrailingRevenues[i])
	}
	for _, l := range s.Fees.lengths() {
		hs.AppendAll(l, s.Fees[l])
	}
}
