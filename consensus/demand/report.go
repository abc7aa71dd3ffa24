package demand

import (
	"github.com/montanaflynn/stats"

	"arnsmachine/arnsmachine"
)

// Report summarises recent demand for operators. It is informational only and never feeds
// back into the ledger.
type Report struct {
	Factor                string  `json:"demandFactor"`
	CurrentPeriod         int64   `json:"currentPeriod"`
	MovingAverage         string  `json:"movingAverage"`
	MeanPurchases         float64 `json:"meanTrailingPurchases"`
	MedianRevenue         float64 `json:"medianTrailingRevenue"`
	MaxRevenue            float64 `json:"maxTrailingRevenue"`
	ConsecutiveMinPeriods int64   `json:"consecutivePeriodsWithMinDemandFactor"`
}

func (s *State) Report(c *arnsmachine.Constants) Report {
	r := Report{
		Factor:                s.Factor.String(),
		CurrentPeriod:         s.CurrentPeriod,
		MovingAverage:         s.MovingAverage(c).String(),
		ConsecutiveMinPeriods: s.ConsecutiveMinPeriods,
	}
	purchases := stats.LoadRawData(s.TrailingPurchases)
	revenues := stats.LoadRawData(s.TrailingRevenues)
	if mean, err := stats.Mean(purchases); err == nil {
		r.MeanPurchases = mean
	}
	if median, err := stats.Median(revenues); err == nil {
		r.MedianRevenue = median
	}
	if max, err := stats.Max(revenues); err == nil {
		r.MaxRevenue = max
	}
	return r
}
