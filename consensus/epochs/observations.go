package epochs

import (
	"sort"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/gateways"
)

// Observations are the reports filed for one epoch.
type Observations struct {
	// failed gateway -> observer wallets that reported it, sorted
	FailureSummaries map[arnsmachine.Account][]arnsmachine.Account `json:"failureSummaries"`
	// observer wallet -> report tx id
	Reports map[arnsmachine.Account]string `json:"reports"`
}

func newObservations() *Observations {
	return &Observations{
		FailureSummaries: map[arnsmachine.Account][]arnsmachine.Account{},
		Reports:          map[arnsmachine.Account]string{},
	}
}

func (o *Observations) copy() *Observations {
	c := newObservations()
	for k, v := range o.FailureSummaries {
		c.FailureSummaries[k] = append([]arnsmachine.Account(nil), v...)
	}
	for k, v := range o.Reports {
		c.Reports[k] = v
	}
	return c
}

func (o *Observations) appendTo(hs *arnsmachine.HashSeq, start int64) {
	for _, gw := range arnsmachine.SortedKeys(o.FailureSummaries) {
		hs.AppendAll(start, gw, o.FailureSummaries[gw])
	}
	for _, wallet := range arnsmachine.SortedKeys(o.Reports) {
		hs.AppendAll(start, wallet, o.Reports[wallet])
	}
}

// Failures is how many observers reported gw as failed.
func (o *Observations) Failures(gw arnsmachine.Account) int64 {
	if o == nil {
		return 0
	}
	return int64(len(o.FailureSummaries[gw]))
}

// Reported reports whether wallet filed a report.
func (o *Observations) Reported(wallet arnsmachine.Account) bool {
	if o == nil {
		return false
	}
	_, ok := o.Reports[wallet]
	return ok
}

// HandleSaveObservations files a prescribed observer's report for the current epoch. Reports
// are accepted from start+distributionDelay up to the epoch's end height.
// Resubmitting replaces the report reference and adds any new failures, so replaying the
// same report leaves the state unchanged. Gateways that are not eligible for the epoch are
// ignored.
func (s *State) HandleSaveObservations(ctx arnsmachine.ExecutionContext, c *arnsmachine.Constants, gws gateways.Gateways, a *actions.SaveObservations) (*Observations, error) {
	// the clock only advances at distribution, so a height past Current.End already
	// belongs to the next epoch, whose window has not opened yet
	w := WindowAt(c, ctx.Height)
	if w.Start != s.Current.Start || ctx.Height < w.Start+c.Epochs.DistributionDelay {
		return nil, arnsmachine.ErrObservationTooEarly.With("observations for epoch %d open at %d", w.Index, w.Start+c.Epochs.DistributionDelay)
	}
	if _, ok := s.ObserverFor(ctx.Caller); !ok {
		return nil, arnsmachine.ErrNotPrescribedObserver.With("%s in epoch %d", ctx.Caller, s.Current.Index)
	}
	obs, ok := s.Observations[s.Current.Start]
	if !ok {
		obs = newObservations()
		s.Observations[s.Current.Start] = obs
	}
	for _, gw := range a.FailedGateways {
		g, ok := gws[gw]
		if !ok || !g.EligibleFor(s.Current.Start, s.Current.End) {
			continue
		}
		observers := obs.FailureSummaries[gw]
		if arnsmachine.Contains(observers, ctx.Caller) {
			continue
		}
		observers = append(observers, ctx.Caller)
		sort.Strings(observers)
		obs.FailureSummaries[gw] = observers
	}
	obs.Reports[ctx.Caller] = a.ObserverReportTxID
	return obs, nil
}
