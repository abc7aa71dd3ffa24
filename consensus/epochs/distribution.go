package epochs

import (
	"fmt"

	"github.com/shopspring/decimal"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/gateways"
)

// Distribution is the outcome of one epoch's reward distribution.
type Distribution struct {
	Epoch                Window                        `json:"epoch"`
	DistributedAt        int64                         `json:"distributedAt"`
	TotalReports         int64                         `json:"totalReports"`
	FailureThreshold     int64                         `json:"failureThreshold"`
	EligibleGateways     int64                         `json:"eligibleGateways"`
	TotalEligibleRewards int64                         `json:"totalEligibleRewards"`
	TotalDistributed     int64                         `json:"totalDistributedRewards"`
	GatewayRewards       map[arnsmachine.Account]int64 `json:"gatewayRewards"`
	ObserverRewards      map[arnsmachine.Account]int64 `json:"observerRewards"`
	FailedGateways       []arnsmachine.Account         `json:"failedGateways"`
	AutoLeft             []arnsmachine.Account         `json:"autoLeftGateways,omitempty"`
}

// Tick distributes the current epoch if height is its distribution height. It returns nil
// when nothing was due.
func (s *State) Tick(ctx arnsmachine.ExecutionContext, reg *gateways.Registry) (*Distribution, error) {
	if ctx.Height != s.Current.DistributionHeight {
		return nil, nil
	}
	return s.Distribute(ctx, reg)
}

// Distribute settles the current epoch, advances the clock one epoch and prescribes the
// next epoch's observers.
//
// A gateway fails when more than floor(reports × failureThreshold) observers reported it,
// counting every report filed rather than the number of prescribed observers. With no
// reports every gateway passes.
func (s *State) Distribute(ctx arnsmachine.ExecutionContext, reg *gateways.Registry) (*Distribution, error) {
	c := reg.Constants
	e := c.Epochs
	w := s.Current
	obs := s.Observations[w.Start]
	prescribed := s.Prescribed[w.Start]

	d := &Distribution{
		Epoch:           w,
		DistributedAt:   ctx.Height,
		GatewayRewards:  map[arnsmachine.Account]int64{},
		ObserverRewards: map[arnsmachine.Account]int64{},
	}
	if obs != nil {
		d.TotalReports = int64(len(obs.Reports))
	}
	d.FailureThreshold = arnsmachine.MulFloor(d.TotalReports, e.FailureThreshold)

	var eligible []arnsmachine.Account
	failed := map[arnsmachine.Account]bool{}
	for _, addr := range arnsmachine.SortedKeys(reg.Gateways) {
		g := reg.Gateways[addr]
		if !g.EligibleFor(w.Start, w.End) {
			continue
		}
		eligible = append(eligible, addr)
		st := &g.Stats
		st.TotalEpochCount++
		if obs.Failures(addr) > d.FailureThreshold {
			failed[addr] = true
			d.FailedGateways = append(d.FailedGateways, addr)
			st.FailedEpochCount++
			st.FailedConsecutiveEpochs++
			st.PassedConsecutiveEpochs = 0
		} else {
			st.PassedEpochCount++
			st.PassedConsecutiveEpochs++
			st.FailedConsecutiveEpochs = 0
		}
	}
	d.EligibleGateways = int64(len(eligible))

	prescribedGateway := map[arnsmachine.Account]Observer{}
	var rewarding []Observer
	for _, o := range prescribed {
		g, ok := reg.Gateways[o.Gateway]
		if !ok {
			continue
		}
		prescribedGateway[o.Gateway] = o
		g.Stats.PrescribedEpochCount++
		if obs.Reported(o.ObserverWallet) {
			g.Stats.ObservedEpochCount++
			rewarding = append(rewarding, o)
		}
	}

	protocol := c.ProtocolAccount
	pool := arnsmachine.MulFloor(reg.Balances.Get(protocol), e.RewardRate)
	gatewayPool := arnsmachine.MulFloor(pool, e.GatewayShare)
	observerPool := pool - gatewayPool
	d.TotalEligibleRewards = pool

	pay := func(addr arnsmachine.Account, amount int64) error {
		if amount <= 0 {
			return nil
		}
		if err := reg.Balances.Debit(protocol, amount); err != nil {
			return err
		}
		if _, err := reg.Payout(addr, amount); err != nil {
			return err
		}
		d.TotalDistributed += amount
		return nil
	}

	if len(eligible) > 0 {
		perGateway := arnsmachine.DivFloor(gatewayPool, int64(len(eligible)))
		keep := decimal.NewFromInt(1).Sub(e.ObserverPenalty)
		for _, addr := range eligible {
			if failed[addr] {
				continue
			}
			reward := perGateway
			if o, ok := prescribedGateway[addr]; ok && !obs.Reported(o.ObserverWallet) {
				reward = arnsmachine.MulFloor(perGateway, keep)
			}
			if err := pay(addr, reward); err != nil {
				return nil, err
			}
			d.GatewayRewards[addr] = reward
		}
	}
	if len(rewarding) > 0 {
		perObserver := arnsmachine.DivFloor(observerPool, int64(len(rewarding)))
		for _, o := range rewarding {
			if err := pay(o.Gateway, perObserver); err != nil {
				return nil, err
			}
			d.ObserverRewards[o.Gateway] = perObserver
		}
	}

	for _, addr := range eligible {
		g, ok := reg.Gateways[addr]
		if !ok || g.Leaving() || g.Stats.FailedConsecutiveEpochs <= c.Gateways.MaxConsecutiveFailedEpochs {
			continue
		}
		if _, err := reg.Leave(ctx, addr, true); err != nil {
			return nil, fmt.Errorf("removing failing gateway %s: %w", addr, err)
		}
		d.AutoLeft = append(d.AutoLeft, addr)
	}

	s.Distributions[w.Start] = d
	s.Current = WindowFor(c, w.Index+1)
	s.prune(c)
	if err := s.Prescribe(c, reg.Gateways, ctx.Hashes); err != nil {
		return nil, err
	}
	arnsmachine.LogCLI(fmt.Sprintf("epoch %d distributed %d of %d to %d gateways, %d failed",
		w.Index, d.TotalDistributed, pool, len(d.GatewayRewards), len(d.FailedGateways)), 4)
	return d, nil
}
