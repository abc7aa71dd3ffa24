package epochs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/gateways"
)

// Observer is a gateway prescribed to report on an epoch, with the weights it was drawn by.
// Weights are exact rationals rendered as "a/b".
type Observer struct {
	Gateway                   arnsmachine.Account `json:"gatewayAddress"`
	ObserverWallet            arnsmachine.Account `json:"observerAddress"`
	Stake                     int64               `json:"stake"`
	StartHeight               int64               `json:"startHeight"`
	StakeWeight               string              `json:"stakeWeight"`
	TenureWeight              string              `json:"tenureWeight"`
	GatewayRewardRatioWeight  string              `json:"gatewayRewardRatioWeight"`
	ObserverRewardRatioWeight string              `json:"observerRewardRatioWeight"`
	CompositeWeight           string              `json:"compositeWeight"`
	NormalizedWeight          string              `json:"normalizedWeight"`
}

// Weighted is a candidate observer and its weights.
type Weighted struct {
	Gateway    arnsmachine.Account
	G          *gateways.Gateway
	Stake      *big.Rat
	Tenure     *big.Rat
	GatewayRR  *big.Rat
	ObserverRR *big.Rat
	Composite  *big.Rat
	Normalized *big.Rat
}

func (w Weighted) observer() Observer {
	return Observer{
		Gateway:                   w.Gateway,
		ObserverWallet:            w.G.ObserverWallet,
		Stake:                     w.G.TotalStake(),
		StartHeight:               w.G.StartHeight,
		StakeWeight:               w.Stake.RatString(),
		TenureWeight:              w.Tenure.RatString(),
		GatewayRewardRatioWeight:  w.GatewayRR.RatString(),
		ObserverRewardRatioWeight: w.ObserverRR.RatString(),
		CompositeWeight:           w.Composite.RatString(),
		NormalizedWeight:          w.Normalized.RatString(),
	}
}

// Weigh computes the weights of every gateway eligible for the epoch, in address order.
// Normalized weights of the nonzero candidates sum to exactly one.
func Weigh(c *arnsmachine.Constants, gws gateways.Gateways, w Window) []Weighted {
	e := c.Epochs
	maxTenure := new(big.Rat).SetInt64(e.MaxTenureWeight)
	var out []Weighted
	total := new(big.Rat)
	for _, addr := range arnsmachine.SortedKeys(gws) {
		g := gws[addr]
		if !g.EligibleFor(w.Start, w.End) {
			continue
		}
		stake := new(big.Rat).SetFrac64(g.TotalStake(), c.Gateways.MinOperatorStake)
		tenure := new(big.Rat).SetFrac64(w.Start-g.StartHeight, e.TenurePeriod)
		if tenure.Cmp(maxTenure) > 0 {
			tenure.Set(maxTenure)
		}
		grr := new(big.Rat).SetFrac64(1+g.Stats.PassedEpochCount, 1+g.Stats.TotalEpochCount)
		orr := new(big.Rat).SetFrac64(1+g.Stats.ObservedEpochCount, 1+g.Stats.PrescribedEpochCount)
		composite := new(big.Rat).Mul(stake, tenure)
		composite.Mul(composite, grr)
		composite.Mul(composite, orr)
		total.Add(total, composite)
		out = append(out, Weighted{Gateway: addr, G: g, Stake: stake, Tenure: tenure, GatewayRR: grr, ObserverRR: orr, Composite: composite})
	}
	for i := range out {
		out[i].Normalized = new(big.Rat)
		if total.Sign() > 0 {
			out[i].Normalized.Quo(out[i].Composite, total)
		}
	}
	return out
}

// Entropy hashes the blocks sampledBlocksCount blocks behind the epoch start, offset by
// sampledBlocksOffset. Heights below zero clamp to zero.
func Entropy(c *arnsmachine.Constants, hashes arnsmachine.BlockHashSource, epochStart int64) ([]byte, error) {
	if hashes == nil {
		return nil, fmt.Errorf("no block hash source for entropy at %d", epochStart)
	}
	var buf bytes.Buffer
	for i := int64(0); i < c.Epochs.SampledBlocksCount; i++ {
		h := epochStart - c.Epochs.SampledBlocksOffset - i
		if h < 0 {
			h = 0
		}
		b, err := hashes.BlockHash(h)
		if err != nil {
			return nil, fmt.Errorf("block hash at %d: %w", h, err)
		}
		buf.Write(b)
	}
	return arnsmachine.Sha256Bytes(buf.Bytes()), nil
}

var two32 = new(big.Rat).SetInt64(1 << 32)

// random maps the leading 32 bits of a hash into [0, 1).
func random(hash []byte) *big.Rat {
	v := binary.BigEndian.Uint32(hash[:4])
	r := new(big.Rat).SetInt64(int64(v))
	return r.Quo(r, two32)
}

// Select prescribes the observers for an epoch. When no more gateways are eligible than the
// maximum, all of them observe. Otherwise observers are drawn by weight without replacement,
// re-hashing the entropy for each draw. A draw that lands past the remaining weight selects
// nobody. After selectionMaxIterations draws, or once every weighted candidate is drawn, the
// remaining seats go to the heaviest candidates, ties broken by address. The result is
// ordered by ascending normalized weight.
func Select(c *arnsmachine.Constants, gws gateways.Gateways, w Window, hashes arnsmachine.BlockHashSource) ([]Observer, error) {
	candidates := Weigh(c, gws, w)
	want := int64(len(candidates))
	if want > c.Epochs.MaxObservers {
		want = c.Epochs.MaxObservers
	}
	selected := make(map[string]bool, want)
	var chosen []Weighted

	if int64(len(candidates)) <= c.Epochs.MaxObservers {
		chosen = candidates
	} else {
		hash, err := Entropy(c, hashes, w.Start)
		if err != nil {
			return nil, err
		}
		drawable := 0
		for _, cand := range candidates {
			if cand.Normalized.Sign() > 0 {
				drawable++
			}
		}
		for i := int64(0); i < c.Epochs.SelectionMaxIterations && int64(len(chosen)) < want && len(chosen) < drawable; i++ {
			r := random(hash)
			cumulative := new(big.Rat)
			for _, cand := range candidates {
				if selected[cand.Gateway] || cand.Normalized.Sign() == 0 {
					continue
				}
				cumulative.Add(cumulative, cand.Normalized)
				if r.Cmp(cumulative) < 0 {
					selected[cand.Gateway] = true
					chosen = append(chosen, cand)
					break
				}
			}
			hash = arnsmachine.Sha256Bytes(hash)
		}
		if int64(len(chosen)) < want {
			arnsmachine.LogCLI(fmt.Sprintf("observer selection for epoch %d hit the iteration cap, filling %d seats by weight", w.Index, want-int64(len(chosen))), 3)
			rest := make([]Weighted, 0, len(candidates))
			for _, cand := range candidates {
				if !selected[cand.Gateway] {
					rest = append(rest, cand)
				}
			}
			sort.SliceStable(rest, func(i, j int) bool {
				if cmp := rest[i].Normalized.Cmp(rest[j].Normalized); cmp != 0 {
					return cmp > 0
				}
				return rest[i].Gateway < rest[j].Gateway
			})
			chosen = append(chosen, rest[:want-int64(len(chosen))]...)
		}
	}

	sort.SliceStable(chosen, func(i, j int) bool {
		if cmp := chosen[i].Normalized.Cmp(chosen[j].Normalized); cmp != 0 {
			return cmp < 0
		}
		return chosen[i].Gateway < chosen[j].Gateway
	})
	out := make([]Observer, len(chosen))
	for i, cand := range chosen {
		out[i] = cand.observer()
	}
	return out, nil
}

// Prescribe selects and stores the observers of the current epoch.
func (s *State) Prescribe(c *arnsmachine.Constants, gws gateways.Gateways, hashes arnsmachine.BlockHashSource) error {
	observers, err := Select(c, gws, s.Current, hashes)
	if err != nil {
		return err
	}
	s.Prescribed[s.Current.Start] = observers
	return nil
}
