// Package gateways is the registry of gateway operators and the stake delegated to them.
package gateways

import (
	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/balances"
)

const (
	StatusJoined  = "joined"
	StatusLeaving = "leaving"
)

type Settings struct {
	AllowDelegatedStaking    bool   `json:"allowDelegatedStaking"`
	MinDelegatedStake        int64  `json:"minDelegatedStake"`
	DelegateRewardShareRatio int64  `json:"delegateRewardShareRatio"`
	AutoStake                bool   `json:"autoStake"`
	Label                    string `json:"label"`
	FQDN                     string `json:"fqdn"`
	Port                     int64  `json:"port"`
	Protocol                 string `json:"protocol"`
	Properties               string `json:"properties"`
	Note                     string `json:"note"`
}

// Stats are the epoch counters observer weights are derived from.
type Stats struct {
	PassedConsecutiveEpochs int64 `json:"passedConsecutiveEpochs"`
	FailedConsecutiveEpochs int64 `json:"failedConsecutiveEpochs"`
	TotalEpochCount         int64 `json:"totalEpochCount"`
	PassedEpochCount        int64 `json:"passedEpochCount"`
	FailedEpochCount        int64 `json:"failedEpochCount"`
	ObservedEpochCount      int64 `json:"observedEpochCount"`
	PrescribedEpochCount    int64 `json:"prescribedEpochCount"`
}

type Delegate struct {
	DelegatedStake int64                     `json:"delegatedStake"`
	StartHeight    int64                     `json:"startHeight"`
	AutoStake      bool                      `json:"autoStake"`
	Vaults         map[string]balances.Vault `json:"vaults"`
}

type Gateway struct {
	OperatorStake       int64                             `json:"operatorStake"`
	TotalDelegatedStake int64                             `json:"totalDelegatedStake"`
	ObserverWallet      arnsmachine.Account               `json:"observerAddress"`
	Status              string                            `json:"status"`
	StartHeight         int64                             `json:"startHeight"`
	EndHeight           int64                             `json:"endHeight"`
	Settings            Settings                          `json:"settings"`
	Stats               Stats                             `json:"stats"`
	Vaults              map[string]balances.Vault         `json:"vaults"`
	Delegates           map[arnsmachine.Account]*Delegate `json:"delegates"`
}

type Gateways map[arnsmachine.Account]*Gateway

func (d *Delegate) copy() *Delegate {
	c := *d
	c.Vaults = balances.CopyVaultMap(d.Vaults)
	return &c
}

func (g *Gateway) Copy() *Gateway {
	c := *g
	c.Vaults = balances.CopyVaultMap(g.Vaults)
	c.Delegates = make(map[arnsmachine.Account]*Delegate, len(g.Delegates))
	for addr, d := range g.Delegates {
		c.Delegates[addr] = d.copy()
	}
	return &c
}

func (gs Gateways) Copy() Gateways {
	c := make(Gateways, len(gs))
	for addr, g := range gs {
		c[addr] = g.Copy()
	}
	return c
}

// Leaving reports whether the gateway has started to exit the network.
func (g *Gateway) Leaving() bool {
	return g.Status == StatusLeaving
}

// TotalStake is operator plus delegated stake.
func (g *Gateway) TotalStake() int64 {
	return g.OperatorStake + g.TotalDelegatedStake
}

// EligibleFor reports whether the gateway takes part in the epoch [start, end].
func (g *Gateway) EligibleFor(start, end int64) bool {
	return g.StartHeight <= start && !(g.Leaving() && g.EndHeight <= end)
}

// Total is every unit held by the registry: stakes plus gateway and delegate vaults.
func (gs Gateways) Total() (total int64) {
	for _, g := range gs {
		total += g.TotalStake()
		for _, v := range g.Vaults {
			total += v.Balance
		}
		for _, d := range g.Delegates {
			for _, v := range d.Vaults {
				total += v.Balance
			}
		}
	}
	return
}

// ObserverTaken reports whether wallet observes for any gateway other than except.
func (gs Gateways) ObserverTaken(wallet, except arnsmachine.Account) bool {
	for addr, g := range gs {
		if addr != except && g.ObserverWallet == wallet {
			return true
		}
	}
	return false
}

// ByObserver finds the gateway a wallet observes for.
func (gs Gateways) ByObserver(wallet arnsmachine.Account) (arnsmachine.Account, bool) {
	for _, addr := range arnsmachine.SortedKeys(gs) {
		if gs[addr].ObserverWallet == wallet {
			return addr, true
		}
	}
	return "", false
}

func (gs Gateways) AppendTo(hs *arnsmachine.HashSeq) {
	for _, addr := range arnsmachine.SortedKeys(gs) {
		g := gs[addr]
		s := g.Settings
		hs.AppendAll(addr, g.OperatorStake, g.TotalDelegatedStake, g.ObserverWallet, g.Status, g.StartHeight, g.EndHeight,
			s.AllowDelegatedStaking, s.MinDelegatedStake, s.DelegateRewardShareRatio, s.AutoStake, s.Label, s.FQDN,
			s.Port, s.Protocol, s.Properties, s.Note)
		st := g.Stats
		hs.AppendAll(st.PassedConsecutiveEpochs, st.FailedConsecutiveEpochs, st.TotalEpochCount, st.PassedEpochCount,
			st.FailedEpochCount, st.ObservedEpochCount, st.PrescribedEpochCount)
		balances.AppendVaultMap(hs, addr, g.Vaults)
		for _, da := range arnsmachine.SortedKeys(g.Delegates) {
			d := g.Delegates[da]
			hs.AppendAll(da, d.DelegatedStake, d.StartHeight, d.AutoStake)
			balances.AppendVaultMap(hs, da, d.Vaults)
		}
	}
}
