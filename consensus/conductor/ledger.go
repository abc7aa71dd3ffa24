package conductor

import (
	"encoding/hex"

	jsoniter "github.com/json-iterator/go"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/arns"
	"arnsmachine/consensus/auctions"
	"arnsmachine/consensus/balances"
	"arnsmachine/consensus/demand"
	"arnsmachine/consensus/epochs"
	"arnsmachine/consensus/gateways"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Ledger is the complete replicated state. Every engine works on a part of it; only the
// conductor owns the whole.
type Ledger struct {
	Constants        *arnsmachine.Constants `json:"constants"`
	LastTickedHeight int64                  `json:"lastTickedHeight"`
	LastTimestamp    int64                  `json:"lastTimestamp"`
	Balances         balances.Balances      `json:"balances"`
	Vaults           balances.Vaults        `json:"vaults"`
	Records          arns.Records           `json:"records"`
	Reservations     arns.Reservations      `json:"reservations"`
	Demand           *demand.State          `json:"demandFactoring"`
	Auctions         auctions.Auctions      `json:"auctions"`
	Gateways         gateways.Gateways      `json:"gateways"`
	Epochs           *epochs.State          `json:"epochs"`
	Seen             SeenTxIDs              `json:"seenTxIds"`
}

// Copy returns a deep copy. Constants are shared; nothing mutates them after ignition.
func (l *Ledger) Copy() *Ledger {
	return &Ledger{
		Constants:        l.Constants,
		LastTickedHeight: l.LastTickedHeight,
		LastTimestamp:    l.LastTimestamp,
		Balances:         l.Balances.Copy(),
		Vaults:           l.Vaults.Copy(),
		Records:          l.Records.Copy(),
		Reservations:     l.Reservations.Copy(),
		Demand:           l.Demand.Copy(),
		Auctions:         l.Auctions.Copy(),
		Gateways:         l.Gateways.Copy(),
		Epochs:           l.Epochs.Copy(),
		Seen:             l.Seen.Copy(),
	}
}

func (l *Ledger) names() *arns.Registry {
	return &arns.Registry{
		Constants:    l.Constants,
		Balances:     l.Balances,
		Demand:       l.Demand,
		Records:      l.Records,
		Reservations: l.Reservations,
	}
}

func (l *Ledger) registry() *gateways.Registry {
	return &gateways.Registry{
		Constants: l.Constants,
		Balances:  l.Balances,
		Gateways:  l.Gateways,
	}
}

// Supply is every unit the ledger holds, protocol balance included. Only genesis changes it.
func (l *Ledger) Supply() int64 {
	return l.Balances.Total() + l.Vaults.Total() + l.Gateways.Total()
}

type appender interface {
	AppendTo(hs *arnsmachine.HashSeq)
}

// HashSeq hashes each engine's state separately and folds the roots into one.
func (l *Ledger) HashSeq() (hs arnsmachine.HashSeq) {
	hs.Mind = "ledger"
	hs.Sequence = l.LastTickedHeight
	parts := []appender{l.Constants, l.Balances, l.Vaults, l.Records, l.Reservations, l.Demand, l.Auctions, l.Gateways, l.Epochs, l.Seen}
	var leaves [][]byte
	for _, p := range parts {
		var part arnsmachine.HashSeq
		p.AppendTo(&part)
		part.S256()
		b, err := hex.DecodeString(part.Hash)
		if err != nil {
			arnsmachine.LogCLI(err.Error(), 1)
		}
		leaves = append(leaves, b)
	}
	var height arnsmachine.HashSeq
	height.AppendAll(l.LastTickedHeight, l.LastTimestamp)
	height.S256()
	b, _ := hex.DecodeString(height.Hash)
	leaves = append(leaves, b)
	hs.Hash = hex.EncodeToString(arnsmachine.Merkle(leaves)[0])
	hs.CreatedAt = l.LastTimestamp
	return
}

// restore fills in empty maps left by a partial snapshot or genesis file.
func (l *Ledger) restore() {
	if l.Balances == nil {
		l.Balances = balances.Balances{}
	}
	if l.Vaults == nil {
		l.Vaults = balances.Vaults{}
	}
	if l.Records == nil {
		l.Records = arns.Records{}
	}
	if l.Reservations == nil {
		l.Reservations = arns.Reservations{}
	}
	if l.Auctions == nil {
		l.Auctions = auctions.Auctions{}
	}
	if l.Gateways == nil {
		l.Gateways = gateways.Gateways{}
	}
	for _, g := range l.Gateways {
		if g.Vaults == nil {
			g.Vaults = map[string]balances.Vault{}
		}
		if g.Delegates == nil {
			g.Delegates = map[arnsmachine.Account]*gateways.Delegate{}
		}
	}
	if l.Seen == nil {
		l.Seen = SeenTxIDs{}
	}
	if l.Epochs == nil {
		l.Epochs = epochs.NewState(l.Constants)
	}
	if l.Epochs.Prescribed == nil {
		l.Epochs.Prescribed = map[int64][]epochs.Observer{}
	}
	if l.Epochs.Observations == nil {
		l.Epochs.Observations = map[int64]*epochs.Observations{}
	}
	if l.Epochs.Distributions == nil {
		l.Epochs.Distributions = map[int64]*epochs.Distribution{}
	}
}
