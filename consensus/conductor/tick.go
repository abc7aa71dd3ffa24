package conductor

import (
	"fmt"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/arns"
	"arnsmachine/consensus/auctions"
	"arnsmachine/consensus/epochs"
)

// TickReport is what happened while the ledger caught up to a height.
type TickReport struct {
	From          int64                  `json:"from"`
	To            int64                  `json:"to"`
	Rollovers     int64                  `json:"demandRollovers,omitempty"`
	Settled       []string               `json:"settledAuctions,omitempty"`
	Removed       []arnsmachine.Account  `json:"removedGateways,omitempty"`
	Released      int64                  `json:"releasedFromVaults,omitempty"`
	Pruned        []string               `json:"prunedNames,omitempty"`
	Distributions []*epochs.Distribution `json:"distributions,omitempty"`
}

// Empty reports whether the tick changed nothing but the height.
func (r *TickReport) Empty() bool {
	return r.Rollovers == 0 && len(r.Settled) == 0 && len(r.Removed) == 0 && r.Released == 0 &&
		len(r.Pruned) == 0 && len(r.Distributions) == 0
}

// TickTo runs every height in (LastTickedHeight, ctx.Height] in ascending order. Each height
// inherits ctx's timestamp. Ticking to the last ticked height does nothing, ticking
// backwards is ErrHeightRegression and leaves the ledger untouched.
//
// An error part way through leaves the ledger partially ticked; callers tick a copy.
func (l *Ledger) TickTo(ctx arnsmachine.ExecutionContext) (*TickReport, error) {
	report := &TickReport{From: l.LastTickedHeight, To: ctx.Height}
	if ctx.Height < l.LastTickedHeight {
		return report, fmt.Errorf("%w: asked for %d, ledger is at %d", arnsmachine.ErrHeightRegression, ctx.Height, l.LastTickedHeight)
	}
	for h := l.LastTickedHeight + 1; h <= ctx.Height; h++ {
		if err := l.tickHeight(ctx.AtHeight(h), report); err != nil {
			return report, fmt.Errorf("tick at %d: %w", h, err)
		}
		l.LastTickedHeight = h
	}
	if ctx.Timestamp > l.LastTimestamp {
		l.LastTimestamp = ctx.Timestamp
	}
	return report, nil
}

func (l *Ledger) tickHeight(ctx arnsmachine.ExecutionContext, report *TickReport) error {
	c := l.Constants
	l.Seen.forget(ctx.Height, c.DedupeWindow)
	if l.Demand.Update(ctx.Height, c) {
		report.Rollovers++
	}
	settled, err := auctions.Expire(ctx, l.names(), l.Auctions)
	if err != nil {
		return err
	}
	report.Settled = append(report.Settled, settled...)

	removed, err := l.registry().ReleaseVaults(ctx.Height)
	if err != nil {
		return err
	}
	report.Removed = append(report.Removed, removed...)

	released, err := l.Vaults.Unlock(ctx.Height, l.Balances)
	if err != nil {
		return err
	}
	report.Released += released

	report.Pruned = append(report.Pruned, arns.Prune(ctx.Timestamp, c, l.Records, l.Reservations)...)

	d, err := l.Epochs.Tick(ctx, l.registry())
	if err != nil {
		return err
	}
	if d != nil {
		report.Distributions = append(report.Distributions, d)
	}
	return nil
}
