// Package auctions runs Dutch auctions for names. The first bid escrows the floor price in
// arnsmachine.AuctionEscrowAccount and opens the auction; the price then decays from the start price toward the floor until a
// bidder pays it or the auction ends and settles to the initiator at the floor.
package auctions

import (
	"fmt"

	"github.com/shopspring/decimal"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/arns"
)

type Auction struct {
	Name         string              `json:"name"`
	Initiator    arnsmachine.Account `json:"initiator"`
	FloorPrice   int64               `json:"floorPrice"`
	StartPrice   int64               `json:"startPrice"`
	StartHeight  int64               `json:"startHeight"`
	EndHeight    int64               `json:"endHeight"`
	Type         string              `json:"type"`
	ContractTxID string              `json:"contractTxId"`
	Years        int64               `json:"years,omitempty"`
}

type Auctions map[string]Auction

func (a Auctions) Copy() Auctions {
	c := make(Auctions, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

func (a Auctions) AppendTo(hs *arnsmachine.HashSeq) {
	for _, name := range arnsmachine.SortedKeys(a) {
		au := a[name]
		hs.AppendAll(name, au.Initiator, au.FloorPrice, au.StartPrice, au.StartHeight, au.EndHeight, au.Type, au.ContractTxID, au.Years)
	}
}

// Has reports whether name is currently being auctioned.
func (a Auctions) Has(name string) bool {
	_, ok := a[actions.NormalizeName(name)]
	return ok
}

// Prices returns the floor and start price an auction for name would open at now.
func Prices(r *arns.Registry, name string) (floor, start int64) {
	c := r.Constants.Auctions
	oneYear := arns.RegistrationFee(r.Constants, r.Demand, name, actions.Lease, 1)
	floor = arnsmachine.MulFloor(oneYear, c.FloorMultiplier)
	start = arnsmachine.MulFloor(floor, c.StartMultiplier)
	return
}

// PriceAt is max(floor, min(start, start × (1 − decayRate × Δh)^exponent)) for heights up to
// the end of the auction.
func (au Auction) PriceAt(height int64, c *arnsmachine.Constants) int64 {
	if height <= au.StartHeight {
		return au.StartPrice
	}
	if height > au.EndHeight {
		return au.FloorPrice
	}
	elapsed := decimal.NewFromInt(height - au.StartHeight)
	base := decimal.NewFromInt(1).Sub(c.Auctions.DecayRate.Mul(elapsed))
	if !base.IsPositive() {
		return au.FloorPrice
	}
	price := arnsmachine.MulFloor(au.StartPrice, arnsmachine.PowTruncated(base, c.Auctions.ScalingExponent))
	if price > au.StartPrice {
		price = au.StartPrice
	}
	if price < au.FloorPrice {
		price = au.FloorPrice
	}
	return price
}

// PricePoint is one sample of an auction's price curve.
type PricePoint struct {
	Height int64 `json:"height"`
	Price  int64 `json:"price"`
}

// Curve samples the price every interval blocks from start to end.
func (au Auction) Curve(c *arnsmachine.Constants, interval int64) []PricePoint {
	if interval <= 0 {
		interval = 1
	}
	var points []PricePoint
	for h := au.StartHeight; h <= au.EndHeight; h += interval {
		points = append(points, PricePoint{Height: h, Price: au.PriceAt(h, c)})
	}
	return points
}

// HandleBid opens an auction or, when one is running, tries to win it. A winning bid returns
// the created record.
func HandleBid(ctx arnsmachine.ExecutionContext, r *arns.Registry, auctions Auctions, a *actions.SubmitAuctionBid) (*arns.Record, *Auction, error) {
	name := actions.NormalizeName(a.Name)
	if _, err := r.CheckAvailable(ctx, name); err != nil {
		return nil, nil, err
	}
	protocol := r.Constants.ProtocolAccount
	escrow := arnsmachine.AuctionEscrowAccount

	au, running := auctions[name]
	if !running {
		floor, start := Prices(r, name)
		if a.Qty != 0 && a.Qty < floor {
			return nil, nil, arnsmachine.ErrBidTooLow.With("opening bid %d below floor %d", a.Qty, floor)
		}
		if err := r.Balances.Transfer(ctx.Caller, escrow, floor); err != nil {
			return nil, nil, err
		}
		au = Auction{
			Name:         name,
			Initiator:    ctx.Caller,
			FloorPrice:   floor,
			StartPrice:   start,
			StartHeight:  ctx.Height,
			EndHeight:    ctx.Height + r.Constants.Auctions.Duration,
			Type:         a.RecordType(),
			ContractTxID: arns.ProcessID(ctx, a.ContractTxID),
		}
		if au.Type == actions.Lease {
			au.Years = a.LeaseYears()
		}
		auctions[name] = au
		return nil, &au, nil
	}

	if ctx.Height > au.EndHeight {
		return nil, nil, arnsmachine.ErrAuctionExpired.With("%s ended at %d", name, au.EndHeight)
	}
	price := au.PriceAt(ctx.Height, r.Constants)
	bid := price
	if a.Qty != 0 {
		if a.Qty < price {
			return nil, nil, arnsmachine.ErrBidTooLow.With("bid %d below current price %d", a.Qty, price)
		}
		bid = a.Qty
	}
	available := r.Balances.Get(ctx.Caller)
	if ctx.Caller == au.Initiator {
		available += au.FloorPrice
	}
	if available < bid {
		return nil, nil, arnsmachine.ErrInsufficientBalance.With("%s has %d, bid is %d", ctx.Caller, available, bid)
	}
	if err := r.Balances.Transfer(escrow, au.Initiator, au.FloorPrice); err != nil {
		return nil, nil, err
	}
	if err := r.Balances.Transfer(ctx.Caller, protocol, bid); err != nil {
		return nil, nil, err
	}
	rec := r.NewRecord(arns.ProcessID(ctx, a.ContractTxID), au.Type, au.Years, bid, ctx.Timestamp)
	r.Settle(name, rec)
	delete(auctions, name)
	return &rec, nil, nil
}

// Expire settles every auction that ended before height to its initiator at the floor
// price. The floor was escrowed when the auction opened and now moves to the protocol
// balance, so nothing is charged again.
func Expire(ctx arnsmachine.ExecutionContext, r *arns.Registry, auctions Auctions) (settled []string, err error) {
	for _, name := range arnsmachine.SortedKeys(auctions) {
		au := auctions[name]
		if ctx.Height <= au.EndHeight {
			continue
		}
		if err := r.Balances.Transfer(arnsmachine.AuctionEscrowAccount, r.Constants.ProtocolAccount, au.FloorPrice); err != nil {
			return settled, fmt.Errorf("settling auction for %s: %w", name, err)
		}
		rec := r.NewRecord(au.ContractTxID, au.Type, au.Years, au.FloorPrice, ctx.Timestamp)
		r.Settle(name, rec)
		delete(auctions, name)
		settled = append(settled, name)
	}
	return
}
