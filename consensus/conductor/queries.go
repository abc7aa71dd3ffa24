package conductor

import (
	"github.com/montanaflynn/stats"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/arns"
	"arnsmachine/consensus/auctions"
	"arnsmachine/consensus/demand"
	"arnsmachine/consensus/epochs"
	"arnsmachine/consensus/gateways"
)

var (
	ErrReservationNotFound  = &arnsmachine.ActionError{Tier: arnsmachine.Rejection, Reason: "reservation-not-found"}
	ErrObservationsNotFound = &arnsmachine.ActionError{Tier: arnsmachine.Rejection, Reason: "observations-not-found"}
	ErrUnknownIntent        = &arnsmachine.ActionError{Tier: arnsmachine.Validation, Reason: "unknown-price-intent"}
	ErrFrameTooFar          = &arnsmachine.ActionError{Tier: arnsmachine.Validation, Reason: "frame-too-far"}
)

type BalanceAnswer struct {
	Address arnsmachine.Account `json:"address"`
	Balance int64               `json:"balance"`
}

type AuctionAnswer struct {
	Live         bool                  `json:"live"`
	Auction      auctions.Auction      `json:"auction"`
	CurrentPrice int64                 `json:"currentPrice"`
	Prices       []auctions.PricePoint `json:"prices"`
}

type PriceAnswer struct {
	Intent string `json:"intent"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
}

type EpochAnswer struct {
	Epoch   epochs.Window `json:"epoch"`
	Current epochs.Window `json:"current"`
}

type StateHashAnswer struct {
	Hash   string `json:"hash"`
	Height int64  `json:"height"`
}

// NetworkSummary is an informational overview for operators. Floats never feed back into
// the ledger.
type NetworkSummary struct {
	Height              int64         `json:"height"`
	Supply              int64         `json:"supply"`
	ProtocolBalance     int64         `json:"protocolBalance"`
	AuctionEscrow       int64         `json:"auctionEscrow"`
	Records             int           `json:"records"`
	Reservations        int           `json:"reservations"`
	Auctions            int           `json:"auctions"`
	Gateways            int           `json:"gateways"`
	LeavingGateways     int           `json:"leavingGateways"`
	TotalStaked         int64         `json:"totalStaked"`
	StakedPermille      int64         `json:"stakedPermille"`
	MeanOperatorStake   float64       `json:"meanOperatorStake"`
	MedianOperatorStake float64       `json:"medianOperatorStake"`
	MedianDelegates     float64       `json:"medianDelegates"`
	Demand              demand.Report `json:"demand"`
}

// Query answers q against a copy of the ledger ticked to the query's frame. A frame at or
// before the last ticked height is answered from the current state. Frames more than one
// epoch plus its distribution delay ahead are refused.
func (c *Conductor) Query(q actions.Query) (interface{}, error) {
	c.mutex.Lock()
	l := c.ledger.Copy()
	hashes := c.hashes
	c.mutex.Unlock()

	frame := actions.Frame(q)
	if frame.Timestamp == 0 {
		frame.Timestamp = l.LastTimestamp
	}
	if horizon := lookahead(l); frame.Height > horizon {
		return nil, ErrFrameTooFar.With("height %d is past %d", frame.Height, horizon)
	}
	if frame.Height > l.LastTickedHeight {
		if _, err := l.TickTo(arnsmachine.ExecutionContext{Height: frame.Height, Timestamp: frame.Timestamp, Hashes: hashes}); err != nil {
			return nil, err
		}
	}
	if frame.Height < l.LastTickedHeight {
		frame.Height = l.LastTickedHeight
	}
	return answer(l, frame, q)
}

func lookahead(l *Ledger) int64 {
	return l.LastTickedHeight + l.Constants.Epochs.Length + l.Constants.Epochs.DistributionDelay
}

func answer(l *Ledger, frame actions.QueryFrame, q actions.Query) (interface{}, error) {
	c := l.Constants
	switch t := q.(type) {
	case *actions.BalanceQuery:
		return BalanceAnswer{Address: t.Address, Balance: l.Balances.Get(t.Address)}, nil
	case *actions.VaultsQuery:
		vaults := l.Vaults[t.Address]
		if vaults == nil {
			return struct{}{}, nil
		}
		return vaults, nil
	case *actions.RecordQuery:
		rec, ok := l.Records[actions.NormalizeName(t.Name)]
		if !ok {
			return nil, arnsmachine.ErrRecordNotFound.With("%s", t.Name)
		}
		return rec, nil
	case *actions.RecordsQuery:
		return l.Records, nil
	case *actions.ReservationQuery:
		res, ok := l.Reservations[actions.NormalizeName(t.Name)]
		if !ok {
			return nil, ErrReservationNotFound.With("%s", t.Name)
		}
		return res, nil
	case *actions.AuctionQuery:
		return auctionAnswer(l, frame, t)
	case *actions.PriceQuery:
		return priceAnswer(l, frame, t)
	case *actions.GatewayQuery:
		g, ok := l.Gateways[t.Address]
		if !ok {
			return nil, arnsmachine.ErrGatewayNotFound.With("%s", t.Address)
		}
		return g, nil
	case *actions.GatewaysQuery:
		return l.Gateways, nil
	case *actions.EpochQuery:
		h := t.AtHeight
		if h == 0 {
			h = frame.Height
		}
		return EpochAnswer{Epoch: epochs.WindowAt(c, h), Current: l.Epochs.Current}, nil
	case *actions.PrescribedObserversQuery:
		start := t.EpochStart
		if start == 0 {
			start = l.Epochs.Current.Start
		}
		return l.Epochs.PrescribedFor(start), nil
	case *actions.ObservationsQuery:
		start := t.EpochStart
		if start == 0 {
			start = l.Epochs.Current.Start
		}
		obs, ok := l.Epochs.Observations[start]
		if !ok {
			return nil, ErrObservationsNotFound.With("epoch starting at %d", start)
		}
		return obs, nil
	case *actions.DistributionsQuery:
		return l.Epochs.Distributions, nil
	case *actions.DemandFactorQuery:
		return l.Demand.Report(c), nil
	case *actions.StateHashQuery:
		return StateHashAnswer{Hash: l.HashSeq().Hash, Height: l.LastTickedHeight}, nil
	case *actions.NetworkSummaryQuery:
		return summarize(l), nil
	}
	return nil, arnsmachine.ErrUnknownAction.With("query %T", q)
}

func auctionAnswer(l *Ledger, frame actions.QueryFrame, q *actions.AuctionQuery) (AuctionAnswer, error) {
	c := l.Constants
	name := actions.NormalizeName(q.Name)
	if au, ok := l.Auctions[name]; ok {
		return AuctionAnswer{
			Live:         true,
			Auction:      au,
			CurrentPrice: au.PriceAt(frame.Height, c),
			Prices:       au.Curve(c, curveInterval(c)),
		}, nil
	}
	if !actions.ValidName(name, c) {
		return AuctionAnswer{}, arnsmachine.ErrInvalidName.With("%q", q.Name)
	}
	if _, ok := l.Records[name]; ok {
		return AuctionAnswer{}, arnsmachine.ErrNameNotAvailable.With("%s is registered", name)
	}
	recordType := q.Type
	if recordType == "" {
		recordType = actions.Lease
	}
	floor, start := auctions.Prices(l.names(), name)
	au := auctions.Auction{
		Name:        name,
		FloorPrice:  floor,
		StartPrice:  start,
		StartHeight: frame.Height,
		EndHeight:   frame.Height + c.Auctions.Duration,
		Type:        recordType,
	}
	return AuctionAnswer{Auction: au, CurrentPrice: start, Prices: au.Curve(c, curveInterval(c))}, nil
}

func curveInterval(c *arnsmachine.Constants) int64 {
	if i := c.Auctions.Duration / 100; i > 0 {
		return i
	}
	return 1
}

func priceAnswer(l *Ledger, frame actions.QueryFrame, q *actions.PriceQuery) (PriceAnswer, error) {
	c := l.Constants
	name := actions.NormalizeName(q.Name)
	if !actions.ValidName(name, c) {
		return PriceAnswer{}, arnsmachine.ErrInvalidName.With("%q", q.Name)
	}
	a := PriceAnswer{Intent: q.Intent, Name: name}
	years := q.Years
	if years == 0 {
		years = 1
	}
	recordType := q.Type
	if recordType == "" {
		recordType = actions.Lease
	}
	switch q.Intent {
	case actions.KindBuyRecord:
		a.Price = arns.RegistrationFee(c, l.Demand, name, recordType, years)
	case actions.KindExtendRecord:
		a.Price = arns.ExtensionFee(c, l.Demand, name, years)
	case actions.KindUpgradeName:
		a.Price = arns.UpgradeFee(c, l.Demand, name)
	case actions.KindIncreaseUndernameCount:
		rec, ok := l.Records[name]
		if !ok {
			return a, arnsmachine.ErrRecordNotFound.With("%s", name)
		}
		if q.Qty <= 0 {
			return a, arnsmachine.ErrInvalidQuantity.With("undername qty %d", q.Qty)
		}
		a.Price = arns.UndernameFee(c, l.Demand, name, rec, q.Qty, frame.Timestamp)
	case actions.KindSubmitAuctionBid:
		if au, ok := l.Auctions[name]; ok {
			a.Price = au.PriceAt(frame.Height, c)
		} else {
			a.Price, _ = auctions.Prices(l.names(), name)
		}
	default:
		return a, ErrUnknownIntent.With("%q", q.Intent)
	}
	return a, nil
}

func summarize(l *Ledger) NetworkSummary {
	s := NetworkSummary{
		Height:          l.LastTickedHeight,
		Supply:          l.Supply(),
		ProtocolBalance: l.Balances.Get(l.Constants.ProtocolAccount),
		AuctionEscrow:   l.Balances.Get(arnsmachine.AuctionEscrowAccount),
		Records:         len(l.Records),
		Reservations:    len(l.Reservations),
		Auctions:        len(l.Auctions),
		Gateways:        len(l.Gateways),
		Demand:          l.Demand.Report(l.Constants),
	}
	var stakes, delegates []float64
	for _, addr := range arnsmachine.SortedKeys(l.Gateways) {
		g := l.Gateways[addr]
		if g.Status == gateways.StatusLeaving {
			s.LeavingGateways++
		}
		s.TotalStaked += g.TotalStake()
		stakes = append(stakes, float64(g.OperatorStake))
		delegates = append(delegates, float64(len(g.Delegates)))
	}
	s.StakedPermille = arnsmachine.Permille(s.TotalStaked, s.Supply)
	if mean, err := stats.Mean(stakes); err == nil {
		s.MeanOperatorStake = mean
	}
	if median, err := stats.Median(stakes); err == nil {
		s.MedianOperatorStake = median
	}
	if median, err := stats.Median(delegates); err == nil {
		s.MedianDelegates = median
	}
	return s
}
