package actions

import (
	"arnsmachine/arnsmachine"
)

// Query is a read-only request. Queries are answered against a ticked copy of the ledger.
type Query interface {
	QueryKind() string
	isQuery()
}

const (
	QueryBalance             = "balance"
	QueryVaults              = "vaults"
	QueryRecord              = "record"
	QueryRecords             = "records"
	QueryReservation         = "reservation"
	QueryAuction             = "auction"
	QueryPrice               = "price"
	QueryGateway             = "gateway"
	QueryGateways            = "gateways"
	QueryEpoch               = "epoch"
	QueryPrescribedObservers = "prescribed-observers"
	QueryObservations        = "observations"
	QueryDistributions       = "distributions"
	QueryDemandFactor        = "demand-factor"
	QueryStateHash           = "state-hash"
	QueryNetworkSummary      = "network-summary"
)

// QueryFrame carries the height a query should be evaluated at. A zero height means the
// last ticked height.
type QueryFrame struct {
	Height    int64 `json:"height,omitempty" schema:"height"`
	Timestamp int64 `json:"timestamp,omitempty" schema:"timestamp"`
}

type BalanceQuery struct {
	QueryFrame
	Address arnsmachine.Account `json:"address" schema:"address,required"`
}

type VaultsQuery struct {
	QueryFrame
	Address arnsmachine.Account `json:"address" schema:"address,required"`
}

type RecordQuery struct {
	QueryFrame
	Name string `json:"name" schema:"name,required"`
}

type RecordsQuery struct {
	QueryFrame
}

type ReservationQuery struct {
	QueryFrame
	Name string `json:"name" schema:"name,required"`
}

type AuctionQuery struct {
	QueryFrame
	Name string `json:"name" schema:"name,required"`
	Type string `json:"type,omitempty" schema:"type"` // used to price a name with no live auction
}

// PriceQuery prices an action without performing it.
type PriceQuery struct {
	QueryFrame
	Intent string `json:"intent" schema:"intent,required"`
	Name   string `json:"name" schema:"name,required"`
	Type   string `json:"type,omitempty" schema:"type"`
	Years  int64  `json:"years,omitempty" schema:"years"`
	Qty    int64  `json:"qty,omitempty" schema:"qty"`
}

type GatewayQuery struct {
	QueryFrame
	Address arnsmachine.Account `json:"address" schema:"address,required"`
}

type GatewaysQuery struct {
	QueryFrame
}

type EpochQuery struct {
	QueryFrame
	AtHeight int64 `json:"atHeight,omitempty" schema:"atHeight"`
}

type PrescribedObserversQuery struct {
	QueryFrame
	EpochStart int64 `json:"epochStart,omitempty" schema:"epochStart"`
}

type ObservationsQuery struct {
	QueryFrame
	EpochStart int64 `json:"epochStart,omitempty" schema:"epochStart"`
}

type DistributionsQuery struct {
	QueryFrame
}

type DemandFactorQuery struct {
	QueryFrame
}

type StateHashQuery struct {
	QueryFrame
}

type NetworkSummaryQuery struct {
	QueryFrame
}

func (*BalanceQuery) QueryKind() string             { return QueryBalance }
func (*VaultsQuery) QueryKind() string              { return QueryVaults }
func (*RecordQuery) QueryKind() string              { return QueryRecord }
func (*RecordsQuery) QueryKind() string             { return QueryRecords }
func (*ReservationQuery) QueryKind() string         { return QueryReservation }
func (*AuctionQuery) QueryKind() string             { return QueryAuction }
func (*PriceQuery) QueryKind() string               { return QueryPrice }
func (*GatewayQuery) QueryKind() string             { return QueryGateway }
func (*GatewaysQuery) QueryKind() string            { return QueryGateways }
func (*EpochQuery) QueryKind() string               { return QueryEpoch }
func (*PrescribedObserversQuery) QueryKind() string { return QueryPrescribedObservers }
func (*ObservationsQuery) QueryKind() string        { return QueryObservations }
func (*DistributionsQuery) QueryKind() string       { return QueryDistributions }
func (*DemandFactorQuery) QueryKind() string        { return QueryDemandFactor }
func (*StateHashQuery) QueryKind() string           { return QueryStateHash }
func (*NetworkSummaryQuery) QueryKind() string      { return QueryNetworkSummary }

func (*BalanceQuery) isQuery()             {}
func (*VaultsQuery) isQuery()              {}
func (*RecordQuery) isQuery()              {}
func (*RecordsQuery) isQuery()             {}
func (*ReservationQuery) isQuery()         {}
func (*AuctionQuery) isQuery()             {}
func (*PriceQuery) isQuery()               {}
func (*GatewayQuery) isQuery()             {}
func (*GatewaysQuery) isQuery()            {}
func (*EpochQuery) isQuery()               {}
func (*PrescribedObserversQuery) isQuery() {}
func (*ObservationsQuery) isQuery()        {}
func (*DistributionsQuery) isQuery()       {}
func (*DemandFactorQuery) isQuery()        {}
func (*StateHashQuery) isQuery()           {}
func (*NetworkSummaryQuery) isQuery()      {}

// NewQuery returns an empty query for a kind, ready to be decoded into.
func NewQuery(kind string) (Query, bool) {
	switch kind {
	case QueryBalance:
		return &BalanceQuery{}, true
	case QueryVaults:
		return &VaultsQuery{}, true
	case QueryRecord:
		return &RecordQuery{}, true
	case QueryRecords:
		return &RecordsQuery{}, true
	case QueryReservation:
		return &ReservationQuery{}, true
	case QueryAuction:
		return &AuctionQuery{}, true
	case QueryPrice:
		return &PriceQuery{}, true
	case QueryGateway:
		return &GatewayQuery{}, true
	case QueryGateways:
		return &GatewaysQuery{}, true
	case QueryEpoch:
		return &EpochQuery{}, true
	case QueryPrescribedObservers:
		return &PrescribedObserversQuery{}, true
	case QueryObservations:
		return &ObservationsQuery{}, true
	case QueryDistributions:
		return &DistributionsQuery{}, true
	case QueryDemandFactor:
		return &DemandFactorQuery{}, true
	case QueryStateHash:
		return &StateHashQuery{}, true
	case QueryNetworkSummary:
		return &NetworkSummaryQuery{}, true
	}
	return nil, false
}

// Frame returns the evaluation frame embedded in every query.
func Frame(q Query) QueryFrame {
	switch t := q.(type) {
	case *BalanceQuery:
		return t.QueryFrame
	case *VaultsQuery:
		return t.QueryFrame
	case *RecordQuery:
		return t.QueryFrame
	case *RecordsQuery:
		return t.QueryFrame
	case *ReservationQuery:
		return t.QueryFrame
	case *AuctionQuery:
		return t.QueryFrame
	case *PriceQuery:
		return t.QueryFrame
	case *GatewayQuery:
		return t.QueryFrame
	case *GatewaysQuery:
		return t.QueryFrame
	case *EpochQuery:
		return t.QueryFrame
	case *PrescribedObserversQuery:
		return t.QueryFrame
	case *ObservationsQuery:
		return t.QueryFrame
	case *DistributionsQuery:
		return t.QueryFrame
	case *DemandFactorQuery:
		return t.QueryFrame
	case *StateHashQuery:
		return t.QueryFrame
	case *NetworkSummaryQuery:
		return t.QueryFrame
	}
	return QueryFrame{}
}
