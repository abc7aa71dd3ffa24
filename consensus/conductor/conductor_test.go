package conductor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/arns"
	"arnsmachine/consensus/epochs"
	"arnsmachine/consensus/gateways"
	"arnsmachine/database"
)

var (
	alice = strings.Repeat("a", 43)
	bob   = strings.Repeat("b", 43)
	ant   = strings.Repeat("P", 43)
	gw1   = strings.Repeat("1", 43)
	gw2   = strings.Repeat("2", 43)
	gw3   = strings.Repeat("3", 43)
)

const now = int64(1_700_000_000)

type seeded string

func (s seeded) BlockHash(h int64) ([]byte, error) {
	return arnsmachine.Sha256Bytes([]byte(fmt.Sprintf("%s/%d", s, h))), nil
}

func constants() *arnsmachine.Constants {
	c := arnsmachine.DefaultConstants()
	c.Epochs.Length = 100
	c.Epochs.DistributionDelay = 15
	c.Epochs.MaxObservers = 2
	c.Demand.PeriodLength = 50
	c.Gateways.MinOperatorStake = 10_000
	c.Gateways.MinDelegatedStake = 100
	return c
}

func genesis() Genesis {
	c := constants()
	return Genesis{
		Timestamp: now,
		Balances: map[arnsmachine.Account]int64{
			alice:             10_000_000,
			bob:               50_000,
			c.ProtocolAccount: 1_000_000,
		},
		Fees: map[int64]int64{1: 1_000_000},
		Reservations: map[string]arns.Reservation{
			"ar": {Target: alice},
		},
		Gateways: map[arnsmachine.Account]GenesisGateway{
			gw1: {OperatorStake: 10_000},
			gw2: {OperatorStake: 20_000},
			gw3: {OperatorStake: 30_000, Settings: gateways.Settings{AllowDelegatedStaking: true, DelegateRewardShareRatio: 10}},
		},
	}
}

func newConductor(t *testing.T) *Conductor {
	l, err := Ignite(constants(), genesis(), seeded("x"))
	require.NoError(t, err)
	return New(l, seeded("x"))
}

func env(caller string, height int64, a actions.Action) actions.Envelope {
	return actions.Envelope{Caller: caller, Height: height, Timestamp: now + height, Action: a}
}

func TestIgnite(t *testing.T) {
	c := newConductor(t)
	l := c.Snapshot()
	assert.Equal(t, int64(10_000_000+50_000+1_000_000+60_000), l.Supply())
	assert.Len(t, l.Epochs.PrescribedFor(0), 2)
	assert.Equal(t, int64(1_000_000), l.Demand.Fees.For(7))

	c2 := constants()
	c2.Epochs.ZeroStartHeight = 5
	g := genesis()
	g.Height = 10
	_, err := Ignite(c2, g, seeded("x"))
	assert.Error(t, err, "epoch zero before genesis")
}

func TestNamePurchaseThroughConductor(t *testing.T) {
	c := newConductor(t)
	r, err := c.Handle(env(alice, 10, &actions.BuyRecord{Name: "ardrive", ContractTxID: ant, Years: 1, Type: actions.Lease}))
	require.NoError(t, err)
	assert.True(t, r.Applied)
	assert.Equal(t, actions.KindBuyRecord, r.Kind)
	assert.Len(t, r.TxID, 43)

	l := c.Snapshot()
	assert.Equal(t, int64(9_000_000), l.Balances.Get(alice))
	assert.Equal(t, now+10+31_536_000, l.Records["ardrive"].EndTimestamp)
	assert.Equal(t, r.StateHash, l.HashSeq().Hash)
}

func TestReservedShortPermabuy(t *testing.T) {
	c := newConductor(t)
	_, err := c.Handle(env(bob, 10, &actions.BuyRecord{Name: "ar", ContractTxID: ant, Type: actions.Permabuy}))
	assert.ErrorIs(t, err, arnsmachine.ErrNameReserved)
	_, err = c.Handle(env(alice, 11, &actions.BuyRecord{Name: "ar", ContractTxID: ant, Type: actions.Permabuy}))
	require.NoError(t, err)
	l := c.Snapshot()
	assert.True(t, l.Records["ar"].IsPermabuy())
	assert.NotContains(t, l.Reservations, "ar")
}

func TestRejectionIsAtomic(t *testing.T) {
	c := newConductor(t)
	before := c.Snapshot().Supply()

	r, err := c.Handle(env(bob, 20, &actions.JoinNetwork{Qty: 10_000, GatewayConfig: actions.GatewayConfig{
		Label: "bob", FQDN: "bob.example.com", Port: 443, Protocol: "https", Properties: ant, ObserverWallet: gw1,
	}}))
	assert.ErrorIs(t, err, arnsmachine.ErrObserverWalletTaken)
	assert.False(t, r.Applied)
	assert.Equal(t, "observer-wallet-taken", r.Reason)

	l := c.Snapshot()
	assert.Equal(t, int64(20), l.LastTickedHeight, "the tick is kept")
	assert.Equal(t, int64(50_000), l.Balances.Get(bob))
	assert.NotContains(t, l.Gateways, bob)
	assert.Equal(t, before, l.Supply())
	assert.Equal(t, r.StateHash, l.HashSeq().Hash)
}

func TestValidationDoesNotTick(t *testing.T) {
	c := newConductor(t)
	_, err := c.Handle(env(alice, 30, &actions.Transfer{Target: bob, Qty: 0}))
	assert.ErrorIs(t, err, arnsmachine.ErrInvalidQuantity)
	assert.Equal(t, arnsmachine.Validation, arnsmachine.TierOf(err))
	assert.Equal(t, int64(0), c.Snapshot().LastTickedHeight)

	_, err = c.Handle(env("not an address", 30, &actions.Tick{}))
	assert.ErrorIs(t, err, arnsmachine.ErrInvalidAddress)

	_, err = c.Handle(actions.Envelope{Kind: "mint", Caller: alice, Height: 30})
	assert.ErrorIs(t, err, arnsmachine.ErrUnknownAction)
}

func TestProtocolAccountCannotAct(t *testing.T) {
	c := newConductor(t)
	protocol := constants().ProtocolAccount
	require.True(t, arnsmachine.ValidAccount(protocol))

	for _, a := range []actions.Action{
		&actions.Transfer{Target: bob, Qty: 1_000_000},
		&actions.VaultedTransfer{Recipient: bob, Qty: 1_000, LockLength: 20_000},
	} {
		r, err := c.Handle(env(protocol, 10, a))
		assert.ErrorIs(t, err, arnsmachine.ErrReservedCaller, a.Kind())
		assert.Equal(t, arnsmachine.Validation, arnsmachine.TierOf(err))
		assert.False(t, r.Applied)
	}
	l := c.Snapshot()
	assert.Equal(t, int64(1_000_000), l.Balances.Get(protocol))
	assert.Equal(t, int64(50_000), l.Balances.Get(bob))
}

func TestHeightRegression(t *testing.T) {
	c := newConductor(t)
	_, err := c.Handle(env(alice, 10, &actions.Tick{}))
	require.NoError(t, err)
	hash := c.HashSeq().Hash

	_, err = c.Handle(env(alice, 5, &actions.Transfer{Target: bob, Qty: 1}))
	assert.ErrorIs(t, err, arnsmachine.ErrHeightRegression)
	assert.Zero(t, arnsmachine.TierOf(err), "not a rejection")
	assert.Equal(t, hash, c.HashSeq().Hash)

	_, err = c.Handle(env(alice, 10, &actions.Transfer{Target: bob, Qty: 1}))
	assert.NoError(t, err, "same height is fine")
}

func TestIdempotentCatchUp(t *testing.T) {
	stepped := newConductor(t)
	direct := newConductor(t)
	for _, h := range []int64{1, 49, 50, 113, 114, 115, 180} {
		_, err := stepped.TickTo(h, now)
		require.NoError(t, err)
	}
	_, err := stepped.TickTo(180, now)
	require.NoError(t, err, "ticking to the last height is a no-op")
	report, err := direct.TickTo(180, now)
	require.NoError(t, err)

	assert.Len(t, report.Distributions, 1)
	assert.Equal(t, int64(3), report.Rollovers)
	assert.Equal(t, stepped.HashSeq().Hash, direct.HashSeq().Hash)
	assert.Equal(t, stepped.Snapshot().Epochs.Current, epochs.WindowFor(constants(), 1))
}

func TestConservationAcrossEpochs(t *testing.T) {
	c := newConductor(t)
	supply := c.Snapshot().Supply()
	steps := []actions.Envelope{
		env(alice, 5, &actions.Transfer{Target: bob, Qty: 1_000}),
		env(alice, 6, &actions.CreateVault{Qty: 5_000, LockLength: 20_000}),
		env(bob, 7, &actions.DelegateStake{Target: gw3, Qty: 500}),
		env(alice, 8, &actions.SubmitAuctionBid{Name: "x", ContractTxID: ant}),
		env(gw2, 20, &actions.DecreaseOperatorStake{Qty: 5_000}),
		env(gw1, 30, &actions.LeaveNetwork{}),
	}
	for _, e := range steps {
		_, err := c.Handle(e)
		require.NoError(t, err, e.Kind)
		assert.Equal(t, supply, c.Snapshot().Supply(), e.Kind)
	}
	for _, h := range []int64{114, 214, 5_100, 30_000, 70_000} {
		_, err := c.TickTo(h, now+h)
		require.NoError(t, err)
		assert.Equal(t, supply, c.Snapshot().Supply(), "at %d", h)
	}
	l := c.Snapshot()
	assert.NotContains(t, l.Gateways, gw1, "leave completed")
	assert.Contains(t, l.Records, "x", "auction settled to its initiator")
	assert.Len(t, l.Epochs.Distributions, 1+int(70_000-115)/100)
}

func TestQueries(t *testing.T) {
	c := newConductor(t)
	_, err := c.Handle(env(alice, 10, &actions.BuyRecord{Name: "ardrive", ContractTxID: ant}))
	require.NoError(t, err)
	hash := c.HashSeq().Hash

	b, err := c.Query(&actions.BalanceQuery{Address: alice})
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), b.(BalanceAnswer).Balance)

	_, err = c.Query(&actions.RecordQuery{Name: "nope"})
	assert.ErrorIs(t, err, arnsmachine.ErrRecordNotFound)

	p, err := c.Query(&actions.PriceQuery{Intent: actions.KindExtendRecord, Name: "ardrive", Years: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(400_000), p.(PriceAnswer).Price)

	_, err = c.Query(&actions.PriceQuery{Intent: "steal", Name: "ardrive"})
	assert.ErrorIs(t, err, ErrUnknownIntent)

	a, err := c.Query(&actions.AuctionQuery{Name: "xyz"})
	require.NoError(t, err)
	au := a.(AuctionAnswer)
	assert.False(t, au.Live)
	assert.Equal(t, int64(1_000_000), au.Auction.FloorPrice)
	assert.Equal(t, int64(50_000_000), au.CurrentPrice)

	// a future frame ticks a copy only
	d, err := c.Query(&actions.DistributionsQuery{QueryFrame: actions.QueryFrame{Height: 125}})
	require.NoError(t, err)
	assert.Len(t, d, 1)
	assert.Equal(t, hash, c.HashSeq().Hash)
	assert.Equal(t, int64(10), c.Snapshot().LastTickedHeight)

	// one epoch and its distribution delay past the ledger is as far as a query may look
	_, err = c.Query(&actions.BalanceQuery{Address: alice, QueryFrame: actions.QueryFrame{Height: 126}})
	assert.ErrorIs(t, err, ErrFrameTooFar)
	assert.Equal(t, arnsmachine.Validation, arnsmachine.TierOf(err))
	_, err = c.Query(&actions.BalanceQuery{Address: alice, QueryFrame: actions.QueryFrame{Height: 2_000_000_000}})
	assert.ErrorIs(t, err, ErrFrameTooFar)
	assert.Equal(t, int64(10), c.Snapshot().LastTickedHeight)

	s, err := c.Query(&actions.NetworkSummaryQuery{})
	require.NoError(t, err)
	summary := s.(NetworkSummary)
	assert.Equal(t, 3, summary.Gateways)
	assert.Equal(t, float64(20_000), summary.MedianOperatorStake)
	assert.Equal(t, c.Snapshot().Supply(), summary.Supply)
	assert.Equal(t, int64(60_000*1000/11_060_000), summary.StakedPermille)
	assert.Zero(t, summary.AuctionEscrow)
}

func TestSubscribe(t *testing.T) {
	c := newConductor(t)
	feed, stop := c.Subscribe(4)
	_, err := c.Handle(env(alice, 1, &actions.Transfer{Target: bob, Qty: 1}))
	require.NoError(t, err)
	_, err = c.Handle(env(alice, 2, &actions.Transfer{Target: bob, Qty: 100_000_000}))
	require.Error(t, err)
	first, second := <-feed, <-feed
	assert.True(t, first.Applied)
	assert.Equal(t, "insufficient-balance", second.Reason)
	stop()
	_, open := <-feed
	assert.False(t, open)
}

func TestSnapshotRestore(t *testing.T) {
	database.SetBaseDir(t.TempDir())
	defer database.SetBaseDir("")
	c := newConductor(t)
	_, err := c.Handle(env(bob, 7, &actions.DelegateStake{Target: gw3, Qty: 500}))
	require.NoError(t, err)
	hs := c.TakeSnapshot()

	restored, ok := restoreFromDisk(constants())
	require.True(t, ok)
	assert.Equal(t, hs.Hash, restored.HashSeq().Hash)

	f, ok := database.Open(mind, hs.Hash)
	require.True(t, ok)
	f.Close()
}

func TestEngineLabels(t *testing.T) {
	assert.Equal(t, "balances", engineFor(actions.KindTransfer))
	assert.Equal(t, "epochs", engineFor(actions.KindSaveObservations))
	assert.Equal(t, "unknown", engineFor("mint"))
}

func TestDuplicatesAreLedgerState(t *testing.T) {
	c := newConductor(t)
	e := env(alice, 10, &actions.Transfer{Target: bob, Qty: 1})
	_, err := c.Handle(e)
	require.NoError(t, err)
	hash := c.HashSeq().Hash

	r, err := c.Handle(e)
	assert.ErrorIs(t, err, arnsmachine.ErrDuplicateAction)
	assert.False(t, r.Applied)
	assert.Equal(t, hash, c.HashSeq().Hash)
	assert.Equal(t, int64(50_001), c.Snapshot().Balances.Get(bob))

	// rejected actions are remembered as well
	broke := env(alice, 11, &actions.Transfer{Target: bob, Qty: 100_000_000})
	_, err = c.Handle(broke)
	assert.ErrorIs(t, err, arnsmachine.ErrInsufficientBalance)
	_, err = c.Handle(broke)
	assert.ErrorIs(t, err, arnsmachine.ErrDuplicateAction)

	// behind the ledger but inside the window a repeat is still a duplicate
	_, err = c.Handle(env(bob, 20, &actions.Tick{}))
	require.NoError(t, err)
	_, err = c.Handle(e)
	assert.ErrorIs(t, err, arnsmachine.ErrDuplicateAction)
	assert.True(t, c.Seen(10, TxIDFor(e)))

	window := constants().DedupeWindow
	_, err = c.TickTo(10+window+1, now)
	require.NoError(t, err)
	seen := c.Snapshot().Seen
	assert.NotContains(t, seen, int64(10))
	assert.Contains(t, seen, int64(11))
	_, err = c.Handle(e)
	assert.ErrorIs(t, err, arnsmachine.ErrHeightRegression)
}

func TestObservationsCloseAtEpochEnd(t *testing.T) {
	c := newConductor(t)
	observers := c.Snapshot().Epochs.PrescribedFor(0)
	require.NotEmpty(t, observers)
	observer := observers[0].ObserverWallet
	report := func() *actions.SaveObservations {
		return &actions.SaveObservations{ObserverReportTxID: ant, FailedGateways: []string{gw2}}
	}

	// epoch 0 ends at 99 and distributes at 114
	_, err := c.Handle(env(observer, 105, report()))
	assert.ErrorIs(t, err, arnsmachine.ErrObservationTooEarly)
	l := c.Snapshot()
	assert.Equal(t, int64(0), l.Epochs.Current.Start)
	assert.NotContains(t, l.Epochs.Observations, int64(0))

	_, err = c.Handle(env(observer, 114, &actions.Tick{}))
	require.NoError(t, err)
	d := c.Snapshot().Epochs.Distributions[0]
	require.NotNil(t, d)
	assert.Zero(t, d.TotalReports)
	assert.Empty(t, d.FailedGateways)
}
