package arns

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/balances"
	"arnsmachine/consensus/demand"
)

var (
	alice = strings.Repeat("a", 43)
	bob   = strings.Repeat("b", 43)
	ant   = strings.Repeat("P", 43)
)

const now = int64(1_700_000_000)

func newRegistry() *Registry {
	c := arnsmachine.DefaultConstants()
	fees := demand.Fees{}
	for l := int64(1); l <= c.Names.MaxNameLength; l++ {
		fees[l] = 1_000_000
	}
	return &Registry{
		Constants:    c,
		Balances:     balances.Balances{alice: 10_000_000},
		Demand:       demand.New(c, 0, fees),
		Records:      Records{},
		Reservations: Reservations{},
	}
}

func ctx(caller string) arnsmachine.ExecutionContext {
	return arnsmachine.ExecutionContext{Height: 10, Timestamp: now, Caller: caller, TxID: strings.Repeat("x", 43)}
}

func TestNamePurchase(t *testing.T) {
	r := newRegistry()
	rec, err := r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "hello", ContractTxID: ant, Years: 1, Type: actions.Lease}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000), r.Balances.Get(alice))
	assert.Equal(t, int64(1_000_000), r.Balances.Get(r.Constants.ProtocolAccount))
	assert.Equal(t, now+31_536_000, rec.EndTimestamp)
	assert.Equal(t, int64(1_000_000), rec.PurchasePrice)
	assert.Equal(t, r.Constants.Names.DefaultUndernames, rec.UndernameLimit)
	assert.Equal(t, int64(1), r.Demand.PurchasesThisPeriod)
	assert.Equal(t, int64(1_000_000), r.Demand.RevenueThisPeriod)

	_, err = r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "HELLO", ContractTxID: ant}, false)
	assert.ErrorIs(t, err, arnsmachine.ErrNameNotAvailable)
}

func TestRegistrationFees(t *testing.T) {
	r := newRegistry()
	c := r.Constants
	assert.Equal(t, int64(1_000_000), RegistrationFee(c, r.Demand, "hello", actions.Lease, 1))
	assert.Equal(t, int64(1_800_000), RegistrationFee(c, r.Demand, "hello", actions.Lease, 5))
	assert.Equal(t, int64(3_000_000), RegistrationFee(c, r.Demand, "hello", actions.Permabuy, 0))
	assert.Equal(t, int64(400_000), ExtensionFee(c, r.Demand, "hello", 2))

	r.Demand.Factor = decimal.RequireFromString("1.05")
	assert.Equal(t, int64(1_050_000), RegistrationFee(c, r.Demand, "hello", actions.Lease, 1))
}

func TestBuyRecordRejections(t *testing.T) {
	r := newRegistry()
	r.Reservations["reserved"] = Reservation{}
	r.Reservations["mine"] = Reservation{Target: alice}

	_, err := r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "reserved", ContractTxID: ant}, false)
	assert.ErrorIs(t, err, arnsmachine.ErrNameReserved)

	_, err = r.HandleBuyRecord(ctx(bob), &actions.BuyRecord{Name: "mine", ContractTxID: ant}, false)
	assert.ErrorIs(t, err, arnsmachine.ErrNameReserved)

	_, err = r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "open", ContractTxID: ant}, true)
	assert.ErrorIs(t, err, arnsmachine.ErrNameInAuction)

	_, err = r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "short", ContractTxID: ant, Type: actions.Permabuy}, false)
	assert.ErrorIs(t, err, arnsmachine.ErrAuctionRequired)

	_, err = r.HandleBuyRecord(ctx(bob), &actions.BuyRecord{Name: "open", ContractTxID: ant}, false)
	assert.ErrorIs(t, err, arnsmachine.ErrInsufficientBalance)
	assert.Empty(t, r.Records)

	// the reservation target can buy and consumes the reservation
	rec, err := r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "mine", ContractTxID: actions.AtomicContractID}, false)
	require.NoError(t, err)
	assert.Equal(t, ctx(alice).TxID, rec.ProcessID)
	assert.NotContains(t, r.Reservations, "mine")
}

func TestExtendRecord(t *testing.T) {
	r := newRegistry()
	rec, err := r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "hello", ContractTxID: ant, Years: 1}, false)
	require.NoError(t, err)

	ext, err := r.HandleExtendRecord(ctx(alice), &actions.ExtendRecord{Name: "hello", Years: 2})
	require.NoError(t, err)
	assert.Equal(t, rec.EndTimestamp+2*31_536_000, ext.EndTimestamp)
	assert.Equal(t, int64(9_000_000-400_000), r.Balances.Get(alice))

	_, err = r.HandleExtendRecord(ctx(alice), &actions.ExtendRecord{Name: "hello", Years: 3})
	assert.ErrorIs(t, err, arnsmachine.ErrMaxLeaseExceeded)

	_, err = r.HandleExtendRecord(ctx(alice), &actions.ExtendRecord{Name: "nope", Years: 1})
	assert.ErrorIs(t, err, arnsmachine.ErrRecordNotFound)
}

func TestUndernamesAndUpgrade(t *testing.T) {
	r := newRegistry()
	_, err := r.HandleBuyRecord(ctx(alice), &actions.BuyRecord{Name: "hello", ContractTxID: ant, Years: 1}, false)
	require.NoError(t, err)

	// 1,000,000 × 0.001 × 10 × 1 year
	rec, err := r.HandleIncreaseUndernameCount(ctx(alice), &actions.IncreaseUndernameCount{Name: "hello", Qty: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(20), rec.UndernameLimit)
	assert.Equal(t, int64(9_000_000-10_000), r.Balances.Get(alice))

	_, err = r.HandleIncreaseUndernameCount(ctx(alice), &actions.IncreaseUndernameCount{Name: "hello", Qty: r.Constants.Names.MaxUndernames})
	assert.ErrorIs(t, err, arnsmachine.ErrMaxUndernamesExceeded)

	rec, err = r.HandleUpgradeName(ctx(alice), &actions.UpgradeName{Name: "hello"})
	require.NoError(t, err)
	assert.True(t, rec.IsPermabuy())
	assert.Zero(t, rec.EndTimestamp)
	assert.Equal(t, int64(3_000_000), rec.PurchasePrice)

	_, err = r.HandleUpgradeName(ctx(alice), &actions.UpgradeName{Name: "hello"})
	assert.ErrorIs(t, err, arnsmachine.ErrRecordIsPermabuy)
}

func TestPrune(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	records := Records{
		"lease":     {Type: actions.Lease, EndTimestamp: now},
		"grace":     {Type: actions.Lease, EndTimestamp: now + 10},
		"permanent": {Type: actions.Permabuy},
	}
	reservations := Reservations{"ended": {EndTimestamp: now}, "forever": {}}
	removed := Prune(now+c.Names.GracePeriodSeconds+1, c, records, reservations)
	assert.Equal(t, []string{"lease"}, removed)
	assert.Contains(t, records, "grace")
	assert.Contains(t, records, "permanent")
	assert.Equal(t, Reservations{"forever": {}}, reservations)
}
