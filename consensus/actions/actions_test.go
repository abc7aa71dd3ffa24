package actions

import (
	"strings"
	"testing"

	"arnsmachine/arnsmachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = strings.Repeat("a", 43)
	txid  = strings.Repeat("T", 43)
)

func TestEveryKindIsRegistered(t *testing.T) {
	kinds := arnsmachine.GetAllKinds()
	for kind := range kinds {
		a, ok := New(kind)
		require.True(t, ok, kind)
		assert.Equal(t, kind, a.Kind())
	}
	_, ok := New("mint")
	assert.False(t, ok)
}

func TestNameValidation(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	for _, tc := range []struct {
		name string
		ok   bool
	}{
		{"a", true},
		{"ardrive", true},
		{"my-name-1", true},
		{"-leading", false},
		{"trailing-", false},
		{"has space", false},
		{"", false},
		{strings.Repeat("x", 51), true},
		{strings.Repeat("x", 52), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, ValidName(tc.name, c))
		})
	}
}

func TestBuyRecordValidate(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	ok := &BuyRecord{Name: "ardrive", ContractTxID: txid}
	require.NoError(t, ok.Validate(c))
	assert.Equal(t, Lease, ok.RecordType())
	assert.Equal(t, int64(1), ok.LeaseYears())

	atomic := &BuyRecord{Name: "ardrive", ContractTxID: AtomicContractID, Type: Permabuy, Years: 99}
	assert.NoError(t, atomic.Validate(c), "years are ignored for permabuy")

	tooLong := &BuyRecord{Name: "ardrive", ContractTxID: txid, Years: 6}
	assert.ErrorIs(t, tooLong.Validate(c), arnsmachine.ErrInvalidYears)

	badType := &BuyRecord{Name: "ardrive", ContractTxID: txid, Type: "rent"}
	assert.ErrorIs(t, badType.Validate(c), arnsmachine.ErrInvalidType)

	badContract := &BuyRecord{Name: "ardrive", ContractTxID: "nope"}
	err := badContract.Validate(c)
	assert.ErrorIs(t, err, arnsmachine.ErrInvalidContractID)
	assert.Equal(t, arnsmachine.Validation, arnsmachine.TierOf(err))
}

func TestTransferValidate(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	assert.NoError(t, (&Transfer{Target: alice, Qty: 1}).Validate(c))
	assert.ErrorIs(t, (&Transfer{Target: alice, Qty: 0}).Validate(c), arnsmachine.ErrInvalidQuantity)
	assert.ErrorIs(t, (&Transfer{Target: "bob", Qty: 1}).Validate(c), arnsmachine.ErrInvalidAddress)
}

func TestVaultLockBounds(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	assert.NoError(t, (&CreateVault{Qty: 1, LockLength: c.Vaults.MinLockLength}).Validate(c))
	assert.ErrorIs(t, (&CreateVault{Qty: 1, LockLength: c.Vaults.MinLockLength - 1}).Validate(c), arnsmachine.ErrInvalidLockLength)
	assert.ErrorIs(t, (&VaultedTransfer{Recipient: alice, Qty: 1, LockLength: c.Vaults.MaxLockLength + 1}).Validate(c), arnsmachine.ErrInvalidLockLength)
}

func TestJoinNetworkValidate(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	join := func() *JoinNetwork {
		return &JoinNetwork{
			Qty: c.Gateways.MinOperatorStake,
			GatewayConfig: GatewayConfig{
				Label:      "Gateway One",
				FQDN:       "gateway.example.com",
				Port:       443,
				Protocol:   "https",
				Properties: txid,
			},
		}
	}
	require.NoError(t, join().Validate(c))

	j := join()
	j.Protocol = "http"
	assert.ErrorIs(t, j.Validate(c), arnsmachine.ErrInvalidSettings)

	j = join()
	j.FQDN = "localhost"
	assert.ErrorIs(t, j.Validate(c), arnsmachine.ErrInvalidSettings)

	j = join()
	j.DelegateRewardShareRatio = 96
	assert.ErrorIs(t, j.Validate(c), arnsmachine.ErrInvalidSettings)

	j = join()
	j.MinDelegatedStake = 1
	assert.ErrorIs(t, j.Validate(c), arnsmachine.ErrInvalidSettings)

	j = join()
	j.Note = strings.Repeat("n", 257)
	assert.ErrorIs(t, j.Validate(c), arnsmachine.ErrInvalidSettings)
}

func TestUpdateGatewaySettingsOnlyChecksPresentFields(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	assert.NoError(t, (&UpdateGatewaySettings{}).Validate(c))
	port := int64(70000)
	assert.ErrorIs(t, (&UpdateGatewaySettings{Port: &port}).Validate(c), arnsmachine.ErrInvalidSettings)
}

func TestSaveObservationsRejectsDuplicates(t *testing.T) {
	c := arnsmachine.DefaultConstants()
	assert.NoError(t, (&SaveObservations{ObserverReportTxID: txid, FailedGateways: []string{alice}}).Validate(c))
	assert.ErrorIs(t, (&SaveObservations{ObserverReportTxID: txid, FailedGateways: []string{alice, alice}}).Validate(c), arnsmachine.ErrInvalidObservation)
}

func TestQueryFrame(t *testing.T) {
	q, ok := NewQuery(QueryBalance)
	require.True(t, ok)
	q.(*BalanceQuery).Height = 42
	assert.Equal(t, int64(42), Frame(q).Height)
	assert.Equal(t, QueryBalance, q.QueryKind())
}
