package gateways

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/balances"
)

var (
	operator = strings.Repeat("o", 43)
	alice    = strings.Repeat("a", 43)
	bob      = strings.Repeat("b", 43)
	props    = strings.Repeat("P", 43)
)

func registry() *Registry {
	c := arnsmachine.DefaultConstants()
	c.Gateways.MinOperatorStake = 10_000
	c.Gateways.MinDelegatedStake = 100
	return &Registry{
		Constants: c,
		Balances:  balances.Balances{operator: 50_000, alice: 5_000, bob: 5_000},
		Gateways:  Gateways{},
	}
}

func at(h int64, caller string) arnsmachine.ExecutionContext {
	return arnsmachine.ExecutionContext{Height: h, Timestamp: 1_700_000_000, Caller: caller, TxID: strings.Repeat("t", 40) + "abc"}
}

func join(qty int64) *actions.JoinNetwork {
	return &actions.JoinNetwork{Qty: qty, GatewayConfig: actions.GatewayConfig{
		Label: "one", FQDN: "one.example.com", Port: 443, Protocol: "https", Properties: props,
		AllowDelegatedStaking: true, DelegateRewardShareRatio: 50,
	}}
}

func total(r *Registry) int64 {
	return r.Balances.Total() + r.Gateways.Total()
}

func TestJoin(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(9_999))
	assert.ErrorIs(t, err, arnsmachine.ErrStakeTooLow)

	g, err := r.HandleJoin(at(1, operator), join(12_000))
	require.NoError(t, err)
	assert.Equal(t, operator, g.ObserverWallet)
	assert.Equal(t, StatusJoined, g.Status)
	assert.Equal(t, int64(100), g.Settings.MinDelegatedStake)
	assert.Equal(t, int64(38_000), r.Balances.Get(operator))

	_, err = r.HandleJoin(at(2, operator), join(12_000))
	assert.ErrorIs(t, err, arnsmachine.ErrGatewayExists)

	j := join(10_000)
	j.ObserverWallet = operator
	_, err = r.HandleJoin(at(2, alice), j)
	assert.ErrorIs(t, err, arnsmachine.ErrObserverWalletTaken)

	j.ObserverWallet = bob
	_, err = r.HandleJoin(at(2, alice), j)
	assert.ErrorIs(t, err, arnsmachine.ErrInsufficientBalance)
	assert.NotContains(t, r.Gateways, alice)
}

func TestGatewayLeave(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(12_000))
	require.NoError(t, err)
	before := total(r)

	g, err := r.HandleLeave(at(5000, operator), &actions.LeaveNetwork{})
	require.NoError(t, err)
	gc := r.Constants.Gateways
	assert.Zero(t, g.OperatorStake)
	assert.Equal(t, StatusLeaving, g.Status)
	assert.Equal(t, 5000+gc.LeaveLength, g.EndHeight)

	ends := map[int64]int64{}
	for _, v := range g.Vaults {
		ends[v.End] = v.Balance
	}
	assert.Equal(t, map[int64]int64{5000 + gc.LeaveLength: 10_000, 5000 + gc.WithdrawLength: 2_000}, ends)
	assert.Equal(t, before, total(r))

	_, err = r.HandleLeave(at(5001, operator), &actions.LeaveNetwork{})
	assert.ErrorIs(t, err, arnsmachine.ErrGatewayLeaving)

	removed, err := r.ReleaseVaults(5000 + gc.WithdrawLength)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, int64(38_000+2_000), r.Balances.Get(operator))

	removed, err = r.ReleaseVaults(5000 + gc.LeaveLength)
	require.NoError(t, err)
	assert.Equal(t, []string{operator}, removed)
	assert.Equal(t, int64(50_000), r.Balances.Get(operator))
	assert.Empty(t, r.Gateways)
}

func TestSlashedLeave(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)
	_, err = r.Leave(at(10, operator), operator, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), r.Balances.Get(r.Constants.ProtocolAccount))
	assert.Equal(t, int64(8_000), r.Gateways.Total())
}

func TestDelegation(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)

	_, err = r.HandleDelegateStake(at(2, alice), &actions.DelegateStake{Target: operator, Qty: 99})
	assert.ErrorIs(t, err, arnsmachine.ErrStakeTooLow)

	d, err := r.HandleDelegateStake(at(2, alice), &actions.DelegateStake{Target: operator, Qty: 1_000})
	require.NoError(t, err)
	assert.True(t, d.AutoStake)

	// top ups of an existing position have no minimum
	_, err = r.HandleDelegateStake(at(3, alice), &actions.DelegateStake{Target: operator, Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1_001), r.Gateways[operator].TotalDelegatedStake)

	_, _, err = r.HandleDecreaseDelegateStake(at(4, alice), &actions.DecreaseDelegateStake{Target: operator, Qty: 950})
	assert.ErrorIs(t, err, arnsmachine.ErrStakeTooLow)

	_, id, err := r.HandleDecreaseDelegateStake(at(4, alice), &actions.DecreaseDelegateStake{Target: operator, Qty: 1_001})
	require.NoError(t, err)
	assert.Zero(t, r.Gateways[operator].TotalDelegatedStake)

	_, err = r.HandleCancelWithdrawal(at(5, alice), &actions.CancelWithdrawal{Gateway: operator, VaultID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(1_001), r.Gateways[operator].TotalDelegatedStake)

	_, err = r.HandleDelegateStake(at(6, operator), &actions.DelegateStake{Target: operator, Qty: 1_000})
	assert.Error(t, err)
}

func TestDisablingDelegationVaultsStake(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)
	_, err = r.HandleDelegateStake(at(2, alice), &actions.DelegateStake{Target: operator, Qty: 500})
	require.NoError(t, err)
	before := total(r)

	off := false
	_, err = r.HandleUpdateSettings(at(3, operator), &actions.UpdateGatewaySettings{AllowDelegatedStaking: &off})
	require.NoError(t, err)
	g := r.Gateways[operator]
	assert.Zero(t, g.TotalDelegatedStake)
	assert.Len(t, g.Delegates[alice].Vaults, 1)
	assert.Equal(t, before, total(r))

	_, err = r.HandleDelegateStake(at(4, bob), &actions.DelegateStake{Target: operator, Qty: 500})
	assert.ErrorIs(t, err, arnsmachine.ErrDelegationDisabled)

	_, err = r.ReleaseVaults(3 + r.Constants.Gateways.DelegatedUnlockLength)
	require.NoError(t, err)
	assert.Equal(t, int64(5_000), r.Balances.Get(alice))
	assert.NotContains(t, g.Delegates, alice)
}

func TestOperatorStakeChanges(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)
	_, err = r.HandleIncreaseOperatorStake(at(2, operator), &actions.IncreaseOperatorStake{Qty: 5_000})
	require.NoError(t, err)

	_, _, err = r.HandleDecreaseOperatorStake(at(3, operator), &actions.DecreaseOperatorStake{Qty: 5_001})
	assert.ErrorIs(t, err, arnsmachine.ErrStakeTooLow)

	_, id, err := r.HandleDecreaseOperatorStake(at(3, operator), &actions.DecreaseOperatorStake{Qty: 5_000})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), r.Gateways[operator].OperatorStake)

	_, err = r.HandleCancelWithdrawal(at(4, operator), &actions.CancelWithdrawal{Gateway: operator, VaultID: id})
	require.NoError(t, err)
	assert.Equal(t, int64(15_000), r.Gateways[operator].OperatorStake)
}

func TestPayoutSplitsToDelegates(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)
	_, err = r.HandleDelegateStake(at(2, alice), &actions.DelegateStake{Target: operator, Qty: 300})
	require.NoError(t, err)
	no := false
	_, err = r.HandleDelegateStake(at(2, bob), &actions.DelegateStake{Target: operator, Qty: 100, AutoStake: &no})
	require.NoError(t, err)

	// 50% of 1,000 shared over 400 delegated: alice 375, bob 125, operator 500
	delegated, err := r.Payout(operator, 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(500), delegated)
	g := r.Gateways[operator]
	assert.Equal(t, int64(675), g.Delegates[alice].DelegatedStake)
	assert.Equal(t, int64(5_000-100+125), r.Balances.Get(bob))
	assert.Equal(t, int64(40_000+500), r.Balances.Get(operator), "operator without auto stake is paid to balance")
}

func TestEligibility(t *testing.T) {
	g := &Gateway{StartHeight: 100, Status: StatusJoined}
	assert.True(t, g.EligibleFor(100, 819))
	assert.False(t, g.EligibleFor(99, 818))
	g.Status = StatusLeaving
	g.EndHeight = 819
	assert.False(t, g.EligibleFor(100, 819))
	g.EndHeight = 820
	assert.True(t, g.EligibleFor(100, 819))
}

func TestCopyIsDeep(t *testing.T) {
	r := registry()
	_, err := r.HandleJoin(at(1, operator), join(10_000))
	require.NoError(t, err)
	cp := r.Gateways.Copy()
	cp[operator].OperatorStake = 1
	cp[operator].Vaults["x"] = balances.Vault{Balance: 1}
	assert.Equal(t, int64(10_000), r.Gateways[operator].OperatorStake)
	assert.Empty(t, r.Gateways[operator].Vaults)
}
