// Package actions defines the closed set of actions and queries the ledger understands.
//
// Every action is a concrete payload type implementing Action. The unexported marker keeps
// the set closed to this package, so a type switch over Action in the conductor is the
// complete dispatch table.
package actions

import (
	"arnsmachine/arnsmachine"
)

// Action is a state changing instruction. Validate is the first error tier: it only looks
// at the payload and the protocol constants, never at ledger state.
type Action interface {
	Kind() string
	Validate(c *arnsmachine.Constants) error
	isAction()
}

// Envelope is an action with the metadata it was submitted with.
type Envelope struct {
	Kind      string
	Caller    arnsmachine.Account
	Height    int64
	Timestamp int64
	TxID      string
	Action    Action
}

const (
	KindTransfer               = "transfer"
	KindCreateVault            = "create-vault"
	KindVaultedTransfer        = "vaulted-transfer"
	KindExtendVault            = "extend-vault"
	KindIncreaseVault          = "increase-vault"
	KindBuyRecord              = "buy-record"
	KindExtendRecord           = "extend-record"
	KindIncreaseUndernameCount = "increase-undername-count"
	KindUpgradeName            = "upgrade-name"
	KindSubmitAuctionBid       = "submit-auction-bid"
	KindJoinNetwork            = "join-network"
	KindUpdateGatewaySettings  = "update-gateway-settings"
	KindLeaveNetwork           = "leave-network"
	KindIncreaseOperatorStake  = "increase-operator-stake"
	KindDecreaseOperatorStake  = "decrease-operator-stake"
	KindDelegateStake          = "delegate-stake"
	KindDecreaseDelegateStake  = "decrease-delegate-stake"
	KindCancelWithdrawal       = "cancel-withdrawal"
	KindSaveObservations       = "save-observations"
	KindTick                   = "tick"
)

// Record purchase types.
const (
	Lease    = "lease"
	Permabuy = "permabuy"
)

func init() {
	register := func(mind string, kinds ...string) {
		if err := arnsmachine.RegisterKinds(kinds, mind); err != nil {
			arnsmachine.LogCLI(err.Error(), 1)
		}
	}
	register("balances", KindTransfer, KindCreateVault, KindVaultedTransfer, KindExtendVault, KindIncreaseVault)
	register("arns", KindBuyRecord, KindExtendRecord, KindIncreaseUndernameCount, KindUpgradeName)
	register("auctions", KindSubmitAuctionBid)
	register("gateways", KindJoinNetwork, KindUpdateGatewaySettings, KindLeaveNetwork, KindIncreaseOperatorStake,
		KindDecreaseOperatorStake, KindDelegateStake, KindDecreaseDelegateStake, KindCancelWithdrawal)
	register("epochs", KindSaveObservations)
	register("conductor", KindTick)
}

// New returns an empty payload for a kind, ready to be decoded into.
func New(kind string) (Action, bool) {
	switch kind {
	case KindTransfer:
		return &Transfer{}, true
	case KindCreateVault:
		return &CreateVault{}, true
	case KindVaultedTransfer:
		return &VaultedTransfer{}, true
	case KindExtendVault:
		return &ExtendVault{}, true
	case KindIncreaseVault:
		return &IncreaseVault{}, true
	case KindBuyRecord:
		return &BuyRecord{}, true
	case KindExtendRecord:
		return &ExtendRecord{}, true
	case KindIncreaseUndernameCount:
		return &IncreaseUndernameCount{}, true
	case KindUpgradeName:
		return &UpgradeName{}, true
	case KindSubmitAuctionBid:
		return &SubmitAuctionBid{}, true
	case KindJoinNetwork:
		return &JoinNetwork{}, true
	case KindUpdateGatewaySettings:
		return &UpdateGatewaySettings{}, true
	case KindLeaveNetwork:
		return &LeaveNetwork{}, true
	case KindIncreaseOperatorStake:
		return &IncreaseOperatorStake{}, true
	case KindDecreaseOperatorStake:
		return &DecreaseOperatorStake{}, true
	case KindDelegateStake:
		return &DelegateStake{}, true
	case KindDecreaseDelegateStake:
		return &DecreaseDelegateStake{}, true
	case KindCancelWithdrawal:
		return &CancelWithdrawal{}, true
	case KindSaveObservations:
		return &SaveObservations{}, true
	case KindTick:
		return &Tick{}, true
	}
	return nil, false
}
