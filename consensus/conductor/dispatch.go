package conductor

import (
	"encoding/base64"
	"fmt"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/auctions"
	"arnsmachine/consensus/balances"
)

// VaultResult is returned by every action that creates a vault.
type VaultResult struct {
	Owner   arnsmachine.Account `json:"owner"`
	VaultID string              `json:"vaultId"`
	Vault   balances.Vault      `json:"vault"`
}

// BidResult is either an opened auction or, for a winning bid, the record it bought.
type BidResult struct {
	Auction *auctions.Auction `json:"auction,omitempty"`
	Record  interface{}       `json:"record,omitempty"`
}

// TxIDFor returns the envelope's tx id, or derives one from its content so that the same
// envelope always gets the same id.
func TxIDFor(env actions.Envelope) string {
	if env.TxID != "" {
		return env.TxID
	}
	payload, err := json.Marshal(env.Action)
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 1)
	}
	var hs arnsmachine.HashSeq
	hs.AppendAll(env.Kind, env.Caller, env.Height, env.Timestamp, payload)
	return base64.RawURLEncoding.EncodeToString(arnsmachine.Sha256Bytes(hs.Data.Bytes()))
}

// validate is the first error tier. It never reads the ledger.
func validate(c *arnsmachine.Constants, env actions.Envelope) error {
	if env.Action == nil {
		return arnsmachine.ErrUnknownAction.With("%q", env.Kind)
	}
	if env.Kind != "" && env.Kind != env.Action.Kind() {
		return arnsmachine.ErrUnknownAction.With("envelope says %q, payload is %q", env.Kind, env.Action.Kind())
	}
	if !arnsmachine.ValidAccount(env.Caller) {
		return arnsmachine.ErrInvalidAddress.With("caller %q", env.Caller)
	}
	// protocol funds only leave through distribution
	if env.Caller == c.ProtocolAccount {
		return arnsmachine.ErrReservedCaller.With("%s", env.Caller)
	}
	if env.Height < 0 || env.Timestamp < 0 {
		return arnsmachine.Invalid("invalid-envelope", "height %d timestamp %d", env.Height, env.Timestamp)
	}
	return env.Action.Validate(c)
}

// apply routes an action to its engine. Engines mutate l in place; callers pass a copy.
func apply(ctx arnsmachine.ExecutionContext, l *Ledger, action actions.Action) (interface{}, error) {
	switch a := action.(type) {
	case *actions.Transfer:
		if err := balances.HandleTransfer(ctx, l.Balances, a); err != nil {
			return nil, err
		}
		return map[arnsmachine.Account]int64{ctx.Caller: l.Balances.Get(ctx.Caller), a.Target: l.Balances.Get(a.Target)}, nil
	case *actions.CreateVault:
		id, err := balances.HandleCreateVault(ctx, l.Balances, l.Vaults, a)
		return vaultResult(l, ctx.Caller, id), err
	case *actions.VaultedTransfer:
		id, err := balances.HandleVaultedTransfer(ctx, l.Balances, l.Vaults, a)
		return vaultResult(l, a.Recipient, id), err
	case *actions.ExtendVault:
		err := balances.HandleExtendVault(ctx, l.Constants, l.Vaults, a)
		return vaultResult(l, ctx.Caller, a.VaultID), err
	case *actions.IncreaseVault:
		err := balances.HandleIncreaseVault(ctx, l.Balances, l.Vaults, a)
		return vaultResult(l, ctx.Caller, a.VaultID), err

	case *actions.BuyRecord:
		return l.names().HandleBuyRecord(ctx, a, l.Auctions.Has(a.Name))
	case *actions.ExtendRecord:
		return l.names().HandleExtendRecord(ctx, a)
	case *actions.IncreaseUndernameCount:
		return l.names().HandleIncreaseUndernameCount(ctx, a)
	case *actions.UpgradeName:
		return l.names().HandleUpgradeName(ctx, a)
	case *actions.SubmitAuctionBid:
		rec, au, err := auctions.HandleBid(ctx, l.names(), l.Auctions, a)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return BidResult{Record: rec}, nil
		}
		return BidResult{Auction: au}, nil

	case *actions.JoinNetwork:
		return l.registry().HandleJoin(ctx, a)
	case *actions.UpdateGatewaySettings:
		return l.registry().HandleUpdateSettings(ctx, a)
	case *actions.LeaveNetwork:
		return l.registry().HandleLeave(ctx, a)
	case *actions.IncreaseOperatorStake:
		return l.registry().HandleIncreaseOperatorStake(ctx, a)
	case *actions.DecreaseOperatorStake:
		g, id, err := l.registry().HandleDecreaseOperatorStake(ctx, a)
		if err != nil {
			return nil, err
		}
		return VaultResult{Owner: ctx.Caller, VaultID: id, Vault: g.Vaults[id]}, nil
	case *actions.DelegateStake:
		return l.registry().HandleDelegateStake(ctx, a)
	case *actions.DecreaseDelegateStake:
		d, id, err := l.registry().HandleDecreaseDelegateStake(ctx, a)
		if err != nil {
			return nil, err
		}
		return VaultResult{Owner: ctx.Caller, VaultID: id, Vault: d.Vaults[id]}, nil
	case *actions.CancelWithdrawal:
		return l.registry().HandleCancelWithdrawal(ctx, a)

	case *actions.SaveObservations:
		return l.Epochs.HandleSaveObservations(ctx, l.Constants, l.Gateways, a)

	case *actions.Tick:
		// the tick already ran before dispatch
		return nil, nil
	}
	return nil, arnsmachine.ErrUnknownAction.With("%T", action)
}

func vaultResult(l *Ledger, owner arnsmachine.Account, id string) VaultResult {
	v, _ := l.Vaults.Get(owner, id)
	return VaultResult{Owner: owner, VaultID: id, Vault: v}
}

func describe(env actions.Envelope, err error) string {
	return fmt.Sprintf("%s by %s at %d rejected: %s", env.Kind, env.Caller, env.Height, err)
}
