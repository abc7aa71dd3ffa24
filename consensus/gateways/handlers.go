package gateways

import (
	"fmt"
	"math/big"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/balances"
)

// Registry is the part of the ledger the gateway engine reads and writes.
type Registry struct {
	Constants *arnsmachine.Constants
	Balances  balances.Balances
	Gateways  Gateways
}

func vaultPurpose(purpose string, addr arnsmachine.Account, height int64) string {
	return fmt.Sprintf("%s/%s/%d", purpose, addr, height)
}

func addVault(vaults map[string]balances.Vault, id string, v balances.Vault) error {
	if _, exists := vaults[id]; exists {
		return arnsmachine.Reject("vault-exists", "vault %s", id)
	}
	vaults[id] = v
	return nil
}

// active returns a gateway that has not started leaving.
func (r *Registry) active(addr arnsmachine.Account) (*Gateway, error) {
	g, ok := r.Gateways[addr]
	if !ok {
		return nil, arnsmachine.ErrGatewayNotFound.With("%s", addr)
	}
	if g.Leaving() {
		return nil, arnsmachine.ErrGatewayLeaving.With("%s leaves at %d", addr, g.EndHeight)
	}
	return g, nil
}

func (r *Registry) HandleJoin(ctx arnsmachine.ExecutionContext, a *actions.JoinNetwork) (*Gateway, error) {
	if _, exists := r.Gateways[ctx.Caller]; exists {
		return nil, arnsmachine.ErrGatewayExists.With("%s", ctx.Caller)
	}
	if a.Qty < r.Constants.Gateways.MinOperatorStake {
		return nil, arnsmachine.ErrStakeTooLow.With("%d below %d", a.Qty, r.Constants.Gateways.MinOperatorStake)
	}
	observer := a.ObserverWallet
	if observer == "" {
		observer = ctx.Caller
	}
	if r.Gateways.ObserverTaken(observer, ctx.Caller) {
		return nil, arnsmachine.ErrObserverWalletTaken.With("%s", observer)
	}
	minDelegated := a.MinDelegatedStake
	if minDelegated == 0 {
		minDelegated = r.Constants.Gateways.MinDelegatedStake
	}
	if err := r.Balances.Debit(ctx.Caller, a.Qty); err != nil {
		return nil, err
	}
	g := &Gateway{
		OperatorStake:  a.Qty,
		ObserverWallet: observer,
		Status:         StatusJoined,
		StartHeight:    ctx.Height,
		Settings: Settings{
			AllowDelegatedStaking:    a.AllowDelegatedStaking,
			MinDelegatedStake:        minDelegated,
			DelegateRewardShareRatio: a.DelegateRewardShareRatio,
			AutoStake:                a.AutoStake,
			Label:                    a.Label,
			FQDN:                     a.FQDN,
			Port:                     a.Port,
			Protocol:                 a.Protocol,
			Properties:               a.Properties,
			Note:                     a.Note,
		},
		Vaults:    map[string]balances.Vault{},
		Delegates: map[arnsmachine.Account]*Delegate{},
	}
	r.Gateways[ctx.Caller] = g
	return g, nil
}

// HandleUpdateSettings applies the fields present in the action. Turning delegation off
// moves every delegate's stake into an unlock vault.
func (r *Registry) HandleUpdateSettings(ctx arnsmachine.ExecutionContext, a *actions.UpdateGatewaySettings) (*Gateway, error) {
	g, err := r.active(ctx.Caller)
	if err != nil {
		return nil, err
	}
	if a.ObserverWallet != nil {
		if r.Gateways.ObserverTaken(*a.ObserverWallet, ctx.Caller) {
			return nil, arnsmachine.ErrObserverWalletTaken.With("%s", *a.ObserverWallet)
		}
		g.ObserverWallet = *a.ObserverWallet
	}
	s := &g.Settings
	if a.Label != nil {
		s.Label = *a.Label
	}
	if a.FQDN != nil {
		s.FQDN = *a.FQDN
	}
	if a.Port != nil {
		s.Port = *a.Port
	}
	if a.Protocol != nil {
		s.Protocol = *a.Protocol
	}
	if a.Properties != nil {
		s.Properties = *a.Properties
	}
	if a.Note != nil {
		s.Note = *a.Note
	}
	if a.AutoStake != nil {
		s.AutoStake = *a.AutoStake
	}
	if a.DelegateRewardShareRatio != nil {
		s.DelegateRewardShareRatio = *a.DelegateRewardShareRatio
	}
	if a.MinDelegatedStake != nil {
		s.MinDelegatedStake = *a.MinDelegatedStake
	}
	if a.AllowDelegatedStaking != nil {
		if s.AllowDelegatedStaking && !*a.AllowDelegatedStaking {
			if err := r.unstakeDelegates(ctx, ctx.Caller, g); err != nil {
				return nil, err
			}
		}
		s.AllowDelegatedStaking = *a.AllowDelegatedStaking
	}
	return g, nil
}

// unstakeDelegates vaults every delegate's stake for the delegated unlock length.
func (r *Registry) unstakeDelegates(ctx arnsmachine.ExecutionContext, addr arnsmachine.Account, g *Gateway) error {
	for _, da := range arnsmachine.SortedKeys(g.Delegates) {
		d := g.Delegates[da]
		if d.DelegatedStake == 0 {
			continue
		}
		id := balances.VaultID(ctx.TxID, vaultPurpose("delegate-unlock/"+da, addr, ctx.Height))
		if d.Vaults == nil {
			d.Vaults = map[string]balances.Vault{}
		}
		err := addVault(d.Vaults, id, balances.Vault{
			Balance: d.DelegatedStake,
			Start:   ctx.Height,
			End:     ctx.Height + r.Constants.Gateways.DelegatedUnlockLength,
		})
		if err != nil {
			return err
		}
		g.TotalDelegatedStake -= d.DelegatedStake
		d.DelegatedStake = 0
	}
	return nil
}

func (r *Registry) HandleLeave(ctx arnsmachine.ExecutionContext, _ *actions.LeaveNetwork) (*Gateway, error) {
	return r.Leave(ctx, ctx.Caller, false)
}

// Leave starts a gateway's exit. The minimum stake is held for the leave length, anything
// above it for the withdraw length, and delegates get their stake back after the delegated
// unlock length. A slashed exit first moves floor(min stake × slash rate) to the protocol.
func (r *Registry) Leave(ctx arnsmachine.ExecutionContext, addr arnsmachine.Account, slash bool) (*Gateway, error) {
	g, err := r.active(addr)
	if err != nil {
		return nil, err
	}
	gc := r.Constants.Gateways
	held := g.OperatorStake
	if held > gc.MinOperatorStake {
		held = gc.MinOperatorStake
	}
	excess := g.OperatorStake - held

	if slash {
		slashed := arnsmachine.MulFloor(held, gc.SlashRate)
		if err := r.Balances.Credit(r.Constants.ProtocolAccount, slashed); err != nil {
			return nil, err
		}
		held -= slashed
		arnsmachine.LogCLI(fmt.Sprintf("gateway %s slashed %d after %d failed epochs", addr, slashed, g.Stats.FailedConsecutiveEpochs), 4)
	}
	if g.Vaults == nil {
		g.Vaults = map[string]balances.Vault{}
	}
	if held > 0 {
		id := balances.VaultID(ctx.TxID, vaultPurpose("leave", addr, ctx.Height))
		if err := addVault(g.Vaults, id, balances.Vault{Balance: held, Start: ctx.Height, End: ctx.Height + gc.LeaveLength}); err != nil {
			return nil, err
		}
	}
	if excess > 0 {
		id := balances.VaultID(ctx.TxID, vaultPurpose("withdraw", addr, ctx.Height))
		if err := addVault(g.Vaults, id, balances.Vault{Balance: excess, Start: ctx.Height, End: ctx.Height + gc.WithdrawLength}); err != nil {
			return nil, err
		}
	}
	g.OperatorStake = 0
	if err := r.unstakeDelegates(ctx, addr, g); err != nil {
		return nil, err
	}
	g.Status = StatusLeaving
	g.EndHeight = ctx.Height + gc.LeaveLength
	return g, nil
}

func (r *Registry) HandleIncreaseOperatorStake(ctx arnsmachine.ExecutionContext, a *actions.IncreaseOperatorStake) (*Gateway, error) {
	g, err := r.active(ctx.Caller)
	if err != nil {
		return nil, err
	}
	sum, ok := arnsmachine.AddAmounts(g.OperatorStake, a.Qty)
	if !ok {
		return nil, arnsmachine.ErrInvalidQuantity.With("operator stake overflows")
	}
	if err := r.Balances.Debit(ctx.Caller, a.Qty); err != nil {
		return nil, err
	}
	g.OperatorStake = sum
	return g, nil
}

// HandleDecreaseOperatorStake moves stake above the minimum into a withdraw vault.
func (r *Registry) HandleDecreaseOperatorStake(ctx arnsmachine.ExecutionContext, a *actions.DecreaseOperatorStake) (*Gateway, string, error) {
	g, err := r.active(ctx.Caller)
	if err != nil {
		return nil, "", err
	}
	if g.OperatorStake-a.Qty < r.Constants.Gateways.MinOperatorStake {
		return nil, "", arnsmachine.ErrStakeTooLow.With("%d would remain, minimum is %d", g.OperatorStake-a.Qty, r.Constants.Gateways.MinOperatorStake)
	}
	id := balances.VaultID(ctx.TxID, vaultPurpose("withdraw", ctx.Caller, ctx.Height))
	if g.Vaults == nil {
		g.Vaults = map[string]balances.Vault{}
	}
	if err := addVault(g.Vaults, id, balances.Vault{Balance: a.Qty, Start: ctx.Height, End: ctx.Height + r.Constants.Gateways.WithdrawLength}); err != nil {
		return nil, "", err
	}
	g.OperatorStake -= a.Qty
	return g, id, nil
}

// HandleDelegateStake adds to the caller's delegation. A first delegation must meet the
// gateway's minimum; top ups of an existing position may be any amount.
func (r *Registry) HandleDelegateStake(ctx arnsmachine.ExecutionContext, a *actions.DelegateStake) (*Delegate, error) {
	g, err := r.active(a.Target)
	if err != nil {
		return nil, err
	}
	if a.Target == ctx.Caller {
		return nil, arnsmachine.Reject("self-delegation", "%s cannot delegate to itself", ctx.Caller)
	}
	if !g.Settings.AllowDelegatedStaking {
		return nil, arnsmachine.ErrDelegationDisabled.With("%s", a.Target)
	}
	d, exists := g.Delegates[ctx.Caller]
	if !exists || d.DelegatedStake == 0 {
		if a.Qty < g.Settings.MinDelegatedStake {
			return nil, arnsmachine.ErrStakeTooLow.With("%d below the gateway minimum %d", a.Qty, g.Settings.MinDelegatedStake)
		}
	}
	if !exists && int64(len(g.Delegates)) >= r.Constants.Gateways.MaxDelegates {
		return nil, arnsmachine.ErrTooManyDelegates.With("%s", a.Target)
	}
	total, ok := arnsmachine.AddAmounts(g.TotalDelegatedStake, a.Qty)
	if !ok {
		return nil, arnsmachine.ErrInvalidQuantity.With("delegated stake overflows")
	}
	if err := r.Balances.Debit(ctx.Caller, a.Qty); err != nil {
		return nil, err
	}
	if !exists {
		d = &Delegate{StartHeight: ctx.Height, AutoStake: true, Vaults: map[string]balances.Vault{}}
		g.Delegates[ctx.Caller] = d
	}
	if d.DelegatedStake == 0 {
		d.StartHeight = ctx.Height
	}
	if a.AutoStake != nil {
		d.AutoStake = *a.AutoStake
	}
	d.DelegatedStake += a.Qty
	g.TotalDelegatedStake = total
	return d, nil
}

// HandleDecreaseDelegateStake vaults part or all of a delegation. What remains must meet
// the gateway's minimum unless nothing remains.
func (r *Registry) HandleDecreaseDelegateStake(ctx arnsmachine.ExecutionContext, a *actions.DecreaseDelegateStake) (*Delegate, string, error) {
	g, ok := r.Gateways[a.Target]
	if !ok {
		return nil, "", arnsmachine.ErrGatewayNotFound.With("%s", a.Target)
	}
	d, ok := g.Delegates[ctx.Caller]
	if !ok || d.DelegatedStake == 0 {
		return nil, "", arnsmachine.ErrDelegateNotFound.With("%s has no stake on %s", ctx.Caller, a.Target)
	}
	remaining := d.DelegatedStake - a.Qty
	if remaining < 0 {
		return nil, "", arnsmachine.ErrInsufficientBalance.With("%s has %d delegated", ctx.Caller, d.DelegatedStake)
	}
	if remaining > 0 && remaining < g.Settings.MinDelegatedStake {
		return nil, "", arnsmachine.ErrStakeTooLow.With("%d would remain, minimum is %d", remaining, g.Settings.MinDelegatedStake)
	}
	id := balances.VaultID(ctx.TxID, vaultPurpose("delegate-withdraw/"+ctx.Caller, a.Target, ctx.Height))
	if d.Vaults == nil {
		d.Vaults = map[string]balances.Vault{}
	}
	err := addVault(d.Vaults, id, balances.Vault{Balance: a.Qty, Start: ctx.Height, End: ctx.Height + r.Constants.Gateways.DelegatedUnlockLength})
	if err != nil {
		return nil, "", err
	}
	d.DelegatedStake = remaining
	g.TotalDelegatedStake -= a.Qty
	return d, id, nil
}

// HandleCancelWithdrawal puts a pending withdrawal back into stake. The operator cancels
// from the gateway's vaults, anyone else from their delegate vaults.
func (r *Registry) HandleCancelWithdrawal(ctx arnsmachine.ExecutionContext, a *actions.CancelWithdrawal) (*Gateway, error) {
	g, err := r.active(a.Gateway)
	if err != nil {
		return nil, err
	}
	if ctx.Caller == a.Gateway {
		v, ok := g.Vaults[a.VaultID]
		if !ok {
			return nil, arnsmachine.ErrVaultNotFound.With("%s has no vault %s", a.Gateway, a.VaultID)
		}
		g.OperatorStake += v.Balance
		delete(g.Vaults, a.VaultID)
		return g, nil
	}
	d, ok := g.Delegates[ctx.Caller]
	if !ok {
		return nil, arnsmachine.ErrDelegateNotFound.With("%s on %s", ctx.Caller, a.Gateway)
	}
	v, ok := d.Vaults[a.VaultID]
	if !ok {
		return nil, arnsmachine.ErrVaultNotFound.With("%s has no vault %s on %s", ctx.Caller, a.VaultID, a.Gateway)
	}
	if !g.Settings.AllowDelegatedStaking {
		return nil, arnsmachine.ErrDelegationDisabled.With("%s", a.Gateway)
	}
	if d.DelegatedStake+v.Balance < g.Settings.MinDelegatedStake {
		return nil, arnsmachine.ErrStakeTooLow.With("restaked position %d below minimum %d", d.DelegatedStake+v.Balance, g.Settings.MinDelegatedStake)
	}
	if d.DelegatedStake == 0 {
		d.StartHeight = ctx.Height
	}
	d.DelegatedStake += v.Balance
	g.TotalDelegatedStake += v.Balance
	delete(d.Vaults, a.VaultID)
	return g, nil
}

// ReleaseVaults pays out every gateway and delegate vault that has reached its end height,
// drops empty delegates and removes gateways whose leave has completed. It returns the
// removed gateways.
func (r *Registry) ReleaseVaults(height int64) (removed []arnsmachine.Account, err error) {
	for _, addr := range arnsmachine.SortedKeys(r.Gateways) {
		g := r.Gateways[addr]
		done := g.Leaving() && g.EndHeight <= height
		for _, id := range arnsmachine.SortedKeys(g.Vaults) {
			v := g.Vaults[id]
			if !done && height < v.End {
				continue
			}
			if err = r.Balances.Credit(addr, v.Balance); err != nil {
				return
			}
			delete(g.Vaults, id)
		}
		for _, da := range arnsmachine.SortedKeys(g.Delegates) {
			d := g.Delegates[da]
			for _, id := range arnsmachine.SortedKeys(d.Vaults) {
				v := d.Vaults[id]
				if !done && height < v.End {
					continue
				}
				if err = r.Balances.Credit(da, v.Balance); err != nil {
					return
				}
				delete(d.Vaults, id)
			}
			if d.DelegatedStake == 0 && len(d.Vaults) == 0 {
				delete(g.Delegates, da)
			}
		}
		if done {
			if g.TotalStake() > 0 {
				// stake left on a finished gateway goes back to its owners
				if err = r.Balances.Credit(addr, g.OperatorStake); err != nil {
					return
				}
				g.OperatorStake = 0
			}
			delete(r.Gateways, addr)
			removed = append(removed, addr)
		}
	}
	return
}

// Payout credits a reward to a gateway, giving delegates
// floor(amount × shareRatio/100 × stake/totalDelegated) each and the operator the rest. Each
// share is staked or paid to a balance according to its owner's auto stake setting. The
// amount must already have left the protocol balance.
func (r *Registry) Payout(addr arnsmachine.Account, amount int64) (delegated int64, err error) {
	g, ok := r.Gateways[addr]
	if !ok || amount <= 0 {
		return 0, nil
	}
	if g.TotalDelegatedStake > 0 && g.Settings.DelegateRewardShareRatio > 0 {
		denom := new(big.Int).Mul(big.NewInt(100), big.NewInt(g.TotalDelegatedStake))
		for _, da := range arnsmachine.SortedKeys(g.Delegates) {
			d := g.Delegates[da]
			if d.DelegatedStake == 0 {
				continue
			}
			num := new(big.Int).Mul(big.NewInt(amount), big.NewInt(g.Settings.DelegateRewardShareRatio))
			num.Mul(num, big.NewInt(d.DelegatedStake))
			share := new(big.Int).Quo(num, denom).Int64()
			if share == 0 {
				continue
			}
			if d.AutoStake && !g.Leaving() {
				d.DelegatedStake += share
				g.TotalDelegatedStake += share
			} else if err = r.Balances.Credit(da, share); err != nil {
				return
			}
			delegated += share
		}
	}
	rest := amount - delegated
	if g.Settings.AutoStake && !g.Leaving() {
		g.OperatorStake += rest
		return
	}
	err = r.Balances.Credit(addr, rest)
	return
}
