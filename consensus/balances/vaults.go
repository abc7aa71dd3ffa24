package balances

import (
	"github.com/google/uuid"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
)

// vaultNamespace scopes vault ids so they never collide with ids derived elsewhere.
var vaultNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("arnsmachine/vaults"))

// VaultID derives a vault id from the creating transaction. Purpose separates vaults created
// by the same action, e.g. a leave creates one per delegate.
func VaultID(txid, purpose string) string {
	return uuid.NewSHA1(vaultNamespace, []byte(txid+"/"+purpose)).String()
}

// Get returns a vault owned by owner.
func (v Vaults) Get(owner arnsmachine.Account, id string) (Vault, bool) {
	vault, ok := v[owner][id]
	return vault, ok
}

// Add stores a new vault, refusing to overwrite an existing id.
func (v Vaults) Add(owner arnsmachine.Account, id string, vault Vault) error {
	if _, exists := v[owner][id]; exists {
		return arnsmachine.Reject("vault-exists", "%s already holds vault %s", owner, id)
	}
	if v[owner] == nil {
		v[owner] = make(map[string]Vault)
	}
	v[owner][id] = vault
	return nil
}

func (v Vaults) remove(owner arnsmachine.Account, id string) {
	delete(v[owner], id)
	if len(v[owner]) == 0 {
		delete(v, owner)
	}
}

// Unlock releases every vault whose end height has been reached back to its owner's
// balance and returns the amount released.
func (v Vaults) Unlock(height int64, b Balances) (released int64, err error) {
	for _, owner := range arnsmachine.SortedKeys(v) {
		vaults := v[owner]
		for _, id := range arnsmachine.SortedKeys(vaults) {
			vault := vaults[id]
			if height < vault.End {
				continue
			}
			if err = b.Credit(owner, vault.Balance); err != nil {
				return
			}
			released += vault.Balance
			v.remove(owner, id)
		}
	}
	return
}

func (v Vaults) Total() (total int64) {
	for _, vaults := range v {
		for _, vault := range vaults {
			total += vault.Balance
		}
	}
	return
}

func (v Vaults) AppendTo(hs *arnsmachine.HashSeq) {
	for _, owner := range arnsmachine.SortedKeys(v) {
		AppendVaultMap(hs, owner, v[owner])
	}
}

// AppendVaultMap hashes one owner's vaults in id order.
func AppendVaultMap(hs *arnsmachine.HashSeq, owner arnsmachine.Account, vaults map[string]Vault) {
	for _, id := range arnsmachine.SortedKeys(vaults) {
		vault := vaults[id]
		hs.AppendAll(owner, id, vault.Balance, vault.Start, vault.End)
	}
}

// Lock moves qty out of owner's balance into a new vault for recipient.
func Lock(ctx arnsmachine.ExecutionContext, b Balances, v Vaults, recipient arnsmachine.Account, qty, lockLength int64, purpose string) (string, error) {
	id := VaultID(ctx.TxID, purpose)
	if _, exists := v.Get(recipient, id); exists {
		return "", arnsmachine.Reject("vault-exists", "vault %s", id)
	}
	if err := b.Debit(ctx.Caller, qty); err != nil {
		return "", err
	}
	if err := v.Add(recipient, id, Vault{Balance: qty, Start: ctx.Height, End: ctx.Height + lockLength}); err != nil {
		b[ctx.Caller] += qty
		return "", err
	}
	return id, nil
}

func HandleTransfer(ctx arnsmachine.ExecutionContext, b Balances, a *actions.Transfer) error {
	return b.Transfer(ctx.Caller, a.Target, a.Qty)
}

func HandleCreateVault(ctx arnsmachine.ExecutionContext, b Balances, v Vaults, a *actions.CreateVault) (string, error) {
	return Lock(ctx, b, v, ctx.Caller, a.Qty, a.LockLength, actions.KindCreateVault)
}

func HandleVaultedTransfer(ctx arnsmachine.ExecutionContext, b Balances, v Vaults, a *actions.VaultedTransfer) (string, error) {
	if a.Recipient == ctx.Caller {
		return "", arnsmachine.ErrSelfTransfer.With("%s", a.Recipient)
	}
	return Lock(ctx, b, v, a.Recipient, a.Qty, a.LockLength, actions.KindVaultedTransfer)
}

func liveVault(ctx arnsmachine.ExecutionContext, v Vaults, id string) (Vault, error) {
	vault, ok := v.Get(ctx.Caller, id)
	if !ok {
		return vault, arnsmachine.ErrVaultNotFound.With("%s has no vault %s", ctx.Caller, id)
	}
	if vault.End <= ctx.Height {
		return vault, arnsmachine.ErrVaultExpired.With("vault %s ended at %d", id, vault.End)
	}
	return vault, nil
}

// HandleExtendVault pushes a vault's end height out. The remaining lock may not exceed the
// maximum lock length.
func HandleExtendVault(ctx arnsmachine.ExecutionContext, c *arnsmachine.Constants, v Vaults, a *actions.ExtendVault) error {
	vault, err := liveVault(ctx, v, a.VaultID)
	if err != nil {
		return err
	}
	end := vault.End + a.ExtendLength
	if end-ctx.Height > c.Vaults.MaxLockLength {
		return arnsmachine.ErrInvalidLockLength.With("remaining lock %d exceeds %d", end-ctx.Height, c.Vaults.MaxLockLength)
	}
	vault.End = end
	v[ctx.Caller][a.VaultID] = vault
	return nil
}

func HandleIncreaseVault(ctx arnsmachine.ExecutionContext, b Balances, v Vaults, a *actions.IncreaseVault) error {
	vault, err := liveVault(ctx, v, a.VaultID)
	if err != nil {
		return err
	}
	sum, ok := arnsmachine.AddAmounts(vault.Balance, a.Qty)
	if !ok {
		return arnsmachine.ErrInvalidQuantity.With("vault balance overflows")
	}
	if err := b.Debit(ctx.Caller, a.Qty); err != nil {
		return err
	}
	vault.Balance = sum
	v[ctx.Caller][a.VaultID] = vault
	return nil
}
