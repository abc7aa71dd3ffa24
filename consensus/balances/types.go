package balances

import (
	"arnsmachine/arnsmachine"
)

// Balances maps an address to its spendable amount in base units. Zero balances are not stored.
type Balances map[arnsmachine.Account]int64

// Vault is an amount locked until End. It is released to its owner by the tick at any
// height >= End, exactly once.
type Vault struct {
	Balance int64 `json:"balance"`
	Start   int64 `json:"startHeight"`
	End     int64 `json:"endHeight"`
}

// Vaults holds every address's time locked vaults keyed by vault id.
type Vaults map[arnsmachine.Account]map[string]Vault

func (b Balances) Copy() Balances {
	c := make(Balances, len(b))
	for k, v := range b {
		c[k] = v
	}
	return c
}

func (v Vaults) Copy() Vaults {
	c := make(Vaults, len(v))
	for owner, vaults := range v {
		c[owner] = CopyVaultMap(vaults)
	}
	return c
}

// CopyVaultMap is shared with the gateway registry, whose operators and delegates hold vaults too.
func CopyVaultMap(m map[string]Vault) map[string]Vault {
	if m == nil {
		return nil
	}
	c := make(map[string]Vault, len(m))
	for id, vault := range m {
		c[id] = vault
	}
	return c
}
