package balances

import (
	"arnsmachine/arnsmachine"
)

func (b Balances) Get(account arnsmachine.Account) int64 {
	return b[account]
}

// Credit adds qty to account.
func (b Balances) Credit(account arnsmachine.Account, qty int64) error {
	if qty < 0 {
		return arnsmachine.ErrInvalidQuantity.With("cannot credit %d", qty)
	}
	if qty == 0 {
		return nil
	}
	sum, ok := arnsmachine.AddAmounts(b[account], qty)
	if !ok {
		return arnsmachine.ErrInvalidQuantity.With("crediting %d to %s overflows", qty, account)
	}
	b[account] = sum
	return nil
}

// Debit removes qty from account or fails without touching anything.
func (b Balances) Debit(account arnsmachine.Account, qty int64) error {
	if qty < 0 {
		return arnsmachine.ErrInvalidQuantity.With("cannot debit %d", qty)
	}
	have := b[account]
	if have < qty {
		return arnsmachine.ErrInsufficientBalance.With("%s has %d, needs %d", account, have, qty)
	}
	if have == qty {
		delete(b, account)
		return nil
	}
	b[account] = have - qty
	return nil
}

// Transfer moves qty from one account to another. The sum of both balances is unchanged.
func (b Balances) Transfer(from, to arnsmachine.Account, qty int64) error {
	if from == to {
		return arnsmachine.ErrSelfTransfer.With("%s", from)
	}
	if err := b.Debit(from, qty); err != nil {
		return err
	}
	if err := b.Credit(to, qty); err != nil {
		// put it back, Debit already succeeded
		b[from] += qty
		return err
	}
	return nil
}

func (b Balances) Total() (total int64) {
	for _, v := range b {
		total += v
	}
	return
}

func (b Balances) AppendTo(hs *arnsmachine.HashSeq) {
	for _, account := range arnsmachine.SortedKeys(b) {
		hs.AppendAll(account, b[account])
	}
}
