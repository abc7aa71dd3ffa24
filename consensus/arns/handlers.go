package arns

import (
	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/balances"
	"arnsmachine/consensus/demand"
)

// Registry is the part of the ledger the name engine reads and writes.
type Registry struct {
	Constants    *arnsmachine.Constants
	Balances     balances.Balances
	Demand       *demand.State
	Records      Records
	Reservations Reservations
}

// ProcessID resolves the atomic placeholder to the transaction that carries it.
func ProcessID(ctx arnsmachine.ExecutionContext, contractTxID string) string {
	if contractTxID == actions.AtomicContractID {
		return ctx.TxID
	}
	return contractTxID
}

// CheckAvailable fails if name is registered or reserved for someone other than the caller.
func (r *Registry) CheckAvailable(ctx arnsmachine.ExecutionContext, name string) (reservedForCaller bool, err error) {
	if _, ok := r.Records[name]; ok {
		return false, arnsmachine.ErrNameNotAvailable.With("%s is registered", name)
	}
	res, ok := r.Reservations[name]
	if !ok || !res.Active(ctx.Timestamp) {
		return false, nil
	}
	if res.Target == "" || res.Target != ctx.Caller {
		return false, arnsmachine.ErrNameReserved.With("%s", name)
	}
	return true, nil
}

func (r *Registry) pay(ctx arnsmachine.ExecutionContext, fee int64) error {
	return r.Balances.Transfer(ctx.Caller, r.Constants.ProtocolAccount, fee)
}

// NewRecord builds the record a purchase or auction settles into.
func (r *Registry) NewRecord(processID, recordType string, years, price, now int64) Record {
	rec := Record{
		ProcessID:      processID,
		Type:           recordType,
		StartTimestamp: now,
		UndernameLimit: r.Constants.Names.DefaultUndernames,
		PurchasePrice:  price,
	}
	if recordType == actions.Lease {
		rec.EndTimestamp = now + years*r.Constants.Names.SecondsPerYear
	}
	return rec
}

// Settle stores a purchased record, consumes any reservation held by the buyer and tallies
// the purchase.
func (r *Registry) Settle(name string, rec Record) {
	r.Records[name] = rec
	delete(r.Reservations, name)
	r.Demand.Tally(rec.PurchasePrice)
}

// HandleBuyRecord registers a name at the current fee. Names under an active auction and
// short permabuys go through the auction engine instead.
func (r *Registry) HandleBuyRecord(ctx arnsmachine.ExecutionContext, a *actions.BuyRecord, inAuction bool) (Record, error) {
	name := actions.NormalizeName(a.Name)
	reservedForCaller, err := r.CheckAvailable(ctx, name)
	if err != nil {
		return Record{}, err
	}
	if inAuction {
		return Record{}, arnsmachine.ErrNameInAuction.With("%s", name)
	}
	if a.RecordType() == actions.Permabuy && int64(len(name)) < r.Constants.Names.AuctionRequiredBelowSize && !reservedForCaller {
		return Record{}, arnsmachine.ErrAuctionRequired.With("permabuy of %s", name)
	}
	fee := RegistrationFee(r.Constants, r.Demand, name, a.RecordType(), a.LeaseYears())
	if err := r.pay(ctx, fee); err != nil {
		return Record{}, err
	}
	rec := r.NewRecord(ProcessID(ctx, a.ContractTxID), a.RecordType(), a.LeaseYears(), fee, ctx.Timestamp)
	r.Settle(name, rec)
	return rec, nil
}

func (r *Registry) record(name string) (Record, error) {
	rec, ok := r.Records[name]
	if !ok {
		return rec, arnsmachine.ErrRecordNotFound.With("%s", name)
	}
	return rec, nil
}

// HandleExtendRecord adds years to a lease. Leases in their grace period may still be
// extended; the remaining term may not exceed the maximum lease.
func (r *Registry) HandleExtendRecord(ctx arnsmachine.ExecutionContext, a *actions.ExtendRecord) (Record, error) {
	name := actions.NormalizeName(a.Name)
	rec, err := r.record(name)
	if err != nil {
		return rec, err
	}
	if rec.IsPermabuy() {
		return rec, arnsmachine.ErrRecordIsPermabuy.With("%s", name)
	}
	if rec.EndTimestamp+r.Constants.Names.GracePeriodSeconds < ctx.Timestamp {
		return rec, arnsmachine.ErrRecordExpired.With("%s", name)
	}
	end := rec.EndTimestamp + a.Years*r.Constants.Names.SecondsPerYear
	if end-ctx.Timestamp > r.Constants.Names.MaxLeaseYears*r.Constants.Names.SecondsPerYear {
		return rec, arnsmachine.ErrMaxLeaseExceeded.With("%s would run until %d", name, end)
	}
	fee := ExtensionFee(r.Constants, r.Demand, name, a.Years)
	if err := r.pay(ctx, fee); err != nil {
		return rec, err
	}
	rec.EndTimestamp = end
	r.Records[name] = rec
	r.Demand.Tally(fee)
	return rec, nil
}

// HandleIncreaseUndernameCount raises a record's undername limit for the rest of its term.
func (r *Registry) HandleIncreaseUndernameCount(ctx arnsmachine.ExecutionContext, a *actions.IncreaseUndernameCount) (Record, error) {
	name := actions.NormalizeName(a.Name)
	rec, err := r.record(name)
	if err != nil {
		return rec, err
	}
	if rec.Expired(ctx.Timestamp) {
		return rec, arnsmachine.ErrRecordExpired.With("%s", name)
	}
	if rec.UndernameLimit+a.Qty > r.Constants.Names.MaxUndernames {
		return rec, arnsmachine.ErrMaxUndernamesExceeded.With("%s has %d", name, rec.UndernameLimit)
	}
	fee := UndernameFee(r.Constants, r.Demand, name, rec, a.Qty, ctx.Timestamp)
	if err := r.pay(ctx, fee); err != nil {
		return rec, err
	}
	rec.UndernameLimit += a.Qty
	r.Records[name] = rec
	r.Demand.Tally(fee)
	return rec, nil
}

// HandleUpgradeName converts a live lease into a permabuy.
func (r *Registry) HandleUpgradeName(ctx arnsmachine.ExecutionContext, a *actions.UpgradeName) (Record, error) {
	name := actions.NormalizeName(a.Name)
	rec, err := r.record(name)
	if err != nil {
		return rec, err
	}
	if rec.IsPermabuy() {
		return rec, arnsmachine.ErrRecordIsPermabuy.With("%s", name)
	}
	if rec.Expired(ctx.Timestamp) {
		return rec, arnsmachine.ErrRecordExpired.With("%s", name)
	}
	fee := UpgradeFee(r.Constants, r.Demand, name)
	if err := r.pay(ctx, fee); err != nil {
		return rec, err
	}
	rec.Type = actions.Permabuy
	rec.EndTimestamp = 0
	rec.PurchasePrice = fee
	r.Records[name] = rec
	r.Demand.Tally(fee)
	return rec, nil
}
