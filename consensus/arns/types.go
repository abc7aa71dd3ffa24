// Package arns holds name records and reservations and prices everything a name can be
// charged for.
package arns

import (
	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
)

// Record is a registered name. EndTimestamp is zero for permabuys.
type Record struct {
	ProcessID      string `json:"processId"`
	Type           string `json:"type"`
	StartTimestamp int64  `json:"startTimestamp"`
	EndTimestamp   int64  `json:"endTimestamp,omitempty"`
	UndernameLimit int64  `json:"undernameLimit"`
	PurchasePrice  int64  `json:"purchasePrice"`
}

// Reservation withholds a name from public registration. A reservation with neither field
// set is permanent.
type Reservation struct {
	Target       arnsmachine.Account `json:"target,omitempty"`
	EndTimestamp int64               `json:"endTimestamp,omitempty"`
}

type Records map[string]Record

type Reservations map[string]Reservation

func (r Records) Copy() Records {
	c := make(Records, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (r Reservations) Copy() Reservations {
	c := make(Reservations, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

func (r Records) AppendTo(hs *arnsmachine.HashSeq) {
	for _, name := range arnsmachine.SortedKeys(r) {
		rec := r[name]
		hs.AppendAll(name, rec.ProcessID, rec.Type, rec.StartTimestamp, rec.EndTimestamp, rec.UndernameLimit, rec.PurchasePrice)
	}
}

func (r Reservations) AppendTo(hs *arnsmachine.HashSeq) {
	for _, name := range arnsmachine.SortedKeys(r) {
		res := r[name]
		hs.AppendAll(name, res.Target, res.EndTimestamp)
	}
}

// IsPermabuy reports whether the record never expires.
func (rec Record) IsPermabuy() bool {
	return rec.Type == actions.Permabuy
}

// Expired reports whether a lease has passed its end timestamp. Expired leases are still in
// their grace period until the tick prunes them.
func (rec Record) Expired(now int64) bool {
	return !rec.IsPermabuy() && rec.EndTimestamp < now
}

// Active reports whether a reservation still holds at now.
func (res Reservation) Active(now int64) bool {
	return res.EndTimestamp == 0 || res.EndTimestamp >= now
}

// Prune removes leases whose grace period has elapsed and reservations that have ended. It
// returns the removed names.
func Prune(now int64, c *arnsmachine.Constants, records Records, reservations Reservations) (removed []string) {
	for _, name := range arnsmachine.SortedKeys(records) {
		rec := records[name]
		if !rec.IsPermabuy() && rec.EndTimestamp+c.Names.GracePeriodSeconds < now {
			delete(records, name)
			removed = append(removed, name)
		}
	}
	for _, name := range arnsmachine.SortedKeys(reservations) {
		if !reservations[name].Active(now) {
			delete(reservations, name)
		}
	}
	return
}
