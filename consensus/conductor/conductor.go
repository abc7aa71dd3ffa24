// Package conductor owns the ledger. It ticks the ledger forward, dispatches every action to
// the engine that handles it and answers queries, all behind one mutex.
package conductor

import (
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
)

// Receipt describes an action the conductor processed, applied or not.
type Receipt struct {
	TxID      string      `json:"txId"`
	Kind      string      `json:"kind"`
	Caller    string      `json:"caller"`
	Height    int64       `json:"height"`
	Applied   bool        `json:"applied"`
	Reason    string      `json:"reason,omitempty"`
	Result    interface{} `json:"result,omitempty"`
	Tick      *TickReport `json:"tick,omitempty"`
	StateHash string      `json:"stateHash"`
}

type Conductor struct {
	mutex       *deadlock.Mutex
	ledger      *Ledger
	hashes      arnsmachine.BlockHashSource
	subscribers map[int]chan Receipt
	nextSub     int
	persist     bool // snapshot to the database after every distribution
}

// New returns a conductor over l that reads entropy from hashes.
func New(l *Ledger, hashes arnsmachine.BlockHashSource) *Conductor {
	l.restore()
	c := &Conductor{
		mutex:       &deadlock.Mutex{},
		ledger:      l,
		hashes:      hashes,
		subscribers: make(map[int]chan Receipt),
	}
	observe(l)
	return c
}

// Handle ticks the ledger to the envelope's height and applies its action. A rejected
// action leaves the ledger exactly as the tick left it and is reported as an
// *arnsmachine.ActionError. Any other error is fatal to the replica.
//
// An envelope whose tx id the ledger already dispatched at that height is
// ErrDuplicateAction and changes nothing, not even the height.
func (c *Conductor) Handle(env actions.Envelope) (Receipt, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if env.Kind == "" && env.Action != nil {
		env.Kind = env.Action.Kind()
	}
	r := Receipt{Kind: env.Kind, Caller: env.Caller, Height: env.Height}

	if err := validate(c.ledger.Constants, env); err != nil {
		return c.rejected(r, env, err)
	}
	r.TxID = TxIDFor(env)
	if c.ledger.Seen.Has(env.Height, r.TxID) {
		return r, arnsmachine.ErrDuplicateAction.With("%s at %d", r.TxID, env.Height)
	}
	ctx := arnsmachine.ExecutionContext{
		Height:    env.Height,
		Timestamp: env.Timestamp,
		TxID:      r.TxID,
		Caller:    env.Caller,
		Hashes:    c.hashes,
	}

	ticked := c.ledger.Copy()
	report, err := ticked.TickTo(ctx)
	if err != nil {
		return r, err
	}
	ticked.Seen.add(env.Height, r.TxID)
	c.ledger = ticked
	if !report.Empty() {
		r.Tick = report
		c.logTick(report)
	}

	next := ticked.Copy()
	result, err := apply(ctx, next, env.Action)
	if err != nil {
		return c.rejected(r, env, err)
	}
	c.ledger = next
	r.Applied = true
	r.Result = result
	r.StateHash = next.HashSeq().Hash
	promActionsApplied.WithLabelValues(engineFor(env.Kind), env.Kind).Inc()
	observe(next)
	arnsmachine.LogMind(arnsmachine.MindLog{MindName: "conductor", Comment: env.Kind + " applied", Message: r})
	c.publish(r)
	return r, nil
}

func (c *Conductor) rejected(r Receipt, env actions.Envelope, err error) (Receipt, error) {
	var ae *arnsmachine.ActionError
	if !errors.As(err, &ae) {
		// engines only return ActionErrors for bad input; anything else is a bug
		ae = arnsmachine.Reject("internal", "%s", err)
		arnsmachine.LogCLI(describe(env, err), 1)
	} else {
		arnsmachine.LogCLI(describe(env, err), 3)
	}
	r.Reason = ae.Reason
	r.StateHash = c.ledger.HashSeq().Hash
	promActionsRejected.WithLabelValues(engineFor(env.Kind), env.Kind, ae.Reason).Inc()
	observe(c.ledger)
	c.publish(r)
	return r, ae
}

func (c *Conductor) logTick(report *TickReport) {
	for _, d := range report.Distributions {
		arnsmachine.LogCLI(fmt.Sprintf("epoch %d closed at %d", d.Epoch.Index, d.DistributedAt), 4)
	}
	if report.Rollovers > 0 {
		arnsmachine.LogCLI(fmt.Sprintf("demand factor is %s after %d period rollover(s)", c.ledger.Demand.Factor, report.Rollovers), 4)
	}
	if len(report.Removed) > 0 {
		arnsmachine.LogCLI(fmt.Sprintf("gateways removed: %v", report.Removed), 4)
	}
	if c.persist && len(report.Distributions) > 0 {
		c.snapshot()
	}
}

// TickTo advances the ledger to height without applying an action. It is what a node runs
// when the chain moves on with no actions for it.
func (c *Conductor) TickTo(height, timestamp int64) (*TickReport, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ticked := c.ledger.Copy()
	report, err := ticked.TickTo(arnsmachine.ExecutionContext{Height: height, Timestamp: timestamp, Hashes: c.hashes})
	if err != nil {
		return report, err
	}
	c.ledger = ticked
	if !report.Empty() {
		c.logTick(report)
	}
	observe(ticked)
	return report, nil
}

// Snapshot returns a deep copy of the ledger.
func (c *Conductor) Snapshot() *Ledger {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ledger.Copy()
}

// Height returns the last ticked height.
func (c *Conductor) Height() int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ledger.LastTickedHeight
}

// Seen reports whether the ledger already dispatched txID at height.
func (c *Conductor) Seen(height int64, txID string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ledger.Seen.Has(height, txID)
}

// HashSeq returns the current state hash.
func (c *Conductor) HashSeq() arnsmachine.HashSeq {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ledger.HashSeq()
}

// Subscribe returns a feed of receipts and a func to stop it. Slow subscribers miss
// receipts rather than block the ledger.
func (c *Conductor) Subscribe(buffer int) (<-chan Receipt, func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Receipt, buffer)
	c.subscribers[id] = ch
	return ch, func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

func (c *Conductor) publish(r Receipt) {
	for _, sub := range c.subscribers {
		select {
		case sub <- r:
		default:
		}
	}
}
