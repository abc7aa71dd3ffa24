// Package eventcatcher feeds the action log into the conductor. The log is JSON lines, one
// envelope per line, in the order the ledger must apply them.
package eventcatcher

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/spf13/cast"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/database"
)

const mind = "eventcatcher"

// Handler is what the catcher feeds. *conductor.Conductor is the only real one.
type Handler interface {
	Handle(env actions.Envelope) (conductor.Receipt, error)
	Seen(height int64, txID string) bool
}

// Stats counts what happened to the lines a catcher has seen.
type Stats struct {
	Applied    int64
	Rejected   int64
	Duplicates int64
	Malformed  int64
}

type Catcher struct {
	handler           Handler
	fresh             func(message interface{}) bool
	requireSignatures bool
	following         bool
	Stats             Stats
	// OnCheckpoint is called with the offset of a line whose tick closed an epoch, which is
	// where the conductor snapshots.
	OnCheckpoint func(offset int64)
}

// New returns a catcher feeding h. capacity sizes the filter that spares the ledger a
// round trip for repeats; the ledger decides what a duplicate is.
func New(h Handler, capacity uint, requireSignatures bool) *Catcher {
	return &Catcher{
		handler:           h,
		fresh:             arnsmachine.MakeNewInverseBloomFilter(capacity),
		requireSignatures: requireSignatures,
	}
}

// ErrMalformed marks lines that never reached the ledger because they could not be decoded
// or their signature did not verify.
var ErrMalformed = errors.New("malformed action line")

// Ingest decodes one line and hands it to the handler. Rejected and duplicate actions are
// not errors here: they are counted, and the receipt returned. Errors are for lines that
// never reached the ledger, and for failures that make the replica untrustworthy, a height
// regression among them.
func (c *Catcher) Ingest(b []byte) (conductor.Receipt, error) {
	env, line, err := Decode(b)
	if err != nil {
		c.Stats.Malformed++
		return conductor.Receipt{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if line.Signature != "" || c.requireSignatures {
		if !verify(env, line) {
			c.Stats.Malformed++
			return conductor.Receipt{}, fmt.Errorf("%w: bad signature on %s from %s", ErrMalformed, env.Kind, env.Caller)
		}
	}
	if env.TxID == "" {
		env.TxID = conductor.TxIDFor(env)
	}
	// the filter never claims a new id was seen, but only the ledger knows it for sure
	if !c.fresh(env.TxID) && c.handler.Seen(env.Height, env.TxID) {
		c.Stats.Duplicates++
		return conductor.Receipt{TxID: env.TxID, Kind: env.Kind, Caller: env.Caller, Height: env.Height}, nil
	}
	r, err := c.handler.Handle(env)
	var ae *arnsmachine.ActionError
	switch {
	case err == nil:
		c.Stats.Applied++
	case errors.Is(err, arnsmachine.ErrDuplicateAction):
		c.Stats.Duplicates++
		err = nil
	case errors.As(err, &ae):
		c.Stats.Rejected++
		err = nil
	}
	return r, err
}

// Replay ingests every line of r, starting at offset, and returns the offset after the last
// line consumed. Malformed lines are logged and skipped. Anything else, a height regression
// included, stops the replay at the offending line. When the catcher is following a live
// log, a final line with no newline is left for the next pass.
func (c *Catcher) Replay(r io.Reader, offset int64) (int64, error) {
	reader := bufio.NewReaderSize(r, 1<<16)
	for {
		b, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return offset, err
		}
		if err == io.EOF && c.following && len(b) > 0 {
			return offset, nil
		}
		start := offset
		offset += int64(len(b))
		if line := bytes.TrimSpace(b); len(line) > 0 {
			receipt, ierr := c.Ingest(line)
			switch {
			case ierr == nil:
				if receipt.Tick != nil && len(receipt.Tick.Distributions) > 0 && c.OnCheckpoint != nil {
					c.OnCheckpoint(start)
				}
			case errors.Is(ierr, ErrMalformed):
				arnsmachine.LogCLI(fmt.Sprintf("skipping line at offset %d: %s", start, ierr), 2)
			default:
				return start, ierr
			}
		}
		if err == io.EOF {
			return offset, nil
		}
	}
}

// Start tails the configured action log into the conductor until terminate closes. It
// resumes at the offset stored with the last snapshot. A line the ledger cannot take shuts
// the node down with the offset left at that line.
func Start(terminate chan struct{}, wg *sync.WaitGroup, cond *conductor.Conductor) {
	arnsmachine.LogCLI("Starting the Event catcher", 4)
	conf := arnsmachine.MakeOrGetConfig()
	c := New(cond, cast.ToUint(conf.GetInt("dedupeCapacity")), conf.GetBool("requireSignatures"))
	c.OnCheckpoint = saveOffset
	c.following = true
	path := conf.GetString("actionLog")
	wg.Add(1)
	go func() {
		defer wg.Done()
		offset := loadOffset()
		stop := func() {
			hs := cond.TakeSnapshot()
			saveOffset(offset)
			arnsmachine.LogCLI(fmt.Sprintf("Event catcher: stopped at offset %d, state %s", offset, hs.Hash), 4)
		}
		for {
			next, err := c.tail(path, offset)
			if next != offset {
				arnsmachine.LogCLI(fmt.Sprintf("action log at offset %d: %+v", next, c.Stats), 4)
			}
			offset = next
			if err != nil {
				arnsmachine.LogCLI(fmt.Sprintf("action log at offset %d: %s", offset, err), 0)
				<-terminate
				stop()
				return
			}
			select {
			case <-terminate:
				stop()
				return
			case <-time.After(time.Second):
			}
		}
	}()
}

func (c *Catcher) tail(path string, offset int64) (int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return offset, nil
	}
	if err != nil {
		return offset, err
	}
	defer f.Close()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	return c.Replay(f, offset)
}

func loadOffset() int64 {
	b, ok := database.Read(mind, "offset")
	if !ok {
		return 0
	}
	return cast.ToInt64(string(b))
}

func saveOffset(offset int64) {
	if err := database.Write(mind, "offset", []byte(arnsmachine.Itoa(offset))); err != nil {
		arnsmachine.LogCLI(err.Error(), 1)
	}
}
