package conductor

import (
	"fmt"
	"os"
	"sync"

	"arnsmachine/arnsmachine"
	"arnsmachine/database"
)

const mind = "ledger"

var ready = make(chan struct{})
var current *Conductor

// Start restores the ledger from disk, or ignites it from the genesis file on first run. It
// blocks until the conductor accepts actions and snapshots the ledger when terminate closes.
func Start(terminate chan struct{}, wg *sync.WaitGroup, hashes arnsmachine.BlockHashSource) {
	arnsmachine.LogCLI("Starting the Conductor", 4)
	wg.Add(1)
	go start(terminate, wg, hashes)
	<-ready
}

func start(terminate chan struct{}, wg *sync.WaitGroup, hashes arnsmachine.BlockHashSource) {
	conf := arnsmachine.MakeOrGetConfig()
	constants, err := arnsmachine.ConstantsFromConfig(conf)
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 0)
	}
	l, ok := restoreFromDisk(constants)
	if !ok {
		g, err := ReadGenesis(conf.GetString("genesisFile"))
		if err != nil {
			arnsmachine.LogCLI(err.Error(), 0)
		}
		if l, err = Ignite(constants, g, hashes); err != nil {
			arnsmachine.LogCLI(err.Error(), 0)
		}
	}
	current = New(l, hashes)
	current.persist = true
	arnsmachine.SetCurrentlyProcessing(arnsmachine.BlockHeader{Height: l.LastTickedHeight, Time: l.LastTimestamp})
	close(ready)
	arnsmachine.LogCLI(fmt.Sprintf("Conductor: accepting actions from height %d", l.LastTickedHeight), 4)
	<-terminate
	arnsmachine.LogCLI("Conductor: I received terminate signal, shutting down", 4)
	hs := current.TakeSnapshot()
	arnsmachine.LogCLI(fmt.Sprintf("Conductor: shutdown complete at %d with state %s", hs.Sequence, hs.Hash), 4)
	wg.Done()
}

// Current returns the conductor Start brought up.
func Current() *Conductor {
	<-ready
	return current
}

func restoreFromDisk(constants *arnsmachine.Constants) (*Ledger, bool) {
	f, ok := database.Open(mind, "current")
	if !ok {
		return nil, false
	}
	defer f.Close()
	l, err := decodeLedger(f, constants)
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 0)
		return nil, false
	}
	return l, true
}

// decodeLedger reads a snapshot. The snapshot's own constants win; a node whose config
// disagrees is warned, because the hashes it computes will not match its peers'.
func decodeLedger(f *os.File, constants *arnsmachine.Constants) (*Ledger, error) {
	l := &Ledger{}
	if err := json.NewDecoder(f).Decode(l); err != nil {
		return nil, fmt.Errorf("restoring ledger: %w", err)
	}
	if l.Constants == nil {
		l.Constants = constants
	} else if fmt.Sprintf("%+v", *l.Constants) != fmt.Sprintf("%+v", *constants) {
		arnsmachine.LogCLI("the stored ledger was built with different protocol constants than the config, using the stored ones", 2)
	}
	if l.Demand == nil {
		return nil, fmt.Errorf("restoring ledger: snapshot has no demand state")
	}
	l.restore()
	return l, nil
}

// TakeSnapshot writes the ledger under its state hash and as "current". It returns the hash
// and height it wrote.
func (c *Conductor) TakeSnapshot() arnsmachine.HashSeq {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.snapshot()
}

func (c *Conductor) snapshot() arnsmachine.HashSeq {
	hs := c.ledger.HashSeq()
	b, err := json.MarshalIndent(c.ledger, "", " ")
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 0)
		return hs
	}
	if err := database.Write(mind, hs.Hash, b); err != nil {
		arnsmachine.LogCLI(err.Error(), 1)
	}
	if err := database.Write(mind, "current", b); err != nil {
		arnsmachine.LogCLI(err.Error(), 1)
	}
	return hs
}
