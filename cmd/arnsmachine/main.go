package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/viper"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/messaging/blocks"
	"arnsmachine/messaging/eventcatcher"
	"arnsmachine/messaging/queryserver"
)

func main() {
	delve := false
	deadlock.Opts.DisableLockOrderDetection = true
	deadlock.Opts.DeadlockTimeout = time.Millisecond * 30000

	// Various aspect of this application require global and local settings. To keep things
	// clean and tidy we put these settings in a Viper configuration.
	conf := viper.New()

	// Now we initialise this configuration with basic settings that are required on startup.
	arnsmachine.InitConfig(conf)
	// make the config accessible globally
	arnsmachine.SetConfig(conf)
	if conf.GetBool("firstRun") {
		fmt.Printf("\nFirst run. Config written to %sconfig.yaml, genesis is read from %s\n\n",
			conf.GetString("rootDir"), conf.GetString("genesisFile"))
	}

	// the terminator channel blocks until shutdown, anything requiring a clean shutdown should
	// wait on this channel and clean up when it stops blocking.
	terminator := make(chan struct{})

	// anything requiring a clean shutdown (the ledger snapshot, the log offset) must add to
	// this waitgroup and remove itself once it has cleanly shut down.
	wg := &sync.WaitGroup{}

	// interrupt: see cliListener
	interrupt := make(chan struct{})

	if delve {
		// If we've been waiting for a mutex lock for an Uncomfortable Period of Time (UPT),
		// we exit and dump all our goroutine stacks to the terminal. This is usually *very*
		// helpful *except* while debugging where breakpoints cause us to exceed UPT limits.
		deadlock.Opts.Disable = true
	} else {
		go cliListener(interrupt)
	}

	arnsmachine.RegisterShutdownChan(interrupt)
	arnsmachine.LogCLI("Waiting for terminate signal, press q to quit", 4)

	go startEngines(terminator, wg, conf)

	<-interrupt
	conf.Set("firstRun", false)
	if err := conf.WriteConfig(); err != nil {
		arnsmachine.LogCLI(err.Error(), 3)
	}
	close(terminator)
	wg.Wait()
	os.Exit(0)
}

// startEngines brings up everything needed during normal operation. The conductor has to
// be accepting actions before anything can feed or query it.
func startEngines(terminator chan struct{}, wg *sync.WaitGroup, conf *viper.Viper) {
	hashes := blocks.FromConfig()
	conductor.Start(terminator, wg, hashes)
	cond := conductor.Current()
	eventcatcher.Start(terminator, wg, cond)
	var writer *eventcatcher.Writer
	if conf.GetBool("acceptActions") {
		writer = eventcatcher.NewWriter(conf.GetString("actionLog"))
	}
	queryserver.Start(terminator, wg, cond, writer)
	if !conf.GetBool("followChain") {
		return
	}
	server, ok := hashes.(*blocks.Server)
	key := conf.GetString("sequencerKey")
	if !ok || writer == nil || key == "" {
		arnsmachine.LogCLI("followChain needs a block server, acceptActions and a sequencerKey", 2)
		return
	}
	go followChain(terminator, server, writer, key)
}

// followChain appends a signed tick line for every new tip, so that expiries and epochs
// advance even when nobody submits an action. The ledger only ever moves through the log.
func followChain(terminator chan struct{}, server *blocks.Server, writer *eventcatcher.Writer, key string) {
	caller, err := arnsmachine.PublicKeyFor(key)
	if err != nil {
		arnsmachine.LogCLI(err.Error(), 1)
		return
	}
	for tip := range server.Subscribe(terminator, 20*time.Second) {
		bh, err := server.FetchBlock(tip.Height)
		if err != nil {
			arnsmachine.LogCLI(err.Error(), 2)
			continue
		}
		last, err := writer.Height()
		if err != nil {
			arnsmachine.LogCLI(err.Error(), 1)
			continue
		}
		if bh.Height <= last {
			continue
		}
		env := actions.Envelope{Caller: caller, Height: bh.Height, Timestamp: bh.Time, Action: &actions.Tick{}}
		line, err := eventcatcher.Encode(env, key)
		if err != nil {
			arnsmachine.LogCLI(err.Error(), 1)
			continue
		}
		if _, err := writer.Append(line); err != nil {
			arnsmachine.LogCLI(err.Error(), 2)
			continue
		}
		arnsmachine.SetCurrentlyProcessing(bh)
	}
}
