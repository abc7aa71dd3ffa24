package arnsmachine

import (
	"fmt"
	"os"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/viper"
)

// ProtocolAccount holds protocol owned tokens: fees are paid into it and epoch rewards are
// paid out of it.
const ProtocolAccount = "arns-protocol-balance-000000000000000000000"

// AuctionEscrowAccount holds the floor prices of running auctions. It is not a valid
// account id, so nothing can sign for it.
const AuctionEscrowAccount = "auction-escrow"

var conf *viper.Viper

func MakeOrGetConfig() *viper.Viper {
	return conf
}

func SetConfig(config *viper.Viper) {
	conf = config
}

type State struct {
	Processing BlockHeader
	Shutdown   chan struct{}
}

var currentState = State{}
var stateMutex = &deadlock.Mutex{}

func Shutdown() {
	LogCLI("Calling Shutdown", 2)
	stateMutex.Lock()
	shutdown := currentState.Shutdown
	height := currentState.Processing.Height
	stateMutex.Unlock()
	if shutdown == nil {
		LogCLI("no shutdown channel registered, exiting", 2)
		os.Exit(1)
	}
	select {
	case <-shutdown:
		return
	default:
		close(shutdown)
	}
	go func() {
		LogCLI("Shutting down at height "+fmt.Sprint(height)+". If the ledger fails to close gracefully within 120 seconds it will be abandoned.", 4)
		//If everything goes well, closing the interrupt channel should shutdown cleanly before terminating.
		//If something goes wrong we kill the process
		time.Sleep(time.Second * 120)
		println("Something didn't shutdown cleanly, the last snapshot on disk is the one to trust.")
		os.Exit(0)
	}()
}

func RegisterShutdownChan(shutdown chan struct{}) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	currentState.Shutdown = shutdown
}

// CurrentState returns the height the node is currently processing.
func CurrentState() (s State) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	return currentState
}

func SetCurrentlyProcessing(bh BlockHeader) {
	stateMutex.Lock()
	defer stateMutex.Unlock()
	currentState.Processing = bh
}
