package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/eiannone/keyboard"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/conductor"
	"arnsmachine/database"
)

// cliListener is a cheap and nasty way to speed up development cycles. It listens for keypresses and executes commands.
func cliListener(interrupt chan struct{}) {
	fmt.Println("Press:\nq: to quit\nh: to print the state hash\nb: balances\ng: gateways\nr: records\na: auctions\n" +
		"e: epochs\nd: demand factor\nv: vaults\nk: action kinds\nS: snapshot and diff against the previous one\n" +
		"B: back up the data directory")
	var lastSnapshot string
	for {
		r, k, err := keyboard.GetSingleKey()
		if err != nil {
			panic(err)
		}
		str := string(r)
		switch str {
		default:
			if k == 13 {
				fmt.Println("\n-----------------------------------")
				break
			}
			if r == 0 {
				break
			}
			fmt.Println("Key " + str + " is not bound to any test procedures. See main.cliListener for more details.")
		case "q":
			arnsmachine.LogCLI("User requested to terminate at height: "+fmt.Sprint(arnsmachine.CurrentState().Processing.Height), 4)
			arnsmachine.Shutdown()
			return //if we do not return here, we cannot ctrl+c in case of errors during shutdown
		case "h":
			hs := conductor.Current().HashSeq()
			fmt.Printf("\nHeight: %d\nState hash: %s\n", hs.Sequence, hs.Hash)
		case "b":
			l := conductor.Current().Snapshot()
			spew.Dump(l.Balances)
			fmt.Printf("Supply: %s\n", arnsmachine.FormatTokens(l.Supply()))
		case "g":
			spew.Dump(conductor.Current().Snapshot().Gateways)
		case "r":
			spew.Dump(conductor.Current().Snapshot().Records)
		case "a":
			spew.Dump(conductor.Current().Snapshot().Auctions)
		case "e":
			spew.Dump(conductor.Current().Snapshot().Epochs)
		case "d":
			spew.Dump(conductor.Current().Snapshot().Demand)
		case "v":
			spew.Dump(conductor.Current().Snapshot().Vaults)
		case "k":
			spew.Dump(arnsmachine.GetAllKinds())
		case "S":
			hs := conductor.Current().TakeSnapshot()
			if lastSnapshot != "" && lastSnapshot != hs.Hash {
				d, err := database.Diff("ledger", lastSnapshot, hs.Hash)
				if err != nil {
					arnsmachine.LogCLI(err.Error(), 2)
				} else {
					fmt.Println(d)
				}
			}
			fmt.Printf("\nsnapshot %s at height %d\n", hs.Hash, hs.Sequence)
			lastSnapshot = hs.Hash
		case "B":
			conf := arnsmachine.MakeOrGetConfig()
			dest := filepath.Join(conf.GetString("rootDir"), conf.GetString("backupDir"), fmt.Sprint(time.Now().Unix()))
			if err := database.Backup(dest); err != nil {
				arnsmachine.LogCLI(err.Error(), 2)
				break
			}
			if err := os.WriteFile(filepath.Join(dest, "HEIGHT"), []byte(fmt.Sprint(arnsmachine.CurrentState().Processing.Height)), 0644); err != nil {
				arnsmachine.LogCLI(err.Error(), 3)
			}
			arnsmachine.LogCLI("backed up to "+dest, 4)
		}
	}
}
