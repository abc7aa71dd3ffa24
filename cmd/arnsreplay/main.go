package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v3"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/conductor"
	"arnsmachine/messaging/blocks"
	"arnsmachine/messaging/eventcatcher"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	cmd := &cli.Command{
		Name:  "arnsreplay",
		Usage: "Replay an action log from genesis and print the resulting state hash",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "yaml file carrying protocol.* constants, defaults are used when unset",
				Sources: cli.EnvVars("ARNS_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "replay",
				Aliases: []string{"r"},
				Usage:   "Ignite a ledger from a genesis file and feed it an action log",
				Action:  replay,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "genesis",
						Aliases:  []string{"g"},
						Usage:    "genesis json",
						Required: true,
						Sources:  cli.EnvVars("ARNS_GENESIS"),
					},
					&cli.StringFlag{
						Name:     "log",
						Aliases:  []string{"l"},
						Usage:    "action log, one json envelope per line",
						Required: true,
						Sources:  cli.EnvVars("ARNS_ACTION_LOG"),
					},
					&cli.StringFlag{
						Name:    "blocks",
						Usage:   "block server to read observer entropy from. Derived hashes are used when unset",
						Sources: cli.EnvVars("ARNS_BLOCK_SERVER"),
					},
					&cli.StringFlag{
						Name:  "seed",
						Usage: "seed for derived block hashes",
						Value: "arnsmachine",
					},
					&cli.IntFlag{
						Name:  "until",
						Usage: "tick to this height after the last action",
					},
					&cli.BoolFlag{
						Name:  "signatures",
						Usage: "reject unsigned actions",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "write the final ledger as json to this file",
					},
				},
			},
			{
				Name:   "sign",
				Usage:  "Sign every action line read from stdin with a hex private key; the caller becomes its public key",
				Action: sign,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Usage:    "hex private key",
						Required: true,
						Sources:  cli.EnvVars("ARNS_PRIVATE_KEY"),
					},
				},
			},
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func constants(cmd *cli.Command) (*arnsmachine.Constants, error) {
	v := viper.New()
	if path := cmd.String("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	arnsmachine.SetConfig(v)
	return arnsmachine.ConstantsFromConfig(v)
}

func replay(ctx context.Context, cmd *cli.Command) error {
	c, err := constants(cmd)
	if err != nil {
		return err
	}
	g, err := conductor.ReadGenesis(cmd.String("genesis"))
	if err != nil {
		return err
	}
	var hashes arnsmachine.BlockHashSource = blocks.Derived(cmd.String("seed"))
	if server := cmd.String("blocks"); server != "" {
		hashes = blocks.NewServer(server)
	}
	l, err := conductor.Ignite(c, g, hashes)
	if err != nil {
		return err
	}
	cond := conductor.New(l, hashes)

	f, err := os.Open(cmd.String("log"))
	if err != nil {
		return err
	}
	defer f.Close()
	catcher := eventcatcher.New(cond, 1_000_000, cmd.Bool("signatures"))
	if _, err := catcher.Replay(f, 0); err != nil {
		return err
	}
	if until := cmd.Int("until"); until > 0 {
		if _, err := cond.TickTo(until, cond.Snapshot().LastTimestamp); err != nil {
			return err
		}
	}

	hs := cond.HashSeq()
	fmt.Printf("height:     %d\n", hs.Sequence)
	fmt.Printf("state hash: %s\n", hs.Hash)
	fmt.Printf("actions:    %+v\n", catcher.Stats)
	if summary, err := cond.Query(&actions.NetworkSummaryQuery{}); err == nil {
		b, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(b))
	}
	if out := cmd.String("out"); out != "" {
		b, err := json.MarshalIndent(cond.Snapshot(), "", " ")
		if err != nil {
			return err
		}
		return os.WriteFile(out, b, 0644)
	}
	return nil
}

func sign(ctx context.Context, cmd *cli.Command) error {
	key := cmd.String("key")
	caller, err := arnsmachine.PublicKeyFor(key)
	if err != nil {
		return fmt.Errorf("bad key: %w", err)
	}
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 1 {
			env, _, derr := eventcatcher.Decode(line)
			if derr != nil {
				return derr
			}
			env.Caller = caller
			signed, eerr := eventcatcher.Encode(env, key)
			if eerr != nil {
				return eerr
			}
			fmt.Println(string(signed))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
