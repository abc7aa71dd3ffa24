package conductor

import (
	"fmt"
	"os"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/arns"
	"arnsmachine/consensus/balances"
	"arnsmachine/consensus/demand"
	"arnsmachine/consensus/epochs"
	"arnsmachine/consensus/gateways"
)

// GenesisGateway is a gateway that exists from the first height.
type GenesisGateway struct {
	OperatorStake  int64               `json:"operatorStake"`
	ObserverWallet arnsmachine.Account `json:"observerAddress"`
	Settings       gateways.Settings   `json:"settings"`
}

// Genesis is the ignition state. Everything it leaves out starts empty.
type Genesis struct {
	Height           int64                                  `json:"height"`
	Timestamp        int64                                  `json:"timestamp"`
	PeriodZeroHeight int64                                  `json:"periodZeroHeight"`
	Balances         map[arnsmachine.Account]int64          `json:"balances"`
	Reservations     map[string]arns.Reservation            `json:"reservations"`
	Records          map[string]arns.Record                 `json:"records"`
	Fees             map[int64]int64                        `json:"fees"`
	Gateways         map[arnsmachine.Account]GenesisGateway `json:"gateways"`
}

// ReadGenesis loads a genesis file.
func ReadGenesis(path string) (Genesis, error) {
	var g Genesis
	b, err := os.ReadFile(path)
	if err != nil {
		return g, err
	}
	if err := json.Unmarshal(b, &g); err != nil {
		return g, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// Ignite builds the ledger at the genesis height and prescribes the observers of epoch
// zero. Epoch zero must not start before genesis.
func Ignite(c *arnsmachine.Constants, g Genesis, hashes arnsmachine.BlockHashSource) (*Ledger, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Epochs.ZeroStartHeight < g.Height {
		return nil, fmt.Errorf("epoch zero starts at %d, before genesis at %d", c.Epochs.ZeroStartHeight, g.Height)
	}
	periodZero := g.PeriodZeroHeight
	if periodZero == 0 {
		periodZero = g.Height
	}
	var fees demand.Fees
	if len(g.Fees) > 0 {
		fees = demand.Fees(g.Fees)
	}
	l := &Ledger{
		Constants:        c,
		LastTickedHeight: g.Height,
		LastTimestamp:    g.Timestamp,
		Balances:         balances.Balances{},
		Vaults:           balances.Vaults{},
		Records:          arns.Records{},
		Reservations:     arns.Reservations{},
		Demand:           demand.New(c, periodZero, fees),
		Gateways:         gateways.Gateways{},
		Epochs:           epochs.NewState(c),
	}
	for _, addr := range arnsmachine.SortedKeys(g.Balances) {
		if !arnsmachine.ValidAccount(addr) && addr != c.ProtocolAccount {
			return nil, fmt.Errorf("genesis balance for invalid address %q", addr)
		}
		if err := l.Balances.Credit(addr, g.Balances[addr]); err != nil {
			return nil, fmt.Errorf("genesis balance for %s: %w", addr, err)
		}
	}
	for name, res := range g.Reservations {
		l.Reservations[name] = res
	}
	for name, rec := range g.Records {
		l.Records[name] = rec
	}
	for _, addr := range arnsmachine.SortedKeys(g.Gateways) {
		gg := g.Gateways[addr]
		if gg.OperatorStake < c.Gateways.MinOperatorStake {
			return nil, fmt.Errorf("genesis gateway %s stakes %d, minimum is %d", addr, gg.OperatorStake, c.Gateways.MinOperatorStake)
		}
		observer := gg.ObserverWallet
		if observer == "" {
			observer = addr
		}
		if l.Gateways.ObserverTaken(observer, addr) {
			return nil, fmt.Errorf("genesis gateway %s reuses observer %s", addr, observer)
		}
		settings := gg.Settings
		if settings.MinDelegatedStake == 0 {
			settings.MinDelegatedStake = c.Gateways.MinDelegatedStake
		}
		l.Gateways[addr] = &gateways.Gateway{
			OperatorStake:  gg.OperatorStake,
			ObserverWallet: observer,
			Status:         gateways.StatusJoined,
			StartHeight:    g.Height,
			Settings:       settings,
			Vaults:         map[string]balances.Vault{},
			Delegates:      map[arnsmachine.Account]*gateways.Delegate{},
		}
	}
	l.restore()
	if err := l.Epochs.Prescribe(c, l.Gateways, hashes); err != nil {
		return nil, fmt.Errorf("prescribing epoch zero: %w", err)
	}
	arnsmachine.LogCLI(fmt.Sprintf("ignited at %d with supply %s, %d gateways, %d reservations",
		g.Height, arnsmachine.FormatTokens(l.Supply()), len(l.Gateways), len(l.Reservations)), 4)
	return l, nil
}
