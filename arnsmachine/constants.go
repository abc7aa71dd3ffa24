package arnsmachine

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// TokenDenomination is the number of base units in one display token.
const TokenDenomination int64 = 1_000_000

// ConstantsVersion is bumped whenever a default below changes meaning.
const ConstantsVersion = 1

// Constants is the versioned protocol surface. Every replica MUST run with identical
// Constants for a given state; they are folded into the ledger hash.
type Constants struct {
	Version         int64
	ProtocolAccount Account
	// DedupeWindow is how many heights back the ledger remembers tx ids. A repeated line
	// inside the window is skipped; one older than the window is a height regression.
	DedupeWindow int64

	Names    NameSettings
	Demand   DemandSettings
	Auctions AuctionSettings
	Gateways GatewaySettings
	Vaults   VaultSettings
	Epochs   EpochSettings
}

type NameSettings struct {
	MaxNameLength            int64
	MaxLeaseYears            int64
	AnnualRenewalRate        decimal.Decimal
	PermabuyYears            int64
	DefaultUndernames        int64
	MaxUndernames            int64
	UndernameLeaseRate       decimal.Decimal
	UndernamePermabuyRate    decimal.Decimal
	GracePeriodSeconds       int64
	SecondsPerYear           int64
	AuctionRequiredBelowSize int64 // permabuy names shorter than this must be auctioned
}

type DemandSettings struct {
	PeriodLength      int64
	MovingAvgPeriods  int64
	BaseValue         decimal.Decimal
	Min               decimal.Decimal
	UpAdjustment      decimal.Decimal
	DownAdjustment    decimal.Decimal
	StepDownThreshold int64
	Criteria          string // "revenue" or "purchases"
	GenesisFees       map[int64]int64
}

type AuctionSettings struct {
	Duration        int64
	FloorMultiplier decimal.Decimal
	StartMultiplier decimal.Decimal
	DecayRate       decimal.Decimal
	ScalingExponent int64
}

type GatewaySettings struct {
	MinOperatorStake            int64
	MinDelegatedStake           int64
	MaxDelegates                int64
	LeaveLength                 int64
	WithdrawLength              int64
	DelegatedUnlockLength       int64
	MaxConsecutiveFailedEpochs  int64
	SlashRate                   decimal.Decimal
	MaxDelegateRewardShareRatio int64
	MaxLabelLength              int64
	MaxNoteLength               int64
}

type VaultSettings struct {
	MinLockLength int64
	MaxLockLength int64
}

type EpochSettings struct {
	ZeroStartHeight        int64
	Length                 int64
	DistributionDelay      int64
	RewardRate             decimal.Decimal
	GatewayShare           decimal.Decimal
	FailureThreshold       decimal.Decimal
	ObserverPenalty        decimal.Decimal
	MaxObservers           int64
	SampledBlocksCount     int64
	SampledBlocksOffset    int64
	TenurePeriod           int64
	MaxTenureWeight        int64
	SelectionMaxIterations int64
}

func genesisFees() map[int64]int64 {
	t := TokenDenomination
	fees := map[int64]int64{
		1: 1_000_000 * t, 2: 200_000 * t, 3: 20_000 * t, 4: 10_000 * t,
		5: 2_500 * t, 6: 1_500 * t, 7: 800 * t, 8: 500 * t, 9: 400 * t,
		10: 350 * t, 11: 300 * t, 12: 250 * t,
	}
	for i := int64(13); i <= 51; i++ {
		fees[i] = 200 * t
	}
	return fees
}

// DefaultConstants returns the protocol surface the network launched with.
func DefaultConstants() *Constants {
	d := decimal.RequireFromString
	return &Constants{
		Version:         ConstantsVersion,
		ProtocolAccount: ProtocolAccount,
		DedupeWindow:    720,
		Names: NameSettings{
			MaxNameLength:            51,
			MaxLeaseYears:            5,
			AnnualRenewalRate:        d("0.2"),
			PermabuyYears:            10,
			DefaultUndernames:        10,
			MaxUndernames:            10_000,
			UndernameLeaseRate:       d("0.001"),
			UndernamePermabuyRate:    d("0.005"),
			GracePeriodSeconds:       1_209_600,
			SecondsPerYear:           31_536_000,
			AuctionRequiredBelowSize: 12,
		},
		Demand: DemandSettings{
			PeriodLength:      720,
			MovingAvgPeriods:  7,
			BaseValue:         d("1"),
			Min:               d("0.5"),
			UpAdjustment:      d("0.05"),
			DownAdjustment:    d("0.025"),
			StepDownThreshold: 3,
			Criteria:          "revenue",
			GenesisFees:       genesisFees(),
		},
		Auctions: AuctionSettings{
			Duration:        5_040,
			FloorMultiplier: d("1"),
			StartMultiplier: d("50"),
			DecayRate:       d("0.000165"),
			ScalingExponent: 190,
		},
		Gateways: GatewaySettings{
			MinOperatorStake:            10_000 * TokenDenomination,
			MinDelegatedStake:           100 * TokenDenomination,
			MaxDelegates:                10_000,
			LeaveLength:                 64_800,
			WithdrawLength:              21_600,
			DelegatedUnlockLength:       21_600,
			MaxConsecutiveFailedEpochs:  30,
			SlashRate:                   d("0.2"),
			MaxDelegateRewardShareRatio: 95,
			MaxLabelLength:              64,
			MaxNoteLength:               256,
		},
		Vaults: VaultSettings{
			MinLockLength: 10_080,
			MaxLockLength: 3_153_600,
		},
		Epochs: EpochSettings{
			ZeroStartHeight:        0,
			Length:                 720,
			DistributionDelay:      15,
			RewardRate:             d("0.0025"),
			GatewayShare:           d("0.95"),
			FailureThreshold:       d("0.5"),
			ObserverPenalty:        d("0.25"),
			MaxObservers:           50,
			SampledBlocksCount:     3,
			SampledBlocksOffset:    50,
			TenurePeriod:           129_600,
			MaxTenureWeight:        4,
			SelectionMaxIterations: 10_000,
		},
	}
}

// ConstantsFromConfig reads the protocol.* keys set up by InitConfig.
func ConstantsFromConfig(v *viper.Viper) (*Constants, error) {
	c := DefaultConstants()
	var errs []error
	i64 := func(key string, into *int64) {
		if !v.IsSet(key) {
			return
		}
		n, err := cast.ToInt64E(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*into = n
	}
	dec := func(key string, into *decimal.Decimal) {
		if !v.IsSet(key) {
			return
		}
		s, err := cast.ToStringE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		n, err := decimal.NewFromString(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*into = n
	}
	i64("protocol.version", &c.Version)
	i64("protocol.dedupeWindow", &c.DedupeWindow)
	if v.IsSet("protocol.account") {
		c.ProtocolAccount = v.GetString("protocol.account")
	}

	i64("protocol.names.maxNameLength", &c.Names.MaxNameLength)
	i64("protocol.names.maxLeaseYears", &c.Names.MaxLeaseYears)
	dec("protocol.names.annualRenewalRate", &c.Names.AnnualRenewalRate)
	i64("protocol.names.permabuyYears", &c.Names.PermabuyYears)
	i64("protocol.names.defaultUndernames", &c.Names.DefaultUndernames)
	i64("protocol.names.maxUndernames", &c.Names.MaxUndernames)
	dec("protocol.names.undernameLeaseRate", &c.Names.UndernameLeaseRate)
	dec("protocol.names.undernamePermabuyRate", &c.Names.UndernamePermabuyRate)
	i64("protocol.names.gracePeriodSeconds", &c.Names.GracePeriodSeconds)
	i64("protocol.names.secondsPerYear", &c.Names.SecondsPerYear)
	i64("protocol.names.auctionRequiredBelowSize", &c.Names.AuctionRequiredBelowSize)

	i64("protocol.demand.periodLength", &c.Demand.PeriodLength)
	i64("protocol.demand.movingAvgPeriods", &c.Demand.MovingAvgPeriods)
	dec("protocol.demand.baseValue", &c.Demand.BaseValue)
	dec("protocol.demand.min", &c.Demand.Min)
	dec("protocol.demand.upAdjustment", &c.Demand.UpAdjustment)
	dec("protocol.demand.downAdjustment", &c.Demand.DownAdjustment)
	i64("protocol.demand.stepDownThreshold", &c.Demand.StepDownThreshold)
	if v.IsSet("protocol.demand.criteria") {
		c.Demand.Criteria = v.GetString("protocol.demand.criteria")
	}
	if v.IsSet("protocol.demand.genesisFees") {
		raw, err := cast.ToStringMapE(v.Get("protocol.demand.genesisFees"))
		if err != nil {
			errs = append(errs, fmt.Errorf("protocol.demand.genesisFees: %w", err))
		}
		for k, val := range raw {
			length, err := cast.ToInt64E(k)
			if err != nil {
				errs = append(errs, fmt.Errorf("protocol.demand.genesisFees[%s]: %w", k, err))
				continue
			}
			fee, err := cast.ToInt64E(val)
			if err != nil {
				errs = append(errs, fmt.Errorf("protocol.demand.genesisFees[%s]: %w", k, err))
				continue
			}
			c.Demand.GenesisFees[length] = fee
		}
	}

	i64("protocol.auctions.duration", &c.Auctions.Duration)
	dec("protocol.auctions.floorMultiplier", &c.Auctions.FloorMultiplier)
	dec("protocol.auctions.startMultiplier", &c.Auctions.StartMultiplier)
	dec("protocol.auctions.decayRate", &c.Auctions.DecayRate)
	i64("protocol.auctions.scalingExponent", &c.Auctions.ScalingExponent)

	i64("protocol.gateways.minOperatorStake", &c.Gateways.MinOperatorStake)
	i64("protocol.gateways.minDelegatedStake", &c.Gateways.MinDelegatedStake)
	i64("protocol.gateways.maxDelegates", &c.Gateways.MaxDelegates)
	i64("protocol.gateways.leaveLength", &c.Gateways.LeaveLength)
	i64("protocol.gateways.withdrawLength", &c.Gateways.WithdrawLength)
	i64("protocol.gateways.delegatedUnlockLength", &c.Gateways.DelegatedUnlockLength)
	i64("protocol.gateways.maxConsecutiveFailedEpochs", &c.Gateways.MaxConsecutiveFailedEpochs)
	dec("protocol.gateways.slashRate", &c.Gateways.SlashRate)
	i64("protocol.gateways.maxDelegateRewardShareRatio", &c.Gateways.MaxDelegateRewardShareRatio)

	i64("protocol.vaults.minLockLength", &c.Vaults.MinLockLength)
	i64("protocol.vaults.maxLockLength", &c.Vaults.MaxLockLength)

	i64("protocol.epochs.zeroStartHeight", &c.Epochs.ZeroStartHeight)
	i64("protocol.epochs.length", &c.Epochs.Length)
	i64("protocol.epochs.distributionDelay", &c.Epochs.DistributionDelay)
	dec("protocol.epochs.rewardRate", &c.Epochs.RewardRate)
	dec("protocol.epochs.gatewayShare", &c.Epochs.GatewayShare)
	dec("protocol.epochs.failureThreshold", &c.Epochs.FailureThreshold)
	dec("protocol.epochs.observerPenalty", &c.Epochs.ObserverPenalty)
	i64("protocol.epochs.maxObservers", &c.Epochs.MaxObservers)
	i64("protocol.epochs.sampledBlocksCount", &c.Epochs.SampledBlocksCount)
	i64("protocol.epochs.sampledBlocksOffset", &c.Epochs.SampledBlocksOffset)
	i64("protocol.epochs.tenurePeriod", &c.Epochs.TenurePeriod)
	i64("protocol.epochs.maxTenureWeight", &c.Epochs.MaxTenureWeight)
	i64("protocol.epochs.selectionMaxIterations", &c.Epochs.SelectionMaxIterations)

	if len(errs) > 0 {
		return c, errs[0]
	}
	return c, c.Validate()
}

// Validate rejects surfaces that would break an engine invariant.
func (c *Constants) Validate() error {
	switch {
	case c.Epochs.Length <= 0:
		return fmt.Errorf("epoch length must be positive")
	case c.DedupeWindow < 0:
		return fmt.Errorf("dedupe window must not be negative")
	case c.Demand.PeriodLength <= 0 || c.Demand.MovingAvgPeriods <= 0:
		return fmt.Errorf("demand period length and moving average periods must be positive")
	case c.Demand.Min.LessThanOrEqual(decimal.Zero) || c.Demand.Min.GreaterThan(c.Demand.BaseValue):
		return fmt.Errorf("demand minimum must be in (0, base]")
	case c.Demand.Criteria != "revenue" && c.Demand.Criteria != "purchases":
		return fmt.Errorf("unknown demand criteria %q", c.Demand.Criteria)
	case c.Auctions.ScalingExponent < 0:
		return fmt.Errorf("auction scaling exponent must not be negative")
	case c.Auctions.DecayRate.Mul(decimal.NewFromInt(c.Auctions.Duration)).GreaterThan(decimal.NewFromInt(1)):
		return fmt.Errorf("auction decays below zero before it ends")
	case c.Gateways.MinOperatorStake <= 0:
		return fmt.Errorf("minimum operator stake must be positive")
	case c.Vaults.MinLockLength <= 0 || c.Vaults.MaxLockLength < c.Vaults.MinLockLength:
		return fmt.Errorf("invalid vault lock bounds")
	case c.Epochs.SelectionMaxIterations <= 0:
		return fmt.Errorf("observer selection needs a positive iteration cap")
	case c.Epochs.TenurePeriod <= 0:
		return fmt.Errorf("tenure period must be positive")
	case c.Names.SecondsPerYear <= 0:
		return fmt.Errorf("seconds per year must be positive")
	}
	return nil
}

// AppendTo folds the surface into a HashSeq so diverging configurations diverge the state hash.
func (c *Constants) AppendTo(hs *HashSeq) {
	hs.AppendData(fmt.Sprintf("%+v", *c))
}
