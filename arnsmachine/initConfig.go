package arnsmachine

import (
	"os"

	"github.com/spf13/viper"
)

// InitConfig sets up our Viper config object
func InitConfig(config *viper.Viper) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		LogCLI(err.Error(), 0)
	}
	config.SetDefault("rootDir", homeDir+"/arnsmachine/")
	config.SetConfigType("yaml")
	config.SetConfigFile(config.GetString("rootDir") + "config.yaml")
	err = config.ReadInConfig()
	if err != nil {
		LogCLI(err.Error(), 4)
	}
	config.SetDefault("firstRun", true)
	config.SetDefault("flatFileDir", "data/")
	config.SetDefault("backupDir", "backup/")
	config.SetDefault("blockServer", "https://arweave.net")
	config.SetDefault("logLevel", 4)
	config.SetDefault("logActors", false)
	config.SetDefault("devMode", false)
	config.SetDefault("genesisFile", config.GetString("rootDir")+"genesis.json")
	config.SetDefault("actionLog", config.GetString("rootDir")+"actions.jsonl")
	config.SetDefault("queryAddr", "127.0.0.1:1032")
	config.SetDefault("requireSignatures", false)
	config.SetDefault("acceptActions", false)
	config.SetDefault("followChain", false)
	config.SetDefault("sequencerKey", "")
	config.SetDefault("dedupeCapacity", 100000)
	for key, value := range protocolDefaults(DefaultConstants()) {
		config.SetDefault(key, value)
	}
	// Create our working directory and config file if not exist
	initRootDir(config)
	Touch(config.GetString("rootDir") + "config.yaml")
	err = config.WriteConfig()
	if err != nil {
		LogCLI(err.Error(), 0)
	}
}

func initRootDir(conf *viper.Viper) {
	_, err := os.Stat(conf.GetString("rootDir"))
	if os.IsNotExist(err) {
		err = os.Mkdir(conf.GetString("rootDir"), 0755)
		if err != nil {
			LogCLI(err, 0)
		}
	}
}

// protocolDefaults flattens the launch constants into viper keys. Decimals are stored as
// strings so YAML round trips never touch a float.
func protocolDefaults(c *Constants) map[string]interface{} {
	fees := make(map[string]interface{})
	for length, fee := range c.Demand.GenesisFees {
		fees[Itoa(length)] = fee
	}
	return map[string]interface{}{
		"protocol.version": c.Version,
		"protocol.account": c.ProtocolAccount,

		"protocol.names.maxNameLength":            c.Names.MaxNameLength,
		"protocol.names.maxLeaseYears":            c.Names.MaxLeaseYears,
		"protocol.names.annualRenewalRate":        c.Names.AnnualRenewalRate.String(),
		"protocol.names.permabuyYears":            c.Names.PermabuyYears,
		"protocol.names.defaultUndernames":        c.Names.DefaultUndernames,
		"protocol.names.maxUndernames":            c.Names.MaxUndernames,
		"protocol.names.undernameLeaseRate":       c.Names.UndernameLeaseRate.String(),
		"protocol.names.undernamePermabuyRate":    c.Names.UndernamePermabuyRate.String(),
		"protocol.names.gracePeriodSeconds":       c.Names.GracePeriodSeconds,
		"protocol.names.secondsPerYear":           c.Names.SecondsPerYear,
		"protocol.names.auctionRequiredBelowSize": c.Names.AuctionRequiredBelowSize,

		"protocol.demand.periodLength":      c.Demand.PeriodLength,
		"protocol.demand.movingAvgPeriods":  c.Demand.MovingAvgPeriods,
		"protocol.demand.baseValue":         c.Demand.BaseValue.String(),
		"protocol.demand.min":               c.Demand.Min.String(),
		"protocol.demand.upAdjustment":      c.Demand.UpAdjustment.String(),
		"protocol.demand.downAdjustment":    c.Demand.DownAdjustment.String(),
		"protocol.demand.stepDownThreshold": c.Demand.StepDownThreshold,
		"protocol.demand.criteria":          c.Demand.Criteria,
		"protocol.demand.genesisFees":       fees,

		"protocol.auctions.duration":        c.Auctions.Duration,
		"protocol.auctions.floorMultiplier": c.Auctions.FloorMultiplier.String(),
		"protocol.auctions.startMultiplier": c.Auctions.StartMultiplier.String(),
		"protocol.auctions.decayRate":       c.Auctions.DecayRate.String(),
		"protocol.auctions.scalingExponent": c.Auctions.ScalingExponent,

		"protocol.gateways.minOperatorStake":            c.Gateways.MinOperatorStake,
		"protocol.gateways.minDelegatedStake":           c.Gateways.MinDelegatedStake,
		"protocol.gateways.maxDelegates":                c.Gateways.MaxDelegates,
		"protocol.gateways.leaveLength":                 c.Gateways.LeaveLength,
		"protocol.gateways.withdrawLength":              c.Gateways.WithdrawLength,
		"protocol.gateways.delegatedUnlockLength":       c.Gateways.DelegatedUnlockLength,
		"protocol.gateways.maxConsecutiveFailedEpochs":  c.Gateways.MaxConsecutiveFailedEpochs,
		"protocol.gateways.slashRate":                   c.Gateways.SlashRate.String(),
		"protocol.gateways.maxDelegateRewardShareRatio": c.Gateways.MaxDelegateRewardShareRatio,

		"protocol.vaults.minLockLength": c.Vaults.MinLockLength,
		"protocol.vaults.maxLockLength": c.Vaults.MaxLockLength,

		"protocol.epochs.zeroStartHeight":        c.Epochs.ZeroStartHeight,
		"protocol.epochs.length":                 c.Epochs.Length,
		"protocol.epochs.distributionDelay":      c.Epochs.DistributionDelay,
		"protocol.epochs.rewardRate":             c.Epochs.RewardRate.String(),
		"protocol.epochs.gatewayShare":           c.Epochs.GatewayShare.String(),
		"protocol.epochs.failureThreshold":       c.Epochs.FailureThreshold.String(),
		"protocol.epochs.observerPenalty":        c.Epochs.ObserverPenalty.String(),
		"protocol.epochs.maxObservers":           c.Epochs.MaxObservers,
		"protocol.epochs.sampledBlocksCount":     c.Epochs.SampledBlocksCount,
		"protocol.epochs.sampledBlocksOffset":    c.Epochs.SampledBlocksOffset,
		"protocol.epochs.tenurePeriod":           c.Epochs.TenurePeriod,
		"protocol.epochs.maxTenureWeight":        c.Epochs.MaxTenureWeight,
		"protocol.epochs.selectionMaxIterations": c.Epochs.SelectionMaxIterations,
	}
}
