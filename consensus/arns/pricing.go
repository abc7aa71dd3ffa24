package arns

import (
	"github.com/shopspring/decimal"

	"arnsmachine/arnsmachine"
	"arnsmachine/consensus/actions"
	"arnsmachine/consensus/demand"
)

var one = decimal.NewFromInt(1)

func baseFee(name string, d *demand.State) decimal.Decimal {
	return decimal.NewFromInt(d.Fees.For(int64(len(name))))
}

func charge(amount decimal.Decimal, d *demand.State) int64 {
	return amount.Mul(d.Factor).Floor().IntPart()
}

// RegistrationFee is base × (1 + annualRate × (years − 1)) for leases and
// base × (1 + annualRate × permabuyYears) for permabuys, times the demand factor.
func RegistrationFee(c *arnsmachine.Constants, d *demand.State, name, recordType string, years int64) int64 {
	base := baseFee(name, d)
	n := years - 1
	if recordType == actions.Permabuy {
		n = c.Names.PermabuyYears
	}
	return charge(base.Mul(one.Add(c.Names.AnnualRenewalRate.Mul(decimal.NewFromInt(n)))), d)
}

// ExtensionFee is base × annualRate × years, times the demand factor.
func ExtensionFee(c *arnsmachine.Constants, d *demand.State, name string, years int64) int64 {
	return charge(baseFee(name, d).Mul(c.Names.AnnualRenewalRate).Mul(decimal.NewFromInt(years)), d)
}

// UpgradeFee turns a lease into a permabuy at the permabuy registration price.
func UpgradeFee(c *arnsmachine.Constants, d *demand.State, name string) int64 {
	return RegistrationFee(c, d, name, actions.Permabuy, 0)
}

// RemainingYears is the fractional number of years left on a lease at now.
func RemainingYears(c *arnsmachine.Constants, rec Record, now int64) decimal.Decimal {
	if rec.IsPermabuy() {
		return decimal.NewFromInt(c.Names.PermabuyYears)
	}
	left := rec.EndTimestamp - now
	if left <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(left).DivRound(decimal.NewFromInt(c.Names.SecondsPerYear), arnsmachine.DecimalPrecision)
}

// UndernameFee is base × rate × qty × years, times the demand factor. Years is the time left
// on a lease, or permabuyYears for a permabuy.
func UndernameFee(c *arnsmachine.Constants, d *demand.State, name string, rec Record, qty, now int64) int64 {
	rate := c.Names.UndernameLeaseRate
	if rec.IsPermabuy() {
		rate = c.Names.UndernamePermabuyRate
	}
	amount := baseFee(name, d).Mul(rate).Mul(decimal.NewFromInt(qty)).Mul(RemainingYears(c, rec, now))
	return charge(amount, d)
}
