package actions

import (
	"regexp"
	"strings"

	"arnsmachine/arnsmachine"
)

var nameRegex = regexp.MustCompile(`^([a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9]|[a-zA-Z0-9])$`)
var fqdnRegex = regexp.MustCompile(`^([A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{1,63}$`)

// AtomicContractID asks the ledger to use the action's own tx id as the contract id.
const AtomicContractID = "atomic"

// ValidName reports whether name is a registrable ArNS name.
func ValidName(name string, c *arnsmachine.Constants) bool {
	return int64(len(name)) <= c.Names.MaxNameLength && nameRegex.MatchString(name)
}

// NormalizeName lowercases a name; records are keyed by the lowercase form.
func NormalizeName(name string) string {
	return strings.ToLower(name)
}

func positive(qty int64, what string) error {
	if qty <= 0 {
		return arnsmachine.ErrInvalidQuantity.With("%s must be a positive integer, got %d", what, qty)
	}
	return nil
}

func account(a arnsmachine.Account, what string) error {
	if !arnsmachine.ValidAccount(a) {
		return arnsmachine.ErrInvalidAddress.With("%s %q is not a valid address", what, a)
	}
	return nil
}

func lockLength(l int64, c *arnsmachine.Constants) error {
	if l < c.Vaults.MinLockLength || l > c.Vaults.MaxLockLength {
		return arnsmachine.ErrInvalidLockLength.With("lock length %d outside [%d, %d]", l, c.Vaults.MinLockLength, c.Vaults.MaxLockLength)
	}
	return nil
}

func contractID(id string) error {
	if id == AtomicContractID || arnsmachine.ValidTxID(id) {
		return nil
	}
	return arnsmachine.ErrInvalidContractID.With("%q", id)
}

func recordType(t string) error {
	if t == "" || t == Lease || t == Permabuy {
		return nil
	}
	return arnsmachine.ErrInvalidType.With("%q is neither %s nor %s", t, Lease, Permabuy)
}

func name(n string, c *arnsmachine.Constants) error {
	if !ValidName(n, c) {
		return arnsmachine.ErrInvalidName.With("%q", n)
	}
	return nil
}

type Transfer struct {
	Target arnsmachine.Account `json:"target"`
	Qty    int64               `json:"qty"`
}

func (*Transfer) Kind() string { return KindTransfer }
func (*Transfer) isAction()    {}
func (a *Transfer) Validate(c *arnsmachine.Constants) error {
	if err := account(a.Target, "target"); err != nil {
		return err
	}
	return positive(a.Qty, "qty")
}

type CreateVault struct {
	Qty        int64 `json:"qty"`
	LockLength int64 `json:"lockLength"`
}

func (*CreateVault) Kind() string { return KindCreateVault }
func (*CreateVault) isAction()    {}
func (a *CreateVault) Validate(c *arnsmachine.Constants) error {
	if err := positive(a.Qty, "qty"); err != nil {
		return err
	}
	return lockLength(a.LockLength, c)
}

type VaultedTransfer struct {
	Recipient  arnsmachine.Account `json:"recipient"`
	Qty        int64               `json:"qty"`
	LockLength int64               `json:"lockLength"`
}

func (*VaultedTransfer) Kind() string { return KindVaultedTransfer }
func (*VaultedTransfer) isAction()    {}
func (a *VaultedTransfer) Validate(c *arnsmachine.Constants) error {
	if err := account(a.Recipient, "recipient"); err != nil {
		return err
	}
	if err := positive(a.Qty, "qty"); err != nil {
		return err
	}
	return lockLength(a.LockLength, c)
}

type ExtendVault struct {
	VaultID      string `json:"vaultId"`
	ExtendLength int64  `json:"extendLength"`
}

func (*ExtendVault) Kind() string { return KindExtendVault }
func (*ExtendVault) isAction()    {}
func (a *ExtendVault) Validate(c *arnsmachine.Constants) error {
	if a.VaultID == "" {
		return arnsmachine.ErrVaultNotFound.With("vault id is required")
	}
	if a.ExtendLength <= 0 || a.ExtendLength > c.Vaults.MaxLockLength {
		return arnsmachine.ErrInvalidLockLength.With("extend length %d", a.ExtendLength)
	}
	return nil
}

type IncreaseVault struct {
	VaultID string `json:"vaultId"`
	Qty     int64  `json:"qty"`
}

func (*IncreaseVault) Kind() string { return KindIncreaseVault }
func (*IncreaseVault) isAction()    {}
func (a *IncreaseVault) Validate(c *arnsmachine.Constants) error {
	if a.VaultID == "" {
		return arnsmachine.ErrVaultNotFound.With("vault id is required")
	}
	return positive(a.Qty, "qty")
}

type BuyRecord struct {
	Name         string `json:"name"`
	ContractTxID string `json:"contractTxId"`
	Years        int64  `json:"years,omitempty"`
	Type         string `json:"type,omitempty"`
}

func (*BuyRecord) Kind() string { return KindBuyRecord }
func (*BuyRecord) isAction()    {}
func (a *BuyRecord) Validate(c *arnsmachine.Constants) error {
	if err := name(a.Name, c); err != nil {
		return err
	}
	if err := contractID(a.ContractTxID); err != nil {
		return err
	}
	if err := recordType(a.Type); err != nil {
		return err
	}
	if a.RecordType() == Lease && (a.LeaseYears() < 1 || a.LeaseYears() > c.Names.MaxLeaseYears) {
		return arnsmachine.ErrInvalidYears.With("years %d outside [1, %d]", a.Years, c.Names.MaxLeaseYears)
	}
	return nil
}

// RecordType defaults to a lease.
func (a *BuyRecord) RecordType() string {
	if a.Type == "" {
		return Lease
	}
	return a.Type
}

// LeaseYears defaults to one year.
func (a *BuyRecord) LeaseYears() int64 {
	if a.Years == 0 {
		return 1
	}
	return a.Years
}

type ExtendRecord struct {
	Name  string `json:"name"`
	Years int64  `json:"years"`
}

func (*ExtendRecord) Kind() string { return KindExtendRecord }
func (*ExtendRecord) isAction()    {}
func (a *ExtendRecord) Validate(c *arnsmachine.Constants) error {
	if err := name(a.Name, c); err != nil {
		return err
	}
	if a.Years < 1 || a.Years > c.Names.MaxLeaseYears {
		return arnsmachine.ErrInvalidYears.With("years %d outside [1, %d]", a.Years, c.Names.MaxLeaseYears)
	}
	return nil
}

type IncreaseUndernameCount struct {
	Name string `json:"name"`
	Qty  int64  `json:"qty"`
}

func (*IncreaseUndernameCount) Kind() string { return KindIncreaseUndernameCount }
func (*IncreaseUndernameCount) isAction()    {}
func (a *IncreaseUndernameCount) Validate(c *arnsmachine.Constants) error {
	if err := name(a.Name, c); err != nil {
		return err
	}
	if a.Qty < 1 || a.Qty > c.Names.MaxUndernames {
		return arnsmachine.ErrInvalidQuantity.With("undername qty %d outside [1, %d]", a.Qty, c.Names.MaxUndernames)
	}
	return nil
}

type UpgradeName struct {
	Name string `json:"name"`
}

func (*UpgradeName) Kind() string { return KindUpgradeName }
func (*UpgradeName) isAction()    {}
func (a *UpgradeName) Validate(c *arnsmachine.Constants) error {
	return name(a.Name, c)
}

type SubmitAuctionBid struct {
	Name         string `json:"name"`
	ContractTxID string `json:"contractTxId"`
	Qty          int64  `json:"qty,omitempty"` // optional; the current price is paid when omitted
	Type         string `json:"type,omitempty"`
	Years        int64  `json:"years,omitempty"`
}

func (*SubmitAuctionBid) Kind() string { return KindSubmitAuctionBid }
func (*SubmitAuctionBid) isAction()    {}
func (a *SubmitAuctionBid) Validate(c *arnsmachine.Constants) error {
	if err := name(a.Name, c); err != nil {
		return err
	}
	if err := contractID(a.ContractTxID); err != nil {
		return err
	}
	if err := recordType(a.Type); err != nil {
		return err
	}
	if a.Qty < 0 {
		return arnsmachine.ErrInvalidQuantity.With("bid %d", a.Qty)
	}
	if a.RecordType() == Lease && (a.LeaseYears() < 1 || a.LeaseYears() > c.Names.MaxLeaseYears) {
		return arnsmachine.ErrInvalidYears.With("years %d outside [1, %d]", a.Years, c.Names.MaxLeaseYears)
	}
	return nil
}

func (a *SubmitAuctionBid) RecordType() string {
	if a.Type == "" {
		return Lease
	}
	return a.Type
}

func (a *SubmitAuctionBid) LeaseYears() int64 {
	if a.Years == 0 {
		return 1
	}
	return a.Years
}

// GatewayConfig is the operator supplied part of a gateway's settings.
type GatewayConfig struct {
	Label                    string              `json:"label"`
	FQDN                     string              `json:"fqdn"`
	Port                     int64               `json:"port"`
	Protocol                 string              `json:"protocol"`
	Properties               string              `json:"properties"`
	Note                     string              `json:"note"`
	ObserverWallet           arnsmachine.Account `json:"observerWallet,omitempty"`
	AutoStake                bool                `json:"autoStake,omitempty"`
	AllowDelegatedStaking    bool                `json:"allowDelegatedStaking,omitempty"`
	DelegateRewardShareRatio int64               `json:"delegateRewardShareRatio,omitempty"`
	MinDelegatedStake        int64               `json:"minDelegatedStake,omitempty"`
}

func validLabel(l string, c *arnsmachine.Constants) error {
	if len(l) < 1 || int64(len(l)) > c.Gateways.MaxLabelLength {
		return arnsmachine.ErrInvalidSettings.With("label length %d", len(l))
	}
	return nil
}

func validFQDN(f string) error {
	if !fqdnRegex.MatchString(f) {
		return arnsmachine.ErrInvalidSettings.With("fqdn %q", f)
	}
	return nil
}

func validPort(p int64) error {
	if p < 0 || p > 65535 {
		return arnsmachine.ErrInvalidSettings.With("port %d", p)
	}
	return nil
}

func validProtocol(p string) error {
	if p != "https" {
		return arnsmachine.ErrInvalidSettings.With("protocol %q, only https is supported", p)
	}
	return nil
}

func validProperties(p string) error {
	if !arnsmachine.ValidTxID(p) {
		return arnsmachine.ErrInvalidSettings.With("properties %q is not a tx id", p)
	}
	return nil
}

func validNote(n string, c *arnsmachine.Constants) error {
	if int64(len(n)) > c.Gateways.MaxNoteLength {
		return arnsmachine.ErrInvalidSettings.With("note length %d", len(n))
	}
	return nil
}

func validShareRatio(r int64, c *arnsmachine.Constants) error {
	if r < 0 || r > c.Gateways.MaxDelegateRewardShareRatio {
		return arnsmachine.ErrInvalidSettings.With("delegate reward share ratio %d outside [0, %d]", r, c.Gateways.MaxDelegateRewardShareRatio)
	}
	return nil
}

func validMinDelegated(m int64, c *arnsmachine.Constants) error {
	if m < c.Gateways.MinDelegatedStake {
		return arnsmachine.ErrInvalidSettings.With("min delegated stake %d below protocol minimum %d", m, c.Gateways.MinDelegatedStake)
	}
	return nil
}

func (g *GatewayConfig) validate(c *arnsmachine.Constants) error {
	checks := []error{
		validLabel(g.Label, c),
		validFQDN(g.FQDN),
		validPort(g.Port),
		validProtocol(g.Protocol),
		validProperties(g.Properties),
		validNote(g.Note, c),
		validShareRatio(g.DelegateRewardShareRatio, c),
	}
	if g.MinDelegatedStake != 0 {
		checks = append(checks, validMinDelegated(g.MinDelegatedStake, c))
	}
	if g.ObserverWallet != "" {
		checks = append(checks, account(g.ObserverWallet, "observer wallet"))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

type JoinNetwork struct {
	Qty int64 `json:"qty"`
	GatewayConfig
}

func (*JoinNetwork) Kind() string { return KindJoinNetwork }
func (*JoinNetwork) isAction()    {}
func (a *JoinNetwork) Validate(c *arnsmachine.Constants) error {
	if err := positive(a.Qty, "qty"); err != nil {
		return err
	}
	return a.GatewayConfig.validate(c)
}

// UpdateGatewaySettings changes only the fields that are present.
type UpdateGatewaySettings struct {
	Label                    *string              `json:"label,omitempty"`
	FQDN                     *string              `json:"fqdn,omitempty"`
	Port                     *int64               `json:"port,omitempty"`
	Protocol                 *string              `json:"protocol,omitempty"`
	Properties               *string              `json:"properties,omitempty"`
	Note                     *string              `json:"note,omitempty"`
	ObserverWallet           *arnsmachine.Account `json:"observerWallet,omitempty"`
	AutoStake                *bool                `json:"autoStake,omitempty"`
	AllowDelegatedStaking    *bool                `json:"allowDelegatedStaking,omitempty"`
	DelegateRewardShareRatio *int64               `json:"delegateRewardShareRatio,omitempty"`
	MinDelegatedStake        *int64               `json:"minDelegatedStake,omitempty"`
}

func (*UpdateGatewaySettings) Kind() string { return KindUpdateGatewaySettings }
func (*UpdateGatewaySettings) isAction()    {}
func (a *UpdateGatewaySettings) Validate(c *arnsmachine.Constants) error {
	var checks []error
	if a.Label != nil {
		checks = append(checks, validLabel(*a.Label, c))
	}
	if a.FQDN != nil {
		checks = append(checks, validFQDN(*a.FQDN))
	}
	if a.Port != nil {
		checks = append(checks, validPort(*a.Port))
	}
	if a.Protocol != nil {
		checks = append(checks, validProtocol(*a.Protocol))
	}
	if a.Properties != nil {
		checks = append(checks, validProperties(*a.Properties))
	}
	if a.Note != nil {
		checks = append(checks, validNote(*a.Note, c))
	}
	if a.ObserverWallet != nil {
		checks = append(checks, account(*a.ObserverWallet, "observer wallet"))
	}
	if a.DelegateRewardShareRatio != nil {
		checks = append(checks, validShareRatio(*a.DelegateRewardShareRatio, c))
	}
	if a.MinDelegatedStake != nil {
		checks = append(checks, validMinDelegated(*a.MinDelegatedStake, c))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

type LeaveNetwork struct{}

func (*LeaveNetwork) Kind() string                          { return KindLeaveNetwork }
func (*LeaveNetwork) isAction()                             {}
func (*LeaveNetwork) Validate(c *arnsmachine.Constants) error { return nil }

type IncreaseOperatorStake struct {
	Qty int64 `json:"qty"`
}

func (*IncreaseOperatorStake) Kind() string { return KindIncreaseOperatorStake }
func (*IncreaseOperatorStake) isAction()    {}
func (a *IncreaseOperatorStake) Validate(c *arnsmachine.Constants) error {
	return positive(a.Qty, "qty")
}

type DecreaseOperatorStake struct {
	Qty int64 `json:"qty"`
}

func (*DecreaseOperatorStake) Kind() string { return KindDecreaseOperatorStake }
func (*DecreaseOperatorStake) isAction()    {}
func (a *DecreaseOperatorStake) Validate(c *arnsmachine.Constants) error {
	return positive(a.Qty, "qty")
}

type DelegateStake struct {
	Target    arnsmachine.Account `json:"target"`
	Qty       int64               `json:"qty"`
	AutoStake *bool               `json:"autoStake,omitempty"` // rewards compound into the stake unless false
}

func (*DelegateStake) Kind() string { return KindDelegateStake }
func (*DelegateStake) isAction()    {}
func (a *DelegateStake) Validate(c *arnsmachine.Constants) error {
	if err := account(a.Target, "target"); err != nil {
		return err
	}
	return positive(a.Qty, "qty")
}

type DecreaseDelegateStake struct {
	Target arnsmachine.Account `json:"target"`
	Qty    int64               `json:"qty"`
}

func (*DecreaseDelegateStake) Kind() string { return KindDecreaseDelegateStake }
func (*DecreaseDelegateStake) isAction()    {}
func (a *DecreaseDelegateStake) Validate(c *arnsmachine.Constants) error {
	if err := account(a.Target, "target"); err != nil {
		return err
	}
	return positive(a.Qty, "qty")
}

// CancelWithdrawal returns a pending withdrawal vault to the stake it came from.
type CancelWithdrawal struct {
	Gateway arnsmachine.Account `json:"gatewayAddress"`
	VaultID string              `json:"vaultId"`
}

func (*CancelWithdrawal) Kind() string { return KindCancelWithdrawal }
func (*CancelWithdrawal) isAction()    {}
func (a *CancelWithdrawal) Validate(c *arnsmachine.Constants) error {
	if err := account(a.Gateway, "gateway"); err != nil {
		return err
	}
	if a.VaultID == "" {
		return arnsmachine.ErrVaultNotFound.With("vault id is required")
	}
	return nil
}

type SaveObservations struct {
	ObserverReportTxID string                `json:"observerReportTxId"`
	FailedGateways     []arnsmachine.Account `json:"failedGateways"`
}

func (*SaveObservations) Kind() string { return KindSaveObservations }
func (*SaveObservations) isAction()    {}
func (a *SaveObservations) Validate(c *arnsmachine.Constants) error {
	if !arnsmachine.ValidTxID(a.ObserverReportTxID) {
		return arnsmachine.ErrInvalidObservation.With("report tx id %q", a.ObserverReportTxID)
	}
	seen := make(map[string]struct{}, len(a.FailedGateways))
	for _, g := range a.FailedGateways {
		if err := account(g, "failed gateway"); err != nil {
			return err
		}
		if _, dup := seen[g]; dup {
			return arnsmachine.ErrInvalidObservation.With("gateway %s listed twice", g)
		}
		seen[g] = struct{}{}
	}
	return nil
}

// Tick only advances the ledger to the envelope's height.
type Tick struct{}

func (*Tick) Kind() string                          { return KindTick }
func (*Tick) isAction()                             {}
func (*Tick) Validate(c *arnsmachine.Constants) error { return nil }
