// Package vault implements the fund-custody program: per-user,
// per-asset balances with a protocol fee on deposit, owner-only and
// router-only withdrawal paths, and a pausable emergency exit.
package vault

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/metrics"
)

// MaxFeeBps is the upper bound of the protocol fee
const MaxFeeBps int64 = 100

// DefaultFeeBps is the protocol fee applied when none is configured
const DefaultFeeBps int64 = 10

var bpsDenominator = decimal.NewFromInt(10000)

// Config is the vault's injected role and fee configuration
type Config struct {
	// Self is the vault's own custody address on the asset ledgers.
	Self common.Address
	// Owner may drain fees, toggle pause, and update configuration.
	Owner common.Address
	// Router may withdraw on behalf of users.
	Router common.Address
	// FeeBps is the protocol fee in basis points, at most MaxFeeBps.
	FeeBps int64
}

// Vault custodies user funds during the routing decision window.
// Every method that performs an external transfer holds the
// reentrancy guard for its full duration; the mutex only covers
// state access and is never held across an external call.
type Vault struct {
	guard  ledger.Guard
	mu     sync.RWMutex
	logger *zap.Logger

	recorder audit.Recorder
	assets   *token.Directory

	self   common.Address
	owner  common.Address
	router common.Address
	feeBps int64
	paused bool

	// balances is (owner, asset) -> amount; entries are created on
	// first deposit and zeroed, never deleted.
	balances map[common.Address]map[common.Address]decimal.Decimal
	// fees is the per-asset fee ledger, separate from user balances.
	fees map[common.Address]decimal.Decimal
}

// New creates a vault from its injected configuration
func New(cfg Config, assets *token.Directory, recorder audit.Recorder, logger *zap.Logger) (*Vault, error) {
	if cfg.FeeBps < 0 || cfg.FeeBps > MaxFeeBps {
		return nil, errors.InvalidArgument("fee %d bps out of range [0,%d]", cfg.FeeBps, MaxFeeBps)
	}
	return &Vault{
		logger:   logger.Named("vault"),
		recorder: recorder,
		assets:   assets,
		self:     cfg.Self,
		owner:    cfg.Owner,
		router:   cfg.Router,
		feeBps:   cfg.FeeBps,
		balances: make(map[common.Address]map[common.Address]decimal.Decimal),
		fees:     make(map[common.Address]decimal.Decimal),
	}, nil
}

func (v *Vault) isOwner(addr common.Address) bool  { return addr == v.owner }
func (v *Vault) isRouter(addr common.Address) bool { return addr == v.router }

// Deposit pulls amount of asset from the caller, credits the caller's
// balance net of the protocol fee, and credits the fee ledger.
func (v *Vault) Deposit(caller, asset common.Address, amount decimal.Decimal) error {
	if err := v.guard.Enter(); err != nil {
		return err
	}
	defer v.guard.Exit()

	if asset == (common.Address{}) {
		return errors.InvalidArgument("deposit asset is the null address")
	}
	if !amount.IsPositive() {
		return errors.InvalidArgument("deposit amount must be positive")
	}
	transferor, ok := v.assets.Lookup(asset)
	if !ok {
		return errors.InvalidArgument("unknown asset %s", asset.Hex())
	}

	v.mu.RLock()
	paused, feeBps := v.paused, v.feeBps
	v.mu.RUnlock()
	if paused {
		return errors.InvalidState("vault is paused, deposits are disabled")
	}

	if !transferor.TransferFrom(v.self, caller, v.self, amount) {
		return errors.TransferFailed("pull of %s %s from %s failed", amount, asset.Hex(), caller.Hex())
	}

	fee := amount.Mul(decimal.NewFromInt(feeBps)).Div(bpsDenominator).Floor()
	credited := amount.Sub(fee)

	v.mu.Lock()
	v.credit(caller, asset, credited)
	v.fees[asset] = v.fee(asset).Add(fee)
	v.mu.Unlock()

	metrics.Deposits.Inc()
	v.recorder.Record(audit.New(audit.EventDeposit, map[string]any{
		"user":     caller.Hex(),
		"asset":    asset.Hex(),
		"amount":   amount.String(),
		"credited": credited.String(),
	}))
	if fee.IsPositive() {
		metrics.FeesCollected.Inc()
		v.recorder.Record(audit.New(audit.EventFeeCollected, map[string]any{
			"user":   caller.Hex(),
			"asset":  asset.Hex(),
			"amount": fee.String(),
		}))
	}
	return nil
}

// Withdraw debits the caller's balance and pushes the funds out.
// The debit happens before the external push; a failed push leaves
// the balance reduced with no refund path. Operators monitor the
// logs for that condition and recover out of band.
func (v *Vault) Withdraw(caller, asset common.Address, amount decimal.Decimal) error {
	if err := v.guard.Enter(); err != nil {
		return err
	}
	defer v.guard.Exit()
	return v.withdraw(caller, caller, asset, amount, "user")
}

// RouterWithdraw debits user's balance on the router's authority and
// pushes the funds to the user.
func (v *Vault) RouterWithdraw(caller, user, asset common.Address, amount decimal.Decimal) error {
	if err := v.guard.Enter(); err != nil {
		return err
	}
	defer v.guard.Exit()

	if !v.isRouter(caller) {
		return errors.Unauthorized("caller %s is not the router", caller.Hex())
	}
	return v.withdraw(user, user, asset, amount, "router")
}

func (v *Vault) withdraw(account, recipient, asset common.Address, amount decimal.Decimal, kind string) error {
	if !amount.IsPositive() {
		return errors.InvalidArgument("withdrawal amount must be positive")
	}
	transferor, ok := v.assets.Lookup(asset)
	if !ok {
		return errors.InvalidArgument("unknown asset %s", asset.Hex())
	}

	// Debit before the external push; never the other way around.
	v.mu.Lock()
	balance := v.balance(account, asset)
	if balance.LessThan(amount) {
		v.mu.Unlock()
		return errors.InvalidState("insufficient balance: have %s, want %s", balance, amount)
	}
	v.setBalance(account, asset, balance.Sub(amount))
	v.mu.Unlock()

	if !transferor.Transfer(v.self, recipient, amount) {
		v.logger.Error("withdrawal push failed after debit",
			zap.String("user", account.Hex()),
			zap.String("asset", asset.Hex()),
			zap.String("amount", amount.String()))
		return errors.TransferFailed("push of %s %s to %s failed", amount, asset.Hex(), recipient.Hex())
	}

	metrics.Withdrawals.WithLabelValues(kind).Inc()
	v.recorder.Record(audit.New(audit.EventWithdrawal, map[string]any{
		"user":   account.Hex(),
		"asset":  asset.Hex(),
		"amount": amount.String(),
		"kind":   kind,
	}))
	return nil
}

// EmergencyWithdraw zeroes the caller's entire balance for the asset
// and pushes the full amount in one step. Only available while paused.
func (v *Vault) EmergencyWithdraw(caller, asset common.Address) error {
	if err := v.guard.Enter(); err != nil {
		return err
	}
	defer v.guard.Exit()

	transferor, ok := v.assets.Lookup(asset)
	if !ok {
		return errors.InvalidArgument("unknown asset %s", asset.Hex())
	}

	v.mu.Lock()
	if !v.paused {
		v.mu.Unlock()
		return errors.InvalidState("emergency withdrawals are only available while paused")
	}
	balance := v.balance(caller, asset)
	if !balance.IsPositive() {
		v.mu.Unlock()
		return errors.InvalidState("no balance to withdraw for asset %s", asset.Hex())
	}
	v.setBalance(caller, asset, decimal.Zero)
	v.mu.Unlock()

	if !transferor.Transfer(v.self, caller, balance) {
		v.logger.Error("emergency withdrawal push failed after debit",
			zap.String("user", caller.Hex()),
			zap.String("asset", asset.Hex()),
			zap.String("amount", balance.String()))
		return errors.TransferFailed("push of %s %s to %s failed", balance, asset.Hex(), caller.Hex())
	}

	metrics.Withdrawals.WithLabelValues("emergency").Inc()
	v.recorder.Record(audit.New(audit.EventWithdrawal, map[string]any{
		"user":   caller.Hex(),
		"asset":  asset.Hex(),
		"amount": balance.String(),
		"kind":   "emergency",
	}))
	return nil
}

// WithdrawFees drains the accumulated fees for an asset to the owner
func (v *Vault) WithdrawFees(caller, asset common.Address) error {
	if err := v.guard.Enter(); err != nil {
		return err
	}
	defer v.guard.Exit()

	if !v.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	transferor, ok := v.assets.Lookup(asset)
	if !ok {
		return errors.InvalidArgument("unknown asset %s", asset.Hex())
	}

	v.mu.Lock()
	accrued := v.fee(asset)
	if !accrued.IsPositive() {
		v.mu.Unlock()
		return errors.InvalidState("no fees accrued for asset %s", asset.Hex())
	}
	v.fees[asset] = decimal.Zero
	v.mu.Unlock()

	if !transferor.Transfer(v.self, v.owner, accrued) {
		v.logger.Error("fee withdrawal push failed after drain",
			zap.String("asset", asset.Hex()),
			zap.String("amount", accrued.String()))
		return errors.TransferFailed("push of %s %s to owner failed", accrued, asset.Hex())
	}

	v.recorder.Record(audit.New(audit.EventFeesWithdrawn, map[string]any{
		"asset":  asset.Hex(),
		"amount": accrued.String(),
	}))
	return nil
}

// TogglePause flips the pause flag. Pause blocks deposits only; users
// are never locked out of their funds.
func (v *Vault) TogglePause(caller common.Address) error {
	if !v.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	v.mu.Lock()
	v.paused = !v.paused
	paused := v.paused
	v.mu.Unlock()
	v.recorder.Record(audit.New(audit.EventPauseToggled, map[string]any{
		"paused": paused,
	}))
	return nil
}

// SetFeeBps updates the protocol fee
func (v *Vault) SetFeeBps(caller common.Address, bps int64) error {
	if !v.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	if bps < 0 || bps > MaxFeeBps {
		return errors.InvalidArgument("fee %d bps out of range [0,%d]", bps, MaxFeeBps)
	}
	v.mu.Lock()
	old := v.feeBps
	v.feeBps = bps
	v.mu.Unlock()
	v.recorder.Record(audit.New(audit.EventFeeUpdated, map[string]any{
		"old_bps": old,
		"new_bps": bps,
	}))
	return nil
}

// SetRouter updates the router role address
func (v *Vault) SetRouter(caller, router common.Address) error {
	if !v.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	v.mu.Lock()
	v.router = router
	v.mu.Unlock()
	v.recorder.Record(audit.New(audit.EventVaultRouterSet, map[string]any{
		"router": router.Hex(),
	}))
	return nil
}

// BalanceOf returns the user's balance for an asset
func (v *Vault) BalanceOf(user, asset common.Address) decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balance(user, asset)
}

// Fees returns the accrued fee ledger entry for an asset
func (v *Vault) Fees(asset common.Address) decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fee(asset)
}

// Paused reports whether deposits are blocked
func (v *Vault) Paused() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.paused
}

// FeeBps returns the current protocol fee
func (v *Vault) FeeBps() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.feeBps
}

func (v *Vault) balance(user, asset common.Address) decimal.Decimal {
	if m, ok := v.balances[user]; ok {
		if b, ok := m[asset]; ok {
			return b
		}
	}
	return decimal.Zero
}

func (v *Vault) setBalance(user, asset common.Address, amount decimal.Decimal) {
	m, ok := v.balances[user]
	if !ok {
		m = make(map[common.Address]decimal.Decimal)
		v.balances[user] = m
	}
	m[asset] = amount
}

func (v *Vault) credit(user, asset common.Address, amount decimal.Decimal) {
	v.setBalance(user, asset, v.balance(user, asset).Add(amount))
}

func (v *Vault) fee(asset common.Address) decimal.Decimal {
	if f, ok := v.fees[asset]; ok {
		return f
	}
	return decimal.Zero
}
