// Package router implements the routing decision engine: it takes
// custody of a trade's input, chooses the public or private execution
// path from the supplied risk score, and returns the output to the
// caller.
package router

import (
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/internal/oracle"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/metrics"
)

// DefaultThreshold is the routing threshold applied when none is configured
const DefaultThreshold uint8 = 70

// Path is the execution path chosen for a protected trade
type Path uint8

const (
	PathPublic Path = iota
	PathPrivate
)

func (p Path) String() string {
	if p == PathPrivate {
		return "private"
	}
	return "public"
}

// ExecutionBackend performs (or simulates) the actual exchange call
// for a chosen path. The routing and custody logic never depends on
// the backend's internals.
type ExecutionBackend interface {
	Execute(path Path, assetIn, assetOut common.Address, amountIn decimal.Decimal) (decimal.Decimal, error)
}

// SimulatedBackend stands in for a real exchange integration and
// returns a fixed fraction of the input on both paths.
type SimulatedBackend struct {
	// OutputBps is the simulated output in basis points of the input.
	OutputBps int64
}

// DefaultOutputBps yields 99% of the input
const DefaultOutputBps int64 = 9900

// Execute implements ExecutionBackend
func (s SimulatedBackend) Execute(_ Path, _, _ common.Address, amountIn decimal.Decimal) (decimal.Decimal, error) {
	bps := s.OutputBps
	if bps == 0 {
		bps = DefaultOutputBps
	}
	return amountIn.Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)).Floor(), nil
}

// Config is the router's injected role and routing configuration
type Config struct {
	// Self is the router's own custody address on the asset ledgers.
	Self common.Address
	// Owner may update the threshold and registry and sweep custody.
	Owner common.Address
	// Threshold is the risk score at or above which trades take the
	// private path. Zero means DefaultThreshold.
	Threshold uint8
}

// Router is the single entry point for trade protection
type Router struct {
	guard  ledger.Guard
	mu     sync.RWMutex
	logger *zap.Logger

	recorder audit.Recorder
	assets   *token.Directory
	backend  ExecutionBackend

	self      common.Address
	owner     common.Address
	threshold uint8

	// registry supplies score provenance for future checks; the
	// reference flow takes the score as a parameter instead of
	// calling it synchronously.
	registry *oracle.Registry

	// nonces is a per-caller monotonic counter consumed by privately
	// routed flows for bundle correlation.
	nonces map[common.Address]uint64
}

// New creates a router from its injected configuration
func New(cfg Config, assets *token.Directory, backend ExecutionBackend, recorder audit.Recorder, logger *zap.Logger) (*Router, error) {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold > oracle.MaxScore {
		return nil, errors.InvalidArgument("threshold %d exceeds maximum %d", threshold, oracle.MaxScore)
	}
	return &Router{
		logger:    logger.Named("router"),
		recorder:  recorder,
		assets:    assets,
		backend:   backend,
		self:      cfg.Self,
		owner:     cfg.Owner,
		threshold: threshold,
		nonces:    make(map[common.Address]uint64),
	}, nil
}

func (r *Router) isOwner(addr common.Address) bool { return addr == r.owner }

// Protect routes one trade through the protection protocol. It pulls
// amountIn of assetIn from the caller, executes on the path chosen
// from the risk score, checks slippage, and pushes the output back.
//
// A failure after the input pull leaves the pulled funds in router
// custody for manual recovery via Sweep; there is no automatic
// refund path.
func (r *Router) Protect(caller, assetIn, assetOut common.Address, amountIn, minAmountOut decimal.Decimal, riskScore uint8) (decimal.Decimal, error) {
	if err := r.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer r.guard.Exit()

	if assetIn == (common.Address{}) || assetOut == (common.Address{}) {
		return decimal.Zero, errors.InvalidArgument("trade asset is the null address")
	}
	if assetIn == assetOut {
		return decimal.Zero, errors.InvalidArgument("input and output assets must differ")
	}
	if !amountIn.IsPositive() {
		return decimal.Zero, errors.InvalidArgument("trade amount must be positive")
	}
	if minAmountOut.IsNegative() {
		return decimal.Zero, errors.InvalidArgument("minimum output must not be negative")
	}
	if riskScore > oracle.MaxScore {
		return decimal.Zero, errors.InvalidArgument("risk score %d exceeds maximum %d", riskScore, oracle.MaxScore)
	}
	tokenIn, ok := r.assets.Lookup(assetIn)
	if !ok {
		return decimal.Zero, errors.InvalidArgument("unknown asset %s", assetIn.Hex())
	}
	tokenOut, ok := r.assets.Lookup(assetOut)
	if !ok {
		return decimal.Zero, errors.InvalidArgument("unknown asset %s", assetOut.Hex())
	}

	// (1) Pull the input. A failure here aborts with no state change.
	if !tokenIn.TransferFrom(r.self, caller, r.self, amountIn) {
		return decimal.Zero, errors.TransferFailed("pull of %s %s from %s failed", amountIn, assetIn.Hex(), caller.Hex())
	}

	// (2) Choose the path.
	r.mu.Lock()
	threshold := r.threshold
	path := PathPublic
	if riskScore >= threshold {
		path = PathPrivate
		r.nonces[caller]++
	}
	nonce := r.nonces[caller]
	r.mu.Unlock()

	if path == PathPrivate {
		correlation := correlationHash(caller, assetIn, assetOut, nonce)
		r.recorder.Record(audit.New(audit.EventPrivatePathChosen, map[string]any{
			"caller":      caller.Hex(),
			"correlation": correlation.Hex(),
			"risk_score":  riskScore,
		}))
	}

	amountOut, err := r.backend.Execute(path, assetIn, assetOut, amountIn)
	if err != nil {
		r.strand(caller, assetIn, amountIn, "execution failed")
		return decimal.Zero, errors.TransferFailed("execution on %s path failed", path).Wrap(err)
	}

	// (3) Slippage. The pulled funds stay in custody on failure.
	if amountOut.LessThan(minAmountOut) {
		r.strand(caller, assetIn, amountIn, "slippage exceeded")
		return decimal.Zero, errors.SlippageExceeded("output %s below minimum %s", amountOut, minAmountOut)
	}

	// (4) Push the output. A failed push after a successful pull is
	// the documented stranded-funds condition.
	if !tokenOut.Transfer(r.self, caller, amountOut) {
		r.strand(caller, assetIn, amountIn, "output push failed")
		return decimal.Zero, errors.TransferFailed("push of %s %s to %s failed", amountOut, assetOut.Hex(), caller.Hex())
	}

	// (5) Audit.
	metrics.TradesProtected.WithLabelValues(path.String()).Inc()
	metrics.RiskScores.Observe(float64(riskScore))
	r.recorder.Record(audit.New(audit.EventTradeExecuted, map[string]any{
		"caller":     caller.Hex(),
		"asset_in":   assetIn.Hex(),
		"asset_out":  assetOut.Hex(),
		"amount_in":  amountIn.String(),
		"amount_out": amountOut.String(),
		"path":       path.String(),
		"risk_score": riskScore,
	}))
	return amountOut, nil
}

func (r *Router) strand(caller, asset common.Address, amount decimal.Decimal, reason string) {
	metrics.FundsStranded.Inc()
	r.logger.Error("funds stranded in router custody",
		zap.String("caller", caller.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
		zap.String("reason", reason))
	r.recorder.Record(audit.New(audit.EventFundsStranded, map[string]any{
		"caller": caller.Hex(),
		"asset":  asset.Hex(),
		"amount": amount.String(),
		"reason": reason,
	}))
}

// SetThreshold updates the routing threshold
func (r *Router) SetThreshold(caller common.Address, threshold uint8) error {
	if !r.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	if threshold > oracle.MaxScore {
		return errors.InvalidArgument("threshold %d exceeds maximum %d", threshold, oracle.MaxScore)
	}
	r.mu.Lock()
	old := r.threshold
	r.threshold = threshold
	r.mu.Unlock()
	r.recorder.Record(audit.New(audit.EventThresholdUpdated, map[string]any{
		"old": old,
		"new": threshold,
	}))
	return nil
}

// SetRegistry updates the risk registry used for score provenance
func (r *Router) SetRegistry(caller common.Address, registry *oracle.Registry) error {
	if !r.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	r.mu.Lock()
	r.registry = registry
	r.mu.Unlock()
	r.recorder.Record(audit.New(audit.EventRegistryUpdated, nil))
	return nil
}

// Sweep moves the router's entire custody balance of an asset to the
// owner. It is the recovery path for stranded funds.
func (r *Router) Sweep(caller, asset common.Address) (decimal.Decimal, error) {
	if err := r.guard.Enter(); err != nil {
		return decimal.Zero, err
	}
	defer r.guard.Exit()

	if !r.isOwner(caller) {
		return decimal.Zero, errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	transferor, ok := r.assets.Lookup(asset)
	if !ok {
		return decimal.Zero, errors.InvalidArgument("unknown asset %s", asset.Hex())
	}
	balance := transferor.BalanceOf(r.self)
	if !balance.IsPositive() {
		return decimal.Zero, errors.InvalidState("nothing to sweep for asset %s", asset.Hex())
	}
	if !transferor.Transfer(r.self, r.owner, balance) {
		return decimal.Zero, errors.TransferFailed("sweep of %s %s failed", balance, asset.Hex())
	}
	r.recorder.Record(audit.New(audit.EventFundsSwept, map[string]any{
		"asset":  asset.Hex(),
		"amount": balance.String(),
	}))
	return balance, nil
}

// Threshold returns the current routing threshold
func (r *Router) Threshold() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

// Nonce returns the caller's private-flow counter
func (r *Router) Nonce(caller common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nonces[caller]
}

func correlationHash(caller, assetIn, assetOut common.Address, nonce uint64) common.Hash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	return crypto.Keccak256Hash(caller.Bytes(), assetIn.Bytes(), assetOut.Bytes(), buf[:])
}
