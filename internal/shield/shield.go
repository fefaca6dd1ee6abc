// Package shield wires the five ledger programs into one protocol
// instance behind a global call sequencer, and layers the service
// policies on top: three-tier routing, delayed-order pairing, and
// savings estimation.
package shield

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/internal/oracle"
	"github.com/mevshield/mevshield/internal/relay"
	"github.com/mevshield/mevshield/internal/router"
	"github.com/mevshield/mevshield/internal/timelock"
	"github.com/mevshield/mevshield/internal/token"
	"github.com/mevshield/mevshield/internal/vault"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/models"
)

// LowRiskThreshold is the score below which trades go straight to the
// public path at the service layer
const LowRiskThreshold uint8 = 30

// Savings heuristic: assumed extractable value as a share of trade
// value per risk tier, in basis points.
const (
	lowRiskSavingsBps  int64 = 10
	midRiskSavingsBps  int64 = 50
	highRiskSavingsBps int64 = 150
)

// Config assembles the protocol's injected configuration
type Config struct {
	// Owner holds the admin role on every program.
	Owner common.Address
	// RouterAddr and VaultAddr are the custody addresses the programs
	// act under on the asset ledgers.
	RouterAddr common.Address
	VaultAddr  common.Address
	// Threshold is the router's private-path threshold (0 = default).
	Threshold uint8
	// FeeBps is the vault's protocol fee in basis points.
	FeeBps int64
	// DefaultDelaySeconds is the order book's default wait (0 = default).
	DefaultDelaySeconds int64
	// SimOutputBps configures the simulated execution backend (0 = default).
	SimOutputBps int64
	// ReferencePriceUSD converts trade value into USD for savings
	// estimation; a price oracle would replace it in production.
	ReferencePriceUSD decimal.Decimal
	// Reporters may report bundle outcomes alongside the owner.
	Reporters []common.Address
}

// Outcome is the result of one protected trade at the service layer
type Outcome struct {
	Method     string
	RiskScore  uint8
	AmountOut  decimal.Decimal
	OrderID    *uint64
	SavingsUSD decimal.Decimal
}

// Shield is one assembled protocol instance
type Shield struct {
	seq    *ledger.Sequencer
	clock  ledger.Clock
	blocks *ledger.Blocks
	logger *zap.Logger

	cfg      Config
	refPrice decimal.Decimal

	Router *router.Router
	Vault  *vault.Vault
	Book   *timelock.Book
	Oracle *oracle.Registry
	Relay  *relay.Registry

	mu              sync.Mutex
	tradesProtected int64
	totalSavings    decimal.Decimal
}

// New assembles a protocol instance from its configuration
func New(cfg Config, assets *token.Directory, backend router.ExecutionBackend, clock ledger.Clock, recorder audit.Recorder, logger *zap.Logger) (*Shield, error) {
	if backend == nil {
		backend = router.SimulatedBackend{OutputBps: cfg.SimOutputBps}
	}
	if clock == nil {
		clock = ledger.SystemClock{}
	}

	rtr, err := router.New(router.Config{
		Self:      cfg.RouterAddr,
		Owner:     cfg.Owner,
		Threshold: cfg.Threshold,
	}, assets, backend, recorder, logger)
	if err != nil {
		return nil, err
	}

	vlt, err := vault.New(vault.Config{
		Self:   cfg.VaultAddr,
		Owner:  cfg.Owner,
		Router: cfg.RouterAddr,
		FeeBps: cfg.FeeBps,
	}, assets, recorder, logger)
	if err != nil {
		return nil, err
	}

	book, err := timelock.New(timelock.Config{
		Owner:               cfg.Owner,
		Router:              cfg.RouterAddr,
		DefaultDelaySeconds: cfg.DefaultDelaySeconds,
	}, clock, recorder, logger)
	if err != nil {
		return nil, err
	}

	reg := oracle.NewRegistry(cfg.Owner, clock, recorder, logger)
	blocks := ledger.NewBlocks(1)
	rly := relay.New(relay.Config{
		Owner:     cfg.Owner,
		Router:    cfg.RouterAddr,
		Reporters: cfg.Reporters,
	}, clock, blocks, recorder, logger)

	refPrice := cfg.ReferencePriceUSD
	if refPrice.IsZero() {
		refPrice = decimal.NewFromInt(2000)
	}

	return &Shield{
		seq:          ledger.NewSequencer(),
		clock:        clock,
		blocks:       blocks,
		logger:       logger.Named("shield"),
		cfg:          cfg,
		refPrice:     refPrice,
		Router:       rtr,
		Vault:        vlt,
		Book:         book,
		Oracle:       reg,
		Relay:        rly,
		totalSavings: decimal.Zero,
	}, nil
}

// ProtectTrade routes one trade using the three-tier policy: low risk
// executes publicly at once, medium risk is parked in the order book,
// and high risk executes through the router's private path.
func (s *Shield) ProtectTrade(user, assetIn, assetOut common.Address, amountIn, minAmountOut decimal.Decimal, riskScore uint8) (Outcome, error) {
	if riskScore > oracle.MaxScore {
		return Outcome{}, errors.InvalidArgument("risk score %d exceeds maximum %d", riskScore, oracle.MaxScore)
	}

	savings := s.estimateSavings(amountIn, riskScore)
	out := Outcome{RiskScore: riskScore, SavingsUSD: savings}

	err := s.seq.Do(func() error {
		if riskScore >= LowRiskThreshold && riskScore < s.Router.Threshold() {
			orderID, err := s.Book.CreateOrder(user, assetIn, assetOut, amountIn, minAmountOut, 0)
			if err != nil {
				return err
			}
			out.Method = models.MethodTimelock
			out.OrderID = &orderID
			out.AmountOut = decimal.Zero
			return nil
		}

		amountOut, err := s.Router.Protect(user, assetIn, assetOut, amountIn, minAmountOut, riskScore)
		if err != nil {
			return err
		}
		out.AmountOut = amountOut
		if riskScore >= s.Router.Threshold() {
			out.Method = models.MethodPrivate
		} else {
			out.Method = models.MethodPublic
		}
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	s.tradesProtected++
	s.totalSavings = s.totalSavings.Add(savings)
	s.mu.Unlock()
	return out, nil
}

// ExecuteDelayedOrder passes an eligible order through its timestamp
// gate and pairs the execution with the router swap the gate exists
// for. The order's stored parameters drive the swap; the order is
// consumed only when the swap succeeds, so a failed swap leaves it
// pending for retry or cancellation.
func (s *Shield) ExecuteDelayedOrder(orderID uint64, riskScore uint8) (decimal.Decimal, error) {
	var amountOut decimal.Decimal
	err := s.seq.Do(func() error {
		return s.Book.ExecuteOrderWith(s.cfg.RouterAddr, orderID, func(order timelock.Order) error {
			out, err := s.Router.Protect(order.Owner, order.AssetIn, order.AssetOut, order.AmountIn, order.MinAmountOut, riskScore)
			if err != nil {
				return err
			}
			amountOut = out
			return nil
		})
	})
	return amountOut, err
}

// CancelOrder cancels a pending delayed order on behalf of its owner
func (s *Shield) CancelOrder(user common.Address, orderID uint64) error {
	return s.seq.Do(func() error {
		return s.Book.CancelOrder(user, orderID)
	})
}

// Deposit routes a custody deposit through the sequencer
func (s *Shield) Deposit(user, asset common.Address, amount decimal.Decimal) error {
	return s.seq.Do(func() error {
		return s.Vault.Deposit(user, asset, amount)
	})
}

// Withdraw routes a custody withdrawal through the sequencer
func (s *Shield) Withdraw(user, asset common.Address, amount decimal.Decimal) error {
	return s.seq.Do(func() error {
		return s.Vault.Withdraw(user, asset, amount)
	})
}

// SubmitBundle records a private bundle on behalf of its originator.
// This is the router-authorized entry the off-chain bundle service
// uses after transmitting to the builder network.
func (s *Shield) SubmitBundle(originator common.Address, hash common.Hash, targetBlock uint64) error {
	return s.seq.Do(func() error {
		return s.Relay.SubmitBundle(s.cfg.RouterAddr, originator, hash, targetBlock)
	})
}

// ReportBundleIncluded marks a bundle included
func (s *Shield) ReportBundleIncluded(reporter common.Address, hash common.Hash) error {
	return s.seq.Do(func() error {
		return s.Relay.MarkIncluded(reporter, hash)
	})
}

// ReportBundleFailed emits a bundle failure diagnostic
func (s *Shield) ReportBundleFailed(reporter common.Address, hash common.Hash, reason string) error {
	return s.seq.Do(func() error {
		return s.Relay.MarkFailed(reporter, hash, reason)
	})
}

// SubmitScore persists a risk score through the registry
func (s *Shield) SubmitScore(operator common.Address, tradeID common.Hash, score uint8) error {
	return s.seq.Do(func() error {
		return s.Oracle.SubmitScore(operator, tradeID, score)
	})
}

// AdvanceBlock ticks the block counter and returns the new height
func (s *Shield) AdvanceBlock() uint64 {
	return s.blocks.Advance()
}

// BlockNumber returns the current block height
func (s *Shield) BlockNumber() uint64 {
	return s.blocks.BlockNumber()
}

// Admin operations, all executed under the owner role.

// SetThreshold updates the router's private-path threshold
func (s *Shield) SetThreshold(threshold uint8) error {
	return s.seq.Do(func() error {
		return s.Router.SetThreshold(s.cfg.Owner, threshold)
	})
}

// SetFeeBps updates the vault's protocol fee
func (s *Shield) SetFeeBps(bps int64) error {
	return s.seq.Do(func() error {
		return s.Vault.SetFeeBps(s.cfg.Owner, bps)
	})
}

// SetDefaultDelay updates the order book's default wait
func (s *Shield) SetDefaultDelay(seconds int64) error {
	return s.seq.Do(func() error {
		return s.Book.SetDefaultDelay(s.cfg.Owner, seconds)
	})
}

// TogglePause flips the vault's pause flag
func (s *Shield) TogglePause() error {
	return s.seq.Do(func() error {
		return s.Vault.TogglePause(s.cfg.Owner)
	})
}

// Stats aggregates protocol-level statistics
func (s *Shield) Stats() models.NetworkStats {
	submitted, included := s.Relay.Totals()
	s.mu.Lock()
	trades, savings := s.tradesProtected, s.totalSavings
	s.mu.Unlock()
	return models.NetworkStats{
		TradesProtected:  trades,
		OpenOrders:       s.Book.OpenOrders(),
		BundlesSubmitted: submitted,
		BundlesIncluded:  included,
		InclusionRate:    decimal.NewFromInt(int64(s.Relay.InclusionRate())),
		TotalSavingsUSD:  savings,
	}
}

// estimateSavings applies the tiered extraction heuristic: higher
// risk trades have more extractable value to protect.
func (s *Shield) estimateSavings(amountIn decimal.Decimal, riskScore uint8) decimal.Decimal {
	bps := lowRiskSavingsBps
	switch {
	case riskScore >= s.Router.Threshold():
		bps = highRiskSavingsBps
	case riskScore >= LowRiskThreshold:
		bps = midRiskSavingsBps
	}
	return amountIn.Mul(s.refPrice).Mul(decimal.NewFromInt(bps)).Div(decimal.NewFromInt(10000)).Round(2)
}
