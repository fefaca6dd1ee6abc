// Package relay implements the private-bundle tracking registry:
// bundles submitted for future-block inclusion, their inclusion
// outcomes, and the aggregate inclusion-rate statistic.
package relay

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/metrics"
)

// BundleStatus is a bundle's stored state. There is no terminal
// failed state: a failure report is diagnostic only and the record
// stays pending unless it is later marked included.
type BundleStatus uint8

const (
	StatusPending BundleStatus = iota
	StatusIncluded
)

func (s BundleStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusIncluded:
		return "included"
	}
	return "unknown"
}

// Bundle is one tracked private bundle
type Bundle struct {
	Hash common.Hash `json:"hash"`
	// Submitter is the ultimate originating caller, not the router
	// that relayed the submission, so attribution stays correct.
	Submitter   common.Address `json:"submitter"`
	TargetBlock uint64         `json:"target_block"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Status      BundleStatus   `json:"status"`
}

// Config is the registry's injected role configuration
type Config struct {
	// Owner may always report outcomes.
	Owner common.Address
	// Router is the only role allowed to submit bundles.
	Router common.Address
	// Reporters may report inclusion/failure outcomes alongside the owner.
	Reporters []common.Address
}

// Registry records bundles and their inclusion outcomes
type Registry struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	recorder audit.Recorder
	clock    ledger.Clock
	blocks   ledger.BlockSource

	owner     common.Address
	router    common.Address
	reporters map[common.Address]bool

	bundles map[common.Hash]*Bundle
	byBlock map[uint64][]common.Hash

	submitted     uint64
	included      uint64
	failedReports uint64
}

// New creates a bundle registry from its injected configuration
func New(cfg Config, clock ledger.Clock, blocks ledger.BlockSource, recorder audit.Recorder, logger *zap.Logger) *Registry {
	reporters := make(map[common.Address]bool, len(cfg.Reporters))
	for _, r := range cfg.Reporters {
		reporters[r] = true
	}
	return &Registry{
		logger:    logger.Named("relay"),
		recorder:  recorder,
		clock:     clock,
		blocks:    blocks,
		owner:     cfg.Owner,
		router:    cfg.Router,
		reporters: reporters,
		bundles:   make(map[common.Hash]*Bundle),
		byBlock:   make(map[uint64][]common.Hash),
	}
}

func (r *Registry) isRouter(addr common.Address) bool { return addr == r.router }

func (r *Registry) isReporter(addr common.Address) bool {
	return addr == r.owner || r.reporters[addr]
}

// SubmitBundle records a bundle aimed at a strictly future block.
// Duplicate hashes are rejected; the stored submitter is the
// originating caller the router acted for.
func (r *Registry) SubmitBundle(caller, originator common.Address, hash common.Hash, targetBlock uint64) error {
	if !r.isRouter(caller) {
		return errors.Unauthorized("caller %s is not the router", caller.Hex())
	}
	current := r.blocks.BlockNumber()
	if targetBlock <= current {
		return errors.InvalidArgument("target block %d is not in the future (current %d)", targetBlock, current)
	}

	r.mu.Lock()
	if _, exists := r.bundles[hash]; exists {
		r.mu.Unlock()
		return errors.DuplicateRecord("bundle %s already submitted", hash.Hex())
	}
	bundle := &Bundle{
		Hash:        hash,
		Submitter:   originator,
		TargetBlock: targetBlock,
		SubmittedAt: r.clock.Now(),
		Status:      StatusPending,
	}
	r.bundles[hash] = bundle
	r.byBlock[targetBlock] = append(r.byBlock[targetBlock], hash)
	r.submitted++
	r.mu.Unlock()

	metrics.BundlesSubmitted.Inc()
	r.recorder.Record(audit.New(audit.EventBundleSubmitted, map[string]any{
		"hash":         hash.Hex(),
		"submitter":    originator.Hex(),
		"target_block": targetBlock,
	}))
	return nil
}

// MarkIncluded records a bundle's inclusion, exactly once
func (r *Registry) MarkIncluded(caller common.Address, hash common.Hash) error {
	if !r.isReporter(caller) {
		return errors.Unauthorized("caller %s is not a reporter", caller.Hex())
	}

	r.mu.Lock()
	bundle, ok := r.bundles[hash]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("bundle %s does not exist", hash.Hex())
	}
	if bundle.Status == StatusIncluded {
		r.mu.Unlock()
		return errors.InvalidState("bundle %s already marked included", hash.Hex())
	}
	bundle.Status = StatusIncluded
	r.included++
	r.mu.Unlock()

	metrics.BundlesIncluded.Inc()
	r.recorder.Record(audit.New(audit.EventBundleIncluded, map[string]any{
		"hash": hash.Hex(),
	}))
	return nil
}

// MarkFailed emits a diagnostic for a bundle that missed inclusion.
// The stored record is not mutated: a failed bundle stays pending
// unless it is eventually included.
func (r *Registry) MarkFailed(caller common.Address, hash common.Hash, reason string) error {
	if !r.isReporter(caller) {
		return errors.Unauthorized("caller %s is not a reporter", caller.Hex())
	}

	r.mu.Lock()
	_, ok := r.bundles[hash]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound("bundle %s does not exist", hash.Hex())
	}
	r.failedReports++
	r.mu.Unlock()

	metrics.BundlesFailed.Inc()
	r.recorder.Record(audit.New(audit.EventBundleFailed, map[string]any{
		"hash":   hash.Hex(),
		"reason": reason,
	}))
	return nil
}

// InclusionRate returns the included percentage in [0,100], 0 when
// nothing has been submitted
func (r *Registry) InclusionRate() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.submitted == 0 {
		return 0
	}
	return r.included * 100 / r.submitted
}

// Totals returns the monotone submitted and included counters
func (r *Registry) Totals() (submitted, included uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.submitted, r.included
}

// FailedReports returns the diagnostic failure-report counter
func (r *Registry) FailedReports() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failedReports
}

// GetBundle returns a copy of the bundle, if present
func (r *Registry) GetBundle(hash common.Hash) (Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bundle, ok := r.bundles[hash]
	if !ok {
		return Bundle{}, false
	}
	return *bundle, true
}

// BundlesForBlock returns the hashes targeting a block
func (r *Registry) BundlesForBlock(block uint64) []common.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hashes := make([]common.Hash, len(r.byBlock[block]))
	copy(hashes, r.byBlock[block])
	return hashes
}
