// Package oracle implements the risk-score registry: one immutable
// risk record per trade identifier, plus reputation tracking for the
// operators that submit scores.
package oracle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/pkg/errors"
)

// MaxScore is the upper bound of the risk-score range
const MaxScore uint8 = 100

// Record is a write-once risk record for one trade
type Record struct {
	Score     uint8          `json:"score"`
	Timestamp time.Time      `json:"timestamp"`
	Operator  common.Address `json:"operator"`
}

// OperatorStats holds the two reputation counters for one operator.
// Both are monotonically non-decreasing; accuracy is only ever
// confirmed by the owner, never self-reported.
type OperatorStats struct {
	Submissions uint64 `json:"submissions"`
	Accurate    uint64 `json:"accurate"`
}

// Registry stores risk records and operator reputation
type Registry struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	recorder audit.Recorder
	clock    ledger.Clock

	owner     common.Address
	operators map[common.Address]bool
	records   map[common.Hash]Record
	stats     map[common.Address]*OperatorStats
}

// NewRegistry creates a registry owned by owner. The owner is an
// operator by default.
func NewRegistry(owner common.Address, clock ledger.Clock, recorder audit.Recorder, logger *zap.Logger) *Registry {
	return &Registry{
		logger:    logger.Named("oracle"),
		recorder:  recorder,
		clock:     clock,
		owner:     owner,
		operators: map[common.Address]bool{owner: true},
		records:   make(map[common.Hash]Record),
		stats:     make(map[common.Address]*OperatorStats),
	}
}

func (r *Registry) isOwner(addr common.Address) bool { return addr == r.owner }

// IsOperator reports whether addr holds the operator role
func (r *Registry) IsOperator(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operators[addr]
}

// SubmitScore records a write-once risk score for a trade. A second
// submission for the same trade id always fails with DuplicateRecord,
// regardless of the new score.
func (r *Registry) SubmitScore(caller common.Address, tradeID common.Hash, score uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.operators[caller] {
		return errors.Unauthorized("caller %s is not an operator", caller.Hex())
	}
	if score > MaxScore {
		return errors.InvalidArgument("risk score %d exceeds maximum %d", score, MaxScore)
	}
	if _, exists := r.records[tradeID]; exists {
		return errors.DuplicateRecord("risk record already exists for trade %s", tradeID.Hex())
	}

	now := r.clock.Now()
	r.records[tradeID] = Record{Score: score, Timestamp: now, Operator: caller}
	r.operatorStats(caller).Submissions++

	r.recorder.Record(audit.New(audit.EventScoreSubmitted, map[string]any{
		"trade_id": tradeID.Hex(),
		"score":    score,
		"operator": caller.Hex(),
	}))
	return nil
}

// GetScore returns the score and timestamp for a trade. A zero
// timestamp means no record exists.
func (r *Registry) GetScore(tradeID common.Hash) (uint8, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[tradeID]
	if !ok {
		return 0, time.Time{}
	}
	return rec.Score, rec.Timestamp
}

// GetRecord returns the full record for a trade, if present
func (r *Registry) GetRecord(tradeID common.Hash) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[tradeID]
	return rec, ok
}

// ReportAccuracy confirms or disputes an operator's submission. Only
// confirmations move the counter; reputation never decreases, and
// Accurate never exceeds Submissions so the percentage stays in [0,100].
func (r *Registry) ReportAccuracy(caller, operator common.Address, wasAccurate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	if wasAccurate {
		if s := r.operatorStats(operator); s.Accurate < s.Submissions {
			s.Accurate++
		}
	}
	r.recorder.Record(audit.New(audit.EventAccuracyReported, map[string]any{
		"operator": operator.Hex(),
		"accurate": wasAccurate,
	}))
	return nil
}

// Reputation returns the operator's accuracy percentage in [0,100].
// An operator with no submissions has reputation 0.
func (r *Registry) Reputation(operator common.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stats[operator]
	if !ok || s.Submissions == 0 {
		return 0
	}
	return s.Accurate * 100 / s.Submissions
}

// Stats returns a copy of the operator's reputation counters
func (r *Registry) Stats(operator common.Address) OperatorStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.stats[operator]; ok {
		return *s
	}
	return OperatorStats{}
}

// AddOperator grants the operator role
func (r *Registry) AddOperator(caller, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	r.operators[operator] = true
	r.recorder.Record(audit.New(audit.EventOperatorAdded, map[string]any{
		"operator": operator.Hex(),
	}))
	return nil
}

// RemoveOperator revokes the operator role
func (r *Registry) RemoveOperator(caller, operator common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	delete(r.operators, operator)
	r.recorder.Record(audit.New(audit.EventOperatorRemoved, map[string]any{
		"operator": operator.Hex(),
	}))
	return nil
}

func (r *Registry) operatorStats(operator common.Address) *OperatorStats {
	s, ok := r.stats[operator]
	if !ok {
		s = &OperatorStats{}
		r.stats[operator] = s
	}
	return s
}
