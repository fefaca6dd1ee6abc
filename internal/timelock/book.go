// Package timelock implements the delayed-execution order book: orders
// keyed by an incrementing identifier, a minimum wait before execution,
// and user-initiated cancellation. Execution is purely a timestamp
// gate; it moves no funds itself and is paired with a swap invocation
// by the authorized caller.
package timelock

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mevshield/mevshield/internal/audit"
	"github.com/mevshield/mevshield/internal/ledger"
	"github.com/mevshield/mevshield/pkg/errors"
	"github.com/mevshield/mevshield/pkg/metrics"
)

// Delay bounds in seconds
const (
	MinDelaySeconds     int64 = 1
	MaxDelaySeconds     int64 = 3600
	DefaultDelaySeconds int64 = 60
)

// OrderStatus is the lifecycle state of a delayed order. Executed and
// Cancelled are terminal and mutually exclusive.
type OrderStatus uint8

const (
	StatusPending OrderStatus = iota
	StatusExecuted
	StatusCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Order is one delayed order
type Order struct {
	ID           uint64          `json:"id"`
	Owner        common.Address  `json:"owner"`
	AssetIn      common.Address  `json:"asset_in"`
	AssetOut     common.Address  `json:"asset_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	EligibleAt   time.Time       `json:"eligible_at"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Config is the order book's injected role and delay configuration
type Config struct {
	// Owner may update the default delay and the router address.
	Owner common.Address
	// Router is the only role allowed to execute orders.
	Router common.Address
	// DefaultDelaySeconds substitutes a zero per-order delay.
	DefaultDelaySeconds int64
}

// Book records delayed orders and enforces their minimum wait
type Book struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	recorder audit.Recorder
	clock    ledger.Clock

	owner        common.Address
	router       common.Address
	defaultDelay int64

	nextID  uint64
	orders  map[uint64]*Order
	byOwner map[common.Address][]uint64
}

// New creates an order book from its injected configuration
func New(cfg Config, clock ledger.Clock, recorder audit.Recorder, logger *zap.Logger) (*Book, error) {
	delay := cfg.DefaultDelaySeconds
	if delay == 0 {
		delay = DefaultDelaySeconds
	}
	if delay < MinDelaySeconds || delay > MaxDelaySeconds {
		return nil, errors.InvalidArgument("default delay %ds out of range [%d,%d]", delay, MinDelaySeconds, MaxDelaySeconds)
	}
	return &Book{
		logger:       logger.Named("timelock"),
		recorder:     recorder,
		clock:        clock,
		owner:        cfg.Owner,
		router:       cfg.Router,
		defaultDelay: delay,
		nextID:       1,
		orders:       make(map[uint64]*Order),
		byOwner:      make(map[common.Address][]uint64),
	}, nil
}

func (b *Book) isOwner(addr common.Address) bool  { return addr == b.owner }
func (b *Book) isRouter(addr common.Address) bool { return addr == b.router }

// CreateOrder records a new pending order. A zero delay substitutes
// the configured default.
func (b *Book) CreateOrder(caller, assetIn, assetOut common.Address, amountIn, minAmountOut decimal.Decimal, delaySeconds int64) (uint64, error) {
	if assetIn == (common.Address{}) || assetOut == (common.Address{}) {
		return 0, errors.InvalidArgument("order asset is the null address")
	}
	if !amountIn.IsPositive() {
		return 0, errors.InvalidArgument("order amount must be positive")
	}
	if minAmountOut.IsNegative() {
		return 0, errors.InvalidArgument("minimum output must not be negative")
	}
	if delaySeconds < 0 || delaySeconds > MaxDelaySeconds {
		return 0, errors.InvalidArgument("delay %ds out of range [0,%d]", delaySeconds, MaxDelaySeconds)
	}

	b.mu.Lock()
	delay := delaySeconds
	if delay == 0 {
		delay = b.defaultDelay
	}
	now := b.clock.Now()
	order := &Order{
		ID:           b.nextID,
		Owner:        caller,
		AssetIn:      assetIn,
		AssetOut:     assetOut,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		EligibleAt:   now.Add(time.Duration(delay) * time.Second),
		Status:       StatusPending,
		CreatedAt:    now,
	}
	b.nextID++
	b.orders[order.ID] = order
	b.byOwner[caller] = append(b.byOwner[caller], order.ID)
	b.mu.Unlock()

	metrics.OrdersCreated.Inc()
	b.recorder.Record(audit.New(audit.EventOrderCreated, map[string]any{
		"order_id":    order.ID,
		"owner":       caller.Hex(),
		"asset_in":    assetIn.Hex(),
		"asset_out":   assetOut.Hex(),
		"amount_in":   amountIn.String(),
		"eligible_at": order.EligibleAt,
	}))
	return order.ID, nil
}

// ExecuteOrder marks a pending order executed once its wait has
// elapsed. Router role only. No funds move here; the caller pairs the
// execution with the actual swap.
func (b *Book) ExecuteOrder(caller common.Address, orderID uint64) error {
	return b.ExecuteOrderWith(caller, orderID, nil)
}

// ExecuteOrderWith runs fn between the eligibility checks and the
// status transition. The order is marked executed only when fn
// succeeds; on failure it stays pending and may be retried or
// cancelled. fn receives a snapshot of the order and runs outside the
// book's lock.
func (b *Book) ExecuteOrderWith(caller common.Address, orderID uint64, fn func(Order) error) error {
	if !b.isRouter(caller) {
		return errors.Unauthorized("caller %s is not the router", caller.Hex())
	}

	b.mu.Lock()
	order, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return errors.NotFound("order %d does not exist", orderID)
	}
	switch order.Status {
	case StatusExecuted:
		b.mu.Unlock()
		return errors.InvalidState("order %d already executed", orderID)
	case StatusCancelled:
		b.mu.Unlock()
		return errors.InvalidState("order %d was cancelled", orderID)
	}
	now := b.clock.Now()
	if now.Before(order.EligibleAt) {
		b.mu.Unlock()
		return errors.InvalidState("order %d not eligible until %s", orderID, order.EligibleAt.Format(time.RFC3339))
	}
	snapshot := *order
	b.mu.Unlock()

	if fn != nil {
		if err := fn(snapshot); err != nil {
			return err
		}
	}

	b.mu.Lock()
	order.Status = StatusExecuted
	b.mu.Unlock()

	metrics.OrdersExecuted.Inc()
	b.recorder.Record(audit.New(audit.EventOrderExecuted, map[string]any{
		"order_id": orderID,
		"owner":    order.Owner.Hex(),
	}))
	return nil
}

// CancelOrder cancels a pending order. Only the order's owner may
// cancel, and only while pending; cancellation is irreversible.
func (b *Book) CancelOrder(caller common.Address, orderID uint64) error {
	b.mu.Lock()
	order, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return errors.NotFound("order %d does not exist", orderID)
	}
	if order.Owner != caller {
		b.mu.Unlock()
		return errors.Unauthorized("caller %s does not own order %d", caller.Hex(), orderID)
	}
	if order.Status != StatusPending {
		b.mu.Unlock()
		return errors.InvalidState("order %d is %s, only pending orders can be cancelled", orderID, order.Status)
	}
	order.Status = StatusCancelled
	b.mu.Unlock()

	metrics.OrdersCancelled.Inc()
	b.recorder.Record(audit.New(audit.EventOrderCancelled, map[string]any{
		"order_id": orderID,
		"owner":    caller.Hex(),
	}))
	return nil
}

// CanExecute reports whether an order is pending and past its wait
func (b *Book) CanExecute(orderID uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[orderID]
	if !ok {
		return false
	}
	return order.Status == StatusPending && !b.clock.Now().Before(order.EligibleAt)
}

// GetOrder returns a copy of the order, if present
func (b *Book) GetOrder(orderID uint64) (Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *order, true
}

// OrdersOf returns the ids of all orders ever created by owner
func (b *Book) OrdersOf(owner common.Address) []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]uint64, len(b.byOwner[owner]))
	copy(ids, b.byOwner[owner])
	return ids
}

// OpenOrders returns the number of orders still pending
func (b *Book) OpenOrders() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var n int64
	for _, order := range b.orders {
		if order.Status == StatusPending {
			n++
		}
	}
	return n
}

// DefaultDelay returns the configured default delay in seconds
func (b *Book) DefaultDelay() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.defaultDelay
}

// SetDefaultDelay updates the default delay
func (b *Book) SetDefaultDelay(caller common.Address, seconds int64) error {
	if !b.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	if seconds < MinDelaySeconds || seconds > MaxDelaySeconds {
		return errors.InvalidArgument("delay %ds out of range [%d,%d]", seconds, MinDelaySeconds, MaxDelaySeconds)
	}
	b.mu.Lock()
	old := b.defaultDelay
	b.defaultDelay = seconds
	b.mu.Unlock()
	b.recorder.Record(audit.New(audit.EventDelayUpdated, map[string]any{
		"old_seconds": old,
		"new_seconds": seconds,
	}))
	return nil
}

// SetRouter updates the router role address
func (b *Book) SetRouter(caller, router common.Address) error {
	if !b.isOwner(caller) {
		return errors.Unauthorized("caller %s is not the owner", caller.Hex())
	}
	b.mu.Lock()
	b.router = router
	b.mu.Unlock()
	return nil
}
