// Package audit defines the protocol's emitted audit events and the
// sinks that consume them. Every state transition of the five
// programs surfaces here for the dashboard/analytics collaborators.
package audit

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies a class of audit event
type EventType string

const (
	// Router events
	EventTradeExecuted     EventType = "trade.executed"
	EventPrivatePathChosen EventType = "trade.private_path"
	EventFundsStranded     EventType = "router.funds_stranded"
	EventThresholdUpdated  EventType = "router.threshold_updated"
	EventRegistryUpdated   EventType = "router.registry_updated"
	EventFundsSwept        EventType = "router.swept"

	// Vault events
	EventDeposit        EventType = "vault.deposit"
	EventWithdrawal     EventType = "vault.withdrawal"
	EventFeeCollected   EventType = "vault.fee_collected"
	EventFeesWithdrawn  EventType = "vault.fees_withdrawn"
	EventPauseToggled   EventType = "vault.pause_toggled"
	EventFeeUpdated     EventType = "vault.fee_updated"
	EventVaultRouterSet EventType = "vault.router_updated"

	// Delayed order events
	EventOrderCreated   EventType = "order.created"
	EventOrderExecuted  EventType = "order.executed"
	EventOrderCancelled EventType = "order.cancelled"
	EventDelayUpdated   EventType = "order.delay_updated"

	// Risk registry events
	EventScoreSubmitted   EventType = "oracle.score_submitted"
	EventAccuracyReported EventType = "oracle.accuracy_reported"
	EventOperatorAdded    EventType = "oracle.operator_added"
	EventOperatorRemoved  EventType = "oracle.operator_removed"

	// Bundle events
	EventBundleSubmitted EventType = "bundle.submitted"
	EventBundleIncluded  EventType = "bundle.included"
	EventBundleFailed    EventType = "bundle.failed"
)

// Event is a single audit record
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recorder consumes audit events
type Recorder interface {
	Record(event Event)
}

// New creates an event with a fresh id and the current time
func New(eventType EventType, details map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

// LogRecorder writes events to the structured log
type LogRecorder struct {
	logger *zap.Logger
}

// NewLogRecorder creates a recorder backed by a zap logger
func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.Named("audit")}
}

// Record implements Recorder
func (r *LogRecorder) Record(event Event) {
	r.logger.Info("audit event",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.Time("event_time", event.Timestamp),
		zap.Any("details", event.Details),
	)
}

// Fanout dispatches every event to each of its sinks in order
type Fanout []Recorder

// Record implements Recorder
func (f Fanout) Record(event Event) {
	for _, r := range f {
		r.Record(event)
	}
}

// Nop discards all events; used where auditing is not wired
type Nop struct{}

// Record implements Recorder
func (Nop) Record(Event) {}
