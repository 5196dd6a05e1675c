package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the Enact engine.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// StepIndex is the associated plan step index; -1 when not applicable.
	StepIndex int `json:"step_index,omitempty"`

	// Kind is the intent kind the event concerns, if applicable.
	Kind string `json:"kind,omitempty"`

	// Target is the intent target the event concerns, if applicable.
	Target string `json:"target,omitempty"`

	// Backend is the backend name the event concerns, if applicable.
	Backend string `json:"backend,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeStepStarted     = "step.started"
	EventTypeStepApplied     = "step.applied"
	EventTypeStepFailed      = "step.failed"
	EventTypeStepSkipped     = "step.skipped"
	EventTypeBackendExcluded = "backend.excluded"
	EventTypePolicyDenied    = "policy.denied"
	EventTypeError           = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID string, steps int, failureMode string) error {
	return ep.Publish(Event{
		Type:      EventTypeRunStarted,
		Source:    "executor",
		RunID:     runID,
		StepIndex: -1,
		Message:   fmt.Sprintf("Run %s started (%d steps, %s)", runID, steps, failureMode),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"steps":        steps,
			"failure_mode": failureMode,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeRunCompleted,
		Source:    "executor",
		RunID:     runID,
		StepIndex: -1,
		Message:   fmt.Sprintf("Run %s completed with status: %s", runID, status),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepStarted publishes a step started event.
func (ep *EventPublisher) PublishStepStarted(runID string, index int, kind, target, backend string) error {
	return ep.Publish(Event{
		Type:      EventTypeStepStarted,
		Source:    "executor",
		RunID:     runID,
		StepIndex: index,
		Kind:      kind,
		Target:    target,
		Backend:   backend,
		Message:   fmt.Sprintf("Step %d started: %s %q via %s", index, kind, target, backend),
		Level:     EventLevelInfo,
	})
}

// PublishStepApplied publishes a step applied event.
func (ep *EventPublisher) PublishStepApplied(runID string, index int, kind, target string, changed bool, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeStepApplied,
		Source:    "executor",
		RunID:     runID,
		StepIndex: index,
		Kind:      kind,
		Target:    target,
		Message:   fmt.Sprintf("Step %d applied: %s %q", index, kind, target),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"changed":  changed,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepFailed publishes a step failed event.
func (ep *EventPublisher) PublishStepFailed(runID string, index int, kind, target, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeStepFailed,
		Source:    "executor",
		RunID:     runID,
		StepIndex: index,
		Kind:      kind,
		Target:    target,
		Message:   fmt.Sprintf("Step %d failed: %s %q: %s", index, kind, target, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepSkipped publishes a step skipped event.
func (ep *EventPublisher) PublishStepSkipped(runID string, index int, kind, target, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeStepSkipped,
		Source:    "executor",
		RunID:     runID,
		StepIndex: index,
		Kind:      kind,
		Target:    target,
		Message:   fmt.Sprintf("Step %d skipped: %s %q: %s", index, kind, target, reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishBackendExcluded publishes a backend exclusion event.
func (ep *EventPublisher) PublishBackendExcluded(backend, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeBackendExcluded,
		Source:    "backend_registry",
		StepIndex: -1,
		Backend:   backend,
		Message:   fmt.Sprintf("Backend %s excluded from discovery: %s", backend, reason),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishPolicyDenied publishes a policy denial event.
func (ep *EventPublisher) PublishPolicyDenied(policyName, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypePolicyDenied,
		Source:    "policy_gate",
		StepIndex: -1,
		Message:   fmt.Sprintf("Plan denied by policy %s: %s", policyName, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByKind creates a filter that only allows events for a specific intent kind.
func FilterByKind(kind string) EventFilter {
	return func(event Event) bool {
		return event.Kind == kind
	}
}
