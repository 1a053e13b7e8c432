package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catherinevee/policyguard/internal/logger"
)

// Bus fans events out to every registered sink. Publishing never fails:
// sink errors are logged and dropped.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
	log   logger.Logger
}

// NewBus creates a bus with no sinks.
func NewBus() *Bus {
	return &Bus{log: logger.New("event_bus")}
}

// Register adds a sink to the bus.
func (b *Bus) Register(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish delivers the event to every sink, filling in ID and timestamp.
func (b *Bus) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Publish(event); err != nil {
			b.log.Warn("Event sink failed",
				logger.String("event_type", string(event.Type)),
				logger.String("resource_id", event.ResourceID),
				logger.Error(err))
		}
	}
}

// LogSink writes events to the structured log. It is the default sink
// when no message bus is configured.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.New("events")}
}

// Publish implements Sink.
func (s *LogSink) Publish(event Event) error {
	s.log.Info("Event",
		logger.String("event_type", string(event.Type)),
		logger.String("resource_id", event.ResourceID),
		logger.String("policy_id", event.PolicyID),
		logger.Any("data", event.Data))
	return nil
}
