package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *captureSink) Publish(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func TestPublishFansOut(t *testing.T) {
	bus := NewBus()
	first := &captureSink{}
	second := &captureSink{}
	bus.Register(first)
	bus.Register(second)

	bus.Publish(Event{
		Type:       PolicyViolationDetected,
		ResourceID: "vm1",
		PolicyID:   "p1",
	})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)

	got := first.events[0]
	assert.Equal(t, PolicyViolationDetected, got.Type)
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestPublishSurvivesSinkError(t *testing.T) {
	bus := NewBus()
	failing := &captureSink{err: errors.New("sink down")}
	healthy := &captureSink{}
	bus.Register(failing)
	bus.Register(healthy)

	bus.Publish(Event{Type: RemediationError, ResourceID: "vm1", PolicyID: "p1"})

	assert.Len(t, healthy.events, 1)
}

func TestPublishWithoutSinks(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: PolicyRemediation})
	})
}
