// Package notification provides the ordered broadcaster used to fan state
// changes out to subscribed views.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
)

// Listener receives broadcast values.
type Listener[T any] func(T)

// subscription represents a subscriber's subscription.
type subscription[T any] struct {
	id       string
	listener Listener[T]
}

// Manager manages subscriptions and broadcasting.
// Dispatch is synchronous and ordered: listeners are called in subscription
// order, and one broadcast completes before the next one starts.
type Manager[T any] struct {
	mu            sync.RWMutex
	subscriptions []*subscription[T]

	dispatchMu   sync.Mutex
	sequenceNo   uint64
	sequenceNoMu sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager[T any]() *Manager[T] {
	return &Manager[T]{
		subscriptions: make([]*subscription[T], 0),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager[T]) Subscribe(listener Listener[T]) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions = append(m.subscriptions, &subscription[T]{
		id:       id,
		listener: listener,
	})
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager[T]) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscriptions {
		if sub.id == subscriptionID {
			m.subscriptions = append(m.subscriptions[:i:i], m.subscriptions[i+1:]...)
			return
		}
	}
}

// SequenceNo returns the sequence number of the last broadcast.
func (m *Manager[T]) SequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	return m.sequenceNo
}

// Broadcast delivers value to every subscriber and returns its sequence number.
// A panicking listener is logged and does not stop delivery to the others.
func (m *Manager[T]) Broadcast(value T) uint64 {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.sequenceNoMu.Lock()
	m.sequenceNo++
	seq := m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during dispatch
	subs := make([]*subscription[T], len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.mu.RUnlock()

	for _, sub := range subs {
		deliver(sub, value, seq)
	}
	return seq
}

func deliver[T any](sub *subscription[T], value T, seq uint64) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("notification: listener panicked: subscription_id=%s seq=%d panic=%v", sub.id, seq, r)
		}
	}()
	sub.listener(value)
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager[T]) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make([]*subscription[T], 0)
}
