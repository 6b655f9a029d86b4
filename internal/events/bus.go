// Package events provides a publish/subscribe bus for pipeline
// observability. Components publish as they work (conversation turns,
// generation attempts, cache activity) and subscribers stream the feed,
// chiefly the WebSocket handler. The bus is nil-safe: Publish on a nil
// *Bus is a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceConversation identifies events from the conversation manager.
	SourceConversation = "conversation"
	// SourceGenerate identifies events from the generation engine.
	SourceGenerate = "generate"
	// SourceCache identifies events from the blueprint cache.
	SourceCache = "cache"
	// SourceAPI identifies events from the HTTP layer.
	SourceAPI = "api"
)

// Kind constants describe the type of event within a source.
const (
	// KindTurnReceived signals an incoming user turn.
	// Data: session_id, state, message_len.
	KindTurnReceived = "turn_received"
	// KindStateChanged signals a conversation state transition.
	// Data: session_id, from, to.
	KindStateChanged = "state_changed"
	// KindTurnDegraded signals a turn answered with the apology line
	// after a provider failure. Data: session_id, state.
	KindTurnDegraded = "turn_degraded"

	// KindGenerationStart signals the beginning of a blueprint generation.
	// Data: session_id, model, attempt.
	KindGenerationStart = "generation_start"
	// KindGenerationComplete signals a successful generation.
	// Data: session_id, model, tokens_used, attempts, elapsed_ms.
	KindGenerationComplete = "generation_complete"
	// KindGenerationFailed signals generation gave up after retries.
	// Data: session_id, error_kind, attempts.
	KindGenerationFailed = "generation_failed"
	// KindProviderAlert signals a rate-limited operator notification
	// about provider failures. Data: error_kind, detail.
	KindProviderAlert = "provider_alert"

	// KindCacheHit signals a blueprint was served from cache.
	// Data: fingerprint.
	KindCacheHit = "cache_hit"
	// KindCacheStore signals a fresh blueprint was cached.
	// Data: fingerprint.
	KindCacheStore = "cache_store"
)

// Event is a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's <-chan Event view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 suits WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
