package generate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/blueprintlab/blueprintd/internal/events"
)

// DefaultNotifyInterval is the minimum gap between alerts for the same
// key. Repeated provider failures inside the window stay in the logs
// but do not re-alert.
const DefaultNotifyInterval = 15 * time.Minute

// Notifier emits rate-limited operator alerts for provider failures.
// Alerts go to the event bus and the error log.
type Notifier struct {
	bus      *events.Bus
	logger   *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	// now is swappable for interval tests.
	now func() time.Time
}

// NewNotifier creates a notifier. A zero interval falls back to
// DefaultNotifyInterval; a nil bus is allowed and alerts then only log.
func NewNotifier(bus *events.Bus, logger *slog.Logger, interval time.Duration) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultNotifyInterval
	}
	return &Notifier{
		bus:      bus,
		logger:   logger.With("component", "notifier"),
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Notify raises an alert for key unless one fired within the interval.
// Returns whether the alert was actually emitted.
func (n *Notifier) Notify(key string, detail string) bool {
	if n == nil {
		return false
	}

	n.mu.Lock()
	now := n.now()
	if last, ok := n.last[key]; ok && now.Sub(last) < n.interval {
		n.mu.Unlock()
		return false
	}
	n.last[key] = now
	n.mu.Unlock()

	n.logger.Error("provider alert", "key", key, "detail", detail)
	n.bus.Publish(events.Event{
		Timestamp: now,
		Source:    events.SourceGenerate,
		Kind:      events.KindProviderAlert,
		Data: map[string]any{
			"error_kind": key,
			"detail":     detail,
		},
	})
	return true
}
