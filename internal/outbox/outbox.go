package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
)

const (
	// SlotKey is the local-state key holding the most recent undelivered event.
	SlotKey = "pending_telemetry_event"
	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
)

// Sender delivers one event to the collector.
type Sender interface {
	Send(ctx context.Context, ev model.TelemetryEvent) error
}

// Slot is durable key-value storage for the retry slot.
type Slot interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Outbox relays telemetry events to the collector in the background. An event
// that cannot be delivered is persisted to a single retry slot (most recent wins)
// and redelivered by Flush or after the next successful delivery.
type Outbox struct {
	sender  Sender
	slot    Slot
	timeout time.Duration

	seq atomic.Uint64 // enqueue order

	mu      sync.Mutex // guards read-modify-write of the slot
	slotSeq uint64     // enqueue sequence of the event this Outbox last wrote to the slot
	wg      sync.WaitGroup
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithTimeout sets the per-attempt timeout for delivery and slot writes.
func WithTimeout(d time.Duration) Option {
	return func(o *Outbox) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// New creates an Outbox.
func New(sender Sender, slot Slot, opts ...Option) *Outbox {
	o := &Outbox{sender: sender, slot: slot, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue starts delivery of ev and returns immediately. Events are ordered by
// Enqueue call, not by when their delivery attempts finish.
func (o *Outbox) Enqueue(ev model.TelemetryEvent) {
	seq := o.seq.Add(1)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.deliver(ev, seq)
	}()
}

// Wait blocks until every delivery started by Enqueue has finished.
func (o *Outbox) Wait() {
	o.wg.Wait()
}

func (o *Outbox) deliver(ev model.TelemetryEvent, seq uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	err := o.sender.Send(ctx, ev)
	cancel()
	if err != nil {
		metrics.Deliveries.WithLabelValues("failed").Inc()
		slog.Warn("telemetry delivery failed, keeping event for retry",
			"event_id", ev.EventID, "group_index", ev.GroupIndex, "error", err)
		if err := o.persist(ev, seq); err != nil {
			slog.Error("failed to persist undelivered event", "event_id", ev.EventID, "error", err)
		}
		return
	}
	metrics.Deliveries.WithLabelValues("delivered").Inc()
	slog.Debug("telemetry delivered", "event_id", ev.EventID, "group_index", ev.GroupIndex)

	other, err := o.clear(ev.EventID)
	if err != nil {
		slog.Error("failed to clear retry slot", "event_id", ev.EventID, "error", err)
		return
	}
	if other {
		// The collector is reachable again; try the older pending event once.
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		if _, err := o.Flush(ctx); err != nil {
			slog.Warn("redelivery after reconnect failed", "error", err)
		}
	}
}

// persist writes ev to the slot unless a later-enqueued event is already there.
func (o *Outbox) persist(ev model.TelemetryEvent, seq uint64) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if seq < o.slotSeq {
		slog.Debug("retry slot holds a newer event, dropping older failure",
			"event_id", ev.EventID, "group_index", ev.GroupIndex)
		return nil
	}
	if err := o.slot.Set(ctx, SlotKey, string(data)); err != nil {
		return err
	}
	o.slotSeq = seq
	metrics.Persisted.Inc()
	return nil
}

// clear empties the slot when it holds eventID. It reports whether the slot
// holds a different event.
func (o *Outbox) clear(eventID string) (other bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	pending, err := o.pending(ctx)
	if err != nil || pending == nil {
		return false, err
	}
	if pending.EventID != eventID {
		return true, nil
	}
	return false, o.remove(ctx)
}

// remove empties the slot. Callers hold o.mu.
func (o *Outbox) remove(ctx context.Context) error {
	if err := o.slot.Delete(ctx, SlotKey); err != nil {
		return err
	}
	o.slotSeq = 0
	return nil
}

// Pending returns the event waiting in the retry slot, or nil.
func (o *Outbox) Pending(ctx context.Context) (*model.TelemetryEvent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending(ctx)
}

func (o *Outbox) pending(ctx context.Context) (*model.TelemetryEvent, error) {
	raw, ok, err := o.slot.Get(ctx, SlotKey)
	if err != nil {
		return nil, fmt.Errorf("read retry slot: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var ev model.TelemetryEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		slog.Warn("discarding unreadable retry slot", "error", err)
		return nil, o.remove(ctx)
	}
	return &ev, nil
}

// Flush makes one redelivery attempt for the pending event. It reports whether an
// event was delivered. On failure the event stays in the slot for the next attempt.
func (o *Outbox) Flush(ctx context.Context) (bool, error) {
	ev, err := o.Pending(ctx)
	if err != nil || ev == nil {
		return false, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err = o.sender.Send(sendCtx, *ev)
	cancel()
	if err != nil {
		metrics.Deliveries.WithLabelValues("redelivery_failed").Inc()
		return false, fmt.Errorf("redeliver event %s: %w", ev.EventID, err)
	}
	metrics.Deliveries.WithLabelValues("redelivered").Inc()
	slog.Info("redelivered pending telemetry event", "event_id", ev.EventID)

	o.mu.Lock()
	defer o.mu.Unlock()
	current, err := o.pending(ctx)
	if err != nil {
		return true, err
	}
	// A newer failure may have replaced the slot while we were sending.
	if current != nil && current.EventID == ev.EventID {
		if err := o.remove(ctx); err != nil {
			return true, fmt.Errorf("clear retry slot: %w", err)
		}
	}
	return true, nil
}
