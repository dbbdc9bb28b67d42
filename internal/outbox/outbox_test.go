package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/store"
)

// collector is a fake collector endpoint that can be switched offline.
type collector struct {
	mu       sync.Mutex
	offline  atomic.Bool
	received []string
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != CollectorPath {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if c.offline.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	var ev model.TelemetryEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.received = append(c.received, ev.EventID)
	c.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (c *collector) ids() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.received...)
}

// senderFunc adapts a function to Sender.
type senderFunc func(ctx context.Context, ev model.TelemetryEvent) error

func (f senderFunc) Send(ctx context.Context, ev model.TelemetryEvent) error { return f(ctx, ev) }

func newTestSlot(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestOutbox(t *testing.T, h http.Handler, opts ...Option) (*Outbox, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	st := newTestSlot(t)
	return New(NewHTTPSender(srv.URL, time.Second), st, opts...), st
}

func event(id string) model.TelemetryEvent {
	return model.TelemetryEvent{
		EventID:    id,
		SessionID:  "sess-1",
		UserID:     "user-1",
		SessionTag: model.TagPre,
		GroupIndex: 2,
		Confidence: 3,
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEnqueueDelivers(t *testing.T) {
	c := &collector{}
	ob, _ := newTestOutbox(t, c)

	ob.Enqueue(event("ev-1"))
	ob.Wait()

	if got := c.ids(); len(got) != 1 || got[0] != "ev-1" {
		t.Fatalf("expected ev-1 delivered once, got %v", got)
	}
	pending, err := ob.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending != nil {
		t.Errorf("expected empty slot, got %+v", pending)
	}
}

func TestFailurePersistsThenFlushRedeliversOnce(t *testing.T) {
	c := &collector{}
	c.offline.Store(true)
	ob, st := newTestOutbox(t, c)
	ctx := context.Background()

	ob.Enqueue(event("ev-1"))
	ob.Wait()

	raw, ok, err := st.Get(ctx, SlotKey)
	if err != nil || !ok {
		t.Fatalf("expected slot to hold the event, ok=%v err=%v", ok, err)
	}
	var persisted model.TelemetryEvent
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		t.Fatalf("unmarshal slot: %v", err)
	}
	if persisted.EventID != "ev-1" || persisted.GroupIndex != 2 {
		t.Errorf("unexpected persisted event: %+v", persisted)
	}

	// Still offline: the event stays.
	delivered, err := ob.Flush(ctx)
	if delivered || err == nil {
		t.Fatalf("expected failed flush, delivered=%v err=%v", delivered, err)
	}
	var de *DeliveryError
	if !errors.As(err, &de) || de.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected DeliveryError with 503, got %v", err)
	}
	if _, ok, _ := st.Get(ctx, SlotKey); !ok {
		t.Fatal("slot cleared by a failed flush")
	}

	c.offline.Store(false)
	delivered, err = ob.Flush(ctx)
	if err != nil || !delivered {
		t.Fatalf("expected delivery, delivered=%v err=%v", delivered, err)
	}
	if _, ok, _ := st.Get(ctx, SlotKey); ok {
		t.Error("slot not cleared after successful flush")
	}

	delivered, err = ob.Flush(ctx)
	if err != nil || delivered {
		t.Errorf("second flush should be a no-op, delivered=%v err=%v", delivered, err)
	}
	if got := c.ids(); len(got) != 1 {
		t.Errorf("expected exactly one delivery, got %v", got)
	}
}

func TestMostRecentFailureWins(t *testing.T) {
	c := &collector{}
	c.offline.Store(true)
	ob, _ := newTestOutbox(t, c)

	ob.Enqueue(event("ev-1"))
	ob.Wait()
	ob.Enqueue(event("ev-2"))
	ob.Wait()

	pending, err := ob.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending == nil || pending.EventID != "ev-2" {
		t.Errorf("expected ev-2 in slot, got %+v", pending)
	}
}

func TestSlowOlderFailureDoesNotReplaceNewer(t *testing.T) {
	failing := senderFunc(func(ctx context.Context, ev model.TelemetryEvent) error {
		if ev.EventID == "older" {
			time.Sleep(200 * time.Millisecond)
		}
		return errors.New("collector unreachable")
	})
	ob := New(failing, newTestSlot(t))

	ob.Enqueue(event("older"))
	ob.Enqueue(event("newer"))
	ob.Wait()

	pending, err := ob.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending == nil || pending.EventID != "newer" {
		t.Errorf("expected newer in slot after both failed, got %+v", pending)
	}
}

func TestOlderFailureAfterSlotClearedIsKept(t *testing.T) {
	var online atomic.Bool
	sender := senderFunc(func(ctx context.Context, ev model.TelemetryEvent) error {
		if online.Load() {
			return nil
		}
		return errors.New("collector unreachable")
	})
	ob := New(sender, newTestSlot(t))
	ctx := context.Background()

	ob.Enqueue(event("ev-1"))
	ob.Wait()
	online.Store(true)
	if delivered, err := ob.Flush(ctx); err != nil || !delivered {
		t.Fatalf("Flush: delivered=%v err=%v", delivered, err)
	}

	// Earlier sequence numbers may be persisted again once the slot is empty.
	if err := ob.persist(event("ev-0"), 1); err != nil {
		t.Fatalf("persist: %v", err)
	}
	pending, _ := ob.Pending(ctx)
	if pending == nil || pending.EventID != "ev-0" {
		t.Errorf("expected ev-0 in empty slot, got %+v", pending)
	}
}

func TestSuccessRedeliversPendingEvent(t *testing.T) {
	c := &collector{}
	c.offline.Store(true)
	ob, _ := newTestOutbox(t, c)

	ob.Enqueue(event("ev-1"))
	ob.Wait()

	c.offline.Store(false)
	ob.Enqueue(event("ev-2"))
	ob.Wait()

	got := c.ids()
	if len(got) != 2 || got[0] != "ev-2" || got[1] != "ev-1" {
		t.Errorf("expected ev-2 then ev-1, got %v", got)
	}
	pending, _ := ob.Pending(context.Background())
	if pending != nil {
		t.Errorf("expected empty slot, got %+v", pending)
	}
}

func TestDeliveryTimeout(t *testing.T) {
	release := make(chan struct{})
	hang := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	ob, _ := newTestOutbox(t, hang, WithTimeout(50*time.Millisecond))
	t.Cleanup(func() { close(release) })

	start := time.Now()
	ob.Enqueue(event("ev-slow"))
	ob.Wait()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("delivery not bounded by timeout, took %v", elapsed)
	}

	pending, err := ob.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if pending == nil || pending.EventID != "ev-slow" {
		t.Errorf("expected timed-out event in slot, got %+v", pending)
	}
}

func TestUnreadableSlotIsDiscarded(t *testing.T) {
	ob, st := newTestOutbox(t, &collector{})
	ctx := context.Background()

	if err := st.Set(ctx, SlotKey, "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	delivered, err := ob.Flush(ctx)
	if err != nil || delivered {
		t.Errorf("expected no-op flush, delivered=%v err=%v", delivered, err)
	}
	if _, ok, _ := st.Get(ctx, SlotKey); ok {
		t.Error("expected unreadable slot to be removed")
	}
}

func TestHTTPSenderURL(t *testing.T) {
	s := NewHTTPSender("http://collector.local:8081/", 0)
	if got, want := s.URL(), "http://collector.local:8081/api/detective"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}
