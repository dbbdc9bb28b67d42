package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// newTestRedisState connects to the redis at DEEPLEARN_TEST_REDIS, skipping the
// test when it is unset. Each test gets its own key prefix.
func newTestRedisState(t *testing.T, name string) *RedisState {
	t.Helper()
	addr := os.Getenv("DEEPLEARN_TEST_REDIS")
	if addr == "" {
		t.Skip("DEEPLEARN_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	prefix := fmt.Sprintf("deeplearn-test:%d:%s:", time.Now().UnixNano(), name)
	rs, err := NewRedisState(ctx, addr, os.Getenv("DEEPLEARN_TEST_REDIS_PASSWORD"), prefix)
	if err != nil {
		t.Fatalf("NewRedisState: %v", err)
	}
	t.Cleanup(func() {
		rs.Delete(context.Background(), "deeplearn_user_id")
		rs.Close()
	})
	return rs
}

func TestRedisState(t *testing.T) {
	s := newTestRedisState(t, "contract")
	ctx := context.Background()

	// Missing key maps redis.Nil to absent.
	v, ok, err := s.Get(ctx, "deeplearn_user_id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != "" {
		t.Fatalf("expected missing key, got %q, %v", v, ok)
	}

	if err := s.Set(ctx, "deeplearn_user_id", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err = s.Get(ctx, "deeplearn_user_id")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("Get = %q, %v, %v; want abc, true, nil", v, ok, err)
	}

	// Overwrite.
	if err := s.Set(ctx, "deeplearn_user_id", "def"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, _, _ = s.Get(ctx, "deeplearn_user_id")
	if v != "def" {
		t.Errorf("expected overwritten value 'def', got %q", v)
	}

	// Delete, twice.
	if err := s.Delete(ctx, "deeplearn_user_id"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "deeplearn_user_id"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "deeplearn_user_id"); ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestRedisStatePrefixIsolation(t *testing.T) {
	a := newTestRedisState(t, "a")
	b := newTestRedisState(t, "b")
	ctx := context.Background()

	if err := a.Set(ctx, "deeplearn_user_id", "from-a"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := b.Get(ctx, "deeplearn_user_id"); err != nil || ok {
		t.Errorf("expected key invisible under another prefix, ok=%v err=%v", ok, err)
	}
}

func TestNewRedisStateUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Port 1 on loopback refuses connections.
	if _, err := NewRedisState(ctx, "127.0.0.1:1", "", "deeplearn:"); err == nil {
		t.Error("expected ping error for unreachable server")
	}
}
