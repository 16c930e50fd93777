package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventLoginSucceeded, "u1", "alice")
	if e.ID == "" {
		t.Error("ID should be set")
	}
	if e.Type != EventLoginSucceeded || e.UserID != "u1" || e.Username != "alice" {
		t.Errorf("event = %+v", e)
	}
	if e.Source != Source {
		t.Errorf("Source = %q, want %q", e.Source, Source)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMulti_EmitsToAll(t *testing.T) {
	a, b := &mockEventEmitter{}, &mockEventEmitter{emitErr: errors.New("b down")}
	c := &mockEventEmitter{}
	m := Multi{a, nil, b, c}

	err := m.Emit(context.Background(), NewEvent(EventLoggedOut, "u1", ""))
	if err == nil {
		t.Fatal("Multi should surface the failing emitter's error")
	}
	for i, em := range []*mockEventEmitter{a, b, c} {
		if len(em.getEvents()) != 1 {
			t.Errorf("emitter %d got %d events, want 1", i, len(em.getEvents()))
		}
	}
	if err := m.Emit(context.Background(), nil); err != nil {
		t.Errorf("Multi nil event: %v", err)
	}
}

func TestAsync_EmitsInBackground(t *testing.T) {
	inner := &mockEventEmitter{delay: 20 * time.Millisecond}
	a := NewAsync(inner, nil)

	start := time.Now()
	if err := a.Emit(context.Background(), NewEvent(EventMFARequired, "u1", "bob")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Error("Emit should not block on the inner emitter")
	}
	if err := a.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if len(inner.getEvents()) != 1 {
		t.Errorf("inner got %d events, want 1", len(inner.getEvents()))
	}
}

func TestAsync_RequestCancellationDoesNotAbort(t *testing.T) {
	inner := &mockEventEmitter{delay: 10 * time.Millisecond}
	a := NewAsync(inner, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_ = a.Emit(ctx, NewEvent(EventLoggedOut, "u1", ""))
	cancel()
	_ = a.Wait(context.Background())
	if len(inner.getEvents()) != 1 {
		t.Error("event should be emitted even after request context is canceled")
	}
}

func TestAsync_LogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := NewAsync(&mockEventEmitter{emitErr: errors.New("broker down")}, zap.New(core))
	_ = a.Emit(context.Background(), NewEvent(EventTokenRefreshed, "u1", ""))
	_ = a.Wait(context.Background())
	if logs.Len() != 1 {
		t.Fatalf("expected 1 warning, got %d", logs.Len())
	}
	if logs.All()[0].ContextMap()["event_type"] != EventTokenRefreshed {
		t.Errorf("warning fields = %v", logs.All()[0].ContextMap())
	}
}

func TestAsync_NilSafe(t *testing.T) {
	var a *Async
	if err := a.Emit(context.Background(), NewEvent(EventLoggedOut, "", "")); err != nil {
		t.Errorf("nil Async Emit: %v", err)
	}
	if err := a.Wait(context.Background()); err != nil {
		t.Errorf("nil Async Wait: %v", err)
	}
	if err := NewAsync(nil, nil).Emit(context.Background(), nil); err != nil {
		t.Errorf("Async without inner: %v", err)
	}
}

func TestAsync_WaitRespectsContext(t *testing.T) {
	a := NewAsync(&mockEventEmitter{delay: time.Second}, nil)
	_ = a.Emit(context.Background(), NewEvent(EventLoggedOut, "", ""))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := a.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait: want DeadlineExceeded, got %v", err)
	}
}

func TestShutdownDrainDuration(t *testing.T) {
	if ShutdownDrainDuration < emitTimeout {
		t.Errorf("ShutdownDrainDuration %v must be >= emitTimeout %v", ShutdownDrainDuration, emitTimeout)
	}
}
