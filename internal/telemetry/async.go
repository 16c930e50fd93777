package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// emitTimeout is the max time allowed for a single async emit. Used by Async and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration bounds how long shutdown waits for in-flight async emits
// before the OTel providers are closed. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// Async wraps an EventEmitter so Emit returns immediately. Each event is sent from its
// own goroutine with a fresh emitTimeout context, so request cancellation does not
// abort an in-flight emit. Failures are logged at Warn.
type Async struct {
	inner EventEmitter
	log   *zap.Logger
	wg    sync.WaitGroup
}

// NewAsync returns an Async around inner. inner may be nil; Emit is then a no-op.
func NewAsync(inner EventEmitter, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{inner: inner, log: log}
}

// Emit schedules event and always returns nil.
func (a *Async) Emit(_ context.Context, event *Event) error {
	if a == nil || a.inner == nil || event == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.inner.Emit(emitCtx, event); err != nil {
			a.log.Warn("telemetry: async emit failed",
				zap.String("event_type", event.Type),
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until all scheduled emits finish or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	if a == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
