// -----------------------------------------------------------------------
// Safe Goroutine - Panic-protected goroutine wrappers
// -----------------------------------------------------------------------

package common

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
)

// goroutineCounter tracks spawned goroutines for diagnostics
var goroutineCounter int64

// GetGoroutineCount returns the number of goroutines spawned via SafeGo
func GetGoroutineCount() int64 {
	return atomic.LoadInt64(&goroutineCounter)
}

// SafeGo runs a function in a goroutine with panic recovery.
// Panics are logged but don't crash the service.
func SafeGo(logger arbor.ILogger, name string, fn func()) {
	atomic.AddInt64(&goroutineCounter, 1)

	go func() {
		defer recoverGoroutine(logger, name)
		fn()
	}()
}

func recoverGoroutine(logger arbor.ILogger, name string) {
	r := recover()
	if r == nil {
		return
	}

	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	stackTrace := string(buf[:n])

	if logger != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", stackTrace).
			Msg("Recovered from panic in goroutine - continuing service operation")
		return
	}
	fmt.Fprintf(os.Stderr, "PANIC in goroutine %s: %v\n%s\n", name, r, stackTrace)
}

// Background is a tracked set of panic-protected goroutines bound to one
// lifetime context. Wait blocks until every goroutine started through Go has
// returned; Close cancels the context first.
type Background struct {
	logger arbor.ILogger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders wg.Add in Go against the closed flip in Close
	mu     sync.Mutex
	closed bool
}

// NewBackground creates a group whose goroutines observe ctx.
func NewBackground(ctx context.Context, logger arbor.ILogger) *Background {
	ctx, cancel := context.WithCancel(ctx)
	return &Background{logger: logger, ctx: ctx, cancel: cancel}
}

// Context returns the group's lifetime context.
func (b *Background) Context() context.Context {
	return b.ctx
}

// Detach registers caller-run work with the group and returns a context that
// keeps ctx's values but not its cancellation. The context ends when the
// group closes, and Close waits until release is called. It returns
// ErrClosed once the group is closed.
func (b *Background) Detach(ctx context.Context) (context.Context, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrClosed
	}
	b.wg.Add(1)
	b.mu.Unlock()

	detached, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(b.ctx, cancel)
	return detached, func() {
		stop()
		cancel()
		b.wg.Done()
	}, nil
}

// Go starts fn in the group. It returns false once the group is closed.
func (b *Background) Go(name string, fn func(ctx context.Context)) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.wg.Add(1)
	b.mu.Unlock()

	atomic.AddInt64(&goroutineCounter, 1)
	go func() {
		defer b.wg.Done()
		defer recoverGoroutine(b.logger, name)

		select {
		case <-b.ctx.Done():
			if b.logger != nil {
				b.logger.Debug().Str("goroutine", name).Msg("Goroutine cancelled before start")
			}
			return
		default:
		}

		fn(b.ctx)
	}()
	return true
}

// Closed reports whether Close has been called.
func (b *Background) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Wait blocks until all goroutines in the group have finished.
func (b *Background) Wait() {
	b.wg.Wait()
}

// Close cancels the group's context and waits for its goroutines.
func (b *Background) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}
