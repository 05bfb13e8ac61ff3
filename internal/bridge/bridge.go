// Package bridge turns fire-and-forget native calls that report back through a
// callback into futures the caller can await with a deadline.
//
// A native operation receives a correlation id and the bridge's shared
// Callback. It must eventually invoke the callback, from any goroutine, with a
// JSON envelope whose callId matches. Timeouts only stop the local wait; a
// reply that arrives after its id was abandoned or cancelled is logged and
// dropped.
package bridge

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// Callback receives the raw completion payload for one call.
type Callback func(raw string)

// NativeOp issues a call tagged with id and arranges for cb to be invoked with
// the reply. A returned error (or a panic) means the call never left this side.
type NativeOp func(id int64, cb Callback) error

// Observer receives bridge lifecycle notifications, typically for metrics.
type Observer interface {
	CallStarted()
	CallResolved(code result.Code)
	CallbackDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) CallStarted()                  {}
func (nopObserver) CallResolved(result.Code)      {}
func (nopObserver) CallbackDropped(reason string) {}

// Drop reasons reported to the Observer.
const (
	DropEmpty     = "empty"
	DropMalformed = "malformed"
	DropUnknownID = "unknown_id"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithObserver attaches an Observer. A nil observer is ignored.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.obs = o
		}
	}
}

// WithRegistry shares an existing Registry between bridges.
func WithRegistry(r *Registry) Option {
	return func(b *Bridge) {
		if r != nil {
			b.reg = r
		}
	}
}

// Bridge correlates native calls with their callbacks.
// All methods are safe for concurrent use.
type Bridge struct {
	reg    *Registry
	logger *zap.Logger
	obs    Observer
}

// New creates a Bridge with its own Registry.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger, opts ...Option) *Bridge {
	if logger == nil {
		panic("bridge.New: logger must not be nil")
	}
	b := &Bridge{
		reg:    NewRegistry(),
		logger: logger,
		obs:    nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Invoke registers a new call, then runs op with its id and the shared
// Callback.
//
// Postcondition: if op fails synchronously the returned future is already
// resolved with CodeException and no registry entry remains.
func (b *Bridge) Invoke(op NativeOp) *Future {
	f := b.reg.Register()
	f.onLocal = b.obs.CallResolved
	b.obs.CallStarted()

	if err := runNative(op, f.id, b.Callback); err != nil {
		if b.reg.Abandon(f.id) {
			f.complete(result.LocalEnvelope(f.id, result.CodeException, err.Error()))
			b.obs.CallResolved(result.CodeException)
		}
		b.logger.Warn("native call failed before dispatch",
			zap.Int64("call_id", f.id),
			zap.Error(err),
		)
	}
	return f
}

// Callback is the single entry point through which every reply is delivered.
// It never panics; protocol violations are logged and dropped without
// resolving anything.
func (b *Bridge) Callback(raw string) {
	if raw == "" {
		b.logger.Error("bridge callback received empty payload")
		b.obs.CallbackDropped(DropEmpty)
		return
	}

	var env result.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Error("bridge callback payload not decodable",
			zap.Error(err),
			zap.Int("bytes", len(raw)),
		)
		b.obs.CallbackDropped(DropMalformed)
		return
	}

	if !b.reg.Resolve(env) {
		b.logger.Warn("bridge callback for unknown call id",
			zap.Int64("call_id", env.CallID),
			zap.Stringer("code", env.ReturnCode),
		)
		b.obs.CallbackDropped(DropUnknownID)
		return
	}
	b.obs.CallResolved(env.ReturnCode)
}

// Pending returns the number of calls awaiting a callback.
func (b *Bridge) Pending() int {
	return b.reg.Len()
}

// CancelAll resolves every outstanding call with CodeCanceled. The remote side
// is not informed; late replies are dropped as unknown.
func (b *Bridge) CancelAll() int {
	n := b.reg.CancelAll("bridge cancelled")
	for i := 0; i < n; i++ {
		b.obs.CallResolved(result.CodeCanceled)
	}
	if n > 0 {
		b.logger.Info("cancelled pending calls", zap.Int("count", n))
	}
	return n
}

// Logger returns the bridge's logger.
func (b *Bridge) Logger() *zap.Logger {
	return b.logger
}

func runNative(op NativeOp, id int64, cb Callback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native call panicked: %v", r)
		}
	}()
	return op(id, cb)
}
