package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/result"
)

// Invoke1 curries one leading argument into a NativeOp.
func Invoke1[A any](b *Bridge, op func(A, int64, Callback) error, a A) *Future {
	return b.Invoke(func(id int64, cb Callback) error { return op(a, id, cb) })
}

// Invoke2 curries two leading arguments into a NativeOp.
func Invoke2[A, B any](b *Bridge, op func(A, B, int64, Callback) error, a A, bb B) *Future {
	return b.Invoke(func(id int64, cb Callback) error { return op(a, bb, id, cb) })
}

// Invoke3 curries three leading arguments into a NativeOp.
func Invoke3[A, B, C any](b *Bridge, op func(A, B, C, int64, Callback) error, a A, bb B, c C) *Future {
	return b.Invoke(func(id int64, cb Callback) error { return op(a, bb, c, id, cb) })
}

// Invoke4 curries four leading arguments into a NativeOp.
func Invoke4[A, B, C, D any](b *Bridge, op func(A, B, C, D, int64, Callback) error, a A, bb B, c C, d D) *Future {
	return b.Invoke(func(id int64, cb Callback) error { return op(a, bb, c, d, id, cb) })
}

// Operation produces an envelope, usually by awaiting a bridged call.
type Operation func(ctx context.Context) (result.Envelope, error)

// Parser converts a successful envelope into typed data.
type Parser[T any] func(env result.Envelope) (T, error)

// ExecuteWithResult runs operation and converts its envelope into a typed result.
//
// Postcondition: a failed envelope yields a Failure without calling parse; a
// parse error or panic yields a Failure carrying the successful envelope; an
// error or panic from operation yields a Failure tagged CodeException.
func ExecuteWithResult[T any](ctx context.Context, b *Bridge, name string, operation Operation, parse Parser[T]) result.Result[T] {
	logger := zap.NewNop()
	if b != nil {
		logger = b.logger
	}

	env, err := runOperation(ctx, operation)
	if err != nil {
		logger.Warn("operation raised",
			zap.String("operation", name),
			zap.Error(err),
		)
		return result.Failure[T](result.LocalEnvelope(env.CallID, result.CodeException, err.Error()),
			fmt.Sprintf("%s: %v", name, err))
	}

	if !env.OK() {
		logger.Debug("operation failed",
			zap.String("operation", name),
			zap.Int64("call_id", env.CallID),
			zap.Stringer("code", env.ReturnCode),
			zap.String("message", env.Message),
		)
		return result.Failure[T](env, "")
	}

	data, err := runParser(parse, env)
	if err != nil {
		logger.Warn("operation payload not parseable",
			zap.String("operation", name),
			zap.Int64("call_id", env.CallID),
			zap.Error(err),
		)
		return result.Failure[T](env, fmt.Sprintf("%s: parsing payload: %v", name, err))
	}
	return result.Success(data, env)
}

func runOperation(ctx context.Context, op Operation) (env result.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return op(ctx)
}

func runParser[T any](parse Parser[T], env result.Envelope) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return parse(env)
}
