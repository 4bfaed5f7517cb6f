package event

import (
	"context"
	"errors"
	"sync"
)

// ErrPending indicates a key already has an operation armed on it.
var ErrPending = errors.New("operation already pending for key")

// Operation is a single-settlement slot for one in-flight request. It is
// armed by Correlator.Begin, and settles at most once with either a result
// or an error.
type Operation[Result any] struct {
	done   chan struct{}
	result Result
	err    error
}

func newOperation[Result any]() *Operation[Result] {
	return &Operation[Result]{
		done: make(chan struct{}),
	}
}

// Wait blocks until the operation settles, or ctx ends. Context expiry does
// not settle the operation; pair it with Correlator.Abandon to detach.
func (o *Operation[Result]) Wait(ctx context.Context) (Result, error) {
	select {
	case <-o.done:
		return o.result, o.err
	case <-ctx.Done():
		var zero Result
		return zero, ctx.Err()
	}
}

// Settled reports whether the operation has settled.
func (o *Operation[Result]) Settled() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Correlator matches request/response style calls with events arriving from
// a push source. Each key holds at most one armed operation; an event for a
// key with nothing armed settles nothing, and operations armed on other keys
// are unaffected by it.
type Correlator[Key comparable, Result any] struct {
	opsMu sync.Mutex
	ops   map[Key]*Operation[Result]
}

func NewCorrelator[Key comparable, Result any]() *Correlator[Key, Result] {
	return &Correlator[Key, Result]{
		ops: make(map[Key]*Operation[Result]),
	}
}

// Begin arms a new operation under key. A second Begin for the same key
// fails with ErrPending until the first operation settles or is abandoned.
func (c *Correlator[Key, Result]) Begin(key Key) (*Operation[Result], error) {
	c.opsMu.Lock()
	defer c.opsMu.Unlock()

	if _, ok := c.ops[key]; ok {
		return nil, ErrPending
	}

	op := newOperation[Result]()
	c.ops[key] = op
	return op, nil
}

// Resolve settles the operation armed under key with a result. It reports
// whether an operation was armed; false means the event found no taker.
func (c *Correlator[Key, Result]) Resolve(key Key, result Result) bool {
	return c.settle(key, result, nil)
}

// Reject settles the operation armed under key with an error.
func (c *Correlator[Key, Result]) Reject(key Key, err error) bool {
	var zero Result
	return c.settle(key, zero, err)
}

// Abandon detaches op if it is still the one armed under key. The native
// request behind it, if any, is not withdrawn; a later event for key simply
// finds no taker. A stale handle never detaches a successor operation.
func (c *Correlator[Key, Result]) Abandon(key Key, op *Operation[Result]) bool {
	c.opsMu.Lock()
	defer c.opsMu.Unlock()

	armed, ok := c.ops[key]
	if !ok || armed != op {
		return false
	}

	delete(c.ops, key)
	return true
}

// Pending reports whether an operation is armed under key.
func (c *Correlator[Key, Result]) Pending(key Key) bool {
	c.opsMu.Lock()
	defer c.opsMu.Unlock()

	_, ok := c.ops[key]
	return ok
}

func (c *Correlator[Key, Result]) settle(key Key, result Result, err error) bool {
	c.opsMu.Lock()
	op, ok := c.ops[key]
	if ok {
		delete(c.ops, key)
	}
	c.opsMu.Unlock()

	if !ok {
		return false
	}

	// The operation is out of the map, so this writer is the only one left.
	op.result = result
	op.err = err
	close(op.done)
	return true
}
