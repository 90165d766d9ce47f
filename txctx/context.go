// Package txctx implements the transaction-context wrapper of
// spec.md §4.D: a single KV transaction plus commit hooks, a metadata
// scratchpad, and scoped-acquisition discipline. Grounded on the
// teacher's `useExternalTx bool; ... defer tx.Rollback()` idiom
// repeated through every eth/stagedsync stage function
// (stage_log_index.go's SpawnLogIndex): callers may either pass in an
// already-open transaction (and own its lifecycle) or let the context
// open and own one internally.
package txctx

import (
	"context"
	"time"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
)

// Hook runs before or after a commit. Pre-commit hooks can still fail
// the commit; post-commit hooks run only once commit has definitely
// succeeded (spec.md §4.D).
type Hook func(ctx *Context) error

// Context wraps one read-write KV transaction for the duration of a
// record-store/index-maintainer operation.
type Context struct {
	tx       kv.RwTx
	owns     bool // true if this Context opened tx itself and must close it
	closed   bool

	metadata map[string]interface{}

	preHooks  []Hook
	postHooks []Hook

	timeout            time.Duration
	readYourWritesOff  bool
}

// New wraps an externally supplied transaction; the caller retains
// ownership and must not call Commit/Cancel on tx directly afterward.
func New(tx kv.RwTx) *Context {
	return &Context{tx: tx, metadata: make(map[string]interface{})}
}

// Open begins a fresh read-write transaction on db and wraps it,
// taking ownership: Commit/Cancel on the Context also finalizes the
// underlying transaction.
func Open(ctx context.Context, db kv.RwDB) (*Context, error) {
	tx, err := db.BeginRw(ctx)
	if err != nil {
		return nil, err
	}
	return &Context{tx: tx, owns: true, metadata: make(map[string]interface{})}, nil
}

// Tx returns the underlying read-write transaction.
func (c *Context) Tx() kv.RwTx { return c.tx }

// AddPreCommitHook registers fn to run immediately before commit, in
// registration order. A failing pre-commit hook aborts the commit.
func (c *Context) AddPreCommitHook(fn Hook) { c.preHooks = append(c.preHooks, fn) }

// AddPostCommitHook registers fn to run only after a successful
// commit, in registration order.
func (c *Context) AddPostCommitHook(fn Hook) { c.postHooks = append(c.postHooks, fn) }

// SetMetadata stores a value in the context's scratchpad, which lives
// for the lifetime of one transaction.
func (c *Context) SetMetadata(key string, value interface{}) { c.metadata[key] = value }

// GetMetadata retrieves a previously stored scratchpad value.
func (c *Context) GetMetadata(key string) (interface{}, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// SetTimeout records the KV-store transaction timeout to apply, per
// spec.md §6's set_option(timeout, ...). The in-memory reference store
// does not enforce timeouts; this is recorded for KV implementations
// that do.
func (c *Context) SetTimeout(d time.Duration) { c.timeout = d }

// Timeout returns the timeout set via SetTimeout, or zero if unset.
func (c *Context) Timeout() time.Duration { return c.timeout }

// DisableReadYourWrites disables read-your-writes semantics for the
// remainder of this transaction, per spec.md §4.D.
func (c *Context) DisableReadYourWrites() { c.readYourWritesOff = true }

// ReadYourWritesDisabled reports whether DisableReadYourWrites was
// called on this context.
func (c *Context) ReadYourWritesDisabled() bool { return c.readYourWritesOff }

// Commit runs pre-commit hooks, commits the underlying transaction if
// this Context owns it, and then runs post-commit hooks. Calling
// Commit on an already-closed context returns ContextAlreadyClosed,
// matching spec.md §4.D's "idempotent error on repeat" requirement.
func (c *Context) Commit() error {
	if c.closed {
		return recorderr.ErrContextAlreadyClosed
	}
	for _, h := range c.preHooks {
		if err := h(c); err != nil {
			c.closed = true
			if c.owns {
				c.tx.Rollback()
			}
			return err
		}
	}
	if c.owns {
		if err := c.tx.Commit(); err != nil {
			c.closed = true
			return err
		}
	}
	c.closed = true
	for _, h := range c.postHooks {
		if err := h(c); err != nil {
			return err
		}
	}
	return nil
}

// Cancel aborts the transaction if this Context owns it. Safe to call
// repeatedly (spec.md §4.D: "cancel, safe repeat").
func (c *Context) Cancel() {
	if c.closed {
		return
	}
	c.closed = true
	if c.owns {
		c.tx.Rollback()
	}
}

// Closed reports whether Commit or Cancel has already run.
func (c *Context) Closed() bool { return c.closed }

// WithContext opens a Context on db, invokes fn, and enforces scoped
// acquisition discipline: if fn returns without the context having
// been explicitly committed, WithContext cancels it (mirroring RAII
// drop semantics for an open, uncommitted transaction, spec.md §4.D).
// A panic inside fn also cancels the context before repropagating.
func WithContext(ctx context.Context, db kv.RwDB, fn func(*Context) error) (err error) {
	tc, err := Open(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tc.Cancel()
			panic(r)
		}
		if !tc.Closed() {
			tc.Cancel()
		}
	}()
	if err := fn(tc); err != nil {
		return err
	}
	if !tc.Closed() {
		return tc.Commit()
	}
	return nil
}
