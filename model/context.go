// Package model implements the buffered unit of work of spec.md §4.M:
// a single-record-type insert/delete buffer over one record store,
// flushed atomically on Save. New code — the teacher has no analog
// (turbo-geth writes state directly through db_state_writer.go on
// every call, with no staged buffer) — composing recordstore the way
// spec.md §4.M describes.
package model

import (
	"context"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/retry"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// Options configure a Context.
type Options struct {
	// Autosave, if true, flushes the buffer after every Insert/Delete
	// call instead of waiting for an explicit Save.
	Autosave bool
}

// Context is a buffered unit of work scoped to a single record store
// and, per spec.md §4.M, a single record type — the store's own
// RecordType(). Not safe for concurrent use by multiple goroutines.
type Context struct {
	store    *recordstore.Store
	opts     Options
	inserted map[string]recordstore.Record
	deleted  map[string]recordstore.Record
}

// New returns an empty Context buffering against store.
func New(store *recordstore.Store, opts Options) *Context {
	return &Context{
		store:    store,
		opts:     opts,
		inserted: make(map[string]recordstore.Record),
		deleted:  make(map[string]recordstore.Record),
	}
}

func (c *Context) checkType(rec recordstore.Record) error {
	if rec.RecordName() != c.store.RecordType() {
		return recorderr.Wrap(recorderr.KindTypeMismatch, recorderr.ErrTypeMismatch,
			"context holds %q records, got %q", c.store.RecordType(), rec.RecordName())
	}
	return nil
}

func (c *Context) pkKey(rec recordstore.Record) (string, tuple.Tuple, error) {
	pk, err := c.store.PrimaryKey(rec)
	if err != nil {
		return "", nil, err
	}
	return string(tuple.Encode(pk)), pk, nil
}

// Insert buffers rec to be written on the next Save. If a delete for
// the same primary key is already buffered, it is cancelled instead
// (spec.md §4.M's insert-cancels-delete rule).
func (c *Context) Insert(ctx context.Context, rec recordstore.Record) error {
	if err := c.checkType(rec); err != nil {
		return err
	}
	key, _, err := c.pkKey(rec)
	if err != nil {
		return err
	}
	if _, ok := c.deleted[key]; ok {
		delete(c.deleted, key)
	} else {
		c.inserted[key] = rec
	}
	return c.autosave(ctx)
}

// Delete buffers rec's primary key to be removed on the next Save. If
// an insert for the same primary key is already buffered, it is
// cancelled instead (spec.md §4.M's delete-cancels-insert rule).
func (c *Context) Delete(ctx context.Context, rec recordstore.Record) error {
	if err := c.checkType(rec); err != nil {
		return err
	}
	key, _, err := c.pkKey(rec)
	if err != nil {
		return err
	}
	if _, ok := c.inserted[key]; ok {
		delete(c.inserted, key)
	} else {
		c.deleted[key] = rec
	}
	return c.autosave(ctx)
}

func (c *Context) autosave(ctx context.Context) error {
	if !c.opts.Autosave {
		return nil
	}
	return c.Save(ctx)
}

// Save flushes every buffered insert and delete inside one atomic
// transaction, per spec.md §4.M. On success the buffers are cleared;
// on failure they are left untouched so the caller may retry without
// losing buffered state.
func (c *Context) Save(ctx context.Context) error {
	if len(c.inserted) == 0 && len(c.deleted) == 0 {
		return nil
	}
	db := c.store.DB()
	err := retry.Do(ctx, retry.DefaultPolicy, func() error {
		return db.Update(ctx, func(tx kv.RwTx) error {
			for _, rec := range c.inserted {
				if err := c.store.SaveTx(tx, rec); err != nil {
					return err
				}
			}
			for _, rec := range c.deleted {
				pk, err := c.store.PrimaryKey(rec)
				if err != nil {
					return err
				}
				if err := c.store.DeleteTx(tx, pk); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	c.inserted = make(map[string]recordstore.Record)
	c.deleted = make(map[string]recordstore.Record)
	return nil
}

// Rollback discards every buffered insert and delete without writing
// anything.
func (c *Context) Rollback() {
	c.inserted = make(map[string]recordstore.Record)
	c.deleted = make(map[string]recordstore.Record)
}

// Pending reports how many inserts and deletes are currently buffered,
// mainly useful for tests and diagnostics.
func (c *Context) Pending() (inserted, deleted int) {
	return len(c.inserted), len(c.deleted)
}
