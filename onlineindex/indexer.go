// Package onlineindex implements the resumable background index
// builder of spec.md §4.H: DISABLED -> WRITEONLY -> (batched build,
// tracked in a persistent RangeSet) -> READABLE. Grounded on
// `migrations/migrations.go`'s `Migrator.Apply` (applied-marker
// bookkeeping driving idempotent resumption) crossed with
// `eth/stagedsync/stage_log_index.go`'s batched-transaction-with-
// throttle loop.
package onlineindex

import (
	"bytes"
	"context"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ledgerwatch/recordlayer/index"
	"github.com/ledgerwatch/recordlayer/indexstate"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/recordstore"
	"github.com/ledgerwatch/recordlayer/rangeset"
	"github.com/ledgerwatch/recordlayer/schema"
	"golang.org/x/sync/semaphore"
)

// defaultBatchSize and defaultBatchBytes bound one build transaction,
// per spec.md §4.H's `batch_size` knob and the KV store's ~10 MB
// per-transaction cap (spec.md §6).
const defaultBatchSize = 500

var defaultBatchBytes = 8 * datasize.MB

// Options configure an Indexer's pacing.
type Options struct {
	BatchSize     int
	BatchBytes    datasize.ByteSize
	ThrottleDelay time.Duration
	// MaxConcurrentBatches bounds how many Build calls on this Indexer
	// may be mid-batch at once; each Indexer holds its own semaphore, so
	// separate Indexers do not share the bound. Zero means unbounded.
	MaxConcurrentBatches int64
}

// Indexer drives one index from DISABLED to READABLE.
type Indexer struct {
	store     *recordstore.Store
	indexName string
	opts      Options
	ranges    *rangeset.Manager
	sem       *semaphore.Weighted
}

// New returns an Indexer for indexName over store.
func New(store *recordstore.Store, indexName string, opts Options) *Indexer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchBytes <= 0 {
		opts.BatchBytes = defaultBatchBytes
	}
	idx := &Indexer{
		store:     store,
		indexName: indexName,
		opts:      opts,
		ranges:    rangeset.New(store.Subspace(), store.Table()),
	}
	if opts.MaxConcurrentBatches > 0 {
		idx.sem = semaphore.NewWeighted(opts.MaxConcurrentBatches)
	}
	return idx
}

// Build drives the index to READABLE, resuming from the RangeSet
// frontier if a prior run was interrupted. It is safe to call
// concurrently with live writes: writes in WRITEONLY/BUILDING already
// maintain the index (spec.md §4.G) and mark their own record key
// covered in the same RangeSet this build consults (see
// recordstore.Store.markBuilt), so buildBatch's scan skips any key a
// live write already applied a delta for — the scan and the live-write
// path partition the keyspace rather than overlap, which matters for
// non-idempotent aggregates (count/sum) where re-applying a delta
// would double-count.
func (idx *Indexer) Build(ctx context.Context) error {
	def, err := idx.store.Schema().Index(idx.indexName)
	if err != nil {
		return err
	}
	if err := idx.ensureBuilding(ctx); err != nil {
		return err
	}
	log.Info("Building index", "index", idx.indexName, "table", idx.store.Table())

	keyspaceBegin, keyspaceEnd := idx.store.RecordsRange()
	start := time.Now()
	var batches int
	for {
		if idx.sem != nil {
			if err := idx.sem.Acquire(ctx, 1); err != nil {
				return err
			}
		}
		done, err := idx.buildBatch(ctx, def, keyspaceBegin, keyspaceEnd)
		if idx.sem != nil {
			idx.sem.Release(1)
		}
		if err != nil {
			return err
		}
		batches++
		if done {
			break
		}
		if batches%20 == 0 {
			log.Info("Building index", "index", idx.indexName, "batches", batches, "elapsed", time.Since(start))
		}
		if idx.opts.ThrottleDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idx.opts.ThrottleDelay):
			}
		}
	}

	if err := idx.store.DB().Update(ctx, func(tx kv.RwTx) error {
		return idx.store.States().MakeReadable(tx, idx.indexName)
	}); err != nil {
		return err
	}
	log.Info("Index built", "index", idx.indexName, "batches", batches, "elapsed", time.Since(start))
	return nil
}

// ensureBuilding transitions DISABLED->WRITEONLY->BUILDING, tolerating
// a resumed build that was already left in WRITEONLY or BUILDING by a
// prior interrupted run.
func (idx *Indexer) ensureBuilding(ctx context.Context) error {
	return idx.store.DB().Update(ctx, func(tx kv.RwTx) error {
		state, err := idx.store.States().Get(tx, idx.indexName)
		if err != nil {
			return err
		}
		switch state {
		case indexstate.StateDisabled:
			if err := idx.store.States().Enable(tx, idx.indexName); err != nil {
				return err
			}
			return idx.store.States().Set(tx, idx.indexName, indexstate.StateBuilding)
		case indexstate.StateWriteOnly:
			return idx.store.States().Set(tx, idx.indexName, indexstate.StateBuilding)
		case indexstate.StateBuilding:
			return nil
		case indexstate.StateReadable:
			return recorderr.New(recorderr.KindAlreadyInProgress, "index %q is already READABLE", idx.indexName)
		default:
			return recorderr.New(recorderr.KindInternal, "index %q in unexpected state %s", idx.indexName, state)
		}
	})
}

// buildBatch processes up to BatchSize records starting at the
// RangeSet frontier, records the range it covered, and reports done
// when the frontier reaches keyspaceEnd.
func (idx *Indexer) buildBatch(ctx context.Context, def schema.IndexDefinition, keyspaceBegin, keyspaceEnd []byte) (done bool, err error) {
	err = idx.store.DB().Update(ctx, func(tx kv.RwTx) error {
		frontier, ok, ferr := idx.ranges.Frontier(tx, idx.indexName, keyspaceBegin)
		if ferr != nil {
			return ferr
		}
		begin := keyspaceBegin
		if ok {
			begin = frontier
		}
		if bytes.Compare(begin, keyspaceEnd) >= 0 {
			done = true
			return nil
		}

		it, rerr := tx.Range(idx.store.Table(), begin, keyspaceEnd)
		if rerr != nil {
			return rerr
		}
		defer it.Close()

		maintainer, merr := index.ForKind(def.Kind)
		if merr != nil {
			return merr
		}

		count := 0
		var bytesRead datasize.ByteSize
		lastKey := begin
		sawAny := false
		for count < idx.opts.BatchSize && bytesRead < idx.opts.BatchBytes && it.Next() {
			sawAny = true
			rec := idx.store.NewRecord()
			if uerr := rec.Unmarshal(it.Value()); uerr != nil {
				return recorderr.Wrap(recorderr.KindDeserializationFailed, uerr, "unmarshal record during online build of %q", idx.indexName)
			}
			recKey := it.Key()
			covered, cerr := idx.ranges.Covers(tx, idx.indexName, recKey, append(append([]byte{}, recKey...), 0x00))
			if cerr != nil {
				return cerr
			}
			if !covered {
				// A live write since this index entered BUILDING would
				// have already marked its own key covered (see
				// recordstore.Store.markBuilt); only apply the scan's
				// own delta for keys no live write has touched yet, so
				// non-idempotent aggregates (count/sum) aren't applied
				// twice for the same record.
				pk, perr := idx.store.PrimaryKey(rec)
				if perr != nil {
					return perr
				}
				values, verr := idx.store.RootValues(def, rec)
				if verr != nil {
					return verr
				}
				if aerr := maintainer.ApplyInsert(tx, idx.store.Subspace(), def, index.Delta{PrimaryKey: pk, NewValues: values}); aerr != nil {
					return aerr
				}
			}
			lastKey = append([]byte{}, it.Key()...)
			count++
			bytesRead += datasize.ByteSize(len(it.Key()) + len(it.Value()))
		}
		if ierr := it.Err(); ierr != nil {
			return ierr
		}

		var coveredEnd []byte
		if !sawAny {
			coveredEnd = keyspaceEnd
		} else {
			coveredEnd = append(append([]byte{}, lastKey...), 0x00)
		}
		return idx.ranges.Add(tx, idx.indexName, begin, coveredEnd)
	})
	return done, err
}
