package recordstore

import (
	"context"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// defaultScanBatchSize bounds how many rows one internal transaction
// reads before the iterator rolls to a fresh transaction, per spec.md
// §4.E/§6's "long_range_scan" continuation-by-last-key design.
const defaultScanBatchSize = 256

// RecordIterator is the stateful, transaction-owning cursor spec.md
// §4.E requires of `scan()`: records stream lazily, split across
// multiple short-lived transactions, and the open transaction must
// never outlive the iterator. Grounded on the kv.Iterator contract's
// own Close-on-every-exit-path discipline (kv/kv.go), generalized one
// level up so a long scan never holds a single transaction past its
// batch boundary or its 5s read window.
type RecordIterator struct {
	ctx       context.Context
	store     *Store
	batchSize int

	tx       kv.Tx
	it       kv.Iterator
	lastKey  []byte
	done     bool
	err      error
	current  Record
}

// Scan returns a lazy iterator over every record in s, ascending by
// primary key.
func (s *Store) Scan(ctx context.Context) *RecordIterator {
	return &RecordIterator{ctx: ctx, store: s, batchSize: defaultScanBatchSize}
}

func (it *RecordIterator) openBatch() error {
	tx, err := it.store.db.BeginRo(it.ctx)
	if err != nil {
		return err
	}
	begin, end := it.store.subspace.Sub(recordsKeyspace).Range()
	if it.lastKey != nil {
		begin = append(append([]byte{}, it.lastKey...), 0x00)
	}
	kvIt, err := tx.Range(it.store.table, begin, end)
	if err != nil {
		tx.Rollback()
		return err
	}
	it.tx = tx
	it.it = kvIt
	return nil
}

func (it *RecordIterator) closeBatch() {
	if it.it != nil {
		it.it.Close()
		it.it = nil
	}
	if it.tx != nil {
		it.tx.Rollback()
		it.tx = nil
	}
}

// Next advances the iterator, returning false when exhausted or on
// error (check Err after a false return).
func (it *RecordIterator) Next() bool {
	if it.done {
		return false
	}
	rowsInBatch := 0
	for {
		if it.it == nil {
			if err := it.openBatch(); err != nil {
				it.err = err
				it.done = true
				return false
			}
		}
		if it.it.Next() {
			key := append([]byte{}, it.it.Key()...)
			value := it.it.Value()
			rec := it.store.newRecord()
			if err := rec.Unmarshal(value); err != nil {
				it.err = recorderr.Wrap(recorderr.KindDeserializationFailed, err, "unmarshal scanned record")
				it.Close()
				return false
			}
			it.current = rec
			it.lastKey = key
			rowsInBatch++
			if rowsInBatch >= it.batchSize {
				it.closeBatch()
			}
			return true
		}
		if err := it.it.Err(); err != nil {
			it.err = err
			it.Close()
			return false
		}
		// Batch exhausted with no error: if it never filled, the scan
		// is complete; otherwise roll to a fresh transaction at the
		// continuation key.
		exhaustedNaturally := rowsInBatch < it.batchSize
		it.closeBatch()
		if exhaustedNaturally {
			it.done = true
			return false
		}
	}
}

// Record returns the record most recently produced by Next.
func (it *RecordIterator) Record() Record { return it.current }

// Err returns the first error encountered, if any.
func (it *RecordIterator) Err() error { return it.err }

// Close cancels the iterator's in-flight transaction, if any. Safe to
// call multiple times and safe to call after natural exhaustion.
// Callers that break out of a scan loop early must call Close so the
// open transaction is never leaked (spec.md §4.E's RAII requirement).
func (it *RecordIterator) Close() {
	it.done = true
	it.closeBatch()
}

// pkKey packs a primary key tuple into this store's record keyspace.
// It is unexported; callers outside this package use RecordKey.
func (s *Store) pkKey(pk tuple.Tuple) []byte {
	return s.recordKey(pk)
}
