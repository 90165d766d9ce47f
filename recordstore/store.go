package recordstore

import (
	"context"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ledgerwatch/recordlayer/index"
	"github.com/ledgerwatch/recordlayer/indexstate"
	"github.com/ledgerwatch/recordlayer/keyexpr"
	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/rangeset"
	"github.com/ledgerwatch/recordlayer/recorderr"
	"github.com/ledgerwatch/recordlayer/retry"
	"github.com/ledgerwatch/recordlayer/schema"
	"github.com/ledgerwatch/recordlayer/tuple"
)

// recordsKeyspace, per spec.md §3's physical layout: tag 1 holds
// record rows under a store's subspace.
var recordsKeyspace = tuple.Int(1)

// Store serves one record type at one subspace, per spec.md §4.E.
type Store struct {
	schema     *schema.Schema
	recordType string
	subspace   tuple.Subspace
	table      string
	db         kv.RwDB
	states     *indexstate.Manager
	ranges     *rangeset.Manager // per-key build coverage, so a live write during BUILDING isn't re-applied by the scan
	newRecord  func() Record
	cache      *fastcache.Cache // optional fetch-path cache, keyed by encoded pk
}

// Options configure a Store beyond its required identity, mirroring
// the teacher's SetAccountCache/SetStorageCache pattern of optional
// fastcache wiring on DbStateWriter.
type Options struct {
	// FetchCacheBytes, if non-zero, sizes an optional fastcache in
	// front of Fetch.
	FetchCacheBytes int
}

// Open constructs a Store for recordType within sch, backed by db and
// rooted at subspace. newRecord must return a fresh, zero-valued
// Record instance of this store's type — used to unmarshal rows read
// back from storage (Go has no generic "construct a T" without either
// generics [unavailable at this module's Go version] or an explicit
// factory, so the factory is supplied explicitly, the same way the
// teacher's codec-driven types are constructed via explicit
// `accounts.NewAccount()`-style calls rather than reflection).
func Open(db kv.RwDB, sch *schema.Schema, recordType string, subspace tuple.Subspace, newRecord func() Record, opts Options) (*Store, error) {
	if _, err := sch.RecordType(recordType); err != nil {
		return nil, err
	}
	s := &Store{
		schema:     sch,
		recordType: recordType,
		subspace:   subspace,
		table:      "records:" + string(subspace.Bytes()),
		db:         db,
		states:     indexstate.New(subspace, "records:"+string(subspace.Bytes())),
		ranges:     rangeset.New(subspace, "records:"+string(subspace.Bytes())),
		newRecord:  newRecord,
	}
	if opts.FetchCacheBytes > 0 {
		s.cache = fastcache.New(opts.FetchCacheBytes)
	}
	return s, nil
}

func (s *Store) recordKey(pk tuple.Tuple) []byte {
	return s.subspace.Sub(recordsKeyspace).Pack(pk)
}

// markBuilt records pk's record key as already covered in indexName's
// RangeSet. A live write that runs while an online build is in
// progress (state BUILDING) already applies the maintainer delta
// itself; marking the single key as covered here tells the build's
// own scan (onlineindex.Indexer.buildBatch) that this key's delta was
// already applied, so the scan must skip it rather than re-apply a
// second, non-idempotent delta on top (count/sum would double-count,
// min/max would re-derive the same answer redundantly but count/sum
// cannot).
func (s *Store) markBuilt(tx kv.RwTx, indexName string, pk tuple.Tuple) error {
	key := s.recordKey(pk)
	return s.ranges.Add(tx, indexName, key, append(append([]byte{}, key...), 0x00))
}

func (s *Store) primaryKey(rec Record) (tuple.Tuple, error) {
	rt, err := s.schema.RecordType(s.recordType)
	if err != nil {
		return nil, err
	}
	values, err := keyexpr.Evaluate(rt.PrimaryKeyExpression, FieldAccessor(rec))
	if err != nil {
		return nil, err
	}
	return tuple.Tuple(values), nil
}

func (s *Store) rootValues(idx schema.IndexDefinition, rec Record) ([]tuple.Value, error) {
	return keyexpr.Evaluate(idx.RootExpression, FieldAccessor(rec))
}

// PrimaryKey evaluates rec's primary-key expression, exported for
// callers outside this package (the online indexer) that walk records
// directly.
func (s *Store) PrimaryKey(rec Record) (tuple.Tuple, error) { return s.primaryKey(rec) }

// RootValues evaluates idx's root expression against rec, exported for
// the online indexer's build path.
func (s *Store) RootValues(idx schema.IndexDefinition, rec Record) ([]tuple.Value, error) {
	return s.rootValues(idx, rec)
}

// RecordKey packs pk into this store's record keyspace, exported for
// the online indexer's range-scan bounds.
func (s *Store) RecordKey(pk tuple.Tuple) []byte { return s.recordKey(pk) }

// RecordsRange returns the full [begin, end) byte range of this
// store's record keyspace.
func (s *Store) RecordsRange() (begin, end []byte) {
	return s.subspace.Sub(recordsKeyspace).Range()
}

// Save serializes rec and writes it under its primary key, maintaining
// every applicable index whose state is WRITEONLY, READABLE, or
// BUILDING, per spec.md §4.E/§4.G.
func (s *Store) Save(ctx context.Context, rec Record) error {
	return retry.Do(ctx, retry.DefaultPolicy, func() error {
		return s.db.Update(ctx, func(tx kv.RwTx) error {
			return s.saveTx(tx, rec)
		})
	})
}

// SaveTx runs Save's write path against a caller-owned transaction,
// exported for the model package's buffered unit of work (component
// M), which must apply every buffered insert/delete inside a single
// atomic transaction rather than one per record.
func (s *Store) SaveTx(tx kv.RwTx, rec Record) error { return s.saveTx(tx, rec) }

// DeleteTx runs Delete's write path against a caller-owned
// transaction; see SaveTx.
func (s *Store) DeleteTx(tx kv.RwTx, pk tuple.Tuple) error { return s.deleteTx(tx, pk) }

func (s *Store) saveTx(tx kv.RwTx, rec Record) error {
	pk, err := s.primaryKey(rec)
	if err != nil {
		return err
	}
	var old Record
	oldBytes, ok, err := tx.Get(s.table, s.recordKey(pk))
	if err != nil {
		return err
	}
	if ok {
		old = s.newRecord()
		if err := old.Unmarshal(oldBytes); err != nil {
			return recorderr.Wrap(recorderr.KindDeserializationFailed, err, "unmarshal existing record at save")
		}
	}

	for _, idx := range s.schema.IndexesForRecordType(s.recordType) {
		state, err := s.states.Get(tx, idx.Name)
		if err != nil {
			return err
		}
		if !indexstate.MaintainsWrites(state) {
			continue
		}
		maintainer, err := index.ForKind(idx.Kind)
		if err != nil {
			return err
		}
		newValues, err := s.rootValues(idx, rec)
		if err != nil {
			return err
		}
		d := index.Delta{PrimaryKey: pk, NewValues: newValues}
		if old != nil {
			oldValues, err := s.rootValues(idx, old)
			if err != nil {
				return err
			}
			d.OldValues = oldValues
			if err := maintainer.ApplyUpdate(tx, s.subspace, idx, d); err != nil {
				return err
			}
		} else {
			if err := maintainer.ApplyInsert(tx, s.subspace, idx, d); err != nil {
				return err
			}
		}
		if state == indexstate.StateBuilding {
			if err := s.markBuilt(tx, idx.Name, pk); err != nil {
				return err
			}
		}
	}

	data, err := rec.Marshal()
	if err != nil {
		return recorderr.Wrap(recorderr.KindSerializationFailed, err, "marshal record for save")
	}
	if err := tx.Put(s.table, s.recordKey(pk), data); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Set(s.recordKey(pk), data)
	}
	return nil
}

// Fetch returns the record stored at primaryKey, or ok=false if none
// exists.
func (s *Store) Fetch(ctx context.Context, primaryKey tuple.Tuple) (Record, bool, error) {
	if s.cache != nil {
		if data, ok := s.cache.HasGet(nil, s.recordKey(primaryKey)); ok {
			rec := s.newRecord()
			if err := rec.Unmarshal(data); err != nil {
				return nil, false, recorderr.Wrap(recorderr.KindDeserializationFailed, err, "unmarshal cached record")
			}
			return rec, true, nil
		}
	}
	var rec Record
	var found bool
	err := s.db.View(ctx, func(tx kv.Tx) error {
		data, ok, err := tx.Get(s.table, s.recordKey(primaryKey))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		found = true
		rec = s.newRecord()
		if err := rec.Unmarshal(data); err != nil {
			return recorderr.Wrap(recorderr.KindDeserializationFailed, err, "unmarshal fetched record")
		}
		if s.cache != nil {
			s.cache.Set(s.recordKey(primaryKey), data)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, found, nil
}

// Delete removes the record at primaryKey, maintaining every
// applicable index with a delete delta, per spec.md §4.E.
func (s *Store) Delete(ctx context.Context, primaryKey tuple.Tuple) error {
	return retry.Do(ctx, retry.DefaultPolicy, func() error {
		return s.db.Update(ctx, func(tx kv.RwTx) error {
			return s.deleteTx(tx, primaryKey)
		})
	})
}

func (s *Store) deleteTx(tx kv.RwTx, pk tuple.Tuple) error {
	oldBytes, ok, err := tx.Get(s.table, s.recordKey(pk))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	old := s.newRecord()
	if err := old.Unmarshal(oldBytes); err != nil {
		return recorderr.Wrap(recorderr.KindDeserializationFailed, err, "unmarshal existing record at delete")
	}

	for _, idx := range s.schema.IndexesForRecordType(s.recordType) {
		state, err := s.states.Get(tx, idx.Name)
		if err != nil {
			return err
		}
		if !indexstate.MaintainsWrites(state) {
			continue
		}
		maintainer, err := index.ForKind(idx.Kind)
		if err != nil {
			return err
		}
		oldValues, err := s.rootValues(idx, old)
		if err != nil {
			return err
		}
		if err := maintainer.ApplyDelete(tx, s.subspace, idx, index.Delta{PrimaryKey: pk, OldValues: oldValues}); err != nil {
			return err
		}
		if state == indexstate.StateBuilding {
			if err := s.markBuilt(tx, idx.Name, pk); err != nil {
				return err
			}
		}
	}

	if s.cache != nil {
		s.cache.Del(s.recordKey(pk))
	}
	return tx.Delete(s.table, s.recordKey(pk))
}

// Subspace exposes the store's subspace for packages that need to
// address its sub-keyspaces directly (index maintainers, the online
// indexer, the migration/evolution validators).
func (s *Store) Subspace() tuple.Subspace { return s.subspace }

// Table exposes the store's backing KV table name.
func (s *Store) Table() string { return s.table }

// Schema exposes the store's schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// RecordType exposes the store's record type name.
func (s *Store) RecordType() string { return s.recordType }

// States exposes the store's index-state manager.
func (s *Store) States() *indexstate.Manager { return s.states }

// DB exposes the store's underlying KV handle, for components (online
// indexer, migration manager) that must open their own transactions
// against the same store.
func (s *Store) DB() kv.RwDB { return s.db }

// NewRecord constructs a fresh, zero-valued Record of this store's
// type.
func (s *Store) NewRecord() Record { return s.newRecord() }
