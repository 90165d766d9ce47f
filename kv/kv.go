// Package kv declares the ordered, transactional key-value store
// abstraction every other package in this module is built on top of,
// per spec.md §6's "Required KV store capabilities". Grounded on
// erigon-lib's kv package (the direct successor of the teacher's own
// ethdb.Database/KV/Tx/Cursor split) and trimmed to exactly the
// operations spec.md §6 names: get/range/set/clear/clear_range, atomic
// add, byte-min/byte-max, transaction lifecycle with optimistic
// concurrency, and a directory abstraction. Erigon-lib's temporal,
// domain, and dup-sort extensions have no SPEC_FULL component and are
// dropped.
package kv

import "context"

// Closer is implemented by anything holding a resource that must be
// released.
type Closer interface {
	Close()
}

// RoDB is a read-only database handle capable of starting read-only
// transactions.
type RoDB interface {
	Closer
	View(ctx context.Context, fn func(tx Tx) error) error
	BeginRo(ctx context.Context) (Tx, error)
}

// RwDB is a database handle capable of starting read-write
// transactions, per the teacher's View/Update split in ethdb.Database.
type RwDB interface {
	RoDB
	Update(ctx context.Context, fn func(tx RwTx) error) error
	BeginRw(ctx context.Context) (RwTx, error)
}

// Tx is a read-only (or the read side of a read-write) transaction.
// Every method observes a consistent snapshot taken at BeginRo/BeginRw
// time; per spec.md §5, concurrent writers are detected optimistically
// at Commit, not by blocking readers.
type Tx interface {
	// Get returns the value stored at key in table, or (nil, false) if
	// absent.
	Get(table string, key []byte) (value []byte, ok bool, err error)
	Has(table string, key []byte) (bool, error)

	// Range returns an ascending iterator over [begin, end). A nil end
	// means "to the end of table"; a nil begin means "from the start".
	Range(table string, begin, end []byte) (Iterator, error)
	// RangeDescend is like Range but walks from end towards begin,
	// exclusive of end and inclusive of begin (mirroring erigon's
	// RangeDescend semantics).
	RangeDescend(table string, begin, end []byte) (Iterator, error)

	Cursor(table string) (Cursor, error)

	Commit() error
	Rollback()

	// ViewID identifies the snapshot this transaction observes;
	// concurrent readers sharing a snapshot report the same ID.
	ViewID() uint64
}

// RwTx adds mutation and optimistic-concurrency-sensitive operations.
type RwTx interface {
	Tx

	Put(table string, key, value []byte) error
	Delete(table string, key []byte) error
	ClearRange(table string, begin, end []byte) error

	// AddInt64 atomically adds delta to the little-endian int64 stored
	// at key (creating it as delta if absent), per spec.md §6's
	// "atomic add (i64 little-endian)".
	AddInt64(table string, key []byte, delta int64) (result int64, err error)

	// ByteMin atomically replaces the value at key with the
	// element-wise lexicographically smaller of the existing value (if
	// any) and candidate, per spec.md §4.G's min/max maintainer.
	ByteMin(table string, key, candidate []byte) error
	// ByteMax is ByteMin's counterpart for the max maintainer.
	ByteMax(table string, key, candidate []byte) error

	RwCursor(table string) (RwCursor, error)

	CreateTable(table string) error
	DropTable(table string) error
}

// Iterator walks an ascending or descending key range. Grounded on the
// teacher's Cursor loop idiom (`for k, v, err := c.First(); k != nil;
// k, v, err = c.Next()`) collapsed into a single interface with an
// explicit Close so range scans (component E's `scan()`) can cancel
// the underlying transaction on early termination without leaking it.
type Iterator interface {
	// Next advances the iterator and returns false when exhausted or
	// on error (check Err after Next returns false).
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Close()
}

// Cursor is the low-level positional navigation primitive a table
// iterator is built from, mirroring erigon-lib's Cursor interface.
type Cursor interface {
	First() (key, value []byte, err error)
	Seek(seek []byte) (key, value []byte, err error)
	Next() (key, value []byte, err error)
	Prev() (key, value []byte, err error)
	Last() (key, value []byte, err error)
	Close()
}

// RwCursor adds in-place mutation at the cursor's current position.
type RwCursor interface {
	Cursor
	Put(key, value []byte) error
	Delete(key []byte) error
}

// DirectoryLayer is the "layer" tag named in spec.md §6's directory
// abstraction, distinguishing what kind of keyspace a Directory names.
type DirectoryLayer uint8

const (
	LayerPartition DirectoryLayer = iota
	LayerRecordStore
	LayerCustom
)

// PathElement is one segment of a directory path: either a literal
// name or a value derived dynamically from a record field at runtime.
type PathElement struct {
	Literal  string
	Dynamic  []byte
	IsDynamic bool
}

// Literal constructs a fixed path element.
func Literal(name string) PathElement { return PathElement{Literal: name} }

// Dynamic constructs a path element derived from record data at
// allocation time (e.g. a tenant ID).
func Dynamic(value []byte) PathElement { return PathElement{Dynamic: value, IsDynamic: true} }

// DirectoryAllocator maps a logical path plus layer tag to a compact
// byte prefix, allocating a fresh prefix on first use and returning
// the same prefix on subsequent lookups for the same path.
type DirectoryAllocator interface {
	// Open returns the prefix for path under layer, allocating one if
	// this is the first time path has been seen.
	Open(ctx context.Context, path []PathElement, layer DirectoryLayer) ([]byte, error)
}
