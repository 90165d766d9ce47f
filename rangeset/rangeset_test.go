package rangeset

import (
	"bytes"
	"context"
	"testing"

	"github.com/ledgerwatch/recordlayer/kv"
	"github.com/ledgerwatch/recordlayer/kv/memkv"
	"github.com/ledgerwatch/recordlayer/tuple"
)

func withTx(t *testing.T, db *memkv.DB, fn func(tx kv.RwTx) error) {
	t.Helper()
	if err := db.Update(context.Background(), fn); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestAddCoalescesAdjacentRanges(t *testing.T) {
	db := memkv.New()
	m := New(tuple.FromBytes([]byte{0x01}), "idx_ranges")

	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "by_email", []byte{0x00}, []byte{0x10}) })
	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "by_email", []byte{0x10}, []byte{0x20}) })

	withTx(t, db, func(tx kv.RwTx) error {
		ranges, err := m.Ranges(tx, "by_email")
		if err != nil {
			return err
		}
		if len(ranges) != 1 {
			t.Fatalf("expected adjacent ranges to coalesce into one, got %d", len(ranges))
		}
		if !bytes.Equal(ranges[0].begin, []byte{0x00}) || !bytes.Equal(ranges[0].end, []byte{0x20}) {
			t.Errorf("unexpected merged range %v-%v", ranges[0].begin, ranges[0].end)
		}
		return nil
	})
}

func TestAddOverlapMerges(t *testing.T) {
	db := memkv.New()
	m := New(tuple.FromBytes([]byte{0x02}), "idx_ranges")

	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "i", []byte{0x00}, []byte{0x10}) })
	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "i", []byte{0x08}, []byte{0x20}) })

	withTx(t, db, func(tx kv.RwTx) error {
		ranges, err := m.Ranges(tx, "i")
		if err != nil {
			return err
		}
		if len(ranges) != 1 || !bytes.Equal(ranges[0].end, []byte{0x20}) {
			t.Errorf("expected overlapping ranges merged to end 0x20, got %v", ranges)
		}
		return nil
	})
}

func TestFrontierTracksContiguousPrefix(t *testing.T) {
	db := memkv.New()
	m := New(tuple.FromBytes([]byte{0x03}), "idx_ranges")
	keyspaceBegin := []byte{}

	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "i", keyspaceBegin, []byte{0x10}) })

	withTx(t, db, func(tx kv.RwTx) error {
		frontier, ok, err := m.Frontier(tx, "i", keyspaceBegin)
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(frontier, []byte{0x10}) {
			t.Errorf("expected frontier 0x10, got %v ok=%v", frontier, ok)
		}
		return nil
	})

	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "i", []byte{0x20}, []byte{0x30}) })
	withTx(t, db, func(tx kv.RwTx) error {
		frontier, ok, err := m.Frontier(tx, "i", keyspaceBegin)
		if err != nil {
			return err
		}
		if !ok || !bytes.Equal(frontier, []byte{0x10}) {
			t.Errorf("expected frontier to stay 0x10 past a disjoint later range, got %v ok=%v", frontier, ok)
		}
		return nil
	})
}

func TestCoversWholeKeyspace(t *testing.T) {
	db := memkv.New()
	m := New(tuple.FromBytes([]byte{0x04}), "idx_ranges")

	withTx(t, db, func(tx kv.RwTx) error { return m.Add(tx, "i", []byte{0x00}, []byte{0x10}) })
	withTx(t, db, func(tx kv.RwTx) error {
		covered, err := m.Covers(tx, "i", []byte{0x00}, []byte{0x10})
		if err != nil {
			return err
		}
		if !covered {
			t.Errorf("expected full coverage")
		}
		covered, err = m.Covers(tx, "i", []byte{0x00}, []byte{0x20})
		if err != nil {
			return err
		}
		if covered {
			t.Errorf("expected partial coverage to report false")
		}
		return nil
	})
}
