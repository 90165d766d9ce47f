package memkv

import (
	"context"
	"testing"

	"github.com/ledgerwatch/recordlayer/kv"
)

func TestPutGetRoundTrip(t *testing.T) {
	db := New()
	ctx := context.Background()
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("t", []byte("k1"), []byte("v1"))
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.View(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.Get("t", []byte("k1"))
		if err != nil {
			return err
		}
		if !ok || string(v) != "v1" {
			t.Errorf("expected v1, got %q ok=%v", v, ok)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	db := New()
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(db.Update(ctx, func(tx kv.RwTx) error { return tx.Put("t", []byte("k"), []byte("v")) }))
	must(db.Update(ctx, func(tx kv.RwTx) error { return tx.Delete("t", []byte("k")) }))
	must(db.View(ctx, func(tx kv.Tx) error {
		_, ok, err := tx.Get("t", []byte("k"))
		if err != nil {
			return err
		}
		if ok {
			t.Errorf("expected key to be gone after delete")
		}
		return nil
	}))
}

func TestRangeAscending(t *testing.T) {
	db := New()
	ctx := context.Background()
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		for _, k := range []string{"a", "c", "b", "e", "d"} {
			if err := tx.Put("t", []byte(k), []byte(k+"v")); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	var got []string
	if err := db.View(ctx, func(tx kv.Tx) error {
		it, err := tx.Range("t", []byte("b"), []byte("e"))
		if err != nil {
			return err
		}
		defer it.Close()
		for it.Next() {
			got = append(got, string(it.Key()))
		}
		return it.Err()
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestAddInt64Atomic(t *testing.T) {
	db := New()
	ctx := context.Background()
	key := []byte("counter")
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		_, err := tx.AddInt64("counters", key, 3)
		return err
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		v, err := tx.AddInt64("counters", key, -1)
		if err != nil {
			return err
		}
		if v != 2 {
			t.Errorf("expected 2, got %d", v)
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestConflictingWritesDetected(t *testing.T) {
	db := New()
	ctx := context.Background()
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		return tx.Put("t", []byte("k"), []byte("initial"))
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx1, err := db.BeginRw(ctx)
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	if _, _, err := tx1.Get("t", []byte("k")); err != nil {
		t.Fatalf("tx1 get: %v", err)
	}

	tx2, err := db.BeginRw(ctx)
	if err != nil {
		t.Fatalf("begin tx2: %v", err)
	}
	if _, _, err := tx2.Get("t", []byte("k")); err != nil {
		t.Fatalf("tx2 get: %v", err)
	}
	if err := tx2.Put("t", []byte("k"), []byte("from-tx2")); err != nil {
		t.Fatalf("tx2 put: %v", err)
	}
	if err := tx2.Commit(); err != nil {
		t.Fatalf("tx2 commit: %v", err)
	}

	if err := tx1.Put("t", []byte("k"), []byte("from-tx1")); err != nil {
		t.Fatalf("tx1 put: %v", err)
	}
	if err := tx1.Commit(); err == nil {
		t.Errorf("expected conflict committing tx1 after tx2 modified a key tx1 read")
	}
}

func TestByteMinMax(t *testing.T) {
	db := New()
	ctx := context.Background()
	if err := db.Update(ctx, func(tx kv.RwTx) error {
		if err := tx.ByteMin("t", []byte("m"), []byte{5}); err != nil {
			return err
		}
		if err := tx.ByteMin("t", []byte("m"), []byte{3}); err != nil {
			return err
		}
		if err := tx.ByteMin("t", []byte("m"), []byte{9}); err != nil {
			return err
		}
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := db.View(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.Get("t", []byte("m"))
		if err != nil {
			return err
		}
		if !ok || len(v) != 1 || v[0] != 3 {
			t.Errorf("expected min value [3], got %v", v)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}
