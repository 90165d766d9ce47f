package memkv

import "sort"

// cursor is a positional navigator over a table's snapshot as seen by
// its owning transaction, mirroring the teacher/erigon-lib Cursor
// contract (First/Seek/Next/Prev/Last).
type cursor struct {
	tx        *txn
	tableName string
	keys      []string
	pos       int // -1 before first
}

func newCursor(tx *txn, tableName string) *cursor {
	tbl := tx.db.tableFor(tableName)
	tbl.mu.RLock()
	keys := make([]string, 0, len(tbl.keys))
	for _, k := range tbl.keys {
		if _, ok := tbl.valueAt(k, tx.readVersion); ok {
			keys = append(keys, k)
		} else if tx.writable {
			tk := tableKey{tableName, k}
			if _, wok := tx.writes[tk]; wok {
				keys = append(keys, k)
			}
		}
	}
	if tx.writable {
		for tk := range tx.writes {
			if tk.table != tableName {
				continue
			}
			found := false
			for _, k := range keys {
				if k == tk.key {
					found = true
					break
				}
			}
			if !found {
				keys = append(keys, tk.key)
			}
		}
		sort.Strings(keys)
	}
	tbl.mu.RUnlock()
	return &cursor{tx: tx, tableName: tableName, keys: keys, pos: -1}
}

func (c *cursor) valueAt(i int) ([]byte, []byte, error) {
	if i < 0 || i >= len(c.keys) {
		return nil, nil, nil
	}
	key := c.keys[i]
	v, ok, err := c.tx.Get(c.tableName, []byte(key))
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, nil
	}
	return []byte(key), v, nil
}

func (c *cursor) First() ([]byte, []byte, error) {
	c.pos = 0
	return c.valueAt(c.pos)
}

func (c *cursor) Seek(seek []byte) ([]byte, []byte, error) {
	i := sort.SearchStrings(c.keys, string(seek))
	c.pos = i
	return c.valueAt(c.pos)
}

func (c *cursor) Next() ([]byte, []byte, error) {
	c.pos++
	return c.valueAt(c.pos)
}

func (c *cursor) Prev() ([]byte, []byte, error) {
	c.pos--
	return c.valueAt(c.pos)
}

func (c *cursor) Last() ([]byte, []byte, error) {
	c.pos = len(c.keys) - 1
	return c.valueAt(c.pos)
}

func (c *cursor) Current() ([]byte, []byte, error) {
	return c.valueAt(c.pos)
}

func (c *cursor) Close() {}

func (c *cursor) Put(key, value []byte) error {
	return c.tx.Put(c.tableName, key, value)
}

func (c *cursor) Delete(key []byte) error {
	return c.tx.Delete(c.tableName, key)
}
