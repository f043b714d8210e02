package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IntegrityError reports a content-hash reuse that disagrees with the value
// already stored under that hash: either a genuine SHA-256 collision or a
// corrupted table.
type IntegrityError struct {
	Table  string
	Hash   Sum
	Detail string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hash: integrity violation in table %q at %s: %s",
		e.Table, hex.EncodeToString(e.Hash[:8]), e.Detail)
}

type entry struct {
	value any
	canon []byte
}

// Table is a content-addressed interning table. Insertion order is recorded
// and is the packer's dense index order, which makes compilation output
// deterministic for a fixed input graph.
type Table struct {
	name    string
	entries map[Sum]*entry
	order   []Sum
	index   map[Sum]int
	hits    int
}

// NewTable creates an empty table. The name appears in integrity errors.
func NewTable(name string) *Table {
	return &Table{
		name:    name,
		entries: make(map[Sum]*entry),
		index:   make(map[Sum]int),
	}
}

// Intern stores value under the hash of its canonical form and returns that
// hash. The canonical form must be serializable by Serialize and must encode
// everything that distinguishes the value; the table re-verifies it on every
// reuse and fails with *IntegrityError on mismatch.
func (t *Table) Intern(value any, canonical any) (Sum, error) {
	canon := Serialize(canonical)
	h := Sum(sha256.Sum256(canon))
	if e, ok := t.entries[h]; ok {
		if !bytes.Equal(e.canon, canon) {
			return Sum{}, &IntegrityError{
				Table:  t.name,
				Hash:   h,
				Detail: "stored canonical form differs from incoming value",
			}
		}
		t.hits++
		return h, nil
	}
	t.entries[h] = &entry{value: value, canon: canon}
	t.index[h] = len(t.order)
	t.order = append(t.order, h)
	return h, nil
}

// Len returns the number of distinct entries.
func (t *Table) Len() int { return len(t.order) }

// At returns the i-th value in insertion order.
func (t *Table) At(i int) any { return t.entries[t.order[i]].value }

// IndexOf returns the dense index assigned to a hash.
func (t *Table) IndexOf(h Sum) (int, bool) {
	i, ok := t.index[h]
	return i, ok
}

// Lookup returns the value stored under a hash.
func (t *Table) Lookup(h Sum) (any, bool) {
	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Hits reports how many Intern calls were satisfied by deduplication.
func (t *Table) Hits() int { return t.hits }
