// Package testutil holds in-memory stand-ins for the storage engines and
// state fixtures shared by package tests.
package testutil

import (
	"bytes"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/storage"
)

// MemDB is a storage.DB kept in a map. Iteration is key-ordered like the
// on-disk engines.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, core.ErrNotFound
}

func (m *MemDB) Set(key, value []byte) error {
	m.apply(setOp(key, value))
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.apply(deleteOp(key))
	return nil
}

func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pairs []storage.Pair
	for _, k := range slices.Sorted(maps.Keys(m.data)) {
		if strings.HasPrefix(k, string(prefix)) {
			pairs = append(pairs, storage.Pair{Key: []byte(k), Value: bytes.Clone(m.data[k])})
		}
	}
	return storage.NewSliceIterator(pairs, nil)
}

func (m *MemDB) NewBatch() storage.Batch { return &memBatch{db: m} }

func (m *MemDB) Close() error { return nil }

func (m *MemDB) apply(ops ...func(map[string][]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		op(m.data)
	}
}

func setOp(key, value []byte) func(map[string][]byte) {
	k, v := string(key), bytes.Clone(value)
	return func(data map[string][]byte) { data[k] = v }
}

func deleteOp(key []byte) func(map[string][]byte) {
	k := string(key)
	return func(data map[string][]byte) { delete(data, k) }
}

// memBatch queues writes and applies them under one lock.
type memBatch struct {
	db  *MemDB
	ops []func(map[string][]byte)
}

func (b *memBatch) Set(key, value []byte) { b.ops = append(b.ops, setOp(key, value)) }
func (b *memBatch) Delete(key []byte)     { b.ops = append(b.ops, deleteOp(key)) }
func (b *memBatch) Reset()                { b.ops = nil }

func (b *memBatch) Write() error {
	b.db.apply(b.ops...)
	return nil
}

// NewStateDB returns a StateDB over a fresh MemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}

// FundedState returns a StateDB with params and free balances written but
// not committed.
func FundedState(params core.Params, balances map[string]uint64) *storage.StateDB {
	st := NewStateDB()
	_ = st.SetParams(params)
	for addr, bal := range balances {
		_ = st.SetAccount(&core.Account{Address: addr, Balance: bal})
	}
	return st
}
