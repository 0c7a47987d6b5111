package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/crypto"
)

// registerPrefix records a state-key prefix so that ComputeRoot covers it.
// Every state prefix must be declared through it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var (
	prefixAccount = registerPrefix("acct:")
	prefixKitty   = registerPrefix("kitty:")
	prefixOwned   = registerPrefix("owned:")
	prefixAllow   = registerPrefix("allow:")
	prefixClaim   = registerPrefix("claim:")
	prefixMeta    = registerPrefix("meta:")
)

var (
	keyKittyCount = prefixMeta + "kitty_count"
	keyParams     = prefixMeta + "params"
)

// kittyKey zero-pads the id so kitties iterate in id order.
func kittyKey(id uint32) string {
	return fmt.Sprintf("%s%010d", prefixKitty, id)
}

func allowanceKey(owner, spender string) string {
	return prefixAllow + owner + ":" + spender
}

type stateSnapshot struct {
	dirty map[string][]byte
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer, nested snapshots and deterministic state-root computation.
// A nil buffer entry is a pending delete. It is safe for one writer plus
// concurrent readers.
type StateDB struct {
	mu        sync.RWMutex
	db        DB
	dirty     map[string][]byte
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{db: db, dirty: make(map[string][]byte)}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.dirty[key]; ok {
		if v == nil {
			return nil, core.ErrNotFound
		}
		return v, nil
	}
	return s.db.Get([]byte(key))
}

// set buffers a write. val must be non-nil.
func (s *StateDB) set(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty[key] = nil
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Account ----

// GetAccount returns a zero-value account for an address never written.
func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Kitty ----

func (s *StateDB) GetKitty(id uint32) (*core.Kitty, error) {
	var k core.Kitty
	if err := s.getJSON(kittyKey(id), &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *StateDB) SetKitty(k *core.Kitty) error {
	return s.setJSON(kittyKey(k.ID), k)
}

// ---- Owned kitties ----

func (s *StateDB) GetOwnedKitties(owner string) ([]uint32, error) {
	var ids []uint32
	err := s.getJSON(prefixOwned+owner, &ids)
	if errors.Is(err, core.ErrNotFound) {
		return []uint32{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateDB) SetOwnedKitties(owner string, ids []uint32) error {
	if ids == nil {
		ids = []uint32{}
	}
	return s.setJSON(prefixOwned+owner, ids)
}

// ---- Allowances ----

func (s *StateDB) GetAllowance(owner, spender string) (uint64, error) {
	data, err := s.get(allowanceKey(owner, spender))
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt allowance: %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// SetAllowance stores amount; zero removes the entry.
func (s *StateDB) SetAllowance(owner, spender string, amount uint64) error {
	if amount == 0 {
		s.del(allowanceKey(owner, spender))
		return nil
	}
	s.set(allowanceKey(owner, spender), binary.BigEndian.AppendUint64(nil, amount))
	return nil
}

// ---- Claims ----

func (s *StateDB) GetClaim(proof string) (*core.Claim, error) {
	var c core.Claim
	if err := s.getJSON(prefixClaim+proof, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) SetClaim(proof string, c *core.Claim) error {
	return s.setJSON(prefixClaim+proof, c)
}

func (s *StateDB) DeleteClaim(proof string) error {
	s.del(prefixClaim + proof)
	return nil
}

// ---- Counter / params ----

func (s *StateDB) GetKittyCount() (uint32, error) {
	data, err := s.get(keyKittyCount)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("corrupt kitty counter: %d bytes", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

func (s *StateDB) SetKittyCount(n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	s.set(keyKittyCount, buf[:])
	return nil
}

func (s *StateDB) GetParams() (core.Params, error) {
	var p core.Params
	err := s.getJSON(keyParams, &p)
	if errors.Is(err, core.ErrNotFound) {
		return core.DefaultParams(), nil
	}
	return p, err
}

func (s *StateDB) SetParams(p core.Params) error {
	return s.setJSON(keyParams, p)
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffer(dirty map[string][]byte) map[string][]byte {
	d := make(map[string][]byte, len(dirty))
	for k, v := range dirty {
		d[k] = bytes.Clone(v)
	}
	return d
}

// Snapshot saves the current write buffer and returns its ID. Snapshots
// nest: reverting to an ID discards it and every later one.
func (s *StateDB) Snapshot() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, stateSnapshot{dirty: copyBuffer(s.dirty)})
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer saved by Snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.dirty = copyBuffer(s.snapshots[id].dirty)
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot hashes the complete world state: persisted entries under the
// registered prefixes merged with the write buffer, sorted by key and
// length-prefix encoded. It does not flush.
func (s *StateDB) ComputeRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			merged[string(it.Key())] = bytes.Clone(it.Value())
		}
		it.Release()
	}
	for k, v := range s.dirty {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit flushes the write buffer to the DB in one batch and clears it
// along with every outstanding snapshot.
func (s *StateDB) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		if v == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}
