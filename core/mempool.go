package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxMempoolSize  = 10_000
	maxPerSender    = 64
	maxTxAge        = int64(time.Hour)
	maxTxFutureSkew = int64(5 * time.Minute)
)

var (
	ErrMempoolFull   = errors.New("mempool full")
	ErrDuplicateTx   = errors.New("tx already in pool")
	ErrSenderBacklog = errors.New("too many pending txs from sender")
	ErrTxExpired     = errors.New("transaction expired")
	ErrTxFromFuture  = errors.New("transaction timestamp too far in the future")
)

// Mempool is a thread-safe pending-transaction pool that hands out
// transactions in arrival order.
type Mempool struct {
	mu        sync.RWMutex
	txs       map[string]*Transaction
	order     []string
	perSender map[string]int
}

// NewMempool creates an empty mempool.
func NewMempool() *Mempool {
	return &Mempool{
		txs:       make(map[string]*Transaction),
		perSender: make(map[string]int),
	}
}

// Add verifies and queues tx. Transactions older than an hour or more than
// five minutes ahead of the local clock are refused.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := time.Now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFutureSkew {
		return ErrTxFromFuture
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.txs) >= maxMempoolSize {
		return ErrMempoolFull
	}
	if _, ok := m.txs[tx.ID]; ok {
		return ErrDuplicateTx
	}
	if m.perSender[tx.From] >= maxPerSender {
		return ErrSenderBacklog
	}
	m.txs[tx.ID] = tx
	m.order = append(m.order, tx.ID)
	m.perSender[tx.From]++
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n queued transactions in arrival order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, min(n, len(m.order)))
	for _, id := range m.order {
		if len(out) >= n {
			break
		}
		if tx, ok := m.txs[id]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// Remove drops the given transactions, whether they were included in a
// block or rejected by the executor.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		delete(m.txs, id)
		if m.perSender[tx.From]--; m.perSender[tx.From] <= 0 {
			delete(m.perSender, tx.From)
		}
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := m.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
}

// Size returns the number of queued transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
