// Package indexer maintains secondary indexes over committed blocks that
// the state itself does not keep: a kitty's children and its sale history.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/tolelom/kittychain/core"
	"github.com/tolelom/kittychain/events"
	"github.com/tolelom/kittychain/storage"
)

const (
	prefixChildren = "idx:children:"
	prefixSales    = "idx:sales:"
)

// Sale is one completed marketplace purchase.
type Sale struct {
	KittyID     uint32 `json:"kitty_id"`
	Seller      string `json:"seller"`
	Buyer       string `json:"buyer"`
	Price       uint64 `json:"price"`
	TxID        string `json:"tx_id"`
	BlockHeight int64  `json:"block_height"`
}

// Indexer subscribes to chain events and updates secondary lookup tables.
// Its keys live outside the state prefixes and never affect the state root.
type Indexer struct {
	db storage.DB
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db}
	emitter.Subscribe(events.EventKittyCreated, idx.onKittyCreated)
	emitter.Subscribe(events.EventKittySold, idx.onKittySold)
	return idx
}

// GetChildren returns the ids bred from parent, oldest first.
func (idx *Indexer) GetChildren(parent uint32) ([]uint32, error) {
	var ids []uint32
	if err := idx.getList(childrenKey(parent), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// GetSales returns every sale of the kitty, oldest first.
func (idx *Indexer) GetSales(kittyID uint32) ([]Sale, error) {
	var sales []Sale
	if err := idx.getList(salesKey(kittyID), &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// ---- event handlers ----

func (idx *Indexer) onKittyCreated(ev events.Event) {
	child, ok := asUint32(ev.Data["kitty_id"])
	if !ok {
		return
	}
	parents, _ := ev.Data["parents"].([]uint32)
	for _, p := range parents {
		var ids []uint32
		if err := idx.getList(childrenKey(p), &ids); err != nil {
			log.Printf("[indexer] children of %d: %v", p, err)
			continue
		}
		if err := idx.putList(childrenKey(p), append(ids, child)); err != nil {
			log.Printf("[indexer] children of %d: %v", p, err)
		}
	}
}

func (idx *Indexer) onKittySold(ev events.Event) {
	id, ok := asUint32(ev.Data["kitty_id"])
	if !ok {
		return
	}
	sale := Sale{KittyID: id, TxID: ev.TxID, BlockHeight: ev.BlockHeight}
	sale.Seller, _ = ev.Data["seller"].(string)
	sale.Buyer, _ = ev.Data["buyer"].(string)
	sale.Price, _ = ev.Data["price"].(uint64)
	if sale.Seller == "" || sale.Buyer == "" {
		return
	}
	var sales []Sale
	if err := idx.getList(salesKey(id), &sales); err != nil {
		log.Printf("[indexer] sales of %d: %v", id, err)
		return
	}
	if err := idx.putList(salesKey(id), append(sales, sale)); err != nil {
		log.Printf("[indexer] sales of %d: %v", id, err)
	}
}

// ---- list helpers ----

func childrenKey(id uint32) string { return fmt.Sprintf("%s%010d", prefixChildren, id) }
func salesKey(id uint32) string    { return fmt.Sprintf("%s%010d", prefixSales, id) }

func asUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case float64: // events decoded from JSON
		if n < 0 || n > float64(^uint32(0)) {
			return 0, false
		}
		return uint32(n), true
	}
	return 0, false
}

func (idx *Indexer) getList(key string, out any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil // empty list
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func (idx *Indexer) putList(key string, list any) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
