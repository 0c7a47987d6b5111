package storage

// DB is the generic key-value store interface. Get returns core.ErrNotFound
// for a missing key.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix in ascending key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Pair is one key-value entry.
type Pair struct{ Key, Value []byte }

// NewSliceIterator walks pairs that are already sorted by key. A non-nil
// err is reported by Error after the pairs are exhausted.
func NewSliceIterator(pairs []Pair, err error) Iterator {
	return &sliceIter{pairs: pairs, idx: -1, err: err}
}

type sliceIter struct {
	pairs []Pair
	idx   int
	err   error
}

func (it *sliceIter) Next() bool    { it.idx++; return it.idx < len(it.pairs) }
func (it *sliceIter) Key() []byte   { return it.pairs[it.idx].Key }
func (it *sliceIter) Value() []byte { return it.pairs[it.idx].Value }
func (it *sliceIter) Release()      {}
func (it *sliceIter) Error() error  { return it.err }

// Batch buffers writes and applies them atomically on Write.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Reset()
	Write() error
}

// Engines accepted by Open.
const (
	EngineLevelDB = "leveldb"
	EngineBolt    = "bolt"
)
