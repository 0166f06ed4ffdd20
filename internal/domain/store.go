package domain

import "context"

// Item is one stored record. Numbers decode as float64, flags as bool,
// binary attributes as []byte.
type Item map[string]any

// Key returns the item's composite key.
func (it Item) Key() Key {
	return Key{PK: it.String(AttrPK), SK: it.String(AttrSK)}
}

// String returns the named attribute as a string, or "" when absent.
func (it Item) String(field string) string {
	s, _ := it[field].(string)
	return s
}

// Float returns the named attribute as a float64, or 0 when absent.
func (it Item) Float(field string) float64 {
	switch v := it[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the named attribute as a bool, or false when absent.
func (it Item) Bool(field string) bool {
	b, _ := it[field].(bool)
	return b
}

// Bytes returns the named attribute as raw bytes, or nil when absent.
func (it Item) Bytes(field string) []byte {
	b, _ := it[field].([]byte)
	return b
}

// QueryOpts narrows a partition query.
type QueryOpts struct {
	SKPrefix   string
	Descending bool
	Limit      int
}

// Update is one item mutation inside a transaction. Add increments numeric
// fields (missing fields start at zero), Set overwrites fields. When NotTrue
// names a flag field, the whole transaction fails with ErrConditionFailed if
// that flag is already true; when NotExists is set, it fails if the item
// already exists.
type Update struct {
	Key       Key
	Add       map[string]float64
	Set       map[string]any
	NotTrue   string
	NotExists bool
}

// BatchPutLimit is the maximum number of items per underlying batch write
// call; Store implementations chunk larger batches.
const BatchPutLimit = 25

// TransactItemLimit is the maximum number of updates in one transaction,
// matching the DynamoDB TransactWriteItems cap. Unlike batch puts,
// transactions cannot be chunked without losing atomicity, so callers must
// size their transactions under the limit.
const TransactItemLimit = 100

// Store is the persistent key-value store consumed by the engine: composite
// string keys, prefix queries, atomic numeric increments, and multi-item
// atomic transactions. All engine writes go through it.
type Store interface {
	// GetItem returns the item at key, or ErrNotFound.
	GetItem(ctx context.Context, key Key) (Item, error)
	// Query returns the items of one partition, optionally filtered by sort
	// key prefix, ordered by sort key.
	Query(ctx context.Context, pk string, opts QueryOpts) ([]Item, error)
	// PutItem stores an item, overwriting any existing item with the same key.
	PutItem(ctx context.Context, item Item) error
	// BatchPutItems stores items in chunks of at most BatchPutLimit. A chunk
	// failure does not roll back previously written chunks.
	BatchPutItems(ctx context.Context, items []Item) error
	// AtomicAdd increments numeric fields on one item, creating the item or
	// fields as needed.
	AtomicAdd(ctx context.Context, key Key, deltas map[string]float64) error
	// TransactUpdate applies all updates atomically; none are applied if any
	// update (or condition) fails. Condition failures surface as
	// ErrConditionFailed. At most TransactItemLimit updates per call.
	TransactUpdate(ctx context.Context, updates []Update) error
}
