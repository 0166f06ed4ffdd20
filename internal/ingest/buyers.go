package ingest

import (
	"github.com/axiomhq/hyperloglog"

	"nftstats/internal/domain"
)

// BuyerSketch estimates the number of distinct buyer addresses for a
// collection using a HyperLogLog sketch. The sketch is persisted on the
// collection's overview record and folded forward on every aggregation, so
// the estimate covers all sales the engine has ever counted without storing
// the address set.
type BuyerSketch struct {
	hll *hyperloglog.Sketch
}

// NewBuyerSketch creates an empty sketch.
func NewBuyerSketch() *BuyerSketch {
	return &BuyerSketch{hll: hyperloglog.New14()}
}

// BuyerSketchFrom restores a sketch from its stored bytes. Nil, empty, or
// corrupt bytes yield a fresh sketch; an estimate restart is preferable to
// failing the aggregation.
func BuyerSketchFrom(data []byte) *BuyerSketch {
	if len(data) == 0 {
		return NewBuyerSketch()
	}
	hll := hyperloglog.New14()
	if err := hll.UnmarshalBinary(data); err != nil {
		return NewBuyerSketch()
	}
	return &BuyerSketch{hll: hll}
}

// Insert adds one buyer address, normalized for the chain so casing never
// splits one buyer into two.
func (b *BuyerSketch) Insert(chain domain.Chain, addr string) {
	if addr == "" {
		return
	}
	b.hll.Insert([]byte(chain.NormalizeAddress(addr)))
}

// Estimate returns the approximate distinct-buyer count.
func (b *BuyerSketch) Estimate() uint64 {
	return b.hll.Estimate()
}

// Bytes serializes the sketch for storage.
func (b *BuyerSketch) Bytes() []byte {
	data, err := b.hll.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}
