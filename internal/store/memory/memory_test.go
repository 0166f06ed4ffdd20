package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"nftstats/internal/domain"
)

func TestGetItemNotFound(t *testing.T) {
	s := New()
	_, err := s.GetItem(context.Background(), domain.Key{PK: "collection#x", SK: "overview"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPutAndGetItem(t *testing.T) {
	ctx := context.Background()
	s := New()

	item := domain.Item{
		domain.AttrPK: "collection#x",
		domain.AttrSK: "overview",
		"volume":      10.0,
	}
	if err := s.PutItem(ctx, item); err != nil {
		t.Fatalf("PutItem failed: %v", err)
	}

	got, err := s.GetItem(ctx, item.Key())
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Float("volume") != 10.0 {
		t.Errorf("expected volume 10, got %v", got.Float("volume"))
	}

	// Returned items are copies; mutations must not leak into the store.
	got["volume"] = 99.0
	again, err := s.GetItem(ctx, item.Key())
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if again.Float("volume") != 10.0 {
		t.Errorf("store item mutated through returned copy: volume = %v", again.Float("volume"))
	}
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s := New()

	for _, sk := range []string{"chain#ethereum", "marketplace#opensea", "overview"} {
		if err := s.PutItem(ctx, domain.Item{domain.AttrPK: "collection#x", domain.AttrSK: sk}); err != nil {
			t.Fatalf("PutItem failed: %v", err)
		}
	}
	if err := s.PutItem(ctx, domain.Item{domain.AttrPK: "collection#y", domain.AttrSK: "overview"}); err != nil {
		t.Fatalf("PutItem failed: %v", err)
	}

	all, err := s.Query(ctx, "collection#x", domain.QueryOpts{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 items, got %d", len(all))
	}
	if all[0].String(domain.AttrSK) != "chain#ethereum" {
		t.Errorf("expected ascending sort key order, got %q first", all[0].String(domain.AttrSK))
	}

	prefixed, err := s.Query(ctx, "collection#x", domain.QueryOpts{SKPrefix: "marketplace#"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(prefixed) != 1 || prefixed[0].String(domain.AttrSK) != "marketplace#opensea" {
		t.Errorf("unexpected prefix query result: %v", prefixed)
	}

	desc, err := s.Query(ctx, "collection#x", domain.QueryOpts{Descending: true, Limit: 1})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(desc) != 1 || desc[0].String(domain.AttrSK) != "overview" {
		t.Errorf("unexpected descending limited result: %v", desc)
	}
}

func TestBatchPutItemsChunks(t *testing.T) {
	ctx := context.Background()
	s := New()

	items := make([]domain.Item, 0, domain.BatchPutLimit*2+3)
	for i := 0; i < cap(items); i++ {
		items = append(items, domain.Item{
			domain.AttrPK: "sale#x#opensea",
			domain.AttrSK: fmt.Sprintf("%d#txnHash#0x%02d", 1700000000+i, i),
		})
	}
	if err := s.BatchPutItems(ctx, items); err != nil {
		t.Fatalf("BatchPutItems failed: %v", err)
	}
	if s.Len() != len(items) {
		t.Errorf("expected %d items stored, got %d", len(items), s.Len())
	}
}

func TestAtomicAdd(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.Key{PK: "globalStats", SK: "1700006400"}

	if err := s.AtomicAdd(ctx, key, map[string]float64{"volume": 2.5}); err != nil {
		t.Fatalf("AtomicAdd failed: %v", err)
	}
	if err := s.AtomicAdd(ctx, key, map[string]float64{"volume": 1.5, "volumeUSD": 100}); err != nil {
		t.Fatalf("AtomicAdd failed: %v", err)
	}

	got, err := s.GetItem(ctx, key)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if got.Float("volume") != 4.0 {
		t.Errorf("expected volume 4, got %v", got.Float("volume"))
	}
	if got.Float("volumeUSD") != 100 {
		t.Errorf("expected volumeUSD 100, got %v", got.Float("volumeUSD"))
	}
}

func TestTransactUpdateAppliesAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := domain.Key{PK: "collection#x", SK: "overview"}
	b := domain.Key{PK: "collection#x", SK: "chain#ethereum"}

	err := s.TransactUpdate(ctx, []domain.Update{
		{Key: a, Add: map[string]float64{"totalVolume": 5}},
		{Key: b, Add: map[string]float64{"totalVolume": 5}, Set: map[string]any{"updatedAt": 1700000000.0}},
	})
	if err != nil {
		t.Fatalf("TransactUpdate failed: %v", err)
	}

	gotB, err := s.GetItem(ctx, b)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if gotB.Float("totalVolume") != 5 || gotB.Float("updatedAt") != 1700000000 {
		t.Errorf("unexpected item after transaction: %v", gotB)
	}

	// A failed NotExists condition must leave every target untouched.
	err = s.TransactUpdate(ctx, []domain.Update{
		{Key: a, Add: map[string]float64{"totalVolume": 100}},
		{Key: b, NotExists: true, Set: map[string]any{"fromSales": true}},
	})
	if !errors.Is(err, domain.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	gotA, err := s.GetItem(ctx, a)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if gotA.Float("totalVolume") != 5 {
		t.Errorf("failed transaction applied a write: totalVolume = %v", gotA.Float("totalVolume"))
	}
}

func TestTransactUpdateRejectsOversizedTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()

	updates := make([]domain.Update, 0, domain.TransactItemLimit+1)
	for i := 0; i < cap(updates); i++ {
		updates = append(updates, domain.Update{
			Key: domain.Key{PK: "globalStats", SK: fmt.Sprintf("%d", 1700006400+int64(i)*86400)},
			Add: map[string]float64{"volume": 1},
		})
	}

	if err := s.TransactUpdate(ctx, updates); err == nil {
		t.Fatal("expected oversized transaction to be rejected")
	}
	if s.Len() != 0 {
		t.Errorf("rejected transaction applied %d writes", s.Len())
	}
}

func TestTransactUpdateNotTrue(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := domain.Key{PK: "collection#x", SK: "marketplace#opensea"}

	// NotTrue passes when the item does not exist or the flag is unset.
	err := s.TransactUpdate(ctx, []domain.Update{
		{Key: key, NotTrue: "fromSales", Set: map[string]any{"fromSales": true}},
	})
	if err != nil {
		t.Fatalf("TransactUpdate failed: %v", err)
	}

	// Once the flag is true, the same conditional write must fail.
	err = s.TransactUpdate(ctx, []domain.Update{
		{Key: key, NotTrue: "fromSales", Set: map[string]any{"totalVolume": 1.0}},
	})
	if !errors.Is(err, domain.ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}
