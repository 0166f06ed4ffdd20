package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"nftstats/internal/domain"
)

const (
	testDay  = int64(1700006400) // 2023-11-15 00:00:00 UTC
	testTS   = testDay + 3600
	testSlug = "cryptopunks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blobPut struct {
	path        string
	contentType string
	body        string
}

// fakeWriter records uploads and can be told to fail.
type fakeWriter struct {
	mu   sync.Mutex
	puts []blobPut
	err  error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, blobPut{path: path, contentType: contentType, body: string(body)})
	return nil
}

func pricedSale(txn string, ts int64, priceBase float64, priceUSD int64) domain.PricedSale {
	return domain.PricedSale{
		RawSale: domain.RawSale{
			TxnHash:      txn,
			Timestamp:    ts,
			TokenAddress: domain.ChainEthereum.BaseTokenAddress(),
			Chain:        domain.ChainEthereum,
			Marketplace:  domain.MarketplaceOpenSea,
			Price:        priceBase,
			Buyer:        "0xbuyer" + txn,
			Seller:       "0xseller",
		},
		PriceBase: priceBase,
		PriceUSD:  priceUSD,
	}
}

func TestFlushWritesDayPartitionedObjects(t *testing.T) {
	ctx := context.Background()
	writer := &fakeWriter{}
	exp := NewExporter(writer, "exports/sales/", testLogger())
	exp.now = func() time.Time { return time.Unix(testTS, 0).UTC() }

	prevDay := testDay - domain.SecondsPerDay
	exp.Record(testSlug, []domain.PricedSale{
		pricedSale("0xaaa", testTS, 10, 20000),
		pricedSale("0xbbb", testTS+60, 5, 10000),
		pricedSale("0xccc", prevDay+100, 2, 4000),
	})

	if err := exp.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(writer.puts) != 2 {
		t.Fatalf("expected 2 objects (one per day), got %d", len(writer.puts))
	}

	byDay := make(map[string]blobPut)
	for _, put := range writer.puts {
		switch {
		case strings.Contains(put.path, "dt=2023-11-15"):
			byDay["today"] = put
		case strings.Contains(put.path, "dt=2023-11-14"):
			byDay["yesterday"] = put
		default:
			t.Errorf("unexpected object path %q", put.path)
		}
		if !strings.HasPrefix(put.path, "exports/sales/dt=") {
			t.Errorf("path %q does not carry the configured prefix", put.path)
		}
		if put.contentType != "application/x-ndjson" {
			t.Errorf("content type = %q", put.contentType)
		}
	}

	today := byDay["today"]
	if got := strings.Count(today.body, "\n"); got != 2 {
		t.Errorf("expected 2 JSONL lines for today, got %d", got)
	}
	if !strings.Contains(today.body, `"txn_hash":"0xaaa"`) {
		t.Errorf("today's object is missing a record: %s", today.body)
	}
	if got := strings.Count(byDay["yesterday"].body, "\n"); got != 1 {
		t.Errorf("expected 1 JSONL line for yesterday, got %d", got)
	}

	// The buffer is drained; a second flush uploads nothing.
	if err := exp.Flush(ctx); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if len(writer.puts) != 2 {
		t.Errorf("empty flush uploaded %d extra objects", len(writer.puts)-2)
	}
}

func TestFlushKeepsRecordsOnFailure(t *testing.T) {
	ctx := context.Background()
	writer := &fakeWriter{err: errors.New("bucket unavailable")}
	exp := NewExporter(writer, "exports/sales", testLogger())
	exp.now = func() time.Time { return time.Unix(testTS, 0).UTC() }

	exp.Record(testSlug, []domain.PricedSale{
		pricedSale("0xaaa", testTS, 10, 20000),
		pricedSale("0xbbb", testTS+60, 5, 10000),
	})

	if err := exp.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}

	// The failed day is retained and uploaded by the next flush.
	writer.mu.Lock()
	writer.err = nil
	writer.mu.Unlock()

	if err := exp.Flush(ctx); err != nil {
		t.Fatalf("retry flush failed: %v", err)
	}
	if len(writer.puts) != 1 {
		t.Fatalf("expected 1 object after retry, got %d", len(writer.puts))
	}
	if got := strings.Count(writer.puts[0].body, "\n"); got != 2 {
		t.Errorf("expected both buffered records after retry, got %d lines", got)
	}
}

func TestNextCronTime(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			"daily schedule later today",
			"30 0 * * *",
			time.Date(2023, 11, 15, 0, 10, 0, 0, time.UTC),
			time.Date(2023, 11, 15, 0, 30, 0, 0, time.UTC),
		},
		{
			"daily schedule rolls to tomorrow",
			"30 0 * * *",
			time.Date(2023, 11, 15, 10, 0, 0, 0, time.UTC),
			time.Date(2023, 11, 16, 0, 30, 0, 0, time.UTC),
		},
		{
			"minute list",
			"0,30 * * * *",
			time.Date(2023, 11, 15, 10, 1, 0, 0, time.UTC),
			time.Date(2023, 11, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			"exact minute is skipped for the next match",
			"30 0 * * *",
			time.Date(2023, 11, 15, 0, 30, 0, 0, time.UTC),
			time.Date(2023, 11, 16, 0, 30, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		got, err := nextCronTime(tt.expr, tt.after)
		if err != nil {
			t.Errorf("%s: nextCronTime failed: %v", tt.name, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("%s: nextCronTime = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestParseCronRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "30 0 * *", "30 0 * * * *", "x 0 * * *"} {
		if _, err := parseCron(expr); err == nil {
			t.Errorf("expected parse error for %q", expr)
		}
	}
}
