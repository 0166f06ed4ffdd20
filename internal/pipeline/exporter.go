package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"nftstats/internal/domain"
)

// exportRecord is one sale row in the JSONL export objects.
type exportRecord struct {
	Slug         string  `json:"slug"`
	Marketplace  string  `json:"marketplace"`
	Chain        string  `json:"chain"`
	TxnHash      string  `json:"txn_hash"`
	Timestamp    int64   `json:"timestamp"`
	TokenAddress string  `json:"token_address"`
	Price        float64 `json:"price"`
	PriceBase    float64 `json:"price_base"`
	PriceUSD     int64   `json:"price_usd"`
	Buyer        string  `json:"buyer"`
	Seller       string  `json:"seller"`
	Excluded     bool    `json:"excluded"`
}

// Exporter buffers ingested sales and periodically flushes them to object
// storage as day-partitioned JSONL. Export is a copy, not a migration: sale
// records stay in the store.
type Exporter struct {
	writer domain.BlobWriter
	prefix string
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int64][]exportRecord // keyed by UTC day bucket

	now func() time.Time
}

// NewExporter creates an Exporter writing under the given key prefix.
func NewExporter(writer domain.BlobWriter, prefix string, logger *slog.Logger) *Exporter {
	return &Exporter{
		writer:  writer,
		prefix:  strings.TrimSuffix(prefix, "/"),
		logger:  logger.With(slog.String("component", "exporter")),
		pending: make(map[int64][]exportRecord),
		now:     time.Now,
	}
}

// Record buffers a batch of priced sales for the next flush.
func (e *Exporter) Record(slug string, sales []domain.PricedSale) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sale := range sales {
		day := domain.DayBucket(sale.Timestamp)
		e.pending[day] = append(e.pending[day], exportRecord{
			Slug:         slug,
			Marketplace:  string(sale.Marketplace),
			Chain:        string(sale.Chain),
			TxnHash:      sale.TxnHash,
			Timestamp:    sale.Timestamp,
			TokenAddress: sale.TokenAddress,
			Price:        sale.Price,
			PriceBase:    sale.PriceBase,
			PriceUSD:     sale.PriceUSD,
			Buyer:        sale.Buyer,
			Seller:       sale.Seller,
			Excluded:     sale.Excluded,
		})
	}
}

// Flush uploads every buffered day as its own JSONL object. Days that upload
// successfully are dropped from the buffer; failed days are kept for the next
// flush.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	batches := e.pending
	e.pending = make(map[int64][]exportRecord)
	e.mu.Unlock()

	var firstErr error
	for day, records := range batches {
		if err := e.flushDay(ctx, day, records); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			e.mu.Lock()
			e.pending[day] = append(records, e.pending[day]...)
			e.mu.Unlock()
			continue
		}
		e.logger.InfoContext(ctx, "exported sales",
			slog.String("day", dayLabel(day)),
			slog.Int("records", len(records)),
		)
	}
	return firstErr
}

func (e *Exporter) flushDay(ctx context.Context, day int64, records []exportRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("pipeline: encode export record: %w", err)
		}
	}

	path := fmt.Sprintf("%s/dt=%s/sales-%d.jsonl", e.prefix, dayLabel(day), e.now().UnixNano())
	if err := e.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return fmt.Errorf("pipeline: upload export %s: %w", path, err)
	}
	return nil
}

func dayLabel(day int64) string {
	return time.Unix(day, 0).UTC().Format("2006-01-02")
}

// RunCron flushes on a cron schedule until the context is cancelled. It
// supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week"
//
// Example: "30 0 * * *" flushes daily at 00:30 UTC.
func (e *Exporter) RunCron(ctx context.Context, cronExpr string) error {
	e.logger.Info("exporter cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, e.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: parse cron expression %q: %w", cronExpr, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			// Best effort final flush so a clean shutdown does not strand
			// buffered sales.
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := e.Flush(flushCtx); err != nil {
				e.logger.Error("final export flush failed", slog.String("error", err.Error()))
			}
			cancel()
			e.logger.Info("exporter cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := e.Flush(ctx); err != nil {
				e.logger.Error("export flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField represents a parsed cron field that can match against a value.
type cronField struct {
	wildcard bool
	values   []int
}

// matches returns true if the given value matches this cron field.
func (f cronField) matches(val int) bool {
	if f.wildcard {
		return true
	}
	for _, v := range f.values {
		if v == val {
			return true
		}
	}
	return false
}

// parseCronField parses a single cron field (e.g. "0", "*", "1,15").
func parseCronField(field string) (cronField, error) {
	if field == "*" {
		return cronField{wildcard: true}, nil
	}

	parts := strings.Split(field, ",")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return cronField{}, fmt.Errorf("invalid cron field value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return cronField{values: values}, nil
}

// parsedCron holds five parsed cron fields.
type parsedCron struct {
	minute     cronField
	hour       cronField
	dayOfMonth cronField
	month      cronField
	dayOfWeek  cronField
}

// matchesTime returns true if the given time matches all five cron fields.
func (c parsedCron) matchesTime(t time.Time) bool {
	return c.minute.matches(t.Minute()) &&
		c.hour.matches(t.Hour()) &&
		c.dayOfMonth.matches(t.Day()) &&
		c.month.matches(int(t.Month())) &&
		c.dayOfWeek.matches(int(t.Weekday()))
}

// parseCron parses a 5-field cron expression into a parsedCron struct.
func parseCron(expr string) (parsedCron, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return parsedCron{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}

	minute, err := parseCronField(fields[0])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing minute field: %w", err)
	}
	hour, err := parseCronField(fields[1])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing hour field: %w", err)
	}
	dayOfMonth, err := parseCronField(fields[2])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-month field: %w", err)
	}
	month, err := parseCronField(fields[3])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing month field: %w", err)
	}
	dayOfWeek, err := parseCronField(fields[4])
	if err != nil {
		return parsedCron{}, fmt.Errorf("parsing day-of-week field: %w", err)
	}

	return parsedCron{
		minute:     minute,
		hour:       hour,
		dayOfMonth: dayOfMonth,
		month:      month,
		dayOfWeek:  dayOfWeek,
	}, nil
}

// nextCronTime calculates the next time after 'after' that matches the given
// cron expression. It searches minute-by-minute up to one year ahead.
func nextCronTime(cronExpr string, after time.Time) (time.Time, error) {
	cron, err := parseCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}

	// Start from the next minute boundary.
	candidate := after.Truncate(time.Minute).Add(time.Minute)

	// Search up to one year ahead to avoid infinite loops.
	limit := after.Add(366 * 24 * time.Hour)

	for candidate.Before(limit) {
		if cron.matchesTime(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(time.Minute)
	}

	return time.Time{}, fmt.Errorf("no matching cron time found within one year for %q", cronExpr)
}
