package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"nftstats/internal/notify"
)

// Feed is a long-running sale event source, e.g. the OpenSea stream.
type Feed interface {
	Run(ctx context.Context) error
	Close()
}

// Orchestrator manages all pipeline goroutines: one ingest loop per
// marketplace runner, the optional live feed, and the optional export cron.
type Orchestrator struct {
	runners      []*Runner
	feed         Feed
	exporter     *Exporter
	notifier     *notify.Notifier
	syncInterval time.Duration
	exportCron   string
	logger       *slog.Logger
}

// NewOrchestrator creates an Orchestrator. feed, exporter, and notifier may
// be nil.
func NewOrchestrator(
	runners []*Runner,
	feed Feed,
	exporter *Exporter,
	notifier *notify.Notifier,
	syncInterval time.Duration,
	exportCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		runners:      runners,
		feed:         feed,
		exporter:     exporter,
		notifier:     notifier,
		syncInterval: syncInterval,
		exportCron:   exportCron,
		logger:       logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("runners", len(o.runners)),
		slog.Duration("sync_interval", o.syncInterval),
		slog.Bool("feed", o.feed != nil),
		slog.Bool("exporter", o.exporter != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, runner := range o.runners {
		g.Go(func() error {
			err := runner.RunLoop(ctx, o.syncInterval)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("runner: %w", err)
		})
	}

	if o.feed != nil {
		g.Go(func() error {
			err := o.feed.Run(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			if err != nil {
				return fmt.Errorf("feed: %w", err)
			}
			return nil
		})
	}

	if o.exporter != nil && o.exportCron != "" {
		g.Go(func() error {
			err := o.exporter.RunCron(ctx, o.exportCron)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("exporter: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		if o.notifier != nil {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if nerr := o.notifier.Notify(notifyCtx, notify.EventIngestFailure, "Ingest pipeline stopped", err.Error()); nerr != nil {
				o.logger.Error("failure notification not delivered", slog.String("error", nerr.Error()))
			}
			cancel()
		}
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
