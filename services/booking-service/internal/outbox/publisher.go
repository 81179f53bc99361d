package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/services/booking-service/internal/metrics"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type recordStore interface {
	FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error
}

type Publisher struct {
	pool      txBeginner
	repo      recordStore
	sink      Sink
	logger    *slog.Logger
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, sink Sink, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	p := &Publisher{
		repo:      repo,
		logger:    logger,
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
	if pool != nil {
		p.pool = pool
	}
	if sink != nil {
		p.sink = sink
	}
	return p
}

// Run relays unpublished events until ctx is cancelled. Delivery is at-least-once:
// a batch is marked published only after the sink accepted all of it.
func (p *Publisher) Run(ctx context.Context) {
	if p.sink == nil || p.pool == nil {
		p.logger.Warn("outbox publisher disabled (no event sink configured)")
		return
	}
	defer func() {
		if err := p.sink.Close(); err != nil {
			p.logger.Warn("outbox sink close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				n, err := p.publishBatch(ctx)
				if err != nil {
					p.logger.Error("outbox publish failed", "err", err)
					break
				}
				// Drain backlog without waiting for the next tick.
				if n < p.batchSize || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (p *Publisher) publishBatch(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	if err := p.sink.Publish(ctx, records); err != nil {
		return 0, err
	}

	ids := make([]int64, 0, len(records))
	counts := map[string]int{}
	for _, r := range records {
		ids = append(ids, r.ID)
		counts[r.EventType]++
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	for eventType, n := range counts {
		metrics.IncOutboxPublished(eventType, n)
	}
	return len(records), nil
}
