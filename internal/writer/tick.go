package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/fulltick/internal/aggregator"
	"github.com/rickgao/fulltick/internal/model"
)

const insertTickSQL = `
	INSERT INTO ticks (symbol, market, exchange_ts, local_ts, received_at, price, volume, turnover, direction, sequence, tick_type, endpoint)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (symbol, sequence, exchange_ts) DO NOTHING
`

// TickWriter queues aggregated ticks and writes them to the ticks table.
type TickWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *aggregator.Buffer[model.Tick]

	// Database
	db batchSender

	// Batching
	batch       []tickRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewTickWriter creates a new TickWriter. db is usually a *pgxpool.Pool.
func NewTickWriter(cfg WriterConfig, db batchSender, logger *slog.Logger) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &TickWriter{
		cfg:    cfg,
		input:  aggregator.NewBuffer[model.Tick](cfg.BufferSize),
		db:     db,
		logger: logger.With("writer", "ticks"),
		batch:  make([]tickRow, 0, cfg.BatchSize),
		ctx:    context.Background(),
	}
}

// HandleTick queues a tick for the next batch. It never blocks.
func (w *TickWriter) HandleTick(_ context.Context, tick model.Tick) error {
	if !w.input.Send(tick) {
		return aggregator.ErrBufferClosed
	}
	return nil
}

// Start begins consuming ticks and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued ticks, flushes, and shuts down the writer.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("tick writer stopped")
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out")
		return ctx.Err()
	}

	// Final drain and flush, bounded by the caller's context.
	w.input.Close()
	for _, tick := range w.input.DrainTo(0) {
		w.appendRow(w.transform(tick))
	}
	w.flushWith(ctx)

	return nil
}

// Stats returns current metrics.
func (w *TickWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *TickWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			tick, ok := w.input.TryReceive()
			if !ok {
				// Buffer empty, wait a bit before trying again
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			if w.appendRow(w.transform(tick)) {
				w.flush()
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *TickWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// appendRow adds a row and reports whether the batch is full.
func (w *TickWriter) appendRow(row tickRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a tick to a tickRow.
func (w *TickWriter) transform(tick model.Tick) tickRow {
	return tickRow{
		Symbol:     tick.Symbol.String(),
		Market:     string(tick.Symbol.Market),
		ExchangeTs: unixMicro(tick.Time),
		LocalTs:    unixMicro(tick.LocalTime),
		ReceivedAt: unixMicro(tick.ReceivedAt),
		Price:      decimalToInternal(tick.Price),
		Volume:     tick.Volume,
		Turnover:   decimalToInternal(tick.Turnover),
		Direction:  tick.Direction,
		Sequence:   tick.Sequence,
		TickType:   tick.Type,
		Endpoint:   tick.Endpoint.String(),
	}
}

func (w *TickWriter) flush() {
	w.flushWith(w.ctx)
}

// flushWith writes the current batch to the database.
func (w *TickWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TickWriter) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTickSQL,
			r.Symbol, r.Market, r.ExchangeTs, r.LocalTs, r.ReceivedAt,
			r.Price, r.Volume, r.Turnover, r.Direction, r.Sequence, r.TickType, r.Endpoint,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
