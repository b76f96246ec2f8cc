package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the initial capacity of the input queue.
	BufferSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 1 * time.Second,
		BufferSize:    10000,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// batchSender is the subset of *pgxpool.Pool the writer needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tickRow represents a row to be inserted into the ticks table.
type tickRow struct {
	Symbol     string
	Market     string
	ExchangeTs int64 // Microseconds, 0 if unknown
	LocalTs    int64 // Microseconds, exchange time on the local clock
	ReceivedAt int64 // Microseconds
	Price      int64 // Hundred-thousandths
	Volume     int64
	Turnover   int64 // Hundred-thousandths
	Direction  string
	Sequence   int64
	TickType   string
	Endpoint   string
}

// decimalToInternal converts a decimal to integer hundred-thousandths.
func decimalToInternal(d decimal.Decimal) int64 {
	return d.Shift(5).Round(0).IntPart()
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}
