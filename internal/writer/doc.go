// Package writer implements the TimescaleDB batch writer for ticks.
//
// TickWriter is an aggregator.Handler: HandleTick queues the tick without
// blocking and a background loop inserts batches with pgx.Batch, flushing
// on size or interval. Inserts are append-only; a repeated tick (same
// symbol, sequence and exchange time) is counted as a conflict.
// Prices are stored as integer hundred-thousandths for 5-digit sub-penny precision.
package writer
