// Package database provides the TimescaleDB connection pool used by the tick
// writer, and the DDL for the ticks hypertable.
package database
