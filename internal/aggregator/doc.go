// Package aggregator implements the Event Channel and the Event Aggregator.
//
// Every gateway connection session pushes ticks into one shared Buffer
// without blocking. A single Aggregator goroutine drains the buffer and hands
// each tick to the registered Handler. Handler failures are counted and
// dropped; they never stop aggregation.
package aggregator
