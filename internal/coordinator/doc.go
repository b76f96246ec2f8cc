// Package coordinator runs the full subscription pipeline.
//
// Start opens a reference connection to the first endpoint, discovers the
// symbol universe when none was supplied, measures the clock offset, then
// spawns worker units over contiguous endpoint ranges one at a time. Each
// unit must signal readiness before the next is spawned. A unit that dies
// first has its claims undone by restoring the ledger snapshot taken just
// before it was spawned, and no further units are spawned.
//
// Close cancels the shared context, which every unit observes, and joins
// the units and the event aggregator with a bounded wait.
package coordinator
