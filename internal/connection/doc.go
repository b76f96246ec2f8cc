// Package connection owns single upstream gateway connections.
//
// A Session is opened against one endpoint and, before returning:
//   - dials the gateway, retrying at a fixed delay
//   - registers the tick callback that feeds the shared event buffer
//   - reconciles symbols already active on the account with the ledger
//   - claims a quota-safe batch from the ledger and subscribes it
//
// Every upstream RPC is retried until it succeeds, the context ends, or the
// policy's attempt ceiling is reached.
package connection
