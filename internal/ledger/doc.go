// Package ledger tracks which symbols of the universe are still pending
// subscription and which have already been subscribed.
//
// The ledger is shared by every worker unit. Claims are atomic: a symbol is
// handed to at most one caller. Once marked subscribed a symbol only returns
// to the pending set through an explicit Release or Restore.
package ledger
