// Package model defines shared data types used across the tick subscriber.
//
// Conventions:
//   - Symbols: market prefix plus code, rendered as "US.AAPL"
//   - Prices: decimal.Decimal as received from the gateway
//   - Timestamps: time.Time; upstream times are adjusted by the measured
//     clock offset before they reach handlers
package model
