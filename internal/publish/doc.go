// Package publish forwards aggregated ticks to message systems.
//
// Each publisher is an aggregator.Handler:
//   - KafkaPublisher writes to one topic, keyed by symbol
//   - RedisPublisher caches the latest tick per symbol and publishes it on a channel
//   - NATSPublisher publishes on a per-symbol subject
//
// All of them send the JSON Payload encoding of a tick.
package publish
