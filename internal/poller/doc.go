// Package poller samples subscription quota on gateway endpoints.
//
// Each cycle dials every endpoint the source reports, runs one
// query_subscription, and records the remaining and used quota. Dials run
// with bounded concurrency and a per-endpoint timeout. Failures are logged
// and counted; they never stop the loop.
package poller
