// Package worker implements the Worker Unit.
//
// A Unit owns a contiguous range of gateway endpoints. It opens one
// connection session per endpoint, in order, until the range is exhausted or
// no symbols remain pending, then signals readiness once and holds its
// sessions open until its context is cancelled.
package worker
