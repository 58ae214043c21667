// Package streambind binds application stream-processing functions to a
// partitioned message broker. The consume side turns broker partitions into
// backpressure-aware record streams with explicit control over offset
// commits; the produce side turns outgoing records into acknowledged,
// correlated sends.
//
// A Binding is created per destination. Its commit mode is fixed at
// creation: Manual hands each record a one-shot disposition handle,
// AtMostOnce advances offsets before delivery, AutoCommit advances them
// only after a whole poll batch has been processed.
package streambind
