// Package collector implements the bounded FIFO retirement queue a
// gorilla.Encoder defers segment frees through: collectSegment enqueues an
// address instead of freeing it inline, and a single maintenance goroutine
// periodically calls FreeCollected to reclaim entries old enough to have
// cleared the configured delay.
package collector
