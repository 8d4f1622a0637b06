package scheduler

// Package scheduler provides scheduled job management for the crypto pulse
// backend. It handles:
// - Periodic cryptocurrency listings refreshes
// - Daily fear and greed index updates
// - Daily altcoin season index updates
//
// Each feed runs on its own timer and a feed never overlaps itself: a tick
// that arrives while the previous run is still in flight is skipped.
//
// The main scheduler is implemented in jobs.go
