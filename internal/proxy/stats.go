package proxy

import "sync/atomic"

// Stats counts connections. totalAccepted is bumped by the accept loop
// before the connection is dispatched and current by the handler, so
// totalAccepted >= current always holds.
type Stats struct {
	totalAccepted atomic.Int64
	current       atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalAccepted int64
	Current       int64
}

func (s *Stats) accepted() { s.totalAccepted.Add(1) }

func (s *Stats) begin() { s.current.Add(1) }

func (s *Stats) end() {
	for {
		n := s.current.Load()
		if n <= 0 || s.current.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// TotalAccepted returns the number of connections accepted so far.
func (s *Stats) TotalAccepted() int64 { return s.totalAccepted.Load() }

// Current returns the number of connections being handled.
func (s *Stats) Current() int64 { return s.current.Load() }

// Snapshot reads current before totalAccepted so the result keeps
// TotalAccepted >= Current even while connections come and go.
func (s *Stats) Snapshot() StatsSnapshot {
	cur := s.current.Load()
	return StatsSnapshot{TotalAccepted: s.totalAccepted.Load(), Current: cur}
}
