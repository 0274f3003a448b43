package route

import "sync/atomic"

// Stats counts requests and failures per backend. All methods are safe for
// concurrent use.
type Stats struct {
	localRequests atomic.Int64
	localFailures atomic.Int64
	cloudRequests atomic.Int64
	cloudFailures atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	LocalRequests int64
	LocalFailures int64
	CloudRequests int64
	CloudFailures int64
}

func (s *Stats) addRequest(backend string) {
	if backend == SideCloud {
		s.cloudRequests.Add(1)
		return
	}
	s.localRequests.Add(1)
}

func (s *Stats) addFailure(backend string) {
	if backend == SideCloud {
		s.cloudFailures.Add(1)
		return
	}
	s.localFailures.Add(1)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		LocalRequests: s.localRequests.Load(),
		LocalFailures: s.localFailures.Load(),
		CloudRequests: s.cloudRequests.Load(),
		CloudFailures: s.cloudFailures.Load(),
	}
}
