// ABOUTME: Usage statistics for the caching resolver
// ABOUTME: Counters are atomics; Stats is an immutable snapshot with derived rates

package resolver

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of resolver activity.
type Stats struct {
	HitCount         uint64
	MissCount        uint64
	LoadSuccessCount uint64
	LoadAbsentCount  uint64
	LoadErrorCount   uint64
	// TotalLoadTime is time spent in downstream calls.
	TotalLoadTime time.Duration
	// TotalRequestTime is time spent in Authenticate, hits included.
	TotalRequestTime time.Duration
	EvictionCount    int64
}

// RequestCount is HitCount + MissCount.
func (s Stats) RequestCount() uint64 { return s.HitCount + s.MissCount }

// LoadCount is the number of downstream calls.
func (s Stats) LoadCount() uint64 {
	return s.LoadSuccessCount + s.LoadAbsentCount + s.LoadErrorCount
}

// HitRate is the fraction of requests served from cache; 1 when there were none.
func (s Stats) HitRate() float64 {
	n := s.RequestCount()
	if n == 0 {
		return 1
	}
	return float64(s.HitCount) / float64(n)
}

// MissRate is 1 - HitRate.
func (s Stats) MissRate() float64 {
	n := s.RequestCount()
	if n == 0 {
		return 0
	}
	return float64(s.MissCount) / float64(n)
}

// AverageLoadPenalty is the mean downstream latency.
func (s Stats) AverageLoadPenalty() time.Duration {
	n := s.LoadCount()
	if n == 0 {
		return 0
	}
	return s.TotalLoadTime / time.Duration(n)
}

type counters struct {
	hits        atomic.Uint64
	misses      atomic.Uint64
	loadSuccess atomic.Uint64
	loadAbsent  atomic.Uint64
	loadError   atomic.Uint64
	loadNanos   atomic.Int64
	reqNanos    atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		HitCount:         c.hits.Load(),
		MissCount:        c.misses.Load(),
		LoadSuccessCount: c.loadSuccess.Load(),
		LoadAbsentCount:  c.loadAbsent.Load(),
		LoadErrorCount:   c.loadError.Load(),
		TotalLoadTime:    time.Duration(c.loadNanos.Load()),
		TotalRequestTime: time.Duration(c.reqNanos.Load()),
	}
}
