package main

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/miladsoleymani/crosslink/core"
)

// stats counts handled deliveries per message type.
type stats struct {
	mu     sync.Mutex
	byType map[core.MessageType]*typeStats
}

type typeStats struct {
	handled int
	failed  int
	total   time.Duration
}

func newStats() *stats {
	return &stats{byType: make(map[core.MessageType]*typeStats)}
}

func (s *stats) MessageHandled(t core.MessageType, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.byType[t]
	if !ok {
		ts = &typeStats{}
		s.byType[t] = ts
	}
	ts.handled++
	ts.total += d
	if err != nil {
		ts.failed++
	}
}

func (s *stats) snapshot() map[core.MessageType]typeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.MapValues(s.byType, func(ts *typeStats, _ core.MessageType) typeStats { return *ts })
}

func (s *stats) log(logger zerolog.Logger) {
	snap := s.snapshot()
	types := lo.Keys(snap)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		ts := snap[t]
		logger.Info().
			Str("type", string(t)).
			Int("handled", ts.handled).
			Int("failed", ts.failed).
			Dur("avg", ts.total/time.Duration(ts.handled)).
			Msg("Message stats")
	}
}
