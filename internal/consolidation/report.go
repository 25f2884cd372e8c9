package consolidation

import "time"

// Report mirrors the retrieved ConsolidationReport dataclass: one run's
// inputs, outputs, and any non-fatal errors collected along the way.
type Report struct {
	ID                string
	TimeHorizon       string
	StartTime         time.Time
	EndTime           time.Time
	MemoriesProcessed int
	ClustersCreated   int
	AssociationsFound int
	MemoriesCompressed int
	MemoriesArchived  int
	MemoriesDeleted   int
	Errors            []string
}

// DurationMS reports the run's wall-clock duration in milliseconds.
func (r Report) DurationMS() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Stats accumulates lifetime counters across every consolidate() call,
// mirroring consolidator.py's consolidation_stats dict.
type Stats struct {
	TotalRuns               int
	SuccessfulRuns          int
	TotalMemoriesProcessed  int
	TotalAssociationsCreated int
	TotalClustersCreated    int
	TotalMemoriesCompressed int
	TotalMemoriesArchived   int
}

func (s *Stats) record(r Report) {
	s.TotalRuns++
	if len(r.Errors) == 0 {
		s.SuccessfulRuns++
	}
	s.TotalMemoriesProcessed += r.MemoriesProcessed
	s.TotalAssociationsCreated += r.AssociationsFound
	s.TotalClustersCreated += r.ClustersCreated
	s.TotalMemoriesCompressed += r.MemoriesCompressed
	s.TotalMemoriesArchived += r.MemoriesArchived + r.MemoriesDeleted
}
