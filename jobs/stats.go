package jobs

import "time"

// RunStats carries a job's cumulative and last-cycle counters plus live
// progress fields. Progress, Total and CurrentItem are advisory UI hints that
// are only meaningful while the job is processing; they are not persisted per
// item. Persisted writes happen at defined checkpoints (cycle end), so a crash
// mid-cycle loses the cycle's partial progress but never corrupts stats.
type RunStats struct {
	TotalRuns         int64      `json:"totalRuns"`
	TotalSucceeded    int64      `json:"totalSucceeded"`
	TotalFailed       int64      `json:"totalFailed"`
	LastRunSucceeded  int64      `json:"lastRunSucceeded"`
	LastRunFailed     int64      `json:"lastRunFailed"`
	LastRunAt         *time.Time `json:"lastRunAt,omitempty"`
	LastRunDurationMs int64      `json:"lastRunDurationMs"`

	// Live progress, meaningful only while processing
	Progress    int    `json:"progress"`
	Total       int    `json:"total"`
	CurrentItem string `json:"currentItem,omitempty"`
}

// BeginCycle resets the last-cycle counters at the top of a cycle.
func (s *RunStats) BeginCycle(now time.Time) {
	s.TotalRuns++
	s.LastRunSucceeded = 0
	s.LastRunFailed = 0
	s.LastRunAt = &now
	s.Progress = 0
	s.Total = 0
	s.CurrentItem = ""
}

// EndCycle folds the last-cycle counters into the cumulative totals and
// clears the live progress fields.
func (s *RunStats) EndCycle(started, finished time.Time) {
	s.TotalSucceeded += s.LastRunSucceeded
	s.TotalFailed += s.LastRunFailed
	s.LastRunDurationMs = finished.Sub(started).Milliseconds()
	s.Progress = 0
	s.Total = 0
	s.CurrentItem = ""
}
