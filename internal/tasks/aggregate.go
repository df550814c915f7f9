package tasks

// SummaryStats summarizes a set of task snapshots. CountByState always holds
// every recognized state; codes outside that set are counted in Unrecognized.
type SummaryStats struct {
	TaskTotal       int           `json:"task_total"`
	MissedRunsTotal int           `json:"missed_runs_total"`
	CountByState    map[State]int `json:"count_by_state"`
	Unrecognized    int           `json:"unrecognized"`
}

// Aggregate computes SummaryStats in one pass. The result does not depend on
// the order of snaps.
func Aggregate(snaps []TaskSnapshot) SummaryStats {
	stats := SummaryStats{CountByState: make(map[State]int, len(States))}
	for _, s := range States {
		stats.CountByState[s] = 0
	}

	for _, snap := range snaps {
		stats.TaskTotal++
		stats.MissedRunsTotal += snap.NumberOfMissedRuns
		if snap.State.Known() {
			stats.CountByState[snap.State]++
		} else {
			stats.Unrecognized++
		}
	}
	return stats
}
