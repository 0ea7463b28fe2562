package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"
)

// Stat aggregates the records of one task.
// AvgDuration covers successful executions only.
type Stat struct {
	LastRun     *time.Time    `json:"last_run,omitempty"`
	Name        string        `json:"name"`
	Errors      []RunError    `json:"errors,omitempty"`
	InProgress  int           `json:"in_progress"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
}

// RunError is a failed execution as shown in stats.
type RunError struct {
	End   time.Time `json:"end"`
	Error string    `json:"error"`
}

// Summarize groups records by task name. The result is sorted by name.
func Summarize(records []Record) []Stat {
	byName := make(map[string]*Stat)
	for _, r := range records {
		st, ok := byName[r.Name]
		if !ok {
			st = &Stat{Name: r.Name}
			byName[r.Name] = st
		}

		if st.LastRun == nil || r.Start.After(*st.LastRun) {
			start := r.Start
			st.LastRun = &start
		}

		switch {
		case !r.Finished():
			st.InProgress++
		case r.Failed():
			st.Failed++
			st.Errors = append(st.Errors, RunError{End: *r.End, Error: r.Error})
		default:
			st.AvgDuration += (r.Duration() - st.AvgDuration) / time.Duration(st.Succeeded+1)
			st.Succeeded++
		}
	}

	out := make([]Stat, 0, len(byName))
	for _, st := range byName {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b Stat) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// RecordSource lists stored records. StoreRecorder implements it.
type RecordSource interface {
	Records(ctx context.Context) ([]Record, error)
}

// StatsHandler serves per-task stats as JSON.
func StatsHandler(src RecordSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := src.Records(r.Context())
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		_ = json.NewEncoder(w).Encode(Summarize(records))
	}
}
