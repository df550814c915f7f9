package history

import "time"

// Query is the filter set shared by the CLI and the API. Zero fields do not
// filter; Sort is "", "asc" or "desc".
type Query struct {
	Task    string
	Folder  string
	Level   *int
	EventID *int
	Since   *time.Time
	Sort    string
}

// Apply narrows t by every filter in q, then sorts it when q.Sort is set.
func (q Query) Apply(t *Table) (*Table, error) {
	t = t.Filter(q.Task, q.Folder)
	if q.Level != nil {
		level := *q.Level
		t = t.Where(func(e Entry) bool { return e.LevelCode == level })
	}
	if q.EventID != nil {
		id := *q.EventID
		t = t.Where(func(e Entry) bool { return e.EventID == id })
	}
	if q.Since != nil {
		t = t.Since(*q.Since)
	}
	if q.Sort == "" {
		return t, nil
	}
	return t.SortByTime(q.Sort == "desc")
}

// Unfiltered reports whether q leaves every entry in place.
func (q Query) Unfiltered() bool {
	return q.Task == "" && q.Folder == "" && q.Level == nil && q.EventID == nil && q.Since == nil
}
