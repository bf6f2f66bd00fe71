package domain

// Report is the ordered list of channel outcomes, one per channel in source order
type Report []MigrationOutcome

// Find returns the position of the outcome for slug, or -1
func (r Report) Find(slug string) int {
	for i := range r {
		if r[i].Slug == slug {
			return i
		}
	}
	return -1
}

// Upsert replaces the outcome with the same slug in place or appends it
func (r Report) Upsert(outcome MigrationOutcome) Report {
	if i := r.Find(outcome.Slug); i >= 0 {
		r[i] = outcome
		return r
	}
	return append(r, outcome)
}

// Clone returns a deep enough copy for independent mutation of entries and task lists
func (r Report) Clone() Report {
	out := make(Report, len(r))
	for i, o := range r {
		tasks := make([]TaskRecord, len(o.TasksCreated))
		copy(tasks, o.TasksCreated)
		o.TasksCreated = tasks
		out[i] = o
	}
	return out
}
