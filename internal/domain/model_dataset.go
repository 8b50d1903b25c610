package domain

import "time"

// ModelDataset describes the snapshot currently stored for one family.
type ModelDataset struct {
	Collection  string    `json:"collection"`
	Family      string    `json:"family"`
	Shift       Shift     `json:"shift"`
	RecordCount int       `json:"record_count"`
	ReplacedAt  time.Time `json:"replaced_at"`
}

// RecordFilter narrows a read of a dataset.
type RecordFilter struct {
	Shift   *Shift
	Process string
}

// Matches reports whether the record passes the filter.
func (f RecordFilter) Matches(r ErrorRecord) bool {
	if f.Shift != nil && r.Shift != *f.Shift {
		return false
	}
	if f.Process != "" && r.Process != f.Process {
		return false
	}
	return true
}
