package model

import "time"

// RunStatus represents the current state of a processing run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusProcessing RunStatus = "processing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// RunStats counts listing outcomes for a run.
type RunStats struct {
	Total          int `json:"total"`
	Enriched       int `json:"enriched"`
	InvalidPrice   int `json:"invalid_price"`
	MissingVolume  int `json:"missing_volume"`
	AmbiguousPrice int `json:"ambiguous_price"`
	Faulty         int `json:"faulty"`
	Categories     int `json:"categories"`
	CategoriesHit  int `json:"categories_found"`
}

// Run records one pass of the pipeline over an input file or request.
type Run struct {
	ID        string    `json:"id"`
	Input     string    `json:"input"`
	Status    RunStatus `json:"status"`
	Stats     *RunStats `json:"stats,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
