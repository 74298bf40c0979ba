package audit

import "time"

// Actions.
const (
	ActionEntryAdd      = "entry.add"
	ActionEntryRemove   = "entry.remove"
	ActionDisplayUpdate = "display.update"
)

// Target types.
const (
	TargetEntry  = "entry"
	TargetEntity = "entity"
)

// Sources.
const (
	SourceAPI = "api"
	SourceCLI = "cli"
)

// Record is one audited action.
type Record struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Source     string         `json:"source"`
	OK         bool           `json:"ok"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects records. Zero fields match everything.
type Filter struct {
	Action     string
	TargetType string
	TargetID   string
	Actor      string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of records, newest first.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (f *Filter) clamp() {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
