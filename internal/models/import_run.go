package models

import (
	"time"
)

// ImportRunStatus represents the status of an importer run
type ImportRunStatus string

const (
	ImportRunRunning   ImportRunStatus = "running"
	ImportRunCompleted ImportRunStatus = "completed"
	ImportRunFailed    ImportRunStatus = "failed"
)

// Source names accepted by the importers.
const (
	SourceTypePad     = "typepad"
	SourceLiveJournal = "livejournal"
	SourceMovableType = "movabletype"
	SourceVox         = "vox"
	SourceTumblr      = "tumblr"
)

// ImportRun records one execution of an importer so reruns can be audited.
type ImportRun struct {
	ID              string          `json:"run_id" db:"id"`
	Source          string          `json:"source" db:"source"`
	Path            string          `json:"path" db:"path"`
	AuthorID        string          `json:"author_id" db:"author_id"`
	Status          ImportRunStatus `json:"status" db:"status"`
	PostsCreated    int             `json:"posts_created" db:"posts_created"`
	PostsUpdated    int             `json:"posts_updated" db:"posts_updated"`
	CommentsCreated int             `json:"comments_created" db:"comments_created"`
	CommentsUpdated int             `json:"comments_updated" db:"comments_updated"`
	AssetsCreated   int             `json:"assets_created" db:"assets_created"`
	AssetsReused    int             `json:"assets_reused" db:"assets_reused"`
	GroupsCreated   int             `json:"groups_created" db:"groups_created"`
	Skipped         int             `json:"skipped" db:"skipped"`
	DurationMs      int64           `json:"duration_ms,omitempty" db:"duration_ms"`
	Error           string          `json:"error,omitempty" db:"error"`
	StartedAt       time.Time       `json:"started_at" db:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}
