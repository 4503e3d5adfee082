package models

import (
	"time"
)

// Asset is a stored file resolved from an external URL. OriginalURL is
// unique so each external resource is imported at most once.
type Asset struct {
	ID          string    `json:"id" db:"id"`
	AuthorID    string    `json:"author_id" db:"author_id"`
	OriginalURL string    `json:"original_url" db:"original_url"`
	StorageName string    `json:"storage_name" db:"storage_name"`
	URL         string    `json:"url" db:"url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
