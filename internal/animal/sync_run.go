package animal

import "time"

// SyncRunStatus mirrors the sync_runs status column.
type SyncRunStatus string

// Sync run statuses.
const (
	SyncInProgress SyncRunStatus = "in_progress"
	SyncCompleted  SyncRunStatus = "completed"
	SyncFailed     SyncRunStatus = "failed"
)

// SyncRun is the append-only audit row written for every ingestion pass.
type SyncRun struct {
	ID             string        `json:"id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	Provider       string        `json:"provider"`
	FiltersApplied []string      `json:"filters_applied"`
	PagesFetched   int           `json:"pages_fetched"`
	DogsAdded      int           `json:"dogs_added"`
	DogsUpdated    int           `json:"dogs_updated"`
	DogsRemoved    int           `json:"dogs_removed"`
	Status         SyncRunStatus `json:"status"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}
