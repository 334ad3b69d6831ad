package db

import (
	"time"
)

type PrintJob struct {
	ID           string     `json:"id"`
	DocumentName string     `json:"document_name"`
	FilePath     string     `json:"file_path"`
	HalfCut      bool       `json:"half_cut"`
	Rotate       bool       `json:"rotate"`
	Pages        int        `json:"pages"`
	PagesPrinted int        `json:"pages_printed"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
}

type Webhook struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret,omitempty"`
	EventsJSON string    `json:"events_json"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ArchiveJob struct {
	ID            int64     `json:"id"`
	OriginalJobID string    `json:"original_job_id"`
	ArchiveFile   string    `json:"archive_file"`
	ArchivedAt    time.Time `json:"archived_at"`
}

type JobFilter struct {
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
