package core

import (
	"context"
	"time"
)

// WebhookSender receives job and printer events.
type WebhookSender interface {
	SendJobStarted(job *JobInfo)
	SendJobCompleted(job *JobInfo, pagesPrinted int, duration time.Duration)
	SendJobFailed(job *JobInfo, pagesPrinted int, errMsg string)
	SendPrinterStatusChange(printerName, oldState, newState string, details *PrinterStatus) error
}

// JobRecorder persists job history.
type JobRecorder interface {
	JobStarted(ctx context.Context, job *JobInfo) error
	JobFinished(ctx context.Context, jobID string, status JobStatus, pagesPrinted int, errMsg string) error
}

type JobStatus string

const (
	JobStatusPrinting  JobStatus = "printing"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobInfo describes an admitted job.
type JobInfo struct {
	ID           string    `json:"id"`
	DocumentName string    `json:"document_name"`
	FilePath     string    `json:"file_path"`
	HalfCut      bool      `json:"half_cut"`
	Rotate       bool      `json:"rotate"`
	Pages        int       `json:"pages"`
	StartedAt    time.Time `json:"started_at"`
}

// PrintJobRequest is one call of the print surface.
type PrintJobRequest struct {
	FilePath         string `json:"file_path"`
	IsHalfCut        bool   `json:"is_half_cut"`
	IsRotateRequired bool   `json:"is_rotate_required"`
	NumberOfPage     int    `json:"number_of_page"`
}

// PrintResult is the outcome reported to callers.
type PrintResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
