package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orrn/dsrx/internal/core"
)

type JobOperations struct{}

var _ core.JobRecorder = (*JobOperations)(nil)

// JobStarted inserts the history row of an admitted job.
func (o *JobOperations) JobStarted(ctx context.Context, job *core.JobInfo) error {
	_, err := GetDB().ExecContext(ctx, InsertJob,
		job.ID, job.DocumentName, job.FilePath, job.HalfCut, job.Rotate,
		job.Pages, string(core.JobStatusPrinting), job.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (o *JobOperations) JobFinished(ctx context.Context, id string, status core.JobStatus, pagesPrinted int, errMsg string) error {
	result, err := GetDB().ExecContext(ctx, FinishJob, string(status), pagesPrinted, errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update job status: %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

func (o *JobOperations) GetJobByID(ctx context.Context, id string) (*PrintJob, error) {
	j, err := scanJob(GetDB().QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (o *JobOperations) ListJobs(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.FromDate.UTC())
	}
	if filter.ToDate != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, filter.ToDate.UTC())
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC, id ASC"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := GetDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// GetJobsForArchival returns finished jobs completed before cutoff, oldest
// first.
func (o *JobOperations) GetJobsForArchival(ctx context.Context, cutoff time.Time) ([]*PrintJob, error) {
	rows, err := GetDB().QueryContext(ctx, GetJobsForArchival, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs for archival: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (o *JobOperations) CountJobsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := GetDB().QueryContext(ctx, CountJobsByStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// RestoreJob inserts a complete history row, as read back from an archive.
func (o *JobOperations) RestoreJob(ctx context.Context, j *PrintJob) error {
	_, err := GetDB().ExecContext(ctx, RestoreJob,
		j.ID, j.DocumentName, j.FilePath, j.HalfCut, j.Rotate,
		j.Pages, j.PagesPrinted, j.Status, j.ErrorMessage,
		j.CreatedAt.UTC(), utcOrNil(j.StartedAt), utcOrNil(j.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to restore job: %w", err)
	}
	return nil
}

func utcOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (o *JobOperations) DeleteJob(ctx context.Context, id string) error {
	_, err := GetDB().ExecContext(ctx, DeleteJob, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*PrintJob, error) {
	j := &PrintJob{}
	err := row.Scan(
		&j.ID, &j.DocumentName, &j.FilePath, &j.HalfCut, &j.Rotate,
		&j.Pages, &j.PagesPrinted, &j.Status, &j.ErrorMessage,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*PrintJob, error) {
	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type WebhookOperations struct{}

func (o *WebhookOperations) CreateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, InsertWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled)
	if err != nil {
		return fmt.Errorf("failed to create webhook: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get webhook id: %w", err)
	}
	w.ID = id
	return nil
}

func (o *WebhookOperations) GetWebhookByID(ctx context.Context, id int64) (*Webhook, error) {
	w := &Webhook{}
	err := GetDB().QueryRowContext(ctx, GetWebhookByID, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (o *WebhookOperations) ListWebhooks(ctx context.Context) ([]*Webhook, error) {
	rows, err := GetDB().QueryContext(ctx, ListWebhooks)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

// ListActiveWebhooksForEvent matches the quoted event name inside the
// stored JSON array.
func (o *WebhookOperations) ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*Webhook, error) {
	pattern := "%\"" + event + "\"%"
	rows, err := GetDB().QueryContext(ctx, ListWebhooksForEvent, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks for event: %w", err)
	}
	defer rows.Close()

	return scanWebhooks(rows)
}

func scanWebhooks(rows *sql.Rows) ([]*Webhook, error) {
	var webhooks []*Webhook
	for rows.Next() {
		w := &Webhook{}
		if err := rows.Scan(
			&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventsJSON, &w.Enabled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		webhooks = append(webhooks, w)
	}
	return webhooks, rows.Err()
}

func (o *WebhookOperations) UpdateWebhook(ctx context.Context, w *Webhook) error {
	result, err := GetDB().ExecContext(ctx, UpdateWebhook,
		w.Name, w.URL, w.Secret, w.EventsJSON, w.Enabled, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (o *WebhookOperations) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := GetDB().ExecContext(ctx, DeleteWebhook, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

type SettingsOperations struct{}

func (o *SettingsOperations) GetSetting(ctx context.Context, key string) (*Setting, error) {
	s := &Setting{Key: key}
	err := GetDB().QueryRowContext(ctx, GetSetting, key).Scan(&s.Value, &s.Encrypted, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return s, nil
}

func (o *SettingsOperations) SetSetting(ctx context.Context, key, value string, encrypted bool) error {
	_, err := GetDB().ExecContext(ctx, SetSetting, key, value, encrypted, value, encrypted)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (o *SettingsOperations) DeleteSetting(ctx context.Context, key string) error {
	_, err := GetDB().ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}

// ListSettings returns every setting with encrypted values blanked.
func (o *SettingsOperations) ListSettings(ctx context.Context) ([]*Setting, error) {
	rows, err := GetDB().QueryContext(ctx, ListSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		s := &Setting{}
		if err := rows.Scan(&s.Key, &s.Value, &s.Encrypted, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		if s.Encrypted {
			s.Value = ""
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

type ArchiveOperations struct{}

func (o *ArchiveOperations) CreateArchiveJob(ctx context.Context, a *ArchiveJob) error {
	result, err := GetDB().ExecContext(ctx, InsertArchiveJob, a.OriginalJobID, a.ArchiveFile)
	if err != nil {
		return fmt.Errorf("failed to create archive job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get archive job id: %w", err)
	}
	a.ID = id
	return nil
}

func (o *ArchiveOperations) GetArchiveJobByOriginalID(ctx context.Context, jobID string) (*ArchiveJob, error) {
	a := &ArchiveJob{}
	err := GetDB().QueryRowContext(ctx, GetArchiveJobByOriginalID, jobID).Scan(
		&a.ID, &a.OriginalJobID, &a.ArchiveFile, &a.ArchivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get archive job: %w", err)
	}
	return a, nil
}

func (o *ArchiveOperations) GetArchiveJobs(ctx context.Context, limit, offset int) ([]*ArchiveJob, error) {
	rows, err := GetDB().QueryContext(ctx, ListArchiveJobs, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get archive jobs: %w", err)
	}
	defer rows.Close()

	var archives []*ArchiveJob
	for rows.Next() {
		a := &ArchiveJob{}
		if err := rows.Scan(&a.ID, &a.OriginalJobID, &a.ArchiveFile, &a.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive job: %w", err)
		}
		archives = append(archives, a)
	}
	return archives, rows.Err()
}

func (o *ArchiveOperations) CountByFile(ctx context.Context, archiveFile string) (int, error) {
	var count int
	if err := GetDB().QueryRowContext(ctx, CountArchiveJobsByFile, archiveFile).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count archive jobs: %w", err)
	}
	return count, nil
}

func (o *ArchiveOperations) DeleteByFile(ctx context.Context, archiveFile string) error {
	if _, err := GetDB().ExecContext(ctx, DeleteArchiveJobsByFile, archiveFile); err != nil {
		return fmt.Errorf("failed to delete archive job records: %w", err)
	}
	return nil
}

func (o *ArchiveOperations) DeleteByOriginalID(ctx context.Context, jobID string) error {
	if _, err := GetDB().ExecContext(ctx, DeleteArchiveJobByOriginalID, jobID); err != nil {
		return fmt.Errorf("failed to remove archive record: %w", err)
	}
	return nil
}

var (
	Jobs     = &JobOperations{}
	Webhooks = &WebhookOperations{}
	Settings = &SettingsOperations{}
	Archive  = &ArchiveOperations{}
)
