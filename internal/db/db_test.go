package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/dsrx/internal/core"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "dsrx-db-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := Init(Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

func clearTables(t *testing.T) {
	t.Helper()
	for _, table := range []string{"print_jobs", "webhooks", "settings", "archive_jobs"} {
		_, err := GetDB().Exec("DELETE FROM " + table)
		require.NoError(t, err)
	}
}

func newJob(pages int) *core.JobInfo {
	return &core.JobInfo{
		ID:           uuid.NewString(),
		DocumentName: uuid.NewString(),
		FilePath:     "/photos/a.jpg",
		HalfCut:      true,
		Pages:        pages,
		StartedAt:    time.Now(),
	}
}

func TestMigrationsApplied(t *testing.T) {
	versions, err := MigrationStatus()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init"}, versions)

	// running again is a no-op
	require.NoError(t, runMigrations(GetDB(), migrationsFS))
	versions, err = MigrationStatus()
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestJobLifecycle(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	job := newJob(3)
	require.NoError(t, Jobs.JobStarted(ctx, job))

	got, err := Jobs.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(core.JobStatusPrinting), got.Status)
	assert.Equal(t, job.DocumentName, got.DocumentName)
	assert.True(t, got.HalfCut)
	assert.False(t, got.Rotate)
	assert.Equal(t, 3, got.Pages)
	assert.Zero(t, got.PagesPrinted)
	require.NotNil(t, got.StartedAt)
	assert.WithinDuration(t, job.StartedAt, *got.StartedAt, time.Second)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, Jobs.JobFinished(ctx, job.ID, core.JobStatusFailed, 2, "paper end"))

	got, err = Jobs.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(core.JobStatusFailed), got.Status)
	assert.Equal(t, 2, got.PagesPrinted)
	assert.Equal(t, "paper end", got.ErrorMessage)
	assert.NotNil(t, got.CompletedAt)
}

func TestJobFinishedUnknownJob(t *testing.T) {
	clearTables(t)
	err := Jobs.JobFinished(context.Background(), "missing", core.JobStatusCompleted, 1, "")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestGetJobByIDNotFound(t *testing.T) {
	clearTables(t)
	_, err := Jobs.GetJobByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListJobs(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		job := newJob(1)
		job.StartedAt = time.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, Jobs.JobStarted(ctx, job))
		ids = append(ids, job.ID)
	}
	require.NoError(t, Jobs.JobFinished(ctx, ids[0], core.JobStatusCompleted, 1, ""))
	require.NoError(t, Jobs.JobFinished(ctx, ids[1], core.JobStatusCompleted, 1, ""))

	all, err := Jobs.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest first")

	completed, err := Jobs.ListJobs(ctx, JobFilter{Status: string(core.JobStatusCompleted)})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	page, err := Jobs.ListJobs(ctx, JobFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)

	counts, err := Jobs.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"completed": 2, "printing": 3}, counts)
}

func TestGetJobsForArchival(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	finished := newJob(1)
	running := newJob(1)
	require.NoError(t, Jobs.JobStarted(ctx, finished))
	require.NoError(t, Jobs.JobStarted(ctx, running))
	require.NoError(t, Jobs.JobFinished(ctx, finished.ID, core.JobStatusCompleted, 1, ""))

	jobs, err := Jobs.GetJobsForArchival(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, finished.ID, jobs[0].ID)

	jobs, err = Jobs.GetJobsForArchival(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, Jobs.DeleteJob(ctx, finished.ID))
	_, err = Jobs.GetJobByID(ctx, finished.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWebhookCRUD(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	w := &Webhook{Name: "lab", URL: "http://lab.local/hook", Secret: "s3", EventsJSON: `["job_completed","job_failed"]`, Enabled: true}
	require.NoError(t, Webhooks.CreateWebhook(ctx, w))
	require.NotZero(t, w.ID)

	other := &Webhook{Name: "kiosk", URL: "http://kiosk.local/hook", EventsJSON: `["printer_status_changed"]`, Enabled: true}
	require.NoError(t, Webhooks.CreateWebhook(ctx, other))

	got, err := Webhooks.GetWebhookByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3", got.Secret)
	assert.True(t, got.Enabled)

	all, err := Webhooks.ListWebhooks(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "kiosk", all[0].Name)

	active, err := Webhooks.ListActiveWebhooksForEvent(ctx, "job_failed")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, w.ID, active[0].ID)

	w.Enabled = false
	require.NoError(t, Webhooks.UpdateWebhook(ctx, w))
	active, err = Webhooks.ListActiveWebhooksForEvent(ctx, "job_failed")
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, Webhooks.UpdateWebhook(ctx, &Webhook{ID: 9999, Name: "x", URL: "y", EventsJSON: "[]"}), sql.ErrNoRows)

	require.NoError(t, Webhooks.DeleteWebhook(ctx, w.ID))
	_, err = Webhooks.GetWebhookByID(ctx, w.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSettings(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	_, err := Settings.GetSetting(ctx, "admin_password")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, Settings.SetSetting(ctx, "admin_password", "hash-1", true))
	require.NoError(t, Settings.SetSetting(ctx, "admin_password", "hash-2", true))
	require.NoError(t, Settings.SetSetting(ctx, "paper_name", "(6x4)", false))

	s, err := Settings.GetSetting(ctx, "admin_password")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", s.Value)
	assert.True(t, s.Encrypted)

	list, err := Settings.ListSettings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admin_password", list[0].Key)
	assert.Empty(t, list[0].Value)
	assert.Equal(t, "(6x4)", list[1].Value)

	require.NoError(t, Settings.DeleteSetting(ctx, "paper_name"))
	_, err = Settings.GetSetting(ctx, "paper_name")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestArchiveRecords(t *testing.T) {
	clearTables(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		require.NoError(t, Archive.CreateArchiveJob(ctx, &ArchiveJob{OriginalJobID: id, ArchiveFile: "archive_2026_09.db"}))
	}
	require.NoError(t, Archive.CreateArchiveJob(ctx, &ArchiveJob{OriginalJobID: "c", ArchiveFile: "archive_2026_10.db"}))

	n, err := Archive.CountByFile(ctx, "archive_2026_09.db")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	a, err := Archive.GetArchiveJobByOriginalID(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "archive_2026_10.db", a.ArchiveFile)

	list, err := Archive.GetArchiveJobs(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	require.NoError(t, Archive.DeleteByFile(ctx, "archive_2026_09.db"))
	n, err = Archive.CountByFile(ctx, "archive_2026_09.db")
	require.NoError(t, err)
	assert.Zero(t, n)
}
