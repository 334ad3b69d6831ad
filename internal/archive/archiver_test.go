package archive

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
	"go.uber.org/goleak"

	"github.com/orrn/dsrx/internal/core"
	"github.com/orrn/dsrx/internal/db"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "dsrx-archive-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := db.Init(db.Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			code = 1
		}
	}
	os.Exit(code)
}

func recordJob(t *testing.T, status core.JobStatus) string {
	t.Helper()
	ctx := context.Background()
	job := &core.JobInfo{
		ID:           uuid.NewString(),
		DocumentName: uuid.NewString(),
		FilePath:     "/photos/a.jpg",
		Pages:        2,
		StartedAt:    time.Now(),
	}
	require.NoError(t, db.Jobs.JobStarted(ctx, job))
	if status != core.JobStatusPrinting {
		require.NoError(t, db.Jobs.JobFinished(ctx, job.ID, status, 2, ""))
	}
	return job.ID
}

func newTestArchiver(t *testing.T, ahead time.Duration) *Archiver {
	t.Helper()
	a, err := NewArchiver(ArchiveConfig{ArchivePath: t.TempDir(), ArchiveDays: 30}, nil)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Now().Add(ahead) }
	return a
}

func TestRunArchiveMovesOldFinishedJobs(t *testing.T) {
	ctx := context.Background()
	completed := recordJob(t, core.JobStatusCompleted)
	failed := recordJob(t, core.JobStatusFailed)
	running := recordJob(t, core.JobStatusPrinting)

	a := newTestArchiver(t, 31*24*time.Hour)
	n, err := a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{completed, failed} {
		_, err := db.Jobs.GetJobByID(ctx, id)
		assert.ErrorIs(t, err, sql.ErrNoRows)

		rec, err := db.Archive.GetArchiveJobByOriginalID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, archiveFileName(a.now()), rec.ArchiveFile)
	}

	_, err = db.Jobs.GetJobByID(ctx, running)
	require.NoError(t, err)

	archives, err := a.ListArchives(ctx)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 2, archives[0].JobCount)
	assert.Equal(t, a.now().Format("2006_01"), archives[0].DateRange)

	// nothing left to move
	n, err = a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, db.Jobs.DeleteJob(ctx, running))
}

func TestRunArchiveKeepsRecentJobs(t *testing.T) {
	ctx := context.Background()
	id := recordJob(t, core.JobStatusCompleted)

	a := newTestArchiver(t, 0)
	n, err := a.RunArchive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.Jobs.GetJobByID(ctx, id)
	require.NoError(t, err)
	require.NoError(t, db.Jobs.DeleteJob(ctx, id))

	archives, err := a.ListArchives(ctx)
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestRestoreJob(t *testing.T) {
	ctx := context.Background()
	id := recordJob(t, core.JobStatusCompleted)

	a := newTestArchiver(t, 200*24*time.Hour)
	_, err := a.RunArchive(ctx)
	require.NoError(t, err)

	require.NoError(t, a.RestoreJob(ctx, id))

	job, err := db.Jobs.GetJobByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(core.JobStatusCompleted), job.Status)
	assert.Equal(t, 2, job.PagesPrinted)
	assert.NotNil(t, job.CompletedAt)

	_, err = db.Archive.GetArchiveJobByOriginalID(ctx, id)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	assert.ErrorIs(t, a.RestoreJob(ctx, id), ErrJobNotArchived)
	require.NoError(t, db.Jobs.DeleteJob(ctx, id))
}

func TestDeleteArchive(t *testing.T) {
	ctx := context.Background()
	recordJob(t, core.JobStatusCompleted)

	a := newTestArchiver(t, 400*24*time.Hour)
	_, err := a.RunArchive(ctx)
	require.NoError(t, err)

	name := archiveFileName(a.now())
	info, err := a.GetArchiveInfo(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, 1, info.JobCount)
	assert.Positive(t, info.Size)

	require.NoError(t, a.DeleteArchive(ctx, name))
	_, err = a.GetArchiveInfo(ctx, name)
	assert.ErrorIs(t, err, ErrArchiveNotFound)

	n, err := db.Archive.CountByFile(ctx, name)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveRejectsPathsOutsideDirectory(t *testing.T) {
	a := newTestArchiver(t, 0)

	for _, name := range []string{"", "../test.db", "sub/archive_2026_01.db", "archive_2026_01.txt"} {
		_, err := a.GetArchiveInfo(context.Background(), name)
		assert.ErrorIs(t, err, ErrArchiveNotFound, name)
	}
}

func TestArchiverStartStop(t *testing.T) {
	a := newTestArchiver(t, 0)
	a.Start()
	a.Stop()
	a.Stop()
}
