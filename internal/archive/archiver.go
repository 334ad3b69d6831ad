package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/db"
	"github.com/orrn/dsrx/internal/logging"
)

var (
	ErrArchiveNotFound = errors.New("archive not found")
	ErrJobNotArchived  = errors.New("job not found in archives")
)

// Archiver moves finished job history older than the retention window into
// monthly sqlite files.
type Archiver struct {
	archivePath string
	archiveDays int
	logger      *zap.Logger
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

type ArchiveFile struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	JobCount  int       `json:"job_count"`
	DateRange string    `json:"date_range"`
}

type ArchiveConfig struct {
	ArchivePath string
	ArchiveDays int
}

func NewArchiver(config ArchiveConfig, logger *zap.Logger) (*Archiver, error) {
	if config.ArchivePath == "" {
		config.ArchivePath = "./data/archives"
	}
	if config.ArchiveDays <= 0 {
		config.ArchiveDays = 30
	}

	if err := os.MkdirAll(config.ArchivePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archiver{
		archivePath: config.ArchivePath,
		archiveDays: config.ArchiveDays,
		logger:      logging.OrNop(logger).Named("archive"),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}, nil
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.runDailyArchive()
}

func (a *Archiver) Stop() {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
}

func (a *Archiver) runDailyArchive() {
	defer a.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			n, err := a.RunArchive(context.Background())
			if err != nil {
				a.logger.Error("archive run failed", zap.Error(err))
				continue
			}
			a.logger.Info("archive run finished", zap.Int("jobs", n))
		}
	}
}

func archiveFileName(t time.Time) string {
	return fmt.Sprintf("archive_%s.db", t.Format("2006_01"))
}

// RunArchive archives every finished job completed before the retention
// cutoff and returns how many were moved.
func (a *Archiver) RunArchive(ctx context.Context) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	cutoff := now.AddDate(0, 0, -a.archiveDays)

	jobs, err := db.Jobs.GetJobsForArchival(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if len(jobs) == 0 {
		return 0, nil
	}

	filename := archiveFileName(now)
	archiveDB, err := openOrCreateArchiveDB(filepath.Join(a.archivePath, filename))
	if err != nil {
		return 0, fmt.Errorf("failed to create archive database: %w", err)
	}
	defer archiveDB.Close()

	tx, err := archiveDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}

	for _, job := range jobs {
		if err := insertJobToArchive(ctx, tx, job); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert job to archive: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO archive_metadata (id, archived_at, source_database)
		VALUES (1, ?, 'main')
	`, now.UTC()); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to update archive metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive transaction: %w", err)
	}

	for _, job := range jobs {
		if err := db.Jobs.DeleteJob(ctx, job.ID); err != nil {
			return 0, fmt.Errorf("failed to delete archived jobs: %w", err)
		}
		if err := db.Archive.CreateArchiveJob(ctx, &db.ArchiveJob{OriginalJobID: job.ID, ArchiveFile: filename}); err != nil {
			return 0, fmt.Errorf("failed to record archive jobs: %w", err)
		}
	}

	a.logger.Info("jobs archived", zap.String("file", filename), zap.Int("jobs", len(jobs)), zap.Time("cutoff", cutoff))
	return len(jobs), nil
}

func openOrCreateArchiveDB(path string) (*sql.DB, error) {
	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = archiveDB.Exec(`
		CREATE TABLE IF NOT EXISTS print_jobs (
			id TEXT PRIMARY KEY,
			document_name TEXT NOT NULL,
			file_path TEXT NOT NULL,
			half_cut INTEGER NOT NULL DEFAULT 0,
			rotate INTEGER NOT NULL DEFAULT 0,
			pages INTEGER NOT NULL,
			pages_printed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME,
			started_at DATETIME,
			completed_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS archive_metadata (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			archived_at DATETIME,
			source_database TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_archive_jobs_completed_at ON print_jobs(completed_at);
	`)
	if err != nil {
		archiveDB.Close()
		return nil, err
	}

	return archiveDB, nil
}

func insertJobToArchive(ctx context.Context, tx *sql.Tx, job *db.PrintJob) error {
	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO print_jobs (id, document_name, file_path, half_cut, rotate, pages, pages_printed, status, error_message, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.DocumentName, job.FilePath, job.HalfCut, job.Rotate,
		job.Pages, job.PagesPrinted, job.Status, job.ErrorMessage,
		job.CreatedAt, job.StartedAt, job.CompletedAt)
	return err
}

// resolve maps an archive file name onto its path, rejecting anything that
// is not a plain file name inside the archive directory.
func (a *Archiver) resolve(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || !strings.HasSuffix(filename, ".db") {
		return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
	}
	path := filepath.Join(a.archivePath, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrArchiveNotFound, filename)
		}
		return "", fmt.Errorf("failed to stat archive: %w", err)
	}
	return path, nil
}

func dateRange(filename string) string {
	if !strings.HasPrefix(filename, "archive_") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(filename, "archive_"), ".db")
}

func (a *Archiver) ListArchives(ctx context.Context) ([]*ArchiveFile, error) {
	files, err := os.ReadDir(a.archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	archives := []*ArchiveFile{}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".db") {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		archiveFile := &ArchiveFile{
			Filename:  file.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			DateRange: dateRange(file.Name()),
		}
		if n, err := db.Archive.CountByFile(ctx, file.Name()); err == nil {
			archiveFile.JobCount = n
		}

		archives = append(archives, archiveFile)
	}

	return archives, nil
}

func (a *Archiver) GetArchiveInfo(ctx context.Context, filename string) (*ArchiveFile, error) {
	path, err := a.resolve(filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	archiveFile := &ArchiveFile{
		Filename:  filename,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		DateRange: dateRange(filename),
	}

	if n, err := db.Archive.CountByFile(ctx, filename); err == nil {
		archiveFile.JobCount = n
	}

	return archiveFile, nil
}

func (a *Archiver) DeleteArchive(ctx context.Context, filename string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.resolve(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}

	return db.Archive.DeleteByFile(ctx, filename)
}

// RestoreJob moves one archived job back into the live history.
func (a *Archiver) RestoreJob(ctx context.Context, jobID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	record, err := db.Archive.GetArchiveJobByOriginalID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrJobNotArchived, jobID)
		}
		return err
	}

	path, err := a.resolve(record.ArchiveFile)
	if err != nil {
		return err
	}

	archiveDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer archiveDB.Close()

	job := &db.PrintJob{}
	err = archiveDB.QueryRowContext(ctx, `
		SELECT id, document_name, file_path, half_cut, rotate, pages, pages_printed, status, error_message, created_at, started_at, completed_at
		FROM print_jobs WHERE id = ?
	`, jobID).Scan(
		&job.ID, &job.DocumentName, &job.FilePath, &job.HalfCut, &job.Rotate,
		&job.Pages, &job.PagesPrinted, &job.Status, &job.ErrorMessage,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s missing from %s", ErrJobNotArchived, jobID, record.ArchiveFile)
		}
		return fmt.Errorf("failed to query archived job: %w", err)
	}

	if err := db.Jobs.RestoreJob(ctx, job); err != nil {
		return err
	}

	if _, err := archiveDB.ExecContext(ctx, "DELETE FROM print_jobs WHERE id = ?", jobID); err != nil {
		return fmt.Errorf("failed to remove job from archive: %w", err)
	}

	return db.Archive.DeleteByOriginalID(ctx, jobID)
}

func (a *Archiver) SetArchiveDays(days int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archiveDays = days
}

func (a *Archiver) GetArchiveDays() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archiveDays
}

func (a *Archiver) GetArchivePath() string {
	return a.archivePath
}
