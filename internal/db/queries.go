package db

const jobColumns = `id, document_name, file_path, half_cut, rotate, pages, pages_printed, status, error_message, created_at, started_at, completed_at`

const (
	InsertJob = `
		INSERT INTO print_jobs (id, document_name, file_path, half_cut, rotate, pages, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	GetJobByID = `SELECT ` + jobColumns + ` FROM print_jobs WHERE id = ?`

	RestoreJob = `
		INSERT INTO print_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	FinishJob = `
		UPDATE print_jobs SET status = ?, pages_printed = ?, error_message = ?, completed_at = ? WHERE id = ?
	`

	CountJobsByStatus = `
		SELECT status, COUNT(*) as count FROM print_jobs GROUP BY status
	`

	DeleteJob = `DELETE FROM print_jobs WHERE id = ?`

	GetJobsForArchival = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE status IN ('completed', 'failed')
		AND completed_at IS NOT NULL
		AND completed_at < ?
		ORDER BY completed_at ASC
	`
)

const (
	InsertWebhook = `
		INSERT INTO webhooks (name, url, secret, events_json, enabled)
		VALUES (?, ?, ?, ?, ?)
	`

	GetWebhookByID = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE id = ?
	`

	ListWebhooks = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks ORDER BY name ASC
	`

	ListWebhooksForEvent = `
		SELECT id, name, url, secret, events_json, enabled, created_at
		FROM webhooks WHERE enabled = 1 AND events_json LIKE ?
	`

	UpdateWebhook = `
		UPDATE webhooks SET name = ?, url = ?, secret = ?, events_json = ?, enabled = ? WHERE id = ?
	`

	DeleteWebhook = `DELETE FROM webhooks WHERE id = ?`
)

const (
	GetSetting = `SELECT value, encrypted, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, encrypted, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, encrypted = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`

	ListSettings = `SELECT key, value, encrypted, updated_at FROM settings ORDER BY key ASC`
)

const (
	InsertArchiveJob = `
		INSERT INTO archive_jobs (original_job_id, archive_file)
		VALUES (?, ?)
	`

	GetArchiveJobByOriginalID = `
		SELECT id, original_job_id, archive_file, archived_at
		FROM archive_jobs WHERE original_job_id = ?
	`

	ListArchiveJobs = `
		SELECT id, original_job_id, archive_file, archived_at
		FROM archive_jobs ORDER BY archived_at DESC, id DESC LIMIT ? OFFSET ?
	`

	CountArchiveJobsByFile = `
		SELECT COUNT(*) FROM archive_jobs WHERE archive_file = ?
	`

	DeleteArchiveJobsByFile = `DELETE FROM archive_jobs WHERE archive_file = ?`

	DeleteArchiveJobByOriginalID = `DELETE FROM archive_jobs WHERE original_job_id = ?`
)

const (
	GetAppliedMigrations = `
		SELECT version FROM schema_migrations
	`
)
