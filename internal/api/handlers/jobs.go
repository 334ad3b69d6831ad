package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/dsrx/internal/core"
	"github.com/orrn/dsrx/internal/db"
)

type JobResponse struct {
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
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Duration     *int64     `json:"duration_ms,omitempty"`
}

type ListJobsQuery struct {
	Status   string `form:"status"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
	Limit    int    `form:"limit" binding:"max=100"`
	Offset   int    `form:"offset" binding:"min=0"`
}

type JobStatsResponse struct {
	ByStatus map[string]int64 `json:"by_status"`
	Total    int64            `json:"total"`
}

type JobHandler struct{}

func NewJobHandler() *JobHandler {
	return &JobHandler{}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var query ListJobsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if query.Limit <= 0 {
		query.Limit = 50
	}

	filter := db.JobFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}

	if query.FromDate != "" {
		t, err := time.Parse("2006-01-02", query.FromDate)
		if err == nil {
			filter.FromDate = &t
		}
	}
	if query.ToDate != "" {
		t, err := time.Parse("2006-01-02", query.ToDate)
		if err == nil {
			endOfDay := t.Add(24*time.Hour - time.Second)
			filter.ToDate = &endOfDay
		}
	}

	jobs, err := db.Jobs.ListJobs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list jobs",
		})
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   responses,
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(responses),
	})
}

// lookupJob loads the job named by the :id parameter, answering the request
// itself when that fails.
func lookupJob(c *gin.Context) (*db.PrintJob, bool) {
	job, err := db.Jobs.GetJobByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Job not found",
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to get job",
		})
		return nil, false
	}
	return job, true
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := lookupJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, jobToResponse(job))
}

func (h *JobHandler) DeleteJob(c *gin.Context) {
	job, ok := lookupJob(c)
	if !ok {
		return
	}

	if job.Status == string(core.JobStatusPrinting) {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "job_printing",
			Message: "Cannot delete a job that is printing",
		})
		return
	}

	if err := db.Jobs.DeleteJob(c.Request.Context(), job.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete job",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *JobHandler) GetJobStats(c *gin.Context) {
	counts, err := db.Jobs.CountJobsByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to count jobs",
		})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, JobStatsResponse{ByStatus: counts, Total: total})
}

func jobToResponse(job *db.PrintJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID,
		DocumentName: job.DocumentName,
		FilePath:     job.FilePath,
		HalfCut:      job.HalfCut,
		Rotate:       job.Rotate,
		Pages:        job.Pages,
		PagesPrinted: job.PagesPrinted,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		d := job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
		resp.Duration = &d
	}
	return resp
}

func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.GetJobStats)
	r.GET("/jobs/:id", h.GetJob)
	r.DELETE("/jobs/:id", h.DeleteJob)
}
