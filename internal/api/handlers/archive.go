package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orrn/dsrx/internal/archive"
	"github.com/orrn/dsrx/internal/db"
)

const settingsKeyArchiveDays = "archive_days"

type ArchiveHandler struct {
	archiver *archive.Archiver
}

func NewArchiveHandler(archiver *archive.Archiver) *ArchiveHandler {
	return &ArchiveHandler{archiver: archiver}
}

type ArchiveListResponse struct {
	Archives []*archive.ArchiveFile `json:"archives"`
	Count    int                    `json:"count"`
}

func archiveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, archive.ErrArchiveNotFound), errors.Is(err, archive.ErrJobNotArchived):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "archive_error", Message: err.Error()})
	}
}

func (h *ArchiveHandler) ListArchives(c *gin.Context) {
	archives, err := h.archiver.ListArchives(c.Request.Context())
	if err != nil {
		archiveError(c, err)
		return
	}
	if archives == nil {
		archives = []*archive.ArchiveFile{}
	}

	c.JSON(http.StatusOK, ArchiveListResponse{
		Archives: archives,
		Count:    len(archives),
	})
}

func (h *ArchiveHandler) GetArchiveInfo(c *gin.Context) {
	info, err := h.archiver.GetArchiveInfo(c.Request.Context(), c.Param("filename"))
	if err != nil {
		archiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *ArchiveHandler) DeleteArchive(c *gin.Context) {
	if err := h.archiver.DeleteArchive(c.Request.Context(), c.Param("filename")); err != nil {
		archiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "archive deleted"})
}

type TriggerArchiveResponse struct {
	Message  string `json:"message"`
	Archived int    `json:"archived"`
}

func (h *ArchiveHandler) TriggerArchive(c *gin.Context) {
	n, err := h.archiver.RunArchive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"message":  "archive completed with errors",
			"archived": n,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, TriggerArchiveResponse{Message: "archive completed", Archived: n})
}

type RestoreJobRequest struct {
	OriginalID string `json:"original_id" binding:"required"`
}

func (h *ArchiveHandler) RestoreJob(c *gin.Context) {
	var req RestoreJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	if err := h.archiver.RestoreJob(c.Request.Context(), req.OriginalID); err != nil {
		archiveError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":     "job restored",
		"original_id": req.OriginalID,
	})
}

type ArchiveSettingsResponse struct {
	ArchivePath string `json:"archive_path"`
	ArchiveDays int    `json:"archive_days"`
}

func (h *ArchiveHandler) GetArchiveSettings(c *gin.Context) {
	c.JSON(http.StatusOK, ArchiveSettingsResponse{
		ArchivePath: h.archiver.GetArchivePath(),
		ArchiveDays: h.archiver.GetArchiveDays(),
	})
}

type UpdateArchiveSettingsRequest struct {
	ArchiveDays int `json:"archive_days" binding:"required,min=1,max=365"`
}

// UpdateArchiveSettings changes the retention window and persists it so it
// survives a restart.
func (h *ArchiveHandler) UpdateArchiveSettings(c *gin.Context) {
	var req UpdateArchiveSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
		return
	}

	if err := db.Settings.SetSetting(c.Request.Context(), settingsKeyArchiveDays, strconv.Itoa(req.ArchiveDays), false); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update archive days",
		})
		return
	}
	h.archiver.SetArchiveDays(req.ArchiveDays)

	c.JSON(http.StatusOK, ArchiveSettingsResponse{
		ArchivePath: h.archiver.GetArchivePath(),
		ArchiveDays: req.ArchiveDays,
	})
}

func (h *ArchiveHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/archives", h.ListArchives)
	r.GET("/archives/:filename", h.GetArchiveInfo)
	r.DELETE("/archives/:filename", h.DeleteArchive)
	r.POST("/archives/run", h.TriggerArchive)
	r.POST("/archives/restore", h.RestoreJob)
	r.GET("/settings/archival", h.GetArchiveSettings)
	r.PUT("/settings/archival", h.UpdateArchiveSettings)
}
