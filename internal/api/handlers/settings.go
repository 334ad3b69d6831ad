package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/db"
)

type SettingsHandler struct {
	config *config.Config
}

type ServerConfigResponse struct {
	Port               int    `json:"port"`
	AuthEnabled        bool   `json:"auth_enabled"`
	DatabasePath       string `json:"database_path"`
	ArchivePath        string `json:"archive_path"`
	PrinterName        string `json:"printer_name"`
	PrinterModel       string `json:"printer_model"`
	Backend            string `json:"backend"`
	PaperName          string `json:"paper_name,omitempty"`
	StatusPollInterval string `json:"status_poll_interval"`
	RasterDPI          int    `json:"raster_dpi"`
	WebhookWorkers     int    `json:"webhook_workers"`
	WebhookRetries     int    `json:"webhook_retries"`
	LogLevel           string `json:"log_level"`
	LogFormat          string `json:"log_format"`
}

type SettingsResponse struct {
	Server     ServerConfigResponse  `json:"server"`
	Model      config.ModelConfig    `json:"model"`
	Defaults   config.SettingsConfig `json:"print_defaults"`
	Stored     []*db.Setting         `json:"stored"`
	Migrations []string              `json:"migrations"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) serverConfig() ServerConfigResponse {
	return ServerConfigResponse{
		Port:               h.config.Server.Port,
		AuthEnabled:        h.config.Server.AuthEnabled,
		DatabasePath:       h.config.Database.Path,
		ArchivePath:        h.config.Database.ArchivePath,
		PrinterName:        h.config.Printer.Name,
		PrinterModel:       h.config.Printer.Model,
		Backend:            h.config.Printer.Backend,
		PaperName:          h.config.Printer.PaperName,
		StatusPollInterval: h.config.Printer.StatusPollInterval.String(),
		RasterDPI:          h.config.Printer.RasterDPI,
		WebhookWorkers:     h.config.Webhooks.WorkerCount,
		WebhookRetries:     h.config.Webhooks.RetryCount,
		LogLevel:           h.config.Logging.Level,
		LogFormat:          h.config.Logging.Format,
	}
}

// GetSettings returns the effective configuration without secrets, plus the
// stored settings with secret values blanked.
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	stored, err := db.Settings.ListSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to list settings",
		})
		return
	}
	if stored == nil {
		stored = []*db.Setting{}
	}

	migrations, err := db.MigrationStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to read migration status",
		})
		return
	}

	model, _ := h.config.ActiveModel()
	c.JSON(http.StatusOK, SettingsResponse{
		Server:     h.serverConfig(),
		Model:      model,
		Defaults:   h.config.Settings,
		Stored:     stored,
		Migrations: migrations,
	})
}

func (h *SettingsHandler) GetServerConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.serverConfig())
}

func (h *SettingsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/settings", h.GetSettings)
	r.GET("/settings/server", h.GetServerConfig)
}
