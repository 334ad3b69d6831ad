package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/api/handlers"
	"github.com/orrn/dsrx/internal/api/middleware"
	"github.com/orrn/dsrx/internal/archive"
	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/logging"
)

// Deps are the components the HTTP surface serves.
type Deps struct {
	Config     *config.Config
	Controller handlers.PrintController
	Papers     handlers.PaperSource
	Monitor    handlers.StatusSource
	Webhooks   handlers.WebhookTester
	Archiver   *archive.Archiver
	// Auth guards every /api/v1 route except /auth when set.
	Auth   *middleware.AuthMiddleware
	Logger *zap.Logger
}

// SetupRouter sets up the API routes
func SetupRouter(d Deps) *gin.Engine {
	logger := logging.OrNop(d.Logger).Named("http")

	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	api := router.Group("/api/v1")
	protected := api
	if d.Auth != nil {
		d.Auth.RegisterRoutes(api)
		protected = api.Group("")
		protected.Use(d.Auth.RequireAuth())
		d.Auth.RegisterProtectedRoutes(protected)
	}

	handlers.NewPrintHandler(d.Controller).RegisterRoutes(protected)
	handlers.NewJobHandler().RegisterRoutes(protected)
	handlers.NewPrinterHandler(d.Config.Printer.Name, d.Papers, d.Monitor).RegisterRoutes(protected)
	handlers.NewWebhookHandler(d.Webhooks).RegisterRoutes(protected)
	handlers.NewSettingsHandler(d.Config).RegisterRoutes(protected)
	if d.Archiver != nil {
		handlers.NewArchiveHandler(d.Archiver).RegisterRoutes(protected)
	}

	router.GET("/status", func(c *gin.Context) {
		st := d.Controller.State()
		c.JSON(http.StatusOK, gin.H{
			"printer": d.Config.Printer.Name,
			"model":   d.Config.Printer.Model,
			"backend": d.Config.Printer.Backend,
			"busy":    st.Busy(),
		})
	})

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
