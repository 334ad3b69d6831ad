package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/gin-gonic/gin"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/api"
	"github.com/orrn/dsrx/internal/api/middleware"
	"github.com/orrn/dsrx/internal/archive"
	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/core"
	"github.com/orrn/dsrx/internal/db"
	"github.com/orrn/dsrx/internal/logging"
	"github.com/orrn/dsrx/internal/render"
	"github.com/orrn/dsrx/internal/spooler"
	"github.com/orrn/dsrx/internal/webhook"
)

var (
	version  = "dev"
	hash     = "nil"
	datetime = "nil"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	cfg    *config.Config
	model  config.ModelConfig
	logger *zap.Logger

	spool  spooler.Spooler
	status spooler.StatusReader
	papers *core.PaperResolver
}

// setup loads the configuration and binds the printer backend. It runs
// before every command.
func (a *App) setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	config.ApplyEnv(cfg)
	if v := c.String("backend"); v != "" {
		cfg.Printer.Backend = v
	}
	if v := c.String("printer"); v != "" {
		cfg.Printer.Name = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.model, _ = cfg.ActiveModel()
	a.logger = logger

	switch cfg.Printer.Backend {
	case config.BackendPreview:
		emu := spooler.NewEmulated(cfg.Printer.Name, cfg.Extension.Signature)
		a.spool, a.status = emu, emu
	default:
		a.spool = spooler.New()
		a.status = spooler.NewStatusReader(cfg.Printer.StatusLibrary)
	}
	a.papers = core.NewPaperResolver(a.spool)
	return nil
}

func (a *App) teardown(c *cli.Context) error {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

func (a *App) pipeline() (render.Pipeline, error) {
	if a.cfg.Printer.Backend == config.BackendPreview {
		return render.NewPreviewPipeline(a.cfg.Printer.PreviewDir, a.cfg.Printer.RasterDPI, a.logger), nil
	}
	return render.NewGDIPipeline(a.cfg.Printer.Name, a.logger)
}

func (a *App) newController(recorder core.JobRecorder, webhooks core.WebhookSender) (*core.Controller, error) {
	pipeline, err := a.pipeline()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s backend: %w", a.cfg.Printer.Backend, err)
	}

	return core.NewController(core.ControllerConfig{
		PrinterName: a.cfg.Printer.Name,
		PaperName:   a.cfg.Printer.PaperName,
		Model:       a.model,
		Settings:    core.SettingsFromConfig(a.cfg.Settings),
	}, core.ControllerDeps{
		Patcher:  core.NewPatcher(a.spool, a.cfg.Extension, a.model, a.logger),
		Papers:   a.papers,
		Pipeline: pipeline,
		Recorder: recorder,
		Webhooks: webhooks,
		Logger:   a.logger,
	}), nil
}

// storedArchiveDays returns the retention window saved through the API, if
// any.
func storedArchiveDays(ctx context.Context, fallback int) int {
	s, err := db.Settings.GetSetting(ctx, "archive_days")
	if err != nil {
		return fallback
	}
	days, err := strconv.Atoi(s.Value)
	if err != nil || days <= 0 {
		return fallback
	}
	return days
}

func (a *App) Serve(c *cli.Context) error {
	cfg := a.cfg
	log := a.logger

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sender := webhook.NewWebhookSender(db.Webhooks, cfg.Webhooks, log)
	sender.Start()
	defer sender.Stop()

	monitor := core.NewMonitor(cfg.Printer.Name, cfg.Printer.StatusPollInterval, a.papers, a.status, sender, log)
	monitor.Start()
	defer monitor.Stop()

	archiver, err := archive.NewArchiver(archive.ArchiveConfig{
		ArchivePath: cfg.Database.ArchivePath,
		ArchiveDays: storedArchiveDays(c.Context, cfg.Database.ArchiveDays),
	}, log)
	if err != nil {
		return err
	}
	archiver.Start()
	defer archiver.Stop()

	ctrl, err := a.newController(db.Jobs, sender)
	if err != nil {
		return err
	}

	var auth *middleware.AuthMiddleware
	if cfg.Server.AuthEnabled {
		if auth, err = middleware.NewAuthMiddleware(db.Settings); err != nil {
			return fmt.Errorf("failed to initialise auth: %w", err)
		}
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.Deps{
		Config:     cfg,
		Controller: ctrl,
		Papers:     a.papers,
		Monitor:    monitor,
		Webhooks:   sender,
		Archiver:   archiver,
		Auth:       auth,
		Logger:     log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("printer", cfg.Printer.Name),
			zap.String("backend", cfg.Printer.Backend),
			zap.Bool("auth", auth != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Print runs one job in-process, outside the service.
func (a *App) Print(c *cli.Context) error {
	ctrl, err := a.newController(nil, nil)
	if err != nil {
		return err
	}

	result := ctrl.PrintImage(c.Context, core.PrintJobRequest{
		FilePath:         c.String("file"),
		IsHalfCut:        c.Bool("half-cut"),
		IsRotateRequired: c.Bool("rotate"),
		NumberOfPage:     c.Int("pages"),
	})

	body, err := json.MarshalIndent(result, "", "   ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	if !result.Success {
		return cli.Exit("", 1)
	}
	return nil
}

func (a *App) ListPapers(c *cli.Context) error {
	papers, err := a.papers.ResolvePaperSizes(a.cfg.Printer.Name)
	if err != nil {
		return err
	}
	OutputPaperList(papers)
	return nil
}

func (a *App) Port(c *cli.Context) error {
	port, err := a.papers.ResolvePortName(a.cfg.Printer.Name)
	if err != nil {
		return err
	}
	if port == "" {
		fmt.Printf("%s is offline or not bidirectional\n", a.cfg.Printer.Name)
		return nil
	}
	fmt.Println(port)
	return nil
}

func (a *App) Status(c *cli.Context) error {
	monitor := core.NewMonitor(a.cfg.Printer.Name, 0, a.papers, a.status, nil, a.logger)
	status := monitor.CheckStatus()

	body, err := json.MarshalIndent(status, "", "   ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func (a *App) LocateExtension(c *cli.Context) error {
	patcher := core.NewPatcher(a.spool, a.cfg.Extension, a.model, a.logger)
	info, err := patcher.Inspect(a.cfg.Printer.Name)
	if err != nil {
		return err
	}

	t := tabby.New()
	t.AddHeader("DEVICE", "SPEC", "SIZE", "DRIVER EXTRA", "EXTENSION TOP")
	t.AddLine(info.DeviceName, fmt.Sprintf("0x%04X", info.SpecVersion), info.Size, info.DriverExtra, info.ExtensionTop)
	t.Print()
	return nil
}

// Migrations lists the applied schema versions of the configured database.
func (a *App) Migrations(c *cli.Context) error {
	if err := db.Init(db.Config{Path: a.cfg.Database.Path}); err != nil {
		return err
	}
	defer db.Close()

	versions, err := db.MigrationStatus()
	if err != nil {
		return err
	}
	t := tabby.New()
	t.AddHeader("VERSION")
	for _, v := range versions {
		t.AddLine(v)
	}
	t.Print()
	return nil
}

func (a *App) Version(c *cli.Context) error {
	fmt.Printf("dsrx has version %s built from %s on %s\n", version, hash, datetime)
	return nil
}

func NewApp() *cli.App {
	app := &App{}

	return &cli.App{
		Name:  "dsrx",
		Usage: "DS-RX1 photo print service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the YAML configuration",
				EnvVars: []string{"DSRX_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "printer backend: spooler or preview",
			},
			&cli.StringFlag{
				Name:  "printer",
				Usage: "printer name",
			},
		},
		Before: app.setup,
		After:  app.teardown,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP print service",
				Action: app.Serve,
			},
			{
				Name:  "print",
				Usage: "print one image and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "image path (*.png, *.jpg, *.jpeg)",
					},
					&cli.BoolFlag{
						Name:  "half-cut",
						Usage: "print two strips per page with the 2-inch cut",
					},
					&cli.BoolFlag{
						Name:  "rotate",
						Usage: "rotate the image 90 degrees clockwise",
					},
					&cli.IntFlag{
						Name:    "pages",
						Aliases: []string{"n"},
						Value:   1,
						Usage:   "number of pages",
					},
				},
				Action: app.Print,
			},
			{
				Name:   "papers",
				Usage:  "list the driver's paper sizes",
				Action: app.ListPapers,
			},
			{
				Name:   "port",
				Usage:  "show the printer port when it is ready",
				Action: app.Port,
			},
			{
				Name:   "status",
				Usage:  "query the printer status once",
				Action: app.Status,
			},
			{
				Name:   "devmode",
				Usage:  "show the driver DEVMODE and its vendor extension block",
				Action: app.LocateExtension,
			},
			{
				Name:   "migrations",
				Usage:  "list applied database migrations",
				Action: app.Migrations,
			},
			{
				Name:   "version",
				Usage:  "show the version",
				Action: app.Version,
			},
		},
	}
}

func OutputPaperList(papers []core.PaperSizeEntry) {
	t := tabby.New()
	t.AddHeader("NAME", "CODE", "MULTI-CUT")
	for _, p := range papers {
		t.AddLine(p.Name, p.Code, p.MultiCut)
	}
	t.Print()
}

func main() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
