package core

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gorpher/gone"
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/logging"
	"github.com/orrn/dsrx/internal/render"
)

const (
	msgInProgress   = "Printing is in progress!"
	msgNoFile       = "No file specified!"
	msgBadFormat    = "Only accept *.png, *.jpg, *.jpeg file format!"
	msgFileNotFound = "File specify at %s is not found!"
	msgBadPageCount = "Invalid printing number - %d"
	msgSuccess      = "Successfully printed!"
)

var acceptedExtensions = []string{".png", ".jpg", ".jpeg"}

// JobState is the controller's view of the job in flight. An empty
// ImagePath means idle.
type JobState struct {
	ImagePath    string    `json:"image_path"`
	CurrentPage  int       `json:"current_page"`
	TotalPages   int       `json:"total_pages"`
	PagesPrinted int       `json:"pages_printed"`
	HalfCut      bool      `json:"half_cut"`
	Rotate       bool      `json:"rotate"`
	JobID        string    `json:"job_id,omitempty"`
	DocumentName string    `json:"document_name,omitempty"`
	StartedAt    time.Time `json:"started_at"`
}

func (s JobState) Busy() bool {
	return s.ImagePath != ""
}

func idleState() JobState {
	return JobState{CurrentPage: 1}
}

type ControllerConfig struct {
	PrinterName string
	// PaperName, when set, overrides the template paper size with the
	// driver code of that paper.
	PaperName string
	Model     config.ModelConfig
	Settings  PrintSettings
}

type ControllerDeps struct {
	Patcher  *Patcher
	Papers   *PaperResolver
	Pipeline render.Pipeline
	Recorder JobRecorder
	Webhooks WebhookSender
	Logger   *zap.Logger
}

// Controller runs print jobs one at a time.
type Controller struct {
	cfg      ControllerConfig
	patcher  *Patcher
	papers   *PaperResolver
	layout   *Layout
	pipeline render.Pipeline
	recorder JobRecorder
	webhooks WebhookSender
	logger   *zap.Logger

	loadImage func(path string) (image.Image, error)

	mu    sync.Mutex
	state JobState
}

func NewController(cfg ControllerConfig, deps ControllerDeps) *Controller {
	return &Controller{
		cfg:       cfg,
		patcher:   deps.Patcher,
		papers:    deps.Papers,
		layout:    NewLayout(cfg.Model),
		pipeline:  deps.Pipeline,
		recorder:  deps.Recorder,
		webhooks:  deps.Webhooks,
		logger:    logging.OrNop(deps.Logger).Named("printer"),
		loadImage: func(path string) (image.Image, error) { return imaging.Open(path) },
		state:     idleState(),
	}
}

// State returns a snapshot of the current job state.
func (c *Controller) State() JobState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PrintImage prints req and reports the outcome as a result value.
func (c *Controller) PrintImage(ctx context.Context, req PrintJobRequest) PrintResult {
	return ResultOf(c.Print(ctx, req))
}

// ResultOf converts the error returned by Print into a PrintResult.
func ResultOf(err error) PrintResult {
	if err != nil {
		return PrintResult{Success: false, Message: err.Error()}
	}
	return PrintResult{Success: true, Message: msgSuccess}
}

// Print validates and prints req, blocking until every page is delivered.
// An admitted job is not cancelled with ctx: once the document is open on
// the device every page is delivered.
func (c *Controller) Print(ctx context.Context, req PrintJobRequest) error {
	job, err := c.admit(req)
	if err != nil {
		c.logger.Info("print rejected", zap.String("file", req.FilePath), zap.Error(err))
		return err
	}
	defer c.reset()

	return c.run(context.WithoutCancel(ctx), job)
}

func validate(req PrintJobRequest) error {
	if strings.TrimSpace(req.FilePath) == "" {
		return invalidInput(msgNoFile)
	}

	accepted := false
	for _, ext := range acceptedExtensions {
		if strings.HasSuffix(req.FilePath, ext) {
			accepted = true
			break
		}
	}
	if !accepted {
		return invalidInput(msgBadFormat)
	}

	if !gone.FileExist(req.FilePath) {
		return invalidInput(msgFileNotFound, req.FilePath)
	}

	if req.NumberOfPage < 1 {
		return invalidInput(msgBadPageCount, req.NumberOfPage)
	}

	return nil
}

// admit checks and claims the job slot in one critical section.
func (c *Controller) admit(req PrintJobRequest) (*JobInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy() {
		return nil, newError(ErrAlreadyInProgress, msgInProgress, nil)
	}

	if err := validate(req); err != nil {
		return nil, err
	}

	job := &JobInfo{
		ID:           uuid.NewString(),
		DocumentName: strings.ToLower(uuid.NewString()),
		FilePath:     req.FilePath,
		HalfCut:      req.IsHalfCut,
		Rotate:       req.IsRotateRequired,
		Pages:        req.NumberOfPage,
		StartedAt:    time.Now(),
	}

	c.state = JobState{
		ImagePath:    job.FilePath,
		CurrentPage:  1,
		TotalPages:   job.Pages,
		HalfCut:      job.HalfCut,
		Rotate:       job.Rotate,
		JobID:        job.ID,
		DocumentName: job.DocumentName,
		StartedAt:    job.StartedAt,
	}
	return job, nil
}

func (c *Controller) reset() {
	c.mu.Lock()
	c.state = idleState()
	c.mu.Unlock()
}

func (c *Controller) run(ctx context.Context, job *JobInfo) error {
	log := c.logger.With(zap.String("job_id", job.ID), zap.String("document", job.DocumentName))
	log.Info("print started",
		zap.String("file", job.FilePath),
		zap.Int("pages", job.Pages),
		zap.Bool("half_cut", job.HalfCut),
		zap.Bool("rotate", job.Rotate))

	if c.recorder != nil {
		if err := c.recorder.JobStarted(ctx, job); err != nil {
			log.Warn("failed to record job start", zap.Error(err))
		}
	}
	if c.webhooks != nil {
		c.webhooks.SendJobStarted(job)
	}

	err := c.print(ctx, job)
	printed := c.State().PagesPrinted

	if err != nil {
		if KindOf(err) == nil {
			err = newError(ErrDeviceUnavailable, err.Error(), err)
		}
		log.Error("print failed", zap.Int("pages_printed", printed), zap.Error(err))
		c.finish(job, JobStatusFailed, printed, err.Error())
		if c.webhooks != nil {
			c.webhooks.SendJobFailed(job, printed, err.Error())
		}
		return err
	}

	log.Info("print completed", zap.Int("pages_printed", printed), zap.Duration("elapsed", time.Since(job.StartedAt)))
	c.finish(job, JobStatusCompleted, printed, "")
	if c.webhooks != nil {
		c.webhooks.SendJobCompleted(job, printed, time.Since(job.StartedAt))
	}
	return nil
}

func (c *Controller) finish(job *JobInfo, status JobStatus, printed int, errMsg string) {
	if c.recorder == nil {
		return
	}
	// history is written even when the caller's context is already done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.JobFinished(ctx, job.ID, status, printed, errMsg); err != nil {
		c.logger.Warn("failed to record job result", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (c *Controller) print(ctx context.Context, job *JobInfo) error {
	settings := c.cfg.Settings
	if c.cfg.PaperName != "" {
		code, err := c.papers.PaperCode(c.cfg.PrinterName, c.cfg.PaperName)
		if err != nil {
			return err
		}
		settings.PaperSize = code
	}

	dm, err := c.patcher.ApplySettings(c.cfg.PrinterName, settings.ForJob(job.HalfCut))
	if err != nil {
		return err
	}

	doc := &render.Document{
		Name:      job.DocumentName,
		Width:     c.cfg.Model.PageWidth,
		Height:    c.cfg.Model.PageHeight,
		Copies:    job.Pages,
		DevMode:   dm,
		PrintPage: c.printPage,
		PageDone:  c.pageDone,
	}
	return c.pipeline.Print(ctx, doc)
}

// printPage draws one physical page. The image is decoded again for every
// page.
func (c *Controller) printPage(ctx context.Context, page *render.Page) (bool, error) {
	st := c.State()

	img, err := c.loadImage(st.ImagePath)
	if err != nil {
		return false, newError(ErrInvalidInput, fmt.Sprintf("Failed to load image %s: %v", st.ImagePath, err), err)
	}

	if st.Rotate {
		img = imaging.Rotate270(img)
	}

	if st.HalfCut {
		b := img.Bounds()
		if !c.layout.IsHalfCutAspect(b.Dx(), b.Dy()) {
			c.logger.Debug("half-cut image is not strip shaped",
				zap.String("file", st.ImagePath),
				zap.Int("width", b.Dx()),
				zap.Int("height", b.Dy()))
		}
	}

	rects := c.layout.Draw(page.Canvas, page.Bounds, img, st.HalfCut)
	c.logger.Debug("page drawn",
		zap.String("document", st.DocumentName),
		zap.Int("page", page.Index),
		zap.Int("total", st.TotalPages),
		zap.Int("draws", len(rects)))

	return c.advance(), nil
}

// advance reports whether another page follows the one just drawn.
func (c *Controller) advance() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.CurrentPage >= c.state.TotalPages {
		return false
	}
	c.state.CurrentPage++
	return true
}

// pageDone counts a page the pipeline has emitted.
func (c *Controller) pageDone(int) {
	c.mu.Lock()
	c.state.PagesPrinted++
	c.mu.Unlock()
}
