package core

import (
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/devmode"
	"github.com/orrn/dsrx/internal/render"
	"github.com/orrn/dsrx/internal/spooler"
)

const (
	testPrinter   = "DS-RX1"
	testSigWord   = 2
	testExtraWord = 64

	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func spoolerOpenErr() error {
	return spooler.ErrOpenPrinter
}

// newDevModeBuffer returns a driver DEVMODE whose extension block top sits
// one word before the signature.
func newDevModeBuffer() []byte {
	buf := make([]byte, devmode.PublicSize+4*testExtraWord)
	binary.LittleEndian.PutUint16(buf[68:], devmode.PublicSize)
	binary.LittleEndian.PutUint16(buf[70:], 4*testExtraWord)
	binary.LittleEndian.PutUint32(buf[72:], devmode.DM_PAPERLENGTH|devmode.DM_PAPERWIDTH)
	binary.LittleEndian.PutUint32(buf[devmode.PublicSize+4*testSigWord:], 0x4D534654)
	return buf
}

// extWord reads extension field word off relative to the block top.
func extWord(buf []byte, off int) int32 {
	return int32(binary.LittleEndian.Uint32(buf[devmode.PublicSize+4*(testSigWord-1+off):]))
}

type fakeSpooler struct {
	mu sync.Mutex

	devMode  []byte
	devErr   error
	mergeErr error
	merged   []byte

	names  []string
	papers []uint16
	capErr error

	info    *spooler.PrinterInfo
	infoErr error
}

func newFakeSpooler() *fakeSpooler {
	return &fakeSpooler{
		devMode: newDevModeBuffer(),
		names:   []string{"(6x4)", "(6x4) x 2", "(6x8)"},
		papers:  []uint16{127, 128, 129},
		info: &spooler.PrinterInfo{
			PrinterName: testPrinter,
			PortName:    "USB001",
			Attributes:  spooler.PRINTER_ATTRIBUTE_ENABLE_BIDI,
		},
	}
}

func (f *fakeSpooler) DevMode(string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devErr != nil {
		return nil, f.devErr
	}
	return append([]byte(nil), f.devMode...), nil
}

func (f *fakeSpooler) MergeDevMode(_ string, dm []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return nil, f.mergeErr
	}
	f.merged = append([]byte(nil), dm...)
	return dm, nil
}

func (f *fakeSpooler) PaperNames(string, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names, f.capErr
}

func (f *fakeSpooler) Papers(string, string) ([]uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.papers, f.capErr
}

func (f *fakeSpooler) PrinterInfo(string) (*spooler.PrinterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	info := *f.info
	return &info, nil
}

func (f *fakeSpooler) setInfo(attrs uint32) {
	f.mu.Lock()
	f.info.Attributes = attrs
	f.mu.Unlock()
}

type drawCall struct {
	page int
	size image.Point
	rect render.Rect
}

type recordingCanvas struct {
	page  int
	calls *[]drawCall
}

func (c recordingCanvas) DrawImage(img image.Image, r render.Rect) {
	*c.calls = append(*c.calls, drawCall{page: c.page, size: img.Bounds().Size(), rect: r})
}

var errFlush = errors.New("page not emitted")

// fakePipeline runs the page loop against a recording canvas. When gate is
// set, Print signals started and waits for release before the first page.
type fakePipeline struct {
	mu    sync.Mutex
	calls []drawCall
	docs  []*render.Document
	err   error
	// flushErrAt fails emitting that page after it is drawn.
	flushErrAt int

	started chan struct{}
	release chan struct{}
}

func (p *fakePipeline) gate() {
	p.started = make(chan struct{}, 16)
	p.release = make(chan struct{})
}

func (p *fakePipeline) Print(ctx context.Context, doc *render.Document) error {
	p.mu.Lock()
	p.docs = append(p.docs, doc)
	failWith := p.err
	flushErrAt := p.flushErrAt
	p.mu.Unlock()

	if p.started != nil {
		p.started <- struct{}{}
		<-p.release
	}

	if failWith != nil {
		return failWith
	}

	var calls []drawCall
	defer func() {
		p.mu.Lock()
		p.calls = append(p.calls, calls...)
		p.mu.Unlock()
	}()

	for i := 1; ; i++ {
		if doc.Copies > 0 && i > doc.Copies {
			return render.ErrPageOverrun
		}
		more, err := doc.PrintPage(ctx, &render.Page{
			Index:  i,
			Bounds: render.Rect{W: doc.Width, H: doc.Height},
			Canvas: recordingCanvas{page: i, calls: &calls},
		})
		if err != nil {
			return err
		}
		if i == flushErrAt {
			return errFlush
		}
		if doc.PageDone != nil {
			doc.PageDone(i)
		}
		if !more {
			return nil
		}
	}
}

func (p *fakePipeline) drawCalls() []drawCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]drawCall(nil), p.calls...)
}

type recordedJob struct {
	status  JobStatus
	printed int
	errMsg  string
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []*JobInfo
	finished map[string]recordedJob
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{finished: make(map[string]recordedJob)}
}

func (r *fakeRecorder) JobStarted(_ context.Context, job *JobInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, job)
	return nil
}

func (r *fakeRecorder) JobFinished(_ context.Context, id string, status JobStatus, printed int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished[id] = recordedJob{status: status, printed: printed, errMsg: errMsg}
	return nil
}

type statusChange struct {
	from, to string
}

type fakeWebhooks struct {
	mu        sync.Mutex
	started   int
	completed int
	failed    []string
	changes   []statusChange
}

func (w *fakeWebhooks) SendJobStarted(*JobInfo) {
	w.mu.Lock()
	w.started++
	w.mu.Unlock()
}

func (w *fakeWebhooks) SendJobCompleted(*JobInfo, int, time.Duration) {
	w.mu.Lock()
	w.completed++
	w.mu.Unlock()
}

func (w *fakeWebhooks) SendJobFailed(_ *JobInfo, _ int, msg string) {
	w.mu.Lock()
	w.failed = append(w.failed, msg)
	w.mu.Unlock()
}

func (w *fakeWebhooks) SendPrinterStatusChange(_, from, to string, _ *PrinterStatus) error {
	w.mu.Lock()
	w.changes = append(w.changes, statusChange{from: from, to: to})
	w.mu.Unlock()
	return nil
}

func (w *fakeWebhooks) statusChanges() []statusChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]statusChange(nil), w.changes...)
}

func testModel() config.ModelConfig {
	cfg := config.Default()
	return cfg.Models[config.Model6Inch]
}

// writeImage saves a w x h solid image under dir and returns its path.
func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(imaging.New(w, h, color.NRGBA{R: 200, G: 10, B: 10, A: 255}), path))
	return path
}

type harness struct {
	ctrl     *Controller
	spool    *fakeSpooler
	pipeline *fakePipeline
	recorder *fakeRecorder
	webhooks *fakeWebhooks
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	spool := newFakeSpooler()
	h := &harness{
		spool:    spool,
		pipeline: &fakePipeline{},
		recorder: newFakeRecorder(),
		webhooks: &fakeWebhooks{},
	}
	h.ctrl = NewController(ControllerConfig{
		PrinterName: testPrinter,
		Model:       cfg.Models[config.Model6Inch],
		Settings:    SettingsFromConfig(cfg.Settings),
	}, ControllerDeps{
		Patcher:  NewPatcher(spool, cfg.Extension, cfg.Models[config.Model6Inch], nil),
		Papers:   NewPaperResolver(spool),
		Pipeline: h.pipeline,
		Recorder: h.recorder,
		Webhooks: h.webhooks,
	})
	return h
}
