package core

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/logging"
	"github.com/orrn/dsrx/internal/spooler"
)

// Monitor polls the printer's port and vendor status and reports changes.
type Monitor struct {
	printerName   string
	interval      time.Duration
	papers        *PaperResolver
	statusReader  spooler.StatusReader
	webhookSender WebhookSender
	logger        *zap.Logger

	mu     sync.RWMutex
	status *PrinterStatus

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMonitor(printerName string, interval time.Duration, papers *PaperResolver, statusReader spooler.StatusReader, webhookSender WebhookSender, logger *zap.Logger) *Monitor {
	return &Monitor{
		printerName:   printerName,
		interval:      interval,
		papers:        papers,
		statusReader:  statusReader,
		webhookSender: webhookSender,
		logger:        logging.OrNop(logger).Named("monitor"),
		stopCh:        make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.healthCheckLoop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Status returns the last observed status, or nil before the first check.
func (m *Monitor) Status() *PrinterStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == nil {
		return nil
	}
	s := *m.status
	return &s
}

// CheckStatus queries the printer now and records the result.
func (m *Monitor) CheckStatus() *PrinterStatus {
	status := &PrinterStatus{Code: -1, LastChecked: time.Now()}

	port, err := m.papers.ResolvePortName(m.printerName)
	switch {
	case err != nil:
		m.logger.Debug("port lookup failed", zap.String("printer", m.printerName), zap.Error(err))
	case port == "":
		// not bidirectional or switched offline
	default:
		status.PortName = port
		status.IsOnline = true
	}

	if status.IsOnline && m.statusReader != nil {
		code, err := m.statusReader.Status(port)
		if err != nil {
			if !errors.Is(err, spooler.ErrUnsupported) {
				m.logger.Warn("status read failed", zap.String("port", port), zap.Error(err))
			}
		} else {
			status.Code = code
		}
	}

	status.Text = DescribeStatus(status.Code)
	status.State = statusState(status.Code, status.IsOnline)
	status.CanPrint = status.State == "ready" || status.State == "printing" || status.State == "cooling"

	m.updateStatus(status)
	return status
}

func (m *Monitor) updateStatus(status *PrinterStatus) {
	m.mu.Lock()
	oldState := ""
	if m.status != nil {
		oldState = m.status.State
	}
	m.status = status
	m.mu.Unlock()

	if oldState == status.State {
		return
	}

	m.logger.Info("printer status changed",
		zap.String("printer", m.printerName),
		zap.String("from", oldState),
		zap.String("to", status.State),
		zap.String("text", status.Text))

	if m.webhookSender != nil {
		details := *status
		if err := m.webhookSender.SendPrinterStatusChange(m.printerName, oldState, status.State, &details); err != nil {
			m.logger.Warn("failed to send status webhook", zap.Error(err))
		}
	}
}

func (m *Monitor) healthCheckLoop() {
	defer m.wg.Done()

	interval := m.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CheckStatus()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckStatus()
		}
	}
}
