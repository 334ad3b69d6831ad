package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/core"
	"github.com/orrn/dsrx/internal/db"
	"github.com/orrn/dsrx/internal/logging"
)

type WebhookEvent string

const (
	EventJobStarted           WebhookEvent = "job_started"
	EventJobCompleted         WebhookEvent = "job_completed"
	EventJobFailed            WebhookEvent = "job_failed"
	EventPrinterStatusChanged WebhookEvent = "printer_status_changed"
	EventTest                 WebhookEvent = "test"
)

// Events lists the event names a webhook can subscribe to.
var Events = []WebhookEvent{
	EventJobStarted,
	EventJobCompleted,
	EventJobFailed,
	EventPrinterStatusChanged,
}

type WebhookPayload struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	Signature string      `json:"signature,omitempty"`
}

type JobEventData struct {
	JobID        string `json:"job_id"`
	DocumentName string `json:"document_name"`
	FilePath     string `json:"file_path"`
	Status       string `json:"status"`
	Pages        int    `json:"pages"`
	PagesPrinted int    `json:"pages_printed"`
	HalfCut      bool   `json:"half_cut"`
	ErrorMessage string `json:"error_message,omitempty"`
	Duration     int64  `json:"duration_ms,omitempty"`
}

type PrinterStatusData struct {
	PrinterName    string    `json:"printer_name"`
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	StatusCode     int32     `json:"status_code"`
	StatusText     string    `json:"status_text"`
	PortName       string    `json:"port_name"`
	IsOnline       bool      `json:"is_online"`
	Timestamp      time.Time `json:"timestamp"`
}

// Store is the webhook registry the sender reads from.
type Store interface {
	ListActiveWebhooksForEvent(ctx context.Context, event string) ([]*db.Webhook, error)
	GetWebhookByID(ctx context.Context, id int64) (*db.Webhook, error)
}

type webhookTask struct {
	webhookID int64
	event     WebhookEvent
	payload   *WebhookPayload
	attempt   int
}

// statusError is a non-2xx response from a webhook endpoint.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http error: %d", e.code)
}

var _ core.WebhookSender = (*WebhookSender)(nil)

type WebhookSender struct {
	store       Store
	httpClient  *http.Client
	retryCount  int
	retryDelay  time.Duration
	workerCount int
	queue       chan *webhookTask
	logger      *zap.Logger
	stopCh      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewWebhookSender(store Store, cfg config.WebhookConfig, logger *zap.Logger) *WebhookSender {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &WebhookSender{
		store: store,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount:  cfg.RetryCount,
		retryDelay:  cfg.RetryDelay,
		workerCount: cfg.WorkerCount,
		queue:       make(chan *webhookTask, cfg.QueueSize),
		logger:      logging.OrNop(logger).Named("webhook"),
		stopCh:      make(chan struct{}),
	}
}

func (s *WebhookSender) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop ends the workers. Queued deliveries that have not started are
// dropped.
func (s *WebhookSender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func jobData(job *core.JobInfo, status core.JobStatus) *JobEventData {
	return &JobEventData{
		JobID:        job.ID,
		DocumentName: job.DocumentName,
		FilePath:     job.FilePath,
		Status:       string(status),
		Pages:        job.Pages,
		HalfCut:      job.HalfCut,
	}
}

func (s *WebhookSender) SendJobStarted(job *core.JobInfo) {
	s.enqueue(EventJobStarted, jobData(job, core.JobStatusPrinting))
}

func (s *WebhookSender) SendJobCompleted(job *core.JobInfo, pagesPrinted int, duration time.Duration) {
	data := jobData(job, core.JobStatusCompleted)
	data.PagesPrinted = pagesPrinted
	data.Duration = duration.Milliseconds()
	s.enqueue(EventJobCompleted, data)
}

func (s *WebhookSender) SendJobFailed(job *core.JobInfo, pagesPrinted int, errMsg string) {
	data := jobData(job, core.JobStatusFailed)
	data.PagesPrinted = pagesPrinted
	data.ErrorMessage = errMsg
	s.enqueue(EventJobFailed, data)
}

func (s *WebhookSender) SendPrinterStatusChange(printerName, prevStatus, newStatus string, status *core.PrinterStatus) error {
	data := &PrinterStatusData{
		PrinterName:    printerName,
		PreviousStatus: prevStatus,
		NewStatus:      newStatus,
		StatusCode:     -1,
		Timestamp:      time.Now(),
	}
	if status != nil {
		data.StatusCode = status.Code
		data.StatusText = status.Text
		data.PortName = status.PortName
		data.IsOnline = status.IsOnline
	}
	return s.enqueue(EventPrinterStatusChanged, data)
}

// SendTest delivers a test event to w once, bypassing the queue.
func (s *WebhookSender) SendTest(w *db.Webhook) error {
	return s.sendRequest(w, &WebhookPayload{
		Event:     string(EventTest),
		Timestamp: time.Now(),
		Data:      map[string]string{"message": "webhook test"},
	})
}

func (s *WebhookSender) enqueue(event WebhookEvent, data interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	webhooks, err := s.store.ListActiveWebhooksForEvent(ctx, string(event))
	if err != nil {
		s.logger.Error("failed to get webhooks for event", zap.String("event", string(event)), zap.Error(err))
		return err
	}

	for _, webhook := range webhooks {
		task := &webhookTask{
			webhookID: webhook.ID,
			event:     event,
			payload: &WebhookPayload{
				Event:     string(event),
				Timestamp: time.Now(),
				Data:      data,
			},
		}

		select {
		case s.queue <- task:
		default:
			s.logger.Warn("queue full, dropping webhook",
				zap.Int64("webhook_id", webhook.ID),
				zap.String("event", string(event)))
		}
	}
	return nil
}

func (s *WebhookSender) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case task := <-s.queue:
			if err := s.sendWithRetry(task); err != nil {
				s.logger.Warn("webhook delivery failed",
					zap.Int("worker", id),
					zap.Int64("webhook_id", task.webhookID),
					zap.String("event", string(task.event)),
					zap.Int("attempts", task.attempt),
					zap.Error(err))
			}
		}
	}
}

func (s *WebhookSender) sendWithRetry(task *webhookTask) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	webhook, err := s.store.GetWebhookByID(ctx, task.webhookID)
	cancel()
	if err != nil {
		return fmt.Errorf("get webhook: %w", err)
	}

	var lastErr error
	for task.attempt < s.retryCount {
		task.attempt++

		err := s.sendRequest(webhook, task.payload)
		if err == nil {
			return nil
		}

		lastErr = err

		if isClientError(err) {
			s.logger.Info("client error, not retrying", zap.Int64("webhook_id", webhook.ID), zap.Error(err))
			return err
		}

		if task.attempt < s.retryCount {
			backoff := s.retryDelay * time.Duration(1<<(task.attempt-1))
			s.logger.Debug("retrying webhook",
				zap.Int64("webhook_id", webhook.ID),
				zap.Int("attempt", task.attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err))

			select {
			case <-s.stopCh:
				return fmt.Errorf("shutdown requested")
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *WebhookSender) sendRequest(webhook *db.Webhook, payload *WebhookPayload) error {
	payloadBytes, err := json.Marshal(payload.Data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	signature := ""
	if webhook.Secret != "" {
		signature = signPayload(payloadBytes, webhook.Secret)
	}

	body := *payload
	body.Signature = signature
	fullPayload, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewReader(fullPayload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", signature)
	req.Header.Set("X-Webhook-Event", payload.Event)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &statusError{code: resp.StatusCode}
	}

	return nil
}

// signPayload signs the JSON encoding of the payload data.
func signPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func isClientError(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code >= 400 && se.code < 500
}
