package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/core"
	"github.com/orrn/dsrx/internal/db"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"))
}

type memStore struct {
	mu       sync.Mutex
	webhooks []*db.Webhook
}

func (s *memStore) ListActiveWebhooksForEvent(_ context.Context, event string) ([]*db.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.Webhook
	for _, w := range s.webhooks {
		if w.Enabled && strings.Contains(w.EventsJSON, `"`+event+`"`) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *memStore) GetWebhookByID(_ context.Context, id int64) (*db.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.webhooks {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, sql.ErrNoRows
}

type received struct {
	event     string
	signature string
	body      []byte
}

type receiver struct {
	mu    sync.Mutex
	got   []received
	codes []int
	calls atomic.Int32
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	n := int(r.calls.Add(1))

	r.mu.Lock()
	r.got = append(r.got, received{
		event:     req.Header.Get("X-Webhook-Event"),
		signature: req.Header.Get("X-Webhook-Signature"),
		body:      body,
	})
	code := http.StatusOK
	if n <= len(r.codes) {
		code = r.codes[n-1]
	}
	r.mu.Unlock()

	w.WriteHeader(code)
}

func (r *receiver) requests() []received {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]received(nil), r.got...)
}

func testConfig() config.WebhookConfig {
	return config.WebhookConfig{
		RetryCount:  3,
		RetryDelay:  time.Millisecond,
		Timeout:     time.Second,
		WorkerCount: 2,
		QueueSize:   10,
	}
}

func newTestSender(t *testing.T, rcv *receiver, secret string, events string) *WebhookSender {
	t.Helper()
	srv := httptest.NewServer(rcv)
	t.Cleanup(srv.Close)

	store := &memStore{webhooks: []*db.Webhook{
		{ID: 1, Name: "lab", URL: srv.URL, Secret: secret, EventsJSON: events, Enabled: true},
		{ID: 2, Name: "disabled", URL: srv.URL, EventsJSON: events, Enabled: false},
	}}

	s := NewWebhookSender(store, testConfig(), nil)
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

var testJob = &core.JobInfo{
	ID:           "5b1c6f0e-0c52-4d57-a5d1-52a1b1a0f7c1",
	DocumentName: "c0ffee00-0000-4000-8000-000000000000",
	FilePath:     "/photos/a.png",
	HalfCut:      true,
	Pages:        2,
}

func TestSendJobCompletedSignsPayload(t *testing.T) {
	rcv := &receiver{}
	s := newTestSender(t, rcv, "topsecret", `["job_completed"]`)

	s.SendJobCompleted(testJob, 2, 1500*time.Millisecond)

	require.Eventually(t, func() bool { return len(rcv.requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	req := rcv.requests()[0]
	assert.Equal(t, "job_completed", req.event)

	var payload struct {
		Event     string          `json:"event"`
		Data      json.RawMessage `json:"data"`
		Signature string          `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "job_completed", payload.Event)
	assert.Equal(t, signPayload(payload.Data, "topsecret"), payload.Signature)
	assert.Equal(t, payload.Signature, req.signature)

	var data JobEventData
	require.NoError(t, json.Unmarshal(payload.Data, &data))
	assert.Equal(t, testJob.ID, data.JobID)
	assert.Equal(t, "completed", data.Status)
	assert.Equal(t, 2, data.PagesPrinted)
	assert.Equal(t, int64(1500), data.Duration)
	assert.True(t, data.HalfCut)
}

func TestSendSkipsUnsubscribedEvents(t *testing.T) {
	rcv := &receiver{}
	s := newTestSender(t, rcv, "", `["job_failed"]`)

	s.SendJobStarted(testJob)
	s.SendJobFailed(testJob, 1, "Paper End")

	require.Eventually(t, func() bool { return len(rcv.requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	req := rcv.requests()[0]
	assert.Equal(t, "job_failed", req.event)
	assert.Empty(t, req.signature)
	assert.Contains(t, string(req.body), `"error_message":"Paper End"`)
}

func TestSendRetriesServerErrors(t *testing.T) {
	rcv := &receiver{codes: []int{http.StatusInternalServerError, http.StatusBadGateway}}
	s := newTestSender(t, rcv, "", `["printer_status_changed"]`)

	require.NoError(t, s.SendPrinterStatusChange("DS-RX1", "ready", "media_end", &core.PrinterStatus{
		Code:     core.GroupUsually | 0x8,
		Text:     "Paper End",
		PortName: "USB001",
		IsOnline: true,
	}))

	require.Eventually(t, func() bool { return rcv.calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	last := rcv.requests()[2]
	assert.Contains(t, string(last.body), `"new_status":"media_end"`)
	assert.Contains(t, string(last.body), `"status_text":"Paper End"`)
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	rcv := &receiver{codes: []int{http.StatusBadRequest}}
	s := newTestSender(t, rcv, "", `["job_started"]`)

	s.SendJobStarted(testJob)

	require.Eventually(t, func() bool { return rcv.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), rcv.calls.Load())
}

func TestSendTest(t *testing.T) {
	rcv := &receiver{codes: []int{http.StatusOK, http.StatusNotFound}}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	s := NewWebhookSender(&memStore{}, testConfig(), nil)
	hook := &db.Webhook{ID: 7, URL: srv.URL, Secret: "k"}

	require.NoError(t, s.SendTest(hook))
	err := s.SendTest(hook)
	require.Error(t, err)
	assert.True(t, isClientError(err))

	reqs := rcv.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "test", reqs[0].event)
	assert.NotEmpty(t, reqs[0].signature)
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewWebhookSender(&memStore{}, testConfig(), nil)
	s.Start()
	s.Stop()
	s.Stop()
}
