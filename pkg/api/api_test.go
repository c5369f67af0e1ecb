package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dbops/toolkit/pkg/apiresponses"
	"github.com/dbops/toolkit/pkg/backup"
	"github.com/dbops/toolkit/pkg/config"
	"github.com/dbops/toolkit/pkg/mail"
	"github.com/dbops/toolkit/pkg/metrics"
	"github.com/dbops/toolkit/pkg/monitor"
)

type fakeMailService struct {
	enabled  bool
	stats    mail.Stats
	accepted bool
	message  string

	mu       sync.Mutex
	lastTest mail.CustomPayload
	backups  []mail.BackupPayload
	alerts   []mail.ErrorPayload
}

func (f *fakeMailService) IsEnabled() bool   { return f.enabled }
func (f *fakeMailService) Stats() mail.Stats { return f.stats }

func (f *fakeMailService) EnqueueCustom(p mail.CustomPayload) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTest = p
	return f.accepted, f.message
}

func (f *fakeMailService) EnqueueBackup(p mail.BackupPayload) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backups = append(f.backups, p)
	return true, "backup queued"
}

func (f *fakeMailService) EnqueueError(p mail.ErrorPayload) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, p)
	return true, "error queued"
}

func (f *fakeMailService) backupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backups)
}

func (f *fakeMailService) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

type fakeBackupRunner struct {
	summary *backup.Summary
	err     error

	mu        sync.Mutex
	databases []string
}

func (f *fakeBackupRunner) BackupDatabase(_ context.Context, database string) (*backup.Summary, error) {
	f.mu.Lock()
	f.databases = append(f.databases, database)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeDBMonitor struct {
	pingErr error
	status  *monitor.Status
	sizes   []monitor.DatabaseSize
	err     error
}

func (f *fakeDBMonitor) Ping(context.Context) error { return f.pingErr }

func (f *fakeDBMonitor) Status(context.Context) (*monitor.Status, error) {
	return f.status, f.err
}

func (f *fakeDBMonitor) DatabaseSizes(context.Context) ([]monitor.DatabaseSize, error) {
	return f.sizes, f.err
}

type fakeSystem struct {
	report *monitor.SystemReport
	err    error
}

func (f *fakeSystem) Report(context.Context) (*monitor.SystemReport, error) {
	return f.report, f.err
}

func newTestServer(t *testing.T, mailSvc MailService, db DatabaseMonitor, sys SystemReporter) *Server {
	return newTestServerWithBackups(t, mailSvc, db, sys, nil, nil)
}

func newTestServerWithBackups(t *testing.T, mailSvc MailService, db DatabaseMonitor, sys SystemReporter, backups BackupRunner, databases []string) *Server {
	t.Helper()
	s := NewServer(zap.NewNop(), config.Config{
		Server: config.Server{ListenAddress: "127.0.0.1:0"},
	})
	ctrl := NewOpsController("dbops", mailSvc, db, sys, backups, databases, zap.NewNop().Sugar())
	require.NoError(t, s.RegisterAll([]APIController{ctrl}))
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) apiresponses.Envelope {
	t.Helper()
	var env apiresponses.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestPing(t *testing.T) {
	s := newTestServer(t, &fakeMailService{}, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeEnvelope(t, w)
	assert.Equal(t, http.StatusOK, env.Code)
	assert.Equal(t, "pong", env.Message)
	data := env.Data.(map[string]interface{})
	assert.Equal(t, "dbops", data["server"])
	assert.Equal(t, "running", data["status"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeMailService{enabled: true}, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, true, data["mysql"])
	assert.Equal(t, true, data["mail"])
}

func TestHealthDatabaseDown(t *testing.T) {
	db := &fakeDBMonitor{pingErr: errors.New("connection refused")}
	s := newTestServer(t, &fakeMailService{}, db, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMailStats(t *testing.T) {
	mailSvc := &fakeMailService{stats: mail.Stats{QueueSize: 2, SentCount: 7, TotalProcessed: 9}}
	s := newTestServer(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/mail/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["queue_size"])
	assert.Equal(t, float64(7), data["sent_count"])
}

func TestMailTest(t *testing.T) {
	mailSvc := &fakeMailService{accepted: true, message: "custom queued"}
	s := newTestServer(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{})

	body := []byte(`{"to":["ops@example.com"],"message":"hello"}`)
	w := doRequest(s, http.MethodPost, "/api/v1/mail/test", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, []string{"ops@example.com"}, mailSvc.lastTest.To)
	assert.Equal(t, "hello", mailSvc.lastTest.Message)
	assert.False(t, mailSvc.lastTest.UseDefaultRecipients)
}

func TestMailTestDefaults(t *testing.T) {
	mailSvc := &fakeMailService{accepted: true}
	s := newTestServer(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodPost, "/api/v1/mail/test", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, mailSvc.lastTest.UseDefaultRecipients)
	assert.NotEmpty(t, mailSvc.lastTest.Message)
}

func TestMailTestRejected(t *testing.T) {
	mailSvc := &fakeMailService{accepted: false, message: "mail service disabled"}
	s := newTestServer(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodPost, "/api/v1/mail/test", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBackupRun(t *testing.T) {
	mailSvc := &fakeMailService{}
	runner := &fakeBackupRunner{summary: &backup.Summary{
		Database:      "shop",
		TablesTotal:   4,
		TablesSuccess: 4,
		Status:        backup.StatusSuccess,
		ArchiveFile:   "/var/backup/shop/shop_20260301_010000.tar.gz",
		ArchiveSize:   "1.50 MB",
		Duration:      "2.10s",
	}}
	s := newTestServerWithBackups(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{}, runner, []string{"shop", "crm"})

	w := doRequest(s, http.MethodPost, "/api/v1/backup", []byte(`{"database":"shop"}`))
	require.Equal(t, http.StatusAccepted, w.Code)

	waitFor(t, func() bool { return mailSvc.backupCount() == 1 })
	p := mailSvc.backups[0]
	assert.True(t, p.UseDefaultRecipients)
	assert.Equal(t, "database", p.BackupType)
	assert.Equal(t, "shop", p.BackupInfo["Database"])
	assert.Equal(t, "4/4", p.BackupInfo["Tables"])
	assert.Equal(t, "shop_20260301_010000.tar.gz", p.BackupInfo["Archive"])
	assert.Equal(t, "1.50 MB", p.FileSize)
	assert.Equal(t, []string{"shop"}, runner.databases)
}

func TestBackupRunFailureSendsAlert(t *testing.T) {
	mailSvc := &fakeMailService{}
	runner := &fakeBackupRunner{err: errors.New("mysqldump: access denied")}
	s := newTestServerWithBackups(t, mailSvc, &fakeDBMonitor{}, &fakeSystem{}, runner, []string{"shop"})

	w := doRequest(s, http.MethodPost, "/api/v1/backup", []byte(`{"database":"shop"}`))
	require.Equal(t, http.StatusAccepted, w.Code)

	waitFor(t, func() bool { return mailSvc.alertCount() == 1 })
	alert := mailSvc.alerts[0]
	assert.Equal(t, "Backup", alert.ErrorType)
	assert.Contains(t, alert.ErrorDetails, "access denied")
	assert.True(t, alert.UseDefaultRecipients)
	assert.Zero(t, mailSvc.backupCount())
}

func TestBackupRunUnmanagedDatabase(t *testing.T) {
	runner := &fakeBackupRunner{}
	s := newTestServerWithBackups(t, &fakeMailService{}, &fakeDBMonitor{}, &fakeSystem{}, runner, []string{"shop"})

	w := doRequest(s, http.MethodPost, "/api/v1/backup", []byte(`{"database":"mysql"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, runner.databases)
}

func TestBackupRunWithoutManager(t *testing.T) {
	s := newTestServer(t, &fakeMailService{}, &fakeDBMonitor{}, &fakeSystem{})

	w := doRequest(s, http.MethodPost, "/api/v1/backup", []byte(`{"database":"shop"}`))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMonitorStatus(t *testing.T) {
	db := &fakeDBMonitor{status: &monitor.Status{Uptime: "3h 0m 0s", ThreadsConnected: 4}}
	s := newTestServer(t, &fakeMailService{}, db, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/monitor/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w).Data.(map[string]interface{})
	assert.Equal(t, "3h 0m 0s", data["uptime"])
	assert.Equal(t, float64(4), data["threads_connected"])
}

func TestMonitorStatusError(t *testing.T) {
	db := &fakeDBMonitor{err: errors.New("boom")}
	s := newTestServer(t, &fakeMailService{}, db, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/monitor/status", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// internals stay out of the client response
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestMonitorSizes(t *testing.T) {
	db := &fakeDBMonitor{sizes: []monitor.DatabaseSize{{Database: "app", SizeBytes: 2048, Size: "2.00 KB"}}}
	s := newTestServer(t, &fakeMailService{}, db, &fakeSystem{})

	w := doRequest(s, http.MethodGet, "/api/v1/monitor/sizes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "2.00 KB")
}

func TestMonitorSystem(t *testing.T) {
	sys := &fakeSystem{report: &monitor.SystemReport{Hostname: "db-host-1"}}
	s := newTestServer(t, &fakeMailService{}, &fakeDBMonitor{}, sys)

	w := doRequest(s, http.MethodGet, "/api/v1/monitor/system", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "db-host-1")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeMailService{}, &fakeDBMonitor{}, &fakeSystem{})
	metrics.MailQueued.WithLabelValues("direct").Inc()

	w := doRequest(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dbops_mail_queued_total")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, &fakeMailService{}, &fakeDBMonitor{}, &fakeSystem{})

	limited := 0
	for i := 0; i < 100; i++ {
		w := doRequest(s, http.MethodGet, "/api/v1/ping", nil)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Greater(t, limited, 0, "burst beyond the limit should produce 429s")
}
