package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func runAudit(t *testing.T, rec AuditRecorder, method, path string, status int) {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(method, path, nil), httptest.NewRecorder())
	c.Set("request_id", "rid-7")
	err := Audit(zerolog.Nop(), rec)(func(c echo.Context) error {
		return c.NoContent(status)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_RecordsEntry(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, rec, http.MethodGet, "/api/v1/patients/3", http.StatusOK)

	if rec.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", rec.count())
	}
	got := rec.entries[0]
	if got.Resource != "patients" || got.ResourceID != "3" || got.PatientID != "3" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Action != "read" || got.StatusCode != http.StatusOK || got.RequestID != "rid-7" {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_Actions(t *testing.T) {
	tests := []struct {
		method, path string
		action       string
		resource     string
	}{
		{http.MethodPost, "/api/v1/doctors", "create", "doctors"},
		{http.MethodPut, "/api/v1/doctors/1", "update", "doctors"},
		{http.MethodDelete, "/api/v1/reports/2", "delete", "reports"},
		{http.MethodGet, "/api/v1/patients/1/prediction", "predict", "patients"},
		{http.MethodPost, "/api/v1/images/4/prediction", "predict", "images"},
		{http.MethodGet, "/api/v1/doctors/national-id/123A", "read", "doctors"},
	}
	for _, tt := range tests {
		rec := &mockRecorder{}
		runAudit(t, rec, tt.method, tt.path, http.StatusOK)
		got := rec.entries[0]
		if got.Action != tt.action || got.Resource != tt.resource {
			t.Errorf("%s %s: got action=%s resource=%s", tt.method, tt.path, got.Action, got.Resource)
		}
	}
}

func TestAudit_NonNumericIDIgnored(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, rec, http.MethodGet, "/api/v1/doctors/national-id/123A", http.StatusOK)
	if rec.entries[0].ResourceID != "" {
		t.Errorf("expected no resource id, got %q", rec.entries[0].ResourceID)
	}
}

func TestAudit_SkipsNonAPI(t *testing.T) {
	rec := &mockRecorder{}
	runAudit(t, rec, http.MethodGet, "/health", http.StatusOK)
	if rec.count() != 0 {
		t.Errorf("expected no audit entry for /health, got %d", rec.count())
	}
}

func TestAudit_RecorderFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/images/1", nil), httptest.NewRecorder())

	rec := AuditRecorderFunc(func(AuditEntry) error { return errors.New("disk full") })
	err := Audit(zerolog.New(&buf), rec)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)
	if err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if !strings.Contains(buf.String(), "failed to record audit entry") {
		t.Errorf("expected failure to be logged, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), "record_access") {
		t.Errorf("expected access log line, got %s", buf.String())
	}
}
