package reporting

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

func newTestHandler() *echo.Echo {
	svc, _, _ := newTestService()
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop(), apperr.HandlerOptions{})
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const reportJSON = `{"id":1,"content":"Informe de la imagen healthy.png","prediction":"No cancer (label 0)","image":{"id":1,"filename":"healthy.png"}}`

func TestHandler_CreateAndGet(t *testing.T) {
	e := newTestHandler()

	rec := do(e, http.MethodPost, "/api/v1/reports", reportJSON)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/reports/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var r Report
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Image == nil || r.Image.Filename != "healthy.png" {
		t.Errorf("expected embedded filename, got %+v", r.Image)
	}
	if r.Content != "Informe de la imagen healthy.png" {
		t.Errorf("unexpected content %q", r.Content)
	}
}

func TestHandler_DeleteThenGetIsEmptyOK(t *testing.T) {
	e := newTestHandler()
	do(e, http.MethodPost, "/api/v1/reports", reportJSON)

	if rec := do(e, http.MethodDelete, "/api/v1/reports/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/api/v1/reports/1", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for deleted report, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
	if rec := do(e, http.MethodDelete, "/api/v1/reports/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestHandler_Errors(t *testing.T) {
	e := newTestHandler()
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown image", http.MethodPost, "/api/v1/reports", `{"content":"x","image_id":99}`, http.StatusUnprocessableEntity},
		{"no image", http.MethodPost, "/api/v1/reports", `{"content":"x"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/api/v1/reports", `{`, http.StatusBadRequest},
		{"never created", http.MethodGet, "/api/v1/reports/9", "", http.StatusNotFound},
		{"bad id", http.MethodGet, "/api/v1/reports/x", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(e, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_ListByImage(t *testing.T) {
	e := newTestHandler()
	do(e, http.MethodPost, "/api/v1/reports", `{"content":"a","image_id":1}`)
	do(e, http.MethodPost, "/api/v1/reports", `{"content":"b","image_id":2}`)

	rec := do(e, http.MethodGet, "/api/v1/images/1/reports", "")
	var list []Report
	json.Unmarshal(rec.Body.Bytes(), &list)
	if rec.Code != http.StatusOK || len(list) != 1 || list[0].Content != "a" {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
