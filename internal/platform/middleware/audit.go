package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records one access to a clinical record.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	Action     string // read, create, update, delete, predict
	Resource   string // doctors, patients, images, reports
	ResourceID string
	PatientID  string
	Method     string
	Path       string
	StatusCode int
	IPAddress  string
	UserAgent  string
}

// AuditRecorder persists audit entries somewhere other than the log.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc adapts a function to AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

const apiPrefix = "/api/v1/"

// Audit logs every access under /api/v1/ once the handler has finished. It
// expects to sit outside Logger so the response status is final. Entries are
// also handed to recorder when one is given.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			entry := auditEntry(req, c.Response().Status)
			entry.IPAddress = c.RealIP()
			entry.RequestID, _ = c.Get("request_id").(string)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.StatusCode).
				Str("remote_ip", entry.IPAddress).
				Msg("record_access")

			return err
		}
	}
}

// auditEntry derives the resource, ids and action from the request path,
// e.g. /api/v1/patients/3/prediction -> patients, 3, predict.
func auditEntry(req *http.Request, status int) AuditEntry {
	entry := AuditEntry{
		Timestamp:  time.Now().UTC(),
		Method:     req.Method,
		Path:       req.URL.Path,
		StatusCode: status,
		UserAgent:  req.UserAgent(),
		Action:     methodAction(req.Method),
	}

	segments := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, apiPrefix), "/"), "/")
	entry.Resource = segments[0]
	if len(segments) > 1 && isNumericID(segments[1]) {
		entry.ResourceID = segments[1]
	}
	if entry.Resource == "patients" {
		entry.PatientID = entry.ResourceID
	}
	if len(segments) > 2 && segments[2] == "prediction" {
		entry.Action = "predict"
	}
	return entry
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func isNumericID(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && n > 0
}
