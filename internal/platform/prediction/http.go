package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

// maxResponseSize bounds how much of the inference response is read.
const maxResponseSize = 64 * 1024

// HTTPClient posts images to the inference endpoint as multipart/form-data
// with the binary in the "image" field.
type HTTPClient struct {
	url  string
	http *http.Client
}

// NewHTTPClient returns a client for endpoint. Deadlines come from the
// context passed to Predict, so the transport only bounds connection setup.
func NewHTTPClient(endpoint string) *HTTPClient {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &HTTPClient{
		url:  endpoint,
		http: &http.Client{Transport: transport},
	}
}

// Predict sends in and decodes {"label": 0|1, "score": n}.
func (c *HTTPClient) Predict(ctx context.Context, in Input) (*Result, error) {
	if len(in.Data) == 0 {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "image %q has no content", in.Filename)
	}

	body, contentType, err := encodeImage(in)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "build request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "call inference service: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "inference service returned %d", resp.StatusCode)
	}
	return decodeResult(raw)
}

func encodeImage(in Input) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, in.Filename))
	ct := in.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func decodeResult(raw []byte) (*Result, error) {
	var payload struct {
		Label *int     `json:"label"`
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "malformed response: %v", err)
	}
	if payload.Label == nil {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "response has no label")
	}
	label := Label(*payload.Label)
	if !label.Valid() {
		return nil, apperr.Wrap(apperr.ErrPredictionUnavailable, "unexpected label %d", *payload.Label)
	}
	return &Result{Label: label, Score: payload.Score}, nil
}
