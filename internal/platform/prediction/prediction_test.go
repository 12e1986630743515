package prediction

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

func TestLabel_Text(t *testing.T) {
	if got := LabelNoMalignancy.Text(); got != "Not cancer (label 0)" {
		t.Errorf("label 0: got %q", got)
	}
	if got := LabelMalignancy.Text(); got != "Cancer (label 1)" {
		t.Errorf("label 1: got %q", got)
	}
	if Label(2).Valid() {
		t.Error("label 2 should not be valid")
	}
}

func newInferenceServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL)
}

func TestHTTPClient_Predict(t *testing.T) {
	var gotName string
	var gotData []byte
	client := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("expected image part: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotData, _ = io.ReadAll(f)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"label": 1, "score": 0.93}`)
	})

	res, err := client.Predict(context.Background(), Input{Filename: "no_healthy.png", ContentType: "image/png", Data: []byte("pixels")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != LabelMalignancy {
		t.Errorf("expected label 1, got %d", res.Label)
	}
	if res.Score == nil || *res.Score != 0.93 {
		t.Errorf("expected score 0.93, got %v", res.Score)
	}
	if gotName != "no_healthy.png" {
		t.Errorf("expected filename no_healthy.png, got %s", gotName)
	}
	if string(gotData) != "pixels" {
		t.Errorf("expected image bytes to be forwarded, got %q", gotData)
	}
}

func TestHTTPClient_Predict_ScoreOptional(t *testing.T) {
	client := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"label": 0}`)
	})

	res, err := client.Predict(context.Background(), Input{Filename: "healthy.png", Data: []byte("x")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != LabelNoMalignancy || res.Score != nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestHTTPClient_Predict_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"label": 0}`},
		{"malformed json", http.StatusOK, `not json`},
		{"missing label", http.StatusOK, `{"score": 0.5}`},
		{"label out of range", http.StatusOK, `{"label": 7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, err := client.Predict(context.Background(), Input{Filename: "a.png", Data: []byte("x")})
			if !errors.Is(err, apperr.ErrPredictionUnavailable) {
				t.Errorf("expected ErrPredictionUnavailable, got %v", err)
			}
		})
	}
}

func TestHTTPClient_Predict_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url).Predict(context.Background(), Input{Filename: "a.png", Data: []byte("x")})
	if !errors.Is(err, apperr.ErrPredictionUnavailable) {
		t.Errorf("expected ErrPredictionUnavailable, got %v", err)
	}
}

func TestHTTPClient_Predict_Deadline(t *testing.T) {
	release := make(chan struct{})
	client := newInferenceServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Predict(ctx, Input{Filename: "a.png", Data: []byte("x")})
	if !errors.Is(err, apperr.ErrPredictionUnavailable) {
		t.Errorf("expected ErrPredictionUnavailable, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("predict did not honor the context deadline")
	}
}

func TestHTTPClient_Predict_EmptyImage(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1")
	_, err := client.Predict(context.Background(), Input{Filename: "a.png"})
	if !errors.Is(err, apperr.ErrPredictionUnavailable) {
		t.Errorf("expected ErrPredictionUnavailable, got %v", err)
	}
	if errors.Is(err, apperr.ErrInvalidInput) {
		t.Error("empty image must not be reported as a client error")
	}
}

func TestNewRedisCache_BadURL(t *testing.T) {
	_, err := NewRedisCache(context.Background(), "not-a-url", time.Minute)
	if err == nil || !strings.Contains(err.Error(), "parse redis url") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("abc"); got != "oncoscan:prediction:abc" {
		t.Errorf("unexpected key %s", got)
	}
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	if err := c.Set(context.Background(), "h", &Result{Label: LabelMalignancy}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(context.Background(), "h"); ok {
		t.Error("NopCache should never hit")
	}
}
