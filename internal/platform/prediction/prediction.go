// Package prediction talks to the external inference service that classifies
// diagnostic images, and caches its answers.
package prediction

import (
	"context"
	"fmt"
)

// Label is the binary classification returned by the inference service.
type Label int

const (
	LabelNoMalignancy Label = 0
	LabelMalignancy   Label = 1
)

// Valid reports whether l is one of the two known labels.
func (l Label) Valid() bool {
	return l == LabelNoMalignancy || l == LabelMalignancy
}

// Text renders the label the way clients expect to read it.
func (l Label) Text() string {
	switch l {
	case LabelNoMalignancy:
		return "Not cancer (label 0)"
	case LabelMalignancy:
		return "Cancer (label 1)"
	default:
		return fmt.Sprintf("Unknown (label %d)", int(l))
	}
}

// Result is one classification.
type Result struct {
	Label Label    `json:"label"`
	Score *float64 `json:"score,omitempty"`
}

// Input is the image sent for classification.
type Input struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client classifies an image. Implementations must honor ctx cancellation and
// report every failure as apperr.ErrPredictionUnavailable.
type Client interface {
	Predict(ctx context.Context, in Input) (*Result, error)
}

// Cache stores results keyed by the SHA-256 of the image content.
type Cache interface {
	Get(ctx context.Context, contentHash string) (*Result, bool, error)
	Set(ctx context.Context, contentHash string, r *Result) error
}

// NopCache never hits.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Result, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, *Result) error { return nil }
