package imaging

import (
	"errors"
	"io"
	"time"

	"github.com/oncoscan/oncoscan/internal/platform/prediction"
)

// ErrSuperseded is returned by SetLabel when the image content changed after
// the prediction was started.
var ErrSuperseded = errors.New("image content was replaced")

// Image maps to the image table. StoragePath is the blob key and is unique.
type Image struct {
	ID             int64     `db:"id" json:"id"`
	Filename       string    `db:"filename" json:"filename"`
	StoragePath    string    `db:"storage_path" json:"storage_path"`
	PatientID      int64     `db:"patient_id" json:"patient_id"`
	ContentType    string    `db:"content_type" json:"content_type"`
	Size           int64     `db:"size_bytes" json:"size"`
	ContentHash    string    `db:"content_hash" json:"content_hash,omitempty"`
	PredictedLabel *int      `db:"predicted_label" json:"predicted_label"`
	UploadedAt     time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// PredictionText renders the stored label, or "" when the image has not been
// classified yet.
func (img *Image) PredictionText() string {
	if img.PredictedLabel == nil {
		return ""
	}
	return prediction.Label(*img.PredictedLabel).Text()
}

func (img *Image) clone() *Image {
	cp := *img
	if img.PredictedLabel != nil {
		l := *img.PredictedLabel
		cp.PredictedLabel = &l
	}
	return &cp
}

// UploadInput is one uploaded file addressed to a patient.
type UploadInput struct {
	Filename    string
	ContentType string
	PatientID   int64
	Body        io.Reader
}
