package reporting

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrDeleted is returned by Get for a report that existed and was deleted.
var ErrDeleted = errors.New("report deleted")

// ImageSnapshot is the part of the image record copied into a report when it
// is created. Later changes to the image do not show up in the report.
type ImageSnapshot struct {
	ID             int64  `json:"id"`
	Filename       string `json:"filename"`
	StoragePath    string `json:"storage_path"`
	PatientID      int64  `json:"patient_id"`
	PredictedLabel *int   `json:"predicted_label"`
}

// Report maps to the report table.
type Report struct {
	ID         int64          `db:"id" json:"id"`
	Content    string         `db:"content" json:"content"`
	Prediction string         `db:"prediction" json:"prediction"`
	ImageID    int64          `db:"image_id" json:"image_id"`
	Image      *ImageSnapshot `json:"image,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// UnmarshalJSON accepts the image either as "image_id" or as an embedded
// "image" object carrying its id.
func (r *Report) UnmarshalJSON(data []byte) error {
	type plain Report
	if err := json.Unmarshal(data, (*plain)(r)); err != nil {
		return err
	}
	if r.ImageID == 0 && r.Image != nil {
		r.ImageID = r.Image.ID
	}
	return nil
}

func (r *Report) clone() *Report {
	cp := *r
	if r.Image != nil {
		img := *r.Image
		if img.PredictedLabel != nil {
			l := *img.PredictedLabel
			img.PredictedLabel = &l
		}
		cp.Image = &img
	}
	return &cp
}
