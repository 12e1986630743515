package reporting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncoscan/oncoscan/internal/domain/imaging"
	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/events"
)

const publishTimeout = 5 * time.Second

// ImageLookup resolves the image a report refers to.
type ImageLookup interface {
	GetImage(ctx context.Context, id int64) (*imaging.Image, error)
}

type Service struct {
	reports ReportRepository
	images  ImageLookup
	events  events.Publisher
	logger  zerolog.Logger
}

func NewService(reports ReportRepository, images ImageLookup, publisher events.Publisher, logger zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{reports: reports, images: images, events: publisher, logger: logger}
}

// Create stores r after resolving its image. The image fields are copied into
// the report; a missing prediction text is taken from the image label.
func (s *Service) Create(ctx context.Context, r *Report) error {
	if r.ID < 0 {
		return apperr.Invalid("id must not be negative")
	}
	if r.ImageID <= 0 {
		return apperr.Invalid("image_id is required")
	}
	img, err := s.images.GetImage(ctx, r.ImageID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.MissingReference("image", r.ImageID)
		}
		return err
	}

	r.Image = &ImageSnapshot{
		ID:             img.ID,
		Filename:       img.Filename,
		StoragePath:    img.StoragePath,
		PatientID:      img.PatientID,
		PredictedLabel: img.PredictedLabel,
	}
	if strings.TrimSpace(r.Prediction) == "" {
		r.Prediction = img.PredictionText()
	}
	r.CreatedAt = time.Now().UTC()

	if err := s.reports.Create(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Int64("report_id", r.ID).Int64("image_id", r.ImageID).Msg("report created")
	s.publish(ctx, events.ReportCreated, map[string]interface{}{
		"report_id": r.ID,
		"image_id":  r.ImageID,
	})
	return nil
}

// Get returns ErrDeleted when the report was deleted.
func (s *Service) Get(ctx context.Context, id int64) (*Report, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.ReportDeleted, map[string]interface{}{"report_id": id})
	return nil
}

func (s *Service) ListByImage(ctx context.Context, imageID int64) ([]*Report, error) {
	return s.reports.ListByImage(ctx, imageID)
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event not published")
	}
}
