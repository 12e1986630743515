package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/oncoscan/oncoscan/internal/domain/identity"
	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/blobstore"
	"github.com/oncoscan/oncoscan/internal/platform/events"
	"github.com/oncoscan/oncoscan/internal/platform/prediction"
)

// DefaultPredictTimeout bounds a prediction call when no timeout is configured.
const DefaultPredictTimeout = 30 * time.Second

const publishTimeout = 5 * time.Second

// PatientLookup resolves the patient an upload is addressed to.
type PatientLookup interface {
	GetPatient(ctx context.Context, id int64) (*identity.Patient, error)
}

type Service struct {
	images         ImageRepository
	patients       PatientLookup
	blobs          blobstore.BlobStore
	predictor      prediction.Client
	cache          prediction.Cache
	events         events.Publisher
	predictTimeout time.Duration
	logger         zerolog.Logger
}

type Option func(*Service)

func WithCache(c prediction.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithPredictTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.predictTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(images ImageRepository, patients PatientLookup, blobs blobstore.BlobStore, predictor prediction.Client, opts ...Option) *Service {
	s := &Service{
		images:         images,
		patients:       patients,
		blobs:          blobs,
		predictor:      predictor,
		cache:          prediction.NopCache{},
		events:         events.NopPublisher{},
		predictTimeout: DefaultPredictTimeout,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Ingestion --

// Ingest stores the uploaded binary under the patient's namespace and records
// it. No record is written when the binary cannot be stored. When the record
// cannot be written the content area is put back as it was: a fresh binary is
// removed and a replaced one is restored.
func (s *Service) Ingest(ctx context.Context, in UploadInput) (*Image, error) {
	name := blobstore.BaseName(in.Filename)
	if name == "" {
		return nil, apperr.Invalid("filename is required")
	}
	if in.Body == nil {
		return nil, apperr.Invalid("image content is required")
	}
	if _, err := s.patients.GetPatient(ctx, in.PatientID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.MissingReference("patient", in.PatientID)
		}
		return nil, err
	}

	key, err := blobstore.PatientKey(in.PatientID, name)
	if err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	prev, err := s.images.GetByPath(ctx, key)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	var previous []byte
	if prev != nil {
		previous, err = s.readBlob(ctx, key)
		if err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, apperr.Wrap(apperr.ErrStorage, "read %s: %v", key, err)
		}
	}

	obj, err := s.blobs.Put(ctx, key, in.ContentType, in.Body)
	if err != nil {
		return nil, blobError("store "+key, err)
	}

	img := &Image{
		Filename:    name,
		StoragePath: key,
		PatientID:   in.PatientID,
		ContentType: obj.ContentType,
		Size:        obj.Size,
		ContentHash: obj.Hash,
		UploadedAt:  time.Now().UTC(),
	}
	replaced, err := s.images.Save(ctx, img)
	if err != nil {
		s.rollbackBlob(ctx, key, prev, previous)
		return nil, fmt.Errorf("save image record: %w", err)
	}

	s.logger.Info().
		Int64("image_id", img.ID).
		Int64("patient_id", img.PatientID).
		Str("storage_path", key).
		Int64("size", img.Size).
		Bool("replaced", replaced).
		Msg("image stored")
	s.publish(ctx, events.ImageUploaded, map[string]interface{}{
		"image_id":     img.ID,
		"patient_id":   img.PatientID,
		"filename":     img.Filename,
		"content_hash": img.ContentHash,
		"replaced":     replaced,
	})
	return img, nil
}

func blobError(op string, err error) error {
	switch {
	case errors.Is(err, blobstore.ErrEmptyContent),
		errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrInvalidKey):
		return apperr.Invalid("%v", err)
	default:
		return apperr.Wrap(apperr.ErrStorage, "%s: %v", op, err)
	}
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		s.logger.Error().Err(err).Str("storage_path", key).Msg("failed to remove orphaned blob")
	}
}

// rollbackBlob undoes a Put at key. prev is the record that owned key before
// the upload and previous its content, nil when there was none.
func (s *Service) rollbackBlob(ctx context.Context, key string, prev *Image, previous []byte) {
	if prev == nil || previous == nil {
		s.removeBlob(ctx, key)
		return
	}
	if _, err := s.blobs.Put(context.WithoutCancel(ctx), key, prev.ContentType, bytes.NewReader(previous)); err != nil {
		s.logger.Error().Err(err).
			Int64("image_id", prev.ID).
			Str("storage_path", key).
			Msg("failed to restore replaced blob")
	}
}

func (s *Service) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, blobstore.MaxFileSize+1))
}

// -- Queries --

func (s *Service) GetImage(ctx context.Context, id int64) (*Image, error) {
	return s.images.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID int64) ([]*Image, error) {
	return s.images.ListByPatient(ctx, patientID)
}

// OpenContent returns the stored binary of an image. The caller closes it.
func (s *Service) OpenContent(ctx context.Context, id int64) (io.ReadCloser, *Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Get(ctx, img.StoragePath)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.ErrStorage, "read %s: %v", img.StoragePath, err)
	}
	return rc, img, nil
}

// DeleteImage removes the record and then its binary. Reports that embed the
// image are left untouched.
func (s *Service) DeleteImage(ctx context.Context, id int64) error {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.images.Delete(ctx, id); err != nil {
		return err
	}
	s.removeBlob(ctx, img.StoragePath)
	s.publish(ctx, events.ImageDeleted, map[string]interface{}{
		"image_id":   id,
		"patient_id": img.PatientID,
	})
	return nil
}

// -- Prediction --

// Predict classifies the image and stores the label on it. When the image is
// re-uploaded while the call is in flight the result is returned but not
// stored, since it describes the replaced content.
func (s *Service) Predict(ctx context.Context, imageID int64) (*prediction.Result, error) {
	img, err := s.images.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.MissingReference("image", imageID)
		}
		return nil, err
	}
	return s.predict(ctx, img)
}

// PredictLatest classifies the most recently uploaded image of the patient.
func (s *Service) PredictLatest(ctx context.Context, patientID int64) (*prediction.Result, error) {
	if _, err := s.patients.GetPatient(ctx, patientID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.MissingReference("patient", patientID)
		}
		return nil, err
	}
	img, err := s.images.LatestForPatient(ctx, patientID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Wrap(apperr.ErrReferenceNotFound, "patient %d has no images", patientID)
		}
		return nil, err
	}
	return s.predict(ctx, img)
}

func (s *Service) predict(ctx context.Context, img *Image) (*prediction.Result, error) {
	res, cached := s.cached(ctx, img)
	if !cached {
		var err error
		if res, err = s.classify(ctx, img); err != nil {
			return nil, err
		}
	}

	label := int(res.Label)
	err := s.images.SetLabel(context.WithoutCancel(ctx), img.ID, img.ContentHash, label)
	if errors.Is(err, ErrSuperseded) {
		s.logger.Info().
			Int64("image_id", img.ID).
			Str("content_hash", img.ContentHash).
			Msg("image replaced during prediction, label not stored")
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store prediction for image %d: %w", img.ID, err)
	}

	ev := s.logger.Info().
		Int64("image_id", img.ID).
		Int("label", label).
		Bool("cached", cached)
	if res.Score != nil {
		ev = ev.Float64("score", *res.Score)
	}
	ev.Msg("image classified")

	s.publish(ctx, events.ImagePredicted, map[string]interface{}{
		"image_id":   img.ID,
		"patient_id": img.PatientID,
		"label":      label,
	})
	return res, nil
}

// classify sends the stored binary to the inference service. The call gets
// its own deadline and is not cancelled when the caller goes away.
func (s *Service) classify(ctx context.Context, img *Image) (*prediction.Result, error) {
	data, err := s.readBlob(ctx, img.StoragePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrStorage, "read %s: %v", img.StoragePath, err)
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.predictTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.predictor.Predict(pctx, prediction.Input{
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Data:        data,
	})
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("image_id", img.ID).
			Dur("elapsed", time.Since(start)).
			Msg("prediction failed")
		return nil, err
	}

	if img.ContentHash != "" {
		if err := s.cache.Set(context.WithoutCancel(ctx), img.ContentHash, res); err != nil {
			s.logger.Warn().Err(err).Int64("image_id", img.ID).Msg("prediction cache write failed")
		}
	}
	return res, nil
}

func (s *Service) cached(ctx context.Context, img *Image) (*prediction.Result, bool) {
	if img.ContentHash == "" {
		return nil, false
	}
	res, ok, err := s.cache.Get(ctx, img.ContentHash)
	if err != nil {
		s.logger.Warn().Err(err).Int64("image_id", img.ID).Msg("prediction cache read failed")
		return nil, false
	}
	return res, ok
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event_type", eventType).Msg("event not published")
	}
}
