package imaging

import "context"

// ImageRepository stores image records.
type ImageRepository interface {
	// Save inserts img, or replaces the record that already owns
	// img.StoragePath. A replaced record keeps its id, loses its label and
	// becomes the newest image of its patient.
	Save(ctx context.Context, img *Image) (replaced bool, err error)
	GetByID(ctx context.Context, id int64) (*Image, error)
	GetByPath(ctx context.Context, storagePath string) (*Image, error)
	// SetLabel stores label on the image only while its content still hashes
	// to contentHash, and returns ErrSuperseded otherwise.
	SetLabel(ctx context.Context, id int64, contentHash string, label int) error
	Delete(ctx context.Context, id int64) error
	// ListByPatient returns the patient's images oldest first.
	ListByPatient(ctx context.Context, patientID int64) ([]*Image, error)
	LatestForPatient(ctx context.Context, patientID int64) (*Image, error)
}
