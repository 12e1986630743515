package reporting

import "context"

// ReportRepository stores reports. Deleted reports are kept as tombstones so
// their ids are never reused and GetByID can tell them apart from ids that
// never existed.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	// GetByID returns ErrDeleted for tombstoned reports.
	GetByID(ctx context.Context, id int64) (*Report, error)
	Delete(ctx context.Context, id int64) error
	ListByImage(ctx context.Context, imageID int64) ([]*Report, error)
}
