package imaging

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/db"
)

type imageRepoPG struct {
	pool db.Querier
}

func NewImageRepo(pool *pgxpool.Pool) ImageRepository {
	return &imageRepoPG{pool: pool}
}

const imageCols = `id, filename, storage_path, patient_id, content_type, size_bytes, content_hash, predicted_label, uploaded_at`

// Save relies on the storage_path unique constraint so concurrent uploads of
// the same file resolve to a single row. xmax is zero only for fresh inserts.
func (r *imageRepoPG) Save(ctx context.Context, img *Image) (bool, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO image (filename, storage_path, patient_id, content_type, size_bytes, content_hash, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (storage_path) DO UPDATE SET
			filename        = EXCLUDED.filename,
			patient_id      = EXCLUDED.patient_id,
			content_type    = EXCLUDED.content_type,
			size_bytes      = EXCLUDED.size_bytes,
			content_hash    = EXCLUDED.content_hash,
			uploaded_at     = EXCLUDED.uploaded_at,
			predicted_label = NULL,
			seq             = nextval(pg_get_serial_sequence('image', 'seq'))
		RETURNING id, (xmax = 0)`,
		img.Filename, img.StoragePath, img.PatientID, img.ContentType, img.Size, img.ContentHash, img.UploadedAt,
	).Scan(&img.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("save image: %w", err)
	}
	if !inserted {
		img.PredictedLabel = nil
	}
	return !inserted, nil
}

func (r *imageRepoPG) GetByID(ctx context.Context, id int64) (*Image, error) {
	img, err := scanImage(r.pool.QueryRow(ctx, `SELECT `+imageCols+` FROM image WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("image", id)
	}
	return img, err
}

func (r *imageRepoPG) GetByPath(ctx context.Context, storagePath string) (*Image, error) {
	img, err := scanImage(r.pool.QueryRow(ctx, `SELECT `+imageCols+` FROM image WHERE storage_path = $1`, storagePath))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("image at", storagePath)
	}
	return img, err
}

// SetLabel matches on content_hash so a label computed from replaced bytes is
// never written over a newer upload.
func (r *imageRepoPG) SetLabel(ctx context.Context, id int64, contentHash string, label int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE image SET predicted_label = $3 WHERE id = $1 AND content_hash = $2`,
		id, contentHash, label)
	if err != nil {
		return fmt.Errorf("set image label: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM image WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("set image label: %w", err)
	}
	if !exists {
		return apperr.NotFound("image", id)
	}
	return ErrSuperseded
}

func (r *imageRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM image WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("image", id)
	}
	return nil
}

func (r *imageRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Image, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+imageCols+` FROM image WHERE patient_id = $1 ORDER BY seq`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	out := make([]*Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (r *imageRepoPG) LatestForPatient(ctx context.Context, patientID int64) (*Image, error) {
	img, err := scanImage(r.pool.QueryRow(ctx,
		`SELECT `+imageCols+` FROM image WHERE patient_id = $1 ORDER BY seq DESC LIMIT 1`, patientID))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("image for patient", patientID)
	}
	return img, err
}

func scanImage(row pgx.Row) (*Image, error) {
	var img Image
	err := row.Scan(&img.ID, &img.Filename, &img.StoragePath, &img.PatientID, &img.ContentType,
		&img.Size, &img.ContentHash, &img.PredictedLabel, &img.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &img, nil
}
