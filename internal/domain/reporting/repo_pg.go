package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/db"
)

type reportRepoPG struct {
	pool db.Querier
}

func NewReportRepo(pool *pgxpool.Pool) ReportRepository {
	return &reportRepoPG{pool: pool}
}

const reportCols = `id, content, prediction, image_id, image_filename, image_storage_path,
	image_patient_id, image_predicted_label, created_at`

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	snap := rep.Image
	if snap == nil {
		snap = &ImageSnapshot{ID: rep.ImageID}
	}
	var label *int16
	if snap.PredictedLabel != nil {
		l := int16(*snap.PredictedLabel)
		label = &l
	}

	if rep.ID == 0 {
		err := db.InsertWithGeneratedID("report", func() error {
			return r.pool.QueryRow(ctx, `
				INSERT INTO report (content, prediction, image_id, image_filename, image_storage_path,
					image_patient_id, image_predicted_label)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at`,
				rep.Content, rep.Prediction, rep.ImageID, snap.Filename, snap.StoragePath, snap.PatientID, label,
			).Scan(&rep.ID, &rep.CreatedAt)
		})
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		return nil
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO report (id, content, prediction, image_id, image_filename, image_storage_path,
			image_patient_id, image_predicted_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		rep.ID, rep.Content, rep.Prediction, rep.ImageID, snap.Filename, snap.StoragePath, snap.PatientID, label,
	).Scan(&rep.CreatedAt)
	if db.IsUniqueViolation(err, "report_pkey") {
		return apperr.Wrap(apperr.ErrDuplicateKey, "report %d", rep.ID)
	}
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return db.SyncSequence(ctx, r.pool, "report")
}

func (r *reportRepoPG) GetByID(ctx context.Context, id int64) (*Report, error) {
	var deletedAt *time.Time
	rep, err := scanReport(r.pool.QueryRow(ctx,
		`SELECT `+reportCols+`, deleted_at FROM report WHERE id = $1`, id), &deletedAt)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("report", id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt != nil {
		return nil, ErrDeleted
	}
	return rep, nil
}

func (r *reportRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE report SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("report", id)
	}
	return nil
}

func (r *reportRepoPG) ListByImage(ctx context.Context, imageID int64) ([]*Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportCols+` FROM report WHERE image_id = $1 AND deleted_at IS NULL ORDER BY seq`, imageID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	out := make([]*Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// scanReport reads reportCols followed by any extra destinations.
func scanReport(row pgx.Row, extra ...interface{}) (*Report, error) {
	var (
		rep   Report
		snap  ImageSnapshot
		label *int16
	)
	dest := []interface{}{
		&rep.ID, &rep.Content, &rep.Prediction, &rep.ImageID,
		&snap.Filename, &snap.StoragePath, &snap.PatientID, &label, &rep.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	snap.ID = rep.ImageID
	if label != nil {
		l := int(*label)
		snap.PredictedLabel = &l
	}
	rep.Image = &snap
	return &rep, nil
}
