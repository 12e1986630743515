package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
	"github.com/oncoscan/oncoscan/internal/platform/db"
)

// -- Doctor Repository --

type doctorRepoPG struct {
	pool db.Querier
}

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

const doctorCols = `id, name, national_id, specialty`

func (r *doctorRepoPG) mapWriteErr(err error, d *Doctor) error {
	switch {
	case db.IsUniqueViolation(err, "doctor_pkey"):
		return apperr.Wrap(apperr.ErrDuplicateKey, "doctor %d", d.ID)
	case db.IsUniqueViolation(err, "doctor_national_id_key"):
		return apperr.Wrap(apperr.ErrDuplicateKey, "doctor national_id %q", d.NationalID)
	default:
		return fmt.Errorf("write doctor: %w", err)
	}
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	if d.ID == 0 {
		err := db.InsertWithGeneratedID("doctor", func() error {
			return r.pool.QueryRow(ctx,
				`INSERT INTO doctor (name, national_id, specialty) VALUES ($1, $2, $3) RETURNING id`,
				d.Name, d.NationalID, d.Specialty,
			).Scan(&d.ID)
		})
		if err != nil {
			return r.mapWriteErr(err, d)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO doctor (id, name, national_id, specialty) VALUES ($1, $2, $3, $4)`,
		d.ID, d.Name, d.NationalID, d.Specialty)
	if err != nil {
		return r.mapWriteErr(err, d)
	}
	return db.SyncSequence(ctx, r.pool, "doctor")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.PersonNotFound("doctor", id)
	}
	return d, err
}

func (r *doctorRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Doctor, error) {
	d, err := scanDoctor(r.pool.QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE national_id = $1`, nationalID))
	if db.IsNoRows(err) {
		return nil, apperr.PersonNotFound("doctor with national_id", nationalID)
	}
	return d, err
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctor SET name = $2, national_id = $3, specialty = $4, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.NationalID, d.Specialty)
	if err != nil {
		return r.mapWriteErr(err, d)
	}
	if tag.RowsAffected() == 0 {
		return apperr.PersonNotFound("doctor", d.ID)
	}
	return nil
}

func (r *doctorRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM doctor WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.PersonNotFound("doctor", id)
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context) ([]*Doctor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+doctorCols+` FROM doctor ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	out := make([]*Doctor, 0)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.NationalID, &d.Specialty); err != nil {
		return nil, err
	}
	return &d, nil
}

// -- Patient Repository --

type patientRepoPG struct {
	pool db.Querier
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, name, national_id, age, next_appointment, doctor_id`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == 0 {
		err := db.InsertWithGeneratedID("patient", func() error {
			return r.pool.QueryRow(ctx, `
				INSERT INTO patient (name, national_id, age, next_appointment, doctor_id)
				VALUES ($1, $2, $3, $4, $5) RETURNING id`,
				p.Name, p.NationalID, p.Age, p.NextAppointment, p.DoctorID,
			).Scan(&p.ID)
		})
		if err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO patient (id, name, national_id, age, next_appointment, doctor_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.NationalID, p.Age, p.NextAppointment, p.DoctorID)
	if db.IsUniqueViolation(err, "patient_pkey") {
		return apperr.Wrap(apperr.ErrDuplicateKey, "patient %d", p.ID)
	}
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}
	return db.SyncSequence(ctx, r.pool, "patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.PersonNotFound("patient", id)
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE patient SET name = $2, national_id = $3, age = $4, next_appointment = $5, doctor_id = $6, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.NationalID, p.Age, p.NextAppointment, p.DoctorID)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.PersonNotFound("patient", p.ID)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.PersonNotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	return r.query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY seq`)
}

func (r *patientRepoPG) ListByDoctor(ctx context.Context, doctorID int64) ([]*Patient, error) {
	return r.query(ctx, `SELECT `+patientCols+` FROM patient WHERE doctor_id = $1 ORDER BY seq`, doctorID)
}

func (r *patientRepoPG) query(ctx context.Context, sql string, args ...interface{}) ([]*Patient, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	out := make([]*Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.NationalID, &p.Age, &p.NextAppointment, &p.DoctorID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
