package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

type Service struct {
	doctors  DoctorRepository
	patients PatientRepository
}

func NewService(doctors DoctorRepository, patients PatientRepository) *Service {
	return &Service{doctors: doctors, patients: patients}
}

// -- Doctor --

func validateDoctor(d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.NationalID = strings.TrimSpace(d.NationalID)
	if d.ID < 0 {
		return apperr.Invalid("id must not be negative")
	}
	if d.Name == "" {
		return apperr.Invalid("name is required")
	}
	if d.NationalID == "" {
		return apperr.Invalid("national_id is required")
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) GetDoctorByNationalID(ctx context.Context, nationalID string) (*Doctor, error) {
	return s.doctors.GetByNationalID(ctx, strings.TrimSpace(nationalID))
}

// UpdateDoctor replaces the whole record identified by d.ID.
func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == 0 {
		return apperr.Invalid("id is required")
	}
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.doctors.Update(ctx, d)
}

// DeleteDoctor removes the doctor only; patients keep their doctor_id.
func (s *Service) DeleteDoctor(ctx context.Context, id int64) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*Doctor, error) {
	return s.doctors.List(ctx)
}

// -- Patient --

func (s *Service) validatePatient(ctx context.Context, p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.ID < 0 {
		return apperr.Invalid("id must not be negative")
	}
	if p.Name == "" {
		return apperr.Invalid("name is required")
	}
	if p.Age < 0 {
		return apperr.Invalid("age must not be negative")
	}
	if p.DoctorID == nil {
		return nil
	}
	if _, err := s.doctors.GetByID(ctx, *p.DoctorID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.MissingReference("doctor", *p.DoctorID)
		}
		return err
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validatePatient(ctx, p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient replaces the whole record identified by p.ID. Changing the
// doctor reference does not touch either doctor record.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.ID == 0 {
		return apperr.Invalid("id is required")
	}
	if err := s.validatePatient(ctx, p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

// DeletePatient removes the patient only; images keep their patient_id.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	return s.patients.Delete(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context) ([]*Patient, error) {
	return s.patients.List(ctx)
}

// ListPatientsByDoctor returns an empty list, not an error, when the doctor
// has no patients or does not exist.
func (s *Service) ListPatientsByDoctor(ctx context.Context, doctorID int64) ([]*Patient, error) {
	return s.patients.ListByDoctor(ctx, doctorID)
}
