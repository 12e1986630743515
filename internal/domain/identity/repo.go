package identity

import "context"

// DoctorRepository stores doctors. Lists are in insertion order.
type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*Doctor, error)
}

// PatientRepository stores patients. Lists are in insertion order.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]*Patient, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]*Patient, error)
}
