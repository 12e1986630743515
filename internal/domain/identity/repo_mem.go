package identity

import (
	"context"
	"sync"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

// idSeq hands out ids for records created without one. Client-assigned ids
// advance it so later server-assigned ids never collide.
type idSeq struct {
	last int64
}

func (s *idSeq) assign(requested int64, taken func(int64) bool) (int64, bool) {
	if requested != 0 {
		if taken(requested) {
			return 0, false
		}
		if requested > s.last {
			s.last = requested
		}
		return requested, true
	}
	for {
		s.last++
		if !taken(s.last) {
			return s.last, true
		}
	}
}

// removeID drops id from an insertion-ordered slice.
func removeID(order []int64, id int64) []int64 {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// -- Doctor --

type doctorRepoMem struct {
	mu    sync.RWMutex
	byID  map[int64]*Doctor
	order []int64
	seq   idSeq
}

// NewDoctorRepoMem returns an in-memory DoctorRepository.
func NewDoctorRepoMem() DoctorRepository {
	return &doctorRepoMem{byID: make(map[int64]*Doctor)}
}

func (r *doctorRepoMem) nationalIDTaken(nationalID string, except int64) bool {
	for id, d := range r.byID {
		if id != except && d.NationalID == nationalID {
			return true
		}
	}
	return false
}

func (r *doctorRepoMem) Create(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nationalIDTaken(d.NationalID, 0) {
		return apperr.Wrap(apperr.ErrDuplicateKey, "doctor national_id %q", d.NationalID)
	}
	id, ok := r.seq.assign(d.ID, func(id int64) bool { _, exists := r.byID[id]; return exists })
	if !ok {
		return apperr.Wrap(apperr.ErrDuplicateKey, "doctor %d", d.ID)
	}
	d.ID = id
	cp := *d
	r.byID[id] = &cp
	r.order = append(r.order, id)
	return nil
}

func (r *doctorRepoMem) GetByID(_ context.Context, id int64) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return nil, apperr.PersonNotFound("doctor", id)
	}
	cp := *d
	return &cp, nil
}

func (r *doctorRepoMem) GetByNationalID(_ context.Context, nationalID string) (*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		if d := r.byID[id]; d.NationalID == nationalID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.PersonNotFound("doctor with national_id", nationalID)
}

func (r *doctorRepoMem) Update(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[d.ID]; !ok {
		return apperr.PersonNotFound("doctor", d.ID)
	}
	if r.nationalIDTaken(d.NationalID, d.ID) {
		return apperr.Wrap(apperr.ErrDuplicateKey, "doctor national_id %q", d.NationalID)
	}
	cp := *d
	r.byID[d.ID] = &cp
	return nil
}

func (r *doctorRepoMem) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return apperr.PersonNotFound("doctor", id)
	}
	delete(r.byID, id)
	r.order = removeID(r.order, id)
	return nil
}

func (r *doctorRepoMem) List(_ context.Context) ([]*Doctor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Doctor, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

// -- Patient --

type patientRepoMem struct {
	mu    sync.RWMutex
	byID  map[int64]*Patient
	order []int64
	seq   idSeq
}

// NewPatientRepoMem returns an in-memory PatientRepository.
func NewPatientRepoMem() PatientRepository {
	return &patientRepoMem{byID: make(map[int64]*Patient)}
}

func (r *patientRepoMem) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.seq.assign(p.ID, func(id int64) bool { _, exists := r.byID[id]; return exists })
	if !ok {
		return apperr.Wrap(apperr.ErrDuplicateKey, "patient %d", p.ID)
	}
	p.ID = id
	r.byID[id] = p.clone()
	r.order = append(r.order, id)
	return nil
}

func (r *patientRepoMem) GetByID(_ context.Context, id int64) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, apperr.PersonNotFound("patient", id)
	}
	return p.clone(), nil
}

func (r *patientRepoMem) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[p.ID]; !ok {
		return apperr.PersonNotFound("patient", p.ID)
	}
	r.byID[p.ID] = p.clone()
	return nil
}

func (r *patientRepoMem) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return apperr.PersonNotFound("patient", id)
	}
	delete(r.byID, id)
	r.order = removeID(r.order, id)
	return nil
}

func (r *patientRepoMem) List(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Patient, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out, nil
}

func (r *patientRepoMem) ListByDoctor(_ context.Context, doctorID int64) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Patient, 0)
	for _, id := range r.order {
		p := r.byID[id]
		if p.DoctorID != nil && *p.DoctorID == doctorID {
			out = append(out, p.clone())
		}
	}
	return out, nil
}
