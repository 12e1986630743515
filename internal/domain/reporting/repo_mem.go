package reporting

import (
	"context"
	"sync"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

type reportRepoMem struct {
	mu      sync.RWMutex
	byID    map[int64]*Report
	deleted map[int64]bool
	order   []int64
	lastID  int64
}

// NewReportRepoMem returns an in-memory ReportRepository.
func NewReportRepoMem() ReportRepository {
	return &reportRepoMem{
		byID:    make(map[int64]*Report),
		deleted: make(map[int64]bool),
	}
}

func (r *reportRepoMem) taken(id int64) bool {
	_, live := r.byID[id]
	return live || r.deleted[id]
}

func (r *reportRepoMem) Create(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.ID != 0 {
		if r.taken(rep.ID) {
			return apperr.Wrap(apperr.ErrDuplicateKey, "report %d", rep.ID)
		}
		if rep.ID > r.lastID {
			r.lastID = rep.ID
		}
	} else {
		for {
			r.lastID++
			if !r.taken(r.lastID) {
				break
			}
		}
		rep.ID = r.lastID
	}

	r.byID[rep.ID] = rep.clone()
	r.order = append(r.order, rep.ID)
	return nil
}

func (r *reportRepoMem) GetByID(_ context.Context, id int64) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.deleted[id] {
		return nil, ErrDeleted
	}
	rep, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("report", id)
	}
	return rep.clone(), nil
}

func (r *reportRepoMem) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return apperr.NotFound("report", id)
	}
	delete(r.byID, id)
	r.deleted[id] = true
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *reportRepoMem) ListByImage(_ context.Context, imageID int64) ([]*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Report, 0)
	for _, id := range r.order {
		if rep := r.byID[id]; rep.ImageID == imageID {
			out = append(out, rep.clone())
		}
	}
	return out, nil
}
