package imaging

import (
	"context"
	"sort"
	"sync"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

type memImage struct {
	img *Image
	seq int64
}

type imageRepoMem struct {
	mu     sync.RWMutex
	byID   map[int64]*memImage
	byPath map[string]int64
	lastID int64
	seq    int64
}

// NewImageRepoMem returns an in-memory ImageRepository.
func NewImageRepoMem() ImageRepository {
	return &imageRepoMem{
		byID:   make(map[int64]*memImage),
		byPath: make(map[string]int64),
	}
}

func (r *imageRepoMem) Save(_ context.Context, img *Image) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if id, ok := r.byPath[img.StoragePath]; ok {
		img.ID = id
		img.PredictedLabel = nil
		r.byID[id] = &memImage{img: img.clone(), seq: r.seq}
		return true, nil
	}

	r.lastID++
	img.ID = r.lastID
	r.byID[img.ID] = &memImage{img: img.clone(), seq: r.seq}
	r.byPath[img.StoragePath] = img.ID
	return false, nil
}

func (r *imageRepoMem) GetByID(_ context.Context, id int64) (*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, apperr.NotFound("image", id)
	}
	return m.img.clone(), nil
}

func (r *imageRepoMem) GetByPath(_ context.Context, storagePath string) (*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPath[storagePath]
	if !ok {
		return nil, apperr.NotFound("image at", storagePath)
	}
	return r.byID[id].img.clone(), nil
}

func (r *imageRepoMem) SetLabel(_ context.Context, id int64, contentHash string, label int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("image", id)
	}
	if m.img.ContentHash != contentHash {
		return ErrSuperseded
	}
	m.img.PredictedLabel = &label
	return nil
}

func (r *imageRepoMem) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return apperr.NotFound("image", id)
	}
	delete(r.byPath, m.img.StoragePath)
	delete(r.byID, id)
	return nil
}

func (r *imageRepoMem) patientImages(patientID int64) []*memImage {
	var out []*memImage
	for _, m := range r.byID {
		if m.img.PatientID == patientID {
			out = append(out, m)
		}
	}
	return out
}

func (r *imageRepoMem) ListByPatient(_ context.Context, patientID int64) ([]*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := r.patientImages(patientID)
	sortBySeq(matches)
	out := make([]*Image, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.img.clone())
	}
	return out, nil
}

func (r *imageRepoMem) LatestForPatient(_ context.Context, patientID int64) (*Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *memImage
	for _, m := range r.patientImages(patientID) {
		if latest == nil || m.seq > latest.seq {
			latest = m
		}
	}
	if latest == nil {
		return nil, apperr.NotFound("image for patient", patientID)
	}
	return latest.img.clone(), nil
}

func sortBySeq(ms []*memImage) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
}
