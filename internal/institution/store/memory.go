package store

import (
	"context"
	"sync"

	"flowledger/internal/institution/models"
	"flowledger/pkg/domain"
	"flowledger/pkg/platform/sentinel"
)

// InMemoryDirectory keeps the institution registry in process memory.
// IDs are sequential from 1 and never reused. The controller index is
// last-write-wins: binding a controller already pointing at another
// institution silently repoints it.
type InMemoryDirectory struct {
	mu           sync.RWMutex
	nextID       domain.InstitutionID
	institutions map[domain.InstitutionID]*models.Institution
	byController map[domain.Address]domain.InstitutionID
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{
		nextID:       1,
		institutions: make(map[domain.InstitutionID]*models.Institution),
		byController: make(map[domain.Address]domain.InstitutionID),
	}
}

// Create assigns the next sequential id, stores the record, and binds the
// controller index. Returns sentinel.ErrCapacity once the directory is full.
func (d *InMemoryDirectory) Create(_ context.Context, inst *models.Institution) (domain.InstitutionID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.institutions) >= models.MaxInstitutions {
		return 0, sentinel.ErrCapacity
	}

	id := d.nextID
	d.nextID++

	rec := inst.Clone()
	rec.ID = id
	d.institutions[id] = rec
	d.byController[rec.Controller] = id
	return id, nil
}

// Get returns the institution regardless of its active flag.
func (d *InMemoryDirectory) Get(_ context.Context, id domain.InstitutionID) (*models.Institution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	inst, ok := d.institutions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return inst.Clone(), nil
}

// ByController resolves the controller index. A controller whose binding
// was repointed no longer resolves to its old institution.
func (d *InMemoryDirectory) ByController(_ context.Context, controller domain.Address) (domain.InstitutionID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byController[controller]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	return id, nil
}

// Execute runs validate against the current record and, if it accepts,
// persists the result of apply. Both run under the store lock.
func (d *InMemoryDirectory) Execute(
	_ context.Context,
	id domain.InstitutionID,
	validate func(*models.Institution) error,
	apply func(*models.Institution),
) (*models.Institution, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	inst, ok := d.institutions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	work := inst.Clone()
	if err := validate(work); err != nil {
		return nil, err
	}
	apply(work)
	d.institutions[id] = work
	return work.Clone(), nil
}

// List returns every institution, active or not, in id order is not
// guaranteed. Callers scanning for stats filter on Active themselves.
func (d *InMemoryDirectory) List(_ context.Context) ([]*models.Institution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*models.Institution, 0, len(d.institutions))
	for _, inst := range d.institutions {
		out = append(out, inst.Clone())
	}
	return out, nil
}

// Count reports how many institutions have ever been onboarded.
func (d *InMemoryDirectory) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.institutions), nil
}
