package booking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryRepository is an in-process Repository used by tests and by dev runs
// without a database. It honors the same version-check and batch-atomicity
// semantics as the pgx implementation.
type memoryRepository struct {
	mu       sync.RWMutex
	bookings map[string]*Booking
}

func NewMemoryRepository() Repository {
	return &memoryRepository{bookings: make(map[string]*Booking)}
}

func clone(b *Booking) *Booking {
	cp := *b
	return &cp
}

func (r *memoryRepository) Create(ctx context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.createLocked(b)
}

func (r *memoryRepository) createLocked(b *Booking) error {
	if !b.Origin.IsLocal() {
		for _, existing := range r.bookings {
			if existing.Status != StatusCancelled && existing.Origin == b.Origin {
				return ErrDuplicateExternalUID
			}
		}
	}

	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now
	r.bookings[b.ID] = clone(b)
	return nil
}

func (r *memoryRepository) GetByID(ctx context.Context, id string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (r *memoryRepository) List(ctx context.Context, filter Filter) ([]*Booking, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Booking
	for _, b := range r.bookings {
		if filter.ResourceID != "" && b.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Status != "" && string(b.Status) != filter.Status {
			continue
		}
		if filter.To != nil && !b.StartDate.Before(*filter.To) {
			continue
		}
		if filter.From != nil && !b.EndDate.After(*filter.From) {
			continue
		}
		matched = append(matched, clone(b))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartDate.Before(matched[j].StartDate)
	})

	total := len(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize
	if offset >= total {
		return nil, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memoryRepository) ListActive(ctx context.Context, resourceID string) ([]*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Booking
	for _, b := range r.bookings {
		if b.ResourceID == resourceID && b.Status != StatusCancelled {
			active = append(active, clone(b))
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartDate.Before(active[j].StartDate)
	})
	return active, nil
}

func (r *memoryRepository) Update(ctx context.Context, b *Booking, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.updateLocked(b, expectedVersion)
}

func (r *memoryRepository) updateLocked(b *Booking, expectedVersion int64) error {
	stored, ok := r.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrStaleVersion
	}

	b.Version = expectedVersion + 1
	b.CreatedAt = stored.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	r.bookings[b.ID] = clone(b)
	return nil
}

func (r *memoryRepository) ApplyBatch(ctx context.Context, creates []*Booking, updates []*Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Stage against a copy so a mid-batch failure leaves the store untouched.
	staged := make(map[string]*Booking, len(r.bookings))
	for id, b := range r.bookings {
		staged[id] = b
	}
	backup := r.bookings
	r.bookings = staged

	for _, b := range creates {
		if err := r.createLocked(b); err != nil {
			r.bookings = backup
			return err
		}
	}
	for _, b := range updates {
		if err := r.updateLocked(b, b.Version-1); err != nil {
			r.bookings = backup
			return err
		}
	}
	return nil
}

func (r *memoryRepository) FindOverlap(ctx context.Context, resourceID string, start, end time.Time, excludeID string) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.bookings {
		if b.ResourceID != resourceID || b.Status == StatusCancelled || b.ID == excludeID {
			continue
		}
		if b.Overlaps(start, end) {
			return clone(b), nil
		}
	}
	return nil, nil
}
