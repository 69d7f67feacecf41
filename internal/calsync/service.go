package calsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/feed"
)

// SourceStatus is the last observed outcome for one source, exposed to the
// dashboard so staff can see when a channel calendar went stale.
type SourceStatus struct {
	SourceID   string     `json:"source_id"`
	ResourceID string     `json:"resource_id"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	EventCount int        `json:"event_count"`
	Warnings   int        `json:"warnings"`
}

// Service drives the sync pipeline: fetch one source, normalize, reconcile
// against the store, and apply the staged mutations. Sources are fully
// independent; a failing source only updates its own status.
type Service struct {
	fetcher    *feed.Fetcher
	normalizer *feed.Normalizer
	store      booking.Service
	sources    []feed.Source
	policy     Policy
	logger     *slog.Logger

	mu     sync.Mutex
	status map[string]*SourceStatus
}

func NewService(
	fetcher *feed.Fetcher,
	normalizer *feed.Normalizer,
	store booking.Service,
	sources []feed.Source,
	policy Policy,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	status := make(map[string]*SourceStatus, len(sources))
	for _, src := range sources {
		status[src.ID] = &SourceStatus{SourceID: src.ID, ResourceID: src.ResourceID}
	}
	return &Service{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		sources:    sources,
		policy:     policy,
		logger:     logger,
		status:     status,
	}
}

func (s *Service) Sources() []feed.Source {
	return s.sources
}

// RunAll runs one sync cycle over every provisioned source. Per-source
// failures are recorded and logged, never aborting the remaining sources.
func (s *Service) RunAll(ctx context.Context) {
	for _, src := range s.sources {
		if ctx.Err() != nil {
			return
		}
		if err := s.RunSource(ctx, src); err != nil {
			s.logger.Error("source sync failed",
				"source_id", src.ID,
				"resource_id", src.ResourceID,
				"url", feed.RedactURL(src.URL),
				"err", err)
		}
	}
}

// RunSource syncs a single source. On fetch failure the source's existing
// bookings are left untouched: the disappearance rule only fires on a
// successful fetch, so a flaky feed never cancels its own bookings.
func (s *Service) RunSource(ctx context.Context, src feed.Source) error {
	now := time.Now().UTC()

	payload, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		s.recordFailure(src.ID, now, err)
		return err
	}

	events, warnings, err := s.normalizer.Normalize(payload, src)
	if err != nil {
		s.recordFailure(src.ID, now, err)
		return err
	}
	for _, w := range warnings {
		s.logger.Warn("feed entry skipped",
			"source_id", src.ID,
			"external_uid", w.ExternalUID,
			"reason", w.Reason)
	}

	// Existing state is fully materialized before the store's per-resource
	// mutation section is entered; no lock is held across the network call
	// above.
	existing, err := s.store.ListActive(ctx, src.ResourceID)
	if err != nil {
		s.recordFailure(src.ID, now, err)
		return err
	}

	plan := Reconcile(src.ResourceID, src.ID, events, existing, s.policy)

	if !plan.Empty() {
		if err := s.store.ApplyReconciliation(ctx, plan); err != nil {
			// A racing staff edit bumped a version or added a booking the
			// plan never saw; the batch rolled back and the next cycle will
			// reconcile from fresh state.
			s.recordFailure(src.ID, now, err)
			return err
		}
	}

	conflicts := 0
	for _, b := range plan.Updates {
		if b.Status == booking.StatusConflicted {
			conflicts++
		}
	}
	if conflicts > 0 {
		s.logger.Warn("conflicts detected",
			"source_id", src.ID,
			"resource_id", src.ResourceID,
			"count", conflicts)
	}

	s.mu.Lock()
	st := s.statusLocked(src)
	st.LastRun = &now
	st.LastError = ""
	st.EventCount = len(events)
	st.Warnings = len(warnings)
	s.mu.Unlock()

	s.logger.Info("source sync completed",
		"source_id", src.ID,
		"resource_id", src.ResourceID,
		"events", len(events),
		"created", len(plan.Creates),
		"updated", len(plan.Updates),
		"warnings", len(warnings))
	return nil
}

// Status returns a snapshot of all source statuses.
func (s *Service) Status() []SourceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SourceStatus, 0, len(s.sources))
	for _, src := range s.sources {
		if st, ok := s.status[src.ID]; ok {
			out = append(out, *st)
		}
	}
	return out
}

func (s *Service) recordFailure(sourceID string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.status[sourceID]; ok {
		st.LastRun = &at
		st.LastError = err.Error()
	}
}

func (s *Service) statusLocked(src feed.Source) *SourceStatus {
	st, ok := s.status[src.ID]
	if !ok {
		st = &SourceStatus{SourceID: src.ID, ResourceID: src.ResourceID}
		s.status[src.ID] = st
	}
	return st
}
