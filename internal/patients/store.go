package patients

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-desk/internal/observability/metrics"
	"github.com/wolfman30/clinic-desk/internal/persistence"
	"github.com/wolfman30/clinic-desk/pkg/logging"
	"golang.org/x/sync/singleflight"
)

// collections is the canonical state guarded by Store.mu. Patients and
// appointments share one lock so a mutation never observes the other
// collection half-updated.
type collections struct {
	patients     []Patient
	appointments []Appointment
}

// Store holds the authoritative in-memory collections and persists a full
// snapshot of the affected collection after every mutation.
type Store struct {
	bridge  persistence.Bridge
	queue   *persistence.WriteQueue
	logger  *logging.Logger
	metrics *metrics.StoreMetrics
	seed    bool
	now     func() time.Time
	loc     *time.Location

	init      singleflight.Group
	ready     chan struct{}
	readyOnce sync.Once

	mu          sync.RWMutex
	initialized bool
	data        collections
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger *logging.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreMetrics records rejected stored records.
func WithStoreMetrics(m *metrics.StoreMetrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithSeedData controls whether absent collections are seeded with the default dataset.
func WithSeedData(enabled bool) StoreOption {
	return func(s *Store) { s.seed = enabled }
}

// WithStoreClock overrides the clock used to anchor seed data.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLocation sets the zone used for zone-less stored timestamps and seed times.
func WithStoreLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewStore creates an uninitialized store. Every operation fails with
// ErrNotReady until Initialize succeeds.
func NewStore(bridge persistence.Bridge, queue *persistence.WriteQueue, opts ...StoreOption) *Store {
	if bridge == nil {
		panic("patients: persistence bridge cannot be nil")
	}
	if queue == nil {
		panic("patients: write queue cannot be nil")
	}
	s := &Store{
		bridge: bridge,
		queue:  queue,
		logger: logging.Default(),
		seed:   true,
		now:    time.Now,
		loc:    time.UTC,
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads both collections, seeding absent ones. Concurrent callers
// share a single load; once it succeeds later calls return immediately. A
// failed load leaves the store not ready so Initialize can be retried.
func (s *Store) Initialize(ctx context.Context) error {
	if s.IsReady() {
		return nil
	}
	_, err, _ := s.init.Do("initialize", func() (any, error) {
		if s.IsReady() {
			return nil, nil
		}
		return nil, s.load(ctx)
	})
	return err
}

// Ready is closed once Initialize has succeeded.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// IsReady reports whether Initialize has succeeded.
func (s *Store) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

func (s *Store) load(ctx context.Context) error {
	now := s.now()

	rawPatients, foundPatients, err := s.bridge.Load(ctx, persistence.CollectionPatients)
	if err != nil {
		return fmt.Errorf("patients: load %s: %w", persistence.CollectionPatients, err)
	}
	rawAppointments, foundAppointments, err := s.bridge.Load(ctx, persistence.CollectionAppointments)
	if err != nil {
		return fmt.Errorf("patients: load %s: %w", persistence.CollectionAppointments, err)
	}

	var data collections
	var seeded []string

	if foundPatients {
		var rejected []rejection
		data.patients, rejected = decodePatients(rawPatients)
		s.reportRejected(persistence.CollectionPatients, rejected)
	} else if s.seed {
		data.patients = defaultPatients(now)
		seeded = append(seeded, persistence.CollectionPatients)
	}

	if foundAppointments {
		var rejected []rejection
		data.appointments, rejected = decodeAppointments(rawAppointments, s.loc)
		s.reportRejected(persistence.CollectionAppointments, rejected)
	} else if s.seed {
		data.appointments = defaultAppointments(now, s.loc)
		seeded = append(seeded, persistence.CollectionAppointments)
	}

	if data.patients == nil {
		data.patients = []Patient{}
	}
	if data.appointments == nil {
		data.appointments = []Appointment{}
	}

	s.mu.Lock()
	s.data = data
	s.initialized = true
	for _, collection := range seeded {
		s.persistLocked(collection)
	}
	s.mu.Unlock()

	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("patient store initialized",
		"patients", len(data.patients),
		"appointments", len(data.appointments),
		"seeded", seeded,
	)
	return nil
}

func (s *Store) reportRejected(collection string, rejected []rejection) {
	for _, r := range rejected {
		s.logger.Warn("rejected stored record",
			"collection", collection,
			"index", r.Index,
			"record_id", r.ID,
			"reason", r.Reason,
		)
	}
	s.metrics.ObserveRejected(collection, len(rejected))
}

// view runs fn under the read lock.
func (s *Store) view(fn func(data *collections)) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return ErrNotReady
	}
	fn(&s.data)
	return nil
}

// mutate runs fn under the write lock. fn returns the collection it changed
// (empty for no change); that collection's snapshot is enqueued before the
// lock is released so writes reach the bridge in mutation order.
func (s *Store) mutate(fn func(data *collections) (string, error)) (*persistence.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotReady
	}
	collection, err := fn(&s.data)
	if err != nil || collection == "" {
		return nil, err
	}
	return s.persistLocked(collection), nil
}

func (s *Store) persistLocked(collection string) *persistence.Receipt {
	var (
		records []json.RawMessage
		err     error
	)
	switch collection {
	case persistence.CollectionPatients:
		records, err = encodeRecords(s.data.patients)
	case persistence.CollectionAppointments:
		records, err = encodeRecords(s.data.appointments)
	default:
		err = fmt.Errorf("patients: unknown collection %q", collection)
	}
	if err != nil {
		s.logger.Error("failed to snapshot collection", "collection", collection, "error", err)
		return persistence.FailedReceipt(collection, err)
	}
	return s.queue.Enqueue(collection, records)
}

// PersistenceStatus reports the newest background write of each collection.
func (s *Store) PersistenceStatus() []persistence.CollectionStatus {
	return s.queue.Status()
}

// ListPatients returns a copy of every patient in storage order.
func (s *Store) ListPatients() ([]Patient, error) {
	var out []Patient
	err := s.view(func(data *collections) {
		out = append([]Patient{}, data.patients...)
	})
	return out, err
}

// ListAppointments returns a copy of every appointment in storage order.
func (s *Store) ListAppointments() ([]Appointment, error) {
	var out []Appointment
	err := s.view(func(data *collections) {
		out = append([]Appointment{}, data.appointments...)
	})
	return out, err
}
