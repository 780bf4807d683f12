package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/clinic-desk/pkg/logging"
)

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Receipt tracks a single enqueued collection write. A nil Receipt behaves as
// an already-completed successful write.
type Receipt struct {
	done chan struct{}
	err  error
}

func newReceipt() *Receipt {
	return &Receipt{done: make(chan struct{})}
}

func resolvedReceipt(err error) *Receipt {
	r := newReceipt()
	r.resolve(err)
	return r
}

// FailedReceipt returns a completed receipt carrying a SaveError for writes
// that could not be enqueued at all.
func FailedReceipt(collection string, err error) *Receipt {
	return resolvedReceipt(&SaveError{Collection: collection, Err: err})
}

func (r *Receipt) resolve(err error) {
	r.err = err
	close(r.done)
}

// Write states reported by Receipt.State and WriteQueue.Status.
const (
	WriteSaved   = "saved"
	WritePending = "pending"
	WriteFailed  = "failed"
)

// State reports the receipt as saved, pending or failed without blocking.
func (r *Receipt) State() string {
	if r == nil {
		return WriteSaved
	}
	select {
	case <-r.done:
		if r.err != nil {
			return WriteFailed
		}
		return WriteSaved
	default:
		return WritePending
	}
}

// Done is closed once the write (or a later write that superseded it) finished.
func (r *Receipt) Done() <-chan struct{} {
	if r == nil {
		return closedChan
	}
	return r.done
}

// Err returns the write outcome, or nil while still pending.
func (r *Receipt) Err() error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the write completes or ctx ends. A failed write yields a
// *SaveError; an expired ctx yields ctx.Err() with the write still in flight.
func (r *Receipt) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveObserver is notified after every physical write.
type SaveObserver func(collection string, elapsed time.Duration, err error)

// QueueOption configures a WriteQueue.
type QueueOption func(*WriteQueue)

// WithSaveTimeout bounds each physical write.
func WithSaveTimeout(d time.Duration) QueueOption {
	return func(q *WriteQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *logging.Logger) QueueOption {
	return func(q *WriteQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithObserver registers a callback for write outcomes (metrics).
func WithObserver(fn SaveObserver) QueueOption {
	return func(q *WriteQueue) {
		q.observer = fn
	}
}

type pendingWrite struct {
	records  []json.RawMessage
	receipts []*Receipt
}

type collectionWriter struct {
	name    string
	pending *pendingWrite
	running bool
	last    *Receipt
}

// WriteQueue serializes snapshot writes per collection. Writes for the same
// collection reach the bridge in enqueue order; a snapshot still waiting
// behind an in-flight write is replaced by any newer snapshot, and the
// receipts of both resolve with the newer write's outcome.
type WriteQueue struct {
	bridge   Bridge
	timeout  time.Duration
	logger   *logging.Logger
	observer SaveObserver

	mu      sync.Mutex
	writers map[string]*collectionWriter
	closed  bool
}

// NewWriteQueue creates a queue in front of bridge.
func NewWriteQueue(bridge Bridge, opts ...QueueOption) *WriteQueue {
	if bridge == nil {
		panic("persistence: bridge cannot be nil")
	}
	q := &WriteQueue{
		bridge:  bridge,
		timeout: 5 * time.Second,
		logger:  logging.Default(),
		writers: make(map[string]*collectionWriter),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules records as the next snapshot of collection. It never
// blocks on I/O.
func (q *WriteQueue) Enqueue(collection string, records []json.RawMessage) *Receipt {
	if err := checkCollection(collection); err != nil {
		return resolvedReceipt(&SaveError{Collection: collection, Err: err})
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return resolvedReceipt(&SaveError{Collection: collection, Err: ErrQueueClosed})
	}

	w, ok := q.writers[collection]
	if !ok {
		w = &collectionWriter{name: collection}
		q.writers[collection] = w
	}

	r := newReceipt()
	if w.pending != nil {
		w.pending.records = records
		w.pending.receipts = append(w.pending.receipts, r)
	} else {
		w.pending = &pendingWrite{records: records, receipts: []*Receipt{r}}
	}
	w.last = r

	if !w.running {
		w.running = true
		go q.drain(w)
	}
	return r
}

func (q *WriteQueue) drain(w *collectionWriter) {
	for {
		q.mu.Lock()
		p := w.pending
		if p == nil {
			w.running = false
			q.mu.Unlock()
			return
		}
		w.pending = nil
		q.mu.Unlock()

		err := q.write(w.name, p.records)
		for _, r := range p.receipts {
			r.resolve(err)
		}
	}
}

func (q *WriteQueue) write(collection string, records []json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := q.bridge.Save(ctx, collection, records)
	elapsed := time.Since(start)

	if q.observer != nil {
		q.observer(collection, elapsed, err)
	}
	if err != nil {
		q.logger.Warn("collection save failed",
			"collection", collection,
			"records", len(records),
			"elapsed", elapsed,
			"error", err,
		)
		return &SaveError{Collection: collection, Err: err}
	}
	q.logger.Debug("collection saved", "collection", collection, "records", len(records), "elapsed", elapsed)
	return nil
}

// Flush waits for the latest write of every collection and joins any failures.
func (q *WriteQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	names := make([]string, 0, len(q.writers))
	for name := range q.writers {
		names = append(names, name)
	}
	sort.Strings(names)
	receipts := make([]*Receipt, 0, len(names))
	for _, name := range names {
		receipts = append(receipts, q.writers[name].last)
	}
	q.mu.Unlock()

	var errs []error
	for _, r := range receipts {
		if err := r.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CollectionStatus is the state of the newest write of one collection.
type CollectionStatus struct {
	Collection string `json:"collection"`
	State      string `json:"state"`
	Error      string `json:"error,omitempty"`
}

// Status reports the newest write of every collection written so far,
// sorted by collection name.
func (q *WriteQueue) Status() []CollectionStatus {
	q.mu.Lock()
	receipts := make(map[string]*Receipt, len(q.writers))
	for name, w := range q.writers {
		receipts[name] = w.last
	}
	q.mu.Unlock()

	out := make([]CollectionStatus, 0, len(receipts))
	for name, r := range receipts {
		st := CollectionStatus{Collection: name, State: r.State()}
		if st.State == WriteFailed {
			st.Error = r.Err().Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

// Close rejects new writes and flushes those already enqueued.
func (q *WriteQueue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.Flush(ctx)
}
