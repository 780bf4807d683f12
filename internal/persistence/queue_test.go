package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedBridge records saves and can hold them until released.
type gatedBridge struct {
	mu      sync.Mutex
	saves   [][]json.RawMessage
	gate    chan struct{}
	started chan struct{}
	fail    error
}

func newGatedBridge() *gatedBridge {
	return &gatedBridge{gate: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (g *gatedBridge) Load(context.Context, string) ([]json.RawMessage, bool, error) {
	return nil, false, nil
}

func (g *gatedBridge) Save(ctx context.Context, _ string, records []json.RawMessage) error {
	g.started <- struct{}{}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves = append(g.saves, records)
	return g.fail
}

func (g *gatedBridge) snapshot() [][]json.RawMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]json.RawMessage(nil), g.saves...)
}

func rec(id string) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(`{"id":"` + id + `"}`)}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestWriteQueuePersistsLatestSnapshot(t *testing.T) {
	bridge := NewMemoryBridge()
	q := NewWriteQueue(bridge)

	r := q.Enqueue(CollectionPatients, rec("1"))
	require.NoError(t, r.Wait(waitCtx(t)))

	records, found, err := bridge.Load(context.Background(), CollectionPatients)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"id":"1"}`, string(records[0]))
	assert.NoError(t, r.Err())
}

func TestWriteQueueCoalescesSupersededSnapshots(t *testing.T) {
	bridge := newGatedBridge()
	q := NewWriteQueue(bridge)

	first := q.Enqueue(CollectionPatients, rec("a"))
	<-bridge.started // first write is in flight

	second := q.Enqueue(CollectionPatients, rec("b"))
	third := q.Enqueue(CollectionPatients, rec("c"))

	select {
	case <-second.Done():
		t.Fatal("queued write resolved before in-flight write finished")
	default:
	}

	close(bridge.gate)
	require.NoError(t, first.Wait(waitCtx(t)))
	require.NoError(t, second.Wait(waitCtx(t)))
	require.NoError(t, third.Wait(waitCtx(t)))

	saves := bridge.snapshot()
	require.Len(t, saves, 2, "b is superseded by c while a is in flight")
	assert.JSONEq(t, `{"id":"a"}`, string(saves[0][0]))
	assert.JSONEq(t, `{"id":"c"}`, string(saves[1][0]))
}

func TestWriteQueueFailureResolvesWithSaveError(t *testing.T) {
	bridge := newGatedBridge()
	bridge.fail = errors.New("disk full")
	close(bridge.gate)

	var observed []error
	var mu sync.Mutex
	q := NewWriteQueue(bridge, WithObserver(func(collection string, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, CollectionAppointments, collection)
		observed = append(observed, err)
	}))

	err := q.Enqueue(CollectionAppointments, rec("101")).Wait(waitCtx(t))
	require.Error(t, err)
	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.Equal(t, CollectionAppointments, saveErr.Collection)
	assert.ErrorIs(t, err, bridge.fail)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.ErrorIs(t, observed[0], bridge.fail)
}

func TestWriteQueueCollectionsAreIndependent(t *testing.T) {
	bridge := NewMemoryBridge()
	q := NewWriteQueue(bridge)

	q.Enqueue(CollectionPatients, rec("1"))
	q.Enqueue(CollectionAppointments, rec("101"))
	require.NoError(t, q.Flush(waitCtx(t)))

	_, found, _ := bridge.Load(context.Background(), CollectionPatients)
	assert.True(t, found)
	_, found, _ = bridge.Load(context.Background(), CollectionAppointments)
	assert.True(t, found)
}

func TestWriteQueueSaveTimeout(t *testing.T) {
	bridge := newGatedBridge() // gate never opens
	q := NewWriteQueue(bridge, WithSaveTimeout(20*time.Millisecond))

	err := q.Enqueue(CollectionPatients, rec("1")).Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, IsSaveError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWriteQueueWaitHonoursCallerContext(t *testing.T) {
	bridge := newGatedBridge()
	q := NewWriteQueue(bridge)
	r := q.Enqueue(CollectionPatients, rec("1"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.DeadlineExceeded)
	assert.NoError(t, r.Err(), "pending receipt reports no error yet")

	close(bridge.gate)
	require.NoError(t, r.Wait(waitCtx(t)))
}

func TestWriteQueueCloseRejectsNewWrites(t *testing.T) {
	q := NewWriteQueue(NewMemoryBridge())
	q.Enqueue(CollectionPatients, rec("1"))
	require.NoError(t, q.Close(waitCtx(t)))

	err := q.Enqueue(CollectionPatients, rec("2")).Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestWriteQueueRejectsBlankCollection(t *testing.T) {
	q := NewWriteQueue(NewMemoryBridge())
	err := q.Enqueue("", rec("1")).Wait(waitCtx(t))
	assert.ErrorIs(t, err, ErrCollectionRequired)
}

func TestNilReceiptIsComplete(t *testing.T) {
	var r *Receipt
	select {
	case <-r.Done():
	default:
		t.Fatal("nil receipt should be done")
	}
	assert.NoError(t, r.Err())
	assert.NoError(t, r.Wait(context.Background()))
}

func TestWriteQueueStatusTracksNewestWrite(t *testing.T) {
	bridge := newGatedBridge()
	q := NewWriteQueue(bridge)
	assert.Empty(t, q.Status())

	r := q.Enqueue(CollectionPatients, rec("1"))
	<-bridge.started
	assert.Equal(t, WritePending, r.State())
	assert.Equal(t, []CollectionStatus{{Collection: CollectionPatients, State: WritePending}}, q.Status())

	bridge.mu.Lock()
	bridge.fail = errors.New("disk full")
	bridge.mu.Unlock()
	close(bridge.gate)
	require.Error(t, r.Wait(waitCtx(t)))

	status := q.Status()
	require.Len(t, status, 1)
	assert.Equal(t, WriteFailed, status[0].State)
	assert.Contains(t, status[0].Error, "disk full")
	assert.Equal(t, WriteFailed, r.State())

	var none *Receipt
	assert.Equal(t, WriteSaved, none.State())
}
