package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ Emitter = (*Hub)(nil)

func TestHubFlushesWhenBatchIsFull(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StagePageDone))
	hub.Emit(sampleEvent(StagePageDone))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesPartialBatchAfterWait(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 25 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageCrawlStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(sampleEvent(StageCrawlStart))
	hub.Emit(sampleEvent(StageCrawlDone))
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	require.True(t, sink.Closed())

	hub.Emit(sampleEvent(StageCrawlStart))
	require.Len(t, sink.Batches(), 1)
}

func TestHubEmitNeverBlocks(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageCrawlStart))
	hub.Emit(sampleEvent(StageCrawlStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, int64(1), hub.Dropped())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageCrawlStart})
	hub.Emit(Event{RunID: sampleEvent(StageCrawlStart).RunID, TS: time.Now(), Stage: StageLookupFailed})
	require.NoError(t, hub.Close(context.Background()))
	require.Empty(t, sink.Batches())
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageCrawlStart))
	require.NoError(t, hub.Close(context.Background()))
	NopEmitter{}.Emit(sampleEvent(StageCrawlStart))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	ok := sampleEvent(StagePageDone)
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Stage = "PAGE_MAYBE"
	require.Error(t, bad.Validate())

	bad = ok
	bad.Page = -1
	require.Error(t, bad.Validate())

	bad = ok
	bad.TS = time.Time{}
	require.Error(t, bad.Validate())

	failed := sampleEvent(StageLookupFailed)
	failed.RecordID = "2000433"
	require.NoError(t, failed.Validate())

	id := uuid.Must(uuid.NewV7())
	require.Equal(t, id, Event{RunID: UUIDToBytes(id)}.RunUUID())
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	copy(out, s.batches)
	return out
}

func (s *recordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func sampleEvent(stage Stage) Event {
	return Event{
		RunID: UUIDToBytes(uuid.New()),
		TS:    time.Now(),
		Stage: stage,
		Page:  3,
	}
}
