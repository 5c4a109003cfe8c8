package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolconsole/internal/queue"
)

func TestRecordPublishesDecodableEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	NewRecorder(q, nil).Record(ctx, Event{
		Operator:   "op-1",
		Action:     ActionEnrollBulk,
		ScheduleID: 42,
		StudentIDs: []int{5, 9},
	})

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case msg := <-msgs:
		evt, err := Decode(msg)
		require.NoError(t, err)
		assert.NotEmpty(t, evt.ID)
		assert.False(t, evt.At.IsZero())
		assert.Equal(t, ActionEnrollBulk, evt.Action)
		assert.Equal(t, []int{5, 9}, evt.StudentIDs)
	case <-time.After(time.Second):
		t.Fatal("no audit message")
	}
}

func TestRecordWithoutQueue(t *testing.T) {
	var r *Recorder
	r.Record(context.Background(), Event{Action: ActionUnenroll})
	NewRecorder(nil, nil).Record(context.Background(), Event{Action: ActionUnenroll})
}

func TestDecodeRejectsOtherTypes(t *testing.T) {
	_, err := Decode(queue.Message{Type: "checkin", Body: []byte("{}")})
	assert.Error(t, err)
}

func TestBuildListQuery(t *testing.T) {
	q, args := buildListQuery(Filter{})
	assert.Contains(t, q, "LIMIT $1 OFFSET $2")
	assert.NotContains(t, q, "WHERE")
	assert.Equal(t, []any{50, 0}, args)

	q, args = buildListQuery(Filter{ScheduleID: 42, StudentID: 7, Limit: 10, Offset: 20})
	assert.Contains(t, q, "WHERE schedule_id = $1 AND student_ids @> $2::jsonb")
	assert.Contains(t, q, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{42, "[7]", 10, 20}, args)
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	q := queue.NewInMemory(2)
	r := NewRecorder(q, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			r.Record(context.Background(), Event{Action: ActionUnenroll, StudentIDs: []int{i}})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("record blocked on a full queue")
	}
	assert.Equal(t, 2, q.Len())
}

type fakeSink struct {
	mu     sync.Mutex
	fails  int
	stored []Event
}

func (s *fakeSink) Insert(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return errors.New("connection reset")
	}
	s.stored = append(s.stored, evt)
	return nil
}

func (s *fakeSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.stored...)
}

func TestDrainStoresEvents(t *testing.T) {
	old := retryBackoff
	retryBackoff = time.Millisecond
	t.Cleanup(func() { retryBackoff = old })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	r := NewRecorder(q, nil)
	r.Record(ctx, Event{Action: ActionEnrollBulk, StudentIDs: []int{1, 2}})
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "checkin", Body: []byte("{}")}))
	r.Record(ctx, Event{Action: ActionUnenroll, StudentIDs: []int{3}})

	sink := &fakeSink{fails: 1}
	done := make(chan error, 1)
	go func() { done <- Drain(ctx, q, sink, nil) }()

	require.Eventually(t, func() bool { return len(sink.events()) == 2 }, time.Second, 5*time.Millisecond)
	got := sink.events()
	assert.Equal(t, ActionEnrollBulk, got[0].Action)
	assert.Equal(t, ActionUnenroll, got[1].Action)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("drain did not stop")
	}
}

func TestLogSinkAcceptsEvents(t *testing.T) {
	assert.NoError(t, LogSink{}.Insert(context.Background(), Event{Action: ActionUnenroll}))
}
