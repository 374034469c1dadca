package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkrishnan/sangam-backend/internal/notification"
	"github.com/rkrishnan/sangam-backend/internal/taskqueue"
)

func noop(context.Context, *taskqueue.Task) error { return nil }

func newTestDispatcher() (*Dispatcher, *taskqueue.MemoryBroker) {
	broker := taskqueue.NewMemoryBroker()
	server := taskqueue.NewServer(broker)
	server.Register(KindGenerateAll, taskqueue.KindConfig{Queue: taskqueue.QueueMatching, MaxAttempts: 1}, noop)
	server.Register(KindGenerateUser, taskqueue.KindConfig{Queue: taskqueue.QueueMatching, MaxAttempts: 1}, noop)
	server.Register(KindFanout, taskqueue.KindConfig{Queue: taskqueue.QueueNotifications, MaxAttempts: 1}, noop)
	server.Register(KindEmailSend, taskqueue.KindConfig{Queue: taskqueue.QueueEmails, MaxAttempts: 1}, noop)
	return NewDispatcher(server), broker
}

func popEvent(t *testing.T, broker *taskqueue.MemoryBroker, queue string) *notification.Event {
	t.Helper()
	data, err := broker.Pop(context.Background(), queue, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, data)

	var task taskqueue.Task
	require.NoError(t, json.Unmarshal(data, &task))
	require.Equal(t, KindFanout, task.Kind)

	var ev notification.Event
	require.NoError(t, json.Unmarshal(task.Payload, &ev))
	return &ev
}

func TestEnqueueNewMatchEventShape(t *testing.T) {
	dispatcher, broker := newTestDispatcher()

	require.NoError(t, dispatcher.EnqueueNewMatch(context.Background(), 10, 2, 42, 81.5, 0))

	ev := popEvent(t, broker, taskqueue.QueueNotifications)
	assert.Equal(t, "new_match:42:10", ev.EventID)
	assert.Equal(t, notification.TypeNewMatch, ev.Type)
	assert.Equal(t, int64(10), ev.RecipientID)
	assert.Equal(t, int64(2), ev.ActorID)
	assert.Equal(t, int64(42), ev.MatchID)
	assert.InDelta(t, 81.5, ev.Score, 0.001)
}

// the same logical event must map to the same event ID on a repeat
// enqueue, so the fanout record insert collapses the duplicates
func TestEnqueueEventIDsDeterministic(t *testing.T) {
	dispatcher, broker := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, dispatcher.EnqueueMutualMatch(ctx, 10, 2, 42, 0))
	require.NoError(t, dispatcher.EnqueueMutualMatch(ctx, 10, 2, 42, 0))

	first := popEvent(t, broker, taskqueue.QueueNotifications)
	second := popEvent(t, broker, taskqueue.QueueNotifications)
	assert.Equal(t, first.EventID, second.EventID)
	assert.Equal(t, "mutual_match:42:10", first.EventID)
}

func TestEnqueueMutualMatchPerRecipient(t *testing.T) {
	dispatcher, broker := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, dispatcher.EnqueueMutualMatch(ctx, 10, 2, 42, 0))
	require.NoError(t, dispatcher.EnqueueMutualMatch(ctx, 2, 10, 42, 0))

	a := popEvent(t, broker, taskqueue.QueueNotifications)
	b := popEvent(t, broker, taskqueue.QueueNotifications)
	assert.NotEqual(t, a.EventID, b.EventID, "each side is its own event")
}

func TestEnqueueWithDelayDefers(t *testing.T) {
	dispatcher, broker := newTestDispatcher()

	require.NoError(t, dispatcher.EnqueueSuperLike(context.Background(), 10, 2, 42, time.Minute))
	assert.Equal(t, 0, broker.ReadyLen(taskqueue.QueueNotifications))
	assert.Equal(t, 1, broker.DelayedLen(taskqueue.QueueNotifications))
}

func TestEnqueueGenerateAllRoutesToMatchingQueue(t *testing.T) {
	dispatcher, broker := newTestDispatcher()

	require.NoError(t, dispatcher.EnqueueGenerateAll(context.Background()))
	assert.Equal(t, 1, broker.ReadyLen(taskqueue.QueueMatching))
	assert.Equal(t, 0, broker.ReadyLen(taskqueue.QueueNotifications))
}

func TestEnqueueEmailRoutesToEmailQueue(t *testing.T) {
	dispatcher, broker := newTestDispatcher()

	msg := &notification.EmailMessage{To: "m@example.com", Subject: "You have a new match"}
	require.NoError(t, dispatcher.EnqueueEmail(context.Background(), msg))

	data, err := broker.Pop(context.Background(), taskqueue.QueueEmails, 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, data)

	var task taskqueue.Task
	require.NoError(t, json.Unmarshal(data, &task))
	assert.Equal(t, KindEmailSend, task.Kind)

	var decoded notification.EmailMessage
	require.NoError(t, json.Unmarshal(task.Payload, &decoded))
	assert.Equal(t, "m@example.com", decoded.To)
}
