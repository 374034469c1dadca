package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkrishnan/sangam-backend/internal/common/clock"
)

// fakeNotificationRepo keeps records in memory keyed by event ID
type fakeNotificationRepo struct {
	recipients map[int64]*Recipient
	records    map[string]*Record
	nextID     int64
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		recipients: make(map[int64]*Recipient),
		records:    make(map[string]*Record),
	}
}

func (f *fakeNotificationRepo) CreateIfAbsent(_ context.Context, rec *Record) (bool, error) {
	if _, exists := f.records[rec.EventID]; exists {
		return false, nil
	}
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = time.Now()
	f.records[rec.EventID] = rec
	return true, nil
}

func (f *fakeNotificationRepo) EventDelivered(_ context.Context, eventID string) (bool, error) {
	_, exists := f.records[eventID]
	return exists, nil
}

func (f *fakeNotificationRepo) GetRecipient(_ context.Context, userID int64) (*Recipient, error) {
	r, ok := f.recipients[userID]
	if !ok {
		return nil, ErrRecipientNotFound
	}
	return r, nil
}

func (f *fakeNotificationRepo) GetUserNotifications(context.Context, int64, int, int, bool) ([]*Record, error) {
	return nil, nil
}

func (f *fakeNotificationRepo) UnreadCount(context.Context, int64) (int, error) { return 0, nil }

func (f *fakeNotificationRepo) MarkAsRead(context.Context, int64, int64) error { return nil }

func (f *fakeNotificationRepo) MarkAllAsRead(context.Context, int64) error { return nil }

func (f *fakeNotificationRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for id, rec := range f.records {
		if rec.ExpiresAt.Before(before) {
			delete(f.records, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeNotificationRepo) ListDeviceTokens(context.Context, int64) ([]string, error) {
	return []string{"token-1"}, nil
}

type fakeEmailEnqueuer struct {
	enqueued []*EmailMessage
	err      error
}

func (f *fakeEmailEnqueuer) EnqueueEmail(_ context.Context, msg *EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, msg)
	return nil
}

func testRetention() RetentionConfig {
	return RetentionConfig{
		Match:   30 * 24 * time.Hour,
		Message: 7 * 24 * time.Hour,
	}
}

func newTestFanout(repo *fakeNotificationRepo, push *MockPushSender, emails *fakeEmailEnqueuer) *Fanout {
	policy := NewDispatchPolicy(newFakeCounters(), &fakeRelationships{}, clock.NewFixed(daytime()), policyTestConfig())
	return NewFanout(repo, policy, push, emails, clock.NewFixed(daytime()), testRetention())
}

func newMatchEvent() *Event {
	return &Event{
		EventID:     "new_match:42:10",
		RecipientID: 10,
		Type:        TypeNewMatch,
		ActorID:     2,
		MatchID:     42,
		Score:       81.5,
	}
}

func TestDeliverCreatesRecordPushAndEmail(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	push := NewMockPushSender()
	emails := &fakeEmailEnqueuer{}
	fanout := newTestFanout(repo, push, emails)

	require.NoError(t, fanout.Deliver(context.Background(), newMatchEvent()))

	rec, ok := repo.records["new_match:42:10"]
	require.True(t, ok)
	assert.Equal(t, TypeNewMatch, rec.Type)
	assert.Equal(t, int64(10), rec.UserID)
	assert.NotEmpty(t, rec.Title)

	payload, err := DecodePayload(rec.Type, []byte(rec.Payload))
	require.NoError(t, err)
	nm, ok := payload.(*NewMatchPayload)
	require.True(t, ok)
	assert.Equal(t, int64(42), nm.MatchID)
	assert.InDelta(t, 81.5, nm.Score, 0.001)

	require.Len(t, push.Sent, 1)
	assert.Equal(t, int64(10), push.Sent[0].UserID)
	assert.Equal(t, "new_match:42:10", push.Sent[0].Data["event_id"])

	require.Len(t, emails.enqueued, 1)
	assert.Equal(t, "m@example.com", emails.enqueued[0].To)
}

func TestDeliverIdempotentPerEvent(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	push := NewMockPushSender()
	emails := &fakeEmailEnqueuer{}
	fanout := newTestFanout(repo, push, emails)
	ctx := context.Background()

	require.NoError(t, fanout.Deliver(ctx, newMatchEvent()))
	require.NoError(t, fanout.Deliver(ctx, newMatchEvent()))

	assert.Len(t, repo.records, 1, "retried event must not duplicate the record")
	assert.Len(t, emails.enqueued, 1, "retried event must not re-enqueue the email")
}

func TestDeliverPushFailureRetriesWithoutDuplicates(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	push := NewMockPushSender()
	push.Err = errors.New("fcm unavailable")
	emails := &fakeEmailEnqueuer{}
	fanout := newTestFanout(repo, push, emails)
	ctx := context.Background()

	err := fanout.Deliver(ctx, newMatchEvent())
	require.Error(t, err, "push failure must surface for the task retry")
	assert.Len(t, repo.records, 1)
	assert.Len(t, emails.enqueued, 1)

	// the retry succeeds and touches nothing else
	push.Err = nil
	require.NoError(t, fanout.Deliver(ctx, newMatchEvent()))
	assert.Len(t, repo.records, 1)
	assert.Len(t, emails.enqueued, 1)
	assert.Len(t, push.Sent, 1)
}

func TestDeliverPushRetrySkipsPolicyRecheck(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	push := NewMockPushSender()
	push.Err = errors.New("fcm unavailable")
	emails := &fakeEmailEnqueuer{}

	cfg := policyTestConfig()
	cfg.NewMatchDailyCap = 1
	policy := NewDispatchPolicy(newFakeCounters(), &fakeRelationships{}, clock.NewFixed(daytime()), cfg)
	fanout := NewFanout(repo, policy, push, emails, clock.NewFixed(daytime()), testRetention())
	ctx := context.Background()

	// The first run records the delivery and exactly reaches the
	// daily cap, but its push fails
	err := fanout.Deliver(ctx, newMatchEvent())
	require.Error(t, err)
	require.Len(t, repo.records, 1)

	// The counter the first run bumped must not veto its own retry
	push.Err = nil
	require.NoError(t, fanout.Deliver(ctx, newMatchEvent()))
	assert.Len(t, repo.records, 1)
	assert.Len(t, emails.enqueued, 1)
	assert.Len(t, push.Sent, 1)
}

func TestDeliverHonorsPolicyVeto(t *testing.T) {
	repo := newFakeNotificationRepo()
	recipient := enabledRecipient()
	recipient.NotificationsEnabled = false
	repo.recipients[10] = recipient
	push := NewMockPushSender()
	fanout := newTestFanout(repo, push, &fakeEmailEnqueuer{})

	require.NoError(t, fanout.Deliver(context.Background(), newMatchEvent()))
	assert.Empty(t, repo.records)
	assert.Empty(t, push.Sent)
}

func TestDeliverSkipsEmailWhenDisabled(t *testing.T) {
	repo := newFakeNotificationRepo()
	recipient := enabledRecipient()
	recipient.EmailEnabled = false
	repo.recipients[10] = recipient
	emails := &fakeEmailEnqueuer{}
	fanout := newTestFanout(repo, NewMockPushSender(), emails)

	require.NoError(t, fanout.Deliver(context.Background(), newMatchEvent()))
	assert.Len(t, repo.records, 1)
	assert.Empty(t, emails.enqueued)
}

func TestDeliverEmailOnlyForMatchEvents(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	emails := &fakeEmailEnqueuer{}
	fanout := newTestFanout(repo, NewMockPushSender(), emails)

	require.NoError(t, fanout.Deliver(context.Background(), &Event{
		EventID:        "msg-1",
		RecipientID:    10,
		Type:           TypeMessage,
		ActorID:        2,
		ConversationID: "conv-9",
		Preview:        "hello",
	}))

	assert.Len(t, repo.records, 1)
	assert.Empty(t, emails.enqueued, "message events never email")
}

func TestDeliverSkipsPushWhenDisabled(t *testing.T) {
	repo := newFakeNotificationRepo()
	recipient := enabledRecipient()
	recipient.PushEnabled = false
	repo.recipients[10] = recipient
	push := NewMockPushSender()
	fanout := newTestFanout(repo, push, &fakeEmailEnqueuer{})

	require.NoError(t, fanout.Deliver(context.Background(), newMatchEvent()))
	assert.Len(t, repo.records, 1)
	assert.Empty(t, push.Sent)
}

func TestDeliverStampsPerTypeRetention(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	fanout := newTestFanout(repo, NewMockPushSender(), &fakeEmailEnqueuer{})
	ctx := context.Background()

	require.NoError(t, fanout.Deliver(ctx, newMatchEvent()))
	require.NoError(t, fanout.Deliver(ctx, &Event{
		EventID:        "msg-1",
		RecipientID:    10,
		Type:           TypeMessage,
		ActorID:        2,
		ConversationID: "conv-9",
	}))

	matchRec := repo.records["new_match:42:10"]
	msgRec := repo.records["msg-1"]
	assert.Equal(t, daytime().Add(30*24*time.Hour), matchRec.ExpiresAt)
	assert.Equal(t, daytime().Add(7*24*time.Hour), msgRec.ExpiresAt)
}

func TestDeliverUnknownType(t *testing.T) {
	repo := newFakeNotificationRepo()
	repo.recipients[10] = enabledRecipient()
	fanout := newTestFanout(repo, NewMockPushSender(), &fakeEmailEnqueuer{})

	err := fanout.Deliver(context.Background(), &Event{
		EventID:     "x-1",
		RecipientID: 10,
		Type:        NotificationType("telegram"),
	})
	assert.Error(t, err)
}
