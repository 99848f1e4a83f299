package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"tiger-life/internal/broker"
	"tiger-life/internal/models"
	"tiger-life/internal/realtime"
	"tiger-life/internal/service"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notificationStore struct {
	mu            sync.Mutex
	notifications []models.Notification
	processed     map[string]bool
}

func (s *notificationStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.New()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *notificationStore) ListNotifications(context.Context, uuid.UUID) ([]models.Notification, error) {
	return nil, nil
}

func (s *notificationStore) MarkNotificationsRead(context.Context, uuid.UUID, []uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *notificationStore) IsEventProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[id], nil
}

func (s *notificationStore) MarkEventProcessed(_ context.Context, id, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
	return nil
}

// replaySource hands a fixed set of messages to the handler
type replaySource struct {
	messages [][]byte
	closed   bool
}

func (r *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, m := range r.messages {
		if err := handler(ctx, kafka.Message{Value: m}); err != nil {
			return err
		}
	}
	return nil
}

func (r *replaySource) Close() error {
	r.closed = true
	return nil
}

func TestNotificationWorkerCreatesNotifications(t *testing.T) {
	st := &notificationStore{processed: map[string]bool{}}
	notifications := service.NewNotificationService(st, realtime.NewHub())

	sent, err := json.Marshal(&models.MessageSentEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeMessageSent),
		MessageID:  uuid.New(),
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Content:    "hello",
	})
	require.NoError(t, err)
	completed, err := json.Marshal(&models.OrderEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypeOrderCompleted),
		BuyerID:   uuid.New(),
		SellerID:  uuid.New(),
		ItemType:  models.ItemTypeService,
	})
	require.NoError(t, err)
	created, err := json.Marshal(&models.OrderEvent{BaseEvent: models.NewBaseEvent(models.EventTypeOrderCreated)})
	require.NoError(t, err)

	src := &replaySource{messages: [][]byte{sent, completed, created, sent}}
	w := NewNotificationWorker(src, notifications)

	require.NoError(t, w.Start(context.Background()))
	assert.Len(t, st.notifications, 2)

	require.NoError(t, w.Stop())
	assert.True(t, src.closed)
}

type countingCanceller struct {
	batches []int
	calls   int
}

func (c *countingCanceller) CancelStale(context.Context, time.Duration, int) (int, error) {
	if c.calls >= len(c.batches) {
		return 0, nil
	}
	n := c.batches[c.calls]
	c.calls++
	return n, nil
}

type fakeLocker struct {
	held     bool
	released int
}

func (l *fakeLocker) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLocker) ReleaseLock(context.Context, string) error {
	l.held = false
	l.released++
	return nil
}

func TestSweepDrainsInBatches(t *testing.T) {
	orders := &countingCanceller{batches: []int{sweepBatch, sweepBatch, 7}}
	locker := &fakeLocker{}
	s := NewOrderSweeper(orders, locker, time.Minute, 24*time.Hour)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2*sweepBatch+7, n)
	assert.Equal(t, 3, orders.calls)
	assert.Equal(t, 1, locker.released)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	orders := &countingCanceller{batches: []int{3}}
	s := NewOrderSweeper(orders, &fakeLocker{held: true}, time.Minute, time.Hour)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, orders.calls)
}

type recordingCaches struct {
	mu     sync.Mutex
	events int
	kinds  []models.ItemType
}

func (r *recordingCaches) InvalidateCache(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
}

type listingCaches struct{ *recordingCaches }

func (l listingCaches) InvalidateCache(_ context.Context, kind models.ItemType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, kind)
}

func TestCacheInvalidatorFollowsFeed(t *testing.T) {
	hub := realtime.NewHub()
	caches := &recordingCaches{}
	ci := NewCacheInvalidator(hub, caches, listingCaches{caches})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ci.Start(ctx) }()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(realtime.Change{Table: "events", Op: realtime.OpUpdate})
	hub.Publish(realtime.Change{Table: "services", Op: realtime.OpInsert})
	hub.Publish(realtime.Change{Table: "notifications", Op: realtime.OpInsert})

	require.Eventually(t, func() bool {
		caches.mu.Lock()
		defer caches.mu.Unlock()
		return caches.events == 1 && len(caches.kinds) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.ItemType{models.ItemTypeService}, caches.kinds)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("invalidator did not stop")
	}
}

// stallingEvents blocks the first invalidation until released
type stallingEvents struct {
	*recordingCaches
	release chan struct{}
	once    sync.Once
}

func (s *stallingEvents) InvalidateCache(ctx context.Context) {
	s.once.Do(func() { <-s.release })
	s.recordingCaches.InvalidateCache(ctx)
}

func TestCacheInvalidatorFlushesEverythingAfterMissedChanges(t *testing.T) {
	hub := realtime.NewHub()
	caches := &recordingCaches{}
	events := &stallingEvents{recordingCaches: caches, release: make(chan struct{})}
	ci := NewCacheInvalidator(hub, events, listingCaches{caches})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ci.Start(ctx) }()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(realtime.Change{Table: "events", Op: realtime.OpUpdate})
	// the invalidator is stuck, so most of these overflow its buffer
	for i := 0; i < 40; i++ {
		hub.Publish(realtime.Change{Table: "notifications", Op: realtime.OpInsert})
	}
	close(events.release)

	require.Eventually(t, func() bool {
		caches.mu.Lock()
		defer caches.mu.Unlock()
		return len(caches.kinds) == 2
	}, time.Second, 5*time.Millisecond)
	caches.mu.Lock()
	defer caches.mu.Unlock()
	assert.ElementsMatch(t, []models.ItemType{models.ItemTypeProduct, models.ItemTypeService}, caches.kinds)
	assert.Positive(t, caches.events)
}

// memOutbox mimics the store relay: messages stay queued until published
type memOutbox struct {
	queued []models.OutboxMessage
	purged int
}

func (o *memOutbox) RelayOutbox(ctx context.Context, limit int, publish func(context.Context, models.OutboxMessage) error) (int, error) {
	n := 0
	for n < len(o.queued) && n < limit {
		if err := publish(ctx, o.queued[n]); err != nil {
			o.queued = o.queued[n:]
			return n, err
		}
		n++
	}
	o.queued = o.queued[n:]
	return n, nil
}

func (o *memOutbox) PurgeOutbox(context.Context, time.Time) (int64, error) {
	o.purged++
	return 0, nil
}

type flakyPublisher struct {
	failOn map[string]int
	sent   []string
}

func (p *flakyPublisher) PublishOutbox(_ context.Context, msg models.OutboxMessage) error {
	if p.failOn[msg.PartitionKey] > 0 {
		p.failOn[msg.PartitionKey]--
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg.PartitionKey)
	return nil
}

func queued(keys ...string) []models.OutboxMessage {
	out := make([]models.OutboxMessage, 0, len(keys))
	for i, k := range keys {
		out = append(out, models.OutboxMessage{ID: uuid.New(), Seq: int64(i + 1), PartitionKey: k})
	}
	return out
}

func TestRelayKeepsFailedMessageQueued(t *testing.T) {
	outbox := &memOutbox{queued: queued("order-cs_1", "user-a", "user-b")}
	publisher := &flakyPublisher{failOn: map[string]int{"user-a": 1}}
	r := NewOutboxRelay(outbox, publisher, time.Second)

	n, err := r.Relay(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, outbox.queued, 2)

	n, err = r.Relay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, outbox.queued)
	assert.Equal(t, []string{"order-cs_1", "user-a", "user-b"}, publisher.sent)
}

func TestRelayDrainsInBatches(t *testing.T) {
	keys := make([]string, 2*relayBatch+3)
	for i := range keys {
		keys[i] = "order-cs_" + uuid.NewString()
	}
	outbox := &memOutbox{queued: queued(keys...)}
	publisher := &flakyPublisher{failOn: map[string]int{}}

	n, err := NewOutboxRelay(outbox, publisher, time.Second).Relay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(keys), n)
	assert.Equal(t, keys, publisher.sent)
}

func TestMessageReachesReceiverThroughOutbox(t *testing.T) {
	st := &notificationStore{processed: map[string]bool{}}
	notifications := service.NewNotificationService(st, realtime.NewHub())

	event := &models.MessageSentEvent{
		BaseEvent:  models.NewBaseEvent(models.EventTypeMessageSent),
		MessageID:  uuid.New(),
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Content:    "is the desk still available?",
	}
	msg, err := models.NewOutboxMessage(event)
	require.NoError(t, err)

	// the relay publishes twice when it crashes before marking the row
	src := &replaySource{messages: [][]byte{msg.Payload, msg.Payload}}
	require.NoError(t, NewNotificationWorker(src, notifications).Start(context.Background()))

	require.Len(t, st.notifications, 1)
	assert.Equal(t, event.ReceiverID, st.notifications[0].ReceiverID)
	assert.Equal(t, "is the desk still available?", st.notifications[0].MessagePreview)
}
