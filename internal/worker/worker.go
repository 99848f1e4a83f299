package worker

import (
	"context"
	"time"

	"tiger-life/internal/broker"
	"tiger-life/internal/models"
	"tiger-life/internal/realtime"
	"tiger-life/internal/service"
	"tiger-life/internal/util"

	"go.uber.org/zap"
)

// MessageSource is a stream of Kafka messages
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// NotificationWorker turns domain events into notification rows
type NotificationWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer MessageSource, notifications *service.NotificationService) *NotificationWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnMessageSent(notifications.HandleMessageSent)
	eventHandler.OnOrderCompleted(notifications.HandleOrderCompleted)

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.ComponentLogger("notification-worker"),
	}
}

// Start consumes until ctx ends
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// StaleOrderCanceller is the part of the order service the sweeper drives
type StaleOrderCanceller interface {
	CancelStale(ctx context.Context, maxAge time.Duration, batch int) (int, error)
}

// Locker serialises sweeps across instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const (
	sweepLockKey = "order-sweep"
	sweepBatch   = 100
)

// OrderSweeper periodically cancels orders that were never paid
type OrderSweeper struct {
	orders   StaleOrderCanceller
	locker   Locker
	interval time.Duration
	maxAge   time.Duration
	logger   *zap.Logger
}

// NewOrderSweeper creates a new sweeper. locker may be nil for a single instance.
func NewOrderSweeper(orders StaleOrderCanceller, locker Locker, interval, maxAge time.Duration) *OrderSweeper {
	return &OrderSweeper{
		orders:   orders,
		locker:   locker,
		interval: interval,
		maxAge:   maxAge,
		logger:   util.ComponentLogger("order-sweeper"),
	}
}

// Start sweeps once per interval until ctx ends
func (s *OrderSweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting order sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Order sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass. It returns zero without sweeping when another
// instance holds the lock.
func (s *OrderSweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		acquired, err := s.locker.AcquireLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			return 0, err
		}
		if !acquired {
			s.logger.Debug("Sweep lock held elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	total := 0
	for {
		n, err := s.orders.CancelStale(ctx, s.maxAge, sweepBatch)
		total += n
		if err != nil {
			return total, err
		}
		if n < sweepBatch {
			return total, nil
		}
	}
}

// OutboxSource is the store side of the relay
type OutboxSource interface {
	RelayOutbox(ctx context.Context, limit int, publish func(context.Context, models.OutboxMessage) error) (int, error)
	PurgeOutbox(ctx context.Context, before time.Time) (int64, error)
}

// OutboxPublisher writes a queued message to the broker
type OutboxPublisher interface {
	PublishOutbox(ctx context.Context, msg models.OutboxMessage) error
}

const (
	relayBatch     = 100
	outboxRetained = 7 * 24 * time.Hour
	purgeEvery     = time.Hour
)

// OutboxRelay publishes events queued by the store. A message stays queued
// until Kafka accepts it, so events survive broker outages and restarts.
type OutboxRelay struct {
	outbox    OutboxSource
	publisher OutboxPublisher
	interval  time.Duration
	lastPurge time.Time
	logger    *zap.Logger
}

// NewOutboxRelay creates a relay polling every interval
func NewOutboxRelay(outbox OutboxSource, publisher OutboxPublisher, interval time.Duration) *OutboxRelay {
	return &OutboxRelay{
		outbox:    outbox,
		publisher: publisher,
		interval:  interval,
		lastPurge: time.Now(),
		logger:    util.ComponentLogger("outbox-relay"),
	}
}

// Start relays once per interval until ctx ends
func (r *OutboxRelay) Start(ctx context.Context) error {
	r.logger.Info("Starting outbox relay", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Relay(ctx); err != nil && ctx.Err() == nil {
				util.OutboxRelayFailuresTotal.Inc()
				r.logger.Warn("Outbox relay pass failed", zap.Error(err))
			}
			r.purge(ctx)
		}
	}
}

// Relay drains the outbox in batches. It stops at the first message Kafka
// rejects; that message is retried on the next pass.
func (r *OutboxRelay) Relay(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.outbox.RelayOutbox(ctx, relayBatch, r.publisher.PublishOutbox)
		total += n
		util.OutboxRelayedTotal.Add(float64(n))
		if err != nil {
			return total, err
		}
		if n < relayBatch {
			return total, nil
		}
	}
}

func (r *OutboxRelay) purge(ctx context.Context) {
	if time.Since(r.lastPurge) < purgeEvery {
		return
	}
	r.lastPurge = time.Now()

	n, err := r.outbox.PurgeOutbox(ctx, time.Now().Add(-outboxRetained))
	if err != nil {
		r.logger.Warn("Failed to purge outbox", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("Purged published outbox messages", zap.Int64("count", n))
	}
}

// EventCache is the event service's cache hook
type EventCache interface {
	InvalidateCache(ctx context.Context)
}

// ListingCache is the listing service's cache hook
type ListingCache interface {
	InvalidateCache(ctx context.Context, kind models.ItemType)
}

// CacheInvalidator drops cached lists when the change feed reports a write
// to their tables, including writes made outside this process
type CacheInvalidator struct {
	feed     service.ChangeFeed
	events   EventCache
	listings ListingCache
	logger   *zap.Logger
}

// NewCacheInvalidator creates a new invalidator
func NewCacheInvalidator(feed service.ChangeFeed, events EventCache, listings ListingCache) *CacheInvalidator {
	return &CacheInvalidator{
		feed:     feed,
		events:   events,
		listings: listings,
		logger:   util.ComponentLogger("cache-invalidator"),
	}
}

// Start follows the change feed until ctx ends
func (ci *CacheInvalidator) Start(ctx context.Context) error {
	sub := ci.feed.Subscribe(ctx, realtime.Filter{})
	defer sub.Close()

	ci.logger.Info("Starting cache invalidator")
	for change := range sub.Changes() {
		if sub.TakeMissed() > 0 {
			// a change was lost while this loop lagged, so any table may be stale
			ci.events.InvalidateCache(ctx)
			ci.listings.InvalidateCache(ctx, models.ItemTypeProduct)
			ci.listings.InvalidateCache(ctx, models.ItemTypeService)
			continue
		}
		switch change.Table {
		case "events":
			ci.events.InvalidateCache(ctx)
		case "products":
			ci.listings.InvalidateCache(ctx, models.ItemTypeProduct)
		case "services":
			ci.listings.InvalidateCache(ctx, models.ItemTypeService)
		}
	}
	return ctx.Err()
}
