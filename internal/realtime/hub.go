package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tiger-life/internal/util"

	"go.uber.org/zap"
)

// Op is the kind of row change
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Change is one row change read from the feed
type Change struct {
	Table  string                 `json:"table"`
	Op     Op                     `json:"op"`
	Record map[string]interface{} `json:"record"`
}

// Field returns a record column rendered as a string, or "" if absent
func (c Change) Field(name string) string {
	v, ok := c.Record[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Filter selects changes by table, operation and an optional equality predicate
type Filter struct {
	Table string
	Ops   []Op
	Field string
	Value string
	// Where, if set, must also accept the change
	Where func(Change) bool
}

// Match reports whether c passes the filter. An empty table or op list
// matches everything.
func (f Filter) Match(c Change) bool {
	if f.Table != "" && f.Table != c.Table {
		return false
	}
	if len(f.Ops) > 0 {
		found := false
		for _, op := range f.Ops {
			if op == c.Op {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Field != "" && c.Field(f.Field) != f.Value {
		return false
	}
	if f.Where != nil && !f.Where(c) {
		return false
	}
	return true
}

// subscriptionBuffer bounds how far a slow subscriber may fall behind.
// Changes past it are counted instead of queued, see TakeMissed.
const subscriptionBuffer = 16

// Subscription delivers matching changes until it is closed or its context ends
type Subscription struct {
	id     uint64
	filter Filter
	ch     chan Change
	hub    *Hub
	once   sync.Once
	missed atomic.Int64
}

// Changes returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) Changes() <-chan Change {
	return s.ch
}

// TakeMissed returns how many changes were dropped because the buffer was
// full, and resets the count. A non-zero result means the reader must
// refetch rather than rely on the changes it saw.
func (s *Subscription) TakeMissed() int64 {
	return s.missed.Swap(0)
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s.id)
	})
}

// Hub fans changes out to subscribers
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	logger *zap.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		logger: util.ComponentLogger("realtime-hub"),
	}
}

// Subscribe registers a subscription that ends when ctx is done
func (h *Hub) Subscribe(ctx context.Context, filter Filter) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		filter: filter,
		ch:     make(chan Change, subscriptionBuffer),
		hub:    h,
	}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Publish delivers c to every matching subscriber without blocking
func (h *Hub) Publish(c Change) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.filter.Match(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			util.RealtimeMissedTotal.Inc()
			if sub.missed.Add(1) == 1 {
				h.logger.Warn("Subscriber lagging, refetch pending",
					zap.Uint64("subscription", sub.id),
					zap.String("table", c.Table))
			}
		}
	}
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
