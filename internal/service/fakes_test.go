package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/payment"
	"tiger-life/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the Postgres store
type memStore struct {
	mu sync.Mutex

	calls int

	orders        map[string]*models.Order
	events        map[uuid.UUID]*models.Event
	notifications []models.Notification
	processed     map[string]bool
	listings      map[models.ItemType]map[uuid.UUID]*models.Listing
	messages      []models.Message
	users         map[uuid.UUID]*models.User
	outbox        []models.OutboxMessage

	failOrderInsert bool
	failAll         error
}

func newMemStore() *memStore {
	return &memStore{
		orders:    make(map[string]*models.Order),
		events:    make(map[uuid.UUID]*models.Event),
		processed: make(map[string]bool),
		listings: map[models.ItemType]map[uuid.UUID]*models.Listing{
			models.ItemTypeProduct: {},
			models.ItemTypeService: {},
		},
		users: make(map[uuid.UUID]*models.User),
	}
}

func (m *memStore) enter() error {
	m.calls++
	return m.failAll
}

func (m *memStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memStore) queue(announce *models.OutboxMessage) {
	if announce != nil {
		m.outbox = append(m.outbox, *announce)
	}
}

// queued decodes the outbox messages of the given types, oldest first
func queued[T any](m *memStore, types ...string) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []T
	for _, msg := range m.outbox {
		for _, t := range types {
			if msg.EventType != t {
				continue
			}
			var event T
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				panic(err)
			}
			out = append(out, event)
		}
	}
	return out
}

func (m *memStore) orderTypes() []string {
	events := queued[models.OrderEvent](m,
		models.EventTypeOrderCreated, models.EventTypeOrderCompleted, models.EventTypeOrderCancelled)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	return types
}

func (m *memStore) approvals() []models.EventApprovalEvent {
	return queued[models.EventApprovalEvent](m, models.EventTypeEventApproved, models.EventTypeEventRevoked)
}

func (m *memStore) sentMessages() []models.MessageSentEvent {
	return queued[models.MessageSentEvent](m, models.EventTypeMessageSent)
}

func (m *memStore) CreateOrder(_ context.Context, order *models.Order, announce *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if m.failOrderInsert {
		return errors.New("insert failed")
	}
	if _, ok := m.orders[order.StripeSessionID]; ok {
		return store.ErrDuplicate
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.CreatedAt = time.Now()
	cp := *order
	m.orders[order.StripeSessionID] = &cp
	m.queue(announce)
	return nil
}

func (m *memStore) GetOrderBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	order, ok := m.orders[sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (m *memStore) TransitionOrderStatus(_ context.Context, sessionID string, from, to models.OrderStatus, announce *models.OutboxMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return false, err
	}
	if !from.CanTransition(to) {
		return false, fmt.Errorf("illegal order transition %s -> %s", from, to)
	}
	order, ok := m.orders[sessionID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	m.queue(announce)
	return true, nil
}

func (m *memStore) ListOrdersByUser(_ context.Context, userID uuid.UUID) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	var out []models.Order
	for _, o := range m.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) ListStaleOrders(_ context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.OrderStatusProcessing && o.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) CreateEvent(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	event.ID = uuid.New()
	event.IsApproved = false
	event.CreatedAt = time.Now()
	cp := *event
	m.events[event.ID] = &cp
	return nil
}

func (m *memStore) GetEvent(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	event, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *event
	return &cp, nil
}

// ListEvents ignores the viewer part of the filter so the service's own
// visibility check is what the tests observe
func (m *memStore) ListEvents(_ context.Context, filter store.EventFilter) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	out := []models.Event{}
	for _, e := range m.events {
		switch {
		case filter.Status == store.EventStatusPending && e.IsApproved:
			continue
		case filter.Status == store.EventStatusApproved && !e.IsApproved:
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDatetime.Before(out[j].EventDatetime) })
	return out, nil
}

func (m *memStore) SetEventApproval(_ context.Context, id uuid.UUID, approved bool, announce *models.OutboxMessage) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	event, ok := m.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	event.IsApproved = approved
	m.queue(announce)
	cp := *event
	return &cp, nil
}

func (m *memStore) UpdateEventDetails(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	stored, ok := m.events[event.ID]
	if !ok {
		return store.ErrNotFound
	}
	stored.Title = event.Title
	stored.Description = event.Description
	stored.EventDatetime = event.EventDatetime
	stored.Location = event.Location
	event.OrganizerID = stored.OrganizerID
	event.IsApproved = stored.IsApproved
	return nil
}

func (m *memStore) DeleteEvent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if _, ok := m.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	n.ID = uuid.New()
	n.IsRead = false
	n.CreatedAt = time.Now()
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *memStore) ListNotifications(_ context.Context, receiverID uuid.UUID) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	out := []models.Notification{}
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].ReceiverID == receiverID {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *memStore) MarkNotificationsRead(_ context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return 0, err
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var updated int64
	for i := range m.notifications {
		n := &m.notifications[i]
		if n.ReceiverID == receiverID && want[n.ID] {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (m *memStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return false, err
	}
	return m.processed[eventID], nil
}

func (m *memStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	m.processed[eventID] = true
	return nil
}

func (m *memStore) CreateListing(_ context.Context, kind models.ItemType, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	listing.ID = uuid.New()
	listing.IsActive = true
	listing.CreatedAt = time.Now()
	cp := *listing
	m.listings[kind][listing.ID] = &cp
	return nil
}

func (m *memStore) GetListing(_ context.Context, kind models.ItemType, id uuid.UUID) (*models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	listing, ok := m.listings[kind][id]
	if !ok || !listing.IsActive {
		return nil, store.ErrNotFound
	}
	cp := *listing
	return &cp, nil
}

func (m *memStore) ListActiveListings(_ context.Context, kind models.ItemType) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	out := []models.Listing{}
	for _, l := range m.listings[kind] {
		if l.IsActive {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) ListListingsByOwner(_ context.Context, kind models.ItemType, ownerID uuid.UUID) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	out := []models.Listing{}
	for _, l := range m.listings[kind] {
		if l.IsActive && l.OwnerID == ownerID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) UpdateListing(_ context.Context, kind models.ItemType, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	stored, ok := m.listings[kind][listing.ID]
	if !ok || !stored.IsActive {
		return store.ErrNotFound
	}
	stored.Title = listing.Title
	stored.Description = listing.Description
	stored.Price = listing.Price
	stored.ImageURL = listing.ImageURL
	listing.OwnerID = stored.OwnerID
	listing.IsActive = true
	return nil
}

func (m *memStore) DeactivateListing(_ context.Context, kind models.ItemType, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	stored, ok := m.listings[kind][id]
	if !ok || !stored.IsActive {
		return store.ErrNotFound
	}
	stored.IsActive = false
	return nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *models.Message, announce *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.SentAt = time.Now()
	m.messages = append(m.messages, *msg)
	m.queue(announce)
	return nil
}

func (m *memStore) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, msg := range m.messages {
		if msg.ID == id {
			cp := msg
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListConversation(_ context.Context, userID, otherID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	out := []models.Message{}
	for _, msg := range m.messages {
		if (msg.SenderID == userID && msg.ReceiverID == otherID) || (msg.SenderID == otherID && msg.ReceiverID == userID) {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) ListConversationPartners(_ context.Context, userID uuid.UUID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	out := []models.User{}
	for _, msg := range m.messages {
		var other uuid.UUID
		switch userID {
		case msg.SenderID:
			other = msg.ReceiverID
		case msg.ReceiverID:
			other = msg.SenderID
		default:
			continue
		}
		if u, ok := m.users[other]; ok && !seen[other] {
			seen[other] = true
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *memStore) CreateUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return err
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return store.ErrDuplicate
		}
	}
	user.ID = uuid.New()
	user.IsAdmin = false
	user.JoinedAt = time.Now()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) SetAdmin(_ context.Context, email string, isAdmin bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			u.IsAdmin = isAdmin
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateUserProfile(_ context.Context, id uuid.UUID, fullName, profileImage string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return nil, err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.FullName = fullName
	u.ProfileImage = profileImage
	cp := *u
	return &cp, nil
}

func (m *memStore) addUser(name string) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &models.User{ID: uuid.New(), Email: name + "@campus.edu", FullName: name}
	m.users[u.ID] = u
	return u
}

// fakePayments records checkout requests and hands out sequential sessions
type fakePayments struct {
	mu       sync.Mutex
	requests []payment.CheckoutRequest
	err      error
	next     int
}

func (p *fakePayments) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	p.next++
	id := "cs_test_" + string(rune('a'+p.next))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (p *fakePayments) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// mapCache is an in-memory versioned cache. Invalidate bumps the namespace
// version, the same way the Redis cache does.
type mapCache struct {
	mu          sync.Mutex
	versions    map[string]int64
	entries     map[string][]byte
	invalidated map[string]int
}

func newMapCache() *mapCache {
	return &mapCache{versions: map[string]int64{}, entries: map[string][]byte{}, invalidated: map[string]int{}}
}

func mapCacheKey(namespace string, version int64, key string) string {
	return fmt.Sprintf("%s|%d|%s", namespace, version, key)
}

func (c *mapCache) GetJSON(_ context.Context, namespace, key string, dst interface{}) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	version := c.versions[namespace]
	raw, ok := c.entries[mapCacheKey(namespace, version, key)]
	if !ok {
		return version, false, nil
	}
	return version, true, json.Unmarshal(raw, dst)
}

func (c *mapCache) SetJSON(_ context.Context, namespace, key string, version int64, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[mapCacheKey(namespace, version, key)] = raw
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, namespace string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[namespace]++
	c.invalidated[namespace]++
	return nil
}
