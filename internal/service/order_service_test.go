package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture() (*OrderService, *memStore, *fakePayments) {
	st := newMemStore()
	pay := &fakePayments{}
	return NewOrderService(st, pay, "https://tigerlife.example/"), st, pay
}

func checkoutFor(seller uuid.UUID, price string) *CheckoutRequest {
	return &CheckoutRequest{
		ItemID:   uuid.NewString(),
		ItemType: "product",
		Price:    decimal.RequireFromString(price),
		Title:    "Desk lamp",
		SellerID: seller.String(),
	}
}

func TestInitiateCreatesProcessingOrder(t *testing.T) {
	svc, st, pay := newOrderFixture()
	buyer := Session{UserID: uuid.New()}
	seller := uuid.New()

	resp, err := svc.Initiate(context.Background(), buyer, checkoutFor(seller, "45.99"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.URL)

	require.Len(t, pay.requests, 1)
	req := pay.requests[0]
	assert.Equal(t, int64(4599), req.AmountMinor)
	assert.Equal(t, payment.CurrencyUSD, req.Currency)
	assert.Equal(t, "https://tigerlife.example/checkout-success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "https://tigerlife.example/marketplace", req.CancelURL)

	order, ok := st.orders[resp.SessionID]
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.True(t, decimal.RequireFromString("45.99").Equal(order.Price))
	assert.Equal(t, buyer.UserID, order.BuyerID)
	assert.Equal(t, seller, order.SellerID)

	assert.Equal(t, []string{models.EventTypeOrderCreated}, st.orderTypes())
}

func TestInitiateServiceCancelsBackToServices(t *testing.T) {
	svc, _, pay := newOrderFixture()
	req := checkoutFor(uuid.New(), "10")
	req.ItemType = "service"

	_, err := svc.Initiate(context.Background(), Session{UserID: uuid.New()}, req)
	require.NoError(t, err)
	assert.Equal(t, "https://tigerlife.example/services", pay.requests[0].CancelURL)
}

func TestInitiateValidatesBeforeNetwork(t *testing.T) {
	buyer := Session{UserID: uuid.New()}

	tests := []struct {
		name   string
		sess   Session
		mutate func(*CheckoutRequest)
		kind   Kind
	}{
		{"anonymous", Anonymous, func(*CheckoutRequest) {}, KindPermission},
		{"own item", buyer, func(r *CheckoutRequest) { r.SellerID = buyer.UserID.String() }, KindValidation},
		{"zero price", buyer, func(r *CheckoutRequest) { r.Price = decimal.Zero }, KindValidation},
		{"negative price", buyer, func(r *CheckoutRequest) { r.Price = decimal.NewFromInt(-3) }, KindValidation},
		{"missing title", buyer, func(r *CheckoutRequest) { r.Title = "" }, KindValidation},
		{"unknown type", buyer, func(r *CheckoutRequest) { r.ItemType = "ticket" }, KindValidation},
		{"bad item id", buyer, func(r *CheckoutRequest) { r.ItemID = "42" }, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, pay := newOrderFixture()
			req := checkoutFor(uuid.New(), "12.50")
			tt.mutate(req)

			_, err := svc.Initiate(context.Background(), tt.sess, req)
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
			assert.Zero(t, pay.calls())
			assert.Zero(t, st.callCount())
		})
	}
}

func TestInitiateOwnItemMessage(t *testing.T) {
	svc, _, _ := newOrderFixture()
	buyer := Session{UserID: uuid.New()}

	_, err := svc.Initiate(context.Background(), buyer, checkoutFor(buyer.UserID, "5"))
	assert.Equal(t, "You cannot purchase your own items", Message(err))
}

func TestInitiateSurvivesOrderInsertFailure(t *testing.T) {
	svc, st, _ := newOrderFixture()
	st.failOrderInsert = true

	resp, err := svc.Initiate(context.Background(), Session{UserID: uuid.New()}, checkoutFor(uuid.New(), "9.99"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.URL)
	assert.Empty(t, st.orders)
	assert.Empty(t, st.orderTypes())
}

func TestInitiateProviderFailure(t *testing.T) {
	svc, st, pay := newOrderFixture()
	pay.err = fmt.Errorf("card declined: %w", payment.ErrRejected)

	_, err := svc.Initiate(context.Background(), Session{UserID: uuid.New()}, checkoutFor(uuid.New(), "9.99"))
	assert.True(t, IsKind(err, KindBackend))
	assert.Empty(t, st.orders)

	pay.err = errors.New("dial tcp: connection refused")
	_, err = svc.Initiate(context.Background(), Session{UserID: uuid.New()}, checkoutFor(uuid.New(), "9.99"))
	assert.True(t, IsKind(err, KindNetwork))
}

func TestReconcileCompletesOnce(t *testing.T) {
	svc, st, _ := newOrderFixture()
	resp, err := svc.Initiate(context.Background(), Session{UserID: uuid.New()}, checkoutFor(uuid.New(), "45.99"))
	require.NoError(t, err)

	first, err := svc.Reconcile(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, first.Status)
	assert.True(t, decimal.RequireFromString("45.99").Equal(first.Price))

	second, err := svc.Reconcile(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.Price.Equal(second.Price))

	assert.Len(t, st.orders, 1)
	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeOrderCompleted}, st.orderTypes())
}

func TestReconcileUnknownSession(t *testing.T) {
	svc, st, _ := newOrderFixture()

	_, err := svc.Reconcile(context.Background(), "cs_missing")
	assert.True(t, IsKind(err, KindNotFound))
	assert.Empty(t, st.orders)

	_, err = svc.Reconcile(context.Background(), "")
	assert.True(t, IsKind(err, KindValidation))
}

func TestReconcileCancelledOrder(t *testing.T) {
	svc, st, _ := newOrderFixture()
	st.orders["cs_old"] = &models.Order{
		ID:              uuid.New(),
		ItemType:        models.ItemTypeService,
		Status:          models.OrderStatusCancelled,
		StripeSessionID: "cs_old",
	}

	_, err := svc.Reconcile(context.Background(), "cs_old")
	assert.True(t, IsKind(err, KindValidation))
	assert.Equal(t, models.OrderStatusCancelled, st.orders["cs_old"].Status)
	assert.Empty(t, st.orderTypes())
}

func TestReconcileRejectsUnknownStatus(t *testing.T) {
	svc, st, _ := newOrderFixture()
	st.orders["cs_odd"] = &models.Order{
		ItemType:        models.ItemTypeProduct,
		Status:          "refunded",
		StripeSessionID: "cs_odd",
	}

	_, err := svc.Reconcile(context.Background(), "cs_odd")
	assert.True(t, IsKind(err, KindBackend))
}

func TestCancelStale(t *testing.T) {
	svc, st, _ := newOrderFixture()
	st.orders["cs_stale"] = &models.Order{
		ID: uuid.New(), ItemType: models.ItemTypeProduct, Status: models.OrderStatusProcessing,
		StripeSessionID: "cs_stale", CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	st.orders["cs_fresh"] = &models.Order{
		ID: uuid.New(), ItemType: models.ItemTypeProduct, Status: models.OrderStatusProcessing,
		StripeSessionID: "cs_fresh", CreatedAt: time.Now(),
	}

	n, err := svc.CancelStale(context.Background(), 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OrderStatusCancelled, st.orders["cs_stale"].Status)
	assert.Equal(t, models.OrderStatusProcessing, st.orders["cs_fresh"].Status)
	assert.Equal(t, []string{models.EventTypeOrderCancelled}, st.orderTypes())
}

func TestListOrdersSkipsMalformedRows(t *testing.T) {
	svc, st, _ := newOrderFixture()
	user := uuid.New()
	st.orders["cs_ok"] = &models.Order{BuyerID: user, ItemType: models.ItemTypeProduct, Status: models.OrderStatusCompleted, StripeSessionID: "cs_ok"}
	st.orders["cs_bad"] = &models.Order{SellerID: user, ItemType: "ticket", Status: models.OrderStatusCompleted, StripeSessionID: "cs_bad"}

	orders, err := svc.ListOrders(context.Background(), Session{UserID: user})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "cs_ok", orders[0].StripeSessionID)
}

// settledStaleStore reports orders as stale even after they have settled,
// the way a listing read just before a concurrent reconcile would
type settledStaleStore struct {
	*memStore
}

func (s settledStaleStore) ListStaleOrders(_ context.Context, _ time.Time, _ int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, nil
}

func TestCancelStaleLeavesSettledOrdersAlone(t *testing.T) {
	st := newMemStore()
	svc := NewOrderService(settledStaleStore{st}, &fakePayments{}, "https://tigerlife.example")
	st.orders["cs_paid"] = &models.Order{
		ID: uuid.New(), ItemType: models.ItemTypeProduct, Status: models.OrderStatusCompleted,
		StripeSessionID: "cs_paid", CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	st.orders["cs_gone"] = &models.Order{
		ID: uuid.New(), ItemType: models.ItemTypeProduct, Status: models.OrderStatusCancelled,
		StripeSessionID: "cs_gone", CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	calls := st.callCount()

	n, err := svc.CancelStale(context.Background(), 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, models.OrderStatusCompleted, st.orders["cs_paid"].Status)
	assert.Equal(t, calls, st.callCount(), "settled orders must not reach the store")
	assert.Empty(t, st.orderTypes())
}

func TestOrderTransitions(t *testing.T) {
	assert.True(t, models.OrderStatusProcessing.CanTransition(models.OrderStatusCompleted))
	assert.True(t, models.OrderStatusProcessing.CanTransition(models.OrderStatusCancelled))
	assert.False(t, models.OrderStatusCompleted.CanTransition(models.OrderStatusCancelled))
	assert.False(t, models.OrderStatusCancelled.CanTransition(models.OrderStatusCompleted))
	assert.False(t, models.OrderStatusCompleted.CanTransition(models.OrderStatusProcessing))
}
