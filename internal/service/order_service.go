package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/payment"
	"tiger-life/internal/store"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// orderInsertTimeout bounds the order insert that follows session creation.
// The insert runs detached from the request so a disconnecting client does
// not abort it.
const orderInsertTimeout = 5 * time.Second

// OrderService drives checkout and order reconciliation
type OrderService struct {
	store    OrderStore
	payments CheckoutProvider
	origin   string
	logger   *zap.Logger
}

// NewOrderService creates a new order service. origin is the public base URL
// the payment page sends the buyer back to.
func NewOrderService(store OrderStore, payments CheckoutProvider, origin string) *OrderService {
	return &OrderService{
		store:    store,
		payments: payments,
		origin:   strings.TrimRight(origin, "/"),
		logger:   util.ComponentLogger("orders"),
	}
}

// CheckoutRequest is a buyer's request to pay for a listing
type CheckoutRequest struct {
	ItemID      string          `json:"itemId"`
	ItemType    string          `json:"itemType"`
	Price       decimal.Decimal `json:"price"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	SellerID    string          `json:"sellerId"`
}

// CheckoutResponse carries the hosted payment page to redirect to
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"-"`
}

type validCheckout struct {
	itemID   uuid.UUID
	itemType models.ItemType
	sellerID uuid.UUID
}

func (s *OrderService) validateCheckout(sess Session, req *CheckoutRequest) (*validCheckout, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if req.ItemID == "" || req.ItemType == "" || req.Title == "" || req.SellerID == "" {
		return nil, validationError("Missing required fields")
	}
	if !req.Price.IsPositive() {
		return nil, validationError("Price must be greater than zero")
	}

	itemType, ok := models.ParseItemType(req.ItemType)
	if !ok {
		return nil, validationError("Unknown item type")
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return nil, validationError("Invalid item id")
	}
	sellerID, err := uuid.Parse(req.SellerID)
	if err != nil {
		return nil, validationError("Invalid seller id")
	}
	if sellerID == sess.UserID {
		return nil, validationError("You cannot purchase your own items")
	}

	return &validCheckout{itemID: itemID, itemType: itemType, sellerID: sellerID}, nil
}

// cancelPath is where the payment page sends a buyer who backs out
func cancelPath(t models.ItemType) string {
	if t == models.ItemTypeProduct {
		return "/marketplace"
	}
	return "/services"
}

// Initiate creates a checkout session and records a processing order for it.
// A failed order insert is logged and counted but does not stop the checkout:
// the buyer still gets the payment page.
func (s *OrderService) Initiate(ctx context.Context, sess Session, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Initiate")
	defer span.End()

	checkout, err := s.validateCheckout(sess, req)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	start := time.Now()
	session, err := s.payments.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		AmountMinor: payment.ToMinorUnits(req.Price),
		Currency:    payment.CurrencyUSD,
		ProductName: req.Title,
		Description: req.Description,
		SuccessURL:  s.origin + "/checkout-success?session_id=" + payment.SessionIDPlaceholder,
		CancelURL:   s.origin + cancelPath(checkout.itemType),
	})
	util.PaymentSessionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.FailSpan(span, err)
		s.logger.Error("Failed to create checkout session",
			zap.String("item_id", req.ItemID),
			zap.Error(err))
		if errors.Is(err, payment.ErrRejected) {
			util.CheckoutsFailedTotal.WithLabelValues("provider_rejected").Inc()
			return nil, &Error{Kind: KindBackend, Message: "Unable to process payment. Please try again later.", Err: err}
		}
		util.CheckoutsFailedTotal.WithLabelValues("provider_unreachable").Inc()
		return nil, &Error{Kind: KindNetwork, Message: "Unable to process payment. Please try again later.", Err: err}
	}

	util.CheckoutsInitiatedTotal.WithLabelValues(string(checkout.itemType)).Inc()

	order := &models.Order{
		ID:              uuid.New(),
		BuyerID:         sess.UserID,
		SellerID:        checkout.sellerID,
		ItemType:        checkout.itemType,
		ItemID:          checkout.itemID,
		Price:           req.Price,
		Status:          models.OrderStatusProcessing,
		StripeSessionID: session.ID,
	}

	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orderInsertTimeout)
	defer cancel()

	if err := s.store.CreateOrder(insertCtx, order, s.announcement(models.EventTypeOrderCreated, order)); err != nil {
		util.OrderInsertFailuresTotal.Inc()
		s.logger.Error("Checkout session has no order row, manual reconciliation needed",
			zap.String("session_id", session.ID),
			zap.String("buyer_id", sess.UserID.String()),
			zap.String("seller_id", checkout.sellerID.String()),
			zap.String("price", req.Price.String()),
			zap.Error(err))
	} else {
		s.logger.Info("Order created",
			zap.String("order_id", order.ID.String()),
			zap.String("session_id", session.ID))
	}

	return &CheckoutResponse{URL: session.URL, SessionID: session.ID}, nil
}

// Reconcile completes the order behind a checkout session once the buyer is
// back from the payment page. Completed orders are returned unchanged, so
// repeated returns are harmless. It never creates an order.
func (s *OrderService) Reconcile(ctx context.Context, sessionID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Reconcile")
	defer span.End()

	if sessionID == "" {
		return nil, validationError("Missing checkout session")
	}

	order, err := s.loadOrder(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusCompleted {
		s.logger.Info("Checkout already reconciled", zap.String("session_id", sessionID))
		return order, nil
	}
	if !order.Status.CanTransition(models.OrderStatusCompleted) {
		return nil, validationError("This order was cancelled")
	}

	completed := *order
	completed.Status = models.OrderStatusCompleted
	moved, err := s.store.TransitionOrderStatus(ctx, sessionID, order.Status, completed.Status,
		s.announcement(models.EventTypeOrderCompleted, &completed))
	if err != nil {
		util.FailSpan(span, err)
		return nil, backendError("Failed to complete order", err)
	}

	if !moved {
		// another request changed the row between the read and the update
		order, err = s.loadOrder(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if order.Status != models.OrderStatusCompleted {
			return nil, validationError("This order was cancelled")
		}
		return order, nil
	}

	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Order completed",
		zap.String("order_id", completed.ID.String()),
		zap.String("session_id", sessionID))

	return &completed, nil
}

func (s *OrderService) loadOrder(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.store.GetOrderBySessionID(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		util.ReconcileNotFoundTotal.Inc()
		s.logger.Error("No order for checkout session", zap.String("session_id", sessionID))
		return nil, notFoundError("We could not find an order for this payment. Please contact support.")
	}
	if err != nil {
		return nil, backendError("Failed to load order", err)
	}
	if err := coerceOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}

// coerceOrder rejects rows whose enumerated columns hold unknown values
func coerceOrder(order *models.Order) error {
	status, ok := models.ParseOrderStatus(string(order.Status))
	if !ok {
		return &Error{Kind: KindBackend, Message: "Order has an unknown status", Err: fmt.Errorf("status %q", order.Status)}
	}
	itemType, ok := models.ParseItemType(string(order.ItemType))
	if !ok {
		return &Error{Kind: KindBackend, Message: "Order has an unknown item type", Err: fmt.Errorf("item type %q", order.ItemType)}
	}
	order.Status = status
	order.ItemType = itemType
	return nil
}

// ListOrders returns the caller's purchases and sales
func (s *OrderService) ListOrders(ctx context.Context, sess Session) ([]models.Order, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrdersByUser(ctx, sess.UserID)
	if err != nil {
		return nil, backendError("Failed to load orders", err)
	}

	valid := orders[:0]
	for i := range orders {
		if err := coerceOrder(&orders[i]); err != nil {
			s.logger.Warn("Skipping malformed order", zap.String("order_id", orders[i].ID.String()), zap.Error(err))
			continue
		}
		valid = append(valid, orders[i])
	}
	return valid, nil
}

// CancelStale cancels orders still processing after maxAge. Their checkout
// sessions have expired, so they can no longer be paid.
func (s *OrderService) CancelStale(ctx context.Context, maxAge time.Duration, batch int) (int, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelStale")
	defer span.End()

	stale, err := s.store.ListStaleOrders(ctx, time.Now().Add(-maxAge), batch)
	if err != nil {
		return 0, backendError("Failed to list stale orders", err)
	}

	cancelled := 0
	for i := range stale {
		order := &stale[i]
		if !order.Status.CanTransition(models.OrderStatusCancelled) {
			continue
		}
		from := order.Status
		order.Status = models.OrderStatusCancelled
		moved, err := s.store.TransitionOrderStatus(ctx, order.StripeSessionID, from, order.Status,
			s.announcement(models.EventTypeOrderCancelled, order))
		if err != nil {
			s.logger.Error("Failed to cancel stale order",
				zap.String("order_id", order.ID.String()),
				zap.Error(err))
			continue
		}
		if !moved {
			continue
		}

		cancelled++
		util.OrdersCancelledTotal.Inc()
	}

	if cancelled > 0 {
		s.logger.Info("Cancelled stale orders", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

// announcement encodes an order event so the store can queue it with the
// status change it describes
func (s *OrderService) announcement(eventType string, order *models.Order) *models.OutboxMessage {
	msg, err := models.NewOutboxMessage(&models.OrderEvent{
		BaseEvent: models.NewBaseEvent(eventType),
		OrderID:   order.ID,
		SessionID: order.StripeSessionID,
		BuyerID:   order.BuyerID,
		SellerID:  order.SellerID,
		ItemType:  order.ItemType,
		ItemID:    order.ItemID,
		Price:     order.Price,
		Status:    order.Status,
	})
	if err != nil {
		s.logger.Error("Failed to encode order event",
			zap.String("type", eventType),
			zap.Error(err))
		return nil
	}
	return msg
}
