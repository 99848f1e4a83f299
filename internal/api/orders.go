package api

import (
	"net/http"

	"tiger-life/internal/service"

	"github.com/gin-gonic/gin"
)

// initiateCheckout starts a payment session and returns the page to redirect to
func (h *Handler) initiateCheckout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	resp, err := h.svc.Orders.Initiate(c.Request.Context(), currentSession(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// checkoutSuccess is where the payment page returns the buyer
func (h *Handler) checkoutSuccess(c *gin.Context) {
	order, err := h.svc.Orders.Reconcile(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), currentSession(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}
