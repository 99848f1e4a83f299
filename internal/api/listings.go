package api

import (
	"net/http"
	"strings"

	"tiger-life/internal/models"
	"tiger-life/internal/service"

	"github.com/gin-gonic/gin"
)

// listingKind derives the item type from the route group, /products or /services
func listingKind(c *gin.Context) models.ItemType {
	if strings.HasPrefix(c.FullPath(), "/api/v1/products") {
		return models.ItemTypeProduct
	}
	return models.ItemTypeService
}

func (h *Handler) listListings(c *gin.Context) {
	listings, err := h.svc.Listings.ListActive(c.Request.Context(), listingKind(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) listMyListings(c *gin.Context) {
	listings, err := h.svc.Listings.ListMine(c.Request.Context(), currentSession(c), listingKind(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) getListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	listing, err := h.svc.Listings.Get(c.Request.Context(), listingKind(c), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) createListing(c *gin.Context) {
	var req service.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	listing, err := h.svc.Listings.Create(c.Request.Context(), currentSession(c), listingKind(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, listing)
}

func (h *Handler) updateListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	listing, err := h.svc.Listings.Update(c.Request.Context(), currentSession(c), listingKind(c), id, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) deleteListing(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Listings.Delete(c.Request.Context(), currentSession(c), listingKind(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
