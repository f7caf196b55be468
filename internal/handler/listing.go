package handler

import (
	"context"
	"net/http"
	"strings"

	"propsearch/internal/model"

	"github.com/gin-gonic/gin"
)

// Catalog manages indexed listings
type Catalog interface {
	Upsert(ctx context.Context, listings []model.PropertyListing) *model.IngestResponse
	Get(ctx context.Context, id string) (*model.PropertyListing, error)
	Delete(ctx context.Context, ids ...string) error
	Stats(ctx context.Context) (*model.IndexStats, error)
}

// ListingHandler handles listing ingestion and lookup
type ListingHandler struct {
	catalog Catalog
}

// NewListingHandler creates a new listing handler
func NewListingHandler(catalog Catalog) *ListingHandler {
	return &ListingHandler{catalog: catalog}
}

// Upsert handles POST /api/v1/listings
func (h *ListingHandler) Upsert(c *gin.Context) {
	var req model.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if len(req.Listings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No listings provided"})
		return
	}

	response := h.catalog.Upsert(c.Request.Context(), req.Listings)
	switch {
	case response.Indexed == 0:
		c.JSON(http.StatusUnprocessableEntity, response)
	case response.Failed > 0:
		c.JSON(http.StatusPartialContent, response)
	default:
		c.JSON(http.StatusOK, response)
	}
}

// Get handles GET /api/v1/listings/:id
func (h *ListingHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	listing, err := h.catalog.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listing: " + err.Error()})
		return
	}

	if listing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}

	c.JSON(http.StatusOK, listing)
}

// Delete handles DELETE /api/v1/listings/:id
func (h *ListingHandler) Delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := h.catalog.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete listing: " + err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/v1/stats
func (h *ListingHandler) Stats(c *gin.Context) {
	stats, err := h.catalog.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}
