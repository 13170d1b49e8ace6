package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/response"
)

// CatalogHandler serves workshops and concerts
type CatalogHandler struct {
	catalog service.CatalogService
}

func NewCatalogHandler(catalog service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func limitQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// ListWorkshops handles GET /workshops
func (h *CatalogHandler) ListWorkshops(c *gin.Context) {
	ws, err := h.catalog.ListUpcomingWorkshops(c.Request.Context(), limitQuery(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromWorkshops(ws))
}

// GetWorkshop handles GET /workshops/:slug
func (h *CatalogHandler) GetWorkshop(c *gin.Context) {
	w, err := h.catalog.GetWorkshopBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	if w.Status != domain.EventStatusPublished {
		handleError(c, domain.ErrWorkshopNotFound)
		return
	}
	response.Success(c, dto.FromWorkshop(w))
}

// ListConcerts handles GET /concerts
func (h *CatalogHandler) ListConcerts(c *gin.Context) {
	cs, err := h.catalog.ListUpcomingConcerts(c.Request.Context(), limitQuery(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromConcerts(cs))
}

// GetConcert handles GET /concerts/:slug
func (h *CatalogHandler) GetConcert(c *gin.Context) {
	concert, err := h.catalog.GetConcertBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	if concert.Status != domain.EventStatusPublished {
		handleError(c, domain.ErrConcertNotFound)
		return
	}
	response.Success(c, dto.FromConcert(concert))
}

// Availability handles GET /events/:kind/:id/availability
func (h *CatalogHandler) Availability(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	avail, err := h.catalog.Availability(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if avail.Hidden {
		response.Success(c, gin.H{"kind": avail.Kind, "event_id": avail.EventID, "is_sold_out": avail.SoldOut, "hide_availability": true})
		return
	}
	response.Success(c, avail)
}

// CreateWorkshop handles POST /staff/workshops
func (h *CatalogHandler) CreateWorkshop(c *gin.Context) {
	var req dto.WorkshopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	w, err := req.ToDomain()
	if err != nil {
		bindError(c, err)
		return
	}

	created, err := h.catalog.CreateWorkshop(c.Request.Context(), w)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.FromWorkshop(created))
}

// UpdateWorkshop handles PUT /staff/workshops/:id
func (h *CatalogHandler) UpdateWorkshop(c *gin.Context) {
	var req dto.WorkshopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	w, err := req.ToDomain()
	if err != nil {
		bindError(c, err)
		return
	}
	w.ID = c.Param("id")

	updated, err := h.catalog.UpdateWorkshop(c.Request.Context(), w)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromWorkshop(updated))
}

// GetWorkshopByID handles GET /staff/workshops/:id, drafts included
func (h *CatalogHandler) GetWorkshopByID(c *gin.Context) {
	w, err := h.catalog.GetWorkshop(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromWorkshop(w))
}

// CreateConcert handles POST /staff/concerts
func (h *CatalogHandler) CreateConcert(c *gin.Context) {
	var req dto.ConcertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	concert, err := req.ToDomain()
	if err != nil {
		bindError(c, err)
		return
	}

	created, err := h.catalog.CreateConcert(c.Request.Context(), concert)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.FromConcert(created))
}

// UpdateConcert handles PUT /staff/concerts/:id
func (h *CatalogHandler) UpdateConcert(c *gin.Context) {
	var req dto.ConcertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	concert, err := req.ToDomain()
	if err != nil {
		bindError(c, err)
		return
	}
	concert.ID = c.Param("id")

	updated, err := h.catalog.UpdateConcert(c.Request.Context(), concert)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromConcert(updated))
}

// GetConcertByID handles GET /staff/concerts/:id, drafts included
func (h *CatalogHandler) GetConcertByID(c *gin.Context) {
	concert, err := h.catalog.GetConcert(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromConcert(concert))
}
