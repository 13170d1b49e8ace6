package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/response"
)

type RepertoireHandler struct {
	repertoire service.RepertoireService
}

func NewRepertoireHandler(repertoire service.RepertoireService) *RepertoireHandler {
	return &RepertoireHandler{repertoire: repertoire}
}

func (h *RepertoireHandler) CreateComposer(c *gin.Context) {
	var req dto.ComposerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	composer, err := h.repertoire.CreateComposer(c.Request.Context(), req.ToDomain())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.FromComposer(composer))
}

func (h *RepertoireHandler) ListComposers(c *gin.Context) {
	composers, err := h.repertoire.ListComposers(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FromComposers(composers))
}

func (h *RepertoireHandler) CreatePiece(c *gin.Context) {
	var req dto.PieceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	piece, err := h.repertoire.CreatePiece(c.Request.Context(), req.ToDomain())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, piece)
}

func (h *RepertoireHandler) GetPiece(c *gin.Context) {
	piece, err := h.repertoire.GetPiece(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, piece)
}

func (h *RepertoireHandler) CreateProgramme(c *gin.Context) {
	var req dto.ProgrammeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, err := h.repertoire.CreateProgramme(c.Request.Context(), req.ToDomain())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, view)
}

// AddItem handles POST /staff/programmes/:id/items
func (h *RepertoireHandler) AddItem(c *gin.Context) {
	var req dto.ProgrammeItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	view, err := h.repertoire.AddItem(c.Request.Context(), c.Param("id"), req.ToDomain())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, view)
}

// GetProgramme handles GET /programmes/:id with items and running time
func (h *RepertoireHandler) GetProgramme(c *gin.Context) {
	view, err := h.repertoire.GetProgramme(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, view)
}
