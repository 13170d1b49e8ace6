package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/middleware"
	"github.com/polyphonica/booking/pkg/response"
)

type ExpenseHandler struct {
	expenses service.ExpenseService
	finance  service.FinanceService
}

func NewExpenseHandler(expenses service.ExpenseService, finance service.FinanceService) *ExpenseHandler {
	return &ExpenseHandler{expenses: expenses, finance: finance}
}

// List handles GET /staff/expenses. With no range every expense is returned.
func (h *ExpenseHandler) List(c *gin.Context) {
	var q dto.RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}
	f, err := q.Filter()
	if err != nil {
		handleError(c, err)
		return
	}

	var ranged bool
	r := h.finance.DefaultRange()
	if q.Start != "" || q.End != "" || q.TaxYear != "" {
		if r, err = q.Range(r); err != nil {
			handleError(c, err)
			return
		}
		ranged = true
	}

	list, err := h.expenses.List(c.Request.Context(), rangePtr(ranged, r), f)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, list)
}

func (h *ExpenseHandler) Get(c *gin.Context) {
	e, err := h.expenses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, e)
}

func (h *ExpenseHandler) Create(c *gin.Context) {
	var req dto.ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	staffID, _ := middleware.GetUserID(c)
	in, err := req.ToInput(staffID)
	if err != nil {
		handleError(c, err)
		return
	}

	e, err := h.expenses.Create(c.Request.Context(), in)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, e)
}

func (h *ExpenseHandler) Update(c *gin.Context) {
	var req dto.ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	in, err := req.ToInput("")
	if err != nil {
		handleError(c, err)
		return
	}

	e, err := h.expenses.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, e)
}

func (h *ExpenseHandler) Delete(c *gin.Context) {
	if err := h.expenses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

func rangePtr(ok bool, r domain.DateRange) *domain.DateRange {
	if !ok {
		return nil
	}
	return &r
}
