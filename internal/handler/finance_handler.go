package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/dto"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/response"
)

// FinanceHandler serves the staff finance reports
type FinanceHandler struct {
	finance          service.FinanceService
	feeSync          service.FeeSyncService
	syncLookbackDays int
}

func NewFinanceHandler(finance service.FinanceService, feeSync service.FeeSyncService, syncLookbackDays int) *FinanceHandler {
	return &FinanceHandler{finance: finance, feeSync: feeSync, syncLookbackDays: syncLookbackDays}
}

func (h *FinanceHandler) rangeAndFilter(c *gin.Context) (domain.DateRange, domain.FinanceFilter, bool) {
	var q dto.RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return domain.DateRange{}, domain.FinanceFilter{}, false
	}
	r, err := q.Range(h.finance.DefaultRange())
	if err != nil {
		handleError(c, err)
		return domain.DateRange{}, domain.FinanceFilter{}, false
	}
	f, err := q.Filter()
	if err != nil {
		handleError(c, err)
		return domain.DateRange{}, domain.FinanceFilter{}, false
	}
	return r, f, true
}

// Dashboard handles GET /staff/finance, the income, expense and profit
// summaries for one period plus the count of payments still missing fees
func (h *FinanceHandler) Dashboard(c *gin.Context) {
	r, f, ok := h.rangeAndFilter(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	income, err := h.finance.IncomeSummary(ctx, r, f)
	if err != nil {
		handleError(c, err)
		return
	}
	expenses, err := h.finance.ExpenseSummary(ctx, r, f)
	if err != nil {
		handleError(c, err)
		return
	}
	profit, err := h.finance.ProfitSummary(ctx, r)
	if err != nil {
		handleError(c, err)
		return
	}
	unsynced, err := h.finance.UnsyncedPayments(ctx)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, gin.H{
		"range":    r,
		"tax_year": r.TaxYearLabel(),
		"income":   income,
		"expenses": expenses,
		"profit":   profit,
		"unsynced": unsynced,
	})
}

// EventFinancials handles GET /staff/finance/events/:kind/:id
func (h *FinanceHandler) EventFinancials(c *gin.Context) {
	kind, ok := kindParam(c)
	if !ok {
		return
	}
	ef, err := h.finance.EventFinancials(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ef)
}

// EventsComparison handles GET /staff/finance/events
func (h *FinanceHandler) EventsComparison(c *gin.Context) {
	r, _, ok := h.rangeAndFilter(c)
	if !ok {
		return
	}
	cmp, err := h.finance.EventsComparison(c.Request.Context(), r)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, cmp)
}

// ExportCSV handles GET /staff/finance/export. The report is built in memory
// so a failure part way through still gets a JSON error.
func (h *FinanceHandler) ExportCSV(c *gin.Context) {
	r, _, ok := h.rangeAndFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	filename, err := h.finance.ExportCSV(c.Request.Context(), r, &buf)
	if err != nil {
		handleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// SyncFees handles POST /staff/finance/sync-fees
func (h *FinanceHandler) SyncFees(c *gin.Context) {
	var req dto.FeeSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	result, err := h.feeSync.Sync(c.Request.Context(), req.Options(h.syncLookbackDays))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, dto.FeeSyncResponse{FeeSyncResult: result, Summary: result.String()})
}
