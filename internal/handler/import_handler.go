package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/response"
)

// maxImportSize bounds an uploaded legacy CSV
const maxImportSize = 5 << 20

type ImportHandler struct {
	imports service.ImportService
}

func NewImportHandler(imports service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// ImportLegacy handles POST /staff/workshops/:id/import, a multipart upload
// with the CSV in "file" and an optional "dry_run" field
func (h *ImportHandler) ImportLegacy(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "a CSV file is required in the file field")
		return
	}
	if header.Size > maxImportSize {
		response.BadRequest(c, "import file is too large")
		return
	}
	dryRun, _ := strconv.ParseBool(c.PostForm("dry_run"))

	f, err := header.Open()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	defer f.Close()

	report, err := h.imports.ImportLegacy(c.Request.Context(), service.ImportRequest{
		WorkshopRef: c.Param("id"),
		File:        f,
		DryRun:      dryRun,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}
