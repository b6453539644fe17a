package handler

import (
	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BOMHandler 用量台账与就绪度接口
type BOMHandler struct {
	consumption *service.ConsumptionService
	readiness   *service.ReadinessService
	style       *service.StyleService
}

func NewBOMHandler(consumption *service.ConsumptionService, readiness *service.ReadinessService, style *service.StyleService) *BOMHandler {
	return &BOMHandler{consumption: consumption, readiness: readiness, style: style}
}

// CreateLine POST /revisions/:id/bom-lines
func (h *BOMHandler) CreateLine(c *gin.Context) {
	var input service.BOMLineInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	revision, err := h.style.GetRevision(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}

	line, err := h.consumption.CreateLine(c.Request.Context(), revision.ID, revision.StyleID, &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, line)
}

// ListLines GET /revisions/:id/bom-lines
func (h *BOMHandler) ListLines(c *gin.Context) {
	lines, err := h.consumption.ListByRevision(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": lines})
}

// GetLine GET /bom-lines/:id
func (h *BOMHandler) GetLine(c *gin.Context) {
	line, err := h.consumption.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}

// History GET /bom-lines/:id/history
func (h *BOMHandler) History(c *gin.Context) {
	items, err := h.consumption.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// SetStage PUT /bom-lines/:id/stage
func (h *BOMHandler) SetStage(c *gin.Context) {
	var input struct {
		Stage string          `json:"stage" binding:"required"`
		Value decimal.Decimal `json:"value"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	line, err := h.consumption.SetStage(c.Request.Context(), c.Param("id"), entity.Maturity(input.Stage), input.Value, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}

// Lock POST /bom-lines/:id/lock
func (h *BOMHandler) Lock(c *gin.Context) {
	var input struct {
		Value *decimal.Decimal `json:"value"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	line, err := h.consumption.Lock(c.Request.Context(), c.Param("id"), input.Value, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}

// SetPrice PUT /bom-lines/:id/price
func (h *BOMHandler) SetPrice(c *gin.Context) {
	var input struct {
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	line, err := h.consumption.SetUnitPrice(c.Request.Context(), c.Param("id"), input.UnitPrice, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}

// Readiness GET /styles/:id/bom-readiness
func (h *BOMHandler) Readiness(c *gin.Context) {
	r, err := h.readiness.BomReadiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, r)
}
