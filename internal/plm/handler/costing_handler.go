package handler

import (
	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-gonic/gin"
)

// CostingHandler 成本版本接口
type CostingHandler struct {
	svc *service.CostingService
}

func NewCostingHandler(svc *service.CostingService) *CostingHandler {
	return &CostingHandler{svc: svc}
}

// Create POST /styles/:id/costing-versions
func (h *CostingHandler) Create(c *gin.Context) {
	var input service.CreateCostingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	version, err := h.svc.Create(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, version)
}

// List GET /styles/:id/costing-versions
func (h *CostingHandler) List(c *gin.Context) {
	versions, err := h.svc.ListByStyle(c.Request.Context(), c.Param("id"),
		c.Query("costing_type"), entity.CostingStatus(c.Query("status")))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": versions})
}

// Get GET /costing-versions/:id
func (h *CostingHandler) Get(c *gin.Context) {
	version, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

// Clone POST /costing-versions/:id/clone
func (h *CostingHandler) Clone(c *gin.Context) {
	var input service.CloneCostingInput
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	version, err := h.svc.Clone(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, version)
}

// Refresh POST /costing-versions/:id/refresh
func (h *CostingHandler) Refresh(c *gin.Context) {
	version, err := h.svc.RefreshSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

// PatchHeader PATCH /costing-versions/:id
func (h *CostingHandler) PatchHeader(c *gin.Context) {
	var patch service.CostingHeaderPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	version, err := h.svc.PatchHeader(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

// PatchLine PATCH /cost-lines/:id
func (h *CostingHandler) PatchLine(c *gin.Context) {
	var patch service.CostLinePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	line, err := h.svc.PatchLine(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}

// Submit POST /costing-versions/:id/submit
func (h *CostingHandler) Submit(c *gin.Context) {
	version, err := h.svc.Submit(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

// Accept POST /costing-versions/:id/accept
func (h *CostingHandler) Accept(c *gin.Context) {
	version, err := h.svc.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}

// Reject POST /costing-versions/:id/reject
func (h *CostingHandler) Reject(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	version, err := h.svc.Reject(c.Request.Context(), c.Param("id"), input.Reason)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, version)
}
