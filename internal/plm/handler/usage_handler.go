package handler

import (
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-gonic/gin"
)

// UsageHandler 用量方案接口
type UsageHandler struct {
	svc *service.UsageService
}

func NewUsageHandler(svc *service.UsageService) *UsageHandler {
	return &UsageHandler{svc: svc}
}

// Create POST /revisions/:id/usage-scenarios
func (h *UsageHandler) Create(c *gin.Context) {
	var input service.CreateScenarioInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	scenario, err := h.svc.Create(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, scenario)
}

// List GET /revisions/:id/usage-scenarios
func (h *UsageHandler) List(c *gin.Context) {
	scenarios, err := h.svc.ListByRevision(c.Request.Context(), c.Param("id"), c.Query("purpose"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, gin.H{"items": scenarios})
}

// Get GET /usage-scenarios/:id
func (h *UsageHandler) Get(c *gin.Context) {
	scenario, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, scenario)
}

// Clone POST /usage-scenarios/:id/clone
func (h *UsageHandler) Clone(c *gin.Context) {
	var input service.CloneScenarioInput
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	scenario, err := h.svc.Clone(c.Request.Context(), c.Param("id"), &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, scenario)
}

// UpdateLine PUT /usage-lines/:id
func (h *UsageHandler) UpdateLine(c *gin.Context) {
	var patch service.UsageLinePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	line, err := h.svc.UpdateLine(c.Request.Context(), c.Param("id"), &patch, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, line)
}
