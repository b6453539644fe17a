package handler

import (
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-gonic/gin"
)

// StyleHandler 款式与版次接口
type StyleHandler struct {
	svc *service.StyleService
}

func NewStyleHandler(svc *service.StyleService) *StyleHandler {
	return &StyleHandler{svc: svc}
}

// Create POST /styles
func (h *StyleHandler) Create(c *gin.Context) {
	var input service.CreateStyleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	style, err := h.svc.Create(c.Request.Context(), &input, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, style)
}

// List GET /styles
func (h *StyleHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	styles, total, err := h.svc.List(c.Request.Context(),
		c.Query("season"), c.Query("category"), c.Query("status"), page, pageSize)
	if err != nil {
		RespondError(c, err)
		return
	}

	Success(c, ListResponse{
		Items: styles,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// Get GET /styles/:id
func (h *StyleHandler) Get(c *gin.Context) {
	style, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, style)
}

// Update PUT /styles/:id
func (h *StyleHandler) Update(c *gin.Context) {
	var patch service.StylePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	style, err := h.svc.Update(c.Request.Context(), c.Param("id"), &patch)
	if err != nil {
		RespondError(c, err)
		return
	}
	Success(c, style)
}

// CreateRevision POST /styles/:id/revisions
func (h *StyleHandler) CreateRevision(c *gin.Context) {
	var input struct {
		Notes string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	revision, err := h.svc.CreateRevision(c.Request.Context(), c.Param("id"), input.Notes, GetUserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	Created(c, revision)
}
