package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/bitfantasy/atelier/internal/plm/service"
	"github.com/gin-gonic/gin"
)

// Handlers 处理器集合
type Handlers struct {
	User    *UserHandler
	Style   *StyleHandler
	BOM     *BOMHandler
	Usage   *UsageHandler
	Costing *CostingHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		User:    NewUserHandler(svc.User),
		Style:   NewStyleHandler(svc.Style),
		BOM:     NewBOMHandler(svc.Consumption, svc.Readiness, svc.Style),
		Usage:   NewUsageHandler(svc.Usage),
		Costing: NewCostingHandler(svc.Costing),
	}
}

// Response 通用响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// ListResponse 列表响应结构
type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// Unauthorized 未授权响应
func Unauthorized(c *gin.Context, message string) {
	Error(c, 40100, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// RespondError 业务错误统一映射：稳定error_code + 结构化明细
func RespondError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		policyErr     *service.VersionPolicyError
		missingErr    *service.MissingUnitPriceError
		notReadyErr   *service.BomNotReadyError
	)

	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(404, Response{Code: 40400, Message: err.Error(), ErrorCode: "NOT_FOUND"})
	case errors.Is(err, service.ErrAlreadyLocked):
		c.JSON(409, Response{Code: 40900, Message: err.Error(), ErrorCode: "ALREADY_LOCKED"})
	case errors.Is(err, service.ErrNotDraft):
		c.JSON(409, Response{Code: 40901, Message: err.Error(), ErrorCode: "NOT_DRAFT"})
	case errors.Is(err, service.ErrNotSubmitted):
		c.JSON(409, Response{Code: 40902, Message: err.Error(), ErrorCode: "NOT_SUBMITTED"})
	case errors.Is(err, service.ErrNoConfirmedValue):
		c.JSON(409, Response{Code: 40903, Message: err.Error(), ErrorCode: "NO_CONFIRMED_VALUE"})
	case errors.As(err, &policyErr):
		c.JSON(409, Response{Code: 40910, Message: policyErr.Error(), ErrorCode: "VERSION_POLICY_VIOLATION", Details: gin.H{"fields": policyErr.Fields}})
	case errors.As(err, &missingErr):
		c.JSON(422, Response{Code: 42200, Message: missingErr.Error(), ErrorCode: "MISSING_UNIT_PRICE", Details: gin.H{"materials": missingErr.Materials}})
	case errors.As(err, &notReadyErr):
		c.JSON(422, Response{Code: 42201, Message: notReadyErr.Error(), ErrorCode: "BOM_NOT_READY", Details: gin.H{
			"total":     notReadyErr.Total,
			"verified":  notReadyErr.Verified,
			"ratio":     notReadyErr.Ratio,
			"threshold": notReadyErr.Threshold,
		}})
	case errors.As(err, &validationErr):
		c.JSON(400, Response{Code: 40000, Message: validationErr.Error(), ErrorCode: "VALIDATION_ERROR", Details: gin.H{"field": validationErr.Field}})
	default:
		c.JSON(500, Response{Code: 50000, Message: err.Error(), ErrorCode: "INTERNAL_ERROR"})
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetPagination 从请求获取分页参数
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}
