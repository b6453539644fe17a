package service

import (
	"errors"
	"fmt"
	"strings"
)

// 业务错误：每一类都可被调用方机读分支，负载随错误携带，
// 处理层统一翻译成 error_code + details，服务层只管返回
var (
	// ErrAlreadyLocked 对终态实体（locked成熟度的BOM行、已锁定的用量方案）的写入
	ErrAlreadyLocked = errors.New("entity is locked and can no longer be modified")

	// ErrNotDraft 对非草稿成本版本的写入
	ErrNotDraft = errors.New("costing version is not in draft status")

	// ErrNotSubmitted accept/reject 只能作用于已提交版本
	ErrNotSubmitted = errors.New("costing version is not in submitted status")

	// ErrNoConfirmedValue 锁定需要 confirmed 值或显式覆盖值
	ErrNoConfirmedValue = errors.New("cannot lock: no confirmed value and no override supplied")
)

// ValidationError 输入校验失败（越界的比例、非法枚举等）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// VersionPolicyError PATCH 碰了B类字段；是冲突不是普通校验错误，
// 调用方据此提示"请克隆出新版本再改"
type VersionPolicyError struct {
	Fields []string
}

func (e *VersionPolicyError) Error() string {
	return fmt.Sprintf("fields [%s] require a new version: clone this costing version instead of patching it",
		strings.Join(e.Fields, ", "))
}

// MissingUnitPriceError 缺价物料全量清单随错误返回，创建/刷新整体中止
type MissingUnitPriceError struct {
	Materials []string
}

func (e *MissingUnitPriceError) Error() string {
	return fmt.Sprintf("missing unit price for materials: %s", strings.Join(e.Materials, ", "))
}

// BomNotReadyError 提交门禁未达标，携带进度负载供前端渲染
type BomNotReadyError struct {
	Total     int64
	Verified  int64
	Ratio     float64
	Threshold float64
}

func (e *BomNotReadyError) Error() string {
	return fmt.Sprintf("bom not ready for submission: %d/%d lines verified (ratio %.2f, threshold %.2f)",
		e.Verified, e.Total, e.Ratio, e.Threshold)
}
