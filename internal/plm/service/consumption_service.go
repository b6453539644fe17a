package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConsumptionService 用量台账：BOM行四阶段用量的唯一写入方
type ConsumptionService struct {
	bomRepo *repository.BOMLineRepository
}

func NewConsumptionService(bomRepo *repository.BOMLineRepository) *ConsumptionService {
	return &ConsumptionService{bomRepo: bomRepo}
}

// SetStage 写入指定阶段的用量值，成熟度只进不退
// 成功写入后把新的当前用量传播到所有未锁定用量方案的引用行
func (s *ConsumptionService) SetStage(ctx context.Context, bomLineID string, stage entity.Maturity, value decimal.Decimal, actor string) (*entity.BOMLine, error) {
	if stage != entity.MaturityPreEstimate && stage != entity.MaturitySample && stage != entity.MaturityConfirmed {
		return nil, &ValidationError{Field: "stage", Message: fmt.Sprintf("%q is not a writable stage", stage)}
	}
	if value.IsNegative() {
		return nil, &ValidationError{Field: "value", Message: "consumption must not be negative"}
	}

	line, err := s.bomRepo.FindByID(ctx, bomLineID)
	if err != nil {
		return nil, fmt.Errorf("bom line not found: %w", err)
	}
	if line.Maturity == entity.MaturityLocked {
		return nil, ErrAlreadyLocked
	}

	oldValue := line.StageValue(stage)
	switch stage {
	case entity.MaturityPreEstimate:
		line.PreEstimate = &value
	case entity.MaturitySample:
		line.Sample = &value
	case entity.MaturityConfirmed:
		line.Confirmed = &value
	}

	// 成熟度推进到历史最高写过的阶段，允许跳档，不允许回退
	if stage.Rank() > line.Maturity.Rank() {
		line.Maturity = stage
	}
	line.UpdatedAt = time.Now()

	history := &entity.BOMLineHistory{
		ID:        uuid.New().String()[:32],
		BOMLineID: line.ID,
		Action:    "set_" + string(stage),
		Stage:     stage,
		OldValue:  oldValue,
		NewValue:  &value,
		Actor:     actor,
		CreatedAt: time.Now(),
	}

	current := line.CurrentConsumption()
	if err := s.bomRepo.SaveStageTx(ctx, line, history, current); err != nil {
		return nil, fmt.Errorf("save stage: %w", err)
	}

	return line, nil
}

// Lock 锁定BOM行用量，终态：需要已有 confirmed 值或显式覆盖值
func (s *ConsumptionService) Lock(ctx context.Context, bomLineID string, overrideValue *decimal.Decimal, actor string) (*entity.BOMLine, error) {
	line, err := s.bomRepo.FindByID(ctx, bomLineID)
	if err != nil {
		return nil, fmt.Errorf("bom line not found: %w", err)
	}
	if line.Maturity == entity.MaturityLocked {
		return nil, ErrAlreadyLocked
	}

	value := overrideValue
	if value == nil {
		value = line.Confirmed
	}
	if value == nil {
		return nil, ErrNoConfirmedValue
	}
	if value.IsNegative() {
		return nil, &ValidationError{Field: "value", Message: "consumption must not be negative"}
	}

	oldValue := line.Locked
	locked := *value
	line.Locked = &locked
	line.Maturity = entity.MaturityLocked
	line.UpdatedAt = time.Now()

	history := &entity.BOMLineHistory{
		ID:        uuid.New().String()[:32],
		BOMLineID: line.ID,
		Action:    "lock",
		Stage:     entity.MaturityLocked,
		OldValue:  oldValue,
		NewValue:  &locked,
		Actor:     actor,
		CreatedAt: time.Now(),
	}

	current := line.CurrentConsumption()
	if err := s.bomRepo.SaveStageTx(ctx, line, history, current); err != nil {
		return nil, fmt.Errorf("lock bom line: %w", err)
	}

	return line, nil
}

// SetUnitPrice 维护名义单价，锁定后不可改
func (s *ConsumptionService) SetUnitPrice(ctx context.Context, bomLineID string, price decimal.Decimal, actor string) (*entity.BOMLine, error) {
	if price.IsNegative() {
		return nil, &ValidationError{Field: "unit_price", Message: "unit price must not be negative"}
	}

	line, err := s.bomRepo.FindByID(ctx, bomLineID)
	if err != nil {
		return nil, fmt.Errorf("bom line not found: %w", err)
	}
	if line.Maturity == entity.MaturityLocked {
		return nil, ErrAlreadyLocked
	}

	oldPrice := line.UnitPrice
	line.UnitPrice = &price
	line.UpdatedAt = time.Now()
	if err := s.bomRepo.Update(ctx, line); err != nil {
		return nil, fmt.Errorf("update unit price: %w", err)
	}

	history := &entity.BOMLineHistory{
		ID:        uuid.New().String()[:32],
		BOMLineID: line.ID,
		Action:    "set_price",
		OldValue:  oldPrice,
		NewValue:  &price,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if err := s.bomRepo.AppendHistory(ctx, history); err != nil {
		return nil, fmt.Errorf("append history: %w", err)
	}

	return line, nil
}

// Get 读取BOM行
func (s *ConsumptionService) Get(ctx context.Context, bomLineID string) (*entity.BOMLine, error) {
	return s.bomRepo.FindByID(ctx, bomLineID)
}

// History BOM行变更历史
func (s *ConsumptionService) History(ctx context.Context, bomLineID string) ([]entity.BOMLineHistory, error) {
	if _, err := s.bomRepo.FindByID(ctx, bomLineID); err != nil {
		return nil, fmt.Errorf("bom line not found: %w", err)
	}
	return s.bomRepo.ListHistory(ctx, bomLineID)
}

// CreateLine 在版次下创建模板BOM行
func (s *ConsumptionService) CreateLine(ctx context.Context, revisionID, styleID string, input *BOMLineInput, createdBy string) (*entity.BOMLine, error) {
	if input.WastagePct.IsNegative() || input.WastagePct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, &ValidationError{Field: "wastage_pct", Message: "must be within [0, 100]"}
	}

	line := &entity.BOMLine{
		ID:             uuid.New().String()[:32],
		RevisionID:     revisionID,
		StyleID:        styleID,
		Category:       input.Category,
		MaterialName:   input.MaterialName,
		Unit:           input.Unit,
		WastagePct:     input.WastagePct,
		UnitPrice:      input.UnitPrice,
		RawConsumption: input.RawConsumption,
		SortOrder:      input.SortOrder,
		Maturity:       entity.MaturityUnknown,
		CreatedBy:      createdBy,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if line.Unit == "" {
		line.Unit = "m"
	}

	if err := s.bomRepo.Create(ctx, line); err != nil {
		return nil, fmt.Errorf("create bom line: %w", err)
	}
	return line, nil
}

// ListByRevision 版次下BOM行列表
func (s *ConsumptionService) ListByRevision(ctx context.Context, revisionID string) ([]entity.BOMLine, error) {
	return s.bomRepo.ListByRevision(ctx, revisionID)
}

// ---- Input DTOs ----

type BOMLineInput struct {
	Category       string           `json:"category"`
	MaterialName   string           `json:"material_name" binding:"required"`
	Unit           string           `json:"unit"`
	WastagePct     decimal.Decimal  `json:"wastage_pct"`
	UnitPrice      *decimal.Decimal `json:"unit_price"`
	RawConsumption *decimal.Decimal `json:"raw_consumption"`
	SortOrder      int              `json:"sort_order"`
}
