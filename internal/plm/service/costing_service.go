package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CostingService 成本版本：基于用量方案的计价快照层
type CostingService struct {
	costingRepo *repository.CostingRepository
	usageRepo   *repository.UsageScenarioRepository
	bomRepo     *repository.BOMLineRepository
	readiness   *ReadinessService
}

func NewCostingService(costingRepo *repository.CostingRepository, usageRepo *repository.UsageScenarioRepository, bomRepo *repository.BOMLineRepository, readiness *ReadinessService) *CostingService {
	return &CostingService{
		costingRepo: costingRepo,
		usageRepo:   usageRepo,
		bomRepo:     bomRepo,
		readiness:   readiness,
	}
}

var oneHundred = decimal.NewFromInt(100)

// Create 从用量方案创建成本版本。要求方案内每个被引用物料都有单价，
// 缺价则整体中止并返回完整缺价清单，不落任何部分快照
func (s *CostingService) Create(ctx context.Context, styleID string, input *CreateCostingInput, createdBy string) (*entity.CostingVersion, error) {
	if !entity.ValidCostingType(input.CostingType) {
		return nil, &ValidationError{Field: "costing_type", Message: fmt.Sprintf("%q is not a valid costing type", input.CostingType)}
	}
	if err := validateMargin(input.MarginPct); err != nil {
		return nil, err
	}
	if err := validateCostInputs(input.LaborCost, input.OverheadCost, input.FreightCost, input.PackingCost); err != nil {
		return nil, err
	}

	scenario, err := s.usageRepo.FindByID(ctx, input.UsageScenarioID)
	if err != nil {
		return nil, fmt.Errorf("usage scenario not found: %w", err)
	}
	if scenario.StyleID != styleID {
		return nil, &ValidationError{Field: "usage_scenario_id", Message: "usage scenario belongs to another style"}
	}

	bomLines, err := s.loadBOMLines(ctx, scenario.Lines)
	if err != nil {
		return nil, err
	}

	// 缺价检查先于一切写入
	var missing []string
	for _, ul := range scenario.Lines {
		bl := bomLines[ul.BOMLineID]
		if bl == nil || bl.UnitPrice == nil {
			missing = append(missing, ul.MaterialName)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingUnitPriceError{Materials: missing}
	}

	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}
	exchangeRate := input.ExchangeRate
	if exchangeRate.IsZero() {
		exchangeRate = decimal.NewFromInt(1)
	}

	version := &entity.CostingVersion{
		ID:              uuid.New().String()[:32],
		StyleID:         styleID,
		CostingType:     input.CostingType,
		UsageScenarioID: scenario.ID,
		RevisionID:      scenario.RevisionID,
		LaborCost:       input.LaborCost,
		OverheadCost:    input.OverheadCost,
		FreightCost:     input.FreightCost,
		PackingCost:     input.PackingCost,
		MarginPct:       input.MarginPct,
		WastagePct:      scenario.WastagePct,
		Currency:        currency,
		ExchangeRate:    exchangeRate,
		Notes:           input.Notes,
		Status:          entity.CostingDraft,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	lines := make([]entity.CostLine, 0, len(scenario.Lines))
	for i, ul := range scenario.Lines {
		bl := bomLines[ul.BOMLineID]
		adjusted := ul.AdjustedConsumption(scenario.WastagePct)
		price := *bl.UnitPrice
		line := entity.CostLine{
			ID:                  uuid.New().String()[:32],
			BOMLineID:           ul.BOMLineID,
			MaterialName:        ul.MaterialName,
			Category:            ul.Category,
			Unit:                ul.Unit,
			ConsumptionSnapshot: adjusted,
			UnitPriceSnapshot:   price,
			ConsumptionAdjusted: adjusted,
			UnitPriceAdjusted:   price,
			SortOrder:           i + 1,
			CreatedAt:           time.Now(),
			UpdatedAt:           time.Now(),
		}
		line.LineCost = line.ComputeLineCost()
		lines = append(lines, line)
	}

	computeTotals(version, lines)

	if err := s.costingRepo.CreateWithLines(ctx, version, lines); err != nil {
		return nil, fmt.Errorf("create costing version: %w", err)
	}

	return s.costingRepo.FindByID(ctx, version.ID)
}

// Clone 克隆成本版本为新草稿：版本号进目标类型自己的序列，
// A类字段原样拷贝，B类字段（margin/wastage）可在克隆时覆盖，
// 行连同已做的调整一起拷贝。源版本状态不限也不受影响。
func (s *CostingService) Clone(ctx context.Context, sourceID string, overrides *CloneCostingInput, createdBy string) (*entity.CostingVersion, error) {
	source, err := s.costingRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source costing version not found: %w", err)
	}

	costingType := source.CostingType
	scenarioID := source.UsageScenarioID
	revisionID := source.RevisionID
	marginPct := source.MarginPct
	wastagePct := source.WastagePct
	changeReason := ""
	if overrides != nil {
		if overrides.CostingType != "" {
			if !entity.ValidCostingType(overrides.CostingType) {
				return nil, &ValidationError{Field: "costing_type", Message: fmt.Sprintf("%q is not a valid costing type", overrides.CostingType)}
			}
			costingType = overrides.CostingType
		}
		if overrides.UsageScenarioID != "" {
			scenario, err := s.usageRepo.FindByID(ctx, overrides.UsageScenarioID)
			if err != nil {
				return nil, fmt.Errorf("usage scenario not found: %w", err)
			}
			if scenario.StyleID != source.StyleID {
				return nil, &ValidationError{Field: "usage_scenario_id", Message: "usage scenario belongs to another style"}
			}
			scenarioID = scenario.ID
			revisionID = scenario.RevisionID
		}
		if overrides.MarginPct != nil {
			if err := validateMargin(*overrides.MarginPct); err != nil {
				return nil, err
			}
			marginPct = *overrides.MarginPct
		}
		if overrides.WastagePct != nil {
			if err := validateWastage(*overrides.WastagePct); err != nil {
				return nil, err
			}
			wastagePct = *overrides.WastagePct
		}
		changeReason = overrides.ChangeReason
	}

	clone := &entity.CostingVersion{
		ID:              uuid.New().String()[:32],
		StyleID:         source.StyleID,
		CostingType:     costingType,
		UsageScenarioID: scenarioID,
		RevisionID:      revisionID,
		LaborCost:       source.LaborCost,
		OverheadCost:    source.OverheadCost,
		FreightCost:     source.FreightCost,
		PackingCost:     source.PackingCost,
		MarginPct:       marginPct,
		WastagePct:      wastagePct,
		Currency:        source.Currency,
		ExchangeRate:    source.ExchangeRate,
		Notes:           source.Notes,
		Status:          entity.CostingDraft,
		CloneOfID:       &source.ID,
		ChangeReason:    changeReason,
		CreatedBy:       createdBy,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	lines := make([]entity.CostLine, 0, len(source.Lines))
	for _, sl := range source.Lines {
		nl := sl
		nl.ID = uuid.New().String()[:32]
		nl.CostingVersionID = ""
		nl.CreatedAt = time.Now()
		nl.UpdatedAt = time.Now()
		lines = append(lines, nl)
	}

	computeTotals(clone, lines)

	if err := s.costingRepo.CreateWithLines(ctx, clone, lines); err != nil {
		return nil, fmt.Errorf("clone costing version: %w", err)
	}

	return s.costingRepo.FindByID(ctx, clone.ID)
}

// RefreshSnapshot 对未被手工调整的字段重新拉取台账当前用量/单价。
// 手工调整过的值保持不动；任何被引用物料缺价则整体中止
func (s *CostingService) RefreshSnapshot(ctx context.Context, id string) (*entity.CostingVersion, error) {
	version, err := s.costingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingDraft {
		return nil, ErrNotDraft
	}

	bomLines, err := s.loadBOMLines(ctx, costLineRefs(version.Lines))
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, cl := range version.Lines {
		bl := bomLines[cl.BOMLineID]
		if bl == nil || bl.UnitPrice == nil {
			missing = append(missing, cl.MaterialName)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingUnitPriceError{Materials: missing}
	}

	// 行级损耗覆盖仍以方案行为准
	overrides := map[string]*decimal.Decimal{}
	if scenario, err := s.usageRepo.FindByID(ctx, version.UsageScenarioID); err == nil {
		for _, ul := range scenario.Lines {
			overrides[ul.BOMLineID] = ul.WastageOverride
		}
	}

	for i := range version.Lines {
		cl := &version.Lines[i]
		bl := bomLines[cl.BOMLineID]
		if !cl.IsConsumptionAdjusted {
			if current := bl.CurrentConsumption(); current != nil {
				pct := version.WastagePct
				if ov := overrides[cl.BOMLineID]; ov != nil {
					pct = *ov
				}
				factor := decimal.NewFromInt(1).Add(pct.Div(oneHundred))
				cl.ConsumptionAdjusted = current.Mul(factor).Round(4)
			}
		}
		if !cl.IsPriceAdjusted {
			cl.UnitPriceAdjusted = *bl.UnitPrice
		}
		cl.LineCost = cl.ComputeLineCost()
		cl.UpdatedAt = time.Now()
	}

	computeTotals(version, version.Lines)
	version.UpdatedAt = time.Now()

	lines := version.Lines
	version.Lines = nil
	if err := s.costingRepo.SaveLinesAndTotalsTx(ctx, lines, version); err != nil {
		return nil, fmt.Errorf("refresh snapshot: %w", err)
	}

	return s.costingRepo.FindByID(ctx, id)
}

// PatchHeader 草稿期可直接改A类字段；碰B类字段（margin/wastage）
// 即整单拒绝且不落任何变更，调用方应改走 clone
func (s *CostingService) PatchHeader(ctx context.Context, id string, patch *CostingHeaderPatch) (*entity.CostingVersion, error) {
	version, err := s.costingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingDraft {
		return nil, ErrNotDraft
	}

	var violated []string
	if patch.MarginPct != nil {
		violated = append(violated, "margin_pct")
	}
	if patch.WastagePct != nil {
		violated = append(violated, "wastage_pct")
	}
	if len(violated) > 0 {
		return nil, &VersionPolicyError{Fields: violated}
	}

	if patch.LaborCost != nil {
		if patch.LaborCost.IsNegative() {
			return nil, &ValidationError{Field: "labor_cost", Message: "must not be negative"}
		}
		version.LaborCost = *patch.LaborCost
	}
	if patch.OverheadCost != nil {
		if patch.OverheadCost.IsNegative() {
			return nil, &ValidationError{Field: "overhead_cost", Message: "must not be negative"}
		}
		version.OverheadCost = *patch.OverheadCost
	}
	if patch.FreightCost != nil {
		if patch.FreightCost.IsNegative() {
			return nil, &ValidationError{Field: "freight_cost", Message: "must not be negative"}
		}
		version.FreightCost = *patch.FreightCost
	}
	if patch.PackingCost != nil {
		if patch.PackingCost.IsNegative() {
			return nil, &ValidationError{Field: "packing_cost", Message: "must not be negative"}
		}
		version.PackingCost = *patch.PackingCost
	}
	if patch.Notes != nil {
		version.Notes = *patch.Notes
	}

	computeTotals(version, version.Lines)
	version.UpdatedAt = time.Now()

	lines := version.Lines
	version.Lines = nil
	if err := s.costingRepo.Update(ctx, version); err != nil {
		return nil, fmt.Errorf("patch header: %w", err)
	}
	version.Lines = lines
	return version, nil
}

// PatchLine 草稿期调整成本行：快照字段永不动，只动 *Adjusted 副本。
// 脏标记按"是否仍与快照一致"判定，改回快照值即自动归位为未调整
func (s *CostingService) PatchLine(ctx context.Context, lineID string, patch *CostLinePatch) (*entity.CostLine, error) {
	line, err := s.costingRepo.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("cost line not found: %w", err)
	}

	version, err := s.costingRepo.FindByID(ctx, line.CostingVersionID)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingDraft {
		return nil, ErrNotDraft
	}

	if patch.ConsumptionAdjusted != nil {
		if patch.ConsumptionAdjusted.IsNegative() {
			return nil, &ValidationError{Field: "consumption_adjusted", Message: "must not be negative"}
		}
		line.ConsumptionAdjusted = *patch.ConsumptionAdjusted
		line.IsConsumptionAdjusted = !line.ConsumptionAdjusted.Equal(line.ConsumptionSnapshot)
	}
	if patch.UnitPriceAdjusted != nil {
		if patch.UnitPriceAdjusted.IsNegative() {
			return nil, &ValidationError{Field: "unit_price_adjusted", Message: "must not be negative"}
		}
		line.UnitPriceAdjusted = *patch.UnitPriceAdjusted
		line.IsPriceAdjusted = !line.UnitPriceAdjusted.Equal(line.UnitPriceSnapshot)
	}
	if patch.Reason != "" {
		line.AdjustmentReason = patch.Reason
	}
	line.LineCost = line.ComputeLineCost()
	line.UpdatedAt = time.Now()

	// 表头汇总随行重算
	for i := range version.Lines {
		if version.Lines[i].ID == line.ID {
			version.Lines[i] = *line
		}
	}
	computeTotals(version, version.Lines)
	version.UpdatedAt = time.Now()

	header := *version
	header.Lines = nil
	if err := s.costingRepo.SaveLineAndTotalsTx(ctx, line, &header); err != nil {
		return nil, fmt.Errorf("patch cost line: %w", err)
	}

	return line, nil
}

// Submit 提交成本版本：BOM就绪率达标才放行，
// 提交成功即锁定引用的用量方案（首次引用胜出，幂等）
func (s *CostingService) Submit(ctx context.Context, id, submittedBy string) (*entity.CostingVersion, error) {
	version, err := s.costingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingDraft {
		return nil, ErrNotDraft
	}

	if err := s.readiness.CheckSubmitGate(ctx, version.StyleID); err != nil {
		return nil, err
	}

	now := time.Now()
	version.Status = entity.CostingSubmitted
	version.SubmittedBy = &submittedBy
	version.SubmittedAt = &now
	version.UpdatedAt = now

	err = s.costingRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.CostingVersion{}).
			Where("id = ?", version.ID).
			Updates(map[string]interface{}{
				"status":       version.Status,
				"submitted_by": submittedBy,
				"submitted_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		// 首写胜出：已锁定的方案保持首次写入的锁戳
		return tx.Model(&entity.UsageScenario{}).
			Where("id = ? AND locked_at IS NULL", version.UsageScenarioID).
			Updates(map[string]interface{}{
				"locked_at":                    now,
				"locked_by_costing_version_id": version.ID,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("submit costing version: %w", err)
	}

	return version, nil
}

// Accept 接受已提交版本，终态
func (s *CostingService) Accept(ctx context.Context, id string) (*entity.CostingVersion, error) {
	version, err := s.costingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingSubmitted {
		return nil, ErrNotSubmitted
	}

	version.Status = entity.CostingAccepted
	version.UpdatedAt = time.Now()

	lines := version.Lines
	version.Lines = nil
	if err := s.costingRepo.Update(ctx, version); err != nil {
		return nil, fmt.Errorf("accept costing version: %w", err)
	}
	version.Lines = lines
	return version, nil
}

// Reject 驳回已提交版本，终态
func (s *CostingService) Reject(ctx context.Context, id, reason string) (*entity.CostingVersion, error) {
	version, err := s.costingRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("costing version not found: %w", err)
	}
	if version.Status != entity.CostingSubmitted {
		return nil, ErrNotSubmitted
	}

	version.Status = entity.CostingRejected
	version.RejectReason = reason
	version.UpdatedAt = time.Now()

	lines := version.Lines
	version.Lines = nil
	if err := s.costingRepo.Update(ctx, version); err != nil {
		return nil, fmt.Errorf("reject costing version: %w", err)
	}
	version.Lines = lines
	return version, nil
}

// Get 读取成本版本
func (s *CostingService) Get(ctx context.Context, id string) (*entity.CostingVersion, error) {
	return s.costingRepo.FindByID(ctx, id)
}

// ListByStyle 款式下成本版本列表
func (s *CostingService) ListByStyle(ctx context.Context, styleID, costingType string, status entity.CostingStatus) ([]entity.CostingVersion, error) {
	return s.costingRepo.ListByStyle(ctx, styleID, costingType, status)
}

// computeTotals 汇总算法（4位小数，逢五进一）：
//
//	materialCost = Σ lineCost
//	totalCost    = materialCost + labor + overhead + freight + packing
//	unitPrice    = totalCost / (1 − margin%/100)，除数≤0时回退为 totalCost
func computeTotals(version *entity.CostingVersion, lines []entity.CostLine) {
	material := decimal.Zero
	for _, l := range lines {
		material = material.Add(l.LineCost)
	}
	version.MaterialCost = material.Round(4)
	version.TotalCost = version.MaterialCost.
		Add(version.LaborCost).
		Add(version.OverheadCost).
		Add(version.FreightCost).
		Add(version.PackingCost).
		Round(4)

	divisor := decimal.NewFromInt(1).Sub(version.MarginPct.Div(oneHundred))
	if version.MarginPct.GreaterThanOrEqual(oneHundred) || !divisor.IsPositive() {
		version.UnitPrice = version.TotalCost
		return
	}
	version.UnitPrice = version.TotalCost.Div(divisor).Round(4)
}

func validateMargin(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThanOrEqual(oneHundred) {
		return &ValidationError{Field: "margin_pct", Message: "must be within [0, 100)"}
	}
	return nil
}

func validateCostInputs(costs ...decimal.Decimal) error {
	names := []string{"labor_cost", "overhead_cost", "freight_cost", "packing_cost"}
	for i, c := range costs {
		if c.IsNegative() {
			return &ValidationError{Field: names[i], Message: "must not be negative"}
		}
	}
	return nil
}

func (s *CostingService) loadBOMLines(ctx context.Context, refs []entity.UsageLine) (map[string]*entity.BOMLine, error) {
	ids := make([]string, 0, len(refs))
	for _, l := range refs {
		ids = append(ids, l.BOMLineID)
	}
	lines, err := s.bomRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load bom lines: %w", err)
	}
	m := make(map[string]*entity.BOMLine, len(lines))
	for i := range lines {
		m[lines[i].ID] = &lines[i]
	}
	return m, nil
}

// costLineRefs 成本行转用量行引用，只为复用 loadBOMLines
func costLineRefs(lines []entity.CostLine) []entity.UsageLine {
	refs := make([]entity.UsageLine, 0, len(lines))
	for _, l := range lines {
		refs = append(refs, entity.UsageLine{BOMLineID: l.BOMLineID})
	}
	return refs
}

// ---- Input DTOs ----

type CreateCostingInput struct {
	CostingType     string          `json:"costing_type" binding:"required"`
	UsageScenarioID string          `json:"usage_scenario_id" binding:"required"`
	LaborCost       decimal.Decimal `json:"labor_cost"`
	OverheadCost    decimal.Decimal `json:"overhead_cost"`
	FreightCost     decimal.Decimal `json:"freight_cost"`
	PackingCost     decimal.Decimal `json:"packing_cost"`
	MarginPct       decimal.Decimal `json:"margin_pct"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Notes           string          `json:"notes"`
}

type CloneCostingInput struct {
	CostingType     string           `json:"costing_type"`
	UsageScenarioID string           `json:"usage_scenario_id"`
	MarginPct       *decimal.Decimal `json:"margin_pct"`
	WastagePct      *decimal.Decimal `json:"wastage_pct"`
	ChangeReason    string           `json:"change_reason"`
}

type CostingHeaderPatch struct {
	LaborCost    *decimal.Decimal `json:"labor_cost"`
	OverheadCost *decimal.Decimal `json:"overhead_cost"`
	FreightCost  *decimal.Decimal `json:"freight_cost"`
	PackingCost  *decimal.Decimal `json:"packing_cost"`
	Notes        *string          `json:"notes"`

	// B类字段：出现即冲突
	MarginPct  *decimal.Decimal `json:"margin_pct"`
	WastagePct *decimal.Decimal `json:"wastage_pct"`
}

type CostLinePatch struct {
	ConsumptionAdjusted *decimal.Decimal `json:"consumption_adjusted"`
	UnitPriceAdjusted   *decimal.Decimal `json:"unit_price_adjusted"`
	Reason              string           `json:"reason"`
}
