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

// UsageService 用量方案：对台账用量的版本化快照层
type UsageService struct {
	usageRepo *repository.UsageScenarioRepository
	bomRepo   *repository.BOMLineRepository
	styleRepo *repository.StyleRepository
}

func NewUsageService(usageRepo *repository.UsageScenarioRepository, bomRepo *repository.BOMLineRepository, styleRepo *repository.StyleRepository) *UsageService {
	return &UsageService{usageRepo: usageRepo, bomRepo: bomRepo, styleRepo: styleRepo}
}

// Create 创建用量方案：未显式给行时，对版次下全部BOM行按当前用量做快照
// 没有任何阶段值的行以用量0、estimated 状态纳入，完整性交给提交门禁把关
func (s *UsageService) Create(ctx context.Context, revisionID string, input *CreateScenarioInput, createdBy string) (*entity.UsageScenario, error) {
	if !entity.ValidPurpose(input.Purpose) {
		return nil, &ValidationError{Field: "purpose", Message: fmt.Sprintf("%q is not a valid purpose", input.Purpose)}
	}
	if err := validateWastage(input.WastagePct); err != nil {
		return nil, err
	}

	revision, err := s.styleRepo.FindRevisionByID(ctx, revisionID)
	if err != nil {
		return nil, fmt.Errorf("revision not found: %w", err)
	}

	scenario := &entity.UsageScenario{
		ID:           uuid.New().String()[:32],
		RevisionID:   revisionID,
		StyleID:      revision.StyleID,
		Purpose:      input.Purpose,
		WastagePct:   input.WastagePct,
		RoundingRule: input.RoundingRule,
		Notes:        input.Notes,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	var lines []entity.UsageLine
	if len(input.Lines) > 0 {
		for i, li := range input.Lines {
			status := li.Status
			if status == "" {
				status = entity.UsageLineEstimated
			}
			if status != entity.UsageLineEstimated && status != entity.UsageLineConfirmed {
				return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a valid line status", status)}
			}
			bomLine, err := s.bomRepo.FindByID(ctx, li.BOMLineID)
			if err != nil {
				return nil, fmt.Errorf("bom line %s not found: %w", li.BOMLineID, err)
			}
			lines = append(lines, entity.UsageLine{
				ID:              uuid.New().String()[:32],
				BOMLineID:       bomLine.ID,
				MaterialName:    bomLine.MaterialName,
				Category:        bomLine.Category,
				Unit:            bomLine.Unit,
				Consumption:     li.Consumption,
				Status:          status,
				WastageOverride: li.WastageOverride,
				SortOrder:       i + 1,
				CreatedAt:       time.Now(),
				UpdatedAt:       time.Now(),
			})
		}
	} else {
		bomLines, err := s.bomRepo.ListByRevision(ctx, revisionID)
		if err != nil {
			return nil, fmt.Errorf("list bom lines: %w", err)
		}
		for i, bl := range bomLines {
			consumption := decimal.Zero
			status := entity.UsageLineEstimated
			if v := bl.CurrentConsumption(); v != nil {
				consumption = *v
			}
			if bl.Maturity == entity.MaturityConfirmed || bl.Maturity == entity.MaturityLocked {
				status = entity.UsageLineConfirmed
			}
			lines = append(lines, entity.UsageLine{
				ID:           uuid.New().String()[:32],
				BOMLineID:    bl.ID,
				MaterialName: bl.MaterialName,
				Category:     bl.Category,
				Unit:         bl.Unit,
				Consumption:  consumption,
				Status:       status,
				SortOrder:    i + 1,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
			})
		}
	}

	if err := s.usageRepo.CreateWithLines(ctx, scenario, lines); err != nil {
		return nil, fmt.Errorf("create usage scenario: %w", err)
	}

	return s.usageRepo.FindByID(ctx, scenario.ID)
}

// Clone 克隆用量方案成新版本，行原样深拷贝；切换用途时
// 版本号落入目标用途自己的序列
func (s *UsageService) Clone(ctx context.Context, sourceID string, overrides *CloneScenarioInput, createdBy string) (*entity.UsageScenario, error) {
	source, err := s.usageRepo.FindByID(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("source scenario not found: %w", err)
	}

	purpose := source.Purpose
	if overrides != nil && overrides.Purpose != "" {
		if !entity.ValidPurpose(overrides.Purpose) {
			return nil, &ValidationError{Field: "purpose", Message: fmt.Sprintf("%q is not a valid purpose", overrides.Purpose)}
		}
		purpose = overrides.Purpose
	}
	wastage := source.WastagePct
	if overrides != nil && overrides.WastagePct != nil {
		if err := validateWastage(*overrides.WastagePct); err != nil {
			return nil, err
		}
		wastage = *overrides.WastagePct
	}
	notes := source.Notes
	if overrides != nil && overrides.Notes != "" {
		notes = overrides.Notes
	}

	clone := &entity.UsageScenario{
		ID:           uuid.New().String()[:32],
		RevisionID:   source.RevisionID,
		StyleID:      source.StyleID,
		Purpose:      purpose,
		WastagePct:   wastage,
		RoundingRule: source.RoundingRule,
		Notes:        notes,
		ClonedFromID: &source.ID,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	lines := make([]entity.UsageLine, 0, len(source.Lines))
	for _, sl := range source.Lines {
		nl := sl
		nl.ID = uuid.New().String()[:32]
		nl.ScenarioID = ""
		nl.CreatedAt = time.Now()
		nl.UpdatedAt = time.Now()
		lines = append(lines, nl)
	}

	if err := s.usageRepo.CreateWithLines(ctx, clone, lines); err != nil {
		return nil, fmt.Errorf("clone usage scenario: %w", err)
	}

	return s.usageRepo.FindByID(ctx, clone.ID)
}

// UpdateLine 编辑用量行，方案锁定后一律拒绝
func (s *UsageService) UpdateLine(ctx context.Context, lineID string, patch *UsageLinePatch, actor string) (*entity.UsageLine, error) {
	line, err := s.usageRepo.FindLineByID(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("usage line not found: %w", err)
	}

	scenario, err := s.usageRepo.FindByID(ctx, line.ScenarioID)
	if err != nil {
		return nil, fmt.Errorf("scenario not found: %w", err)
	}
	if scenario.IsLocked() {
		return nil, ErrAlreadyLocked
	}

	if patch.Consumption != nil {
		if patch.Consumption.IsNegative() {
			return nil, &ValidationError{Field: "consumption", Message: "must not be negative"}
		}
		line.Consumption = *patch.Consumption
	}
	if patch.Status != nil {
		if *patch.Status != entity.UsageLineEstimated && *patch.Status != entity.UsageLineConfirmed {
			return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a valid line status", *patch.Status)}
		}
		line.Status = *patch.Status
	}
	if patch.WastageOverride != nil {
		if err := validateWastage(*patch.WastageOverride); err != nil {
			return nil, err
		}
		line.WastageOverride = patch.WastageOverride
	}
	line.UpdatedAt = time.Now()

	if err := s.usageRepo.UpdateLine(ctx, line); err != nil {
		return nil, fmt.Errorf("update usage line: %w", err)
	}
	return line, nil
}

// LockOnFirstReference 成本版本首次提交时锁定引用的用量方案。
// 幂等：并发提交竞争同一方案都成功，只有第一个真正写入锁戳。
func (s *UsageService) LockOnFirstReference(ctx context.Context, scenarioID, costingVersionID string) error {
	if _, err := s.usageRepo.LockIfUnlocked(ctx, scenarioID, costingVersionID); err != nil {
		return fmt.Errorf("lock scenario: %w", err)
	}
	return nil
}

// Get 读取用量方案
func (s *UsageService) Get(ctx context.Context, id string) (*entity.UsageScenario, error) {
	return s.usageRepo.FindByID(ctx, id)
}

// ListByRevision 版次下用量方案列表
func (s *UsageService) ListByRevision(ctx context.Context, revisionID, purpose string) ([]entity.UsageScenario, error) {
	return s.usageRepo.ListByRevision(ctx, revisionID, purpose)
}

func validateWastage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return &ValidationError{Field: "wastage_pct", Message: "must be within [0, 100]"}
	}
	return nil
}

// ---- Input DTOs ----

type CreateScenarioInput struct {
	Purpose      string              `json:"purpose" binding:"required"`
	WastagePct   decimal.Decimal     `json:"wastage_pct"`
	RoundingRule string              `json:"rounding_rule"`
	Notes        string              `json:"notes"`
	Lines        []ScenarioLineInput `json:"lines"`
}

type ScenarioLineInput struct {
	BOMLineID       string           `json:"bom_line_id" binding:"required"`
	Consumption     decimal.Decimal  `json:"consumption"`
	Status          string           `json:"status"`
	WastageOverride *decimal.Decimal `json:"wastage_override"`
}

type CloneScenarioInput struct {
	Purpose    string           `json:"purpose"`
	WastagePct *decimal.Decimal `json:"wastage_pct"`
	Notes      string           `json:"notes"`
}

type UsageLinePatch struct {
	Consumption     *decimal.Decimal `json:"consumption"`
	Status          *string          `json:"status"`
	WastageOverride *decimal.Decimal `json:"wastage_override"`
}
