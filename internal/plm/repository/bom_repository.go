package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BOMLineRepository struct {
	db *gorm.DB
}

func NewBOMLineRepository(db *gorm.DB) *BOMLineRepository {
	return &BOMLineRepository{db: db}
}

// Create 创建BOM行
func (r *BOMLineRepository) Create(ctx context.Context, line *entity.BOMLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

// FindByID 根据ID查找BOM行
func (r *BOMLineRepository) FindByID(ctx context.Context, id string) (*entity.BOMLine, error) {
	var line entity.BOMLine
	err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// FindByIDs 批量查找BOM行
func (r *BOMLineRepository) FindByIDs(ctx context.Context, ids []string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&lines).Error
	return lines, err
}

// ListByRevision 版次下全部BOM行
func (r *BOMLineRepository) ListByRevision(ctx context.Context, revisionID string) ([]entity.BOMLine, error) {
	var lines []entity.BOMLine
	err := r.db.WithContext(ctx).
		Where("revision_id = ?", revisionID).
		Order("sort_order, created_at").
		Find(&lines).Error
	return lines, err
}

// Update 更新BOM行
func (r *BOMLineRepository) Update(ctx context.Context, line *entity.BOMLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// AppendHistory 追加历史记录（只追加，不更新不删除）
func (r *BOMLineRepository) AppendHistory(ctx context.Context, h *entity.BOMLineHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

// ListHistory BOM行历史，按时间正序
func (r *BOMLineRepository) ListHistory(ctx context.Context, bomLineID string) ([]entity.BOMLineHistory, error) {
	var entries []entity.BOMLineHistory
	err := r.db.WithContext(ctx).
		Where("bom_line_id = ?", bomLineID).
		Order("created_at").
		Find(&entries).Error
	return entries, err
}

// SaveStageTx 在事务内持久化阶段写入：更新BOM行、追加历史、
// 并把新的当前用量传播到所有未锁定用量方案的引用行
func (r *BOMLineRepository) SaveStageTx(ctx context.Context, line *entity.BOMLine, h *entity.BOMLineHistory, propagate *decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(line).Error; err != nil {
			return err
		}
		if err := tx.Create(h).Error; err != nil {
			return err
		}
		if propagate != nil {
			unlocked := tx.Model(&entity.UsageScenario{}).Select("id").Where("locked_at IS NULL")
			if err := tx.Model(&entity.UsageLine{}).
				Where("bom_line_id = ? AND scenario_id IN (?)", line.ID, unlocked).
				Update("consumption", *propagate).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadinessCounts 款式BOM就绪统计：总行数 / 已核实行数（confirmed或locked）
func (r *BOMLineRepository) ReadinessCounts(ctx context.Context, styleID string) (total, verified int64, err error) {
	if err = r.db.WithContext(ctx).
		Model(&entity.BOMLine{}).
		Where("style_id = ?", styleID).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = r.db.WithContext(ctx).
		Model(&entity.BOMLine{}).
		Where("style_id = ? AND maturity IN ?", styleID, []entity.Maturity{entity.MaturityConfirmed, entity.MaturityLocked}).
		Count(&verified).Error; err != nil {
		return 0, 0, err
	}
	return total, verified, nil
}
