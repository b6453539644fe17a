package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CostingRepository struct {
	db *gorm.DB
}

func NewCostingRepository(db *gorm.DB) *CostingRepository {
	return &CostingRepository{db: db}
}

func (r *CostingRepository) DB() *gorm.DB {
	return r.db
}

// CreateWithLines 创建成本版本及其行，(style_id, costing_type) 内版本号
// 在同一事务内加锁分配，窗口覆盖 读最大-插入 全程（同用量方案的版本分配），
// 空范围的并发首创同样由唯一索引兜底、冲突重试
func (r *CostingRepository) CreateWithLines(ctx context.Context, version *entity.CostingVersion, lines []entity.CostLine) error {
	var err error
	for attempt := 0; attempt < versionAllocAttempts; attempt++ {
		err = r.createWithLinesOnce(ctx, version, lines)
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (r *CostingRepository) createWithLinesOnce(ctx context.Context, version *entity.CostingVersion, lines []entity.CostLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var versions []int
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&entity.CostingVersion{}).
			Where("style_id = ? AND costing_type = ?", version.StyleID, version.CostingType).
			Pluck("version_no", &versions).Error; err != nil {
			return err
		}
		max := 0
		for _, v := range versions {
			if v > max {
				max = v
			}
		}
		version.VersionNo = max + 1

		if err := tx.Create(version).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			for i := range lines {
				lines[i].CostingVersionID = version.ID
			}
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID 根据ID查找成本版本（含行与用量方案）
func (r *CostingRepository) FindByID(ctx context.Context, id string) (*entity.CostingVersion, error) {
	var version entity.CostingVersion
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order, created_at")
		}).
		Preload("UsageScenario").
		First(&version, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &version, nil
}

// ListByStyle 款式下的成本版本列表
func (r *CostingRepository) ListByStyle(ctx context.Context, styleID, costingType string, status entity.CostingStatus) ([]entity.CostingVersion, error) {
	var versions []entity.CostingVersion
	query := r.db.WithContext(ctx).Where("style_id = ?", styleID)
	if costingType != "" {
		query = query.Where("costing_type = ?", costingType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("costing_type, version_no DESC").Find(&versions).Error
	return versions, err
}

// Update 更新成本版本头
func (r *CostingRepository) Update(ctx context.Context, version *entity.CostingVersion) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(version).Error
}

// FindLineByID 根据ID查找成本行
func (r *CostingRepository) FindLineByID(ctx context.Context, id string) (*entity.CostLine, error) {
	var line entity.CostLine
	err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// UpdateLine 更新成本行
func (r *CostingRepository) UpdateLine(ctx context.Context, line *entity.CostLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// SaveLineAndTotalsTx 行变更与表头汇总重算在同一事务内落库
func (r *CostingRepository) SaveLineAndTotalsTx(ctx context.Context, line *entity.CostLine, version *entity.CostingVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(line).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(version).Error
	})
}

// SaveLinesAndTotalsTx 刷新快照：多行与表头的重算整体提交或整体回滚
func (r *CostingRepository) SaveLinesAndTotalsTx(ctx context.Context, lines []entity.CostLine, version *entity.CostingVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range lines {
			if err := tx.Save(&lines[i]).Error; err != nil {
				return err
			}
		}
		return tx.Omit(clause.Associations).Save(version).Error
	})
}
