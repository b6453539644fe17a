package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UsageScenarioRepository struct {
	db *gorm.DB
}

func NewUsageScenarioRepository(db *gorm.DB) *UsageScenarioRepository {
	return &UsageScenarioRepository{db: db}
}

// CreateWithLines 创建用量方案及其行，版本号在同一事务内分配：
// 对 (revision_id, purpose) 范围内的现有版本行加排他锁 → 读最大版本 → 插入。
// 锁必须覆盖 读-写 整个窗口，否则并发创建会算出相同的"下一版本号"。
// 范围为空时无行可锁，并发首创靠唯一索引兜底：冲突即重试。
// 事务失败整体回滚，版本号不会被烧掉，序列无空洞。
func (r *UsageScenarioRepository) CreateWithLines(ctx context.Context, scenario *entity.UsageScenario, lines []entity.UsageLine) error {
	var err error
	for attempt := 0; attempt < versionAllocAttempts; attempt++ {
		err = r.createWithLinesOnce(ctx, scenario, lines)
		if err == nil || !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (r *UsageScenarioRepository) createWithLinesOnce(ctx context.Context, scenario *entity.UsageScenario, lines []entity.UsageLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Postgres 不允许 FOR UPDATE 配合聚合，先锁行再在内存取最大
		var versions []int
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Model(&entity.UsageScenario{}).
			Where("revision_id = ? AND purpose = ?", scenario.RevisionID, scenario.Purpose).
			Pluck("version_no", &versions).Error; err != nil {
			return err
		}
		max := 0
		for _, v := range versions {
			if v > max {
				max = v
			}
		}
		scenario.VersionNo = max + 1

		if err := tx.Create(scenario).Error; err != nil {
			return err
		}
		if len(lines) > 0 {
			for i := range lines {
				lines[i].ScenarioID = scenario.ID
			}
			if err := tx.Create(&lines).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByID 根据ID查找用量方案（含行，按排序）
func (r *UsageScenarioRepository) FindByID(ctx context.Context, id string) (*entity.UsageScenario, error) {
	var scenario entity.UsageScenario
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order, created_at")
		}).
		First(&scenario, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &scenario, nil
}

// ListByRevision 版次下的用量方案列表
func (r *UsageScenarioRepository) ListByRevision(ctx context.Context, revisionID, purpose string) ([]entity.UsageScenario, error) {
	var scenarios []entity.UsageScenario
	query := r.db.WithContext(ctx).Where("revision_id = ?", revisionID)
	if purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	err := query.Order("purpose, version_no DESC").Find(&scenarios).Error
	return scenarios, err
}

// FindLineByID 根据ID查找用量行
func (r *UsageScenarioRepository) FindLineByID(ctx context.Context, id string) (*entity.UsageLine, error) {
	var line entity.UsageLine
	err := r.db.WithContext(ctx).First(&line, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &line, nil
}

// UpdateLine 更新用量行
func (r *UsageScenarioRepository) UpdateLine(ctx context.Context, line *entity.UsageLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

// LockIfUnlocked 条件更新实现首写胜出：只有 locked_at 仍为空才写入锁戳。
// 返回本次调用是否真正上了锁；已锁定时是幂等空操作。
func (r *UsageScenarioRepository) LockIfUnlocked(ctx context.Context, scenarioID, costingVersionID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.UsageScenario{}).
		Where("id = ? AND locked_at IS NULL", scenarioID).
		Updates(map[string]interface{}{
			"locked_at":                    time.Now(),
			"locked_by_costing_version_id": costingVersionID,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
