package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StyleRepository struct {
	db *gorm.DB
}

func NewStyleRepository(db *gorm.DB) *StyleRepository {
	return &StyleRepository{db: db}
}

func (r *StyleRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建款式
func (r *StyleRepository) Create(ctx context.Context, style *entity.Style) error {
	return r.db.WithContext(ctx).Create(style).Error
}

// FindByID 根据ID查找款式
func (r *StyleRepository) FindByID(ctx context.Context, id string) (*entity.Style, error) {
	var style entity.Style
	err := r.db.WithContext(ctx).
		Preload("Revisions").
		First(&style, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &style, nil
}

// List 款式列表
func (r *StyleRepository) List(ctx context.Context, season, category, status string, page, pageSize int) ([]entity.Style, int64, error) {
	var styles []entity.Style
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Style{})
	if season != "" {
		query = query.Where("season = ?", season)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&styles).Error
	return styles, total, err
}

// Update 更新款式
func (r *StyleRepository) Update(ctx context.Context, style *entity.Style) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(style).Error
}

// CreateRevision 创建款式版次（同款式下版次号顺序分配）
func (r *StyleRepository) CreateRevision(ctx context.Context, rev *entity.StyleRevision) error {
	return r.db.WithContext(ctx).Create(rev).Error
}

// FindRevisionByID 根据ID查找版次
func (r *StyleRepository) FindRevisionByID(ctx context.Context, id string) (*entity.StyleRevision, error) {
	var rev entity.StyleRevision
	err := r.db.WithContext(ctx).First(&rev, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rev, nil
}

// MaxRevisionNo 款式下当前最大版次号
func (r *StyleRepository) MaxRevisionNo(ctx context.Context, styleID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&entity.StyleRevision{}).
		Where("style_id = ?", styleID).
		Select("COALESCE(MAX(revision_no), 0)").
		Scan(&max).Error
	return max, err
}
