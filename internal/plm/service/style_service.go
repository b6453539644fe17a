package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const styleCacheTTL = 5 * time.Minute

// StyleService 款式与版次管理
type StyleService struct {
	styleRepo *repository.StyleRepository
	rdb       *redis.Client
}

func NewStyleService(styleRepo *repository.StyleRepository, rdb *redis.Client) *StyleService {
	return &StyleService{styleRepo: styleRepo, rdb: rdb}
}

// Create 创建款式并带出首个版次
func (s *StyleService) Create(ctx context.Context, input *CreateStyleInput, createdBy string) (*entity.Style, error) {
	if input.Code == "" {
		return nil, &ValidationError{Field: "code", Message: "must not be empty"}
	}
	if input.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}

	style := &entity.Style{
		ID:        uuid.New().String()[:32],
		Code:      input.Code,
		Name:      input.Name,
		Season:    input.Season,
		Category:  input.Category,
		Status:    "active",
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.styleRepo.Create(ctx, style); err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}

	revision := &entity.StyleRevision{
		ID:         uuid.New().String()[:32],
		StyleID:    style.ID,
		RevisionNo: 1,
		Notes:      "initial revision",
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	}
	if err := s.styleRepo.CreateRevision(ctx, revision); err != nil {
		return nil, fmt.Errorf("create initial revision: %w", err)
	}
	style.Revisions = []entity.StyleRevision{*revision}

	return style, nil
}

// Get 读取款式，优先走Redis缓存
func (s *StyleService) Get(ctx context.Context, id string) (*entity.Style, error) {
	cacheKey := "style:" + id
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var style entity.Style
			if err := json.Unmarshal([]byte(cached), &style); err == nil {
				return &style, nil
			}
		}
	}

	style, err := s.styleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(style); err == nil {
			s.rdb.Set(ctx, cacheKey, data, styleCacheTTL)
		}
	}

	return style, nil
}

// List 款式分页列表
func (s *StyleService) List(ctx context.Context, season, category, status string, page, pageSize int) ([]entity.Style, int64, error) {
	return s.styleRepo.List(ctx, season, category, status, page, pageSize)
}

// Update 更新款式基础信息并使缓存失效
func (s *StyleService) Update(ctx context.Context, id string, patch *StylePatch) (*entity.Style, error) {
	style, err := s.styleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		style.Name = *patch.Name
	}
	if patch.Season != nil {
		style.Season = *patch.Season
	}
	if patch.Category != nil {
		style.Category = *patch.Category
	}
	if patch.Status != nil {
		style.Status = *patch.Status
	}
	style.UpdatedAt = time.Now()

	if err := s.styleRepo.Update(ctx, style); err != nil {
		return nil, fmt.Errorf("update style: %w", err)
	}

	s.invalidate(ctx, id)

	return style, nil
}

// CreateRevision 新开版次，版次号单调递增
func (s *StyleService) CreateRevision(ctx context.Context, styleID, notes, createdBy string) (*entity.StyleRevision, error) {
	if _, err := s.styleRepo.FindByID(ctx, styleID); err != nil {
		return nil, err
	}

	maxNo, err := s.styleRepo.MaxRevisionNo(ctx, styleID)
	if err != nil {
		return nil, fmt.Errorf("query revision no: %w", err)
	}

	revision := &entity.StyleRevision{
		ID:         uuid.New().String()[:32],
		StyleID:    styleID,
		RevisionNo: maxNo + 1,
		Notes:      notes,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	}
	if err := s.styleRepo.CreateRevision(ctx, revision); err != nil {
		return nil, fmt.Errorf("create revision: %w", err)
	}

	s.invalidate(ctx, styleID)

	return revision, nil
}

func (s *StyleService) invalidate(ctx context.Context, styleID string) {
	if s.rdb != nil {
		s.rdb.Del(ctx, "style:"+styleID)
	}
}

// GetRevision 读取版次
func (s *StyleService) GetRevision(ctx context.Context, id string) (*entity.StyleRevision, error) {
	return s.styleRepo.FindRevisionByID(ctx, id)
}

// ---- Input DTOs ----

type CreateStyleInput struct {
	Code     string `json:"code" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Season   string `json:"season"`
	Category string `json:"category"`
}

type StylePatch struct {
	Name     *string `json:"name"`
	Season   *string `json:"season"`
	Category *string `json:"category"`
	Status   *string `json:"status"`
}
