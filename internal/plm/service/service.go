package service

import (
	"context"

	"github.com/bitfantasy/atelier/internal/plm/entity"
	"github.com/bitfantasy/atelier/internal/plm/repository"
	"github.com/redis/go-redis/v9"
)

// Services 服务集合
type Services struct {
	User        *UserService
	Style       *StyleService
	Consumption *ConsumptionService
	Usage       *UsageService
	Costing     *CostingService
	Readiness   *ReadinessService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, rdb *redis.Client) *Services {
	readiness := NewReadinessService(repos.BOMLine)

	return &Services{
		User:        NewUserService(repos.User),
		Style:       NewStyleService(repos.Style, rdb),
		Consumption: NewConsumptionService(repos.BOMLine),
		Usage:       NewUsageService(repos.Usage, repos.BOMLine, repos.Style),
		Costing:     NewCostingService(repos.Costing, repos.Usage, repos.BOMLine, readiness),
		Readiness:   readiness,
	}
}

// UserService 用户目录：供选人与操作者回显
type UserService struct {
	repo *repository.UserRepository
}

func NewUserService(repo *repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// Get 根据ID读取用户
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.repo.FindByID(ctx, id)
}

// ListAll 全部用户
func (s *UserService) ListAll(ctx context.Context) ([]entity.User, error) {
	return s.repo.List(ctx)
}
