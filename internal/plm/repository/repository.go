package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// 错误定义
var (
	ErrNotFound = errors.New("record not found")
)

// 版本号分配的重试上限。范围内还没有任何版本行时 FOR UPDATE 无行可锁，
// 并发首创会撞上唯一索引，撞上即重试重新分配
const versionAllocAttempts = 10

// isUniqueViolation Postgres 唯一约束冲突（SQLSTATE 23505）
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Repositories 仓库集合
type Repositories struct {
	User    *UserRepository
	Style   *StyleRepository
	BOMLine *BOMLineRepository
	Usage   *UsageScenarioRepository
	Costing *CostingRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Style:   NewStyleRepository(db),
		BOMLine: NewBOMLineRepository(db),
		Usage:   NewUsageScenarioRepository(db),
		Costing: NewCostingRepository(db),
	}
}
