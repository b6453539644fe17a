package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/atelier/internal/plm/repository"
)

// SubmitGateThreshold 成本提交的BOM就绪率门槛
const SubmitGateThreshold = 0.9

// ReadinessService BOM就绪度口径：已核实行（confirmed/locked）占比
type ReadinessService struct {
	bomRepo *repository.BOMLineRepository
}

func NewReadinessService(bomRepo *repository.BOMLineRepository) *ReadinessService {
	return &ReadinessService{bomRepo: bomRepo}
}

type BomReadiness struct {
	Total     int64   `json:"total"`
	Verified  int64   `json:"verified"`
	Ratio     float64 `json:"ratio"`
	Threshold float64 `json:"threshold"`
	Ready     bool    `json:"ready"`
}

// BomReadiness 计算款式的BOM就绪率，空BOM按0处理
func (s *ReadinessService) BomReadiness(ctx context.Context, styleID string) (*BomReadiness, error) {
	total, verified, err := s.bomRepo.ReadinessCounts(ctx, styleID)
	if err != nil {
		return nil, fmt.Errorf("readiness counts: %w", err)
	}

	ratio := 0.0
	if total > 0 {
		ratio = float64(verified) / float64(total)
	}

	return &BomReadiness{
		Total:     total,
		Verified:  verified,
		Ratio:     ratio,
		Threshold: SubmitGateThreshold,
		Ready:     ratio >= SubmitGateThreshold,
	}, nil
}

// CheckSubmitGate 提交闸门，不达标返回带比率明细的错误
func (s *ReadinessService) CheckSubmitGate(ctx context.Context, styleID string) error {
	r, err := s.BomReadiness(ctx, styleID)
	if err != nil {
		return err
	}
	if !r.Ready {
		return &BomNotReadyError{
			Total:     r.Total,
			Verified:  r.Verified,
			Ratio:     r.Ratio,
			Threshold: r.Threshold,
		}
	}
	return nil
}
