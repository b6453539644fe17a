package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Maturity BOM行用量的成熟度阶段
type Maturity string

const (
	MaturityUnknown     Maturity = "unknown"
	MaturityPreEstimate Maturity = "pre_estimate"
	MaturitySample      Maturity = "sample"
	MaturityConfirmed   Maturity = "confirmed"
	MaturityLocked      Maturity = "locked" // 终态，不可再变更
)

// maturityRank 阶段序，只允许前进不允许回退
var maturityRank = map[Maturity]int{
	MaturityUnknown:     0,
	MaturityPreEstimate: 1,
	MaturitySample:      2,
	MaturityConfirmed:   3,
	MaturityLocked:      4,
}

// IsValid 是否为已定义阶段
func (m Maturity) IsValid() bool {
	_, ok := maturityRank[m]
	return ok
}

// Rank 阶段序号
func (m Maturity) Rank() int {
	return maturityRank[m]
}

// WritableStages setStage 可写的阶段（locked 只能通过 Lock 进入）
var WritableStages = []Maturity{MaturityPreEstimate, MaturitySample, MaturityConfirmed}

// BOMLine 模板BOM行（款式版次下的单个物料）
type BOMLine struct {
	ID           string           `json:"id" gorm:"primaryKey;size:32"`
	RevisionID   string           `json:"revision_id" gorm:"size:32;not null;index"`
	StyleID      string           `json:"style_id" gorm:"size:32;not null;index"`
	Category     string           `json:"category,omitempty" gorm:"size:32"` // fabric/trim/packing
	MaterialName string           `json:"material_name" gorm:"size:128;not null"`
	Unit         string           `json:"unit" gorm:"size:16;not null;default:m"`
	WastagePct   decimal.Decimal  `json:"wastage_pct" gorm:"type:numeric(6,2);not null;default:0"`
	UnitPrice    *decimal.Decimal `json:"unit_price,omitempty" gorm:"type:numeric(15,4)"`
	SortOrder    int              `json:"sort_order" gorm:"not null;default:0"`

	// 四阶段用量字段，互斥叠加：每写一个阶段成熟度前进一档
	RawConsumption *decimal.Decimal `json:"raw_consumption,omitempty" gorm:"type:numeric(15,4)"` // 旧字段，兜底用
	PreEstimate    *decimal.Decimal `json:"pre_estimate,omitempty" gorm:"type:numeric(15,4)"`
	Sample         *decimal.Decimal `json:"sample,omitempty" gorm:"type:numeric(15,4)"`
	Confirmed      *decimal.Decimal `json:"confirmed,omitempty" gorm:"type:numeric(15,4)"`
	Locked         *decimal.Decimal `json:"locked,omitempty" gorm:"type:numeric(15,4)"`

	Maturity  Maturity  `json:"maturity" gorm:"size:16;not null;default:unknown"`
	CreatedBy string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Revision *StyleRevision   `json:"revision,omitempty" gorm:"foreignKey:RevisionID"`
	History  []BOMLineHistory `json:"history,omitempty" gorm:"foreignKey:BOMLineID"`
}

func (BOMLine) TableName() string {
	return "bom_lines"
}

// CurrentConsumption 按 locked > confirmed > sample > pre_estimate > raw 取当前用量
func (l *BOMLine) CurrentConsumption() *decimal.Decimal {
	for _, v := range []*decimal.Decimal{l.Locked, l.Confirmed, l.Sample, l.PreEstimate, l.RawConsumption} {
		if v != nil {
			return v
		}
	}
	return nil
}

// StageValue 读取指定阶段的值
func (l *BOMLine) StageValue(stage Maturity) *decimal.Decimal {
	switch stage {
	case MaturityPreEstimate:
		return l.PreEstimate
	case MaturitySample:
		return l.Sample
	case MaturityConfirmed:
		return l.Confirmed
	case MaturityLocked:
		return l.Locked
	}
	return nil
}

// BOMLineHistory BOM行用量变更历史（只追加）
type BOMLineHistory struct {
	ID        string           `json:"id" gorm:"primaryKey;size:32"`
	BOMLineID string           `json:"bom_line_id" gorm:"size:32;not null;index"`
	Action    string           `json:"action" gorm:"size:32;not null"` // set_pre_estimate/set_sample/set_confirmed/lock/set_price
	Stage     Maturity         `json:"stage,omitempty" gorm:"size:16"`
	OldValue  *decimal.Decimal `json:"old_value,omitempty" gorm:"type:numeric(15,4)"`
	NewValue  *decimal.Decimal `json:"new_value,omitempty" gorm:"type:numeric(15,4)"`
	Actor     string           `json:"actor" gorm:"size:32;not null"`
	CreatedAt time.Time        `json:"created_at"`
}

func (BOMLineHistory) TableName() string {
	return "bom_line_histories"
}
