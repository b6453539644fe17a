package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 成本核算类型
const (
	CostingTypeSample = "sample"
	CostingTypeBulk   = "bulk"
)

// ValidCostingType 是否为已定义核算类型
func ValidCostingType(t string) bool {
	return t == CostingTypeSample || t == CostingTypeBulk
}

// CostingStatus 成本版本状态
type CostingStatus string

const (
	CostingDraft     CostingStatus = "draft"
	CostingSubmitted CostingStatus = "submitted"
	CostingAccepted  CostingStatus = "accepted"
	CostingRejected  CostingStatus = "rejected"
)

// IsTerminal accepted/rejected 之后没有任何转移
func (s CostingStatus) IsTerminal() bool {
	return s == CostingAccepted || s == CostingRejected
}

// CostingVersion 成本版本：基于某个用量方案的计价快照
// (style_id, costing_type) 内版本号单调递增
type CostingVersion struct {
	ID              string          `json:"id" gorm:"primaryKey;size:32"`
	StyleID         string          `json:"style_id" gorm:"size:32;not null;uniqueIndex:uk_costing_version,priority:1"`
	CostingType     string          `json:"costing_type" gorm:"size:16;not null;uniqueIndex:uk_costing_version,priority:2"`
	VersionNo       int             `json:"version_no" gorm:"not null;uniqueIndex:uk_costing_version,priority:3"`
	UsageScenarioID string          `json:"usage_scenario_id" gorm:"size:32;not null;index"`
	RevisionID      string          `json:"revision_id" gorm:"size:32;not null"` // 证据绑定，创建后不变

	// 成本输入（A类字段：草稿期可直接改）
	LaborCost    decimal.Decimal `json:"labor_cost" gorm:"type:numeric(15,4);not null;default:0"`
	OverheadCost decimal.Decimal `json:"overhead_cost" gorm:"type:numeric(15,4);not null;default:0"`
	FreightCost  decimal.Decimal `json:"freight_cost" gorm:"type:numeric(15,4);not null;default:0"`
	PackingCost  decimal.Decimal `json:"packing_cost" gorm:"type:numeric(15,4);not null;default:0"`
	Notes        string          `json:"notes,omitempty" gorm:"type:text"`

	// B类字段：修改必须走 clone 出新版本
	MarginPct  decimal.Decimal `json:"margin_pct" gorm:"type:numeric(6,2);not null;default:0"`
	WastagePct decimal.Decimal `json:"wastage_pct" gorm:"type:numeric(6,2);not null;default:0"` // 来自用量方案，随版本固化

	Currency     string          `json:"currency" gorm:"size:8;not null;default:USD"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" gorm:"type:numeric(12,6);not null;default:1"`

	// 计算聚合，随行/输入变动重算，永不手改
	MaterialCost decimal.Decimal `json:"material_cost" gorm:"type:numeric(15,4);not null;default:0"`
	TotalCost    decimal.Decimal `json:"total_cost" gorm:"type:numeric(15,4);not null;default:0"`
	UnitPrice    decimal.Decimal `json:"unit_price" gorm:"type:numeric(15,4);not null;default:0"`

	Status       CostingStatus `json:"status" gorm:"size:16;not null;default:draft"`
	SubmittedBy  *string       `json:"submitted_by,omitempty" gorm:"size:32"`
	SubmittedAt  *time.Time    `json:"submitted_at,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty" gorm:"type:text"`
	CloneOfID    *string       `json:"clone_of_id,omitempty" gorm:"size:32"`
	ChangeReason string        `json:"change_reason,omitempty" gorm:"type:text"`
	CreatedBy    string        `json:"created_by" gorm:"size:32;not null"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`

	// Relations
	Style         *Style          `json:"style,omitempty" gorm:"foreignKey:StyleID"`
	UsageScenario *UsageScenario  `json:"usage_scenario,omitempty" gorm:"foreignKey:UsageScenarioID"`
	CloneOf       *CostingVersion `json:"clone_of,omitempty" gorm:"foreignKey:CloneOfID"`
	Lines         []CostLine      `json:"lines,omitempty" gorm:"foreignKey:CostingVersionID"`
}

func (CostingVersion) TableName() string {
	return "costing_versions"
}

// CostLine 成本行：快照字段建行即定，调整字段只在草稿期可改
type CostLine struct {
	ID               string `json:"id" gorm:"primaryKey;size:32"`
	CostingVersionID string `json:"costing_version_id" gorm:"size:32;not null;index"`
	BOMLineID        string `json:"bom_line_id" gorm:"size:32;not null;index"`

	// 不可变快照（证据）
	MaterialName        string          `json:"material_name" gorm:"size:128;not null"`
	Category            string          `json:"category,omitempty" gorm:"size:32"`
	Unit                string          `json:"unit" gorm:"size:16;not null"`
	ConsumptionSnapshot decimal.Decimal `json:"consumption_snapshot" gorm:"type:numeric(15,4);not null"`
	UnitPriceSnapshot   decimal.Decimal `json:"unit_price_snapshot" gorm:"type:numeric(15,4);not null"`

	// 可调整副本 + 脏标记
	ConsumptionAdjusted   decimal.Decimal `json:"consumption_adjusted" gorm:"type:numeric(15,4);not null"`
	UnitPriceAdjusted     decimal.Decimal `json:"unit_price_adjusted" gorm:"type:numeric(15,4);not null"`
	IsConsumptionAdjusted bool            `json:"is_consumption_adjusted" gorm:"not null;default:false"`
	IsPriceAdjusted       bool            `json:"is_price_adjusted" gorm:"not null;default:false"`
	AdjustmentReason      string          `json:"adjustment_reason,omitempty" gorm:"type:text"`

	LineCost  decimal.Decimal `json:"line_cost" gorm:"type:numeric(15,4);not null;default:0"`
	SortOrder int             `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (CostLine) TableName() string {
	return "cost_lines"
}

// ComputeLineCost lineCost = consumptionAdjusted × unitPriceAdjusted，4位小数四舍五入
// 损耗已在用量方案层计入 adjustedConsumption，此处不再乘损耗
func (l *CostLine) ComputeLineCost() decimal.Decimal {
	return l.ConsumptionAdjusted.Mul(l.UnitPriceAdjusted).Round(4)
}
