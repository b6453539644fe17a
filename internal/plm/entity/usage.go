package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// 用量方案用途
const (
	PurposeSampleQuote = "sample_quote"
	PurposeBulkQuote   = "bulk_quote"
)

// ValidPurpose 是否为已定义用途
func ValidPurpose(p string) bool {
	return p == PurposeSampleQuote || p == PurposeBulkQuote
}

// 用量行状态
const (
	UsageLineEstimated = "estimated"
	UsageLineConfirmed = "confirmed"
)

// UsageScenario 用量方案：某一时刻对台账用量的版本化快照
// (revision_id, purpose) 内版本号单调递增；被成本版本首次提交后锁定
type UsageScenario struct {
	ID                       string           `json:"id" gorm:"primaryKey;size:32"`
	RevisionID               string           `json:"revision_id" gorm:"size:32;not null;uniqueIndex:uk_usage_scenario_version,priority:1"`
	StyleID                  string           `json:"style_id" gorm:"size:32;not null;index"`
	Purpose                  string           `json:"purpose" gorm:"size:32;not null;uniqueIndex:uk_usage_scenario_version,priority:2"`
	VersionNo                int              `json:"version_no" gorm:"not null;uniqueIndex:uk_usage_scenario_version,priority:3"`
	WastagePct               decimal.Decimal  `json:"wastage_pct" gorm:"type:numeric(6,2);not null;default:0"`
	RoundingRule             string           `json:"rounding_rule,omitempty" gorm:"size:32"`
	Notes                    string           `json:"notes,omitempty" gorm:"type:text"`
	LockedAt                 *time.Time       `json:"locked_at,omitempty"`
	LockedByCostingVersionID *string          `json:"locked_by_costing_version_id,omitempty" gorm:"size:32"`
	ClonedFromID             *string          `json:"cloned_from_id,omitempty" gorm:"size:32"`
	CreatedBy                string           `json:"created_by" gorm:"size:32;not null"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`

	// Relations
	Revision *StyleRevision `json:"revision,omitempty" gorm:"foreignKey:RevisionID"`
	Lines    []UsageLine    `json:"lines,omitempty" gorm:"foreignKey:ScenarioID"`
}

func (UsageScenario) TableName() string {
	return "usage_scenarios"
}

// IsLocked 锁定后任何行都不可再修改
func (s *UsageScenario) IsLocked() bool {
	return s.LockedAt != nil
}

// Status 派生状态
func (s *UsageScenario) Status() string {
	if s.IsLocked() {
		return "locked"
	}
	return "draft"
}

// UsageLine 用量方案行：对单个BOM行用量的快照
type UsageLine struct {
	ID              string           `json:"id" gorm:"primaryKey;size:32"`
	ScenarioID      string           `json:"scenario_id" gorm:"size:32;not null;index"`
	BOMLineID       string           `json:"bom_line_id" gorm:"size:32;not null;index"`
	MaterialName    string           `json:"material_name" gorm:"size:128;not null"`
	Category        string           `json:"category,omitempty" gorm:"size:32"`
	Unit            string           `json:"unit" gorm:"size:16;not null"`
	Consumption     decimal.Decimal  `json:"consumption" gorm:"type:numeric(15,4);not null;default:0"`
	Status          string           `json:"status" gorm:"size:16;not null;default:estimated"` // estimated/confirmed
	WastageOverride *decimal.Decimal `json:"wastage_override,omitempty" gorm:"type:numeric(6,2)"`
	SortOrder       int              `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`

	// Relations
	Scenario *UsageScenario `json:"scenario,omitempty" gorm:"foreignKey:ScenarioID"`
	BOMLine  *BOMLine       `json:"bom_line,omitempty" gorm:"foreignKey:BOMLineID"`
}

func (UsageLine) TableName() string {
	return "usage_lines"
}

// AdjustedConsumption 损耗加成后的用量：consumption × (1 + 损耗%/100)
// 行级覆盖优先于方案级损耗
func (l *UsageLine) AdjustedConsumption(scenarioWastagePct decimal.Decimal) decimal.Decimal {
	pct := scenarioWastagePct
	if l.WastageOverride != nil {
		pct = *l.WastageOverride
	}
	factor := decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100)))
	return l.Consumption.Mul(factor).Round(4)
}
