package entity

import "time"

// Style 款式（成本版本的归属组）
type Style struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:64;not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Season    string    `json:"season,omitempty" gorm:"size:32"` // SS26/AW26
	Category  string    `json:"category,omitempty" gorm:"size:32"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"` // active/archived
	CreatedBy string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Revisions []StyleRevision `json:"revisions,omitempty" gorm:"foreignKey:StyleID"`
	Creator   *User           `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
}

func (Style) TableName() string {
	return "styles"
}

// StyleRevision 款式版次（模板BOM与用量方案的挂载点）
type StyleRevision struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	StyleID    string    `json:"style_id" gorm:"size:32;not null;index"`
	RevisionNo int       `json:"revision_no" gorm:"not null"`
	Status     string    `json:"status" gorm:"size:16;not null;default:active"`
	Notes      string    `json:"notes,omitempty" gorm:"type:text"`
	CreatedBy  string    `json:"created_by" gorm:"size:32;not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relations
	Style    *Style    `json:"style,omitempty" gorm:"foreignKey:StyleID"`
	BOMLines []BOMLine `json:"bom_lines,omitempty" gorm:"foreignKey:RevisionID"`
}

func (StyleRevision) TableName() string {
	return "style_revisions"
}
