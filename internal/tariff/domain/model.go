package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tariff is one version of a provider's pricing. Versions of the same
// lineage share ProviderID and Code and hold non-overlapping windows.
type Tariff struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrgID         snowflake.ID  `json:"organization_id" gorm:"column:org_id;not null;index:ix_tariffs_lineage,priority:1"`
	ProviderID    snowflake.ID  `json:"provider_id" gorm:"column:provider_id;not null;index:ix_tariffs_lineage,priority:2"`
	Code          string        `json:"code" gorm:"type:varchar(128);not null;index:ix_tariffs_lineage,priority:3"`
	Name          string        `json:"name" gorm:"type:varchar(255);not null"`
	Description   string        `json:"description,omitempty" gorm:"type:text"`
	Configuration Configuration `json:"configuration" gorm:"type:jsonb;not null"`
	ActiveFrom    time.Time     `json:"active_from" gorm:"not null"`
	ActiveUntil   *time.Time    `json:"active_until,omitempty"`
	CreatedBy     string        `json:"created_by,omitempty" gorm:"type:varchar(255)"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`
}

func (Tariff) TableName() string { return "tariffs" }

// ActiveOn reports whether the inclusive window of t contains date.
func (t Tariff) ActiveOn(date time.Time) bool {
	if date.Before(t.ActiveFrom) {
		return false
	}
	return t.ActiveUntil == nil || !date.After(*t.ActiveUntil)
}
