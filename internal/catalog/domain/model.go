package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ServiceType string

const (
	ServiceTypeElectricity ServiceType = "electricity"
	ServiceTypeWaterCold   ServiceType = "water_cold"
	ServiceTypeWaterHot    ServiceType = "water_hot"
	ServiceTypeHeating     ServiceType = "heating"
	ServiceTypeGas         ServiceType = "gas"
	ServiceTypeOther       ServiceType = "other"
)

// FieldKind is the value type an override key accepts.
type FieldKind string

const (
	FieldKindNumber FieldKind = "number"
	FieldKindString FieldKind = "string"
	FieldKindBool   FieldKind = "bool"
)

// OverrideSchema maps each configurable key to the kind of value it accepts.
type OverrideSchema map[string]FieldKind

type UtilityService struct {
	ID                  snowflake.ID                       `json:"id" gorm:"primaryKey"`
	OrgID               snowflake.ID                       `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_utility_services_org_code"`
	Code                string                             `json:"code" gorm:"type:varchar(64);not null;uniqueIndex:ux_utility_services_org_code"`
	Name                string                             `json:"name" gorm:"type:varchar(255);not null"`
	ServiceType         ServiceType                        `json:"service_type" gorm:"type:varchar(32);not null"`
	Unit                string                             `json:"unit" gorm:"type:varchar(16);not null"`
	ConfigurationSchema datatypes.JSONType[OverrideSchema] `json:"configuration_schema" gorm:"type:jsonb"`
	IsActive            bool                               `json:"is_active" gorm:"not null"`
	CreatedAt           time.Time                          `json:"created_at" gorm:"not null"`
}

func (UtilityService) TableName() string { return "utility_services" }

// ValidateOverrides checks overrides against the service's schema and returns
// one message per offending key, sorted by key.
func (s UtilityService) ValidateOverrides(overrides map[string]any) []string {
	if len(overrides) == 0 {
		return nil
	}
	schema := s.ConfigurationSchema.Data()

	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var problems []string
	for _, key := range keys {
		kind, ok := schema[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: not configurable for this service", key))
			continue
		}
		if !matchesKind(overrides[key], kind) {
			problems = append(problems, fmt.Sprintf("%s: expected %s", key, kind))
		}
	}
	return problems
}

func matchesKind(value any, kind FieldKind) bool {
	switch kind {
	case FieldKindNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return true
		}
		return false
	case FieldKindString:
		_, ok := value.(string)
		return ok
	case FieldKindBool:
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

// Provider supplies a utility and owns tariffs.
type Provider struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name        string       `json:"name" gorm:"type:varchar(255);not null"`
	ServiceType ServiceType  `json:"service_type" gorm:"type:varchar(32);not null"`
	IsActive    bool         `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (Provider) TableName() string { return "providers" }
