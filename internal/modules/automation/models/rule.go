package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AutomationRule pairs a trigger type, an optional condition tree, and
// an action to perform for one organization.
type AutomationRule struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID uuid.UUID      `json:"organization_id" gorm:"type:uuid;not null;index"`
	Name           string         `json:"name" gorm:"type:varchar(255);not null"`
	Description    string         `json:"description" gorm:"type:text"`
	TriggerType    string         `json:"trigger_type" gorm:"type:varchar(50);not null;index"`
	TriggerConfig  datatypes.JSON `json:"trigger_config" gorm:"type:jsonb;not null;default:'{}'"`
	ActionType     string         `json:"action_type" gorm:"type:varchar(50);not null"`
	ActionConfig   datatypes.JSON `json:"action_config" gorm:"type:jsonb;not null;default:'{}'"`
	Conditions     datatypes.JSON `json:"conditions,omitempty" gorm:"type:jsonb"`
	IsActive       bool           `json:"is_active" gorm:"default:true;index"`
	CreatedBy      uuid.UUID      `json:"created_by" gorm:"type:uuid;not null"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index:,sort:desc"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AutomationRule) TableName() string {
	return "automation_rules"
}

// ExecutionLog is the immutable audit record of one Execute call. The
// rule reference is weak: logs survive rule deletion.
type ExecutionLog struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	RuleID          uuid.UUID      `json:"rule_id" gorm:"type:uuid;not null;index"`
	TriggeredAt     time.Time      `json:"triggered_at" gorm:"not null;index:,sort:desc"`
	TriggerData     datatypes.JSON `json:"trigger_data" gorm:"type:jsonb"`
	ConditionResult *bool          `json:"condition_result"` // nil when the rule had no conditions
	Status          string         `json:"status" gorm:"type:varchar(20);not null;index"`
	ActionResult    datatypes.JSON `json:"action_result,omitempty" gorm:"type:jsonb"`
	ErrorMessage    string         `json:"error_message,omitempty" gorm:"type:text"`
	DurationMs      int64          `json:"duration_ms"`
}

func (ExecutionLog) TableName() string {
	return "automation_execution_logs"
}
