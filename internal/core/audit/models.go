package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChangeLog records one administrative mutation (who changed what).
// Distinct from the automation engine's execution logs, which audit
// rule runs rather than rule edits.
type ChangeLog struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID         uuid.UUID      `json:"user_id" gorm:"type:uuid;index"`
	OrganizationID uuid.UUID      `json:"organization_id" gorm:"type:uuid;index"`
	Action         string         `json:"action" gorm:"type:varchar(20);not null;index"` // create, update, delete
	Entity         string         `json:"entity" gorm:"type:varchar(50);not null;index"`
	EntityID       string         `json:"entity_id" gorm:"type:text;index"`
	NewValue       datatypes.JSON `json:"new_value,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime;index"`
}

func (ChangeLog) TableName() string {
	return "change_logs"
}
