package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service records administrative change logs. Failures are logged and
// swallowed: an audit hiccup must not fail the mutation it describes.
type Service struct {
	db *gorm.DB
}

// NewService creates a new audit service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// LogChange records a mutation of an entity by an actor.
func (s *Service) LogChange(ctx context.Context, userID, orgID uuid.UUID, action, entity, entityID string, newValue interface{}) {
	entry := &ChangeLog{
		UserID:         userID,
		OrganizationID: orgID,
		Action:         action,
		Entity:         entity,
		EntityID:       entityID,
	}
	if newValue != nil {
		if data, err := json.Marshal(newValue); err == nil {
			entry.NewValue = datatypes.JSON(data)
		}
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		log.Warn().Err(err).
			Str("entity", entity).
			Str("entity_id", entityID).
			Msg("failed to write change log")
	}
}
