package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/shepherdcms/automation/internal/core/automation"
	"github.com/shepherdcms/automation/internal/modules/automation/models"
	"github.com/shepherdcms/automation/internal/modules/automation/repositories"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultLogLimit = 50
	maxLogLimit     = 100
)

// AutomationService is the engine's public surface: rule CRUD plus the
// execution orchestrator.
type AutomationService struct {
	repo          repositories.AutomationRepo
	registry      *automation.Registry
	actionTimeout time.Duration
}

// NewAutomationService creates the service. actionTimeout bounds each
// action handler invocation.
func NewAutomationService(repo repositories.AutomationRepo, registry *automation.Registry, actionTimeout time.Duration) *AutomationService {
	if actionTimeout <= 0 {
		actionTimeout = 10 * time.Second
	}
	return &AutomationService{
		repo:          repo,
		registry:      registry,
		actionTimeout: actionTimeout,
	}
}

// CreateRule validates and persists a new rule for the organization.
func (s *AutomationService) CreateRule(orgID, createdBy uuid.UUID, req automation.CreateRuleRequest) (*models.AutomationRule, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &automation.ValidationError{Field: "name", Message: "name is required"}
	}
	if !automation.ValidTriggerType(req.TriggerType) {
		return nil, &automation.ValidationError{Field: "trigger_type", Message: fmt.Sprintf("unknown trigger type %q", req.TriggerType)}
	}
	if !automation.ValidActionType(req.ActionType) {
		return nil, &automation.ValidationError{Field: "action_type", Message: fmt.Sprintf("unknown action type %q", req.ActionType)}
	}
	conditions, err := validateConditions(req.Conditions)
	if err != nil {
		return nil, err
	}

	triggerConfig, err := marshalConfig(req.TriggerConfig)
	if err != nil {
		return nil, &automation.ValidationError{Field: "trigger_config", Message: err.Error()}
	}
	actionConfig, err := marshalConfig(req.ActionConfig)
	if err != nil {
		return nil, &automation.ValidationError{Field: "action_config", Message: err.Error()}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	rule := &models.AutomationRule{
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		TriggerType:    req.TriggerType,
		TriggerConfig:  triggerConfig,
		ActionType:     req.ActionType,
		ActionConfig:   actionConfig,
		Conditions:     conditions,
		IsActive:       isActive,
		CreatedBy:      createdBy,
	}

	if err := s.repo.Create(rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	log.Info().
		Str("rule_id", rule.ID.String()).
		Str("name", rule.Name).
		Str("trigger_type", rule.TriggerType).
		Str("action_type", rule.ActionType).
		Msg("automation rule created")
	return rule, nil
}

// ListRules returns one page of the organization's rules plus the total
// count. Page is 1-based; limit is clamped to maxPageSize.
func (s *AutomationService) ListRules(orgID uuid.UUID, filter repositories.RuleFilter, page, limit int) ([]models.AutomationRule, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.FindByOrganization(orgID, filter, (page-1)*limit, limit)
}

// GetRule fetches a rule by id.
func (s *AutomationService) GetRule(id uuid.UUID) (*models.AutomationRule, error) {
	rule, err := s.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, automation.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// UpdateRule applies a partial update. Only supplied fields change, and
// each supplied field is validated the same way as on create.
func (s *AutomationService) UpdateRule(id uuid.UUID, req automation.UpdateRuleRequest) (*models.AutomationRule, error) {
	rule, err := s.GetRule(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, &automation.ValidationError{Field: "name", Message: "name cannot be empty"}
		}
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.TriggerType != nil {
		if !automation.ValidTriggerType(*req.TriggerType) {
			return nil, &automation.ValidationError{Field: "trigger_type", Message: fmt.Sprintf("unknown trigger type %q", *req.TriggerType)}
		}
		rule.TriggerType = *req.TriggerType
	}
	if req.TriggerConfig != nil {
		cfg, err := marshalConfig(req.TriggerConfig)
		if err != nil {
			return nil, &automation.ValidationError{Field: "trigger_config", Message: err.Error()}
		}
		rule.TriggerConfig = cfg
	}
	if req.ActionType != nil {
		if !automation.ValidActionType(*req.ActionType) {
			return nil, &automation.ValidationError{Field: "action_type", Message: fmt.Sprintf("unknown action type %q", *req.ActionType)}
		}
		rule.ActionType = *req.ActionType
	}
	if req.ActionConfig != nil {
		cfg, err := marshalConfig(req.ActionConfig)
		if err != nil {
			return nil, &automation.ValidationError{Field: "action_config", Message: err.Error()}
		}
		rule.ActionConfig = cfg
	}
	if req.Conditions != nil {
		conditions, err := validateConditions(req.Conditions)
		if err != nil {
			return nil, err
		}
		rule.Conditions = conditions
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.repo.Update(rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	log.Info().Str("rule_id", rule.ID.String()).Msg("automation rule updated")
	return rule, nil
}

// DeleteRule removes a rule. Execution logs are retained as history.
// Deleting an unknown id reports NotFound so callers can detect stale
// references.
func (s *AutomationService) DeleteRule(id uuid.UUID) error {
	if err := s.repo.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return automation.ErrRuleNotFound
		}
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	log.Info().Str("rule_id", id.String()).Msg("automation rule deleted")
	return nil
}

// Execute runs one rule against trigger data and records exactly one
// execution log for every path past the activity gate.
//
// Errors returned directly (rule not found, rule inactive, handler not
// registered) mean the execution never became auditable and no log was
// written. From condition evaluation onward, faults are captured in the
// log's status instead: ERROR for an evaluation fault, SKIPPED when
// conditions are false, FAILED when the handler errs, SUCCESS otherwise.
func (s *AutomationService) Execute(ctx context.Context, ruleID uuid.UUID, triggerData map[string]interface{}) (*models.ExecutionLog, error) {
	start := time.Now()

	rule, err := s.GetRule(ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, fmt.Errorf("%w: %s", automation.ErrRuleInactive, rule.ID)
	}

	// Resolve the handler before evaluation starts so a missing
	// registration is reported to the caller instead of producing a
	// log that blames the rule's data.
	handler, err := s.registry.Get(rule.ActionType)
	if err != nil {
		return nil, err
	}

	if triggerData == nil {
		triggerData = map[string]interface{}{}
	}
	triggerDataJSON, err := json.Marshal(triggerData)
	if err != nil {
		return nil, &automation.ValidationError{Field: "trigger_data", Message: err.Error()}
	}

	execLog := &models.ExecutionLog{
		RuleID:      rule.ID,
		TriggeredAt: start,
		TriggerData: datatypes.JSON(triggerDataJSON),
	}

	s.runExecution(ctx, rule, handler, triggerData, execLog)
	execLog.DurationMs = time.Since(start).Milliseconds()

	if err := s.repo.CreateExecution(execLog); err != nil {
		return nil, fmt.Errorf("failed to record execution: %w", err)
	}

	log.Info().
		Str("rule_id", rule.ID.String()).
		Str("status", execLog.Status).
		Int64("duration_ms", execLog.DurationMs).
		Msg("automation rule executed")
	return execLog, nil
}

// runExecution fills in the log's condition result, status, action
// result, and error message. It never returns an error: every outcome
// past the activity gate is a log status.
func (s *AutomationService) runExecution(ctx context.Context, rule *models.AutomationRule, handler automation.Handler, triggerData map[string]interface{}, execLog *models.ExecutionLog) {
	tree, err := automation.ParseConditions(rule.Conditions)
	if err != nil {
		// Create-time validation makes this unreachable short of
		// stored-data corruption.
		execLog.Status = automation.StatusError
		execLog.ErrorMessage = fmt.Sprintf("condition parse: %v", err)
		return
	}

	if tree != nil {
		passed, err := automation.Evaluate(tree, triggerData)
		if err != nil {
			execLog.Status = automation.StatusError
			execLog.ErrorMessage = fmt.Sprintf("condition evaluation: %v", err)
			return
		}
		execLog.ConditionResult = &passed
		if !passed {
			execLog.Status = automation.StatusSkipped
			return
		}
	}

	var actionConfig map[string]interface{}
	if len(rule.ActionConfig) > 0 {
		if err := json.Unmarshal(rule.ActionConfig, &actionConfig); err != nil {
			execLog.Status = automation.StatusError
			execLog.ErrorMessage = fmt.Sprintf("action config parse: %v", err)
			return
		}
	}

	// Detach from the caller's cancellation: an abandoned request must
	// not drop the side effect between dispatch and the audit row. The
	// handler is still bounded by the action timeout.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.actionTimeout)
	defer cancel()

	summary, err := handler.Execute(dispatchCtx, actionConfig, triggerData)
	if err != nil {
		execLog.Status = automation.StatusFailed
		execLog.ErrorMessage = err.Error()
		return
	}

	execLog.Status = automation.StatusSuccess
	if summary != nil {
		if summaryJSON, err := json.Marshal(summary); err == nil {
			execLog.ActionResult = datatypes.JSON(summaryJSON)
		}
	}
}

// ListLogs returns execution logs, newest first, optionally scoped to
// one rule. Limit is clamped to maxLogLimit.
func (s *AutomationService) ListLogs(ruleID *uuid.UUID, limit int) ([]models.ExecutionLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	return s.repo.FindExecutions(ruleID, limit)
}

// validateConditions parses the submitted tree and returns the stored
// form. An explicit null clears the conditions.
func validateConditions(raw json.RawMessage) (datatypes.JSON, error) {
	tree, err := automation.ParseConditions(raw)
	if err != nil {
		return nil, &automation.ValidationError{Field: "conditions", Message: err.Error()}
	}
	if tree == nil {
		return nil, nil
	}
	return datatypes.JSON(raw), nil
}

func marshalConfig(config map[string]interface{}) (datatypes.JSON, error) {
	if config == nil {
		return datatypes.JSON([]byte("{}")), nil
	}
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %v", err)
	}
	return datatypes.JSON(data), nil
}
