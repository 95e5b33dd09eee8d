package automation

import "encoding/json"

// Trigger types are a fixed vocabulary. The engine never interprets
// them; they identify which external event source fires the rule.
const (
	TriggerMemberCreated = "MEMBER_CREATED"
	TriggerBirthday      = "BIRTHDAY"
	TriggerSchedule      = "SCHEDULE"
	TriggerManual        = "MANUAL"
	TriggerMessageSent   = "MESSAGE_SENT"
)

// Action types name the registered handler that executes the rule.
const (
	ActionSendMessage = "SEND_MESSAGE"
	ActionSendEmail   = "SEND_EMAIL"
	ActionWebhook     = "WEBHOOK"
	ActionTagMember   = "TAG_MEMBER"
)

var triggerTypes = map[string]bool{
	TriggerMemberCreated: true,
	TriggerBirthday:      true,
	TriggerSchedule:      true,
	TriggerManual:        true,
	TriggerMessageSent:   true,
}

var actionTypes = map[string]bool{
	ActionSendMessage: true,
	ActionSendEmail:   true,
	ActionWebhook:     true,
	ActionTagMember:   true,
}

// ValidTriggerType reports whether t is in the trigger vocabulary.
func ValidTriggerType(t string) bool { return triggerTypes[t] }

// ValidActionType reports whether t is in the action vocabulary.
func ValidActionType(t string) bool { return actionTypes[t] }

// CreateRuleRequest is the payload for creating a rule. Conditions is
// kept raw so the tree grammar is validated exactly as submitted.
type CreateRuleRequest struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	TriggerType   string                 `json:"trigger_type"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	ActionType    string                 `json:"action_type"`
	ActionConfig  map[string]interface{} `json:"action_config"`
	Conditions    json.RawMessage        `json:"conditions"`
	IsActive      *bool                  `json:"is_active"`
}

// UpdateRuleRequest carries partial updates: only supplied fields
// change. A raw "null" for conditions clears them; an absent key leaves
// them untouched.
type UpdateRuleRequest struct {
	Name          *string                `json:"name"`
	Description   *string                `json:"description"`
	TriggerType   *string                `json:"trigger_type"`
	TriggerConfig map[string]interface{} `json:"trigger_config"`
	ActionType    *string                `json:"action_type"`
	ActionConfig  map[string]interface{} `json:"action_config"`
	Conditions    json.RawMessage        `json:"conditions"`
	IsActive      *bool                  `json:"is_active"`
}

// ExecuteRequest is the payload for a manual rule execution.
type ExecuteRequest struct {
	TriggerData map[string]interface{} `json:"trigger_data"`
}

// Execution log statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusSkipped = "SKIPPED"
	StatusError   = "ERROR"
)
