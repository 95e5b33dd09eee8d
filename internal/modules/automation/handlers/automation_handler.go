package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shepherdcms/automation/internal/core/automation"
	"github.com/shepherdcms/automation/internal/modules/automation/repositories"
	"github.com/shepherdcms/automation/internal/modules/automation/services"
)

// ChangeRecorder records rule mutations in the organization change
// log. A nil recorder disables auditing of edits; execution logs are
// unaffected.
type ChangeRecorder interface {
	LogChange(ctx context.Context, userID, orgID uuid.UUID, action, entity, entityID string, newValue interface{})
}

// AutomationHandler exposes the engine's seven operations over HTTP.
type AutomationHandler struct {
	service  *services.AutomationService
	recorder ChangeRecorder
}

// NewAutomationHandler creates a new automation handler.
func NewAutomationHandler(service *services.AutomationService, recorder ChangeRecorder) *AutomationHandler {
	return &AutomationHandler{service: service, recorder: recorder}
}

func (h *AutomationHandler) recordChange(c *fiber.Ctx, action, entityID string, newValue interface{}) {
	if h.recorder == nil {
		return
	}
	if orgID, userID, ok := actorLocals(c); ok {
		h.recorder.LogChange(c.UserContext(), userID, orgID, action, "automation_rule", entityID, newValue)
	}
}

// CreateRule handles POST /api/automation/rules
func (h *AutomationHandler) CreateRule(c *fiber.Ctx) error {
	orgID, userID, ok := actorFromContext(c)
	if !ok {
		return nil
	}

	var req automation.CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	rule, err := h.service.CreateRule(orgID, userID, req)
	if err != nil {
		return respondError(c, err, "failed to create rule")
	}
	h.recordChange(c, "create", rule.ID.String(), rule)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "success",
		"data":   rule,
	})
}

// ListRules handles GET /api/automation/rules
func (h *AutomationHandler) ListRules(c *fiber.Ctx) error {
	orgID, _, ok := actorFromContext(c)
	if !ok {
		return nil
	}

	var filter repositories.RuleFilter
	switch c.Query("is_active") {
	case "true":
		active := true
		filter.IsActive = &active
	case "false":
		active := false
		filter.IsActive = &active
	}

	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 0)

	rules, total, err := h.service.ListRules(orgID, filter, page, limit)
	if err != nil {
		return respondError(c, err, "failed to list rules")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"total":  total,
		"page":   page,
		"data":   rules,
	})
}

// GetRule handles GET /api/automation/rules/:id
func (h *AutomationHandler) GetRule(c *fiber.Ctx) error {
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return nil
	}

	rule, err := h.service.GetRule(ruleID)
	if err != nil {
		return respondError(c, err, "failed to get rule")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"data":   rule,
	})
}

// UpdateRule handles PUT /api/automation/rules/:id
func (h *AutomationHandler) UpdateRule(c *fiber.Ctx) error {
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return nil
	}

	var req automation.UpdateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	rule, err := h.service.UpdateRule(ruleID, req)
	if err != nil {
		return respondError(c, err, "failed to update rule")
	}
	h.recordChange(c, "update", rule.ID.String(), rule)

	return c.JSON(fiber.Map{
		"status": "success",
		"data":   rule,
	})
}

// DeleteRule handles DELETE /api/automation/rules/:id
func (h *AutomationHandler) DeleteRule(c *fiber.Ctx) error {
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return nil
	}

	if err := h.service.DeleteRule(ruleID); err != nil {
		return respondError(c, err, "failed to delete rule")
	}
	h.recordChange(c, "delete", ruleID.String(), nil)

	return c.JSON(fiber.Map{
		"status":  "success",
		"message": "rule deleted",
	})
}

// ExecuteRule handles POST /api/automation/rules/:id/execute
//
// A 200 response means the execution was attempted and audited; the
// log's status field distinguishes SUCCESS, FAILED, SKIPPED, and ERROR.
func (h *AutomationHandler) ExecuteRule(c *fiber.Ctx) error {
	ruleID, ok := ruleIDParam(c)
	if !ok {
		return nil
	}

	var req automation.ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		req.TriggerData = map[string]interface{}{}
	}

	execLog, err := h.service.Execute(c.UserContext(), ruleID, req.TriggerData)
	if err != nil {
		return respondError(c, err, "failed to execute rule")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"data":   execLog,
	})
}

// ListLogs handles GET /api/automation/logs
func (h *AutomationHandler) ListLogs(c *fiber.Ctx) error {
	var ruleID *uuid.UUID
	if raw := c.Query("rule_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid rule_id format",
			})
		}
		ruleID = &parsed
	}

	logs, err := h.service.ListLogs(ruleID, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err, "failed to list execution logs")
	}

	return c.JSON(fiber.Map{
		"status": "success",
		"count":  len(logs),
		"data":   logs,
	})
}

// ruleIDParam parses the :id path parameter. When it returns false the
// 400 response has already been written.
func ruleIDParam(c *fiber.Ctx) (uuid.UUID, bool) {
	ruleID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid rule id format",
		})
		return uuid.Nil, false
	}
	return ruleID, true
}

// actorLocals reads the actor the auth middleware stored, if any.
func actorLocals(c *fiber.Ctx) (orgID, userID uuid.UUID, ok bool) {
	orgRaw, _ := c.Locals("organizationID").(string)
	userRaw, _ := c.Locals("userID").(string)

	orgID, orgErr := uuid.Parse(orgRaw)
	userID, userErr := uuid.Parse(userRaw)
	if orgErr != nil || userErr != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, userID, true
}

// actorFromContext reads the authenticated actor the auth middleware
// resolved. The engine trusts this identity; it does not authenticate.
// When it returns false the 401 response has already been written.
func actorFromContext(c *fiber.Ctx) (uuid.UUID, uuid.UUID, bool) {
	orgID, userID, ok := actorLocals(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "missing authenticated actor",
		})
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, userID, true
}

// respondError maps engine errors onto HTTP statuses.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	var validationErr *automation.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.Is(err, automation.ErrRuleNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "rule not found",
		})
	case errors.Is(err, automation.ErrRuleInactive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "rule is inactive",
		})
	default:
		log.Error().Err(err).Msg(fallback)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fallback,
		})
	}
}
