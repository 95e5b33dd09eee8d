package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/shepherdcms/automation/internal/core/automation"
	"github.com/shepherdcms/automation/internal/modules/automation/models"
	"github.com/shepherdcms/automation/internal/modules/automation/repositories"
)

// fakeRepo is an in-memory AutomationRepo, safe for concurrent use.
type fakeRepo struct {
	mu         sync.Mutex
	rules      map[uuid.UUID]models.AutomationRule
	executions []models.ExecutionLog

	lastOffset int
	lastLimit  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rules: make(map[uuid.UUID]models.AutomationRule)}
}

func (f *fakeRepo) Create(rule *models.AutomationRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRepo) FindByID(id uuid.UUID) (*models.AutomationRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := rule
	return &copied, nil
}

func (f *fakeRepo) FindByOrganization(orgID uuid.UUID, filter repositories.RuleFilter, offset, limit int) ([]models.AutomationRule, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOffset = offset
	f.lastLimit = limit

	var out []models.AutomationRule
	for _, rule := range f.rules {
		if rule.OrganizationID != orgID {
			continue
		}
		if filter.IsActive != nil && rule.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, rule)
	}
	return out, int64(len(out)), nil
}

func (f *fakeRepo) Update(rule *models.AutomationRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[rule.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	rule.UpdatedAt = time.Now()
	f.rules[rule.ID] = *rule
	return nil
}

func (f *fakeRepo) Delete(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeRepo) CreateExecution(log *models.ExecutionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	f.executions = append(f.executions, *log)
	return nil
}

func (f *fakeRepo) FindExecutions(ruleID *uuid.UUID, limit int) ([]models.ExecutionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExecutionLog
	for _, log := range f.executions {
		if ruleID != nil && log.RuleID != *ruleID {
			continue
		}
		out = append(out, log)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) executionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executions)
}

// spyHandler counts invocations and answers with a fixed result.
type spyHandler struct {
	actionType string
	calls      atomic.Int64
	summary    map[string]interface{}
	err        error
}

func (h *spyHandler) Type() string { return h.actionType }

func (h *spyHandler) Execute(ctx context.Context, config, data map[string]interface{}) (map[string]interface{}, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	return h.summary, nil
}

func newTestService(t *testing.T, handlers ...automation.Handler) (*AutomationService, *fakeRepo) {
	t.Helper()
	registry := automation.NewRegistry()
	for _, h := range handlers {
		registry.Register(h)
	}
	repo := newFakeRepo()
	return NewAutomationService(repo, registry, 5*time.Second), repo
}

func seedRule(t *testing.T, repo *fakeRepo, mutate func(*models.AutomationRule)) *models.AutomationRule {
	t.Helper()
	rule := &models.AutomationRule{
		OrganizationID: uuid.New(),
		Name:           "welcome new members",
		TriggerType:    automation.TriggerMemberCreated,
		TriggerConfig:  datatypes.JSON([]byte(`{}`)),
		ActionType:     automation.ActionSendMessage,
		ActionConfig:   datatypes.JSON([]byte(`{"message":"hi"}`)),
		IsActive:       true,
		CreatedBy:      uuid.New(),
	}
	if mutate != nil {
		mutate(rule)
	}
	require.NoError(t, repo.Create(rule))
	return rule
}

func TestCreateRule(t *testing.T) {
	orgID := uuid.New()
	userID := uuid.New()

	t.Run("valid rule persists with defaults", func(t *testing.T) {
		svc, repo := newTestService(t)
		rule, err := svc.CreateRule(orgID, userID, automation.CreateRuleRequest{
			Name:        "birthday greeting",
			TriggerType: automation.TriggerBirthday,
			ActionType:  automation.ActionSendEmail,
			ActionConfig: map[string]interface{}{
				"subject": "Happy birthday {{member.name}}",
			},
			Conditions: json.RawMessage(`{"field":"member.age","op":"gte","value":18}`),
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, rule.ID)
		assert.Equal(t, orgID, rule.OrganizationID)
		assert.Equal(t, userID, rule.CreatedBy)
		assert.True(t, rule.IsActive, "rules default to active")
		assert.JSONEq(t, `{}`, string(rule.TriggerConfig))
		assert.JSONEq(t, `{"field":"member.age","op":"gte","value":18}`, string(rule.Conditions))

		stored, err := repo.FindByID(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, rule.Name, stored.Name)
	})

	t.Run("vacuous conditions stored as none", func(t *testing.T) {
		svc, _ := newTestService(t)
		rule, err := svc.CreateRule(orgID, userID, automation.CreateRuleRequest{
			Name:        "always on",
			TriggerType: automation.TriggerManual,
			ActionType:  automation.ActionWebhook,
			Conditions:  json.RawMessage(`{}`),
		})
		require.NoError(t, err)
		assert.Nil(t, rule.Conditions)
	})

	t.Run("validation failures persist nothing", func(t *testing.T) {
		cases := map[string]automation.CreateRuleRequest{
			"blank name": {
				Name: "   ", TriggerType: automation.TriggerManual, ActionType: automation.ActionWebhook,
			},
			"unknown trigger type": {
				Name: "r", TriggerType: "ON_FULL_MOON", ActionType: automation.ActionWebhook,
			},
			"unknown action type": {
				Name: "r", TriggerType: automation.TriggerManual, ActionType: "LAUNCH_ROCKET",
			},
			"malformed conditions": {
				Name: "r", TriggerType: automation.TriggerManual, ActionType: automation.ActionWebhook,
				Conditions: json.RawMessage(`{"field":"x","op":"like","value":1}`),
			},
		}
		for name, req := range cases {
			t.Run(name, func(t *testing.T) {
				svc, repo := newTestService(t)
				_, err := svc.CreateRule(orgID, userID, req)
				var verr *automation.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.NotEmpty(t, verr.Field)
				assert.Empty(t, repo.rules)
			})
		}
	})
}

func TestGetRule_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GetRule(uuid.New())
	assert.ErrorIs(t, err, automation.ErrRuleNotFound)
}

func TestListRules_ClampsPaging(t *testing.T) {
	svc, repo := newTestService(t)
	orgID := uuid.New()

	_, _, err := svc.ListRules(orgID, repositories.RuleFilter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, repo.lastOffset)
	assert.Equal(t, 20, repo.lastLimit)

	_, _, err = svc.ListRules(orgID, repositories.RuleFilter{}, 3, 500)
	require.NoError(t, err)
	assert.Equal(t, 200, repo.lastOffset, "offset uses the clamped limit")
	assert.Equal(t, 100, repo.lastLimit)
}

func TestUpdateRule(t *testing.T) {
	t.Run("partial update touches only supplied fields", func(t *testing.T) {
		svc, repo := newTestService(t)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.Conditions = datatypes.JSON([]byte(`{"field":"member.age","op":"gte","value":18}`))
		})

		newName := "welcome everyone"
		updated, err := svc.UpdateRule(rule.ID, automation.UpdateRuleRequest{Name: &newName})
		require.NoError(t, err)

		assert.Equal(t, newName, updated.Name)
		assert.Equal(t, rule.TriggerType, updated.TriggerType)
		assert.Equal(t, rule.ActionType, updated.ActionType)
		assert.JSONEq(t, string(rule.Conditions), string(updated.Conditions), "absent conditions key leaves the tree alone")
	})

	t.Run("explicit null clears conditions", func(t *testing.T) {
		svc, repo := newTestService(t)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.Conditions = datatypes.JSON([]byte(`{"field":"member.age","op":"gte","value":18}`))
		})

		updated, err := svc.UpdateRule(rule.ID, automation.UpdateRuleRequest{
			Conditions: json.RawMessage(`null`),
		})
		require.NoError(t, err)
		assert.Nil(t, updated.Conditions)
	})

	t.Run("invalid field leaves the stored rule untouched", func(t *testing.T) {
		svc, repo := newTestService(t)
		rule := seedRule(t, repo, nil)

		bad := "NOT_A_TRIGGER"
		_, err := svc.UpdateRule(rule.ID, automation.UpdateRuleRequest{TriggerType: &bad})
		var verr *automation.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "trigger_type", verr.Field)

		stored, err := repo.FindByID(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, rule.TriggerType, stored.TriggerType)
	})

	t.Run("unknown rule", func(t *testing.T) {
		svc, _ := newTestService(t)
		name := "x"
		_, err := svc.UpdateRule(uuid.New(), automation.UpdateRuleRequest{Name: &name})
		assert.ErrorIs(t, err, automation.ErrRuleNotFound)
	})
}

func TestDeleteRule(t *testing.T) {
	svc, repo := newTestService(t)
	rule := seedRule(t, repo, nil)

	require.NoError(t, svc.DeleteRule(rule.ID))
	_, err := repo.FindByID(rule.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, svc.DeleteRule(rule.ID), automation.ErrRuleNotFound)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown rule writes no log", func(t *testing.T) {
		svc, repo := newTestService(t)
		_, err := svc.Execute(ctx, uuid.New(), nil)
		assert.ErrorIs(t, err, automation.ErrRuleNotFound)
		assert.Zero(t, repo.executionCount())
	})

	t.Run("inactive rule writes no log and skips the handler", func(t *testing.T) {
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, func(r *models.AutomationRule) { r.IsActive = false })

		_, err := svc.Execute(ctx, rule.ID, nil)
		assert.ErrorIs(t, err, automation.ErrRuleInactive)
		assert.Zero(t, repo.executionCount())
		assert.Zero(t, spy.calls.Load())
	})

	t.Run("unregistered handler writes no log", func(t *testing.T) {
		svc, repo := newTestService(t) // empty registry
		rule := seedRule(t, repo, nil)

		_, err := svc.Execute(ctx, rule.ID, nil)
		assert.ErrorIs(t, err, automation.ErrHandlerNotRegistered)
		assert.Zero(t, repo.executionCount())
	})

	t.Run("false conditions record one skipped log", func(t *testing.T) {
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.Conditions = datatypes.JSON([]byte(`{"field":"member.age","op":"gte","value":18}`))
		})

		execLog, err := svc.Execute(ctx, rule.ID, map[string]interface{}{
			"member": map[string]interface{}{"age": float64(12)},
		})
		require.NoError(t, err)

		assert.Equal(t, automation.StatusSkipped, execLog.Status)
		require.NotNil(t, execLog.ConditionResult)
		assert.False(t, *execLog.ConditionResult)
		assert.Nil(t, execLog.ActionResult)
		assert.Zero(t, spy.calls.Load(), "handler must not run on a skip")
		assert.Equal(t, 1, repo.executionCount())
	})

	t.Run("passing conditions dispatch and record success", func(t *testing.T) {
		spy := &spyHandler{
			actionType: automation.ActionSendMessage,
			summary:    map[string]interface{}{"recipient": "+1555"},
		}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.Conditions = datatypes.JSON([]byte(`{"field":"member.age","op":"gte","value":18}`))
		})

		execLog, err := svc.Execute(ctx, rule.ID, map[string]interface{}{
			"member": map[string]interface{}{"age": float64(30)},
		})
		require.NoError(t, err)

		assert.Equal(t, automation.StatusSuccess, execLog.Status)
		require.NotNil(t, execLog.ConditionResult)
		assert.True(t, *execLog.ConditionResult)
		assert.JSONEq(t, `{"recipient":"+1555"}`, string(execLog.ActionResult))
		assert.Empty(t, execLog.ErrorMessage)
		assert.Equal(t, rule.ID, execLog.RuleID)
		assert.Equal(t, int64(1), spy.calls.Load())
		assert.Equal(t, 1, repo.executionCount())
	})

	t.Run("no conditions means no condition result", func(t *testing.T) {
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, nil)

		execLog, err := svc.Execute(ctx, rule.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, automation.StatusSuccess, execLog.Status)
		assert.Nil(t, execLog.ConditionResult)
	})

	t.Run("handler failure records failed, not an error return", func(t *testing.T) {
		spy := &spyHandler{
			actionType: automation.ActionSendMessage,
			err:        errors.New("gateway timeout"),
		}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, nil)

		execLog, err := svc.Execute(ctx, rule.ID, nil)
		require.NoError(t, err, "a failed action is an outcome, not a server fault")

		assert.Equal(t, automation.StatusFailed, execLog.Status)
		assert.Contains(t, execLog.ErrorMessage, "gateway timeout")
		assert.Nil(t, execLog.ActionResult)
		assert.Equal(t, 1, repo.executionCount())
	})

	t.Run("corrupt stored conditions record an error log", func(t *testing.T) {
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.Conditions = datatypes.JSON([]byte(`{"field":"x","op":"bogus"}`))
		})

		execLog, err := svc.Execute(ctx, rule.ID, nil)
		require.NoError(t, err)

		assert.Equal(t, automation.StatusError, execLog.Status)
		assert.Contains(t, execLog.ErrorMessage, "condition parse")
		assert.Zero(t, spy.calls.Load())
		assert.Equal(t, 1, repo.executionCount())
	})

	t.Run("corrupt stored action config records an error log", func(t *testing.T) {
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, func(r *models.AutomationRule) {
			r.ActionConfig = datatypes.JSON([]byte(`{broken`))
		})

		execLog, err := svc.Execute(ctx, rule.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, automation.StatusError, execLog.Status)
		assert.Zero(t, spy.calls.Load())
	})

	t.Run("concurrent executions each get a log", func(t *testing.T) {
		const n = 20
		spy := &spyHandler{actionType: automation.ActionSendMessage}
		svc, repo := newTestService(t, spy)
		rule := seedRule(t, repo, nil)

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := svc.Execute(ctx, rule.ID, map[string]interface{}{"seq": i})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		assert.Equal(t, n, repo.executionCount())
		assert.Equal(t, int64(n), spy.calls.Load())
	})
}

func TestListLogs_ClampsLimit(t *testing.T) {
	svc, repo := newTestService(t)
	rule := seedRule(t, repo, nil)
	for i := 0; i < 120; i++ {
		require.NoError(t, repo.CreateExecution(&models.ExecutionLog{
			RuleID:      rule.ID,
			TriggeredAt: time.Now(),
			Status:      automation.StatusSuccess,
		}))
	}
	other := seedRule(t, repo, nil)
	require.NoError(t, repo.CreateExecution(&models.ExecutionLog{
		RuleID:      other.ID,
		TriggeredAt: time.Now(),
		Status:      automation.StatusSuccess,
	}))

	logs, err := svc.ListLogs(nil, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 50, "default limit")

	logs, err = svc.ListLogs(nil, 1000)
	require.NoError(t, err)
	assert.Len(t, logs, 100, "hard cap")

	logs, err = svc.ListLogs(&other.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, other.ID, logs[0].RuleID)
}
