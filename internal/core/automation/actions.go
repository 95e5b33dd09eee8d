package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gorm.io/gorm"
)

// MessageSender delivers an in-app or SMS message to a member. The
// concrete provider lives outside the engine.
type MessageSender interface {
	SendMessage(ctx context.Context, recipient, body string) error
}

// EmailSender delivers an email. The concrete provider lives outside
// the engine.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// configString reads a string key from action config.
func configString(config map[string]interface{}, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

// ---------------------------------------------------------------------
// SEND_MESSAGE
// ---------------------------------------------------------------------

// SendMessageHandler sends a templated message through the injected
// sender. Config: recipient (template), message (template).
type SendMessageHandler struct {
	sender MessageSender
}

func NewSendMessageHandler(sender MessageSender) *SendMessageHandler {
	return &SendMessageHandler{sender: sender}
}

func (h *SendMessageHandler) Type() string { return ActionSendMessage }

func (h *SendMessageHandler) Execute(ctx context.Context, config map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	recipient := substitute(configString(config, "recipient"), data)
	if recipient == "" {
		if v, ok := resolvePath(data, "member.phone"); ok {
			recipient = fmt.Sprintf("%v", v)
		}
	}
	if recipient == "" {
		return nil, fmt.Errorf("send_message: recipient is required")
	}

	template := configString(config, "message")
	if template == "" {
		return nil, fmt.Errorf("send_message: message is required")
	}
	body := substitute(template, data)

	if err := h.sender.SendMessage(ctx, recipient, body); err != nil {
		return nil, fmt.Errorf("send_message: %w", err)
	}

	return map[string]interface{}{
		"recipient": recipient,
		"message":   body,
	}, nil
}

// ---------------------------------------------------------------------
// SEND_EMAIL
// ---------------------------------------------------------------------

// SendEmailHandler sends a templated email through the injected sender.
// Config: to (template), subject (template), body (template).
type SendEmailHandler struct {
	sender EmailSender
}

func NewSendEmailHandler(sender EmailSender) *SendEmailHandler {
	return &SendEmailHandler{sender: sender}
}

func (h *SendEmailHandler) Type() string { return ActionSendEmail }

func (h *SendEmailHandler) Execute(ctx context.Context, config map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	to := substitute(configString(config, "to"), data)
	if to == "" {
		if v, ok := resolvePath(data, "member.email"); ok {
			to = fmt.Sprintf("%v", v)
		}
	}
	if to == "" {
		return nil, fmt.Errorf("send_email: recipient is required")
	}

	subject := substitute(configString(config, "subject"), data)
	body := substitute(configString(config, "body"), data)
	if subject == "" && body == "" {
		return nil, fmt.Errorf("send_email: subject or body is required")
	}

	if err := h.sender.SendEmail(ctx, to, subject, body); err != nil {
		return nil, fmt.Errorf("send_email: %w", err)
	}

	return map[string]interface{}{
		"to":      to,
		"subject": subject,
	}, nil
}

// ---------------------------------------------------------------------
// WEBHOOK
// ---------------------------------------------------------------------

// WebhookHandler posts the trigger data to an external URL. Config:
// url, method (default POST), headers, body (overrides trigger data).
type WebhookHandler struct {
	httpClient *http.Client
}

func NewWebhookHandler(client *http.Client) *WebhookHandler {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookHandler{httpClient: client}
}

func (h *WebhookHandler) Type() string { return ActionWebhook }

func (h *WebhookHandler) Execute(ctx context.Context, config map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	url := configString(config, "url")
	if url == "" {
		return nil, fmt.Errorf("webhook: url is required")
	}

	method := configString(config, "method")
	if method == "" {
		method = http.MethodPost
	}

	payload := config["body"]
	if payload == nil {
		payload = data
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("webhook: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := config["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(key, s)
			}
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("webhook: %s returned status %d: %s", url, resp.StatusCode, string(respBody))
	}

	return map[string]interface{}{
		"url":         url,
		"method":      method,
		"status_code": resp.StatusCode,
	}, nil
}

// ---------------------------------------------------------------------
// TAG_MEMBER
// ---------------------------------------------------------------------

// TagMemberHandler attaches a tag to a member row. Config: tag;
// member_id comes from config or from trigger data at member.id.
type TagMemberHandler struct {
	db *gorm.DB
}

func NewTagMemberHandler(db *gorm.DB) *TagMemberHandler {
	return &TagMemberHandler{db: db}
}

func (h *TagMemberHandler) Type() string { return ActionTagMember }

func (h *TagMemberHandler) Execute(ctx context.Context, config map[string]interface{}, data map[string]interface{}) (map[string]interface{}, error) {
	tag := substitute(configString(config, "tag"), data)
	if tag == "" {
		return nil, fmt.Errorf("tag_member: tag is required")
	}

	memberID := configString(config, "member_id")
	if memberID == "" {
		if v, ok := resolvePath(data, "member.id"); ok {
			memberID = fmt.Sprintf("%v", v)
		}
	}
	if memberID == "" {
		return nil, fmt.Errorf("tag_member: member_id is required")
	}

	row := map[string]interface{}{
		"member_id": memberID,
		"tag":       tag,
	}
	if err := h.db.WithContext(ctx).Table("member_tags").Create(row).Error; err != nil {
		return nil, fmt.Errorf("tag_member: failed to tag member: %w", err)
	}

	return map[string]interface{}{
		"member_id": memberID,
		"tag":       tag,
	}, nil
}
