// Package messaging delivers member-facing messages through the
// platform's SMS/chat gateway. It satisfies the automation engine's
// MessageSender capability.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Service sends messages through an HTTP gateway.
type Service struct {
	gatewayURL string
	apiKey     string
	httpClient *http.Client
}

// NewService creates a messaging service pointed at the gateway.
func NewService(gatewayURL, apiKey string) *Service {
	return &Service{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

type sendRequest struct {
	Recipient string `json:"recipient"`
	Body      string `json:"body"`
}

// SendMessage delivers one message to a recipient.
func (s *Service) SendMessage(ctx context.Context, recipient, body string) error {
	if s.gatewayURL == "" {
		return fmt.Errorf("message gateway is not configured")
	}

	payload, err := json.Marshal(sendRequest{Recipient: recipient, Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL+"/v1/messages", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("message gateway error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}
