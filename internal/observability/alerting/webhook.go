package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSender 通过 Incoming Webhook 向 Slack 投递告警文本。
type WebhookSender struct {
	URL    string
	client *http.Client
}

// NewWebhookSender 创建一个 Slack Webhook 发送器。
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send 将消息推送到 Webhook 地址。
func (s *WebhookSender) Send(ctx context.Context, channel, content string) error {
	if s == nil || s.URL == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    content,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook 返回状态码 %d", resp.StatusCode)
	}
	return nil
}

var _ SlackSender = (*WebhookSender)(nil)
