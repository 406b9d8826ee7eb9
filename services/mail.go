package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"matchfeed-service/logger"
)

// MailNotifier 通过 HTTP 邮件网关发送告警邮件。
// webhook 未配置时自动禁用，所有发送变成空操作。
type MailNotifier struct {
	webhookURL string
	from       string
	to         string
	client     *http.Client
	enabled    bool
}

// NewMailNotifier 创建邮件通知器
func NewMailNotifier(webhookURL, from, to string) *MailNotifier {
	enabled := webhookURL != "" && to != ""
	if enabled {
		logger.Printf("[MailNotifier] Initialized, alerts go to %s", to)
	} else {
		logger.Printf("[MailNotifier] Disabled (no webhook URL or recipient)")
	}

	return &MailNotifier{
		webhookURL: webhookURL,
		from:       from,
		to:         to,
		client:     &http.Client{Timeout: 10 * time.Second},
		enabled:    enabled,
	}
}

// mailMessage 邮件网关的请求体
type mailMessage struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// SendAlert 发送一封 HTML 告警邮件
func (n *MailNotifier) SendAlert(subject, htmlBody string) error {
	if !n.enabled {
		return nil
	}

	message := mailMessage{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject,
		HTML:    htmlBody,
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail gateway returned status %d", resp.StatusCode)
	}

	return nil
}
