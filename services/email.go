package services

import (
	"context"
	"fmt"
	"strings"

	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// MailSender 发送格式化告警的出站邮件传输
type MailSender interface {
	SendAlert(subject, htmlBody string) error
}

// EmailHandler 把每条事件格式化成可读的告警邮件。
// 发送完全是 fire-and-forget：失败只记日志，消息永远被确认。
type EmailHandler struct {
	sender MailSender
}

// NewEmailHandler 创建邮件处理器
func NewEmailHandler(sender MailSender) *EmailHandler {
	return &EmailHandler{sender: sender}
}

func (h *EmailHandler) Name() string { return "Email" }

func (h *EmailHandler) Queue() string { return "queue.email" }

func (h *EmailHandler) Bindings() []string {
	return []string{models.RoutingPatternAll}
}

// Handle 格式化并发送告警
func (h *EmailHandler) Handle(ctx context.Context, env models.Envelope, body []byte) error {
	subject := fmt.Sprintf("Match Alert - %s in match %s", env.EventKind, env.MatchID)

	details, err := h.formatDetails(env, body)
	if err != nil {
		logger.Errorf("[Email] Failed to format event %s: %v", env.EventID, err)
		return nil
	}

	htmlBody := fmt.Sprintf(`<html><body>
<h1>New match event</h1>
<p>A <b>%s</b> event was recorded in match <b>%s</b>.</p>
<p>Event details:</p>
%s
</body></html>`, env.EventKind, env.MatchID, details)

	if err := h.sender.SendAlert(subject, htmlBody); err != nil {
		logger.Errorf("[Email] Failed to send alert for event %s: %v", env.EventID, err)
	}
	return nil
}

// formatDetails 按事件类型生成详情段落
func (h *EmailHandler) formatDetails(env models.Envelope, body []byte) (string, error) {
	lines := []string{fmt.Sprintf("<b>Match:</b> %s", env.MatchID)}

	switch env.EventKind {
	case models.KindMatchStarted:
		ev, err := models.DecodeMatchStarted(body)
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("<b>Home team:</b> %s", ev.HomeTeamName),
			fmt.Sprintf("<b>Away team:</b> %s", ev.AwayTeamName))

	case models.KindMatchEnded:
		ev, err := models.DecodeMatchEnded(body)
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("<b>Final home score:</b> %d", ev.FinalHomeScore),
			fmt.Sprintf("<b>Final away score:</b> %d", ev.FinalAwayScore))

	case models.KindGoal:
		ev, err := models.DecodeGoal(body)
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("<b>Minute:</b> %d", ev.Minute),
			fmt.Sprintf("<b>Team:</b> %s", ev.TeamID),
			fmt.Sprintf("<b>Player:</b> %s", ev.PlayerID))

	case models.KindCard:
		ev, err := models.DecodeCard(body)
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("<b>Minute:</b> %d", ev.Minute),
			fmt.Sprintf("<b>Team:</b> %s", ev.TeamID),
			fmt.Sprintf("<b>Player:</b> %s", ev.PlayerID),
			fmt.Sprintf("<b>Card:</b> %s", ev.CardType))

	case models.KindSubstitution:
		ev, err := models.DecodeSubstitution(body)
		if err != nil {
			return "", err
		}
		lines = append(lines,
			fmt.Sprintf("<b>Minute:</b> %d", ev.Minute),
			fmt.Sprintf("<b>Team:</b> %s", ev.TeamID),
			fmt.Sprintf("<b>Player in:</b> %s", ev.PlayerInID),
			fmt.Sprintf("<b>Player out:</b> %s", ev.PlayerOutID))
	}

	return strings.Join(lines, "<br/>"), nil
}
