package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"matchfeed-service/models"
)

// fakeMailSender 记录发送的告警
type fakeMailSender struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeMailSender) SendAlert(subject, htmlBody string) error {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, htmlBody)
	return f.err
}

func TestEmailFormatsGoalAlert(t *testing.T) {
	sender := &fakeMailSender{}
	handler := NewEmailHandler(sender)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindGoal}
	body := []byte(`{"event_id":"e1","match_id":"m1","event_kind":"goal","team_id":"t1","player_id":"p7","minute":55}`)

	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected goal alert to be sent, got error: %v", err)
	}

	if len(sender.subjects) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(sender.subjects))
	}
	if sender.subjects[0] != "Match Alert - goal in match m1" {
		t.Errorf("Unexpected subject: '%s'", sender.subjects[0])
	}
	if !strings.Contains(sender.bodies[0], "p7") || !strings.Contains(sender.bodies[0], "55") {
		t.Errorf("Expected player and minute in body, got: %s", sender.bodies[0])
	}
}

func TestEmailSendFailureIsSwallowed(t *testing.T) {
	sender := &fakeMailSender{err: errors.New("webhook down")}
	handler := NewEmailHandler(sender)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindMatchEnded}
	body := []byte(`{"event_id":"e1","match_id":"m1","event_kind":"match_ended","final_home_score":1,"final_away_score":0}`)

	// 邮件失败只记日志，消息仍然确认
	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Errorf("Expected send failure to be swallowed, got %v", err)
	}
}

func TestMailNotifierDisabledWithoutWebhook(t *testing.T) {
	notifier := NewMailNotifier("", "from@example.com", "to@example.com")

	if err := notifier.SendAlert("subject", "<p>body</p>"); err != nil {
		t.Errorf("Expected disabled notifier to no-op, got %v", err)
	}
}

func TestMailNotifierPostsToGateway(t *testing.T) {
	var received mailMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewMailNotifier(server.URL, "alerts@example.com", "ops@example.com")
	if err := notifier.SendAlert("Match Alert", "<p>goal</p>"); err != nil {
		t.Fatalf("Expected alert to be sent, got error: %v", err)
	}

	if received.Subject != "Match Alert" {
		t.Errorf("Expected subject 'Match Alert', got '%s'", received.Subject)
	}
	if len(received.To) != 1 || received.To[0] != "ops@example.com" {
		t.Errorf("Expected recipient 'ops@example.com', got %v", received.To)
	}
}

func TestMailNotifierReportsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewMailNotifier(server.URL, "alerts@example.com", "ops@example.com")
	if err := notifier.SendAlert("Match Alert", "<p>goal</p>"); err == nil {
		t.Error("Expected error for gateway failure, got nil")
	}
}
