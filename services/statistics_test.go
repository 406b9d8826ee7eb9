package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"matchfeed-service/database"
	"matchfeed-service/models"
)

// fakeStatsStore 记录每次递增调用，前 failBefore 次返回"行不存在"
type fakeStatsStore struct {
	calls      int
	failBefore int
	lastDelta  database.StatDelta
}

func (f *fakeStatsStore) IncrementStatistics(ctx context.Context, matchID string, d database.StatDelta) (bool, error) {
	f.calls++
	f.lastDelta = d
	return f.calls > f.failBefore, nil
}

func cardEnvelope(t *testing.T, cardType models.CardType) (models.Envelope, []byte) {
	t.Helper()
	ev := models.CardEvent{
		Envelope: models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindCard},
		TeamID:   "t1",
		PlayerID: "p1",
		CardType: cardType,
		Minute:   30,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Failed to marshal card: %v", err)
	}
	return ev.Envelope, body
}

func TestStatisticsIgnoresMatchStarted(t *testing.T) {
	store := &fakeStatsStore{}
	handler := NewStatisticsHandler(store, 3, time.Millisecond)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindMatchStarted}
	if err := handler.Handle(context.Background(), env, []byte(`{}`)); err != nil {
		t.Fatalf("Expected match_started to be ignored, got error: %v", err)
	}

	if store.calls != 0 {
		t.Errorf("Expected no store calls for match_started, got %d", store.calls)
	}
}

func TestStatisticsDeltaPerKind(t *testing.T) {
	cases := []struct {
		kind models.EventKind
		body string
		want database.StatDelta
	}{
		{models.KindGoal, `{"event_id":"e1","match_id":"m1","event_kind":"goal"}`, database.StatDelta{Goals: 1}},
		{models.KindSubstitution, `{"event_id":"e1","match_id":"m1","event_kind":"substitution"}`, database.StatDelta{Substitutions: 1}},
		{models.KindMatchEnded, `{"event_id":"e1","match_id":"m1","event_kind":"match_ended"}`, database.StatDelta{}},
	}

	for _, tc := range cases {
		store := &fakeStatsStore{}
		handler := NewStatisticsHandler(store, 3, time.Millisecond)
		env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: tc.kind}

		if err := handler.Handle(context.Background(), env, []byte(tc.body)); err != nil {
			t.Fatalf("Expected %s to be handled, got error: %v", tc.kind, err)
		}
		if store.lastDelta != tc.want {
			t.Errorf("Expected delta %+v for %s, got %+v", tc.want, tc.kind, store.lastDelta)
		}
	}
}

func TestStatisticsCountsCardsByColor(t *testing.T) {
	store := &fakeStatsStore{}
	handler := NewStatisticsHandler(store, 3, time.Millisecond)

	env, body := cardEnvelope(t, models.CardYellow)
	handler.Handle(context.Background(), env, body)
	if store.lastDelta != (database.StatDelta{YellowCards: 1}) {
		t.Errorf("Expected yellow card delta, got %+v", store.lastDelta)
	}

	env, body = cardEnvelope(t, models.CardRed)
	handler.Handle(context.Background(), env, body)
	if store.lastDelta != (database.StatDelta{RedCards: 1}) {
		t.Errorf("Expected red card delta, got %+v", store.lastDelta)
	}
}

func TestStatisticsRetriesUntilRowAppears(t *testing.T) {
	// 前两次"行不存在"，第三次成功
	store := &fakeStatsStore{failBefore: 2}
	handler := NewStatisticsHandler(store, 3, time.Millisecond)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindGoal}
	body := []byte(`{"event_id":"e1","match_id":"m1","event_kind":"goal"}`)

	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected handle to succeed after retries, got error: %v", err)
	}
	if store.calls != 3 {
		t.Errorf("Expected 3 increment attempts, got %d", store.calls)
	}
}

func TestStatisticsDropsAfterRetriesExhausted(t *testing.T) {
	store := &fakeStatsStore{failBefore: 100}
	handler := NewStatisticsHandler(store, 3, time.Millisecond)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindGoal}
	body := []byte(`{"event_id":"e1","match_id":"m1","event_kind":"goal"}`)

	// 用尽重试后丢弃但不报错，消息会被确认
	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Errorf("Expected exhausted retries to drop without error, got %v", err)
	}
	if store.calls != 4 {
		t.Errorf("Expected 1 initial attempt + 3 retries, got %d", store.calls)
	}
}
