package services

import (
	"context"
	"encoding/json"
	"testing"

	"matchfeed-service/database"
	"matchfeed-service/models"
)

// fakePersistenceStore 记录每次写入调用
type fakePersistenceStore struct {
	seen         map[string]bool
	startedMatch *database.Match
	goalTeamID   string
	goalSide     string
	endedHome    int
	endedAway    int
	eventRows    []*database.MatchEventRow
}

func newFakePersistenceStore() *fakePersistenceStore {
	return &fakePersistenceStore{seen: make(map[string]bool), goalSide: "home"}
}

func (f *fakePersistenceStore) HasEvent(ctx context.Context, eventID string) (bool, error) {
	return f.seen[eventID], nil
}

func (f *fakePersistenceStore) RecordMatchStarted(ctx context.Context, match *database.Match, ev *database.MatchEventRow) (bool, error) {
	f.startedMatch = match
	f.eventRows = append(f.eventRows, ev)
	return true, nil
}

func (f *fakePersistenceStore) RecordGoal(ctx context.Context, ev *database.MatchEventRow, teamID string) (string, error) {
	f.goalTeamID = teamID
	f.eventRows = append(f.eventRows, ev)
	return f.goalSide, nil
}

func (f *fakePersistenceStore) RecordMatchEnded(ctx context.Context, ev *database.MatchEventRow, finalHome, finalAway int) (bool, error) {
	f.endedHome = finalHome
	f.endedAway = finalAway
	f.eventRows = append(f.eventRows, ev)
	return true, nil
}

func (f *fakePersistenceStore) RecordEvent(ctx context.Context, ev *database.MatchEventRow) error {
	f.eventRows = append(f.eventRows, ev)
	return nil
}

func TestPersistenceSkipsDuplicateEvent(t *testing.T) {
	store := newFakePersistenceStore()
	store.seen["e1"] = true
	handler := NewPersistenceHandler(store)

	env := models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindGoal}
	body := []byte(`{"event_id":"e1","match_id":"m1","event_kind":"goal","team_id":"t1","player_id":"p1","minute":10}`)

	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected duplicate to be skipped, got error: %v", err)
	}
	if len(store.eventRows) != 0 {
		t.Errorf("Expected no writes for duplicate event, got %d", len(store.eventRows))
	}
}

func TestPersistenceCreatesMatchOnStart(t *testing.T) {
	store := newFakePersistenceStore()
	handler := NewPersistenceHandler(store)

	ev := models.MatchStartedEvent{
		Envelope:     models.Envelope{EventID: "e1", MatchID: "m1", EventKind: models.KindMatchStarted},
		HomeTeamID:   "home-t",
		AwayTeamID:   "away-t",
		HomeTeamName: "Home FC",
		AwayTeamName: "Away FC",
	}
	body, _ := json.Marshal(ev)

	if err := handler.Handle(context.Background(), ev.Envelope, body); err != nil {
		t.Fatalf("Expected match_started to be handled, got error: %v", err)
	}

	match := store.startedMatch
	if match == nil {
		t.Fatal("Expected match record to be created")
	}
	if match.MatchID != "m1" || match.HomeTeamID != "home-t" || match.AwayTeamName != "Away FC" {
		t.Errorf("Unexpected match record: %+v", match)
	}
	if match.Status != database.MatchStatusInProgress {
		t.Errorf("Expected status in_progress, got '%s'", match.Status)
	}
	if match.HomeScore != 0 || match.AwayScore != 0 {
		t.Errorf("Expected zero initial score, got %d-%d", match.HomeScore, match.AwayScore)
	}
}

func TestPersistenceRecordsGoal(t *testing.T) {
	store := newFakePersistenceStore()
	handler := NewPersistenceHandler(store)

	env := models.Envelope{EventID: "e2", MatchID: "m1", EventKind: models.KindGoal}
	body := []byte(`{"event_id":"e2","match_id":"m1","event_kind":"goal","team_id":"away-t","player_id":"p9","minute":44}`)

	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected goal to be handled, got error: %v", err)
	}
	if store.goalTeamID != "away-t" {
		t.Errorf("Expected goal recorded for team 'away-t', got '%s'", store.goalTeamID)
	}
}

func TestPersistenceRecordsFinalScore(t *testing.T) {
	store := newFakePersistenceStore()
	handler := NewPersistenceHandler(store)

	ev := models.MatchEndedEvent{
		Envelope:       models.Envelope{EventID: "e3", MatchID: "m1", EventKind: models.KindMatchEnded},
		FinalHomeScore: 2,
		FinalAwayScore: 1,
	}
	body, _ := json.Marshal(ev)

	if err := handler.Handle(context.Background(), ev.Envelope, body); err != nil {
		t.Fatalf("Expected match_ended to be handled, got error: %v", err)
	}
	if store.endedHome != 2 || store.endedAway != 1 {
		t.Errorf("Expected final score 2-1, got %d-%d", store.endedHome, store.endedAway)
	}
}

func TestPersistenceLogsCardsAndSubstitutions(t *testing.T) {
	store := newFakePersistenceStore()
	handler := NewPersistenceHandler(store)

	env := models.Envelope{EventID: "e4", MatchID: "m1", EventKind: models.KindCard}
	body := []byte(`{"event_id":"e4","match_id":"m1","event_kind":"card","team_id":"t1","player_id":"p1","card_type":"yellow","minute":30}`)

	if err := handler.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected card to be handled, got error: %v", err)
	}

	if len(store.eventRows) != 1 {
		t.Fatalf("Expected 1 event row, got %d", len(store.eventRows))
	}
	row := store.eventRows[0]
	if row.EventID != "e4" || row.EventKind != "card" {
		t.Errorf("Unexpected event row: %+v", row)
	}
	if row.Payload == "" {
		t.Error("Expected raw payload to be preserved in event log")
	}
}
