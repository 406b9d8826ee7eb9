package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"matchfeed-service/database"
	"matchfeed-service/models"
)

// fakeMatchReader 内存中的权威比赛记录
type fakeMatchReader struct {
	matches map[string]*database.Match
}

func (f *fakeMatchReader) GetMatch(ctx context.Context, matchID string) (*database.Match, error) {
	m, ok := f.matches[matchID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return m, nil
}

func newTestMatch() *database.Match {
	return &database.Match{
		MatchID:    "m1",
		HomeTeamID: "home-t",
		AwayTeamID: "away-t",
		Status:     database.MatchStatusInProgress,
	}
}

func goalBody(t *testing.T, teamID string, minute int) (models.Envelope, []byte) {
	t.Helper()
	ev := models.GoalEvent{
		Envelope: models.Envelope{EventID: "e-goal", MatchID: "m1", EventKind: models.KindGoal},
		TeamID:   teamID,
		PlayerID: "p1",
		Minute:   minute,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Failed to marshal goal: %v", err)
	}
	return ev.Envelope, body
}

func TestGetOddsLazyInit(t *testing.T) {
	reader := &fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}}
	engine := NewOddsEngine(reader)

	odds, err := engine.GetOdds(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Expected odds, got error: %v", err)
	}

	if odds.HomeWin != 2.5 || odds.Draw != 3.5 || odds.AwayWin != 3.0 {
		t.Errorf("Expected default odds 2.5/3.5/3.0, got %.2f/%.2f/%.2f", odds.HomeWin, odds.Draw, odds.AwayWin)
	}
}

func TestGetOddsUnknownMatch(t *testing.T) {
	engine := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{}})

	_, err := engine.GetOdds(context.Background(), "missing")
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHomeGoalShortensHomePrice(t *testing.T) {
	reader := &fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}}
	engine := NewOddsEngine(reader)

	env, body := goalBody(t, "home-t", 30)
	if err := engine.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected goal to be handled, got error: %v", err)
	}

	odds, _ := engine.GetOdds(context.Background(), "m1")
	if odds.HomeWin >= 2.5 {
		t.Errorf("Expected home price below 2.5 after home goal, got %.2f", odds.HomeWin)
	}
	if odds.AwayWin <= 3.0 {
		t.Errorf("Expected away price above 3.0 after home goal, got %.2f", odds.AwayWin)
	}
}

func TestEqualizerShortensDraw(t *testing.T) {
	// 进球前主队 1-0 领先，客队扳平
	match := newTestMatch()
	match.HomeScore = 1
	reader := &fakeMatchReader{matches: map[string]*database.Match{"m1": match}}
	engine := NewOddsEngine(reader)

	env, body := goalBody(t, "away-t", 60)
	if err := engine.Handle(context.Background(), env, body); err != nil {
		t.Fatalf("Expected goal to be handled, got error: %v", err)
	}

	odds, _ := engine.GetOdds(context.Background(), "m1")
	if odds.Draw >= 3.5 {
		t.Errorf("Expected draw price below 3.5 after equalizer, got %.2f", odds.Draw)
	}
	if odds.HomeWin <= 2.5 || odds.AwayWin <= 3.0 {
		t.Errorf("Expected both win prices to drift out, got %.2f/%.2f", odds.HomeWin, odds.AwayWin)
	}
}

func TestLateGoalMovesMoreThanEarlyGoal(t *testing.T) {
	early := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}})
	late := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}})

	envEarly, bodyEarly := goalBody(t, "home-t", 5)
	envLate, bodyLate := goalBody(t, "home-t", 85)
	early.Handle(context.Background(), envEarly, bodyEarly)
	late.Handle(context.Background(), envLate, bodyLate)

	earlyOdds, _ := early.GetOdds(context.Background(), "m1")
	lateOdds, _ := late.GetOdds(context.Background(), "m1")

	if lateOdds.HomeWin >= earlyOdds.HomeWin {
		t.Errorf("Expected late goal to shorten home price more: early %.3f, late %.3f",
			earlyOdds.HomeWin, lateOdds.HomeWin)
	}
}

func TestGoalForUnknownMatchIsDropped(t *testing.T) {
	engine := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{}})

	env, body := goalBody(t, "home-t", 30)
	if err := engine.Handle(context.Background(), env, body); err != nil {
		t.Errorf("Expected goal for unknown match to be dropped without error, got %v", err)
	}
}

func TestPricesNeverGoBelowFloor(t *testing.T) {
	match := newTestMatch()
	reader := &fakeMatchReader{matches: map[string]*database.Match{"m1": match}}
	engine := NewOddsEngine(reader)

	// 连续进球把主队价格压向下限
	for i := 0; i < 20; i++ {
		env, body := goalBody(t, "home-t", 89)
		if err := engine.Handle(context.Background(), env, body); err != nil {
			t.Fatalf("Expected goal to be handled, got error: %v", err)
		}
		match.HomeScore++
	}

	odds, _ := engine.GetOdds(context.Background(), "m1")
	if odds.HomeWin < 1.01 {
		t.Errorf("Expected home price to stay at or above 1.01, got %.4f", odds.HomeWin)
	}
}

func TestRedCardMovesMoreThanYellow(t *testing.T) {
	engine := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}})

	makeCard := func(cardType models.CardType) (models.Envelope, []byte) {
		ev := models.CardEvent{
			Envelope: models.Envelope{EventID: "e-card", MatchID: "m1", EventKind: models.KindCard},
			TeamID:   "home-t",
			PlayerID: "p1",
			CardType: cardType,
			Minute:   40,
		}
		body, _ := json.Marshal(ev)
		return ev.Envelope, body
	}

	env, body := makeCard(models.CardYellow)
	engine.Handle(context.Background(), env, body)
	afterYellow, _ := engine.GetOdds(context.Background(), "m1")

	env, body = makeCard(models.CardRed)
	engine.Handle(context.Background(), env, body)
	afterRed, _ := engine.GetOdds(context.Background(), "m1")

	yellowRise := afterYellow.HomeWin / 2.5
	redRise := afterRed.HomeWin / afterYellow.HomeWin
	if redRise <= yellowRise {
		t.Errorf("Expected red card to widen prices more than yellow: yellow x%.3f, red x%.3f", yellowRise, redRise)
	}
}

func TestMatchEndedSettlesOdds(t *testing.T) {
	engine := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}})

	ev := models.MatchEndedEvent{
		Envelope:       models.Envelope{EventID: "e-end", MatchID: "m1", EventKind: models.KindMatchEnded},
		FinalHomeScore: 3,
		FinalAwayScore: 1,
	}
	body, _ := json.Marshal(ev)
	if err := engine.Handle(context.Background(), ev.Envelope, body); err != nil {
		t.Fatalf("Expected match_ended to be handled, got error: %v", err)
	}

	odds, _ := engine.GetOdds(context.Background(), "m1")
	if odds.HomeWin != 1.01 {
		t.Errorf("Expected winning price 1.01, got %.2f", odds.HomeWin)
	}
	if odds.Draw != 1000 || odds.AwayWin != 1000 {
		t.Errorf("Expected losing prices 1000, got draw %.2f, away %.2f", odds.Draw, odds.AwayWin)
	}
}

func TestDrawSettlement(t *testing.T) {
	engine := NewOddsEngine(&fakeMatchReader{matches: map[string]*database.Match{"m1": newTestMatch()}})

	ev := models.MatchEndedEvent{
		Envelope:       models.Envelope{EventID: "e-end", MatchID: "m1", EventKind: models.KindMatchEnded},
		FinalHomeScore: 2,
		FinalAwayScore: 2,
	}
	body, _ := json.Marshal(ev)
	engine.Handle(context.Background(), ev.Envelope, body)

	odds, _ := engine.GetOdds(context.Background(), "m1")
	if odds.Draw != 1.01 {
		t.Errorf("Expected draw price 1.01, got %.2f", odds.Draw)
	}
	if odds.HomeWin != 1000 || odds.AwayWin != 1000 {
		t.Errorf("Expected win prices 1000, got home %.2f, away %.2f", odds.HomeWin, odds.AwayWin)
	}
}
