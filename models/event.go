package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind 事件类型，同时作为 routing key 的最后一段
type EventKind string

const (
	KindMatchStarted EventKind = "match_started"
	KindMatchEnded   EventKind = "match_ended"
	KindGoal         EventKind = "goal"
	KindCard         EventKind = "card"
	KindSubstitution EventKind = "substitution"
)

// AllKinds 所有合法的事件类型
var AllKinds = []EventKind{
	KindMatchStarted,
	KindMatchEnded,
	KindGoal,
	KindCard,
	KindSubstitution,
}

// Valid 检查事件类型是否合法
func (k EventKind) Valid() bool {
	switch k {
	case KindMatchStarted, KindMatchEnded, KindGoal, KindCard, KindSubstitution:
		return true
	}
	return false
}

// CardType 卡牌类型
type CardType string

const (
	CardYellow CardType = "yellow"
	CardRed    CardType = "red"
)

// Valid 检查卡牌类型是否合法
func (c CardType) Valid() bool {
	return c == CardYellow || c == CardRed
}

// Envelope 所有事件共享的信封字段。
// 每条序列化后的消息都必须带有固定名称的 event_kind 和 match_id，
// 消费者无需解码类型相关字段即可完成路由和去重。
type Envelope struct {
	EventID   string    `json:"event_id"`
	MatchID   string    `json:"match_id"`
	EventKind EventKind `json:"event_kind"`
	EventTime time.Time `json:"event_time"`
}

// MatchStartedEvent 比赛开始事件
type MatchStartedEvent struct {
	Envelope
	HomeTeamID   string `json:"home_team_id"`
	AwayTeamID   string `json:"away_team_id"`
	HomeTeamName string `json:"home_team_name"`
	AwayTeamName string `json:"away_team_name"`
}

// MatchEndedEvent 比赛结束事件，携带官方最终比分
type MatchEndedEvent struct {
	Envelope
	FinalHomeScore int `json:"final_home_score"`
	FinalAwayScore int `json:"final_away_score"`
}

// GoalEvent 进球事件
type GoalEvent struct {
	Envelope
	TeamID   string `json:"team_id"`
	PlayerID string `json:"player_id"`
	Minute   int    `json:"minute"`
}

// CardEvent 红黄牌事件
type CardEvent struct {
	Envelope
	TeamID   string   `json:"team_id"`
	PlayerID string   `json:"player_id"`
	CardType CardType `json:"card_type"`
	Minute   int      `json:"minute"`
}

// SubstitutionEvent 换人事件
type SubstitutionEvent struct {
	Envelope
	TeamID      string `json:"team_id"`
	PlayerInID  string `json:"player_in_id"`
	PlayerOutID string `json:"player_out_id"`
	Minute      int    `json:"minute"`
}

// RoutingKey 构造事件的 routing key: events.match.<matchId>.<kind>
func RoutingKey(matchID string, kind EventKind) string {
	return fmt.Sprintf("events.match.%s.%s", matchID, kind)
}

// RoutingPattern 构造匹配任意比赛、指定事件类型的绑定模式
func RoutingPattern(kind EventKind) string {
	return fmt.Sprintf("events.match.*.%s", kind)
}

// RoutingPatternAll 匹配任意比赛、任意事件类型的绑定模式
const RoutingPatternAll = "events.match.*.*"

// ParseEnvelope 两阶段解码的第一阶段：只解析信封字段。
// event_id / match_id 缺失或 event_kind 未知都视为不可恢复的格式错误。
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed event: %w", err)
	}
	if env.EventID == "" {
		return Envelope{}, fmt.Errorf("malformed event: missing event_id")
	}
	if env.MatchID == "" {
		return Envelope{}, fmt.Errorf("malformed event: missing match_id")
	}
	if !env.EventKind.Valid() {
		return Envelope{}, fmt.Errorf("malformed event: unknown event_kind %q", env.EventKind)
	}
	return env, nil
}

// DecodeMatchStarted 第二阶段：按类型解码消息体
func DecodeMatchStarted(body []byte) (*MatchStartedEvent, error) {
	var ev MatchStartedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode match_started: %w", err)
	}
	return &ev, nil
}

// DecodeMatchEnded 解码比赛结束事件体
func DecodeMatchEnded(body []byte) (*MatchEndedEvent, error) {
	var ev MatchEndedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode match_ended: %w", err)
	}
	return &ev, nil
}

// DecodeGoal 解码进球事件体
func DecodeGoal(body []byte) (*GoalEvent, error) {
	var ev GoalEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode goal: %w", err)
	}
	return &ev, nil
}

// DecodeCard 解码卡牌事件体
func DecodeCard(body []byte) (*CardEvent, error) {
	var ev CardEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode card: %w", err)
	}
	if !ev.CardType.Valid() {
		return nil, fmt.Errorf("failed to decode card: unknown card_type %q", ev.CardType)
	}
	return &ev, nil
}

// DecodeSubstitution 解码换人事件体
func DecodeSubstitution(body []byte) (*SubstitutionEvent, error) {
	var ev SubstitutionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode substitution: %w", err)
	}
	return &ev, nil
}
