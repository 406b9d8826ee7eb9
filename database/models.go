package database

import (
	"time"
)

// MatchStatus 比赛状态
type MatchStatus string

const (
	MatchStatusNotStarted MatchStatus = "not_started"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusFinished   MatchStatus = "finished"
)

// Match 比赛权威记录
type Match struct {
	MatchID      string      `db:"match_id"`
	HomeTeamID   string      `db:"home_team_id"`
	AwayTeamID   string      `db:"away_team_id"`
	HomeTeamName string      `db:"home_team_name"`
	AwayTeamName string      `db:"away_team_name"`
	HomeScore    int         `db:"home_score"`
	AwayScore    int         `db:"away_score"`
	Status       MatchStatus `db:"status"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

// MatchStatistic 比赛统计（由事件流折叠得到的派生计数器）
type MatchStatistic struct {
	MatchID            string    `db:"match_id"`
	TotalGoals         int       `db:"total_goals"`
	TotalYellowCards   int       `db:"total_yellow_cards"`
	TotalRedCards      int       `db:"total_red_cards"`
	TotalSubstitutions int       `db:"total_substitutions"`
	TotalEvents        int       `db:"total_events"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// MatchEventRow 事件日志行，写入后不再修改
type MatchEventRow struct {
	EventID    string    `db:"event_id"`
	MatchID    string    `db:"match_id"`
	EventKind  string    `db:"event_kind"`
	EventTime  time.Time `db:"event_time"`
	Payload    string    `db:"payload"`
	ReceivedAt time.Time `db:"received_at"`
}

// StatDelta 一次统计更新的增量，所有字段非负
type StatDelta struct {
	Goals         int
	YellowCards   int
	RedCards      int
	Substitutions int
}

// MatchView 比赛 + 统计的合并视图，用于通知推送和查询接口
type MatchView struct {
	MatchID            string      `json:"match_id"`
	HomeTeamID         string      `json:"home_team_id"`
	AwayTeamID         string      `json:"away_team_id"`
	HomeTeamName       string      `json:"home_team_name"`
	AwayTeamName       string      `json:"away_team_name"`
	HomeScore          int         `json:"home_score"`
	AwayScore          int         `json:"away_score"`
	Status             MatchStatus `json:"status"`
	TotalGoals         int         `json:"total_goals"`
	TotalYellowCards   int         `json:"total_yellow_cards"`
	TotalRedCards      int         `json:"total_red_cards"`
	TotalSubstitutions int         `json:"total_substitutions"`
	TotalEvents        int         `json:"total_events"`
}
