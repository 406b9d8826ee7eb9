package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// MatchStore 封装比赛、统计和事件日志的读写。
// 单条事件产生的所有写入在一个事务内提交。
type MatchStore struct {
	db *sql.DB
}

// NewMatchStore 创建比赛存储
func NewMatchStore(db *sql.DB) *MatchStore {
	return &MatchStore{db: db}
}

// HasEvent 检查事件是否已经记录过（event_id 幂等键）
func (s *MatchStore) HasEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM match_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

// RecordMatchStarted 创建比赛记录、零值统计行并追加事件日志。
// 比赛已存在时保留原记录（重复开始），事件日志仍然追加。
// 返回是否创建了新比赛。
func (s *MatchStore) RecordMatchStarted(ctx context.Context, match *Match, ev *MatchEventRow) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO matches (match_id, home_team_id, away_team_id, home_team_name, away_team_name, home_score, away_score, status)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, $6)
		 ON CONFLICT (match_id) DO NOTHING`,
		match.MatchID, match.HomeTeamID, match.AwayTeamID,
		match.HomeTeamName, match.AwayTeamName, MatchStatusInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert match: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	created := rows > 0

	// 统计行与比赛记录同事务创建，避免 Statistics 消费者的创建竞争
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO match_statistics (match_id) VALUES ($1)
		 ON CONFLICT (match_id) DO NOTHING`,
		match.MatchID,
	); err != nil {
		return false, fmt.Errorf("failed to insert statistics: %w", err)
	}

	if err := appendEvent(ctx, tx, ev); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return created, nil
}

// RecordGoal 根据进球方更新比分并追加事件日志。
// 返回得分的一方（"home"/"away"），比赛不存在或 teamID 两边都不匹配时返回空串，
// 事件日志照常追加。
func (s *MatchStore) RecordGoal(ctx context.Context, ev *MatchEventRow, teamID string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var homeTeamID, awayTeamID string
	err = tx.QueryRowContext(ctx,
		`SELECT home_team_id, away_team_id FROM matches WHERE match_id = $1 FOR UPDATE`,
		ev.MatchID,
	).Scan(&homeTeamID, &awayTeamID)

	side := ""
	switch {
	case err == sql.ErrNoRows:
		// 比赛不存在，只记事件
		err = nil
	case err != nil:
		return "", fmt.Errorf("failed to load match: %w", err)
	case teamID == homeTeamID:
		side = "home"
		_, err = tx.ExecContext(ctx,
			`UPDATE matches SET home_score = home_score + 1, updated_at = CURRENT_TIMESTAMP WHERE match_id = $1`,
			ev.MatchID)
	case teamID == awayTeamID:
		side = "away"
		_, err = tx.ExecContext(ctx,
			`UPDATE matches SET away_score = away_score + 1, updated_at = CURRENT_TIMESTAMP WHERE match_id = $1`,
			ev.MatchID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to update score: %w", err)
	}

	if err := appendEvent(ctx, tx, ev); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return side, nil
}

// RecordMatchEnded 将比赛置为 finished，用官方最终比分覆盖增量比分，
// 并追加事件日志。返回比赛记录是否存在。
func (s *MatchStore) RecordMatchEnded(ctx context.Context, ev *MatchEventRow, finalHome, finalAway int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = $2, home_score = $3, away_score = $4, updated_at = CURRENT_TIMESTAMP
		 WHERE match_id = $1`,
		ev.MatchID, MatchStatusFinished, finalHome, finalAway,
	)
	if err != nil {
		return false, fmt.Errorf("failed to finish match: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := appendEvent(ctx, tx, ev); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return rows > 0, nil
}

// RecordEvent 只追加事件日志（卡牌、换人等不修改比赛记录的事件）
func (s *MatchStore) RecordEvent(ctx context.Context, ev *MatchEventRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, ev *MatchEventRow) error {
	// ON CONFLICT DO NOTHING 兜底并发重复投递
	_, err := tx.ExecContext(ctx,
		`INSERT INTO match_events (event_id, match_id, event_kind, event_time, payload)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.MatchID, ev.EventKind, ev.EventTime, ev.Payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// IncrementStatistics 单语句递增统计计数器（total_events 恒加一）。
// 数据库行级更新保证同一比赛的并发递增不丢失。
// 统计行不存在时返回 false。
func (s *MatchStore) IncrementStatistics(ctx context.Context, matchID string, d StatDelta) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_statistics
		 SET total_events = total_events + 1,
		     total_goals = total_goals + $2,
		     total_yellow_cards = total_yellow_cards + $3,
		     total_red_cards = total_red_cards + $4,
		     total_substitutions = total_substitutions + $5,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE match_id = $1`,
		matchID, d.Goals, d.YellowCards, d.RedCards, d.Substitutions,
	)
	if err != nil {
		return false, fmt.Errorf("failed to increment statistics: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetMatch 按主键读取比赛记录
func (s *MatchStore) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	var m Match
	err := s.db.QueryRowContext(ctx,
		`SELECT match_id, home_team_id, away_team_id, home_team_name, away_team_name,
		        home_score, away_score, status, created_at, updated_at
		 FROM matches WHERE match_id = $1`,
		matchID,
	).Scan(&m.MatchID, &m.HomeTeamID, &m.AwayTeamID, &m.HomeTeamName, &m.AwayTeamName,
		&m.HomeScore, &m.AwayScore, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &m, nil
}

// GetStatistics 按主键读取统计行
func (s *MatchStore) GetStatistics(ctx context.Context, matchID string) (*MatchStatistic, error) {
	var st MatchStatistic
	err := s.db.QueryRowContext(ctx,
		`SELECT match_id, total_goals, total_yellow_cards, total_red_cards,
		        total_substitutions, total_events, updated_at
		 FROM match_statistics WHERE match_id = $1`,
		matchID,
	).Scan(&st.MatchID, &st.TotalGoals, &st.TotalYellowCards, &st.TotalRedCards,
		&st.TotalSubstitutions, &st.TotalEvents, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &st, nil
}

// GetCombinedView 读取比赛 + 统计的合并视图，任意一侧缺失都返回 ErrNotFound
func (s *MatchStore) GetCombinedView(ctx context.Context, matchID string) (*MatchView, error) {
	var v MatchView
	err := s.db.QueryRowContext(ctx,
		`SELECT m.match_id, m.home_team_id, m.away_team_id, m.home_team_name, m.away_team_name,
		        m.home_score, m.away_score, m.status,
		        s.total_goals, s.total_yellow_cards, s.total_red_cards, s.total_substitutions, s.total_events
		 FROM matches m
		 JOIN match_statistics s ON s.match_id = m.match_id
		 WHERE m.match_id = $1`,
		matchID,
	).Scan(&v.MatchID, &v.HomeTeamID, &v.AwayTeamID, &v.HomeTeamName, &v.AwayTeamName,
		&v.HomeScore, &v.AwayScore, &v.Status,
		&v.TotalGoals, &v.TotalYellowCards, &v.TotalRedCards, &v.TotalSubstitutions, &v.TotalEvents)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get combined view: %w", err)
	}
	return &v, nil
}

// ListMatchViews 列出最近的比赛合并视图
func (s *MatchStore) ListMatchViews(ctx context.Context, limit int) ([]*MatchView, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.match_id, m.home_team_id, m.away_team_id, m.home_team_name, m.away_team_name,
		        m.home_score, m.away_score, m.status,
		        s.total_goals, s.total_yellow_cards, s.total_red_cards, s.total_substitutions, s.total_events
		 FROM matches m
		 JOIN match_statistics s ON s.match_id = m.match_id
		 ORDER BY m.created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	views := make([]*MatchView, 0)
	for rows.Next() {
		var v MatchView
		if err := rows.Scan(&v.MatchID, &v.HomeTeamID, &v.AwayTeamID, &v.HomeTeamName, &v.AwayTeamName,
			&v.HomeScore, &v.AwayScore, &v.Status,
			&v.TotalGoals, &v.TotalYellowCards, &v.TotalRedCards, &v.TotalSubstitutions, &v.TotalEvents); err != nil {
			return nil, fmt.Errorf("failed to scan match view: %w", err)
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// ListMatchEvents 按接收顺序列出一场比赛的事件日志
func (s *MatchStore) ListMatchEvents(ctx context.Context, matchID string, limit int) ([]*MatchEventRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, match_id, event_kind, event_time, payload, received_at
		 FROM match_events WHERE match_id = $1
		 ORDER BY received_at ASC
		 LIMIT $2`,
		matchID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*MatchEventRow, 0)
	for rows.Next() {
		var ev MatchEventRow
		if err := rows.Scan(&ev.EventID, &ev.MatchID, &ev.EventKind, &ev.EventTime, &ev.Payload, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}
