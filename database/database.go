package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Connect 连接到数据库
func Connect(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

// Migrate 运行数据库迁移
func Migrate(db *sql.DB) error {
	migrations := []string{
		// 比赛表（权威记录，只由 Persistence 消费者写入）
		`CREATE TABLE IF NOT EXISTS matches (
			match_id VARCHAR(100) PRIMARY KEY,
			home_team_id VARCHAR(100) NOT NULL,
			away_team_id VARCHAR(100) NOT NULL,
			home_team_name VARCHAR(255) NOT NULL,
			away_team_name VARCHAR(255) NOT NULL,
			home_score INTEGER NOT NULL DEFAULT 0,
			away_score INTEGER NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status)`,

		// 比赛统计表（与 matches 一对一，计数器只增不减）
		`CREATE TABLE IF NOT EXISTS match_statistics (
			match_id VARCHAR(100) PRIMARY KEY,
			total_goals INTEGER NOT NULL DEFAULT 0,
			total_yellow_cards INTEGER NOT NULL DEFAULT 0,
			total_red_cards INTEGER NOT NULL DEFAULT 0,
			total_substitutions INTEGER NOT NULL DEFAULT 0,
			total_events INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// 事件日志表（只追加，event_id 主键同时作为幂等键）
		`CREATE TABLE IF NOT EXISTS match_events (
			event_id VARCHAR(100) PRIMARY KEY,
			match_id VARCHAR(100) NOT NULL,
			event_kind VARCHAR(30) NOT NULL,
			event_time TIMESTAMP NOT NULL,
			payload TEXT NOT NULL,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_match_id ON match_events(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_match_events_event_kind ON match_events(event_kind)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
