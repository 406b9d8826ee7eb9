package services

import (
	"context"

	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// PersistenceStore Persistence 消费者需要的存储操作
type PersistenceStore interface {
	HasEvent(ctx context.Context, eventID string) (bool, error)
	RecordMatchStarted(ctx context.Context, match *database.Match, ev *database.MatchEventRow) (bool, error)
	RecordGoal(ctx context.Context, ev *database.MatchEventRow, teamID string) (string, error)
	RecordMatchEnded(ctx context.Context, ev *database.MatchEventRow, finalHome, finalAway int) (bool, error)
	RecordEvent(ctx context.Context, ev *database.MatchEventRow) error
}

// PersistenceHandler 维护权威比赛记录和只追加的事件日志。
// 整个系统中只有它允许创建新的比赛记录。
type PersistenceHandler struct {
	store PersistenceStore
}

// NewPersistenceHandler 创建持久化处理器
func NewPersistenceHandler(store PersistenceStore) *PersistenceHandler {
	return &PersistenceHandler{store: store}
}

func (h *PersistenceHandler) Name() string { return "Persistence" }

func (h *PersistenceHandler) Queue() string { return "queue.persistence" }

func (h *PersistenceHandler) Bindings() []string {
	return []string{models.RoutingPatternAll}
}

// Handle 按事件类型更新比赛记录，每条事件的全部写入在一个事务内提交。
// 已记录过的 event_id 视为重复投递，按成功处理（确认并跳过）。
func (h *PersistenceHandler) Handle(ctx context.Context, env models.Envelope, body []byte) error {
	seen, err := h.store.HasEvent(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		logger.Printf("[Persistence] Duplicate event %s for match %s, skipping", env.EventID, env.MatchID)
		return nil
	}

	row := &database.MatchEventRow{
		EventID:   env.EventID,
		MatchID:   env.MatchID,
		EventKind: string(env.EventKind),
		EventTime: env.EventTime,
		Payload:   string(body),
	}

	switch env.EventKind {
	case models.KindMatchStarted:
		ev, err := models.DecodeMatchStarted(body)
		if err != nil {
			return err
		}
		match := &database.Match{
			MatchID:      env.MatchID,
			HomeTeamID:   ev.HomeTeamID,
			AwayTeamID:   ev.AwayTeamID,
			HomeTeamName: ev.HomeTeamName,
			AwayTeamName: ev.AwayTeamName,
			Status:       database.MatchStatusInProgress,
		}
		created, err := h.store.RecordMatchStarted(ctx, match, row)
		if err != nil {
			return err
		}
		if created {
			logger.Printf("[Persistence] Match %s created: %s vs %s", env.MatchID, ev.HomeTeamName, ev.AwayTeamName)
		} else {
			logger.Printf("[Persistence] Duplicate match_started for %s, keeping existing record", env.MatchID)
		}

	case models.KindGoal:
		ev, err := models.DecodeGoal(body)
		if err != nil {
			return err
		}
		side, err := h.store.RecordGoal(ctx, row, ev.TeamID)
		if err != nil {
			return err
		}
		if side == "" {
			logger.Printf("[Persistence] Goal for match %s: team %s matches neither side (or match missing), score unchanged",
				env.MatchID, ev.TeamID)
		} else {
			logger.Printf("[Persistence] Goal for match %s: %s team scored at minute %d", env.MatchID, side, ev.Minute)
		}

	case models.KindMatchEnded:
		ev, err := models.DecodeMatchEnded(body)
		if err != nil {
			return err
		}
		found, err := h.store.RecordMatchEnded(ctx, row, ev.FinalHomeScore, ev.FinalAwayScore)
		if err != nil {
			return err
		}
		if found {
			logger.Printf("[Persistence] Match %s finished %d-%d", env.MatchID, ev.FinalHomeScore, ev.FinalAwayScore)
		} else {
			logger.Printf("[Persistence] match_ended for unknown match %s, event logged only", env.MatchID)
		}

	default:
		// 卡牌、换人只进事件日志，计数器归 Statistics 负责
		if err := h.store.RecordEvent(ctx, row); err != nil {
			return err
		}
		logger.Printf("[Persistence] Event %s (%s) logged for match %s", env.EventID, env.EventKind, env.MatchID)
	}

	return nil
}
