package services

import (
	"context"
	"time"

	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// StatisticsStore Statistics 消费者需要的存储操作
type StatisticsStore interface {
	IncrementStatistics(ctx context.Context, matchID string, d database.StatDelta) (bool, error)
}

// StatisticsHandler 维护派生的比赛计数器。
// match_started 被显式忽略：零值统计行由 Persistence 随比赛记录一起创建，
// 这里只做递增，避免创建与更新的竞争。
type StatisticsHandler struct {
	store      StatisticsStore
	retries    int
	retryDelay time.Duration
}

// NewStatisticsHandler 创建统计处理器
func NewStatisticsHandler(store StatisticsStore, retries int, retryDelay time.Duration) *StatisticsHandler {
	return &StatisticsHandler{
		store:      store,
		retries:    retries,
		retryDelay: retryDelay,
	}
}

func (h *StatisticsHandler) Name() string { return "Statistics" }

func (h *StatisticsHandler) Queue() string { return "queue.statistics" }

func (h *StatisticsHandler) Bindings() []string {
	return []string{models.RoutingPatternAll}
}

// Handle 递增 total_events 及事件类型对应的计数器。
// 统计行还不存在时做有限次固定间隔重试（等待 Persistence 落库），
// 用尽后记日志并丢弃——这条事件的计数永久丢失。
func (h *StatisticsHandler) Handle(ctx context.Context, env models.Envelope, body []byte) error {
	if env.EventKind == models.KindMatchStarted {
		logger.Printf("[Statistics] Ignoring match_started for %s (row is created by persistence)", env.MatchID)
		return nil
	}

	delta, err := h.deltaFor(env.EventKind, body)
	if err != nil {
		return err
	}

	found, err := h.store.IncrementStatistics(ctx, env.MatchID, delta)
	if err != nil {
		return err
	}

	for attempt := 0; !found && attempt < h.retries; attempt++ {
		logger.Printf("[Statistics] No statistics row for match %s yet, retrying in %v (%d attempts left)",
			env.MatchID, h.retryDelay, h.retries-attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.retryDelay):
		}

		found, err = h.store.IncrementStatistics(ctx, env.MatchID, delta)
		if err != nil {
			return err
		}
	}

	if !found {
		logger.Errorf("[Statistics] Statistics row for match %s never appeared, dropping event %s (%s)",
			env.MatchID, env.EventID, env.EventKind)
		return nil
	}

	logger.Printf("[Statistics] Updated counters for match %s (%s)", env.MatchID, env.EventKind)
	return nil
}

// deltaFor 把事件类型映射为计数器增量
func (h *StatisticsHandler) deltaFor(kind models.EventKind, body []byte) (database.StatDelta, error) {
	switch kind {
	case models.KindGoal:
		return database.StatDelta{Goals: 1}, nil
	case models.KindCard:
		ev, err := models.DecodeCard(body)
		if err != nil {
			return database.StatDelta{}, err
		}
		if ev.CardType == models.CardRed {
			return database.StatDelta{RedCards: 1}, nil
		}
		return database.StatDelta{YellowCards: 1}, nil
	case models.KindSubstitution:
		return database.StatDelta{Substitutions: 1}, nil
	default:
		// match_ended 只计入 total_events
		return database.StatDelta{}, nil
	}
}
