package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// NotificationPusher 实时推送传输的抽象，避免依赖 web 包
type NotificationPusher interface {
	// PushToMatch 推送给订阅了该比赛分组的客户端
	PushToMatch(matchID string, message []byte)
	// PushToAll 推送给全部客户端
	PushToAll(message []byte)
}

// NotificationStore Notification 消费者需要的存储操作
type NotificationStore interface {
	GetCombinedView(ctx context.Context, matchID string) (*database.MatchView, error)
}

// NotificationMessage 推送给客户端的消息
type NotificationMessage struct {
	Type        string              `json:"type"`
	Data        *database.MatchView `json:"data"`
	LatestEvent interface{}         `json:"latest_event,omitempty"`
}

// NotificationHandler 读取收敛后的比赛+统计视图并推送给订阅者。
// 收到事件后先等一个固定延迟，提高 Persistence/Statistics 已经落库的概率——
// 这是显式的最终一致性折衷，不是保证；读不到就记日志丢弃，不重试入队。
type NotificationHandler struct {
	store      NotificationStore
	pusher     NotificationPusher
	delay      time.Duration
	retryDelay time.Duration
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(store NotificationStore, pusher NotificationPusher, delay, retryDelay time.Duration) *NotificationHandler {
	return &NotificationHandler{
		store:      store,
		pusher:     pusher,
		delay:      delay,
		retryDelay: retryDelay,
	}
}

func (h *NotificationHandler) Name() string { return "Notifications" }

func (h *NotificationHandler) Queue() string { return "queue.notifications" }

func (h *NotificationHandler) Bindings() []string {
	return []string{models.RoutingPatternAll}
}

// Handle 组合视图并推送。match_started / match_ended 广播给所有客户端，
// 其余推送给比赛分组；进球额外作为比分更新广播。
func (h *NotificationHandler) Handle(ctx context.Context, env models.Envelope, body []byte) error {
	if err := sleepCtx(ctx, h.delay); err != nil {
		return err
	}

	view, err := h.store.GetCombinedView(ctx, env.MatchID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Printf("[Notifications] View for match %s not ready, retrying once in %v", env.MatchID, h.retryDelay)
		if err := sleepCtx(ctx, h.retryDelay); err != nil {
			return err
		}
		view, err = h.store.GetCombinedView(ctx, env.MatchID)
	}
	if errors.Is(err, database.ErrNotFound) {
		logger.Errorf("[Notifications] No data for match %s, dropping notification for event %s", env.MatchID, env.EventID)
		return nil
	}
	if err != nil {
		return err
	}

	msg := NotificationMessage{
		Type:        string(env.EventKind),
		Data:        view,
		LatestEvent: decodeLatestEvent(env.EventKind, body),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	switch env.EventKind {
	case models.KindMatchStarted, models.KindMatchEnded:
		h.pusher.PushToAll(payload)
		logger.Printf("[Notifications] Broadcast %s for match %s", env.EventKind, env.MatchID)
	default:
		h.pusher.PushToMatch(env.MatchID, payload)
		if env.EventKind == models.KindGoal {
			// 比分变化对所有客户端可见
			scoreMsg := NotificationMessage{Type: "score_updated", Data: view}
			if scorePayload, err := json.Marshal(scoreMsg); err == nil {
				h.pusher.PushToAll(scorePayload)
			}
		}
		logger.Printf("[Notifications] Pushed %s update for match %s", env.EventKind, env.MatchID)
	}

	return nil
}

// decodeLatestEvent 附带触发本次通知的事件详情
func decodeLatestEvent(kind models.EventKind, body []byte) interface{} {
	switch kind {
	case models.KindGoal:
		if ev, err := models.DecodeGoal(body); err == nil {
			return ev
		}
	case models.KindCard:
		if ev, err := models.DecodeCard(body); err == nil {
			return ev
		}
	case models.KindSubstitution:
		if ev, err := models.DecodeSubstitution(body); err == nil {
			return ev
		}
	}
	return nil
}

// sleepCtx 可被取消的延迟
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
