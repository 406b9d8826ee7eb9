package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"matchfeed-service/config"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// StartMatchRequest 开始比赛请求
type StartMatchRequest struct {
	MatchID      string `json:"match_id"`
	HomeTeamID   string `json:"home_team_id"`
	AwayTeamID   string `json:"away_team_id"`
	HomeTeamName string `json:"home_team_name"`
	AwayTeamName string `json:"away_team_name"`
}

// EndMatchRequest 结束比赛请求
type EndMatchRequest struct {
	MatchID        string `json:"match_id"`
	FinalHomeScore int    `json:"final_home_score"`
	FinalAwayScore int    `json:"final_away_score"`
}

// GoalRequest 进球请求
type GoalRequest struct {
	MatchID  string `json:"match_id"`
	TeamID   string `json:"team_id"`
	PlayerID string `json:"player_id"`
	Minute   int    `json:"minute"`
}

// CardRequest 红黄牌请求
type CardRequest struct {
	MatchID  string          `json:"match_id"`
	TeamID   string          `json:"team_id"`
	PlayerID string          `json:"player_id"`
	CardType models.CardType `json:"card_type"`
	Minute   int             `json:"minute"`
}

// SubstitutionRequest 换人请求
type SubstitutionRequest struct {
	MatchID     string `json:"match_id"`
	TeamID      string `json:"team_id"`
	PlayerInID  string `json:"player_in_id"`
	PlayerOutID string `json:"player_out_id"`
	Minute      int    `json:"minute"`
}

// Producer 把请求构造成类型化事件并发布到 topic exchange。
// 每个请求恰好发布一次，发布失败直接向调用方返回传输错误，不重试。
// 发布成功只表示 broker 已接收消息，不代表任何消费者已处理。
type Producer struct {
	cfg     *config.Config
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewProducer 创建生产者
func NewProducer(cfg *config.Config) *Producer {
	return &Producer{cfg: cfg}
}

// Connect 建立 AMQP 连接并声明 exchange（幂等）
func (p *Producer) Connect() error {
	conn, err := amqp.Dial(p.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP: %w", err)
	}
	p.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to create channel: %w", err)
	}
	p.channel = channel

	if err := channel.ExchangeDeclare(
		p.cfg.ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Printf("[Producer] Connected, exchange %s declared", p.cfg.ExchangeName)
	return nil
}

// Close 关闭 AMQP 连接
func (p *Producer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// newEnvelope 构造信封，分配新的 event_id 和当前时间
func newEnvelope(matchID string, kind models.EventKind) models.Envelope {
	return models.Envelope{
		EventID:   uuid.NewString(),
		MatchID:   matchID,
		EventKind: kind,
		EventTime: time.Now().UTC(),
	}
}

// PublishMatchStarted 发布比赛开始事件
func (p *Producer) PublishMatchStarted(req StartMatchRequest) (*models.MatchStartedEvent, error) {
	ev := &models.MatchStartedEvent{
		Envelope:     newEnvelope(req.MatchID, models.KindMatchStarted),
		HomeTeamID:   req.HomeTeamID,
		AwayTeamID:   req.AwayTeamID,
		HomeTeamName: req.HomeTeamName,
		AwayTeamName: req.AwayTeamName,
	}
	if err := p.publish(ev.Envelope, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishMatchEnded 发布比赛结束事件
func (p *Producer) PublishMatchEnded(req EndMatchRequest) (*models.MatchEndedEvent, error) {
	ev := &models.MatchEndedEvent{
		Envelope:       newEnvelope(req.MatchID, models.KindMatchEnded),
		FinalHomeScore: req.FinalHomeScore,
		FinalAwayScore: req.FinalAwayScore,
	}
	if err := p.publish(ev.Envelope, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishGoal 发布进球事件
func (p *Producer) PublishGoal(req GoalRequest) (*models.GoalEvent, error) {
	ev := &models.GoalEvent{
		Envelope: newEnvelope(req.MatchID, models.KindGoal),
		TeamID:   req.TeamID,
		PlayerID: req.PlayerID,
		Minute:   req.Minute,
	}
	if err := p.publish(ev.Envelope, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishCard 发布卡牌事件
func (p *Producer) PublishCard(req CardRequest) (*models.CardEvent, error) {
	ev := &models.CardEvent{
		Envelope: newEnvelope(req.MatchID, models.KindCard),
		TeamID:   req.TeamID,
		PlayerID: req.PlayerID,
		CardType: req.CardType,
		Minute:   req.Minute,
	}
	if err := p.publish(ev.Envelope, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// PublishSubstitution 发布换人事件
func (p *Producer) PublishSubstitution(req SubstitutionRequest) (*models.SubstitutionEvent, error) {
	ev := &models.SubstitutionEvent{
		Envelope:    newEnvelope(req.MatchID, models.KindSubstitution),
		TeamID:      req.TeamID,
		PlayerInID:  req.PlayerInID,
		PlayerOutID: req.PlayerOutID,
		Minute:      req.Minute,
	}
	if err := p.publish(ev.Envelope, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func (p *Producer) publish(env models.Envelope, payload interface{}) error {
	if p.channel == nil {
		return fmt.Errorf("producer not connected")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := models.RoutingKey(env.MatchID, env.EventKind)

	err = p.channel.Publish(
		p.cfg.ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // 消息持久化，broker 重启不丢失
			MessageId:    env.EventID,
			Timestamp:    env.EventTime,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	logger.Printf("[Producer] Published %s for match %s (routing key: %s)", env.EventKind, env.MatchID, routingKey)
	return nil
}
