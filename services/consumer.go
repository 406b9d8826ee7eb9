package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"matchfeed-service/config"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// EventHandler 单个消费者角色的更新算法。
// Handle 返回 nil 表示消息被确认，返回错误表示消息被拒绝（不重新入队，直接丢弃）。
type EventHandler interface {
	// Name 角色名，用于日志和 consumer tag
	Name() string
	// Queue 角色独占的持久化队列名
	Queue() string
	// Bindings 队列的 routing key 绑定模式
	Bindings() []string
	// Handle 处理一条已解析信封的事件
	Handle(ctx context.Context, env models.Envelope, body []byte) error
}

// Consumer 通用消费者运行时：连接、声明拓扑、逐条分发、ack/reject。
// 每个角色一个实例，角色内部消息串行处理，同一比赛的派生状态更新天然互斥。
type Consumer struct {
	cfg     *config.Config
	handler EventHandler

	// mu 保护连接状态；重连会在锁内整体替换 conn/channel/done，
	// Stop 读取的永远是当前这一代的连接和投递循环
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan struct{} // 当前投递循环退出后关闭

	stopping chan struct{}
}

// NewConsumer 创建消费者运行时
func NewConsumer(cfg *config.Config, handler EventHandler) *Consumer {
	return &Consumer{
		cfg:      cfg,
		handler:  handler,
		stopping: make(chan struct{}),
	}
}

// Start 建立连接、声明拓扑并开始消费。声明全部幂等，可在每次启动时重复执行。
func (c *Consumer) Start() error {
	conn, channel, msgs, err := c.connect()
	if err != nil {
		return err
	}

	done, ok := c.install(conn, channel)
	if !ok {
		channel.Close()
		conn.Close()
		return fmt.Errorf("consumer already stopped")
	}

	// 监控连接状态，异常断开时自动重连
	go c.monitorConnection(conn)

	go c.handleMessages(msgs, done)
	return nil
}

// connect 建立连接并声明拓扑，不修改消费者状态；安装由调用方在锁内完成
func (c *Consumer) connect() (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(c.cfg.AMQPURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := channel.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := channel.ExchangeDeclare(
		c.cfg.ExchangeName,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	queue, err := channel.QueueDeclare(
		c.handler.Queue(),
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, pattern := range c.handler.Bindings() {
		if err := channel.QueueBind(queue.Name, pattern, c.cfg.ExchangeName, false, nil); err != nil {
			conn.Close()
			return nil, nil, nil, fmt.Errorf("failed to bind queue: %w", err)
		}
		logger.Printf("[%s] Bound %s to %s", c.handler.Name(), queue.Name, pattern)
	}

	msgs, err := channel.Consume(
		queue.Name,
		c.handler.Name(), // consumer tag
		false,            // auto-ack 关闭，处理结果决定 ack/reject
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, nil, fmt.Errorf("failed to consume: %w", err)
	}

	logger.Printf("[%s] Consuming from %s", c.handler.Name(), queue.Name)
	return conn, channel, msgs, nil
}

// install 在锁内把新连接设为当前代并分配新的 done 通道。
// 已经进入停止流程时拒绝安装，调用方负责关闭多余的连接。
func (c *Consumer) install(conn *amqp.Connection, channel *amqp.Channel) (chan struct{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.stopping:
		return nil, false
	default:
	}

	c.conn = conn
	c.channel = channel
	c.done = make(chan struct{})
	return c.done, true
}

// Stop 停止接收新消息，等待在途消息处理完，再关闭连接。
// 连接关闭后不会再有任何 ack 发出。
func (c *Consumer) Stop() {
	logger.Printf("[%s] Stopping consumer...", c.handler.Name())
	close(c.stopping)

	// stopping 关闭后重连不再安装新连接，这里拿到的就是最后一代
	c.mu.Lock()
	conn := c.conn
	channel := c.channel
	done := c.done
	c.mu.Unlock()

	if channel != nil {
		// 取消订阅，broker 停止投递；delivery 通道随后关闭
		if err := channel.Cancel(c.handler.Name(), false); err != nil {
			logger.Errorf("[%s] Failed to cancel consumer: %v", c.handler.Name(), err)
		}
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(c.cfg.HandlerTimeout + time.Second):
			logger.Errorf("[%s] Timed out waiting for in-flight messages", c.handler.Name())
		}
	}

	if channel != nil {
		channel.Close()
	}
	if conn != nil {
		conn.Close()
	}
	logger.Printf("[%s] Consumer stopped", c.handler.Name())
}

func (c *Consumer) handleMessages(msgs <-chan amqp.Delivery, done chan struct{}) {
	defer close(done)
	for msg := range msgs {
		c.processDelivery(msg)
	}
}

// processDelivery 消息状态机：Received → Parsed → Dispatched → {Ack | Reject}。
// 解析失败和处理失败都 reject 且不重新入队——没有死信队列，消息直接丢弃。
func (c *Consumer) processDelivery(msg amqp.Delivery) {
	env, err := models.ParseEnvelope(msg.Body)
	if err != nil {
		logger.Errorf("[%s] Rejecting malformed message (routing key %s): %v",
			c.handler.Name(), msg.RoutingKey, err)
		if err := msg.Reject(false); err != nil {
			logger.Errorf("[%s] Failed to reject: %v", c.handler.Name(), err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandlerTimeout)
	defer cancel()

	if err := c.handler.Handle(ctx, env, msg.Body); err != nil {
		logger.Errorf("[%s] Dropping event %s (%s) for match %s: %v",
			c.handler.Name(), env.EventID, env.EventKind, env.MatchID, err)
		if err := msg.Reject(false); err != nil {
			logger.Errorf("[%s] Failed to reject: %v", c.handler.Name(), err)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Errorf("[%s] Failed to ack event %s: %v", c.handler.Name(), env.EventID, err)
	}
}

// monitorConnection 监听指定连接的关闭通知，非主动停止时按指数退避重连
func (c *Consumer) monitorConnection(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-c.stopping:
		return
	case err := <-closed:
		if err == nil {
			return
		}
		logger.Errorf("[%s] Connection lost: %v", c.handler.Name(), err)
	}

	delay := time.Second
	const maxDelay = 60 * time.Second

	for {
		select {
		case <-c.stopping:
			return
		case <-time.After(delay):
		}

		logger.Printf("[%s] Reconnecting...", c.handler.Name())
		newConn, newChannel, msgs, err := c.connect()
		if err != nil {
			logger.Errorf("[%s] Reconnect failed: %v", c.handler.Name(), err)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		done, ok := c.install(newConn, newChannel)
		if !ok {
			// 重连期间进入了停止流程，新连接作废
			newChannel.Close()
			newConn.Close()
			return
		}

		// 重建消息循环和监控
		go c.monitorConnection(newConn)
		go c.handleMessages(msgs, done)
		logger.Printf("[%s] Reconnected", c.handler.Name())
		return
	}
}
