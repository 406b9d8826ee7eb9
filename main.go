package main

import (
	"os"
	"os/signal"
	"syscall"

	"matchfeed-service/config"
	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/services"
	"matchfeed-service/web"
)

func main() {
	logger.Println("Starting Match Feed Service...")

	// 加载配置
	cfg := config.Load()

	// 连接数据库
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// 运行数据库迁移
	if err := database.Migrate(db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	logger.Println("Database connected and migrated")

	store := database.NewMatchStore(db)

	// 创建WebSocket Hub
	wsHub := web.NewHub()
	go wsHub.Run()

	// 创建生产者
	producer := services.NewProducer(cfg)
	if err := producer.Connect(); err != nil {
		logger.Fatalf("Failed to connect producer: %v", err)
	}
	defer producer.Close()

	// 创建邮件通知器
	mailNotifier := services.NewMailNotifier(cfg.MailWebhook, cfg.MailFrom, cfg.MailTo)

	// 创建赔率引擎
	oddsEngine := services.NewOddsEngine(store)

	// 每个消费者角色一个独立的运行时实例
	consumers := []*services.Consumer{
		services.NewConsumer(cfg, services.NewPersistenceHandler(store)),
		services.NewConsumer(cfg, services.NewStatisticsHandler(store, cfg.StatsRetries, cfg.StatsRetryDelay)),
		services.NewConsumer(cfg, oddsEngine),
		services.NewConsumer(cfg, services.NewNotificationHandler(store, wsHub, cfg.NotifyDelay, cfg.NotifyRetryDelay)),
		services.NewConsumer(cfg, services.NewEmailHandler(mailNotifier)),
	}

	for _, consumer := range consumers {
		if err := consumer.Start(); err != nil {
			logger.Fatalf("Failed to start consumer: %v", err)
		}
	}

	logger.Println("All consumers started")

	// 启动Web服务器
	server := web.NewServer(cfg, store, producer, oddsEngine, wsHub)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Web server error: %v", err)
		}
	}()

	logger.Printf("Web server started on port %s", cfg.Port)
	logger.Println("Service is running. Press Ctrl+C to stop.")

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("Shutting down service...")

	// 先停消费者（排空在途消息），再停生产者和Web服务器
	for _, consumer := range consumers {
		consumer.Stop()
	}
	producer.Close()
	server.Stop()

	logger.Println("Service stopped")
}
