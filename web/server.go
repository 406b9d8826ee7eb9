package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"matchfeed-service/config"
	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/services"
)

// Server HTTP 入口：事件发布端点、派生视图查询和 WebSocket 推送
type Server struct {
	config     *config.Config
	store      *database.MatchStore
	producer   *services.Producer
	odds       *services.OddsEngine
	wsHub      *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer 创建Web服务器
func NewServer(cfg *config.Config, store *database.MatchStore, producer *services.Producer, odds *services.OddsEngine, hub *Hub) *Server {
	return &Server{
		config:   cfg,
		store:    store,
		producer: producer,
		odds:     odds,
		wsHub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源(生产环境需要限制)
			},
		},
	}
}

// Start 启动HTTP服务器
func (s *Server) Start() error {
	router := mux.NewRouter()

	// API路由
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// 事件发布端点（生产者触发面）
	api.HandleFunc("/matches/{match_id}/start", s.handleStartMatch).Methods("POST")
	api.HandleFunc("/matches/{match_id}/end", s.handleEndMatch).Methods("POST")
	api.HandleFunc("/matches/{match_id}/goal", s.handleGoal).Methods("POST")
	api.HandleFunc("/matches/{match_id}/card", s.handleCard).Methods("POST")
	api.HandleFunc("/matches/{match_id}/substitution", s.handleSubstitution).Methods("POST")

	// 派生视图查询
	api.HandleFunc("/matches", s.handleListMatches).Methods("GET")
	api.HandleFunc("/matches/{match_id}/stats", s.handleGetMatchStats).Methods("GET")
	api.HandleFunc("/matches/{match_id}/events", s.handleGetMatchEvents).Methods("GET")
	api.HandleFunc("/matches/{match_id}/odds", s.handleGetOdds).Methods("GET")

	// WebSocket路由
	router.HandleFunc("/ws", s.handleWebSocket)

	// CORS配置
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Stop 优雅停止HTTP服务器
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("[Web] Server shutdown error: %v", err)
	}
}

// handleWebSocket 升级连接并注册客户端
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("[Web] WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:     s.wsHub,
		conn:    conn,
		send:    make(chan []byte, 256),
		matches: make(map[string]bool),
	}

	s.wsHub.register <- client

	go client.writePump()
	go client.readPump()
}
