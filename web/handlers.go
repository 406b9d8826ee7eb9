package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/models"
	"matchfeed-service/services"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// accepted 发布成功的统一响应：broker 已接收，消费者是否处理不可见
func accepted(w http.ResponseWriter, env models.Envelope) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "accepted",
		"event_id": env.EventID,
		"match_id": env.MatchID,
	})
}

// handleHealth 健康检查
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleStartMatch 发布比赛开始事件
func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	var req services.StartMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MatchID = mux.Vars(r)["match_id"]

	if req.HomeTeamID == "" || req.AwayTeamID == "" || req.HomeTeamName == "" || req.AwayTeamName == "" {
		writeError(w, http.StatusBadRequest, "home/away team id and name are required")
		return
	}

	ev, err := s.producer.PublishMatchStarted(req)
	if err != nil {
		logger.Errorf("[Web] Failed to publish match_started: %v", err)
		writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}
	accepted(w, ev.Envelope)
}

// handleEndMatch 发布比赛结束事件
func (s *Server) handleEndMatch(w http.ResponseWriter, r *http.Request) {
	var req services.EndMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MatchID = mux.Vars(r)["match_id"]

	if req.FinalHomeScore < 0 || req.FinalAwayScore < 0 {
		writeError(w, http.StatusBadRequest, "final scores must not be negative")
		return
	}

	ev, err := s.producer.PublishMatchEnded(req)
	if err != nil {
		logger.Errorf("[Web] Failed to publish match_ended: %v", err)
		writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}
	accepted(w, ev.Envelope)
}

// handleGoal 发布进球事件
func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	var req services.GoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MatchID = mux.Vars(r)["match_id"]

	if req.TeamID == "" || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "team_id and player_id are required")
		return
	}

	ev, err := s.producer.PublishGoal(req)
	if err != nil {
		logger.Errorf("[Web] Failed to publish goal: %v", err)
		writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}
	accepted(w, ev.Envelope)
}

// handleCard 发布卡牌事件
func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	var req services.CardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MatchID = mux.Vars(r)["match_id"]

	if req.TeamID == "" || req.PlayerID == "" {
		writeError(w, http.StatusBadRequest, "team_id and player_id are required")
		return
	}
	if !req.CardType.Valid() {
		writeError(w, http.StatusBadRequest, "card_type must be yellow or red")
		return
	}

	ev, err := s.producer.PublishCard(req)
	if err != nil {
		logger.Errorf("[Web] Failed to publish card: %v", err)
		writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}
	accepted(w, ev.Envelope)
}

// handleSubstitution 发布换人事件
func (s *Server) handleSubstitution(w http.ResponseWriter, r *http.Request) {
	var req services.SubstitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.MatchID = mux.Vars(r)["match_id"]

	if req.TeamID == "" || req.PlayerInID == "" || req.PlayerOutID == "" {
		writeError(w, http.StatusBadRequest, "team_id, player_in_id and player_out_id are required")
		return
	}

	ev, err := s.producer.PublishSubstitution(req)
	if err != nil {
		logger.Errorf("[Web] Failed to publish substitution: %v", err)
		writeError(w, http.StatusBadGateway, "failed to publish event")
		return
	}
	accepted(w, ev.Envelope)
}

// handleListMatches 列出最近的比赛合并视图
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	views, err := s.store.ListMatchViews(r.Context(), limit)
	if err != nil {
		logger.Errorf("[Web] Failed to list matches: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list matches")
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetMatchStats 查询单场比赛的合并视图
func (s *Server) handleGetMatchStats(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	view, err := s.store.GetCombinedView(r.Context(), matchID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		logger.Errorf("[Web] Failed to get match stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get match stats")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetMatchEvents 查询一场比赛的事件日志
func (s *Server) handleGetMatchEvents(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.store.ListMatchEvents(r.Context(), matchID, limit)
	if err != nil {
		logger.Errorf("[Web] Failed to list match events: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list match events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// handleGetOdds 查询一场比赛的当前赔率
func (s *Server) handleGetOdds(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["match_id"]

	odds, err := s.odds.GetOdds(r.Context(), matchID)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	if err != nil {
		logger.Errorf("[Web] Failed to get odds: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get odds")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"match_id": matchID,
		"odds":     odds,
	})
}
