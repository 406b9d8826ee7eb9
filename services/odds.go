package services

import (
	"context"
	"errors"
	"math"
	"sync"

	"matchfeed-service/database"
	"matchfeed-service/logger"
	"matchfeed-service/models"
)

// MatchReader 赔率引擎读取权威比赛记录的接口
type MatchReader interface {
	GetMatch(ctx context.Context, matchID string) (*database.Match, error)
}

// OddsState 一场比赛的三向赔率
type OddsState struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

const (
	oddsFloor    = 1.01   // 任何价格的下限
	oddsSettled  = 1000.0 // 终局时落败结果的哨兵价格
	defaultHome  = 2.5
	defaultDraw  = 3.5
	defaultAway  = 3.0
	baseWinBoost = 1.2 // 领先方价格收缩的底数（按净胜球指数放大）
	baseLoseRise = 1.4 // 落后方价格膨胀的底数
)

// OddsEngine 每场比赛的增量赔率模型，只保存在进程内存。
// 所有访问都经过这一个实例，没有包级可变状态；进程重启后
// 首次访问会重新按默认值初始化，这不是错误。
// 同时实现 EventHandler，作为 Odds 消费者角色接入运行时。
type OddsEngine struct {
	mu    sync.Mutex
	odds  map[string]OddsState
	store MatchReader
}

// NewOddsEngine 创建赔率引擎
func NewOddsEngine(store MatchReader) *OddsEngine {
	return &OddsEngine{
		odds:  make(map[string]OddsState),
		store: store,
	}
}

func (e *OddsEngine) Name() string { return "Odds" }

func (e *OddsEngine) Queue() string { return "queue.odds" }

func (e *OddsEngine) Bindings() []string {
	patterns := make([]string, 0, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		patterns = append(patterns, models.RoutingPattern(kind))
	}
	return patterns
}

// clamp 保证价格不低于下限
func clamp(price float64) float64 {
	return math.Max(oddsFloor, price)
}

// initLocked 惰性初始化默认赔率，调用方必须持有锁
func (e *OddsEngine) initLocked(matchID string) OddsState {
	state := OddsState{HomeWin: defaultHome, Draw: defaultDraw, AwayWin: defaultAway}
	e.odds[matchID] = state
	logger.Printf("[Odds] Initialized odds for match %s: home %.2f, draw %.2f, away %.2f",
		matchID, state.HomeWin, state.Draw, state.AwayWin)
	return state
}

// Handle 按事件类型调整赔率
func (e *OddsEngine) Handle(ctx context.Context, env models.Envelope, body []byte) error {
	switch env.EventKind {
	case models.KindMatchStarted:
		e.mu.Lock()
		state, ok := e.odds[env.MatchID]
		if !ok {
			state = e.initLocked(env.MatchID)
		}
		e.mu.Unlock()
		logger.Printf("[Odds] Match %s started, current odds: home %.2f, draw %.2f, away %.2f",
			env.MatchID, state.HomeWin, state.Draw, state.AwayWin)
		return nil

	case models.KindGoal:
		ev, err := models.DecodeGoal(body)
		if err != nil {
			return err
		}
		return e.applyGoal(ctx, ev)

	case models.KindCard:
		ev, err := models.DecodeCard(body)
		if err != nil {
			return err
		}
		e.applyCard(ev)
		return nil

	case models.KindSubstitution:
		ev, err := models.DecodeSubstitution(body)
		if err != nil {
			return err
		}
		e.applySubstitution(ev)
		return nil

	case models.KindMatchEnded:
		ev, err := models.DecodeMatchEnded(body)
		if err != nil {
			return err
		}
		e.applyMatchEnded(ev)
		return nil
	}
	return nil
}

// applyGoal 进球调整：从权威存储取进球前比分，推算进球后的净胜球，
// 结合时间因子收缩领先方和平局价格、抬高落后方价格。
func (e *OddsEngine) applyGoal(ctx context.Context, ev *models.GoalEvent) error {
	match, err := e.store.GetMatch(ctx, ev.MatchID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Errorf("[Odds] Match %s not found, cannot adjust odds for goal", ev.MatchID)
			return nil
		}
		return err
	}

	// 存储里的比分是本次进球前的比分，先推算进球后的比分
	newHome, newAway := match.HomeScore, match.AwayScore
	switch ev.TeamID {
	case match.HomeTeamID:
		newHome++
	case match.AwayTeamID:
		newAway++
	}

	goalDiff := float64(newHome - newAway)
	timeFactor := math.Min(float64(ev.Minute), 90) / 90.0

	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.odds[ev.MatchID]
	if !ok {
		state = e.initLocked(ev.MatchID)
	}

	switch {
	case goalDiff > 0: // 主队领先
		impact := math.Pow(baseWinBoost, goalDiff) * (1 + timeFactor)
		state.HomeWin = clamp(state.HomeWin / impact)
		state.AwayWin = clamp(state.AwayWin * (impact * baseLoseRise / baseWinBoost))
		state.Draw = clamp(state.Draw * (impact / 1.5))
	case goalDiff < 0: // 客队领先
		impact := math.Pow(baseWinBoost, -goalDiff) * (1 + timeFactor)
		state.AwayWin = clamp(state.AwayWin / impact)
		state.HomeWin = clamp(state.HomeWin * (impact * baseLoseRise / baseWinBoost))
		state.Draw = clamp(state.Draw * (impact / 1.5))
	default: // 扳平
		impact := 1.1 * (1 + timeFactor)
		state.Draw = clamp(state.Draw / impact)
		state.HomeWin = clamp(state.HomeWin * 1.1)
		state.AwayWin = clamp(state.AwayWin * 1.1)
	}

	e.odds[ev.MatchID] = state
	logger.Printf("[Odds] Goal at minute %d in match %s, odds now: home %.2f, draw %.2f, away %.2f",
		ev.Minute, ev.MatchID, state.HomeWin, state.Draw, state.AwayWin)
	return nil
}

// applyCard 红牌比黄牌对价格的冲击更大，与哪支球队吃牌无关
func (e *OddsEngine) applyCard(ev *models.CardEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.odds[ev.MatchID]
	if !ok {
		state = e.initLocked(ev.MatchID)
	}

	if ev.CardType == models.CardRed {
		state.HomeWin = clamp(state.HomeWin * 1.15)
		state.AwayWin = clamp(state.AwayWin * 1.15)
		state.Draw = clamp(state.Draw * 1.10)
	} else {
		state.HomeWin = clamp(state.HomeWin * 1.05)
		state.AwayWin = clamp(state.AwayWin * 1.05)
		state.Draw = clamp(state.Draw * 1.02)
	}

	e.odds[ev.MatchID] = state
	logger.Printf("[Odds] %s card in match %s, odds now: home %.2f, draw %.2f, away %.2f",
		ev.CardType, ev.MatchID, state.HomeWin, state.Draw, state.AwayWin)
}

// applySubstitution 换人带来轻微的不确定性，三个价格小幅上浮
func (e *OddsEngine) applySubstitution(ev *models.SubstitutionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.odds[ev.MatchID]
	if !ok {
		state = e.initLocked(ev.MatchID)
	}

	state.HomeWin = clamp(state.HomeWin * 1.02)
	state.AwayWin = clamp(state.AwayWin * 1.02)
	state.Draw = clamp(state.Draw * 1.01)

	e.odds[ev.MatchID] = state
	logger.Printf("[Odds] Substitution in match %s, odds now: home %.2f, draw %.2f, away %.2f",
		ev.MatchID, state.HomeWin, state.Draw, state.AwayWin)
}

// applyMatchEnded 终局折叠：胜方价格落到下限，其余跳到哨兵值
func (e *OddsEngine) applyMatchEnded(ev *models.MatchEndedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var state OddsState
	switch {
	case ev.FinalHomeScore > ev.FinalAwayScore:
		state = OddsState{HomeWin: oddsFloor, Draw: oddsSettled, AwayWin: oddsSettled}
	case ev.FinalAwayScore > ev.FinalHomeScore:
		state = OddsState{HomeWin: oddsSettled, Draw: oddsSettled, AwayWin: oddsFloor}
	default:
		state = OddsState{HomeWin: oddsSettled, Draw: oddsFloor, AwayWin: oddsSettled}
	}

	e.odds[ev.MatchID] = state
	logger.Printf("[Odds] Match %s ended %d-%d, odds settled: home %.2f, draw %.2f, away %.2f",
		ev.MatchID, ev.FinalHomeScore, ev.FinalAwayScore, state.HomeWin, state.Draw, state.AwayWin)
}

// GetOdds 查询一场比赛的当前赔率。
// 内存中没有时回查权威存储：比赛存在则惰性初始化默认赔率，
// 不存在则返回 database.ErrNotFound。
func (e *OddsEngine) GetOdds(ctx context.Context, matchID string) (OddsState, error) {
	e.mu.Lock()
	state, ok := e.odds[matchID]
	e.mu.Unlock()
	if ok {
		return state, nil
	}

	if _, err := e.store.GetMatch(ctx, matchID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return OddsState{}, database.ErrNotFound
		}
		return OddsState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := e.odds[matchID]; ok {
		return state, nil
	}
	return e.initLocked(matchID), nil
}
