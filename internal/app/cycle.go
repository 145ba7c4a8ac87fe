package app

import (
	"context"
	"fmt"
	"time"

	"huddle/internal/ledger"
	"huddle/internal/logger"

	"golang.org/x/sync/errgroup"
)

// LeagueStatus 单联赛周期结果分档。
type LeagueStatus string

const (
	LeagueOK       LeagueStatus = "ok"
	LeagueDegraded LeagueStatus = "degraded"
	LeagueFailed   LeagueStatus = "failed"
)

// LeagueResult 一个联赛在本周期的处理结果。
type LeagueResult struct {
	League           string       `json:"league"`
	Team             string       `json:"team"`
	Status           LeagueStatus `json:"status"`
	RecommendationID string       `json:"recommendation_id,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	Err              string       `json:"error,omitempty"`
}

// CycleSummary 周期摘要：成功、降级与硬失败分别枚举。
type CycleSummary struct {
	Week            int            `json:"week"`
	StartedAt       time.Time      `json:"started_at"`
	Elapsed         time.Duration  `json:"elapsed"`
	Leagues         []LeagueResult `json:"leagues"`
	EventsProcessed int            `json:"events_processed"`
	Decisions       int            `json:"decisions"`
	Learned         bool           `json:"learned"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// Processable 至少一个联赛没有硬失败。全部失败时 cycle 命令以非零退出。
func (s *CycleSummary) Processable() bool {
	for _, l := range s.Leagues {
		if l.Status != LeagueFailed {
			return true
		}
	}
	return false
}

// RunCycle 对所有配置联赛跑一次决策周期。
// 联赛之间相互隔离：单个联赛失败只产生摘要里的失败条目，不拖垮其余联赛。
func (a *App) RunCycle(ctx context.Context, week int) (*CycleSummary, error) {
	if week <= 0 {
		return nil, fmt.Errorf("week 必须为正，收到 %d", week)
	}
	start := time.Now()
	summary := &CycleSummary{
		Week:      week,
		StartedAt: start.UTC(),
		Leagues:   make([]LeagueResult, len(a.cfg.Leagues)),
	}
	logger.Infof("cycle: 第 %d 周开始，共 %d 个联赛", week, len(a.cfg.Leagues))

	g, gctx := errgroup.WithContext(ctx)
	for i, lg := range a.cfg.Leagues {
		i, lg := i, lg
		g.Go(func() error {
			summary.Leagues[i] = a.analyzeLeague(gctx, lg, week)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	processed, decisions, warnings := a.processEvents(ctx, week)
	summary.EventsProcessed = processed
	summary.Decisions = decisions
	summary.Warnings = append(summary.Warnings, warnings...)

	if err := a.learn(ctx); err != nil {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("学习阶段失败: %v", err))
	} else {
		summary.Learned = true
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

// learn 把近期带结果的建议喂给挖掘器做模式学习与策略演化。
func (a *App) learn(ctx context.Context) error {
	recent, err := a.led.Recent(ctx, 200)
	if err != nil {
		return err
	}
	withOutcome := make([]ledger.Tracked, 0, len(recent))
	for _, t := range recent {
		if t.Outcome != nil {
			withOutcome = append(withOutcome, t)
		}
	}
	if len(withOutcome) == 0 {
		logger.Debugf("cycle: 尚无带结果的建议，跳过学习")
		return nil
	}
	if err := a.miner.Learn(ctx, withOutcome); err != nil {
		return err
	}
	if _, err := a.miner.EvolveStrategy(ctx, withOutcome); err != nil {
		return err
	}
	return nil
}
