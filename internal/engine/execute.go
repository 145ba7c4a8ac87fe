package engine

import (
	"context"
	"fmt"

	"huddle/internal/ledger"
	"huddle/internal/logger"
)

// Executor 执行单个动作（换人、加减球员等）。默认实现只记录不外呼，
// 真正的联赛平台写操作由平台适配器实现。
type Executor interface {
	Execute(ctx context.Context, league, team string, a Action) error
}

// LogExecutor 把动作当作已确认记录下来。
type LogExecutor struct{}

func (LogExecutor) Execute(_ context.Context, league, team string, a Action) error {
	logger.Infof("engine: 执行动作 league=%s team=%s %s %s alt=%s",
		league, team, a.Verb, a.Subject, a.Alternative)
	return nil
}

// execute 在每个命中的联赛名单上顺序执行动作并逐个记录结果，随后按联赛
// 写入台账建议供事后追踪。单个动作失败记入结果但不阻断后续动作。
func (e *Engine) execute(ctx context.Context, d *Decision, ev Event, week int, matches []rosterMatch, appliedPatterns []string) {
	for _, m := range matches {
		for _, a := range d.Actions {
			res := ActionResult{League: m.League, Team: m.Team, Action: a, Success: true}
			if err := e.executor.Execute(ctx, m.League, m.Team, a); err != nil {
				res.Success = false
				res.Detail = err.Error()
				logger.Warnf("engine: 动作执行失败 league=%s %s %s: %v", m.League, a.Verb, a.Subject, err)
			}
			d.Results = append(d.Results, res)
		}
		recID, err := e.trackRecommendation(ctx, d, ev, week, m)
		if err != nil {
			logger.Errorf("engine: 自动执行决策 %s 在联赛 %s 的台账写入失败: %v", d.ID, m.League, err)
			continue
		}
		d.RecommendationIDs = append(d.RecommendationIDs, recID)
	}
	d.Executed = true

	if len(appliedPatterns) > 0 {
		if err := e.miner.RecordApplications(ctx, appliedPatterns); err != nil {
			logger.Warnf("engine: 模式应用计数更新失败: %v", err)
		}
	}
	logger.Infof("engine: 决策 %s 已自动执行（%d 个动作 × %d 个联赛）",
		d.ID, len(d.Actions), len(matches))
}

// trackRecommendation 自动执行的决策必须在台账留建议，结果才有处可记。
// 建议归属到实际命中的联赛/队伍，而不是配置里的第一个。
func (e *Engine) trackRecommendation(ctx context.Context, d *Decision, ev Event, week int, m rosterMatch) (string, error) {
	actions := make([]map[string]any, 0, len(d.Actions))
	for _, a := range d.Actions {
		actions = append(actions, map[string]any{
			"verb":        a.Verb,
			"subject":     a.Subject,
			"alternative": a.Alternative,
		})
	}
	rec := ledger.Recommendation{
		Kind:       ledger.KindLineup,
		Period:     week,
		League:     m.League,
		Team:       m.Team,
		Confidence: d.Confidence * 100,
		Payload: map[string]any{
			"decision_id": d.ID,
			"event_id":    ev.ID,
			"category":    ev.Category,
			"actions":     actions,
		},
		AdvisorUsed: true,
		DataSources: []string{"fantasy_roster", "event_feed"},
		Context: map[string]string{
			"severity": string(ev.Severity),
			"category": ev.Category,
		},
	}
	id, err := e.ledger.Track(ctx, rec)
	if err != nil {
		return "", fmt.Errorf("track auto decision: %w", err)
	}
	return id, nil
}
