package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"huddle/internal/advisor"
	"huddle/internal/config"
	"huddle/internal/gateway/fantasy"
	"huddle/internal/gateway/notifier"
	"huddle/internal/ledger"
	"huddle/internal/logger"
	"huddle/internal/pattern"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// 中文说明：
// 事件状态机：received -> filtered-out | candidate -> no-op |
// decision-generated -> auto-executed | escalated。
// 被过滤或无受影响名单的事件不留任何台账痕迹；生成的决策一律落审计。

// Engine 实时事件决策引擎。依赖全部显式注入，没有包级单例。
type Engine struct {
	cfg      config.EngineConfig
	leagues  []config.LeagueConfig
	source   fantasy.Source
	advisor  *advisor.Service
	miner    *pattern.Miner
	ledger   *ledger.Ledger
	audits   AuditStore
	notify   notifier.TextNotifier
	executor Executor

	now func() time.Time
}

func New(cfg config.EngineConfig, leagues []config.LeagueConfig, source fantasy.Source,
	adv *advisor.Service, miner *pattern.Miner, led *ledger.Ledger,
	audits AuditStore, notify notifier.TextNotifier, executor Executor) *Engine {
	if executor == nil {
		executor = &LogExecutor{}
	}
	if notify == nil {
		notify = notifier.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		leagues:  leagues,
		source:   source,
		advisor:  adv,
		miner:    miner,
		ledger:   led,
		audits:   audits,
		notify:   notify,
		executor: executor,
		now:      time.Now,
	}
}

// SetClock 测试用：替换时间源。
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// rosterMatch 事件主角命中的联赛/队伍。
type rosterMatch struct {
	League string
	Team   string
}

// HandleEvent 处理单个事件。被过滤或无命中的事件返回 (nil, nil)。
func (e *Engine) HandleEvent(ctx context.Context, ev Event, week int) (*Decision, error) {
	if !e.passesFilter(ev) {
		logger.Debugf("engine: 事件 %s 被过滤 severity=%s source_conf=%.2f",
			ev.ID, ev.Severity, ev.SourceConfidence)
		return nil, nil
	}
	matches, err := e.resolveAffected(ctx, ev, week)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		logger.Debugf("engine: 事件 %s 未命中任何名单，丢弃", ev.ID)
		return nil, nil
	}

	decision, applied, err := e.buildDecision(ctx, ev, matches)
	if err != nil {
		return nil, err
	}

	switch {
	case len(decision.Actions) == 0:
		// 顾问没给出可执行动作，只作情报记录，不打扰人工。
		decision.Type = DecisionInfoOnly
		logger.Infof("engine: 决策 %s 无可执行动作，仅记录", decision.ID)
	case decision.Priority == PriorityCritical && decision.Confidence > e.cfg.AutoExecConfidence:
		decision.Type = DecisionAutoAction
		e.execute(ctx, decision, ev, week, matches, applied)
	default:
		decision.Type = DecisionEscalation
		e.escalate(decision, ev)
	}

	if err := e.audits.InsertDecision(ctx, *decision); err != nil {
		logger.Errorf("engine: 决策审计写入失败 decision=%s: %v", decision.ID, err)
	}
	return decision, nil
}

// passesFilter 低于最小严重度或来源置信度的事件直接丢弃。
func (e *Engine) passesFilter(ev Event) bool {
	minSeverity := Severity(e.cfg.MinSeverity)
	if minSeverity == "" {
		minSeverity = SeverityMedium
	}
	if !ev.Severity.AtLeast(minSeverity) {
		return false
	}
	return ev.SourceConfidence >= e.cfg.MinSourceConfidence
}

// resolveAffected 并发查询每个联赛的名单做规范化姓名匹配。
// 单个联赛取数失败只记告警，不拖垮其它联赛。
func (e *Engine) resolveAffected(ctx context.Context, ev Event, week int) ([]rosterMatch, error) {
	var (
		mu      sync.Mutex
		matches []rosterMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, lg := range e.leagues {
		lg := lg
		g.Go(func() error {
			snap, err := e.source.Roster(gctx, lg.ID, lg.TeamID, week)
			if err != nil {
				logger.Warnf("engine: 联赛 %s 名单获取失败，跳过该联赛: %v", lg.ID, err)
				return nil
			}
			if snap.Contains(ev.SubjectName) {
				mu.Lock()
				matches = append(matches, rosterMatch{League: lg.ID, Team: lg.TeamID})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return matches, nil
}

// buildDecision 问询顾问、套用模式增强并计算优先级与截止时间。
func (e *Engine) buildDecision(ctx context.Context, ev Event, matches []rosterMatch) (*Decision, []string, error) {
	leagues := make([]string, 0, len(matches))
	subjects := []string{ev.SubjectName}
	for _, m := range matches {
		leagues = append(leagues, m.League)
	}

	resp, err := e.advisor.Ask(ctx, advisor.Request{
		Purpose: "event_decision",
		Context: fmt.Sprintf("事件：%s。当事球员 %s 出现在 %d 个受管名单中。",
			ev.Description, ev.SubjectName, len(matches)),
		Data: map[string]any{
			"subject":          ev.SubjectName,
			"severity":         string(ev.Severity),
			"category":         ev.Category,
			"time_to_deadline": ev.TimeToDeadline.String(),
			"leagues":          leagues,
		},
		Capabilities: []string{"start", "sit", "add", "drop", "trade", "monitor"},
	})
	if err != nil {
		return nil, nil, err
	}

	actions := e.actionsFromSuggestions(ev, resp.Suggestions)
	confidence := resp.Confidence

	// 模式增强在 0~100 刻度上工作。
	enh, err := e.miner.EnhanceDecision(ctx, confidence*100, map[string]string{
		"kind":     string(ledger.KindLineup),
		"severity": string(ev.Severity),
		"category": ev.Category,
	})
	if err != nil {
		logger.Warnf("engine: 模式增强失败，沿用原始置信度: %v", err)
	} else {
		confidence = enh.Confidence / 100
	}

	now := e.now()
	eventTime := now.Add(ev.TimeToDeadline)
	deadline := eventTime.Add(-time.Duration(e.cfg.SafetyMarginMinutes) * time.Minute)

	d := &Decision{
		ID:               uuid.NewString(),
		EventID:          ev.ID,
		Priority:         e.priorityOf(ev),
		Deadline:         deadline,
		AffectedSubjects: subjects,
		Actions:          actions,
		Confidence:       confidence,
		EstimatedImpact:  estimateImpact(ev, len(matches)),
		Rationale:        append([]string{resp.Summary}, enh.Rationale...),
		Warnings:         enh.Warnings,
		CreatedAt:        now,
	}
	if resp.Degraded {
		d.Warnings = append(d.Warnings, "顾问不可用，按规则降级生成")
	}
	return d, enh.Applied, nil
}

// actionsFromSuggestions 建议按序转动作，超出上限的截断。
func (e *Engine) actionsFromSuggestions(ev Event, suggestions []advisor.Suggestion) []Action {
	max := e.cfg.MaxActionsPerDecision
	if max <= 0 {
		max = 5
	}
	urgencyBase := float64(ev.Severity.rank()+1) / 4
	actions := make([]Action, 0, len(suggestions))
	for _, s := range suggestions {
		if len(actions) >= max {
			break
		}
		if strings.TrimSpace(s.Subject) == "" {
			continue
		}
		actions = append(actions, Action{
			Verb:         s.Action,
			Subject:      s.Subject,
			Alternative:  s.Alternative,
			Rationale:    s.Rationale,
			UrgencyScore: clampUnit(urgencyBase * s.Confidence),
		})
	}
	return actions
}

// priorityOf critical 需要 severity=critical 且剩余时间在临界窗口内。
func (e *Engine) priorityOf(ev Event) Priority {
	window := time.Duration(e.cfg.CriticalWindowHours * float64(time.Hour))
	if window <= 0 {
		window = 2 * time.Hour
	}
	switch {
	case ev.Severity == SeverityCritical && ev.TimeToDeadline < window:
		return PriorityCritical
	case ev.Severity == SeverityCritical || ev.Severity == SeverityHigh:
		return PriorityHigh
	case ev.Severity == SeverityMedium:
		return PriorityMedium
	}
	return PriorityLow
}

func estimateImpact(ev Event, matchCount int) float64 {
	return float64(ev.Severity.rank()+1) * float64(matchCount)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// escalate 推送升级告警。决策仍会落审计，但不产生台账建议。
func (e *Engine) escalate(d *Decision, ev Event) {
	lines := make([]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		line := fmt.Sprintf("%s %s", a.Verb, a.Subject)
		if a.Alternative != "" {
			line += " -> " + a.Alternative
		}
		if a.Rationale != "" {
			line += "（" + a.Rationale + "）"
		}
		lines = append(lines, line)
	}
	level := notifier.AlertWarning
	if d.Priority == PriorityCritical {
		level = notifier.AlertCritical
	}
	deadline := d.Deadline
	notifier.SendAlert(e.notify, notifier.Alert{
		Level:    level,
		Title:    fmt.Sprintf("需要人工裁决：%s", ev.Description),
		Message:  fmt.Sprintf("优先级 %s，置信度 %.0f%%", d.Priority, d.Confidence*100),
		Actions:  lines,
		Deadline: &deadline,
	})
	logger.Infof("engine: 决策 %s 已升级（priority=%s conf=%.2f）", d.ID, d.Priority, d.Confidence)
}
