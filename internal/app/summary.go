package app

import (
	"fmt"
	"strings"

	"huddle/internal/advisor"
	"huddle/internal/config"
)

// StartupSummary 启动时打印一次的配置摘要。
type StartupSummary struct {
	Env            string
	Leagues        []string
	DataBaseURL    string
	StaticFallback bool
	AdvisorEnabled bool
	StorePath      string
	HTTPAddr       string
	CycleInterval  string
	SeasonLength   int
	EventsPath     string
}

func buildStartupSummary(cfg *config.Config, adv *advisor.Service, staticFallback bool) *StartupSummary {
	leagues := make([]string, 0, len(cfg.Leagues))
	for _, lg := range cfg.Leagues {
		leagues = append(leagues, fmt.Sprintf("%s/%s (%s)", lg.ID, lg.TeamID, lg.ScoringFormat))
	}
	return &StartupSummary{
		Env:            cfg.App.Env,
		Leagues:        leagues,
		DataBaseURL:    cfg.Data.BaseURL,
		StaticFallback: staticFallback,
		AdvisorEnabled: adv.Enabled(),
		StorePath:      cfg.Ledger.Path,
		HTTPAddr:       cfg.App.HTTPAddr,
		CycleInterval:  cfg.App.CycleInterval,
		SeasonLength:   cfg.Season.Length,
		EventsPath:     cfg.Engine.EventsPath,
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("  环境: %s\n", s.Env)
	fmt.Printf("  受管联赛: %s\n", formatList(s.Leagues))
	fmt.Printf("  数据源: %s（静态降级: %v）\n", valueOrDash(s.DataBaseURL), s.StaticFallback)
	fmt.Printf("  顾问: %v\n", s.AdvisorEnabled)
	fmt.Printf("  台账: %s\n", s.StorePath)
	fmt.Printf("  HTTP: %s | 周期: %s | 赛季长度: %d 周\n", s.HTTPAddr, s.CycleInterval, s.SeasonLength)
	if s.EventsPath != "" {
		fmt.Printf("  事件文件: %s\n", s.EventsPath)
	}
	fmt.Println(strings.Repeat("=", 80))
}

// Print 打印周期摘要：成功、降级与硬失败分别列出。
func (s *CycleSummary) Print() {
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("第 %d 周决策周期 | 用时 %s\n", s.Week, s.Elapsed.Truncate(1e6))

	var ok, degraded, failed []LeagueResult
	for _, l := range s.Leagues {
		switch l.Status {
		case LeagueFailed:
			failed = append(failed, l)
		case LeagueDegraded:
			degraded = append(degraded, l)
		default:
			ok = append(ok, l)
		}
	}
	fmt.Printf("  联赛: %d 成功 / %d 降级 / %d 失败\n", len(ok), len(degraded), len(failed))
	for _, l := range ok {
		fmt.Printf("  [OK] %s rec=%s\n", l.League, l.RecommendationID)
	}
	for _, l := range degraded {
		fmt.Printf("  [降级] %s rec=%s（%s）\n", l.League, l.RecommendationID, formatList(l.Warnings))
	}
	for _, l := range failed {
		fmt.Printf("  [失败] %s: %s\n", l.League, l.Err)
	}
	if s.EventsProcessed > 0 {
		fmt.Printf("  事件: 摄取 %d，生成决策 %d\n", s.EventsProcessed, s.Decisions)
	}
	fmt.Printf("  学习阶段: %v\n", s.Learned)
	for _, w := range s.Warnings {
		fmt.Printf("  [警告] %s\n", w)
	}
	fmt.Println(strings.Repeat("-", 72))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func valueOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
