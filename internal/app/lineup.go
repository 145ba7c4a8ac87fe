package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"huddle/internal/advisor"
	"huddle/internal/config"
	"huddle/internal/experiment"
	"huddle/internal/ledger"
	"huddle/internal/logger"
	"huddle/internal/season"
	"huddle/internal/types"

	"golang.org/x/sync/errgroup"
)

// lineupSwap 一次首发/替补调换建议。
type lineupSwap struct {
	Position string  `json:"position"`
	Start    string  `json:"start"`
	Sit      string  `json:"sit"`
	RankGap  int     `json:"rank_gap"`
	Tier     int     `json:"tier"`
	Score    float64 `json:"score"`
}

// analyzeLeague 为一个联赛生成本周阵容建议并落台账。
// 排名缺失只降级（少了专家信号），名单缺失才算硬失败。
func (a *App) analyzeLeague(ctx context.Context, lg config.LeagueConfig, week int) LeagueResult {
	result := LeagueResult{League: lg.ID, Team: lg.TeamID, Status: LeagueOK}

	roster, err := a.source.Roster(ctx, lg.ID, lg.TeamID, week)
	if err != nil {
		result.Status = LeagueFailed
		result.Err = err.Error()
		logger.Warnf("cycle: 联赛 %s 名单获取失败: %v", lg.ID, err)
		return result
	}

	rankings, missing := a.fetchRankings(ctx, roster, lg.ScoringFormat)
	if len(missing) > 0 {
		result.Status = LeagueDegraded
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("缺少 %s 排名，按降级数据运行", strings.Join(missing, "/")))
	}

	swaps := proposeSwaps(roster, rankings)
	rec := a.baselineRecommendation(ctx, lg, week, roster, swaps, len(missing) == 0)

	id, warnings, err := a.trackLineup(ctx, lg, rec)
	result.Warnings = append(result.Warnings, warnings...)
	if err != nil {
		result.Status = LeagueFailed
		result.Err = err.Error()
		return result
	}
	result.RecommendationID = id
	if len(result.Warnings) > 0 && result.Status == LeagueOK {
		result.Status = LeagueDegraded
	}
	return result
}

// fetchRankings 按名单里出现的位置并发拉取专家排名。
// 单个位置失败不阻塞其余位置，只返回缺失列表。
func (a *App) fetchRankings(ctx context.Context, roster types.RosterSnapshot, format string) (map[string]types.RankedPlayer, []string) {
	positions := make([]string, 0, 4)
	seen := map[string]bool{}
	for _, p := range roster.Players {
		pos := strings.ToUpper(strings.TrimSpace(p.Position))
		if pos == "" || seen[pos] {
			continue
		}
		seen[pos] = true
		positions = append(positions, pos)
	}
	sort.Strings(positions)

	var (
		mu      sync.Mutex
		ranked  = make(map[string]types.RankedPlayer)
		missing []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			list, err := a.source.Rankings(gctx, pos, format)
			if err != nil {
				logger.Warnf("cycle: %s 排名获取失败: %v", pos, err)
				mu.Lock()
				missing = append(missing, pos)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, r := range list {
				ranked[types.NormalizeName(r.Name)] = r
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(missing)
	return ranked, missing
}

// proposeSwaps 替补排名优于同位置首发时建议调换。
func proposeSwaps(roster types.RosterSnapshot, rankings map[string]types.RankedPlayer) []lineupSwap {
	type slotted struct {
		player types.PlayerRef
		rank   types.RankedPlayer
		known  bool
	}
	starters := map[string][]slotted{}
	bench := map[string][]slotted{}
	for _, p := range roster.Players {
		r, ok := rankings[types.NormalizeName(p.Name)]
		s := slotted{player: p, rank: r, known: ok}
		pos := strings.ToUpper(strings.TrimSpace(p.Position))
		if isBench(p.Slot) {
			bench[pos] = append(bench[pos], s)
		} else {
			starters[pos] = append(starters[pos], s)
		}
	}

	var swaps []lineupSwap
	for pos, benchPlayers := range bench {
		for _, b := range benchPlayers {
			if !b.known || unavailable(b.player.Status) {
				continue
			}
			for _, st := range starters[pos] {
				if !st.known {
					continue
				}
				gap := st.rank.Rank - b.rank.Rank
				if gap <= 0 {
					continue
				}
				swaps = append(swaps, lineupSwap{
					Position: pos,
					Start:    b.player.Name,
					Sit:      st.player.Name,
					RankGap:  gap,
					Tier:     b.rank.Tier,
					Score:    b.rank.Percentile - st.rank.Percentile,
				})
			}
		}
	}
	sort.Slice(swaps, func(i, j int) bool { return swaps[i].RankGap > swaps[j].RankGap })
	return swaps
}

func isBench(slot string) bool {
	switch strings.ToUpper(strings.TrimSpace(slot)) {
	case "BN", "BENCH", "IR", "TAXI":
		return true
	}
	return false
}

func unavailable(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "out", "ir", "suspended":
		return true
	}
	return false
}

// baselineRecommendation 规则基线：置信度从活动策略档案的阈值出发，
// 有可执行调换且排名信号完整时抬升。
func (a *App) baselineRecommendation(ctx context.Context, lg config.LeagueConfig, week int,
	roster types.RosterSnapshot, swaps []lineupSwap, fullRankings bool) ledger.Recommendation {
	profile, err := a.miner.ActiveProfile(ctx)
	if err != nil {
		logger.Warnf("cycle: 活动档案读取失败，使用默认阈值: %v", err)
	}
	confidence := profile.ConfidenceThresholds.Medium
	if confidence <= 0 {
		confidence = 60
	}
	if len(swaps) > 0 && swaps[0].RankGap >= 10 {
		confidence += 10
	}
	if !fullRankings {
		confidence -= 15
	}
	confidence = clampScore(confidence)

	phase := season.PhaseOf(week, a.cfg.Season)
	sources := []string{"fantasy_roster"}
	rankState := "partial"
	if fullRankings {
		sources = append(sources, "expert_rankings")
		rankState = "full"
	}
	return ledger.Recommendation{
		Kind:    ledger.KindLineup,
		Period:  week,
		League:  lg.ID,
		Team:    lg.TeamID,
		Payload: map[string]any{"swaps": swaps, "roster_size": len(roster.Players)},
		Confidence:  confidence,
		DataSources: sources,
		Context: map[string]string{
			"kind":     string(ledger.KindLineup),
			"phase":    string(phase),
			"rankings": rankState,
			"swaps":    strconv.Itoa(len(swaps)),
		},
	}
}

// trackLineup 应用模式增强与顾问意见后落台账。
// 配置了活动实验时走分支分流：control 纯规则，treatment 叠加顾问。
func (a *App) trackLineup(ctx context.Context, lg config.LeagueConfig, rec ledger.Recommendation) (string, []string, error) {
	var warnings []string

	enh, err := a.miner.EnhanceDecision(ctx, rec.Confidence, rec.Context)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("模式增强失败: %v", err))
	} else {
		rec.Confidence = enh.Confidence
		warnings = append(warnings, enh.Warnings...)
	}

	expID := strings.TrimSpace(a.cfg.Experiments.ActiveID)
	if expID != "" {
		v, err := a.coordinator.SelectVariant(ctx, expID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("实验 %s 分流失败，直接落账: %v", expID, err))
		} else {
			res, err := a.coordinator.ExecuteVariant(ctx, expID, v,
				func(ctx context.Context, v experiment.Variant) (ledger.Recommendation, error) {
					out := rec
					if v.ID == experiment.VariantTreatment {
						out = a.reviewWithAdvisor(ctx, lg, out, &warnings)
					}
					return out, nil
				})
			if err != nil {
				return "", warnings, err
			}
			return res.RecommendationID, warnings, nil
		}
	}

	rec = a.reviewWithAdvisor(ctx, lg, rec, &warnings)
	id, err := a.led.Track(ctx, rec)
	if err != nil {
		return "", warnings, err
	}
	return id, warnings, nil
}

// reviewWithAdvisor 顾问复核阵容建议：并入定性意见与置信度，记录用量成本。
// 顾问降级时原样返回规则建议，只追加一条降级警告。
func (a *App) reviewWithAdvisor(ctx context.Context, lg config.LeagueConfig, rec ledger.Recommendation, warnings *[]string) ledger.Recommendation {
	if !a.adv.Enabled() {
		return rec
	}
	resp, err := a.adv.Ask(ctx, advisor.Request{
		Purpose: "lineup_review",
		Context: fmt.Sprintf("复核联赛 %s 第 %d 周的阵容调换建议。", lg.ID, rec.Period),
		Data: map[string]any{
			"league":     lg.ID,
			"week":       rec.Period,
			"confidence": rec.Confidence,
			"payload":    rec.Payload,
		},
		Capabilities: []string{"start", "sit", "monitor"},
	})
	if err != nil || resp.Degraded {
		*warnings = append(*warnings, "顾问不可用，沿用规则建议")
		return rec
	}
	rec.AdvisorUsed = true
	rec.AdvisorIdentity = resp.Identity
	rec.CostEstimate = resp.Usage.Cost
	rec.Confidence = clampScore((rec.Confidence + resp.Confidence*100) / 2)
	if resp.Summary != "" {
		rec.Payload["advisor_summary"] = resp.Summary
	}
	return rec
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
