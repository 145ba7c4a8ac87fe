package fantasy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"huddle/internal/logger"
	"huddle/internal/types"
)

// Source 引擎消费的数据源抽象。
type Source interface {
	Roster(ctx context.Context, leagueID, teamID string, week int) (types.RosterSnapshot, error)
	Rankings(ctx context.Context, position, scoringFormat string) ([]types.RankedPlayer, error)
}

// staticDataset 降级数据集的文件格式。键分别为 "league/team" 与 "position/format"。
type staticDataset struct {
	Rosters  map[string]rosterResponse  `json:"rosters"`
	Rankings map[string][]rankingEntry  `json:"rankings"`
}

// StaticSource 从本地 JSON 提供名单/排名，作为远端不可用时的降级数据。
type StaticSource struct {
	data staticDataset
	path string
}

func NewStaticSource(path string) (*StaticSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: static dataset: %v", ErrDataUnavailable, err)
	}
	var data staticDataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: static dataset parse: %v", ErrDataUnavailable, err)
	}
	return &StaticSource{data: data, path: path}, nil
}

func (s *StaticSource) Roster(_ context.Context, leagueID, teamID string, week int) (types.RosterSnapshot, error) {
	entry, ok := s.data.Rosters[leagueID+"/"+teamID]
	if !ok || len(entry.Players) == 0 {
		return types.RosterSnapshot{}, fmt.Errorf("%w: no static roster for %s/%s", ErrDataUnavailable, leagueID, teamID)
	}
	snap := types.RosterSnapshot{LeagueID: leagueID, TeamID: teamID, Week: week, FetchedAt: time.Now().UTC()}
	for _, p := range entry.Players {
		snap.Players = append(snap.Players, types.PlayerRef{
			Name: p.Name, Position: p.Position, NFLTeam: p.NFLTeam, Slot: p.Slot, Status: p.Status,
		})
	}
	return snap, nil
}

func (s *StaticSource) Rankings(_ context.Context, position, scoringFormat string) ([]types.RankedPlayer, error) {
	entries, ok := s.data.Rankings[strings.ToUpper(position)+"/"+scoringFormat]
	if !ok || len(entries) == 0 {
		return nil, fmt.Errorf("%w: no static rankings for %s/%s", ErrDataUnavailable, position, scoringFormat)
	}
	out := make([]types.RankedPlayer, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.RankedPlayer{
			Name: e.Name, Position: e.Position, Rank: e.Rank,
			Tier: e.Tier, Percentile: e.Percentile, Projection: e.Projection,
		})
	}
	return out, nil
}

// FallbackSource 先走远端，数据不可用时切换到静态数据集（若配置了）。
// 切换会记录告警，让周期摘要能把“降级运行”与“硬失败”区分开。
type FallbackSource struct {
	Primary Source
	Static  Source // 可为 nil
}

func (f *FallbackSource) Roster(ctx context.Context, leagueID, teamID string, week int) (types.RosterSnapshot, error) {
	snap, err := f.Primary.Roster(ctx, leagueID, teamID, week)
	if err == nil {
		return snap, nil
	}
	if f.Static == nil {
		return types.RosterSnapshot{}, err
	}
	logger.Warnf("fantasy: roster fetch degraded to static dataset (%s/%s): %v", leagueID, teamID, err)
	return f.Static.Roster(ctx, leagueID, teamID, week)
}

func (f *FallbackSource) Rankings(ctx context.Context, position, scoringFormat string) ([]types.RankedPlayer, error) {
	ranks, err := f.Primary.Rankings(ctx, position, scoringFormat)
	if err == nil {
		return ranks, nil
	}
	if f.Static == nil {
		return nil, err
	}
	logger.Warnf("fantasy: rankings fetch degraded to static dataset (%s/%s): %v", position, scoringFormat, err)
	return f.Static.Rankings(ctx, position, scoringFormat)
}
