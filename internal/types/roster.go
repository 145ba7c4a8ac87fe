package types

import (
	"strings"
	"time"
)

// PlayerRef 名单中的一名球员。
type PlayerRef struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	NFLTeam  string `json:"nfl_team,omitempty"`
	Slot     string `json:"slot,omitempty"` // starter | bench | ir
	Status   string `json:"status,omitempty"`
}

// RosterSnapshot 某联赛某队伍在某时刻的名单。
type RosterSnapshot struct {
	LeagueID  string      `json:"league_id"`
	TeamID    string      `json:"team_id"`
	Week      int         `json:"week"`
	Players   []PlayerRef `json:"players"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// Contains 按规范化姓名判断球员是否在名单上。
func (r RosterSnapshot) Contains(playerName string) bool {
	want := NormalizeName(playerName)
	if want == "" {
		return false
	}
	for _, p := range r.Players {
		if NormalizeName(p.Name) == want {
			return true
		}
	}
	return false
}

// RankedPlayer 专家排名中的一行。
type RankedPlayer struct {
	Name       string  `json:"name"`
	Position   string  `json:"position"`
	Rank       int     `json:"rank"`
	Tier       int     `json:"tier"`
	Percentile float64 `json:"percentile"`
	Projection float64 `json:"projection,omitempty"`
}

// NormalizeName 姓名规范化：小写、去掉标点与常见后缀，供跨数据源匹配。
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	for _, suffix := range []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " v"} {
		s = strings.TrimSuffix(s, suffix)
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
