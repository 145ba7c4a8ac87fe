package fantasy

import "errors"

// 中文说明：
// 名单/排名数据网关是只读的。远端失败或返回空数据必须以
// ErrDataUnavailable 显式暴露，绝不允许静默降级为空名单。

var (
	// ErrDataUnavailable 数据源失败或返回空结果。
	ErrDataUnavailable = errors.New("fantasy: data unavailable")
	// ErrUnauthorized 鉴权/参数类失败，不做重试。
	ErrUnauthorized = errors.New("fantasy: unauthorized")
)

type rosterResponse struct {
	Players []playerEntry `json:"players"`
}

type playerEntry struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	NFLTeam  string `json:"nfl_team"`
	Slot     string `json:"slot"`
	Status   string `json:"status"`
}

type rankingEntry struct {
	Name       string  `json:"name"`
	Position   string  `json:"position"`
	Rank       int     `json:"rank"`
	Tier       int     `json:"tier"`
	Percentile float64 `json:"percentile"`
	Projection float64 `json:"projection"`
}
