package fantasy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"huddle/internal/logger"
	"huddle/internal/types"

	"github.com/cenkalti/backoff/v4"
)

// Client 访问名单/排名数据源。所有请求带固定超时与有界指数退避重试；
// 鉴权/校验类失败不重试。
type Client struct {
	BaseURL     string
	RankingsURL string
	Timeout     time.Duration
	MaxRetries  uint64
	HTTPClient  *http.Client
}

func NewClient(baseURL, rankingsURL string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		RankingsURL: strings.TrimRight(rankingsURL, "/"),
		Timeout:     timeout,
		MaxRetries:  uint64(maxRetries),
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// Roster 拉取某联赛某队伍某周的名单。空名单视为数据不可用。
func (c *Client) Roster(ctx context.Context, leagueID, teamID string, week int) (types.RosterSnapshot, error) {
	if strings.TrimSpace(leagueID) == "" || strings.TrimSpace(teamID) == "" {
		return types.RosterSnapshot{}, fmt.Errorf("%w: league/team id required", ErrDataUnavailable)
	}
	endpoint := fmt.Sprintf("%s/leagues/%s/teams/%s/roster?week=%d",
		c.BaseURL, url.PathEscape(leagueID), url.PathEscape(teamID), week)

	var resp rosterResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return types.RosterSnapshot{}, err
	}
	if len(resp.Players) == 0 {
		return types.RosterSnapshot{}, fmt.Errorf("%w: empty roster for %s/%s week %d",
			ErrDataUnavailable, leagueID, teamID, week)
	}
	snap := types.RosterSnapshot{
		LeagueID:  leagueID,
		TeamID:    teamID,
		Week:      week,
		FetchedAt: time.Now().UTC(),
	}
	for _, p := range resp.Players {
		snap.Players = append(snap.Players, types.PlayerRef{
			Name:     p.Name,
			Position: p.Position,
			NFLTeam:  p.NFLTeam,
			Slot:     p.Slot,
			Status:   p.Status,
		})
	}
	return snap, nil
}

// Rankings 按位置与计分规则拉取专家排名（带 tier/percentile）。
func (c *Client) Rankings(ctx context.Context, position, scoringFormat string) ([]types.RankedPlayer, error) {
	endpoint := fmt.Sprintf("%s/rankings?position=%s&format=%s",
		c.RankingsURL, url.QueryEscape(position), url.QueryEscape(scoringFormat))

	var entries []rankingEntry
	if err := c.getJSON(ctx, endpoint, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty rankings for %s/%s", ErrDataUnavailable, position, scoringFormat)
	}
	out := make([]types.RankedPlayer, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.RankedPlayer{
			Name:       e.Name,
			Position:   e.Position,
			Rank:       e.Rank,
			Tier:       e.Tier,
			Percentile: e.Percentile,
			Projection: e.Projection,
		})
	}
	return out, nil
}

// getJSON 执行 GET 并解码。只有网络错误与 429/5xx 进入退避重试。
func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	attempt := 0
	op := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, c.Timeout)
		defer cancel()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			logger.Debugf("fantasy: attempt %d failed: %v", attempt, err)
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode/100 == 2:
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode failed: %v", ErrDataUnavailable, err))
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%w: status=%d", ErrUnauthorized, resp.StatusCode))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5:
			return fmt.Errorf("status=%d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: status=%d", ErrDataUnavailable, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponential(), c.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrDataUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %s (%d attempts): %v", ErrDataUnavailable, endpoint, attempt, err)
	}
	return nil
}

func newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 8 * time.Second
	return b
}
