package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.validateLeagues(); err != nil {
		return err
	}
	if err := c.Advisor.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.Experiments.validate(); err != nil {
		return err
	}
	if err := c.Season.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLeagues() error {
	if len(c.Leagues) == 0 {
		return fmt.Errorf("leagues requires at least one entry")
	}
	seen := make(map[string]bool, len(c.Leagues))
	for i, l := range c.Leagues {
		id := strings.TrimSpace(l.ID)
		if id == "" {
			return fmt.Errorf("leagues[%d] missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("leagues contains duplicate id: %s", id)
		}
		seen[id] = true
		if strings.TrimSpace(l.TeamID) == "" {
			return fmt.Errorf("leagues.%s missing team_id", id)
		}
		switch l.ScoringFormat {
		case "standard", "half_ppr", "ppr":
		default:
			return fmt.Errorf("leagues.%s invalid scoring_format: %s", id, l.ScoringFormat)
		}
	}
	return nil
}

func (a *AdvisorConfig) validate() error {
	if !a.Enabled {
		// 顾问禁用时允许无模型配置，引擎走规则降级。
		return nil
	}
	models := a.ResolveModelConfigs()
	if len(models) == 0 {
		return fmt.Errorf("advisor.models requires at least one model when advisor is enabled")
	}
	for _, m := range models {
		if strings.TrimSpace(m.Model) == "" {
			return fmt.Errorf("advisor.models contains entry without model (id=%s)", m.ID)
		}
		if strings.TrimSpace(m.APIURL) == "" {
			return fmt.Errorf("advisor.models.%s missing api_url (can inherit from preset)", m.ID)
		}
		if strings.TrimSpace(m.Provider) == "" {
			return fmt.Errorf("advisor.models.%s missing provider", m.ID)
		}
	}
	return nil
}

// ResolveModelConfigs 将 preset 继承展开为完整的模型配置列表。
func (a *AdvisorConfig) ResolveModelConfigs() []ModelConfig {
	out := make([]ModelConfig, 0, len(a.Models))
	for _, m := range a.Models {
		if !m.IsEnabled() {
			continue
		}
		if preset, ok := a.ProviderPresets[strings.TrimSpace(m.Preset)]; ok {
			if strings.TrimSpace(m.APIURL) == "" {
				m.APIURL = preset.APIURL
			}
			if strings.TrimSpace(m.APIKey) == "" {
				m.APIKey = preset.APIKey
			}
			if len(m.Headers) == 0 {
				m.Headers = preset.Headers
			}
			if !m.ExpectJSON {
				m.ExpectJSON = preset.ExpectJSON
			}
		}
		if strings.TrimSpace(m.ID) == "" {
			m.ID = m.Model
		}
		out = append(out, m)
	}
	return out
}

func (e *EngineConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.MinSeverity)) {
	case "low", "medium", "high", "critical":
	default:
		return fmt.Errorf("engine.min_severity invalid: %s", e.MinSeverity)
	}
	if e.MinSourceConfidence < 0 || e.MinSourceConfidence > 1 {
		return fmt.Errorf("engine.min_source_confidence must be in [0,1]")
	}
	if e.AutoExecConfidence <= 0 || e.AutoExecConfidence >= 1 {
		return fmt.Errorf("engine.auto_exec_confidence must be in (0,1)")
	}
	return nil
}

func (e *ExperimentConfig) validate() error {
	if e.Significance <= 0 || e.Significance >= 1 {
		return fmt.Errorf("experiments.significance must be in (0,1)")
	}
	if e.MinSampleSize < 1 {
		return fmt.Errorf("experiments.min_sample_size must be >= 1")
	}
	return nil
}

func (s *SeasonConfig) validate() error {
	if s.ChampionshipStart > s.Length {
		return fmt.Errorf("season.championship_start (%d) beyond season length (%d)", s.ChampionshipStart, s.Length)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	t := n.Telegram
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.BotToken) == "" || strings.TrimSpace(t.ChatID) == "" {
		return fmt.Errorf("notify.telegram enabled but bot_token/chat_id missing")
	}
	return nil
}
