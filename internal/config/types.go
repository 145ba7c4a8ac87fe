package config

import "strings"

// Config 是 huddle 的主配置载体。
type Config struct {
	App         AppConfig        `toml:"app"`
	Leagues     []LeagueConfig   `toml:"leagues"`
	Data        DataConfig       `toml:"data"`
	Advisor     AdvisorConfig    `toml:"advisor"`
	Ledger      LedgerConfig     `toml:"ledger"`
	Patterns    PatternConfig    `toml:"patterns"`
	Experiments ExperimentConfig `toml:"experiments"`
	Engine      EngineConfig     `toml:"engine"`
	Season      SeasonConfig     `toml:"season"`
	Notify      NotifyConfig     `toml:"notify"`
}

type AppConfig struct {
	Env            string `toml:"env"`
	LogLevel       string `toml:"log_level"`
	HTTPAddr       string `toml:"http_addr"`
	LogPath        string `toml:"log_path"`
	AdvisorLog     string `toml:"advisor_log_path"`
	AdvisorDump    bool   `toml:"advisor_dump_payload"`
	CycleInterval  string `toml:"cycle_interval"`
	ChartOutputDir string `toml:"chart_output_dir"`
}

// LeagueConfig 描述一个被托管的联赛/队伍。
type LeagueConfig struct {
	ID            string `toml:"id"`
	Name          string `toml:"name"`
	TeamID        string `toml:"team_id"`
	ScoringFormat string `toml:"scoring_format"` // standard | half_ppr | ppr
	Provider      string `toml:"provider"`
}

// DataConfig 控制名单/排名数据源的访问方式。
type DataConfig struct {
	BaseURL        string `toml:"base_url"`
	RankingsURL    string `toml:"rankings_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	StaticDataPath string `toml:"static_data_path"` // 降级数据集（可为空）
}

// AdvisorConfig 包含与顾问模型相关的所有设置。
type AdvisorConfig struct {
	Enabled         bool                   `toml:"enabled"`
	TimeoutSeconds  int                    `toml:"timeout_seconds"`
	MaxRetries      int                    `toml:"max_retries"`
	RequestsPerMin  int                    `toml:"requests_per_min"`
	ExchangeDBPath  string                 `toml:"exchange_db_path"` // 往返日志库，空则不记录
	ProviderPresets map[string]ModelPreset `toml:"provider_presets"`
	Models          []ModelConfig          `toml:"models"`
}

// ModelPreset 描述可复用的 API 连接配置。
type ModelPreset struct {
	APIURL     string            `toml:"api_url"`
	APIKey     string            `toml:"api_key"`
	Headers    map[string]string `toml:"headers"`
	ExpectJSON bool              `toml:"expect_json"`
}

// ModelConfig 代表一个可调用的顾问模型条目。
type ModelConfig struct {
	ID         string            `toml:"id"`
	Provider   string            `toml:"provider"`
	Preset     string            `toml:"preset"`
	Model      string            `toml:"model"`
	APIURL     string            `toml:"api_url"`
	APIKey     string            `toml:"api_key"`
	Headers    map[string]string `toml:"headers"`
	ExpectJSON bool              `toml:"expect_json"`
	Enabled    *bool             `toml:"enabled"`
	CostPer1K  float64           `toml:"cost_per_1k_tokens"`
}

// IsEnabled 缺省视为启用。
func (m ModelConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

type LedgerConfig struct {
	Path string `toml:"path"`
}

// PatternConfig 控制模式挖掘与策略演化的阈值。
type PatternConfig struct {
	MinPatternExamples     int     `toml:"min_pattern_examples"`
	MinAntiPatternExamples int     `toml:"min_anti_pattern_examples"`
	ApplyConfidenceFloor   float64 `toml:"apply_confidence_floor"`
	InitialConfidenceCap   float64 `toml:"initial_confidence_cap"`
	ImprovementFloor       float64 `toml:"improvement_floor"`
	EvolveSuccessFloor     float64 `toml:"evolve_success_floor"`
	EvolveImprovementMin   float64 `toml:"evolve_improvement_min"`
	RetireSuccessFloor     float64 `toml:"retire_success_floor"`
	RetireMinApplications  int     `toml:"retire_min_applications"`
}

type ExperimentConfig struct {
	Significance  float64 `toml:"significance"`     // 0~1，默认 0.90
	MinSampleSize int     `toml:"min_sample_size"` // 每个 variant 的最小样本量
	ActiveID      string  `toml:"active_id"`       // 为空表示周期分析不走实验分流
}

// EngineConfig 控制实时事件引擎的过滤与执行策略。
type EngineConfig struct {
	MinSeverity           string  `toml:"min_severity"`
	MinSourceConfidence   float64 `toml:"min_source_confidence"`
	SafetyMarginMinutes   int     `toml:"safety_margin_minutes"`
	CriticalWindowHours   float64 `toml:"critical_window_hours"`
	AutoExecConfidence    float64 `toml:"auto_exec_confidence"`
	MaxActionsPerDecision int     `toml:"max_actions_per_decision"`
	EventsPath            string  `toml:"events_path"` // 周期间积攒的事件文件，空则不摄取
}

// SeasonConfig 描述赛季长度与阶段划分。
type SeasonConfig struct {
	Length            int    `toml:"length"`             // 常规赛周数
	ChampionshipStart int    `toml:"championship_start"` // 冠军赛起始周
	StartDate         string `toml:"start_date"`         // YYYY-MM-DD，serve 模式推算当前周
	PresetsPath       string `toml:"presets_path"`
	TrendWindow       int    `toml:"trend_window"` // 趋势平滑窗口（周）
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// LeagueIDs 返回配置的联赛 ID 列表（去重、保序）。
func (c *Config) LeagueIDs() []string {
	out := make([]string, 0, len(c.Leagues))
	seen := make(map[string]bool, len(c.Leagues))
	for _, l := range c.Leagues {
		id := strings.TrimSpace(l.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
