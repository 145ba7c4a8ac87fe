package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9982"
	defaultAppLogPath        = "/data/logs/huddle.log"
	defaultAppAdvisorLog     = "/data/logs/huddle-advisor.log"
	defaultAppCycleInterval  = "1h"
	defaultAppChartDir       = "/data/charts"
	defaultDataTimeout       = 10
	defaultDataRetries       = 3
	defaultAdvisorTimeout    = 60
	defaultAdvisorRetries    = 2
	defaultAdvisorRPM        = 20
	defaultLedgerPath        = "/data/db/huddle.db"
	defaultMinPatternEx      = 3
	defaultMinAntiPatternEx  = 2
	defaultApplyConfFloor    = 70
	defaultInitialConfCap    = 60
	defaultImprovementFloor  = 2
	defaultEvolveSuccess     = 0.70
	defaultEvolveImprovement = 1
	defaultRetireSuccess     = 0.40
	defaultRetireMinApplied  = 5
	defaultExpSignificance   = 0.90
	defaultExpMinSample      = 10
	defaultEngineSeverity    = "medium"
	defaultEngineSourceConf  = 0.5
	defaultEngineSafetyMin   = 30
	defaultEngineCriticalHrs = 2
	defaultEngineAutoConf    = 0.8
	defaultEngineMaxActions  = 5
	defaultSeasonLength      = 17
	defaultSeasonChampStart  = 15
	defaultSeasonPresets     = "configs/presets.yaml"
	defaultSeasonTrendWindow = 4
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Advisor.applyDefaults(keys)
	c.Ledger.applyDefaults(keys)
	c.Patterns.applyDefaults(keys)
	c.Experiments.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Season.applyDefaults(keys)
	for i := range c.Leagues {
		c.Leagues[i].applyDefaults()
	}
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.advisor_log_path", &a.AdvisorLog, defaultAppAdvisorLog),
		stringFieldDefault("app.cycle_interval", &a.CycleInterval, defaultAppCycleInterval),
		stringFieldDefault("app.chart_output_dir", &a.ChartOutputDir, defaultAppChartDir),
	)
}

func (l *LeagueConfig) applyDefaults() {
	if l == nil {
		return
	}
	if strings.TrimSpace(l.ScoringFormat) == "" {
		l.ScoringFormat = "half_ppr"
	}
	if strings.TrimSpace(l.Provider) == "" {
		l.Provider = "default"
	}
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "data.timeout_seconds",
			need:  func() bool { return d.TimeoutSeconds <= 0 },
			apply: func() { d.TimeoutSeconds = defaultDataTimeout },
		},
		fieldDefault{
			key:   "data.max_retries",
			need:  func() bool { return d.MaxRetries <= 0 },
			apply: func() { d.MaxRetries = defaultDataRetries },
		},
	)
}

func (a *AdvisorConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	if a.ProviderPresets == nil {
		a.ProviderPresets = make(map[string]ModelPreset)
	}
	applyFieldDefaults(keys,
		boolFieldDefault("advisor.enabled", &a.Enabled, true),
		fieldDefault{
			key:   "advisor.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAdvisorTimeout },
		},
		fieldDefault{
			key:   "advisor.max_retries",
			need:  func() bool { return a.MaxRetries <= 0 },
			apply: func() { a.MaxRetries = defaultAdvisorRetries },
		},
		fieldDefault{
			key:   "advisor.requests_per_min",
			need:  func() bool { return a.RequestsPerMin <= 0 },
			apply: func() { a.RequestsPerMin = defaultAdvisorRPM },
		},
	)
}

func (l *LedgerConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.path", &l.Path, defaultLedgerPath),
	)
}

func (p *PatternConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "patterns.min_pattern_examples",
			need:  func() bool { return p.MinPatternExamples <= 0 },
			apply: func() { p.MinPatternExamples = defaultMinPatternEx },
		},
		fieldDefault{
			key:   "patterns.min_anti_pattern_examples",
			need:  func() bool { return p.MinAntiPatternExamples <= 0 },
			apply: func() { p.MinAntiPatternExamples = defaultMinAntiPatternEx },
		},
		fieldDefault{
			key:   "patterns.apply_confidence_floor",
			need:  func() bool { return p.ApplyConfidenceFloor <= 0 },
			apply: func() { p.ApplyConfidenceFloor = defaultApplyConfFloor },
		},
		fieldDefault{
			key:   "patterns.initial_confidence_cap",
			need:  func() bool { return p.InitialConfidenceCap <= 0 },
			apply: func() { p.InitialConfidenceCap = defaultInitialConfCap },
		},
		fieldDefault{
			key:   "patterns.improvement_floor",
			need:  func() bool { return p.ImprovementFloor <= 0 },
			apply: func() { p.ImprovementFloor = defaultImprovementFloor },
		},
		fieldDefault{
			key:   "patterns.evolve_success_floor",
			need:  func() bool { return p.EvolveSuccessFloor <= 0 },
			apply: func() { p.EvolveSuccessFloor = defaultEvolveSuccess },
		},
		fieldDefault{
			key:   "patterns.evolve_improvement_min",
			need:  func() bool { return p.EvolveImprovementMin <= 0 },
			apply: func() { p.EvolveImprovementMin = defaultEvolveImprovement },
		},
		fieldDefault{
			key:   "patterns.retire_success_floor",
			need:  func() bool { return p.RetireSuccessFloor <= 0 },
			apply: func() { p.RetireSuccessFloor = defaultRetireSuccess },
		},
		fieldDefault{
			key:   "patterns.retire_min_applications",
			need:  func() bool { return p.RetireMinApplications <= 0 },
			apply: func() { p.RetireMinApplications = defaultRetireMinApplied },
		},
	)
}

func (e *ExperimentConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "experiments.significance",
			need:  func() bool { return e.Significance <= 0 || e.Significance >= 1 },
			apply: func() { e.Significance = defaultExpSignificance },
		},
		fieldDefault{
			key:   "experiments.min_sample_size",
			need:  func() bool { return e.MinSampleSize <= 0 },
			apply: func() { e.MinSampleSize = defaultExpMinSample },
		},
	)
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("engine.min_severity", &e.MinSeverity, defaultEngineSeverity),
		fieldDefault{
			key:   "engine.min_source_confidence",
			need:  func() bool { return e.MinSourceConfidence <= 0 },
			apply: func() { e.MinSourceConfidence = defaultEngineSourceConf },
		},
		fieldDefault{
			key:   "engine.safety_margin_minutes",
			need:  func() bool { return e.SafetyMarginMinutes <= 0 },
			apply: func() { e.SafetyMarginMinutes = defaultEngineSafetyMin },
		},
		fieldDefault{
			key:   "engine.critical_window_hours",
			need:  func() bool { return e.CriticalWindowHours <= 0 },
			apply: func() { e.CriticalWindowHours = defaultEngineCriticalHrs },
		},
		fieldDefault{
			key:   "engine.auto_exec_confidence",
			need:  func() bool { return e.AutoExecConfidence <= 0 || e.AutoExecConfidence >= 1 },
			apply: func() { e.AutoExecConfidence = defaultEngineAutoConf },
		},
		fieldDefault{
			key:   "engine.max_actions_per_decision",
			need:  func() bool { return e.MaxActionsPerDecision <= 0 },
			apply: func() { e.MaxActionsPerDecision = defaultEngineMaxActions },
		},
	)
}

func (s *SeasonConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("season.presets_path", &s.PresetsPath, defaultSeasonPresets),
		fieldDefault{
			key:   "season.length",
			need:  func() bool { return s.Length <= 0 },
			apply: func() { s.Length = defaultSeasonLength },
		},
		fieldDefault{
			key:   "season.championship_start",
			need:  func() bool { return s.ChampionshipStart <= 0 },
			apply: func() { s.ChampionshipStart = defaultSeasonChampStart },
		},
		fieldDefault{
			key:   "season.trend_window",
			need:  func() bool { return s.TrendWindow <= 0 },
			apply: func() { s.TrendWindow = defaultSeasonTrendWindow },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
