package preset

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"huddle/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// 中文说明：
// 阶段预设 registry：把各赛季阶段的策略基线放在配置文件里热加载，
// 赛季聚合器以它为规则基线、引擎按它取当前阶段的行动门槛。

// Template 单个阶段的策略预设基线。
type Template struct {
	Phase         string             `mapstructure:"phase" yaml:"phase"`
	Description   string             `mapstructure:"description" yaml:"description"`
	RiskTolerance float64            `mapstructure:"risk_tolerance" yaml:"risk_tolerance"`
	Thresholds    Thresholds         `mapstructure:"thresholds" yaml:"thresholds"`
	FactorWeights map[string]float64 `mapstructure:"factor_weights" yaml:"factor_weights"`
	PromptHint    string             `mapstructure:"prompt_hint" yaml:"prompt_hint"`
}

type Thresholds struct {
	Low    float64 `mapstructure:"low" yaml:"low"`
	Medium float64 `mapstructure:"medium" yaml:"medium"`
	High   float64 `mapstructure:"high" yaml:"high"`
}

// FileConfig 映射 phase_presets。
type FileConfig struct {
	PhasePresets map[string]Template `mapstructure:"phase_presets" yaml:"phase_presets"`
}

// Snapshot 公开的预设快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Template
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理阶段预设并监听文件更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取预设文件并开始监听。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preset config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("preset reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前预设集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Phase 返回指定阶段的预设。
func (r *Registry) Phase(phase string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.snapshot.Presets[strings.TrimSpace(strings.ToLower(phase))]
	return tpl, ok
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readPresetFile(r.path)
	if err != nil {
		return err
	}
	presets := make(map[string]Template)
	for name, tpl := range cfg.PhasePresets {
		norm, err := normalizeTemplate(name, tpl)
		if err != nil {
			return fmt.Errorf("preset %q: %w", name, err)
		}
		presets[norm.Phase] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
	logger.Infof("Preset registry loaded %d phase presets from %s", len(presets), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("preset listener")
			cb(snap)
		}(fn)
	}
}

// normalizeTemplate 阶段名补齐、权重归一性校验（总和容差 1%）。
func normalizeTemplate(name string, tpl Template) (Template, error) {
	tpl.Phase = strings.ToLower(strings.TrimSpace(tpl.Phase))
	if tpl.Phase == "" {
		tpl.Phase = strings.ToLower(strings.TrimSpace(name))
	}
	if tpl.RiskTolerance < 0 || tpl.RiskTolerance > 1 {
		return Template{}, fmt.Errorf("risk_tolerance 必须在 [0,1]")
	}
	if len(tpl.FactorWeights) > 0 {
		sum := 0.0
		for _, w := range tpl.FactorWeights {
			if w < 0 {
				return Template{}, fmt.Errorf("factor 权重不可为负")
			}
			sum += w
		}
		if sum < 0.99 || sum > 1.01 {
			return Template{}, fmt.Errorf("factor_weights 总和应为 1.0，实际 %.3f", sum)
		}
	}
	return tpl, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Presets:  make(map[string]Template, len(src.Presets)),
	}
	for id, tpl := range src.Presets {
		dst.Presets[id] = tpl
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readPresetFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read preset config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse preset config failed: %w", err)
	}
	return cfg, nil
}
