package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"huddle/internal/advisor"
	"huddle/internal/config"
	"huddle/internal/engine"
	"huddle/internal/experiment"
	"huddle/internal/gateway/fantasy"
	"huddle/internal/gateway/notifier"
	"huddle/internal/ledger"
	"huddle/internal/logger"
	"huddle/internal/pattern"
	"huddle/internal/preset"
	"huddle/internal/season"
	"huddle/internal/store/advisorlog"
	"huddle/internal/store/gormstore"
	adminhttp "huddle/internal/transport/http/admin"
)

// AppBuilder 逐层装配依赖。各构造函数可被测试替换。
type AppBuilder struct {
	cfg *config.Config

	storeFn    func(path string) (*gormstore.GormStore, error)
	advisorFn  func(cfg config.AdvisorConfig) (*advisor.Service, error)
	sourceFn   func(cfg *config.Config) (fantasy.Source, bool, error)
	notifierFn func(cfg config.NotifyConfig) notifier.TextNotifier
	registryFn func(path string) (*preset.Registry, error)
	adminFn    func(cfg adminhttp.ServerConfig) (*adminhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    gormstore.NewGormStore,
		advisorFn:  advisor.New,
		sourceFn:   buildFantasySource,
		notifierFn: buildNotifier,
		registryFn: preset.NewRegistry,
		adminFn:    adminhttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.storeFn(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("init store failed: %w", err)
	}
	led := ledger.New(store)

	adv, err := b.advisorFn(cfg.Advisor)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init advisor failed: %w", err)
	}

	var exchanges *advisorlog.Store
	if strings.TrimSpace(cfg.Advisor.ExchangeDBPath) != "" {
		exchanges, err = advisorlog.New(cfg.Advisor.ExchangeDBPath)
		if err != nil {
			// 往返日志是排查辅助，打不开不阻塞启动。
			logger.Warnf("app: 顾问往返日志库打开失败，不记录往返: %v", err)
			exchanges = nil
		} else {
			adv.SetRecorder(exchanges)
		}
	}

	miner := pattern.NewMiner(store, adv, minerConfig(cfg.Patterns))
	coordinator := experiment.NewCoordinator(store, led, cfg.Experiments.Significance, cfg.Experiments.MinSampleSize)

	source, staticFallback, err := b.sourceFn(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	notify := b.notifierFn(cfg.Notify)
	eng := engine.New(cfg.Engine, cfg.Leagues, source, adv, miner, led, store, notify, nil)

	var registry *preset.Registry
	if strings.TrimSpace(cfg.Season.PresetsPath) != "" {
		registry, err = b.registryFn(cfg.Season.PresetsPath)
		if err != nil {
			// 预设文件损坏不阻塞启动，聚合器退回纯规则预设。
			logger.Warnf("app: 预设 registry 加载失败，使用规则预设: %v", err)
			registry = nil
		}
	}
	agg := season.NewAggregator(cfg.Season, led, store, store, store, adv, registry)

	admin, err := b.adminFn(adminhttp.ServerConfig{
		Addr:        cfg.App.HTTPAddr,
		Ledger:      led,
		Patterns:    store,
		Experiments: coordinator,
		Audits:      store,
		Seasons:     store,
		Exchanges:   exchanges,
		TrendWindow: cfg.Season.TrendWindow,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init admin http failed: %w", err)
	}

	app := &App{
		cfg:         cfg,
		store:       store,
		exchanges:   exchanges,
		led:         led,
		miner:       miner,
		coordinator: coordinator,
		eng:         eng,
		agg:         agg,
		adv:         adv,
		source:      source,
		notify:      notify,
		registry:    registry,
		admin:       admin,
		Summary:     buildStartupSummary(cfg, adv, staticFallback),
	}
	return app, nil
}

// buildFantasySource 主数据源 + 可选静态降级数据集。
func buildFantasySource(cfg *config.Config) (fantasy.Source, bool, error) {
	client := fantasy.NewClient(
		cfg.Data.BaseURL,
		cfg.Data.RankingsURL,
		time.Duration(cfg.Data.TimeoutSeconds)*time.Second,
		cfg.Data.MaxRetries,
	)
	if strings.TrimSpace(cfg.Data.StaticDataPath) == "" {
		return client, false, nil
	}
	static, err := fantasy.NewStaticSource(cfg.Data.StaticDataPath)
	if err != nil {
		return nil, false, fmt.Errorf("load static dataset failed: %w", err)
	}
	return &fantasy.FallbackSource{Primary: client, Static: static}, true, nil
}

func buildNotifier(cfg config.NotifyConfig) notifier.TextNotifier {
	if cfg.Telegram.Enabled {
		return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notifier.Nop{}
}

func minerConfig(cfg config.PatternConfig) pattern.MinerConfig {
	return pattern.MinerConfig{
		MinPatternExamples:     cfg.MinPatternExamples,
		MinAntiPatternExamples: cfg.MinAntiPatternExamples,
		ApplyConfidenceFloor:   cfg.ApplyConfidenceFloor,
		InitialConfidenceCap:   cfg.InitialConfidenceCap,
		ImprovementFloor:       cfg.ImprovementFloor,
		EvolveSuccessFloor:     cfg.EvolveSuccessFloor,
		EvolveImprovementMin:   cfg.EvolveImprovementMin,
		RetireSuccessFloor:     cfg.RetireSuccessFloor,
		RetireMinApplications:  cfg.RetireMinApplications,
	}
}
