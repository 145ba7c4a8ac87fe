package app

import (
	"context"
	"fmt"
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
	"huddle/internal/scheduler"
	"huddle/internal/season"
	"huddle/internal/store/advisorlog"
	"huddle/internal/store/gormstore"
	adminhttp "huddle/internal/transport/http/admin"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→跑决策周期与后台服务。
type App struct {
	cfg         *config.Config
	store       *gormstore.GormStore
	exchanges   *advisorlog.Store
	led         *ledger.Ledger
	miner       *pattern.Miner
	coordinator *experiment.Coordinator
	eng         *engine.Engine
	agg         *season.Aggregator
	adv         *advisor.Service
	source      fantasy.Source
	notify      notifier.TextNotifier
	registry    *preset.Registry
	admin       *adminhttp.Server
	Summary     *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Ledger 暴露台账（outcome 子命令与测试使用）。
func (a *App) Ledger() *ledger.Ledger {
	if a == nil {
		return nil
	}
	return a.led
}

// Engine 暴露实时决策引擎（事件回放与测试使用）。
func (a *App) Engine() *engine.Engine {
	if a == nil {
		return nil
	}
	return a.eng
}

// Close 释放持久化资源。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	if a.exchanges != nil {
		if err := a.exchanges.Close(); err != nil {
			logger.Warnf("app: 顾问往返日志库关闭失败: %v", err)
		}
	}
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Run 启动 serve 模式：admin HTTP + 对齐调度器，直到 ctx 取消。
// 每个周期跑一次决策分析；跨周时对刚结束的周做赛季折叠。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	interval, ok := scheduler.ParseIntervalDuration(a.cfg.App.CycleInterval)
	if !ok {
		return fmt.Errorf("invalid cycle_interval %q", a.cfg.App.CycleInterval)
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.admin != nil {
		group.Go(func() error {
			if err := a.admin.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		sched := scheduler.NewAlignedScheduler(ctx, interval, 0)
		sched.RunImmediately = true
		lastWeek := 0
		sched.Start(func() {
			week := a.CurrentWeek(time.Now().UTC())
			if lastWeek > 0 && week > lastWeek {
				if _, err := a.agg.RunPeriod(ctx, lastWeek); err != nil {
					logger.Warnf("app: 周期 %d 赛季折叠失败: %v", lastWeek, err)
				}
			}
			lastWeek = week
			summary, err := a.RunCycle(ctx, week)
			if err != nil {
				logger.Errorf("app: 决策周期失败 week=%d: %v", week, err)
				return
			}
			summary.Print()
		})
		return nil
	})

	return group.Wait()
}

// CurrentWeek 由赛季开始日期推算当前周；未配置时固定为第 1 周。
func (a *App) CurrentWeek(now time.Time) int {
	start, err := time.Parse("2006-01-02", a.cfg.Season.StartDate)
	if err != nil {
		return 1
	}
	if now.Before(start) {
		return 1
	}
	week := int(now.Sub(start).Hours()/(24*7)) + 1
	length := a.cfg.Season.Length
	if length > 0 && week > length {
		week = length
	}
	return week
}
