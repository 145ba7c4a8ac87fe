package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"huddle/internal/app"
	"huddle/internal/config"
	"huddle/internal/ledger"
	"huddle/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	cfg, closeLogs := mustSetup()
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd {
	case "cycle":
		err = runCycle(ctx, cfg, args)
	case "outcome":
		err = runOutcome(ctx, cfg, args)
	case "serve":
		err = runServe(ctx, cfg)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `用法: huddle <command> [flags]

  cycle    为配置的联赛跑一次决策周期
             -week N     指定周（缺省按赛季开始日期推算）
  outcome  为某条建议记录真实结果
             -id ID -success -actual F -projected F [-notes S]
  serve    常驻模式：对齐调度器 + admin HTTP

配置路径取自 HUDDLE_CONFIG，缺省 configs/config.yaml`)
}

// mustSetup 读取配置并接好日志输出（stdout + 文件）。
func mustSetup() (*config.Config, func()) {
	cfgPath := os.Getenv("HUDDLE_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}

	var closers []io.Closer
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		closers = append(closers, logFile)
	}

	logger.SetAdvisorWriter(nil)
	if cfg.App.AdvisorDump {
		f, err := setupAdvisorLogOutput(cfg.App.AdvisorLog)
		if err != nil {
			log.Fatalf("初始化顾问日志失败: %v", err)
		}
		if f != nil {
			closers = append(closers, f)
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableAdvisorPayloadDump(cfg.App.AdvisorDump)
	logger.Infof("✓ 配置加载成功（环境=%s，联赛=%d）", cfg.App.Env, len(cfg.Leagues))

	return cfg, func() {
		for _, c := range closers {
			c.Close()
		}
	}
}

func runCycle(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("cycle", flag.ExitOnError)
	week := fs.Int("week", 0, "赛季周（缺省按赛季开始日期推算）")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w := *week
	if w <= 0 {
		w = a.CurrentWeek(time.Now().UTC())
	}
	summary, err := a.RunCycle(ctx, w)
	if err != nil {
		return err
	}
	summary.Print()
	// 部分失败以零退出并在摘要里给警告；只有全部联赛都不可处理才算不可恢复。
	if !summary.Processable() {
		return fmt.Errorf("所有联赛均不可处理")
	}
	return nil
}

func runOutcome(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("outcome", flag.ExitOnError)
	id := fs.String("id", "", "建议 id")
	success := fs.Bool("success", false, "建议是否成功")
	actual := fs.Float64("actual", 0, "实际值")
	projected := fs.Float64("projected", 0, "投影值")
	notes := fs.String("notes", "", "备注")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("-id 必填")
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.Ledger().RecordOutcome(ctx, ledger.Outcome{
		RecommendationID: *id,
		Success:          *success,
		ActualValue:      *actual,
		ProjectedValue:   *projected,
		Notes:            *notes,
	})
	if err != nil {
		return err
	}
	fmt.Printf("结果已记录: %s success=%v actual=%.1f projected=%.1f\n",
		*id, *success, *actual, *projected)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupAdvisorLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetAdvisorWriter(f)
	return f, nil
}
