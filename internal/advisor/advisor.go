package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"huddle/internal/config"
	"huddle/internal/logger"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const systemPrompt = `你是梦幻橄榄球决策顾问。只输出一个 JSON 对象，结构如下：
{
  "summary": "一段人类可读的分析摘要",
  "confidence": 0.0~1.0,
  "suggestions": [
    {"action": "start|sit|add|drop|trade|monitor", "subject": "球员名",
     "alternative": "可选的替代球员", "rationale": "理由", "confidence": 0.0~1.0}
  ]
}
suggestions 按优先级排序。不确定时降低 confidence 而不是编造事实。`

// Exchange 一次顾问往返的完整现场，供排查与回放。
type Exchange struct {
	Provider     string
	Purpose      string
	SystemPrompt string
	UserPrompt   string
	RawOutput    string
	Degraded     bool
	At           time.Time
}

// Recorder 往返记录的落地端（advisorlog 实现）。记录失败不影响咨询结果。
type Recorder interface {
	RecordExchange(ctx context.Context, x Exchange) error
}

// Service 顾问服务：限速、超时、按序尝试可用模型，全部失败时规则降级。
type Service struct {
	providers []Provider
	timeout   time.Duration
	limiter   *rate.Limiter
	enabled   bool
	recorder  Recorder
}

// SetRecorder 挂接往返记录器，nil 表示不记录。
func (s *Service) SetRecorder(r Recorder) {
	if s != nil {
		s.recorder = r
	}
}

// New 按配置构建服务。模型列表经过 preset 展开与校验。
func New(cfg config.AdvisorConfig) (*Service, error) {
	models := cfg.ResolveModelConfigs()
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 20
	}
	svc := &Service{
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 2),
		enabled: cfg.Enabled,
	}
	for _, m := range models {
		client := &OpenAIChatClient{
			BaseURL:      m.APIURL,
			APIKey:       m.APIKey,
			Model:        m.Model,
			Timeout:      timeout,
			MaxRetries:   cfg.MaxRetries,
			ExtraHeaders: m.Headers,
			ExpectJSON:   m.ExpectJSON,
		}
		svc.providers = append(svc.providers, NewOpenAIModelProvider(m.ID, m.IsEnabled(), m.CostPer1K, client))
	}
	return svc, nil
}

// NewWithProviders 测试与降级场景用。
func NewWithProviders(providers []Provider, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		providers: providers,
		timeout:   timeout,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		enabled:   true,
	}
}

// Enabled 服务是否配置了至少一个可用模型。
func (s *Service) Enabled() bool {
	if s == nil || !s.enabled {
		return false
	}
	for _, p := range s.providers {
		if p.Enabled() {
			return true
		}
	}
	return false
}

// Ask 发起一次结构化咨询。所有模型失败时返回规则降级响应（Degraded=true），
// 而不是错误：调用方根据 Degraded 决定是否压低决策置信度。
func (s *Service) Ask(ctx context.Context, req Request) (Response, error) {
	if !s.Enabled() {
		logger.Debugf("advisor: 未启用，直接规则降级 purpose=%s", req.Purpose)
		return Fallback(req), nil
	}
	userPrompt, err := buildUserPrompt(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrAdvisor, err)
	}
	var lastErr error
	for _, p := range s.providers {
		if !p.Enabled() {
			continue
		}
		resp, err := s.askProvider(ctx, p, req, userPrompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warnf("advisor: 模型 %s 失败，尝试下一个: %v", p.ID(), err)
	}
	logger.Warnf("advisor: 全部模型失败，规则降级 purpose=%s: %v", req.Purpose, lastErr)
	s.recordExchange(ctx, Exchange{
		Provider:   "rule-fallback",
		Purpose:    req.Purpose,
		UserPrompt: userPrompt,
		Degraded:   true,
	})
	return Fallback(req), nil
}

func (s *Service) recordExchange(ctx context.Context, x Exchange) {
	if s.recorder == nil {
		return
	}
	if x.At.IsZero() {
		x.At = time.Now().UTC()
	}
	if err := s.recorder.RecordExchange(ctx, x); err != nil {
		logger.Warnf("advisor: 往返记录写入失败: %v", err)
	}
}

func (s *Service) askProvider(ctx context.Context, p Provider, req Request, userPrompt string) (Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrAdvisor, err)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger.LogAdvisorRequest(p.ID(), req.Purpose, systemPrompt, userPrompt, "")
	result, err := p.Call(callCtx, systemPrompt, userPrompt)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrAdvisor, err)
	}
	logger.LogAdvisorResponse(p.ID(), req.Purpose, result.Content)
	s.recordExchange(ctx, Exchange{
		Provider:     p.ID(),
		Purpose:      req.Purpose,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		RawOutput:    result.Content,
	})

	resp, err := parseResponse(result.Content)
	if err != nil {
		return Response{}, err
	}
	if err := validateSuggestions(resp.Suggestions); err != nil {
		return Response{}, err
	}
	resp.Identity = p.ID()
	resp.Usage = Usage{
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		Cost:             estimateCost(p.CostPer1K(), result.PromptTokens+result.CompletionTokens),
	}
	return resp, nil
}

// JudgePattern 为候选模式给出定性初始置信度（0~100）。
// 顾问不可用时返回错误，让挖掘器退回观测成功率。
func (s *Service) JudgePattern(ctx context.Context, name, description string, examples int) (float64, error) {
	resp, err := s.Ask(ctx, Request{
		Purpose: "pattern_judgment",
		Context: fmt.Sprintf("评估候选模式 %q 的可信程度", name),
		Data: map[string]any{
			"name":        name,
			"description": description,
			"examples":    examples,
		},
	})
	if err != nil {
		return 0, err
	}
	if resp.Degraded {
		return 0, fmt.Errorf("%w: 定性评估不可用", ErrAdvisor)
	}
	return resp.Confidence * 100, nil
}

func buildUserPrompt(req Request) (string, error) {
	var b strings.Builder
	b.WriteString("## 场景\n")
	b.WriteString(strings.TrimSpace(req.Context))
	b.WriteString("\n")
	if len(req.Data) > 0 {
		raw, err := json.MarshalIndent(req.Data, "", "  ")
		if err != nil {
			return "", err
		}
		b.WriteString("\n## 数据\n")
		b.Write(raw)
		b.WriteString("\n")
	}
	if len(req.Capabilities) > 0 {
		b.WriteString("\n## 允许的动作\n")
		b.WriteString(strings.Join(req.Capabilities, ", "))
		b.WriteString("\n")
	}
	return b.String(), nil
}

// estimateCost token 用量换算成本，decimal 保留 6 位。
func estimateCost(costPer1K float64, tokens int) decimal.Decimal {
	if costPer1K <= 0 || tokens <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(costPer1K).
		Mul(decimal.NewFromInt(int64(tokens))).
		Div(decimal.NewFromInt(1000)).
		Round(6)
}
