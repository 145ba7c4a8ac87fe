package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	id      string
	content string
	err     error
	cost    float64
	calls   int
}

func (p *fakeProvider) ID() string         { return p.id }
func (p *fakeProvider) Enabled() bool      { return true }
func (p *fakeProvider) CostPer1K() float64 { return p.cost }
func (p *fakeProvider) Call(_ context.Context, _, _ string) (ChatResult, error) {
	p.calls++
	if p.err != nil {
		return ChatResult{}, p.err
	}
	return ChatResult{Content: p.content, PromptTokens: 120, CompletionTokens: 80}, nil
}

func eventRequest() Request {
	return Request{
		Purpose: "event_decision",
		Context: "Breece Hall 赛前确认缺席。",
		Data: map[string]any{
			"subject":     "Breece Hall",
			"severity":    "critical",
			"alternative": "Jaylen Warren",
		},
		Capabilities: []string{"start", "sit", "monitor"},
	}
}

func TestExtractJSONObject(t *testing.T) {
	t.Run("裸对象", func(t *testing.T) {
		obj, ok := ExtractJSONObject(`{"a":1}`)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, obj)
	})

	t.Run("代码块包裹与前后噪声", func(t *testing.T) {
		raw := "分析如下：\n```json\n{\"summary\":\"ok\",\"confidence\":0.8}\n```\n以上。"
		obj, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, `{"summary":"ok","confidence":0.8}`, obj)
	})

	t.Run("字符串里的花括号不参与配平", func(t *testing.T) {
		raw := `{"summary":"risk {high} \"quoted\"","confidence":0.5}`
		obj, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, raw, obj)
	})

	t.Run("嵌套对象取最外层", func(t *testing.T) {
		raw := `前缀 {"outer":{"inner":1}} 后缀 {"second":2}`
		obj, ok := ExtractJSONObject(raw)
		require.True(t, ok)
		assert.Equal(t, `{"outer":{"inner":1}}`, obj)
	})

	t.Run("无对象或未闭合", func(t *testing.T) {
		_, ok := ExtractJSONObject("全是文字")
		assert.False(t, ok)
		_, ok = ExtractJSONObject(`{"broken":`)
		assert.False(t, ok)
	})
}

func TestParseResponse(t *testing.T) {
	t.Run("完整响应", func(t *testing.T) {
		resp, err := parseResponse(`{"summary":"停用并替换","confidence":0.9,
			"suggestions":[{"action":"SIT","subject":" Breece Hall ","alternative":"Jaylen Warren",
			"rationale":"确认缺席","confidence":0.85}]}`)
		require.NoError(t, err)
		assert.Equal(t, "停用并替换", resp.Summary)
		assert.InDelta(t, 0.9, resp.Confidence, 1e-9)
		require.Len(t, resp.Suggestions, 1)
		// 动作统一小写，首尾空白去除。
		assert.Equal(t, "sit", resp.Suggestions[0].Action)
		assert.Equal(t, "Breece Hall", resp.Suggestions[0].Subject)
		assert.InDelta(t, 0.85, resp.Suggestions[0].Confidence, 1e-9)
	})

	t.Run("缺少建议数组也合法", func(t *testing.T) {
		resp, err := parseResponse(`{"summary":"观察即可","confidence":0.6}`)
		require.NoError(t, err)
		assert.Empty(t, resp.Suggestions)
	})

	t.Run("置信度钳制到单位区间", func(t *testing.T) {
		resp, err := parseResponse(`{"summary":"x","confidence":1.7}`)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, resp.Confidence, 1e-9)
	})

	t.Run("非法形态", func(t *testing.T) {
		_, err := parseResponse("没有对象")
		assert.ErrorIs(t, err, ErrAdvisor)
		_, err = parseResponse(`["array","root"]`)
		assert.ErrorIs(t, err, ErrAdvisor)
		_, err = parseResponse(`{"summary":"x","suggestions":"not-an-array"}`)
		assert.ErrorIs(t, err, ErrAdvisor)
		_, err = parseResponse(`{"summary":"x","suggestions":["字符串元素"]}`)
		assert.ErrorIs(t, err, ErrAdvisor)
	})
}

func TestValidateSuggestions(t *testing.T) {
	ok := []Suggestion{{Action: "sit", Subject: "Breece Hall", Confidence: 0.8}}
	assert.NoError(t, validateSuggestions(ok))

	// action 与 subject 是硬性字段。
	assert.ErrorIs(t, validateSuggestions([]Suggestion{{Action: "", Subject: "X"}}), ErrAdvisor)
	assert.ErrorIs(t, validateSuggestions([]Suggestion{{Action: "sit", Subject: ""}}), ErrAdvisor)
}

func TestAskFallsBackInsteadOfErroring(t *testing.T) {
	svc := NewWithProviders([]Provider{
		&fakeProvider{id: "primary", err: errors.New("502")},
		&fakeProvider{id: "secondary", err: errors.New("timeout")},
	}, time.Second)

	resp, err := svc.Ask(context.Background(), eventRequest())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, "rule-fallback", resp.Identity)
	// critical 事件的规则降级必须给出保守的停用建议。
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, "sit", resp.Suggestions[0].Action)
	assert.Equal(t, "Breece Hall", resp.Suggestions[0].Subject)
	assert.Equal(t, "Jaylen Warren", resp.Suggestions[0].Alternative)
	assert.Less(t, resp.Confidence, 0.5)
}

func TestAskTriesProvidersInOrder(t *testing.T) {
	broken := &fakeProvider{id: "primary", err: errors.New("503")}
	healthy := &fakeProvider{
		id:      "fallback-model",
		cost:    0.002,
		content: `{"summary":"ok","confidence":0.8,"suggestions":[{"action":"sit","subject":"Breece Hall","confidence":0.8}]}`,
	}
	svc := NewWithProviders([]Provider{broken, healthy}, time.Second)

	resp, err := svc.Ask(context.Background(), eventRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, healthy.calls)
	assert.False(t, resp.Degraded)
	assert.Equal(t, "fallback-model", resp.Identity)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 80, resp.Usage.CompletionTokens)
	// 0.002 * 200 / 1000 = 0.0004
	assert.True(t, resp.Usage.Cost.Equal(decimal.RequireFromString("0.0004")),
		"cost=%s", resp.Usage.Cost)
}

func TestAskRejectsMalformedProviderOutput(t *testing.T) {
	// 唯一模型输出坏 JSON，等同全部失败，走规则降级。
	svc := NewWithProviders([]Provider{
		&fakeProvider{id: "primary", content: "抱歉，我无法给出结构化建议。"},
	}, time.Second)

	resp, err := svc.Ask(context.Background(), eventRequest())
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
}

func TestJudgePattern(t *testing.T) {
	t.Run("正常评估返回百分制", func(t *testing.T) {
		svc := NewWithProviders([]Provider{
			&fakeProvider{id: "m", content: `{"summary":"样本充分","confidence":0.72}`},
		}, time.Second)
		conf, err := svc.JudgePattern(context.Background(), "早期高调换", "早期阶段多调换成功", 6)
		require.NoError(t, err)
		assert.InDelta(t, 72.0, conf, 1e-9)
	})

	t.Run("降级时返回错误而非降级分数", func(t *testing.T) {
		svc := NewWithProviders([]Provider{
			&fakeProvider{id: "m", err: errors.New("down")},
		}, time.Second)
		_, err := svc.JudgePattern(context.Background(), "x", "y", 3)
		assert.ErrorIs(t, err, ErrAdvisor)
	})
}

func TestBuildUserPromptSections(t *testing.T) {
	prompt, err := buildUserPrompt(eventRequest())
	require.NoError(t, err)
	assert.Contains(t, prompt, "## 场景")
	assert.Contains(t, prompt, "## 数据")
	assert.Contains(t, prompt, "## 允许的动作")
	assert.Contains(t, prompt, "start, sit, monitor")

	// 无数据与能力时不输出空节。
	prompt, err = buildUserPrompt(Request{Purpose: "x", Context: "仅场景"})
	require.NoError(t, err)
	assert.NotContains(t, prompt, "## 数据")
	assert.NotContains(t, prompt, "## 允许的动作")
}

func TestEstimateCost(t *testing.T) {
	assert.True(t, estimateCost(0, 1000).IsZero())
	assert.True(t, estimateCost(0.5, 0).IsZero())
	// 0.00045 * 1500 / 1000 = 0.000675
	assert.True(t, estimateCost(0.00045, 1500).Equal(decimal.RequireFromString("0.000675")))
}

func TestFallbackByPurpose(t *testing.T) {
	resp := Fallback(Request{Purpose: "season_presets"})
	assert.True(t, resp.Degraded)
	assert.Contains(t, resp.Summary, "预设")

	resp = Fallback(Request{Purpose: "event_decision", Data: map[string]any{"severity": "critical"}})
	// 缺少当事球员时只观察，不给动作。
	assert.Empty(t, resp.Suggestions)
}
