package advisor

import (
	"errors"

	"github.com/shopspring/decimal"
)

// 中文说明：
// 顾问返回的是结构化契约：自由文本只留在 summary 里，动作建议必须是
// 类型化对象（action/subject/alternative/rationale/confidence），
// 不做正则抓关键词那一套。

var (
	// ErrAdvisor 顾问调用失败、超时或输出不可用。调用方应降级到规则逻辑。
	ErrAdvisor = errors.New("advisor: unavailable")
)

// Request 发给顾问的结构化请求。
type Request struct {
	Purpose      string         `json:"purpose"` // event_decision | pattern_judgment | season_presets
	Context      string         `json:"context"` // 人类可读的场景描述
	Data         map[string]any `json:"data,omitempty"`
	Capabilities []string       `json:"capabilities,omitempty"` // 允许的动作动词
}

// Suggestion 单条类型化建议。
type Suggestion struct {
	Action      string  `json:"action"`
	Subject     string  `json:"subject"`
	Alternative string  `json:"alternative,omitempty"`
	Rationale   string  `json:"rationale,omitempty"`
	Confidence  float64 `json:"confidence"` // 0~1
}

// Usage 一次调用的用量与成本。
type Usage struct {
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	Cost             decimal.Decimal `json:"cost"`
}

// Response 顾问输出。Suggestions 可为空（纯信息类回答）。
type Response struct {
	Summary     string       `json:"summary"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Confidence  float64      `json:"confidence"` // 0~1，整体置信度
	Identity    string       `json:"identity"`   // provider/model id
	Usage       Usage        `json:"usage"`
	Degraded    bool         `json:"degraded"` // 规则降级产出
}
