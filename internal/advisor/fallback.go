package advisor

import (
	"fmt"
	"strings"
)

// 规则降级：顾问不可用时给出保守建议，置信度压到 0.5 以下，
// 保证引擎永远拿得到一个可执行的结构化响应。

const degradedConfidence = 0.45

// Fallback 按请求目的生成规则化响应。
func Fallback(req Request) Response {
	resp := Response{
		Identity:   "rule-fallback",
		Degraded:   true,
		Confidence: degradedConfidence,
	}
	switch req.Purpose {
	case "event_decision":
		resp.Summary, resp.Suggestions = fallbackEventSuggestions(req)
	case "season_presets":
		resp.Summary = "顾问不可用，沿用当前阶段预设"
	default:
		resp.Summary = "顾问不可用，保守处理"
	}
	return resp
}

// fallbackEventSuggestions 对事件决策的保守规则：高严重度建议停用当事球员，
// 有备选就替换上场，否则仅观察。
func fallbackEventSuggestions(req Request) (string, []Suggestion) {
	subject, _ := req.Data["subject"].(string)
	severity, _ := req.Data["severity"].(string)
	alternative, _ := req.Data["alternative"].(string)
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "事件缺少当事球员，建议观察", nil
	}
	switch severity {
	case "critical", "high":
		s := Suggestion{
			Action:     "sit",
			Subject:    subject,
			Rationale:  fmt.Sprintf("%s 事件严重度为 %s，规则降级采取保守处理", subject, severity),
			Confidence: degradedConfidence,
		}
		if alternative != "" {
			s.Action = "start"
			s.Subject = alternative
			s.Alternative = subject
			s.Rationale = fmt.Sprintf("用 %s 顶替 %s（严重度 %s，规则降级）", alternative, subject, severity)
		}
		return "规则降级：保守换人", []Suggestion{s}
	default:
		return "严重度不高，规则降级为观察", []Suggestion{{
			Action:     "monitor",
			Subject:    subject,
			Rationale:  "严重度不足以触发动作，持续观察",
			Confidence: degradedConfidence,
		}}
	}
}
