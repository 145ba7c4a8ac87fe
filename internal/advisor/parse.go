package advisor

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSONObject 提取文本中首个平衡的 JSON 对象（模型常把 JSON 包在说明或代码块里）。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1]), true
			}
		}
	}
	return "", false
}

// parseResponse 把原始补全解析为结构化响应。容忍字段缺失与字符串数字，
// 但根对象必须存在且 suggestions（若有）必须是数组。
func parseResponse(raw string) (Response, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return Response{}, fmt.Errorf("%w: 输出中没有 JSON 对象", ErrAdvisor)
	}
	if !gjson.Valid(obj) {
		return Response{}, fmt.Errorf("%w: json 格式无效", ErrAdvisor)
	}
	parsed := gjson.Parse(obj)
	if !parsed.IsObject() {
		return Response{}, fmt.Errorf("%w: 根节点必须是 JSON 对象", ErrAdvisor)
	}
	resp := Response{
		Summary:    strings.TrimSpace(parsed.Get("summary").String()),
		Confidence: clamp01(parsed.Get("confidence").Float()),
	}
	suggestions := parsed.Get("suggestions")
	if !suggestions.Exists() {
		return resp, nil
	}
	if !suggestions.IsArray() {
		return Response{}, fmt.Errorf("%w: suggestions 必须是数组", ErrAdvisor)
	}
	var parseErr error
	idx := 0
	suggestions.ForEach(func(_, value gjson.Result) bool {
		idx++
		if !value.IsObject() {
			parseErr = fmt.Errorf("%w: 建议#%d 需为对象", ErrAdvisor, idx)
			return false
		}
		resp.Suggestions = append(resp.Suggestions, Suggestion{
			Action:      strings.ToLower(strings.TrimSpace(value.Get("action").String())),
			Subject:     strings.TrimSpace(value.Get("subject").String()),
			Alternative: strings.TrimSpace(value.Get("alternative").String()),
			Rationale:   strings.TrimSpace(value.Get("rationale").String()),
			Confidence:  clamp01(value.Get("confidence").Float()),
		})
		return true
	})
	if parseErr != nil {
		return Response{}, parseErr
	}
	return resp, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
