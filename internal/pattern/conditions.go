package pattern

import (
	"strconv"
	"strings"
)

// matchCondition 是唯一的条件解释器。数值运算符在两侧都可解析为数字时
// 按数值比较，否则按字符串比较。未知运算符一律不匹配。
func matchCondition(c Condition, context map[string]string) bool {
	actual, ok := context[c.Factor]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(c.Value))
	case OpNe:
		return !strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(c.Value))
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(c.Value))
	case OpGt, OpGte, OpLt, OpLte:
		a, aerr := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		b, berr := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if aerr != nil || berr != nil {
			return false
		}
		switch c.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	}
	return false
}

// Matches 要求全部条件命中。空条件集不匹配任何上下文。
func (p Pattern) Matches(context map[string]string) bool {
	if len(p.Conditions) == 0 {
		return false
	}
	for _, c := range p.Conditions {
		if !matchCondition(c, context) {
			return false
		}
	}
	return true
}

// MatchWeight 命中条件的权重合计（全部命中时即条件总权重）。
func (p Pattern) MatchWeight() float64 {
	var sum float64
	for _, c := range p.Conditions {
		sum += c.Weight
	}
	return sum
}
