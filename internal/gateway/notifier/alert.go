package notifier

import (
	"fmt"
	"time"

	"huddle/internal/logger"
)

// AlertLevel 升级告警级别。
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Alert 升级告警载荷：引擎无法自动执行时交人工裁决的内容。
type Alert struct {
	Level    AlertLevel
	Title    string
	Message  string
	Actions  []string
	Deadline *time.Time
}

func (l AlertLevel) icon() string {
	switch l {
	case AlertCritical:
		return "🚨"
	case AlertWarning:
		return "⚠️"
	}
	return "ℹ️"
}

// Render 把告警格式化为统一推送文本。
func (a Alert) Render() string {
	msg := StructuredMessage{
		Icon:      a.Level.icon(),
		Title:     a.Title,
		Timestamp: time.Now(),
	}
	if a.Message != "" {
		msg.Sections = append(msg.Sections, MessageSection{
			Title: "情况",
			Lines: []string{a.Message},
		})
	}
	if len(a.Actions) > 0 {
		msg.Sections = append(msg.Sections, MessageSection{
			Title: "建议动作（按优先级）",
			Lines: a.Actions,
		})
	}
	if a.Deadline != nil && !a.Deadline.IsZero() {
		msg.Footer = fmt.Sprintf("处理截止：%s", a.Deadline.Format("2006-01-02 15:04 MST"))
	}
	return msg.RenderMarkdown()
}

// SendAlert 渲染并发送。通知失败只记日志，不阻断决策流程。
func SendAlert(n TextNotifier, a Alert) {
	if n == nil {
		return
	}
	if err := n.SendText(a.Render()); err != nil {
		logger.Warnf("notifier: 升级告警发送失败 title=%q: %v", a.Title, err)
	}
}

// Nop 丢弃所有消息（未配置通知渠道时使用）。
type Nop struct{}

func (Nop) SendText(string) error { return nil }
