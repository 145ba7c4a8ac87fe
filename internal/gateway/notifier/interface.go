package notifier

// TextNotifier 文本通知的最小接口，升级告警与周期摘要都经由它推送。
// 刻意保持窄口径：组件依赖接口即可，不必引入具体渠道实现（如 Telegram）。
type TextNotifier interface {
	SendText(text string) error
}
