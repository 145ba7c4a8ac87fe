package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	advisorMu          sync.Mutex
	advisorLog         *log.Logger
	advisorDumpPayload bool
)

// SetAdvisorWriter 设置顾问请求/响应日志的输出（nil 表示关闭）。
func SetAdvisorWriter(w io.Writer) {
	advisorMu.Lock()
	defer advisorMu.Unlock()
	if w == nil {
		advisorLog = nil
		return
	}
	advisorLog = log.New(w, "", log.LstdFlags)
}

// EnableAdvisorPayloadDump 控制是否在日志中附带完整请求 payload。
func EnableAdvisorPayloadDump(enabled bool) {
	advisorMu.Lock()
	advisorDumpPayload = enabled
	advisorMu.Unlock()
}

type advisorSection struct {
	Title string
	Body  string
}

func logAdvisor(kind, provider, purpose string, sections []advisorSection) {
	advisorMu.Lock()
	l := advisorLog
	advisorMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[ADVISOR]")
	for _, tag := range []string{kind, provider, purpose} {
		if tag != "" {
			b.WriteString("[")
			b.WriteString(tag)
			b.WriteString("]")
		}
	}
	b.WriteString("\n")
	for _, sec := range sections {
		t := strings.TrimSpace(sec.Title)
		if t == "" {
			t = "CONTENT"
		}
		b.WriteString("--- ")
		b.WriteString(t)
		b.WriteString(" ---\n")
		b.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}

// LogAdvisorRequest 记录一次顾问调用的输入（system/user prompt，可选完整 payload）。
func LogAdvisorRequest(provider, purpose, systemPrompt, userPrompt, payload string) {
	sections := []advisorSection{
		{Title: "SYSTEM", Body: systemPrompt},
		{Title: "USER", Body: userPrompt},
	}
	if advisorDumpPayload && strings.TrimSpace(payload) != "" {
		sections = append(sections, advisorSection{Title: "PAYLOAD", Body: payload})
	}
	logAdvisor("request", provider, purpose, sections)
}

// LogAdvisorResponse 记录顾问的原始输出。
func LogAdvisorResponse(provider, purpose, raw string) {
	logAdvisor("response", provider, purpose, []advisorSection{{Title: "RAW", Body: raw}})
}
