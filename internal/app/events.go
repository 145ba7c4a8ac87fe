package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"huddle/internal/engine"
	"huddle/internal/logger"

	"github.com/google/uuid"
)

// eventWire 事件文件里的单条事件。time_to_deadline 用 Go duration 字符串。
type eventWire struct {
	ID               string  `json:"id"`
	SubjectName      string  `json:"subject_name"`
	Severity         string  `json:"severity"`
	Category         string  `json:"category"`
	Description      string  `json:"description"`
	SourceConfidence float64 `json:"source_confidence"`
	TimeToDeadline   string  `json:"time_to_deadline"`
}

// processEvents 摄取周期间积攒的事件文件并逐条交给引擎。
// 单条事件失败只记警告；处理完把文件改名防止重复摄取。
func (a *App) processEvents(ctx context.Context, week int) (processed, decisions int, warnings []string) {
	path := strings.TrimSpace(a.cfg.Engine.EventsPath)
	if path == "" {
		return 0, 0, nil
	}
	events, err := readEventFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, []string{fmt.Sprintf("事件文件读取失败: %v", err)}
	}

	for _, ev := range events {
		processed++
		d, err := a.eng.HandleEvent(ctx, ev, week)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("事件 %s 处理失败: %v", ev.ID, err))
			continue
		}
		if d != nil {
			decisions++
		}
	}

	consumed := fmt.Sprintf("%s.%s.processed", path, time.Now().UTC().Format("20060102T150405"))
	if err := os.Rename(path, consumed); err != nil {
		warnings = append(warnings, fmt.Sprintf("事件文件归档失败: %v", err))
	}
	logger.Infof("cycle: 摄取 %d 个事件，生成 %d 个决策", processed, decisions)
	return processed, decisions, warnings
}

func readEventFile(path string) ([]engine.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wires []eventWire
	if err := json.Unmarshal(raw, &wires); err != nil {
		return nil, fmt.Errorf("parse events failed: %w", err)
	}
	events := make([]engine.Event, 0, len(wires))
	for _, w := range wires {
		ev := engine.Event{
			ID:               w.ID,
			SubjectName:      w.SubjectName,
			Severity:         engine.Severity(strings.ToLower(strings.TrimSpace(w.Severity))),
			Category:         w.Category,
			Description:      w.Description,
			SourceConfidence: w.SourceConfidence,
			OccurredAt:       time.Now().UTC(),
		}
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if w.TimeToDeadline != "" {
			d, err := time.ParseDuration(w.TimeToDeadline)
			if err != nil {
				return nil, fmt.Errorf("event %s: bad time_to_deadline %q", ev.ID, w.TimeToDeadline)
			}
			ev.TimeToDeadline = d
		}
		events = append(events, ev)
	}
	return events, nil
}
