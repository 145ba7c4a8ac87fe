package engine

import (
	"context"
	"errors"
	"time"
)

// 中文说明：
// 事件是瞬态输入，决策是结构化输出。每个决策恰好来自一个事件；
// 只有 auto_action 决策会在台账产生建议，升级/信息类决策只留审计记录。

var (
	// ErrExecution 动作执行失败（单个动作失败不阻断后续动作）。
	ErrExecution = errors.New("engine: action execution failed")
)

// Severity 事件严重度。
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank 用于阈值比较，未知值按最低处理。
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	}
	return 0
}

// AtLeast 严重度不低于 min。
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// Event 外部事件（伤病、天气、阵容变动等），被过滤或转化为一个决策。
type Event struct {
	ID               string        `json:"id"`
	SubjectName      string        `json:"subject_name"`
	Severity         Severity      `json:"severity"`
	Category         string        `json:"category"` // injury | weather | depth_chart | game_status | news
	Description      string        `json:"description"`
	SourceConfidence float64       `json:"source_confidence"` // 0~1
	TimeToDeadline   time.Duration `json:"time_to_deadline"`
	OccurredAt       time.Time     `json:"occurred_at"`
}

// DecisionType 决策落点。
type DecisionType string

const (
	DecisionAutoAction DecisionType = "auto_action"
	DecisionEscalation DecisionType = "escalation"
	DecisionInfoOnly   DecisionType = "info_only"
)

// Priority 决策优先级。
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Action 决策中的一个有序动作。
type Action struct {
	Verb         string  `json:"verb"` // start | sit | add | drop | trade | monitor
	Subject      string  `json:"subject"`
	Alternative  string  `json:"alternative,omitempty"`
	Rationale    string  `json:"rationale,omitempty"`
	UrgencyScore float64 `json:"urgency_score"`
}

// ActionResult 单个动作在某个联赛名单上的执行结果。
type ActionResult struct {
	League  string `json:"league"`
	Team    string `json:"team"`
	Action  Action `json:"action"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// Decision 引擎对单个事件的结构化输出。
type Decision struct {
	ID               string         `json:"id"`
	EventID          string         `json:"event_id"`
	Type             DecisionType   `json:"type"`
	Priority         Priority       `json:"priority"`
	Deadline         time.Time      `json:"deadline"`
	AffectedSubjects []string       `json:"affected_subjects"`
	Actions          []Action       `json:"actions"`
	Confidence       float64        `json:"confidence"` // 0~1
	EstimatedImpact  float64        `json:"estimated_impact"`
	Results          []ActionResult `json:"results,omitempty"`
	Executed         bool           `json:"executed"`
	// RecommendationIDs 每个命中联赛对应一条台账建议。
	RecommendationIDs []string `json:"recommendation_ids,omitempty"`
	Rationale        []string       `json:"rationale,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// AuditStore 决策审计落库接口，由 gormstore 实现。升级未执行的决策也要留痕。
type AuditStore interface {
	InsertDecision(ctx context.Context, d Decision) error
	RecentDecisions(ctx context.Context, limit int) ([]Decision, error)
}
