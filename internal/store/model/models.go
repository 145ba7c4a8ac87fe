package model

import (
	"time"

	"gorm.io/datatypes"
)

type ExperimentStatus int

const (
	ExperimentStatusActive    ExperimentStatus = 0
	ExperimentStatusConcluded ExperimentStatus = 1
)

type PatternKind int

const (
	PatternKindSuccess PatternKind = 0
	PatternKindAnti    PatternKind = 1
)

// RecommendationModel 持久化一条被追踪的建议。
type RecommendationModel struct {
	ID              string         `gorm:"column:id;primaryKey"`
	Kind            string         `gorm:"column:kind;index"`
	Period          int            `gorm:"column:period;index"`
	League          string         `gorm:"column:league;index"`
	Team            string         `gorm:"column:team"`
	PayloadJSON     datatypes.JSON `gorm:"column:payload_json;type:TEXT"`
	Confidence      float64        `gorm:"column:confidence"`
	AdvisorUsed     bool           `gorm:"column:advisor_used"`
	AdvisorIdentity string         `gorm:"column:advisor_identity"`
	CostEstimate    string         `gorm:"column:cost_estimate"` // decimal 字符串，避免浮点漂移
	DataSourcesJSON datatypes.JSON `gorm:"column:data_sources_json;type:TEXT"`
	ContextJSON     datatypes.JSON `gorm:"column:context_json;type:TEXT"`
	ExperimentID    string         `gorm:"column:experiment_id;index"`
	Variant         string         `gorm:"column:variant"`
	CreatedAtUnix   int64          `gorm:"column:created_at;index"`

	CreatedAt time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (RecommendationModel) TableName() string { return "recommendations" }

// OutcomeModel 与 RecommendationModel 一比一关联（按 recommendation_id 唯一）。
type OutcomeModel struct {
	ID               int64          `gorm:"column:id;primaryKey"`
	RecommendationID string         `gorm:"column:recommendation_id;uniqueIndex"`
	Success          bool           `gorm:"column:success"`
	ActualValue      float64        `gorm:"column:actual_value"`
	ProjectedValue   float64        `gorm:"column:projected_value"`
	Accuracy         float64        `gorm:"column:accuracy"`
	AccuracyDefined  bool           `gorm:"column:accuracy_defined"`
	BreakdownJSON    datatypes.JSON `gorm:"column:breakdown_json;type:TEXT"`
	Notes            string         `gorm:"column:notes"`
	RecordedAtUnix   int64          `gorm:"column:recorded_at"`

	CreatedAt time.Time `gorm:"-"`
	UpdatedAt time.Time `gorm:"-"`
}

func (OutcomeModel) TableName() string { return "outcomes" }

// PatternModel 同时承载成功模式与反模式（kind 区分）。
type PatternModel struct {
	ID             string         `gorm:"column:id;primaryKey"`
	Kind           PatternKind    `gorm:"column:kind;index"`
	Name           string         `gorm:"column:name;index"`
	Description    string         `gorm:"column:description"`
	ConditionsJSON datatypes.JSON `gorm:"column:conditions_json;type:TEXT"`
	Confidence     float64        `gorm:"column:confidence"`
	SuccessRate    float64        `gorm:"column:success_rate"`
	TimesApplied   int            `gorm:"column:times_applied"`
	UsageCount     int            `gorm:"column:usage_count"` // 累计证据条数，置信度合并依赖它
	Cost           float64        `gorm:"column:cost"`        // 反模式代价，>=0
	Retired        bool           `gorm:"column:retired;index"`
	ExamplesJSON   datatypes.JSON `gorm:"column:examples_json;type:TEXT"`
	LastUpdated    int64          `gorm:"column:last_updated"`
	CreatedAtUnix  int64          `gorm:"column:created_at"`
}

func (PatternModel) TableName() string { return "patterns" }

// StrategyProfileModel 按版本追加，phase 为空表示全局活动档案。
type StrategyProfileModel struct {
	ID                 int64          `gorm:"column:id;primaryKey"`
	Version            int            `gorm:"column:version;uniqueIndex:idx_profile_phase_version,priority:2"`
	Phase              string         `gorm:"column:phase;uniqueIndex:idx_profile_phase_version,priority:1"`
	ThresholdsJSON     datatypes.JSON `gorm:"column:thresholds_json;type:TEXT"`
	RiskTolerance      float64        `gorm:"column:risk_tolerance"`
	FactorWeightsJSON  datatypes.JSON `gorm:"column:factor_weights_json;type:TEXT"`
	PatternWeightsJSON datatypes.JSON `gorm:"column:pattern_weights_json;type:TEXT"`
	Active             bool           `gorm:"column:active;index"`
	Note               string         `gorm:"column:note"`
	CreatedAtUnix      int64          `gorm:"column:created_at"`
}

func (StrategyProfileModel) TableName() string { return "strategy_profiles" }

// ExperimentModel 记录一次 A/B 实验（恰好两个 variant）。
type ExperimentModel struct {
	ID              string           `gorm:"column:id;primaryKey"`
	Name            string           `gorm:"column:name"`
	Description     string           `gorm:"column:description"`
	ControlJSON     datatypes.JSON   `gorm:"column:control_json;type:TEXT"`
	TreatmentJSON   datatypes.JSON   `gorm:"column:treatment_json;type:TEXT"`
	Allocation      float64          `gorm:"column:allocation"` // treatment 分配比例 0~100
	MetricsJSON     datatypes.JSON   `gorm:"column:metrics_json;type:TEXT"`
	Status          ExperimentStatus `gorm:"column:status;index"`
	Winner          string           `gorm:"column:winner"`
	WinnerConfidence float64         `gorm:"column:winner_confidence"`
	CreatedAtUnix   int64            `gorm:"column:created_at"`
	ConcludedAtUnix int64            `gorm:"column:concluded_at"`
}

func (ExperimentModel) TableName() string { return "experiments" }

// SeasonRecordModel 每周期一条（period 唯一，重复写入为原地更新）。
type SeasonRecordModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Period        int            `gorm:"column:period;uniqueIndex"`
	Phase         string         `gorm:"column:phase"`
	SummaryJSON   datatypes.JSON `gorm:"column:summary_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (SeasonRecordModel) TableName() string { return "season_records" }

// DecisionAuditModel 持久化实时引擎的每个决策（含升级未执行的）。
type DecisionAuditModel struct {
	ID               string         `gorm:"column:id;primaryKey"`
	EventID          string         `gorm:"column:event_id;index"`
	Type             string         `gorm:"column:type"`
	Priority         string         `gorm:"column:priority"`
	DeadlineUnix     int64          `gorm:"column:deadline"`
	Confidence       float64        `gorm:"column:confidence"`
	EstimatedImpact  float64        `gorm:"column:estimated_impact"`
	SubjectsJSON     datatypes.JSON `gorm:"column:subjects_json;type:TEXT"`
	ActionsJSON      datatypes.JSON `gorm:"column:actions_json;type:TEXT"`
	ResultsJSON      datatypes.JSON `gorm:"column:results_json;type:TEXT"`
	Executed           bool           `gorm:"column:executed"`
	RecommendationJSON datatypes.JSON `gorm:"column:recommendation_ids;type:TEXT"`
	CreatedAtUnix      int64          `gorm:"column:created_at;index"`
}

func (DecisionAuditModel) TableName() string { return "decision_audits" }
