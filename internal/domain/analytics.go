package domain

import (
	"strconv"
	"time"
)

// Trend compares a rollup's latest average with the previous one.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// CompareTrend is a two-point comparison; ties are stable.
func CompareTrend(previous, latest float64) Trend {
	switch {
	case latest > previous:
		return TrendImproving
	case latest < previous:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// RollupKey identifies the serialization unit for folds.
type RollupKey struct {
	StudentID string
	Company   string
}

func (k RollupKey) String() string {
	return k.StudentID + "|" + k.Company
}

// LockName is an unambiguous encoding of the key for lock tables. The student id is
// length-prefixed so separators inside ids cannot make two keys collide.
func (k RollupKey) LockName() string {
	return strconv.Itoa(len(k.StudentID)) + ":" + k.StudentID + "|" + k.Company
}

// PerformanceAnalytics is an incrementally maintained rollup. Topic "" is the overall
// (student, company) row; other topics are per-topic rows under the same key.
type PerformanceAnalytics struct {
	StudentID           string    `json:"studentId"`
	Company             string    `json:"company"`
	Topic               string    `json:"topic,omitempty"`
	TotalAttempts       int       `json:"totalAttempts"`
	TotalQuestions      int       `json:"totalQuestions"`
	CorrectAnswers      int       `json:"correctAnswers"`
	IncorrectAnswers    int       `json:"incorrectAnswers"`
	SkippedQuestions    int       `json:"skippedQuestions"`
	TotalScore          int       `json:"totalScore"`
	MaxPossibleScore    int       `json:"maxPossibleScore"`
	AverageScore        float64   `json:"averageScore"`
	TotalResponseTime   float64   `json:"totalResponseTime"`
	AverageResponseTime float64   `json:"averageResponseTime"`
	ImprovementTrend    Trend     `json:"improvementTrend"`
	Strengths           []string  `json:"strengths"`
	Weaknesses          []string  `json:"weaknesses"`
	Recommendations     []string  `json:"recommendations"`
	CalculatedAt        time.Time `json:"calculatedAt"`
}

// Key returns the fold serialization key of the row.
func (p PerformanceAnalytics) Key() RollupKey {
	return RollupKey{StudentID: p.StudentID, Company: p.Company}
}

// Validate checks the running-sum invariants of a rollup row.
func (p PerformanceAnalytics) Validate() error {
	if p.StudentID == "" {
		return Invalid("studentId", "is required")
	}
	if p.Company == "" {
		return Invalid("company", "is required")
	}
	if p.TotalAttempts < 1 {
		return Invalid("totalAttempts", "must be positive")
	}
	if p.TotalQuestions != p.CorrectAnswers+p.IncorrectAnswers {
		return Invalid("totalQuestions", "does not equal correct plus incorrect")
	}
	return nil
}

// RollupFilter selects rollup rows. An empty StudentID or Company matches any value;
// Topic always matches exactly, so the zero filter selects overall rows only.
type RollupFilter struct {
	StudentID string
	Company   string
	Topic     string
	AllTopics bool
}

// Match reports whether row satisfies the filter.
func (f RollupFilter) Match(row PerformanceAnalytics) bool {
	if f.StudentID != "" && row.StudentID != f.StudentID {
		return false
	}
	if f.Company != "" && row.Company != f.Company {
		return false
	}
	if !f.AllTopics && row.Topic != f.Topic {
		return false
	}
	return true
}

// StudentInsights is the overall view of a student's rollups with derived advice.
type StudentInsights struct {
	StudentID       string                 `json:"studentId"`
	Rollups         []PerformanceAnalytics `json:"rollups"`
	AverageScore    float64                `json:"averageScore"`
	TotalAttempts   int                    `json:"totalAttempts"` // folded attempts, all companies
	TotalScore      int                    `json:"totalScore"`
	TotalQuestions  int                    `json:"totalQuestions"`
	CorrectAnswers  int                    `json:"correctAnswers"`
	Strengths       []string               `json:"strengths"`
	Weaknesses      []string               `json:"weaknesses"`
	Recommendations []string               `json:"recommendations"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}
