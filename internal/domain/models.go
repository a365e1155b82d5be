package domain

import (
	"fmt"
	"time"
)

// QuizType classifies the kind of placement round a quiz prepares for.
type QuizType string

const (
	QuizTypeAptitude  QuizType = "aptitude"
	QuizTypeCoding    QuizType = "coding"
	QuizTypeTechnical QuizType = "technical"
)

// Valid reports whether t is one of the known quiz types.
func (t QuizType) Valid() bool {
	switch t {
	case QuizTypeAptitude, QuizTypeCoding, QuizTypeTechnical:
		return true
	}
	return false
}

// Question models an MCQ question with exactly one correct option index.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Prompt        string   `json:"prompt" yaml:"prompt"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correctAnswer" yaml:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty" yaml:"explanation"`
	Difficulty    float64  `json:"difficulty" yaml:"difficulty"`
	Topic         string   `json:"topic" yaml:"topic"`
	TimeLimit     int      `json:"timeLimit" yaml:"time_limit"` // seconds
	Points        int      `json:"points" yaml:"points"`        // defaults to 1 if zero
}

// PointValue returns the points awarded for a correct answer.
func (q Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Quiz is an immutable, ordered collection of questions. A new version gets a new ID.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Company   string     `json:"company" yaml:"company"`
	Type      QuizType   `json:"type" yaml:"type"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
	TimeLimit int        `json:"timeLimit" yaml:"time_limit"` // seconds, whole quiz
	Active    bool       `json:"active" yaml:"active"`
	CreatedBy string     `json:"createdBy,omitempty" yaml:"created_by"`
	CreatedAt time.Time  `json:"createdAt" yaml:"-"`
}

// TotalPoints is the sum of question points.
func (q Quiz) TotalPoints() int {
	total := 0
	for _, question := range q.Questions {
		total += question.PointValue()
	}
	return total
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// Validate checks the structural rules a quiz must satisfy before it can be stored.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return Invalid("id", "is required")
	}
	if q.Company == "" {
		return Invalid("company", "is required")
	}
	if !q.Type.Valid() {
		return Invalid("type", fmt.Sprintf("%q is not a quiz type", q.Type))
	}
	if len(q.Questions) == 0 {
		return Invalid("questions", "must not be empty")
	}
	if q.TimeLimit < 0 {
		return Invalid("timeLimit", "must not be negative")
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if question.ID == "" {
			return Invalid(field+".id", "is required")
		}
		if _, dup := seen[question.ID]; dup {
			return Invalid(field+".id", fmt.Sprintf("%q is duplicated", question.ID))
		}
		seen[question.ID] = struct{}{}
		if len(question.Options) < 2 {
			return Invalid(field+".options", "needs at least two options")
		}
		if question.CorrectAnswer < 0 || question.CorrectAnswer >= len(question.Options) {
			return Invalid(field+".correctAnswer", "is out of range")
		}
		if question.Difficulty < 0 || question.Difficulty > 1 {
			return Invalid(field+".difficulty", "must be within 0.0-1.0")
		}
		if question.Points < 0 {
			return Invalid(field+".points", "must not be negative")
		}
	}
	return nil
}

// Student is the read-only identity used for display joins.
type Student struct {
	ID     string `json:"id" yaml:"id"`
	Email  string `json:"email" yaml:"email"`
	Name   string `json:"name" yaml:"name"`
	Branch string `json:"branch" yaml:"branch"`
	Year   string `json:"year" yaml:"year"`
}

// LeaderboardEntry is a ranked, read-only projection of a rollup.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	StudentID      string  `json:"studentId"`
	DisplayName    string  `json:"displayName"`
	Branch         string  `json:"branch"`
	Company        string  `json:"company"`
	Topic          string  `json:"topic,omitempty"`
	AverageScore   float64 `json:"averageScore"`
	TotalAttempts  int     `json:"totalAttempts"`
	TotalQuestions int     `json:"totalQuestions"`
	CorrectAnswers int     `json:"correctAnswers"`
}

// QuestionAnalytics summarizes how one question performed across completed attempts.
type QuestionAnalytics struct {
	QuestionID      string  `json:"questionId"`
	TotalAttempts   int     `json:"totalAttempts"`
	CorrectAttempts int     `json:"correctAttempts"`
	AccuracyRate    float64 `json:"accuracyRate"`
	AverageTime     float64 `json:"averageTime"`
	Difficulty      float64 `json:"difficulty"`
}

// QuizStatistics aggregates completed attempts of one quiz.
type QuizStatistics struct {
	QuizID           string              `json:"quizId"`
	Company          string              `json:"company"`
	TotalAttempts    int                 `json:"totalAttempts"`
	TotalStudents    int                 `json:"totalStudents"`
	AverageScore     float64             `json:"averageScore"`
	HighestScore     float64             `json:"highestScore"`
	LowestScore      float64             `json:"lowestScore"`
	CompletionRate   float64             `json:"completionRate"`
	AverageTimeTaken float64             `json:"averageTimeTaken"`
	Questions        []QuestionAnalytics `json:"questions"`
	CalculatedAt     time.Time           `json:"calculatedAt"`
}

// CompanySummary rolls up every student's performance for one company.
type CompanySummary struct {
	Company        string    `json:"company"`
	TotalStudents  int       `json:"totalStudents"`
	TotalAttempts  int       `json:"totalAttempts"`
	TotalQuestions int       `json:"totalQuestions"`
	AverageScore   float64   `json:"averageScore"`
	CompletionRate float64   `json:"completionRate"`
	GeneratedAt    time.Time `json:"generatedAt"`
}
