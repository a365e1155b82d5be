package domain

import (
	"fmt"
	"time"
)

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptTimedOut   AttemptStatus = "timed_out"
)

// Terminal reports whether s is one of the one-way end states.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptCompleted, AttemptAbandoned, AttemptTimedOut:
		return true
	}
	return false
}

// DeviceInfo is stored as supplied by the client.
type DeviceInfo struct {
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// BehaviorData accumulates proctoring signals. Counters only grow.
type BehaviorData struct {
	TabSwitches          int      `json:"tabSwitches"`
	FullscreenExits      int      `json:"fullscreenExits"`
	CopyPasteAttempts    int      `json:"copyPasteAttempts"`
	RightClicks          int      `json:"rightClicks"`
	SuspiciousActivities []string `json:"suspiciousActivities"`
}

// Merge folds other into b. Negative counters are ignored and tags are deduplicated.
func (b *BehaviorData) Merge(other BehaviorData) {
	b.TabSwitches += nonNegative(other.TabSwitches)
	b.FullscreenExits += nonNegative(other.FullscreenExits)
	b.CopyPasteAttempts += nonNegative(other.CopyPasteAttempts)
	b.RightClicks += nonNegative(other.RightClicks)
	for _, tag := range other.SuspiciousActivities {
		if tag == "" || containsString(b.SuspiciousActivities, tag) {
			continue
		}
		b.SuspiciousActivities = append(b.SuspiciousActivities, tag)
	}
}

// Integrity is the outcome of the proctoring heuristics applied at close.
type Integrity struct {
	SuspiciousScore float64  `json:"suspiciousScore"`
	Suspicious      bool     `json:"suspicious"`
	Reasons         []string `json:"reasons"`
}

// Response is one answer to one question within one attempt.
type Response struct {
	AttemptID      string    `json:"attemptId"`
	QuestionID     string    `json:"questionId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	CorrectAnswer  int       `json:"correctAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	ResponseTime   float64   `json:"responseTime"` // seconds, caller-reported
	PointsEarned   int       `json:"pointsEarned"`
	Topic          string    `json:"topic"`
	Difficulty     float64   `json:"difficulty"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// Attempt is one student's pass through a snapshot of one quiz.
type Attempt struct {
	ID                string        `json:"id"`
	StudentID         string        `json:"studentId"`
	QuizID            string        `json:"quizId"`
	Company           string        `json:"company"`
	QuizType          QuizType      `json:"quizType"`
	Quiz              Quiz          `json:"quiz"`
	Status            AttemptStatus `json:"status"`
	Score             int           `json:"score"`
	MaxScore          int           `json:"maxScore"`
	Percentage        float64       `json:"percentage"`
	QuestionsAnswered int           `json:"questionsAnswered"`
	CorrectAnswers    int           `json:"correctAnswers"`
	IncorrectAnswers  int           `json:"incorrectAnswers"`
	SkippedQuestions  int           `json:"skippedQuestions"`
	Responses         []Response    `json:"responses"`
	StartedAt         time.Time     `json:"startedAt"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	TimeTaken         float64       `json:"timeTaken"` // seconds
	Behavior          BehaviorData  `json:"behavior"`
	Device            DeviceInfo    `json:"device"`
	Integrity         *Integrity    `json:"integrity,omitempty"`
	AnalyticsApplied  bool          `json:"analyticsApplied"`
}

// NewAttempt opens an attempt against a snapshot of quiz.
func NewAttempt(id, studentID string, quiz Quiz, device DeviceInfo, now time.Time) Attempt {
	snapshot := quiz
	snapshot.Questions = append([]Question(nil), quiz.Questions...)
	return Attempt{
		ID:        id,
		StudentID: studentID,
		QuizID:    quiz.ID,
		Company:   quiz.Company,
		QuizType:  quiz.Type,
		Quiz:      snapshot,
		Status:    AttemptInProgress,
		MaxScore:  snapshot.TotalPoints(),
		StartedAt: now,
		Device:    device,
		Responses: []Response{},
	}
}

// Percentage is 100*score/maxScore, or 0 when maxScore is 0.
func Percentage(score, maxScore int) float64 {
	if maxScore <= 0 {
		return 0
	}
	return 100 * float64(score) / float64(maxScore)
}

// Accuracy is 100*correct/answered, or 0 when nothing was answered.
func Accuracy(correct, answered int) float64 {
	if answered <= 0 {
		return 0
	}
	return 100 * float64(correct) / float64(answered)
}

// Answered reports whether questionID already has a response.
func (a Attempt) Answered(questionID string) bool {
	for _, r := range a.Responses {
		if r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// TotalQuestions is the number of questions in the snapshot.
func (a Attempt) TotalQuestions() int {
	return len(a.Quiz.Questions)
}

// RecordResponse applies one answer to an in-progress attempt.
func (a *Attempt) RecordResponse(questionID string, selected int, responseTime float64, now time.Time) (Response, error) {
	if a.Status != AttemptInProgress {
		return Response{}, fmt.Errorf("submit response to %s attempt: %w", a.Status, ErrInvalidState)
	}
	question, ok := a.Quiz.Question(questionID)
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
	}
	if a.Answered(questionID) {
		return Response{}, fmt.Errorf("%w: %s", ErrDuplicateResponse, questionID)
	}
	if selected < 0 || selected >= len(question.Options) {
		return Response{}, Invalid("selectedAnswer", "is out of range")
	}
	if responseTime < 0 {
		return Response{}, Invalid("responseTime", "must not be negative")
	}

	correct := selected == question.CorrectAnswer
	points := 0
	if correct {
		points = question.PointValue()
	}
	response := Response{
		AttemptID:      a.ID,
		QuestionID:     question.ID,
		SelectedAnswer: selected,
		CorrectAnswer:  question.CorrectAnswer,
		IsCorrect:      correct,
		ResponseTime:   responseTime,
		PointsEarned:   points,
		Topic:          question.Topic,
		Difficulty:     question.Difficulty,
		AnsweredAt:     now,
	}

	a.Responses = append(a.Responses, response)
	a.Score += points
	a.QuestionsAnswered++
	if correct {
		a.CorrectAnswers++
	} else {
		a.IncorrectAnswers++
	}
	a.Percentage = Percentage(a.Score, a.MaxScore)
	return response, nil
}

// Close moves an in-progress attempt to a terminal status. An empty status means completed.
func (a *Attempt) Close(status AttemptStatus, behavior BehaviorData, now time.Time) error {
	if status == "" {
		status = AttemptCompleted
	}
	if !status.Terminal() {
		return Invalid("status", fmt.Sprintf("%q is not a terminal status", status))
	}
	if a.Status != AttemptInProgress {
		return fmt.Errorf("close %s attempt: %w", a.Status, ErrInvalidState)
	}

	completedAt := now
	a.CompletedAt = &completedAt
	a.TimeTaken = now.Sub(a.StartedAt).Seconds()
	if a.TimeTaken < 0 {
		a.TimeTaken = 0
	}
	a.SkippedQuestions = a.TotalQuestions() - a.QuestionsAnswered
	a.Behavior.Merge(behavior)
	a.Percentage = Percentage(a.Score, a.MaxScore)
	a.Status = status
	return nil
}

// Validate checks the invariants a stored attempt must satisfy.
func (a Attempt) Validate() error {
	if a.ID == "" {
		return Invalid("id", "is required")
	}
	if a.StudentID == "" {
		return Invalid("studentId", "is required")
	}
	if a.QuizID == "" || a.Quiz.ID != a.QuizID {
		return Invalid("quiz", "snapshot does not match quizId")
	}
	switch {
	case a.Status == AttemptInProgress, a.Status.Terminal():
	default:
		return Invalid("status", fmt.Sprintf("%q is unknown", a.Status))
	}
	if a.MaxScore != a.Quiz.TotalPoints() {
		return Invalid("maxScore", "does not match snapshot points")
	}
	if a.Score < 0 || a.Score > a.MaxScore {
		return Invalid("score", "is out of range")
	}
	if a.QuestionsAnswered != a.CorrectAnswers+a.IncorrectAnswers {
		return Invalid("questionsAnswered", "does not equal correct plus incorrect")
	}
	if a.QuestionsAnswered != len(a.Responses) {
		return Invalid("responses", "count does not match questionsAnswered")
	}
	return nil
}

// Summary projects the final results of an attempt.
func (a Attempt) Summary() AttemptSummary {
	return AttemptSummary{
		AttemptID:         a.ID,
		QuizID:            a.QuizID,
		StudentID:         a.StudentID,
		Status:            a.Status,
		Score:             a.Score,
		MaxScore:          a.MaxScore,
		Percentage:        a.Percentage,
		QuestionsAnswered: a.QuestionsAnswered,
		CorrectAnswers:    a.CorrectAnswers,
		IncorrectAnswers:  a.IncorrectAnswers,
		SkippedQuestions:  a.SkippedQuestions,
		TimeTaken:         a.TimeTaken,
		CompletedAt:       a.CompletedAt,
		Integrity:         a.Integrity,
		AnalyticsApplied:  a.AnalyticsApplied,
	}
}

// AttemptSummary is returned from closing an attempt.
type AttemptSummary struct {
	AttemptID         string        `json:"attemptId"`
	QuizID            string        `json:"quizId"`
	StudentID         string        `json:"studentId"`
	Status            AttemptStatus `json:"status"`
	Score             int           `json:"score"`
	MaxScore          int           `json:"maxScore"`
	Percentage        float64       `json:"percentage"`
	QuestionsAnswered int           `json:"questionsAnswered"`
	CorrectAnswers    int           `json:"correctAnswers"`
	IncorrectAnswers  int           `json:"incorrectAnswers"`
	SkippedQuestions  int           `json:"skippedQuestions"`
	TimeTaken         float64       `json:"timeTaken"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	Integrity         *Integrity    `json:"integrity,omitempty"`
	AnalyticsApplied  bool          `json:"analyticsApplied"`
}

// Progress is the running state returned after each response.
type Progress struct {
	AttemptID         string        `json:"attemptId"`
	QuestionID        string        `json:"questionId,omitempty"`
	Correct           bool          `json:"correct"`
	Awarded           int           `json:"awarded"`
	Score             int           `json:"score"`
	MaxScore          int           `json:"maxScore"`
	Percentage        float64       `json:"percentage"`
	QuestionsAnswered int           `json:"questionsAnswered"`
	TotalQuestions    int           `json:"totalQuestions"`
	Status            AttemptStatus `json:"status"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// AttemptDetails is an attempt together with its responses.
type AttemptDetails struct {
	Attempt   Attempt    `json:"attempt"`
	Responses []Response `json:"responses"`
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Clone deep-copies the mutable parts of the attempt.
func (a Attempt) Clone() Attempt {
	out := a
	out.Quiz.Questions = append([]Question(nil), a.Quiz.Questions...)
	out.Responses = append([]Response{}, a.Responses...)
	out.Behavior.SuspiciousActivities = append([]string(nil), a.Behavior.SuspiciousActivities...)
	if a.CompletedAt != nil {
		completedAt := *a.CompletedAt
		out.CompletedAt = &completedAt
	}
	if a.Integrity != nil {
		integrity := *a.Integrity
		integrity.Reasons = append([]string(nil), a.Integrity.Reasons...)
		out.Integrity = &integrity
	}
	return out
}
