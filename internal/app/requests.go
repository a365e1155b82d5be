package app

import "placement-quiz-service/internal/domain"

// OpenAttemptRequest starts an attempt for a student.
type OpenAttemptRequest struct {
	StudentID string            `json:"studentId" validate:"required"`
	QuizID    string            `json:"quizId" validate:"required"`
	Device    domain.DeviceInfo `json:"deviceInfo"`
}

// SubmitResponseRequest records one answer.
type SubmitResponseRequest struct {
	AttemptID      string  `json:"attemptId" validate:"required"`
	QuestionID     string  `json:"questionId" validate:"required"`
	SelectedAnswer *int    `json:"selectedAnswer" validate:"required,gte=0"`
	ResponseTime   float64 `json:"responseTime" validate:"gte=0"`
}

// CloseAttemptRequest ends an attempt. An empty Status means completed.
type CloseAttemptRequest struct {
	AttemptID string               `json:"attemptId" validate:"required"`
	Status    domain.AttemptStatus `json:"status" validate:"terminal_status"`
	Behavior  domain.BehaviorData  `json:"behaviorData"`
}

// QuestionInput is one question of a CreateQuizRequest.
type QuestionInput struct {
	ID            string   `json:"id" yaml:"id"`
	Prompt        string   `json:"question" yaml:"question" validate:"required"`
	Options       []string `json:"options" yaml:"options" validate:"min=2,dive,required"`
	CorrectAnswer *int     `json:"correctAnswer" yaml:"correct_answer" validate:"required,gte=0"`
	Explanation   string   `json:"explanation" yaml:"explanation"`
	Difficulty    float64  `json:"difficulty" yaml:"difficulty" validate:"gte=0,lte=1"`
	Topic         string   `json:"topic" yaml:"topic"`
	TimeLimit     int      `json:"timeLimit" yaml:"time_limit" validate:"gte=0"`
	Points        int      `json:"points" yaml:"points" validate:"gte=0"`
}

// CreateQuizRequest is the administrative quiz definition.
type CreateQuizRequest struct {
	ID        string          `json:"id" yaml:"id"`
	Company   string          `json:"company" yaml:"company" validate:"required"`
	Type      domain.QuizType `json:"type" yaml:"type" validate:"quiz_type"`
	Title     string          `json:"title" yaml:"title"`
	TimeLimit int             `json:"timeLimit" yaml:"time_limit" validate:"gte=0"`
	CreatedBy string          `json:"createdBy" yaml:"created_by"`
	Questions []QuestionInput `json:"questions" yaml:"questions" validate:"min=1,dive"`
}

// GenerateQuizRequest asks the question provider for a new quiz.
type GenerateQuizRequest struct {
	Company   string          `json:"company" validate:"required"`
	Type      domain.QuizType `json:"type" validate:"quiz_type"`
	Count     int             `json:"count" validate:"gte=1,lte=50"`
	TimeLimit int             `json:"timeLimit" validate:"gte=0"`
	CreatedBy string          `json:"createdBy"`
}

// LeaderboardQuery filters GetLeaderboard.
type LeaderboardQuery struct {
	Company string
	Topic   string
	Limit   int
}
