package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func threeQuestionQuiz() Quiz {
	return Quiz{
		ID:      "tcs-apt-1",
		Company: "tcs",
		Type:    QuizTypeAptitude,
		Active:  true,
		Questions: []Question{
			{ID: "q1", Prompt: "2+2", Options: []string{"3", "4"}, CorrectAnswer: 1, Topic: "Math"},
			{ID: "q2", Prompt: "3+3", Options: []string{"6", "7"}, CorrectAnswer: 0, Topic: "Math"},
			{ID: "q3", Prompt: "O(log n)?", Options: []string{"linear", "binary"}, CorrectAnswer: 1, Topic: "Algorithms"},
		},
	}
}

func TestThreeQuestionScenario(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	a := NewAttempt("a1", "s1", threeQuestionQuiz(), DeviceInfo{}, start)
	if a.MaxScore != 3 {
		t.Fatalf("expected max score 3, got %d", a.MaxScore)
	}

	steps := []struct {
		question string
		selected int
		score    int
	}{
		{"q1", 1, 1},
		{"q2", 1, 1},
		{"q3", 1, 2},
	}
	for _, step := range steps {
		if _, err := a.RecordResponse(step.question, step.selected, 10, start); err != nil {
			t.Fatalf("record %s: %v", step.question, err)
		}
		if a.Score != step.score {
			t.Fatalf("after %s expected score %d, got %d", step.question, step.score, a.Score)
		}
	}

	if err := a.Close("", BehaviorData{}, start.Add(90*time.Second)); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.Status != AttemptCompleted {
		t.Fatalf("expected completed, got %s", a.Status)
	}
	if math.Abs(a.Percentage-66.67) > 0.01 {
		t.Fatalf("expected 66.67%%, got %f", a.Percentage)
	}
	if a.SkippedQuestions != 0 || a.CorrectAnswers != 2 || a.IncorrectAnswers != 1 {
		t.Fatalf("unexpected counters %+v", a.Summary())
	}
	if a.TimeTaken != 90 {
		t.Fatalf("expected 90s, got %f", a.TimeTaken)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestRecordResponseRejections(t *testing.T) {
	now := time.Now()
	a := NewAttempt("a1", "s1", threeQuestionQuiz(), DeviceInfo{}, now)

	if _, err := a.RecordResponse("missing", 0, 1, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := a.RecordResponse("q1", 5, 1, now); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := a.RecordResponse("q1", 1, 1, now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := a.RecordResponse("q1", 0, 1, now); !errors.Is(err, ErrDuplicateResponse) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if a.QuestionsAnswered != 1 || a.Score != 1 {
		t.Fatalf("duplicate must not change counters: %+v", a.Summary())
	}

	if err := a.Close(AttemptAbandoned, BehaviorData{}, now); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := a.RecordResponse("q2", 0, 1, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if a.SkippedQuestions != 2 {
		t.Fatalf("expected 2 skipped, got %d", a.SkippedQuestions)
	}
}

func TestCloseTwiceLeavesAttemptUnchanged(t *testing.T) {
	now := time.Now()
	a := NewAttempt("a1", "s1", threeQuestionQuiz(), DeviceInfo{}, now)
	if err := a.Close(AttemptCompleted, BehaviorData{TabSwitches: 2}, now.Add(time.Minute)); err != nil {
		t.Fatalf("close: %v", err)
	}
	before := a.Clone()

	err := a.Close(AttemptCompleted, BehaviorData{TabSwitches: 5}, now.Add(time.Hour))
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if a.Behavior.TabSwitches != before.Behavior.TabSwitches || !a.CompletedAt.Equal(*before.CompletedAt) {
		t.Fatalf("second close mutated attempt")
	}
}

func TestCloseRejectsNonTerminalStatus(t *testing.T) {
	a := NewAttempt("a1", "s1", threeQuestionQuiz(), DeviceInfo{}, time.Now())
	if err := a.Close(AttemptInProgress, BehaviorData{}, time.Now()); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if a.Status != AttemptInProgress {
		t.Fatalf("status changed on rejected close")
	}
}

func TestBehaviorMergeOnlyGrows(t *testing.T) {
	b := BehaviorData{TabSwitches: 3, SuspiciousActivities: []string{"devtools"}}
	b.Merge(BehaviorData{TabSwitches: -2, FullscreenExits: 1, SuspiciousActivities: []string{"devtools", "paste"}})
	if b.TabSwitches != 3 || b.FullscreenExits != 1 {
		t.Fatalf("unexpected counters %+v", b)
	}
	if len(b.SuspiciousActivities) != 2 {
		t.Fatalf("expected deduplicated tags, got %v", b.SuspiciousActivities)
	}
}

func TestSnapshotIsIsolatedFromCatalog(t *testing.T) {
	quiz := threeQuestionQuiz()
	a := NewAttempt("a1", "s1", quiz, DeviceInfo{}, time.Now())
	quiz.Questions[0].CorrectAnswer = 0
	if q, _ := a.Quiz.Question("q1"); q.CorrectAnswer != 1 {
		t.Fatalf("snapshot changed with catalog edit")
	}
}

func TestPercentageZeroMaxScore(t *testing.T) {
	if got := Percentage(0, 0); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}
}

func TestQuizValidate(t *testing.T) {
	quiz := threeQuestionQuiz()
	if err := quiz.Validate(); err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}
	quiz.Questions[1].ID = "q1"
	if err := quiz.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected duplicate question id rejection, got %v", err)
	}
}
