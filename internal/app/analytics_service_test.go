package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/infra/memory"
)

func completedAttempt(id, student string, answers map[string]int) domain.Attempt {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := domain.NewAttempt(id, student, threeQuestionQuiz(), domain.DeviceInfo{}, start)
	for _, qid := range []string{"q1", "q2", "q3"} {
		if selected, ok := answers[qid]; ok {
			if _, err := a.RecordResponse(qid, selected, 20, start); err != nil {
				panic(err)
			}
		}
	}
	if err := a.Close(domain.AttemptCompleted, domain.BehaviorData{}, start.Add(time.Minute)); err != nil {
		panic(err)
	}
	return a
}

func TestFoldSeedsThenAccumulatesByAccuracy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalyticsStore()
	agg := app.NewAggregator(store)

	// 2 of 3 correct
	require.NoError(t, agg.Fold(ctx, completedAttempt("a1", "s1", map[string]int{"q1": 1, "q2": 1, "q3": 2})))
	rows, err := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].TotalAttempts)
	assert.InDelta(t, 66.7, rows[0].AverageScore, 0.05)
	assert.Equal(t, domain.TrendStable, rows[0].ImprovementTrend)

	// 3 of 3 correct
	require.NoError(t, agg.Fold(ctx, completedAttempt("a2", "s1", map[string]int{"q1": 1, "q2": 0, "q3": 2})))
	rows, _ = store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	require.Len(t, rows, 1)
	overall := rows[0]
	assert.Equal(t, 2, overall.TotalAttempts)
	assert.Equal(t, 6, overall.TotalQuestions)
	assert.Equal(t, 5, overall.CorrectAnswers)
	assert.Equal(t, 5, overall.TotalScore)
	assert.Equal(t, 6, overall.MaxPossibleScore)
	assert.InDelta(t, 83.3, overall.AverageScore, 0.05)
	assert.Equal(t, domain.TrendImproving, overall.ImprovementTrend)
	// 60s per attempt over 6 answered questions
	assert.InDelta(t, 20.0, overall.AverageResponseTime, 1e-9)
	assert.Contains(t, overall.Strengths, "Excellent problem-solving skills")
}

func TestFoldWeightsByQuestionsNotAttempts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalyticsStore()
	agg := app.NewAggregator(store)

	// 1/1 answered correct then 0/3 correct: accuracy 25%, mean of percentages would differ
	require.NoError(t, agg.Fold(ctx, completedAttempt("a1", "s1", map[string]int{"q1": 1})))
	require.NoError(t, agg.Fold(ctx, completedAttempt("a2", "s1", map[string]int{"q1": 0, "q2": 1, "q3": 0})))

	rows, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	require.Len(t, rows, 1)
	assert.InDelta(t, 25.0, rows[0].AverageScore, 1e-9)
	assert.Equal(t, 2, rows[0].SkippedQuestions)
	assert.Equal(t, domain.TrendDeclining, rows[0].ImprovementTrend)
}

func TestFoldMaintainsTopicRows(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalyticsStore()
	agg := app.NewAggregator(store)
	require.NoError(t, agg.Fold(ctx, completedAttempt("a1", "s1", map[string]int{"q1": 1, "q2": 1, "q3": 2})))

	maths, err := store.List(ctx, domain.RollupFilter{StudentID: "s1", Topic: "Mathematics"})
	require.NoError(t, err)
	require.Len(t, maths, 1)
	assert.Equal(t, 2, maths[0].CorrectAnswers)
	assert.InDelta(t, 100, maths[0].AverageScore, 1e-9)
	assert.InDelta(t, 20, maths[0].AverageResponseTime, 1e-9)

	verbal, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1", Topic: "Verbal"})
	require.Len(t, verbal, 1)
	assert.Equal(t, 1, verbal[0].IncorrectAnswers)

	overall, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	assert.Contains(t, overall[0].Strengths, "Mathematics")
	assert.Contains(t, overall[0].Weaknesses, "Verbal")
}

func TestFoldSkipsUnansweredTopics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalyticsStore()
	agg := app.NewAggregator(store)
	// every Verbal question skipped
	require.NoError(t, agg.Fold(ctx, completedAttempt("a1", "s1", map[string]int{"q1": 1, "q3": 2})))

	verbal, err := store.List(ctx, domain.RollupFilter{StudentID: "s1", Topic: "Verbal"})
	require.NoError(t, err)
	assert.Empty(t, verbal)

	all, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1", AllTopics: true})
	require.Len(t, all, 2)
	overall, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	require.Len(t, overall, 1)
	assert.Equal(t, 1, overall[0].SkippedQuestions)
	assert.NotContains(t, overall[0].Weaknesses, "Verbal")
	for _, rec := range overall[0].Recommendations {
		assert.NotContains(t, rec, "Verbal")
	}

	svc := app.NewAnalyticsService(store, memory.NewAttemptStore(), memory.NewStudentDirectory())
	board, err := svc.Leaderboard(ctx, app.LeaderboardQuery{Company: "acme", Topic: "Verbal"})
	require.NoError(t, err)
	assert.Empty(t, board)

	insights, err := svc.Insights(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, insights.Weaknesses, "Verbal")
	assert.Contains(t, insights.Strengths, "Mathematics")
	assert.Equal(t, 1, insights.TotalAttempts)
	assert.Equal(t, 2, insights.TotalScore)
}

func TestFoldIsGuardedAgainstReplays(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalyticsStore()
	agg := app.NewAggregator(store)
	attempt := completedAttempt("a1", "s1", map[string]int{"q1": 1})

	require.NoError(t, agg.Fold(ctx, attempt))
	err := agg.Fold(ctx, attempt)
	assert.True(t, errors.Is(err, domain.ErrAlreadyFolded))

	rows, _ := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	assert.Equal(t, 1, rows[0].TotalAttempts)
}

func TestFoldRequiresCompletedAttempt(t *testing.T) {
	agg := app.NewAggregator(memory.NewAnalyticsStore())
	open := domain.NewAttempt("a1", "s1", threeQuestionQuiz(), domain.DeviceInfo{}, time.Now())
	assert.ErrorIs(t, agg.Fold(context.Background(), open), domain.ErrInvalidState)
}

func seedRollups(t *testing.T, store *memory.AnalyticsStore, scores map[string]int) {
	t.Helper()
	for student, correct := range scores {
		row := domain.PerformanceAnalytics{
			StudentID: student, Company: "acme", TotalAttempts: 1,
			TotalQuestions: 10, CorrectAnswers: correct, IncorrectAnswers: 10 - correct,
			AverageScore: float64(correct * 10),
		}
		err := store.Apply(context.Background(), "seed-"+student, row.Key(),
			func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
				return []domain.PerformanceAnalytics{row}, nil
			})
		require.NoError(t, err)
	}
}

func TestLeaderboardLimitAndOrder(t *testing.T) {
	store := memory.NewAnalyticsStore()
	seedRollups(t, store, map[string]int{"s1": 8, "s2": 9, "s3": 7})
	svc := app.NewAnalyticsService(store, memory.NewAttemptStore(), memory.NewStudentDirectory(
		domain.Student{ID: "s1", Name: "Asha", Branch: "CSE"},
		domain.Student{ID: "s2", Name: "Bilal", Branch: "ECE"},
	))

	entries, err := svc.Leaderboard(context.Background(), app.LeaderboardQuery{Company: "acme", Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s2", entries[0].StudentID)
	assert.Equal(t, 90.0, entries[0].AverageScore)
	assert.Equal(t, "Bilal", entries[0].DisplayName)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "s1", entries[1].StudentID)
	assert.Equal(t, 80.0, entries[1].AverageScore)

	all, err := svc.Leaderboard(context.Background(), app.LeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Empty(t, all[2].DisplayName, "unknown students keep an empty name")
}

func TestQuizStatisticsAndCompanySummary(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	stats, err := h.analytics.QuizStatistics(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Nil(t, stats)

	a := h.open(t, "s1")
	h.answer(t, a.ID, "q1", 1)
	h.answer(t, a.ID, "q2", 0)
	h.answer(t, a.ID, "q3", 2)
	h.now = h.now.Add(time.Minute)
	h.close(t, a.ID)

	b := h.open(t, "s2")
	h.answer(t, b.ID, "q1", 0)
	h.close(t, b.ID)

	h.open(t, "s2") // still in progress

	stats, err = h.analytics.QuizStatistics(ctx, "quiz-1")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 2, stats.TotalStudents)
	assert.InDelta(t, 100, stats.HighestScore, 1e-9)
	assert.InDelta(t, 0, stats.LowestScore, 1e-9)
	assert.InDelta(t, 50, stats.AverageScore, 1e-9)
	assert.InDelta(t, 200.0/3, stats.CompletionRate, 1e-9)
	require.Len(t, stats.Questions, 3)
	assert.Equal(t, "q1", stats.Questions[0].QuestionID)
	assert.Equal(t, 2, stats.Questions[0].TotalAttempts)
	assert.InDelta(t, 50, stats.Questions[0].AccuracyRate, 1e-9)

	summary, err := h.analytics.CompanySummary(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalStudents)
	assert.Equal(t, 2, summary.TotalAttempts)
	assert.Equal(t, 4, summary.TotalQuestions)
	assert.InDelta(t, 50, summary.AverageScore, 1e-9)
}

func TestInsightsAndDifficulty(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	d, err := h.analytics.RecommendDifficulty(ctx, "s1", "acme")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, d, 1e-9)

	empty, err := h.analytics.Insights(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, empty.Rollups)
	assert.NotEmpty(t, empty.Recommendations)

	a := h.open(t, "s1")
	h.answer(t, a.ID, "q1", 1)
	h.answer(t, a.ID, "q2", 0)
	h.answer(t, a.ID, "q3", 2)
	h.close(t, a.ID)

	d, _ = h.analytics.RecommendDifficulty(ctx, "s1", "acme")
	assert.InDelta(t, 0.9, d, 1e-9)

	insights, err := h.analytics.Insights(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, insights.Rollups, 1)
	assert.InDelta(t, 100, insights.AverageScore, 1e-9)
	assert.Contains(t, insights.Strengths, "Mathematics")

	perf, err := h.analytics.StudentPerformance(ctx, "s1", "")
	require.NoError(t, err)
	assert.Len(t, perf, 3, "overall row plus Mathematics and Verbal")
}
