package app

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/policy"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 500
)

// AnalyticsService answers read-side questions over rollups and attempts.
type AnalyticsService struct {
	rollups  AnalyticsStore
	attempts AttemptStore
	students StudentDirectory
	now      func() time.Time
}

func NewAnalyticsService(rollups AnalyticsStore, attempts AttemptStore, students StudentDirectory) *AnalyticsService {
	return &AnalyticsService{rollups: rollups, attempts: attempts, students: students, now: time.Now}
}

// StudentPerformance returns every rollup row (overall and per topic) for a student,
// optionally restricted to one company.
func (s *AnalyticsService) StudentPerformance(ctx context.Context, studentID, company string) ([]domain.PerformanceAnalytics, error) {
	if studentID == "" {
		return nil, domain.Invalid("studentId", "is required")
	}
	rows, err := s.rollups.List(ctx, domain.RollupFilter{StudentID: studentID, Company: company, AllTopics: true})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Company != rows[j].Company {
			return rows[i].Company < rows[j].Company
		}
		return rows[i].Topic < rows[j].Topic
	})
	return rows, nil
}

// Leaderboard ranks rollups by average score, recomputed on every call.
func (s *AnalyticsService) Leaderboard(ctx context.Context, q LeaderboardQuery) ([]domain.LeaderboardEntry, error) {
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultLeaderboardLimit
	case limit > MaxLeaderboardLimit:
		limit = MaxLeaderboardLimit
	}

	rows, err := s.rollups.List(ctx, domain.RollupFilter{Company: q.Company, Topic: q.Topic})
	if err != nil {
		return nil, err
	}
	if q.Topic != "" {
		answered := rows[:0]
		for _, row := range rows {
			if row.TotalQuestions > 0 {
				answered = append(answered, row)
			}
		}
		rows = answered
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].AverageScore > rows[j].AverageScore
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}

	entries := make([]domain.LeaderboardEntry, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, row := range rows {
		i, row := i, row // per-iteration copies for the go 1.21 loop semantics
		entries[i] = domain.LeaderboardEntry{
			Rank:           i + 1,
			StudentID:      row.StudentID,
			Company:        row.Company,
			Topic:          row.Topic,
			AverageScore:   row.AverageScore,
			TotalAttempts:  row.TotalAttempts,
			TotalQuestions: row.TotalQuestions,
			CorrectAnswers: row.CorrectAnswers,
		}
		if s.students == nil {
			continue
		}
		g.Go(func() error {
			student, err := s.students.GetStudent(gctx, row.StudentID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			entries[i].DisplayName = student.Name
			entries[i].Branch = student.Branch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// QuizStatistics aggregates completed attempts of a quiz. It returns nil when the quiz has
// no completed attempts.
func (s *AnalyticsService) QuizStatistics(ctx context.Context, quizID string) (*domain.QuizStatistics, error) {
	attempts, err := s.attempts.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	completed := make([]domain.Attempt, 0, len(attempts))
	for _, a := range attempts {
		if a.Status == domain.AttemptCompleted {
			completed = append(completed, a)
		}
	}
	if len(completed) == 0 {
		return nil, nil
	}

	stats := &domain.QuizStatistics{
		QuizID:        quizID,
		Company:       completed[0].Company,
		TotalAttempts: len(completed),
		HighestScore:  math.Inf(-1),
		LowestScore:   math.Inf(1),
		CalculatedAt:  s.now().UTC(),
	}
	students := make(map[string]struct{})
	perQuestion := make(map[string]*questionTally)
	var order []string
	sumPercentage, sumTime := 0.0, 0.0
	for _, a := range completed {
		students[a.StudentID] = struct{}{}
		sumPercentage += a.Percentage
		sumTime += a.TimeTaken
		stats.HighestScore = math.Max(stats.HighestScore, a.Percentage)
		stats.LowestScore = math.Min(stats.LowestScore, a.Percentage)
		for _, r := range a.Responses {
			t, ok := perQuestion[r.QuestionID]
			if !ok {
				t = &questionTally{difficulty: r.Difficulty}
				perQuestion[r.QuestionID] = t
				order = append(order, r.QuestionID)
			}
			t.attempts++
			t.time += r.ResponseTime
			if r.IsCorrect {
				t.correct++
			}
		}
	}
	n := float64(len(completed))
	stats.TotalStudents = len(students)
	stats.AverageScore = sumPercentage / n
	stats.AverageTimeTaken = sumTime / n
	stats.CompletionRate = 100 * n / float64(len(attempts))

	sort.Strings(order)
	stats.Questions = make([]domain.QuestionAnalytics, 0, len(order))
	for _, id := range order {
		t := perQuestion[id]
		stats.Questions = append(stats.Questions, domain.QuestionAnalytics{
			QuestionID:      id,
			TotalAttempts:   t.attempts,
			CorrectAttempts: t.correct,
			AccuracyRate:    domain.Accuracy(t.correct, t.attempts),
			AverageTime:     t.time / float64(t.attempts),
			Difficulty:      t.difficulty,
		})
	}
	return stats, nil
}

type questionTally struct {
	attempts   int
	correct    int
	time       float64
	difficulty float64
}

// CompanySummary combines the overall rollups and attempts of one company.
func (s *AnalyticsService) CompanySummary(ctx context.Context, company string) (domain.CompanySummary, error) {
	if company == "" {
		return domain.CompanySummary{}, domain.Invalid("company", "is required")
	}
	var (
		rows     []domain.PerformanceAnalytics
		attempts []domain.Attempt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.rollups.List(gctx, domain.RollupFilter{Company: company})
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = s.attempts.ListByCompany(gctx, company)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.CompanySummary{}, err
	}

	summary := domain.CompanySummary{
		Company:       company,
		TotalStudents: len(rows),
		GeneratedAt:   s.now().UTC(),
	}
	sumAverage := 0.0
	for _, row := range rows {
		summary.TotalAttempts += row.TotalAttempts
		summary.TotalQuestions += row.TotalQuestions
		sumAverage += row.AverageScore
	}
	if len(rows) > 0 {
		summary.AverageScore = sumAverage / float64(len(rows))
	}
	if len(attempts) > 0 {
		completed := 0
		for _, a := range attempts {
			if a.Status == domain.AttemptCompleted {
				completed++
			}
		}
		summary.CompletionRate = 100 * float64(completed) / float64(len(attempts))
	}
	return summary, nil
}

// Insights returns the overall rollups of a student with advice across all companies.
func (s *AnalyticsService) Insights(ctx context.Context, studentID string) (domain.StudentInsights, error) {
	if studentID == "" {
		return domain.StudentInsights{}, domain.Invalid("studentId", "is required")
	}
	rows, err := s.rollups.List(ctx, domain.RollupFilter{StudentID: studentID, AllTopics: true})
	if err != nil {
		return domain.StudentInsights{}, err
	}

	out := domain.StudentInsights{StudentID: studentID, Rollups: []domain.PerformanceAnalytics{}, GeneratedAt: s.now().UTC()}
	correct, total := 0, 0
	responseTime := 0.0
	topicCorrect := make(map[string]int)
	topicTotal := make(map[string]int)
	for _, row := range rows {
		if row.Topic != "" {
			topicCorrect[row.Topic] += row.CorrectAnswers
			topicTotal[row.Topic] += row.TotalQuestions
			continue
		}
		out.Rollups = append(out.Rollups, row)
		correct += row.CorrectAnswers
		total += row.TotalQuestions
		responseTime += row.TotalResponseTime
		out.TotalAttempts += row.TotalAttempts
		out.TotalScore += row.TotalScore
	}
	out.TotalQuestions, out.CorrectAnswers = total, correct
	sort.SliceStable(out.Rollups, func(i, j int) bool { return out.Rollups[i].Company < out.Rollups[j].Company })

	topicAccuracy := make(map[string]float64, len(topicTotal))
	for topic, n := range topicTotal {
		if n == 0 {
			continue
		}
		topicAccuracy[topic] = domain.Accuracy(topicCorrect[topic], n)
	}
	out.AverageScore = domain.Accuracy(correct, total)
	avgTime := 0.0
	if total > 0 {
		avgTime = responseTime / float64(total)
	}
	if len(out.Rollups) == 0 {
		out.Strengths, out.Weaknesses = []string{}, []string{}
		out.Recommendations = []string{"Take your first quiz to get personalised insights"}
		return out, nil
	}
	insights := policy.Analyze(policy.PerformanceSignals{
		Accuracy:            out.AverageScore,
		AverageResponseTime: avgTime,
		TopicAccuracy:       topicAccuracy,
	})
	out.Strengths = nonNil(insights.Strengths)
	out.Weaknesses = nonNil(insights.Weaknesses)
	out.Recommendations = nonNil(insights.Recommendations)
	return out, nil
}

// RecommendDifficulty suggests the next question difficulty for a student at a company.
func (s *AnalyticsService) RecommendDifficulty(ctx context.Context, studentID, company string) (float64, error) {
	if studentID == "" {
		return 0, domain.Invalid("studentId", "is required")
	}
	rows, err := s.rollups.List(ctx, domain.RollupFilter{StudentID: studentID, Company: company})
	if err != nil {
		return 0, err
	}
	correct, total := 0, 0
	for _, row := range rows {
		correct += row.CorrectAnswers
		total += row.TotalQuestions
	}
	if total == 0 {
		return policy.DefaultDifficulty, nil
	}
	return policy.NextDifficulty(float64(correct) / float64(total)), nil
}
