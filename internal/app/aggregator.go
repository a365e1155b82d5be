package app

import (
	"context"
	"fmt"
	"time"

	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/policy"
)

// Aggregator folds completed attempts into per-student, per-company rollups.
type Aggregator struct {
	store AnalyticsStore
	now   func() time.Time
}

func NewAggregator(store AnalyticsStore) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// NewAggregatorWithClock is test-only for deterministic timestamps.
func NewAggregatorWithClock(store AnalyticsStore, now func() time.Time) *Aggregator {
	return &Aggregator{store: store, now: now}
}

// Fold merges a completed attempt into its rollups. Folding the same attempt twice
// returns domain.ErrAlreadyFolded and leaves the rollups untouched.
func (g *Aggregator) Fold(ctx context.Context, attempt domain.Attempt) error {
	if attempt.Status != domain.AttemptCompleted {
		return fmt.Errorf("fold %s attempt: %w", attempt.Status, domain.ErrInvalidState)
	}
	key := domain.RollupKey{StudentID: attempt.StudentID, Company: attempt.Company}
	now := g.now()
	return g.store.Apply(ctx, attempt.ID, key, func(current []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
		return foldRows(current, attempt, now), nil
	})
}

// contribution is what one attempt adds to one rollup row.
type contribution struct {
	questions    int
	correct      int
	incorrect    int
	skipped      int
	score        int
	maxScore     int
	responseTime float64
}

// foldRows returns the overall row and every per-topic row the attempt answered into.
func foldRows(current []domain.PerformanceAnalytics, attempt domain.Attempt, now time.Time) []domain.PerformanceAnalytics {
	byTopic := make(map[string]domain.PerformanceAnalytics, len(current))
	for _, row := range current {
		byTopic[row.Topic] = row
	}

	topics, order := topicContributions(attempt)
	changed := make([]domain.PerformanceAnalytics, 0, len(order)+1)
	for _, topic := range order {
		existing, ok := byTopic[topic]
		row := mergeRow(existing, ok, attempt, topic, topics[topic], now)
		byTopic[topic] = row
		changed = append(changed, row)
	}

	overall := contribution{
		questions:    attempt.QuestionsAnswered,
		correct:      attempt.CorrectAnswers,
		incorrect:    attempt.IncorrectAnswers,
		skipped:      attempt.SkippedQuestions,
		score:        attempt.Score,
		maxScore:     attempt.MaxScore,
		responseTime: attempt.TimeTaken,
	}
	existing, ok := byTopic[""]
	row := mergeRow(existing, ok, attempt, "", overall, now)

	topicAccuracy := make(map[string]float64, len(byTopic))
	for topic, r := range byTopic {
		if topic != "" && r.TotalQuestions > 0 {
			topicAccuracy[topic] = r.AverageScore
		}
	}
	insights := policy.Analyze(policy.PerformanceSignals{
		Accuracy:            row.AverageScore,
		AverageResponseTime: row.AverageResponseTime,
		TopicAccuracy:       topicAccuracy,
	})
	row.Strengths = nonNil(insights.Strengths)
	row.Weaknesses = nonNil(insights.Weaknesses)
	row.Recommendations = nonNil(insights.Recommendations)

	return append([]domain.PerformanceAnalytics{row}, changed...)
}

func topicContributions(attempt domain.Attempt) (map[string]contribution, []string) {
	answered := make(map[string]domain.Response, len(attempt.Responses))
	for _, r := range attempt.Responses {
		answered[r.QuestionID] = r
	}

	out := make(map[string]contribution)
	var order []string
	for _, q := range attempt.Quiz.Questions {
		if q.Topic == "" {
			continue
		}
		c, seen := out[q.Topic]
		if !seen {
			order = append(order, q.Topic)
		}
		c.maxScore += q.PointValue()
		if r, ok := answered[q.ID]; ok {
			c.questions++
			c.score += r.PointsEarned
			c.responseTime += r.ResponseTime
			if r.IsCorrect {
				c.correct++
			} else {
				c.incorrect++
			}
		} else {
			c.skipped++
		}
		out[q.Topic] = c
	}
	// a topic counts only once the attempt answered one of its questions
	answeredOrder := order[:0]
	for _, topic := range order {
		if out[topic].questions == 0 {
			delete(out, topic)
			continue
		}
		answeredOrder = append(answeredOrder, topic)
	}
	return out, answeredOrder
}

// mergeRow applies running sums. Averages are accuracy-based over all folded questions,
// not a mean of per-attempt percentages.
func mergeRow(existing domain.PerformanceAnalytics, exists bool, attempt domain.Attempt, topic string, c contribution, now time.Time) domain.PerformanceAnalytics {
	row := existing
	previous := existing.AverageScore
	if !exists {
		row = domain.PerformanceAnalytics{
			StudentID: attempt.StudentID,
			Company:   attempt.Company,
			Topic:     topic,
		}
	}

	row.TotalAttempts++
	row.TotalQuestions += c.questions
	row.CorrectAnswers += c.correct
	row.IncorrectAnswers += c.incorrect
	row.SkippedQuestions += c.skipped
	row.TotalScore += c.score
	row.MaxPossibleScore += c.maxScore
	row.TotalResponseTime += c.responseTime
	row.AverageScore = domain.Accuracy(row.CorrectAnswers, row.TotalQuestions)
	row.AverageResponseTime = 0
	if row.TotalQuestions > 0 {
		row.AverageResponseTime = row.TotalResponseTime / float64(row.TotalQuestions)
	}
	if exists {
		row.ImprovementTrend = domain.CompareTrend(previous, row.AverageScore)
	} else {
		row.ImprovementTrend = domain.TrendStable
	}
	row.Strengths = nonNil(row.Strengths)
	row.Weaknesses = nonNil(row.Weaknesses)
	row.Recommendations = nonNil(row.Recommendations)
	row.CalculatedAt = now
	return row
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
