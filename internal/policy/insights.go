package policy

import "sort"

// Accuracy bands, in percent.
const (
	StrongAccuracy = 80.0
	WeakAccuracy   = 50.0
	// SlowAnswerSeconds is the per-question time above which speed is flagged.
	SlowAnswerSeconds = 300.0
)

// PerformanceSignals describes a rollup in the terms the insight rules need.
type PerformanceSignals struct {
	Accuracy            float64            // percent
	AverageResponseTime float64            // seconds per question
	TopicAccuracy       map[string]float64 // percent per topic
}

// Insights is the advice derived from PerformanceSignals.
type Insights struct {
	Strengths       []string
	Weaknesses      []string
	Recommendations []string
}

// Analyze classifies performance into strengths, weaknesses and recommendations.
func Analyze(s PerformanceSignals) Insights {
	var out Insights
	switch {
	case s.Accuracy > StrongAccuracy:
		out.Strengths = append(out.Strengths, "Excellent problem-solving skills")
		out.Recommendations = append(out.Recommendations, "Try advanced problems and competitive programming")
	case s.Accuracy < WeakAccuracy:
		out.Weaknesses = append(out.Weaknesses, "Need more practice in fundamentals")
		out.Recommendations = append(out.Recommendations, "Focus on basic concepts before advanced topics")
	default:
		out.Recommendations = append(out.Recommendations, "Good progress! Focus on time management and accuracy")
	}

	if s.AverageResponseTime > SlowAnswerSeconds {
		out.Weaknesses = append(out.Weaknesses, "Time management")
		out.Recommendations = append(out.Recommendations, "Work on improving speed while maintaining accuracy")
	}

	topics := make([]string, 0, len(s.TopicAccuracy))
	for topic := range s.TopicAccuracy {
		if topic != "" {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	for _, topic := range topics {
		acc := s.TopicAccuracy[topic]
		switch {
		case acc >= StrongAccuracy:
			out.Strengths = append(out.Strengths, topic)
		case acc < WeakAccuracy:
			out.Weaknesses = append(out.Weaknesses, topic)
			out.Recommendations = append(out.Recommendations, "Revise "+topic)
		}
	}
	return out
}
