package policy

// Thresholds used by AssessIntegrity.
const (
	MaxTabSwitches      = 15
	MinAnswerSeconds    = 5.0
	MinPatternLength    = 10
	SuspiciousThreshold = 0.6
)

// IntegritySignals are the behavior counters and answer shape of one attempt.
type IntegritySignals struct {
	TabSwitches       int
	AverageAnswerTime float64 // seconds per answered question
	AnswerPattern     []int   // selected option indexes in answer order
}

// IntegrityAssessment classifies an attempt's behavior.
type IntegrityAssessment struct {
	Score      float64
	Suspicious bool
	Reasons    []string
}

// AssessIntegrity scores behavior signals; an attempt is suspicious above SuspiciousThreshold.
func AssessIntegrity(s IntegritySignals) IntegrityAssessment {
	var out IntegrityAssessment
	if s.TabSwitches > MaxTabSwitches {
		out.Score += 0.3
		out.Reasons = append(out.Reasons, "Excessive tab switching detected")
	}
	if len(s.AnswerPattern) > 0 && s.AverageAnswerTime < MinAnswerSeconds {
		out.Score += 0.4
		out.Reasons = append(out.Reasons, "Unrealistically fast answer time")
	}
	if len(s.AnswerPattern) > MinPatternLength && uniform(s.AnswerPattern) {
		out.Score += 0.3
		out.Reasons = append(out.Reasons, "Suspicious answer pattern detected")
	}
	out.Suspicious = out.Score > SuspiciousThreshold
	return out
}

func uniform(pattern []int) bool {
	for _, v := range pattern[1:] {
		if v != pattern[0] {
			return false
		}
	}
	return true
}
