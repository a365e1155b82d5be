package policy

// DefaultDifficulty is used when a student has no history.
const DefaultDifficulty = 0.5

// NextDifficulty picks the difficulty (0.0-1.0) of the next question from recent
// performance expressed as a 0.0-1.0 accuracy ratio.
func NextDifficulty(performance float64) float64 {
	switch {
	case performance > 0.8:
		return min(0.9, performance+0.1)
	case performance < 0.4:
		return max(0.2, performance-0.1)
	default:
		return DefaultDifficulty
	}
}
