package game

import (
	"math"
	"time"
)

// MaxPoints is the score for an instant correct answer.
const MaxPoints = 1000

// Score maps an answer to points: faster correct answers earn more, scaling
// linearly from MaxPoints at zero elapsed down to zero at the window edge.
// Incorrect, late, or negative-time answers earn nothing.
func Score(correct bool, responseTime, answerWindow time.Duration) int {
	if !correct || answerWindow <= 0 {
		return 0
	}
	if responseTime < 0 || responseTime >= answerWindow {
		return 0
	}
	fraction := float64(responseTime) / float64(answerWindow)
	return int(math.Round(MaxPoints * (1 - fraction)))
}
