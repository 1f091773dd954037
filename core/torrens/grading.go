package torrens

import (
	"math"
	"strconv"
	"strings"
)

// GradeSubmission sets the score and note of each answer from the posted values (keyed by answer ID)
// and returns the graded answers with their total. Missing or unparseable scores count as 0.
// Previous scores are overwritten, never accumulated.
func GradeSubmission(answers []Answer, scores, notes map[int64]string) ([]Answer, float64) {
	graded := make([]Answer, len(answers))
	var total float64
	for i, ans := range answers {
		ans.Score = parseScore(scores[ans.ID])
		ans.Note = notes[ans.ID]
		total += ans.Score
		graded[i] = ans
	}
	return graded, total
}

func parseScore(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
