package specialist

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// MatchThreshold is the similarity a candidate must exceed to replace a
// repository name that was not found.
const MatchThreshold = 0.4

// Similarity is the case-insensitive SequenceMatcher ratio of a and b, in
// the range 0 to 1.
func Similarity(a, b string) float64 {
	return difflib.NewMatcher(runes(strings.ToLower(a)), runes(strings.ToLower(b))).Ratio()
}

// BestMatch returns the candidate most similar to requested. Ties keep the
// earliest candidate. ok is false unless the best score exceeds
// MatchThreshold.
func BestMatch(requested string, candidates []string) (best string, score float64, ok bool) {
	score = -1
	for _, c := range candidates {
		if s := Similarity(requested, c); s > score {
			best, score = c, s
		}
	}
	if score <= MatchThreshold {
		return "", score, false
	}
	return best, score, true
}

func runes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
