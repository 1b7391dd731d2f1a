package scoring

import "strings"

// punctuation is removed outright, not replaced by a space.
var punctuation = strings.NewReplacer(
	".", "", ",", "", ";", "", ":", "", "!", "", "?", "",
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "",
	`"`, "", "'", "", "`", "",
)

// Normalize lower-cases s, strips punctuation and collapses whitespace runs to
// a single space. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = punctuation.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

// Similarity is 1 - levenshtein/maxLen over the normalized forms of a and b.
func Similarity(a, b string) float64 {
	return similarityNormalized(Normalize(a), Normalize(b))
}

func similarityNormalized(a, b string) float64 {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 && len(br) == 0 {
		return 1
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	return 1 - float64(levenshtein(ar, br))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
		dp[i][0] = i
	}
	for j := 0; j <= len(b); j++ {
		dp[0][j] = j
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			dp[i][j] = min(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)
		}
	}
	return dp[len(a)][len(b)]
}

func tokenize(s string, stop map[string]struct{}) []string {
	norm := Normalize(s)
	if norm == "" {
		return nil
	}
	out := make([]string, 0, 8)
	for _, t := range strings.Split(norm, " ") {
		if t == "" {
			continue
		}
		if _, ok := stop[t]; ok {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Jaccard returns |A∩B| / |A∪B| over the unique tokens. Two empty inputs
// count as a full match.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
