package scoring

import (
	"fmt"
	"regexp"
	"strings"
)

type QuestionType string

const (
	TypeShortAnswer    QuestionType = "short_answer"
	TypeTrueFalse      QuestionType = "true_false"
	TypeMultipleChoice QuestionType = "multiple_choice"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Question is one generated quiz question. Answer may list several accepted
// alternatives ("Paris, France", "rood of groen").
type Question struct {
	Type        QuestionType `json:"type"`
	Difficulty  Difficulty   `json:"difficulty"`
	Question    string       `json:"question"`
	Choices     []string     `json:"choices,omitempty"`
	Answer      string       `json:"answer"`
	Explanation string       `json:"explanation"`
	Evidence    string       `json:"evidence"`
}

type Label string

const (
	LabelCorrect Label = "correct"
	LabelPartial Label = "partial"
	LabelWrong   Label = "wrong"
)

const (
	PointsWrong   = 0.0
	PointsPartial = 0.5
	PointsCorrect = 1.0
)

type Metrics struct {
	Similarity float64 `json:"similarity"`
	Keywords   float64 `json:"keywords"`
	Combined   float64 `json:"combined"`
	Candidate  string  `json:"candidate"`
}

// Result is a value: callers copy it, never mutate a stored one.
type Result struct {
	Points  float64  `json:"points"`
	Label   Label    `json:"label"`
	Reason  string   `json:"reason"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

// Scorer is immutable after NewScorer and safe for concurrent use.
type Scorer struct {
	cfg           Config
	stop          map[string]struct{}
	trueWords     map[string]struct{}
	falseWords    map[string]struct{}
	truePrefixes  []string
	falsePrefixes []string
	splitter      *regexp.Regexp
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	parts := []string{",", "/", ";"}
	for _, w := range cfg.SeparatorWords {
		parts = append(parts, `\b`+regexp.QuoteMeta(strings.TrimSpace(w))+`\b`)
	}
	splitter, err := regexp.Compile("(?i)" + strings.Join(parts, "|"))
	if err != nil {
		return nil, fmt.Errorf("%w: separator words: %v", ErrInvalidConfig, err)
	}

	return &Scorer{
		cfg:           cfg,
		stop:          wordSet(cfg.StopWords),
		trueWords:     wordSet(cfg.TrueWords),
		falseWords:    wordSet(cfg.FalseWords),
		truePrefixes:  normalizeAll(cfg.TruePrefixes),
		falsePrefixes: normalizeAll(cfg.FalsePrefixes),
		splitter:      splitter,
	}, nil
}

var defaultScorer = mustScorer(DefaultConfig())

func mustScorer(cfg Config) *Scorer {
	s, err := NewScorer(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns the scorer built from DefaultConfig.
func Default() *Scorer {
	return defaultScorer
}

func (s *Scorer) Config() Config {
	return s.cfg
}

// ScoreAnswer scores with the default configuration.
func ScoreAnswer(q Question, userAnswer string) Result {
	return defaultScorer.Score(q, userAnswer)
}

func Tokenize(text string) []string {
	return defaultScorer.Tokenize(text)
}

func SplitPossibleAnswers(answer string) []string {
	return defaultScorer.SplitPossibleAnswers(answer)
}

func ParseTrueFalse(text string) (value bool, ok bool) {
	return defaultScorer.ParseTrueFalse(text)
}

// Score never fails: every question/answer pair maps to a tier.
func (s *Scorer) Score(q Question, userAnswer string) Result {
	ua := strings.TrimSpace(userAnswer)
	if ua == "" {
		return wrong("no answer")
	}

	switch QuestionType(strings.TrimSpace(strings.ToLower(string(q.Type)))) {
	case TypeMultipleChoice:
		return s.scoreMultipleChoice(q, ua)
	case TypeTrueFalse:
		return s.scoreTrueFalse(q, ua)
	default:
		return s.scoreShortAnswer(q, ua)
	}
}

func (s *Scorer) scoreMultipleChoice(q Question, ua string) Result {
	if Normalize(ua) == Normalize(q.Answer) {
		return correct("exact match (multiple choice)")
	}
	return wrong("wrong choice")
}

func (s *Scorer) scoreTrueFalse(q Question, ua string) Result {
	userTF, ok := s.ParseTrueFalse(ua)
	if !ok {
		return wrong("use waar/onwaar or juist/fout")
	}

	answerTF, ok := s.ParseTrueFalse(q.Answer)
	if !ok {
		if Normalize(ua) == Normalize(q.Answer) {
			return correct("literal match")
		}
		return wrong("no literal match")
	}

	if userTF == answerTF {
		return correct("correct true/false")
	}
	return wrong("wrong true/false")
}

func (s *Scorer) scoreShortAnswer(q Question, ua string) Result {
	candidates := s.SplitPossibleAnswers(q.Answer)
	uaNorm := Normalize(ua)
	uaTokens := s.Tokenize(ua)

	bestSim, bestJ := 0.0, 0.0
	bestCandidate := q.Answer
	if len(candidates) > 0 {
		bestCandidate = candidates[0]
	}

	for _, cand := range candidates {
		sim := similarityNormalized(uaNorm, Normalize(cand))
		j := Jaccard(uaTokens, s.Tokenize(cand))
		if sim > bestSim || (sim == bestSim && j > bestJ) {
			bestSim, bestJ, bestCandidate = sim, j, cand
		}
	}

	boost := 0.0
	candNorm := Normalize(bestCandidate)
	if strings.Contains(uaNorm, candNorm) || strings.Contains(candNorm, uaNorm) {
		boost = s.cfg.ContainmentBoost
	}

	blended := bestSim*s.cfg.SimilarityWeight + bestJ*s.cfg.KeywordWeight
	combined := max(bestSim, blended) + boost

	metrics := &Metrics{Similarity: bestSim, Keywords: bestJ, Combined: combined, Candidate: bestCandidate}
	detail := fmt.Sprintf("(sim %.2f, kw %.2f)", bestSim, bestJ)

	var res Result
	switch {
	case combined >= s.cfg.CorrectThreshold:
		res = correct("strong match " + detail)
	case combined >= s.cfg.PartialThreshold:
		res = Result{Points: PointsPartial, Label: LabelPartial, Reason: "almost right " + detail}
	default:
		res = wrong("too far off " + detail)
	}
	res.Metrics = metrics
	return res
}

// Tokenize returns the content words of text: normalized, split on spaces,
// stop words removed. Duplicates are kept.
func (s *Scorer) Tokenize(text string) []string {
	return tokenize(text, s.stop)
}

// SplitPossibleAnswers turns a reference answer into the literal answers a
// user may give. The full answer always comes first. Splitting on the
// conjunction words also fragments answers that merely contain them
// ("salt and pepper" style phrases); that is accepted because the full answer
// stays a candidate.
func (s *Scorer) SplitPossibleAnswers(answer string) []string {
	raw := strings.TrimSpace(answer)
	if raw == "" {
		return nil
	}

	parts := make([]string, 0, 4)
	for _, p := range s.splitter.Split(raw, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) <= 1 {
		return []string{raw}
	}

	seen := map[string]struct{}{raw: {}}
	out := []string{raw}
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ParseTrueFalse maps free text to a boolean. ok is false when the text is
// not recognised. Prefixes use starts-with so "waar, want ..." still counts.
func (s *Scorer) ParseTrueFalse(text string) (value bool, ok bool) {
	x := Normalize(text)
	if _, hit := s.trueWords[x]; hit {
		return true, true
	}
	if _, hit := s.falseWords[x]; hit {
		return false, true
	}
	for _, p := range s.truePrefixes {
		if strings.HasPrefix(x, p) {
			return true, true
		}
	}
	for _, p := range s.falsePrefixes {
		if strings.HasPrefix(x, p) {
			return false, true
		}
	}
	return false, false
}

func correct(reason string) Result {
	return Result{Points: PointsCorrect, Label: LabelCorrect, Reason: reason}
}

func wrong(reason string) Result {
	return Result{Points: PointsWrong, Label: LabelWrong, Reason: reason}
}
