package quiz

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"studysnap/internal/history"
	"studysnap/internal/scoring"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionIndex    = errors.New("question index out of range")
	ErrNothingToRetry   = errors.New("no wrong answers to retry")
	ErrSessionForbidden = errors.New("session belongs to another user")
)

const (
	ModeNormal = history.ModeNormal
	ModeRetry  = history.ModeRetry

	DefaultQuestionCount = 10
	MinQuestionCount     = 1
	MaxQuestionCount     = 50
)

// ClampQuestionCount maps any requested count into 1..50, with 10 for "unset".
func ClampQuestionCount(n int) int {
	if n <= 0 {
		return DefaultQuestionCount
	}
	if n > MaxQuestionCount {
		return MaxQuestionCount
	}
	return n
}

type Session struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id,omitempty"`
	Mode      string                 `json:"mode"`
	Title     string                 `json:"title"`
	Questions []scoring.Question     `json:"questions"`
	Answers   map[int]string         `json:"answers"`
	Results   map[int]scoring.Result `json:"results"`
	Saved     bool                   `json:"saved"`
	CreatedAt time.Time              `json:"created_at"`
}

func (s Session) clone() Session {
	out := s
	out.Questions = append([]scoring.Question(nil), s.Questions...)
	out.Answers = make(map[int]string, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Results = make(map[int]scoring.Result, len(s.Results))
	for k, v := range s.Results {
		if v.Metrics != nil {
			m := *v.Metrics
			v.Metrics = &m
		}
		out.Results[k] = v
	}
	return out
}

func (s *Session) Finished() bool {
	return len(s.Questions) > 0 && len(s.Results) == len(s.Questions)
}

func (s *Session) TotalPoints() float64 {
	total := 0.0
	for _, r := range s.Results {
		total += r.Points
	}
	return total
}

type Summary struct {
	TotalPoints float64 `json:"total_points"`
	MaxScore    float64 `json:"max_score"`
	Percent     int     `json:"percent"`
	Checked     int     `json:"checked"`
	Total       int     `json:"total"`
	Finished    bool    `json:"finished"`
}

// QuestionView hides the reference answer until the question is checked.
type QuestionView struct {
	Index       int                  `json:"index"`
	Type        scoring.QuestionType `json:"type"`
	Difficulty  scoring.Difficulty   `json:"difficulty"`
	Question    string               `json:"question"`
	Choices     []string             `json:"choices,omitempty"`
	UserAnswer  string               `json:"user_answer,omitempty"`
	Result      *scoring.Result      `json:"result,omitempty"`
	Answer      string               `json:"answer,omitempty"`
	Explanation string               `json:"explanation,omitempty"`
	Evidence    string               `json:"evidence,omitempty"`
}

type SessionView struct {
	ID        string         `json:"id"`
	Mode      string         `json:"mode"`
	Title     string         `json:"title"`
	Summary   Summary        `json:"summary"`
	Questions []QuestionView `json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
}

type CheckResult struct {
	Index   int            `json:"index"`
	Result  scoring.Result `json:"result"`
	Answer  string         `json:"answer"`
	Summary Summary        `json:"summary"`
}

type StartInput struct {
	UserID        string
	Title         string
	Questions     []scoring.Question
	QuestionCount int
}

type HistoryRecorder interface {
	Save(ctx context.Context, in history.SaveInput) (*history.Record, error)
}

type Service struct {
	// mu serializes read-modify-write of sessions in this process.
	mu      sync.Mutex
	store   SessionStore
	scorer  *scoring.Scorer
	history HistoryRecorder
	now     func() time.Time
	shuffle func([]scoring.Question)
}

// NewService wires a session service. recorder may be nil when history is
// not persisted.
func NewService(store SessionStore, scorer *scoring.Scorer, recorder HistoryRecorder) *Service {
	if scorer == nil {
		scorer = scoring.Default()
	}
	return &Service{
		store:   store,
		scorer:  scorer,
		history: recorder,
		now:     time.Now,
		shuffle: func(qs []scoring.Question) {
			rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		},
	}
}

// Score runs the stateless scorer.
func (s *Service) Score(q scoring.Question, userAnswer string) scoring.Result {
	return s.scorer.Score(q, userAnswer)
}

func (s *Service) Start(ctx context.Context, in StartInput) (*SessionView, error) {
	questions := make([]scoring.Question, 0, len(in.Questions))
	for _, q := range in.Questions {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, ErrInvalidInput
	}

	sess, err := s.newSession(ctx, strings.TrimSpace(in.UserID), ModeNormal, in.Title, questions, ClampQuestionCount(in.QuestionCount))
	if err != nil {
		return nil, err
	}
	view := buildView(sess)
	return &view, nil
}

func (s *Service) Get(ctx context.Context, sessionID, userID string) (*SessionView, error) {
	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	view := buildView(sess)
	return &view, nil
}

// Check scores one answer. A checked index keeps its first result.
func (s *Service) Check(ctx context.Context, sessionID, userID string, index int, answer string) (*CheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(sess.Questions) {
		return nil, ErrQuestionIndex
	}

	res, checked := sess.Results[index]
	if checked {
		// A finished session whose history save failed earlier gets another try.
		if s.saveHistory(ctx, sess) {
			if err := s.store.Put(ctx, sess); err != nil {
				return nil, err
			}
		}
		return &CheckResult{Index: index, Result: res, Answer: sess.Questions[index].Answer, Summary: summarize(sess)}, nil
	}

	res = s.scorer.Score(sess.Questions[index], answer)
	sess.Answers[index] = answer
	sess.Results[index] = res
	s.saveHistory(ctx, sess)

	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return &CheckResult{Index: index, Result: res, Answer: sess.Questions[index].Answer, Summary: summarize(sess)}, nil
}

// saveHistory records a finished session once and reports whether it did.
// Failures are logged and leave Saved false.
func (s *Service) saveHistory(ctx context.Context, sess *Session) bool {
	if !sess.Finished() || sess.Saved || sess.UserID == "" || s.history == nil {
		return false
	}
	_, err := s.history.Save(ctx, history.SaveInput{
		UserID:         sess.UserID,
		Mode:           sess.Mode,
		Score:          sess.TotalPoints(),
		MaxScore:       float64(len(sess.Questions)),
		TotalQuestions: len(sess.Questions),
		Topic:          sess.Title,
	})
	if err != nil {
		log.Printf("save study session %s: %v", sess.ID, err)
		return false
	}
	sess.Saved = true
	return true
}

// Retry starts a new session with every question that did not earn full points.
func (s *Service) Retry(ctx context.Context, sessionID, userID string) (*SessionView, error) {
	sess, err := s.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	wrong := make([]scoring.Question, 0, len(sess.Questions))
	for i, q := range sess.Questions {
		if res, ok := sess.Results[i]; ok && res.Points < scoring.PointsCorrect {
			wrong = append(wrong, q)
		}
	}
	if len(wrong) == 0 {
		return nil, ErrNothingToRetry
	}

	next, err := s.newSession(ctx, sess.UserID, ModeRetry, sess.Title, wrong, len(wrong))
	if err != nil {
		return nil, err
	}
	view := buildView(next)
	return &view, nil
}

func (s *Service) newSession(ctx context.Context, userID, mode, title string, questions []scoring.Question, count int) (*Session, error) {
	qs := append([]scoring.Question(nil), questions...)
	s.shuffle(qs)
	if count < len(qs) {
		qs = qs[:count]
	}

	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Mode:      mode,
		Title:     strings.TrimSpace(title),
		Questions: qs,
		Answers:   map[int]string{},
		Results:   map[int]scoring.Result{},
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) load(ctx context.Context, sessionID, userID string) (*Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != "" && sess.UserID != strings.TrimSpace(userID) {
		return nil, ErrSessionForbidden
	}
	if sess.Answers == nil {
		sess.Answers = map[int]string{}
	}
	if sess.Results == nil {
		sess.Results = map[int]scoring.Result{}
	}
	return sess, nil
}

func summarize(sess *Session) Summary {
	total := sess.TotalPoints()
	maxScore := float64(len(sess.Questions))
	return Summary{
		TotalPoints: total,
		MaxScore:    maxScore,
		Percent:     history.Percent(total, maxScore),
		Checked:     len(sess.Results),
		Total:       len(sess.Questions),
		Finished:    sess.Finished(),
	}
}

func buildView(sess *Session) SessionView {
	items := make([]QuestionView, 0, len(sess.Questions))
	for i, q := range sess.Questions {
		item := QuestionView{
			Index:      i,
			Type:       q.Type,
			Difficulty: q.Difficulty,
			Question:   q.Question,
			Choices:    q.Choices,
		}
		if res, ok := sess.Results[i]; ok {
			r := res
			item.Result = &r
			item.UserAnswer = sess.Answers[i]
			item.Answer = q.Answer
			item.Explanation = q.Explanation
			item.Evidence = q.Evidence
		}
		items = append(items, item)
	}
	return SessionView{
		ID:        sess.ID,
		Mode:      sess.Mode,
		Title:     sess.Title,
		Summary:   summarize(sess),
		Questions: items,
		CreatedAt: sess.CreatedAt,
	}
}
