package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	ModeNormal = "normal"
	ModeRetry  = "retry"

	DefaultLimit = 20
	maxLimit     = 200
)

type Record struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Mode           string    `json:"mode"`
	Score          float64   `json:"score"`
	MaxScore       float64   `json:"max_score"`
	TotalQuestions int       `json:"total_questions"`
	Topic          string    `json:"topic"`
	Percent        int       `json:"percent"`
	CreatedAt      time.Time `json:"created_at"`
}

type SaveInput struct {
	UserID         string
	Mode           string
	Score          float64
	MaxScore       float64
	TotalQuestions int
	Topic          string
}

type Service struct {
	db  *sql.DB
	now func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Save(ctx context.Context, in SaveInput) (*Record, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Mode = strings.TrimSpace(strings.ToLower(in.Mode))
	if in.Mode == "" {
		in.Mode = ModeNormal
	}
	if in.UserID == "" || (in.Mode != ModeNormal && in.Mode != ModeRetry) {
		return nil, ErrInvalidInput
	}
	if in.Score < 0 || in.MaxScore < 0 || in.TotalQuestions < 0 {
		return nil, ErrInvalidInput
	}

	rec := Record{
		ID:             uuid.New().String(),
		UserID:         in.UserID,
		Mode:           in.Mode,
		Score:          in.Score,
		MaxScore:       in.MaxScore,
		TotalQuestions: in.TotalQuestions,
		Topic:          strings.TrimSpace(in.Topic),
		CreatedAt:      s.now().UTC().Truncate(time.Second),
	}
	rec.Percent = Percent(rec.Score, rec.MaxScore)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO study_sessions (id, user_id, mode, score, max_score, total_questions, topic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.UserID, rec.Mode, rec.Score, rec.MaxScore, rec.TotalQuestions, rec.Topic, rec.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert study session: %w", err)
	}
	return &rec, nil
}

// ListRecent returns the newest sessions of a user first.
func (s *Service) ListRecent(ctx context.Context, userID string, limit int) ([]Record, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return s.list(ctx, userID, limit)
}

func (s *Service) list(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, mode, score, max_score, total_questions, topic, created_at
		FROM study_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query study sessions: %w", err)
	}
	defer rows.Close()

	items := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var created int64
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Mode, &rec.Score, &rec.MaxScore, &rec.TotalQuestions, &rec.Topic, &created); err != nil {
			return nil, fmt.Errorf("scan study session: %w", err)
		}
		rec.CreatedAt = time.Unix(created, 0).UTC()
		rec.Percent = Percent(rec.Score, rec.MaxScore)
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate study sessions: %w", err)
	}
	return items, nil
}

func Percent(score, maxScore float64) int {
	if maxScore <= 0 {
		return 0
	}
	return int(math.Round(score / maxScore * 100))
}
