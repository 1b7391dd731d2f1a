package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"studysnap/internal/app/apiresp"
	"studysnap/internal/auth"
	"studysnap/internal/scoring"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 12 << 20

type sessionService interface {
	Score(q scoring.Question, userAnswer string) scoring.Result
	Start(ctx context.Context, in StartInput) (*SessionView, error)
	Get(ctx context.Context, sessionID, userID string) (*SessionView, error)
	Check(ctx context.Context, sessionID, userID string, index int, answer string) (*CheckResult, error)
	Retry(ctx context.Context, sessionID, userID string) (*SessionView, error)
}

type Handler struct {
	svc sessionService
	gen Generator
}

type scoreRequest struct {
	Question   scoring.Question `json:"question"`
	UserAnswer string           `json:"user_answer"`
}

type generateRequest struct {
	ImageBase64   string `json:"image_base64"`
	MimeType      string `json:"mime_type"`
	QuestionCount int    `json:"question_count"`
}

type startSessionRequest struct {
	Title         string             `json:"title"`
	Questions     []scoring.Question `json:"questions"`
	QuestionCount int                `json:"question_count"`
}

type checkAnswerRequest struct {
	Answer string `json:"answer"`
}

// NewHandler accepts a nil generator; the generate endpoint then answers 503.
func NewHandler(svc sessionService, gen Generator) *Handler {
	return &Handler{svc: svc, gen: gen}
}

func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, h.svc.Score(req.Question, req.UserAnswer))
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.gen == nil {
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, ErrGeneratorDisabled.Error())
		return
	}
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	generated, err := h.gen.Generate(r.Context(), GenerateInput{
		ImageBase64:   req.ImageBase64,
		MimeType:      req.MimeType,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidImage):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrGeneratorDisabled):
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, ErrEmptyOutput), errors.Is(err, ErrNotJSON), errors.Is(err, ErrNoQuestions):
			apiresp.WriteError(w, r, http.StatusBadGateway, err.Error())
		default:
			log.Printf("generate quiz: %v", err)
			apiresp.WriteError(w, r, http.StatusBadGateway, "question generator failed")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, generated)
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.svc.Start(r.Context(), StartInput{
		UserID:        currentUserID(r),
		Title:         req.Title,
		Questions:     req.Questions,
		QuestionCount: req.QuestionCount,
	})
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, view)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), currentUserID(r))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, view)
}

func (h *Handler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question index")
		return
	}
	var req checkAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Check(r.Context(), chi.URLParam(r, "id"), currentUserID(r), index, req.Answer)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, res)
}

func (h *Handler) RetrySession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Retry(r.Context(), chi.URLParam(r, "id"), currentUserID(r))
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, view)
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrQuestionIndex):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNothingToRetry):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		log.Printf("quiz session: %v", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func currentUserID(r *http.Request) string {
	if u, ok := auth.CurrentUser(r.Context()); ok {
		return strings.TrimSpace(u.ID)
	}
	return ""
}
