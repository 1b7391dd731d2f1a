package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"studysnap/internal/app/apiresp"
	"studysnap/internal/auth"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type historyService interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
	ExportExcel(ctx context.Context, userID string) ([]byte, error)
}

type Handler struct {
	svc          historyService
	defaultLimit int
}

func NewHandler(svc historyService, defaultLimit int) *Handler {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Handler{svc: svc, defaultLimit: defaultLimit}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	items, err := h.svc.ListRecent(r.Context(), user.ID, limit)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("list history: %v", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	data, err := h.svc.ExportExcel(r.Context(), user.ID)
	if err != nil {
		log.Printf("export history: %v", err)
		apiresp.WriteError(w, r, http.StatusInternalServerError, "cannot export history")
		return
	}

	filename := fmt.Sprintf("studysnap_history_%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
