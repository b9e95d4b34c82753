package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"diary/internal/auth"
	"diary/internal/diary"

	"github.com/go-chi/chi/v5"
)

// ForceMerger finishes today's journal on request and reports which day it
// treated as today.
type ForceMerger interface {
	ForceMergeToday(ctx context.Context, userID uint64) (diary.Date, string, error)
}

type JournalHandler struct {
	Svc    *diary.Service
	Merger ForceMerger
}

func (h *JournalHandler) Today(w http.ResponseWriter, r *http.Request) {
	h.summary(w, r, h.Svc.Today())
}

func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	day, err := diary.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	h.summary(w, r, day)
}

func (h *JournalHandler) summary(w http.ResponseWriter, r *http.Request, day diary.Date) {
	uid, _ := auth.UserIDFromContext(r.Context())

	s, err := h.Svc.Summary(r.Context(), uid, day)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s)
}

// End merges today's journal now. An empty reference means there was
// nothing to merge.
func (h *JournalHandler) End(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	day, ref, err := h.Merger.ForceMergeToday(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"date":      day,
		"reference": ref,
		"merged":    ref != "",
	})
}

func (h *JournalHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	day, err := diary.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if err := h.Svc.RefreshJournal(r.Context(), uid, day); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
