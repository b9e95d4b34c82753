package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"diary/internal/auth"
	"diary/internal/diary"
)

type PreferencesHandler struct {
	Svc *diary.Service
}

type preferencesDTO struct {
	ShowEntryTime   bool   `json:"show_entry_time"`
	EntryTimeFormat string `json:"entry_time_format"`
}

type patchPreferencesReq struct {
	ShowEntryTime   *bool   `json:"show_entry_time"`
	EntryTimeFormat *string `json:"entry_time_format"`
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	h.write(w, r, uid)
}

func (h *PreferencesHandler) Patch(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req patchPreferencesReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.ShowEntryTime == nil && req.EntryTimeFormat == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}

	// validate the format before writing anything
	if req.EntryTimeFormat != nil {
		if err := diary.ValidateTimeFormat(*req.EntryTimeFormat); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.ShowEntryTime != nil {
		if err := h.Svc.SetPreference(r.Context(), uid, diary.PrefShowEntryTime, strconv.FormatBool(*req.ShowEntryTime)); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.EntryTimeFormat != nil {
		if err := h.Svc.SetPreference(r.Context(), uid, diary.PrefEntryTimeFormat, *req.EntryTimeFormat); err != nil {
			writeError(w, err)
			return
		}
	}
	h.write(w, r, uid)
}

func (h *PreferencesHandler) write(w http.ResponseWriter, r *http.Request, uid uint64) {
	p, err := h.Svc.Preferences(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(preferencesDTO{
		ShowEntryTime:   p.ShowEntryTime,
		EntryTimeFormat: p.EntryTimeFormat,
	})
}
