package handler

import (
	"encoding/json"
	"net/http"

	"diary/internal/auth"
	"diary/internal/diary"
)

type MeHandler struct {
	Svc *diary.Service
}

// Me returns the caller's id together with the server's notion of today, so
// clients can tell which day their next entry will land on.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"user_id": uid,
		"today":   h.Svc.Today(),
	})
}
