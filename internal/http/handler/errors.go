package handler

import (
	"errors"
	"log"
	"net/http"

	"diary/internal/diary"
)

func writeError(w http.ResponseWriter, err error) {
	var ext *diary.ExternalServiceError
	switch {
	case errors.Is(err, diary.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, diary.ErrJournalMerged):
		http.Error(w, "journal already merged", http.StatusConflict)
	case errors.Is(err, diary.ErrMergeInProgress):
		http.Error(w, "merge in progress", http.StatusConflict)
	case errors.Is(err, diary.ErrJournalNotMerged):
		http.Error(w, "journal not merged", http.StatusConflict)
	case errors.Is(err, diary.ErrEmptyMessage):
		http.Error(w, "content or images required", http.StatusBadRequest)
	case errors.Is(err, diary.ErrUpdateUnsupported):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	case errors.Is(err, diary.ErrUnknownPreference), errors.Is(err, diary.ErrInvalidPreference):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &ext):
		log.Printf("external service error: %v", err)
		http.Error(w, "external service unavailable", http.StatusBadGateway)
	default:
		log.Printf("server error: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
