package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/media"
)

const (
	maxUploadBytes = 20 << 20
	maxImageBytes  = 10 << 20
)

// Deduper records transport message ids that were already stored.
type Deduper interface {
	Seen(ctx context.Context, userID uint64, originID int64) (bool, error)
	Forget(ctx context.Context, userID uint64, originID int64) error
}

// EntryHandler is the transport surface: each request is one inbound
// message for the authenticated user.
type EntryHandler struct {
	Svc      *diary.Service
	Uploader media.Uploader
	Dedupe   Deduper
	Source   string
}

type createEntryReq struct {
	Content         string   `json:"content"`
	OriginMessageID *int64   `json:"origin_message_id"`
	Images          []string `json:"images"`
}

type entryDTO struct {
	ID        uint64    `json:"id"`
	JournalID uint64    `json:"journal_id"`
	Content   string    `json:"content"`
	Images    []string  `json:"images"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

// Create accepts JSON with already-hosted image references, or a multipart
// form whose "images" files are uploaded first.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createEntryReq
	var files []*multipart.FileHeader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		req.Content = r.FormValue("content")
		if v := strings.TrimSpace(r.FormValue("origin_message_id")); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, "invalid origin_message_id", http.StatusBadRequest)
				return
			}
			req.OriginMessageID = &id
		}
		if r.MultipartForm != nil {
			files = r.MultipartForm.File["images"]
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Content) == "" && len(req.Images) == 0 && len(files) == 0 {
		http.Error(w, "content or images required", http.StatusBadRequest)
		return
	}

	if req.OriginMessageID != nil && h.Dedupe != nil {
		seen, err := h.Dedupe.Seen(r.Context(), uid, *req.OriginMessageID)
		if err != nil {
			log.Printf("dedupe check failed user=%d: %v", uid, err)
		} else if seen {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	images := append([]string(nil), req.Images...)
	if len(files) > 0 {
		refs, err := h.upload(r.Context(), files)
		if err != nil {
			h.forget(r.Context(), uid, req.OriginMessageID)
			log.Printf("image upload failed user=%d: %v", uid, err)
			http.Error(w, "image upload failed", http.StatusBadGateway)
			return
		}
		images = append(images, refs...)
	}

	e, err := h.Svc.AddMessage(r.Context(), diary.Message{
		UserID:          uid,
		OriginMessageID: req.OriginMessageID,
		Source:          h.Source,
		Text:            req.Content,
		Images:          images,
		Tags:            diary.ExtractTags(req.Content, h.Svc.ReservedLabel()),
	})
	if err != nil {
		h.forget(r.Context(), uid, req.OriginMessageID)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(entryDTO{
		ID:        e.ID,
		JournalID: e.JournalID,
		Content:   e.Content,
		Images:    e.Images,
		Tags:      e.Tags,
		CreatedAt: e.CreatedAt,
	})
}

func (h *EntryHandler) upload(ctx context.Context, files []*multipart.FileHeader) ([]string, error) {
	if h.Uploader == nil {
		return nil, errors.New("no image uploader configured")
	}
	refs := make([]string, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data) > maxImageBytes {
			return nil, errors.New("image too large: " + fh.Filename)
		}
		ref, err := h.Uploader.Upload(ctx, fh.Filename, data)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// forget lets the client resend a message whose processing failed.
func (h *EntryHandler) forget(ctx context.Context, uid uint64, origin *int64) {
	if origin == nil || h.Dedupe == nil {
		return
	}
	if err := h.Dedupe.Forget(ctx, uid, *origin); err != nil {
		log.Printf("dedupe forget failed user=%d: %v", uid, err)
	}
}
