package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/viemarket/storefront/internal/chat"
	"github.com/viemarket/storefront/internal/platform/httpx"
	"github.com/viemarket/storefront/internal/platform/requestctx"
	"github.com/viemarket/storefront/internal/upstream"
)

// multipart sends carry at most one image under the attachment size cap.
const maxSendBodyBytes = chat.MaxImageBytes + (64 << 10)

// ChatHandlers exposes the conversation endpoints.
type ChatHandlers struct {
	sessions *SessionManager
}

// NewChatHandlers constructs the chat endpoint group.
func NewChatHandlers(sessions *SessionManager) *ChatHandlers {
	return &ChatHandlers{sessions: sessions}
}

// Routes mounts the chat endpoints on the given router.
func (h *ChatHandlers) Routes(r chi.Router) {
	r.Get("/status", h.status)
	r.Post("/notifications/drain", h.drainNotifications)
	r.Route("/{counterpartID}", func(r chi.Router) {
		r.Post("/open", h.open)
		r.Post("/older", h.loadOlder)
		r.Post("/messages", h.send)
	})
}

func (h *ChatHandlers) session(w http.ResponseWriter, r *http.Request) (*UserSession, bool) {
	id, _ := requestctx.IdentityFrom(r.Context())
	s, err := h.sessions.Session(id)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return nil, false
	}
	return s, true
}

func (h *ChatHandlers) status(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	snap := s.Chat.Snapshot()
	last, _ := s.Chat.LastConversation(r.Context())
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"connection":        string(s.Chat.Status()),
		"state":             string(snap.State),
		"counterpart_id":    snap.Counterpart,
		"typing":            snap.Typing,
		"unread":            snap.Unread,
		"last_conversation": last,
	})
}

func (h *ChatHandlers) drainNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	queued := s.Chat.DrainNotifications()
	views := make([]messageView, 0, len(queued))
	for _, m := range queued {
		views = append(views, newMessageView(m))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": views})
}

func (h *ChatHandlers) open(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	counterpartID := chi.URLParam(r, "counterpartID")
	if err := s.Chat.Open(r.Context(), counterpartID); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newConversationView(s.Chat.Snapshot()))
}

func (h *ChatHandlers) loadOlder(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	anchor, err := s.Chat.LoadOlder(r.Context())
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"anchor_key":   anchor.AnchorKey,
		"added":        anchor.Added,
		"conversation": newConversationView(s.Chat.Snapshot()),
	})
}

// send accepts either a JSON body {"message": "..."} or a multipart form
// with a "message" field and an optional "image" file, mirroring what the
// marketplace accepts upstream.
func (h *ChatHandlers) send(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	text, image, err := parseSendRequest(r)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	sent, err := s.Chat.Send(r.Context(), text, image)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, newMessageView(sent))
}

func parseSendRequest(r *http.Request) (string, *upstream.Attachment, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var req struct {
			Message string `json:"message"`
		}
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return "", nil, err
		}
		return req.Message, nil, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxSendBodyBytes)
	if err := r.ParseMultipartForm(maxSendBodyBytes); err != nil {
		return "", nil, err
	}
	text := r.FormValue("message")

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return text, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSendBodyBytes))
	if err != nil {
		return "", nil, err
	}
	return text, &upstream.Attachment{
		Filename: header.Filename,
		MIME:     header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
