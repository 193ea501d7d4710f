package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/realtime"
	"github.com/whataybo/api/internal/service"
	"github.com/whataybo/api/internal/whatsapp"
)

// TextSender sends a free-form WhatsApp message. Satisfied by any
// whatsapp.Notifier.
type TextSender interface {
	SendText(ctx context.Context, phone, text string) error
}

// ConversationStore defines the database methods needed by the inbox.
// Satisfied by *database.Queries; narrow interface for testability.
type ConversationStore interface {
	ListConversations(ctx context.Context, arg database.ListConversationsParams) ([]database.Conversation, error)
	GetConversation(ctx context.Context, arg database.GetConversationParams) (database.Conversation, error)
	UpdateConversationStatus(ctx context.Context, arg database.UpdateConversationStatusParams) (database.Conversation, error)
	MarkConversationRead(ctx context.Context, arg database.MarkConversationReadParams) (database.Conversation, error)
	MarkInboundMessagesRead(ctx context.Context, conversationID uuid.UUID) (int64, error)
	TouchConversation(ctx context.Context, id uuid.UUID) error
	ListMessages(ctx context.Context, arg database.ListMessagesParams) ([]database.Message, error)
	CreateMessage(ctx context.Context, arg database.CreateMessageParams) (database.Message, error)
}

// ConversationHandler serves the staff inbox.
type ConversationHandler struct {
	store    ConversationStore
	events   realtime.Publisher
	sender   TextSender
	dispatch *whatsapp.Dispatcher
}

// NewConversationHandler creates a ConversationHandler. Replies are sent to
// WhatsApp through dispatch, after the response is written.
func NewConversationHandler(store ConversationStore, events realtime.Publisher, sender TextSender, dispatch *whatsapp.Dispatcher) *ConversationHandler {
	if dispatch == nil {
		dispatch = whatsapp.NewDispatcher(0)
	}
	return &ConversationHandler{store: store, events: events, sender: sender, dispatch: dispatch}
}

// RegisterRoutes registers inbox endpoints on the given Chi router.
// Expected to be mounted at /conversations inside the authenticated API.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}/messages", h.ListMessages)
	r.Post("/{id}/messages", h.SendMessage)
	r.Patch("/{id}/mark-read", h.MarkRead)
	r.Patch("/{id}/status", h.UpdateStatus)
}

// --- Request / Response types ---

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type conversationStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN CLOSED RESOLVED SPAM"`
}

type conversationListResponse struct {
	Conversations []service.ConversationView `json:"conversations"`
	Limit         int32                      `json:"limit"`
	Offset        int32                      `json:"offset"`
}

type messageListResponse struct {
	Messages []service.MessageView `json:"messages"`
	Limit    int32                 `json:"limit"`
	Offset   int32                 `json:"offset"`
}

// --- Handlers ---

// List returns the restaurant's conversations, most recent activity first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := database.ListConversationsParams{RestaurantID: claims.RestaurantID, Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("status"); s != "" {
		status, ok := parseConversationStatus(s)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		params.Status = pgtype.Text{String: string(status), Valid: true}
	}

	convs, err := h.store.ListConversations(r.Context(), params)
	if err != nil {
		internalError(w, "list conversations", err)
		return
	}

	resp := conversationListResponse{
		Conversations: make([]service.ConversationView, len(convs)),
		Limit:         limit,
		Offset:        offset,
	}
	for i, c := range convs {
		resp.Conversations[i] = service.NewConversationView(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages returns a page of messages, oldest first.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, ok := h.conversation(w, r, claims.RestaurantID)
	if !ok {
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), database.ListMessagesParams{ConversationID: conv.ID, Limit: limit, Offset: offset})
	if err != nil {
		internalError(w, "list messages", err)
		return
	}

	resp := messageListResponse{Messages: make([]service.MessageView, len(msgs)), Limit: limit, Offset: offset}
	for i, m := range msgs {
		resp.Messages[i] = service.NewMessageView(m)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage records a staff reply and forwards it to the customer over
// WhatsApp on a best-effort basis.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, ok := h.conversation(w, r, claims.RestaurantID)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: []fieldError{{Field: "content", Message: "is required"}},
		})
		return
	}

	msg, err := h.store.CreateMessage(r.Context(), database.CreateMessageParams{
		ConversationID: conv.ID,
		Direction:      database.MessageDirectionOUTBOUND,
		Content:        content,
		Metadata:       []byte(`{"type":"text"}`),
		SenderID:       pgtype.UUID{Bytes: claims.UserID, Valid: true},
		IsRead:         true,
	})
	if err != nil {
		internalError(w, "create message", err)
		return
	}
	if err := h.store.TouchConversation(r.Context(), conv.ID); err != nil {
		log.Printf("WARN: touch conversation %s: %v", conv.ID, err)
	}

	view := service.NewMessageView(msg)
	realtime.Emit(h.events, realtime.EventNewMessage, map[string]interface{}{
		"conversation": service.NewConversationView(conv),
		"message":      view,
	}, realtime.RestaurantRoom(claims.RestaurantID))

	if h.sender != nil {
		phone := conv.CustomerPhone
		h.dispatch.Go(r.Context(), "reply to conversation "+conv.ID.String(), func(ctx context.Context) error {
			return h.sender.SendText(ctx, phone, content)
		})
	}

	writeJSON(w, http.StatusCreated, view)
}

// MarkRead marks inbound messages read and zeroes the unread counter.
func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, ok := h.conversation(w, r, claims.RestaurantID)
	if !ok {
		return
	}

	n, err := h.store.MarkInboundMessagesRead(r.Context(), conv.ID)
	if err != nil {
		internalError(w, "mark messages read", err)
		return
	}
	updated, err := h.store.MarkConversationRead(r.Context(), database.MarkConversationReadParams{ID: conv.ID, RestaurantID: claims.RestaurantID})
	if err != nil {
		internalError(w, "mark conversation read", err)
		return
	}

	realtime.Emit(h.events, realtime.EventMessagesRead, map[string]interface{}{
		"conversation_id": conv.ID,
		"read_by":         claims.UserID,
		"count":           n,
	}, realtime.RestaurantRoom(claims.RestaurantID))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": service.NewConversationView(updated),
		"marked_read":  n,
	})
}

// UpdateStatus sets OPEN, CLOSED, RESOLVED or SPAM.
func (h *ConversationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	convID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	var req conversationStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	conv, err := h.store.UpdateConversationStatus(r.Context(), database.UpdateConversationStatusParams{
		ID:           convID,
		RestaurantID: claims.RestaurantID,
		Status:       database.ConversationStatus(req.Status),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		internalError(w, "update conversation status", err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewConversationView(conv))
}

// --- Helpers ---

// conversation loads {id} scoped to the caller's restaurant. It writes the
// error response and returns false on failure.
func (h *ConversationHandler) conversation(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (database.Conversation, bool) {
	return loadConversation(w, r, h.store, restaurantID)
}

type conversationGetter interface {
	GetConversation(ctx context.Context, arg database.GetConversationParams) (database.Conversation, error)
}

func loadConversation(w http.ResponseWriter, r *http.Request, store conversationGetter, restaurantID uuid.UUID) (database.Conversation, bool) {
	convID, err := urlUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation ID")
		return database.Conversation{}, false
	}
	conv, err := store.GetConversation(r.Context(), database.GetConversationParams{ID: convID, RestaurantID: restaurantID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return conv, false
		}
		internalError(w, "get conversation", err)
		return conv, false
	}
	return conv, true
}

func parseConversationStatus(s string) (database.ConversationStatus, bool) {
	switch status := database.ConversationStatus(strings.ToUpper(s)); status {
	case database.ConversationStatusOPEN, database.ConversationStatusCLOSED,
		database.ConversationStatusRESOLVED, database.ConversationStatusSPAM:
		return status, true
	}
	return "", false
}
