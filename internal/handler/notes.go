package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/realtime"
)

// NoteStore defines the database methods needed by conversation notes.
// Satisfied by *database.Queries.
type NoteStore interface {
	GetConversation(ctx context.Context, arg database.GetConversationParams) (database.Conversation, error)
	ListNotes(ctx context.Context, conversationID uuid.UUID) ([]database.ConversationNote, error)
	CreateNote(ctx context.Context, arg database.CreateNoteParams) (database.ConversationNote, error)
	GetNote(ctx context.Context, arg database.GetNoteParams) (database.ConversationNote, error)
	UpdateNote(ctx context.Context, arg database.UpdateNoteParams) (database.ConversationNote, error)
	DeleteNote(ctx context.Context, id uuid.UUID) error
}

// NoteHandler serves internal staff notes on a conversation.
type NoteHandler struct {
	store  NoteStore
	events realtime.Publisher
}

func NewNoteHandler(store NoteStore, events realtime.Publisher) *NoteHandler {
	return &NoteHandler{store: store, events: events}
}

// RegisterRoutes registers note endpoints. Expected to be mounted at
// /conversations/{id}/notes.
func (h *NoteHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{noteId}", h.Update)
	r.Delete("/{noteId}", h.Delete)
}

type noteRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type noteResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toNoteResponse(n database.ConversationNote) noteResponse {
	return noteResponse{
		ID:             n.ID,
		ConversationID: n.ConversationID,
		AuthorID:       n.AuthorID,
		Content:        n.Content,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, ok := loadConversation(w, r, h.store, claims.RestaurantID)
	if !ok {
		return
	}

	notes, err := h.store.ListNotes(r.Context(), conv.ID)
	if err != nil {
		internalError(w, "list notes", err)
		return
	}
	resp := make([]noteResponse, len(notes))
	for i, n := range notes {
		resp[i] = toNoteResponse(n)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, ok := loadConversation(w, r, h.store, claims.RestaurantID)
	if !ok {
		return
	}

	var req noteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	note, err := h.store.CreateNote(r.Context(), database.CreateNoteParams{
		ConversationID: conv.ID,
		AuthorID:       claims.UserID,
		Content:        strings.TrimSpace(req.Content),
	})
	if err != nil {
		internalError(w, "create note", err)
		return
	}

	resp := toNoteResponse(note)
	h.emit(realtime.EventNoteAdded, claims.RestaurantID, conv.ID, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// Update edits a note. Only its author may do so.
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, note, ok := h.note(w, r, claims.RestaurantID)
	if !ok {
		return
	}
	if note.AuthorID != claims.UserID {
		writeError(w, http.StatusForbidden, "only the author can edit this note")
		return
	}

	var req noteRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := h.store.UpdateNote(r.Context(), database.UpdateNoteParams{ID: note.ID, Content: strings.TrimSpace(req.Content)})
	if err != nil {
		internalError(w, "update note", err)
		return
	}

	resp := toNoteResponse(updated)
	h.emit(realtime.EventNoteUpdated, claims.RestaurantID, conv.ID, resp)
	writeJSON(w, http.StatusOK, resp)
}

// Delete removes a note. The author, an owner or a manager may do so.
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims := requireClaims(w, r)
	if claims == nil {
		return
	}
	conv, note, ok := h.note(w, r, claims.RestaurantID)
	if !ok {
		return
	}
	if note.AuthorID != claims.UserID && claims.Role != enum.UserRoleOwner && claims.Role != enum.UserRoleManager {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}

	if err := h.store.DeleteNote(r.Context(), note.ID); err != nil {
		internalError(w, "delete note", err)
		return
	}

	h.emit(realtime.EventNoteDeleted, claims.RestaurantID, conv.ID, map[string]uuid.UUID{"note_id": note.ID})
	w.WriteHeader(http.StatusNoContent)
}

// note loads the conversation and {noteId} within it.
func (h *NoteHandler) note(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) (database.Conversation, database.ConversationNote, bool) {
	conv, ok := loadConversation(w, r, h.store, restaurantID)
	if !ok {
		return conv, database.ConversationNote{}, false
	}
	noteID, err := urlUUID(r, "noteId")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note ID")
		return conv, database.ConversationNote{}, false
	}
	note, err := h.store.GetNote(r.Context(), database.GetNoteParams{ID: noteID, ConversationID: conv.ID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "note not found")
			return conv, note, false
		}
		internalError(w, "get note", err)
		return conv, note, false
	}
	return conv, note, true
}

func (h *NoteHandler) emit(typ string, restaurantID, conversationID uuid.UUID, note interface{}) {
	realtime.Emit(h.events, typ, map[string]interface{}{
		"conversation_id": conversationID,
		"note":            note,
	}, realtime.RestaurantRoom(restaurantID))
}
