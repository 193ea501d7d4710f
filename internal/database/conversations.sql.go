package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const conversationColumns = `id, restaurant_id, customer_id, customer_phone, customer_name, status, unread_count, last_message_at, created_at`

func scanConversation(row scanner) (Conversation, error) {
	var i Conversation
	err := row.Scan(
		&i.ID,
		&i.RestaurantID,
		&i.CustomerID,
		&i.CustomerPhone,
		&i.CustomerName,
		&i.Status,
		&i.UnreadCount,
		&i.LastMessageAt,
		&i.CreatedAt,
	)
	return i, err
}

const upsertInboundConversation = `-- name: UpsertInboundConversation :one
INSERT INTO conversations (restaurant_id, customer_id, customer_phone, customer_name, unread_count, last_message_at)
VALUES ($1, $2, $3, $4, 1, now())
ON CONFLICT (restaurant_id, customer_phone) DO UPDATE
SET customer_id = COALESCE(EXCLUDED.customer_id, conversations.customer_id),
    customer_name = EXCLUDED.customer_name,
    unread_count = conversations.unread_count + 1,
    last_message_at = now(),
    status = CASE WHEN conversations.status = 'CLOSED' THEN 'OPEN' ELSE conversations.status END
RETURNING ` + conversationColumns

type UpsertInboundConversationParams struct {
	RestaurantID  uuid.UUID   `json:"restaurant_id"`
	CustomerID    pgtype.UUID `json:"customer_id"`
	CustomerPhone string      `json:"customer_phone"`
	CustomerName  string      `json:"customer_name"`
}

// UpsertInboundConversation finds or creates the conversation for a phone and
// records one unread inbound message against it.
func (q *Queries) UpsertInboundConversation(ctx context.Context, arg UpsertInboundConversationParams) (Conversation, error) {
	row := q.db.QueryRow(ctx, upsertInboundConversation,
		arg.RestaurantID,
		arg.CustomerID,
		arg.CustomerPhone,
		arg.CustomerName,
	)
	return scanConversation(row)
}

const getConversation = `-- name: GetConversation :one
SELECT ` + conversationColumns + ` FROM conversations
WHERE id = $1 AND restaurant_id = $2
`

type GetConversationParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) GetConversation(ctx context.Context, arg GetConversationParams) (Conversation, error) {
	row := q.db.QueryRow(ctx, getConversation, arg.ID, arg.RestaurantID)
	return scanConversation(row)
}

const listConversations = `-- name: ListConversations :many
SELECT ` + conversationColumns + ` FROM conversations
WHERE restaurant_id = $1
  AND ($2::text IS NULL OR status = $2)
ORDER BY last_message_at DESC
LIMIT $3 OFFSET $4
`

type ListConversationsParams struct {
	RestaurantID uuid.UUID   `json:"restaurant_id"`
	Status       pgtype.Text `json:"status"`
	Limit        int32       `json:"limit"`
	Offset       int32       `json:"offset"`
}

func (q *Queries) ListConversations(ctx context.Context, arg ListConversationsParams) ([]Conversation, error) {
	rows, err := q.db.Query(ctx, listConversations,
		arg.RestaurantID,
		arg.Status,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Conversation{}
	for rows.Next() {
		i, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const touchConversation = `-- name: TouchConversation :exec
UPDATE conversations SET last_message_at = now()
WHERE id = $1
`

func (q *Queries) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchConversation, id)
	return err
}

const markConversationRead = `-- name: MarkConversationRead :one
UPDATE conversations SET unread_count = 0
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + conversationColumns

type MarkConversationReadParams struct {
	ID           uuid.UUID `json:"id"`
	RestaurantID uuid.UUID `json:"restaurant_id"`
}

func (q *Queries) MarkConversationRead(ctx context.Context, arg MarkConversationReadParams) (Conversation, error) {
	row := q.db.QueryRow(ctx, markConversationRead, arg.ID, arg.RestaurantID)
	return scanConversation(row)
}

const markInboundMessagesRead = `-- name: MarkInboundMessagesRead :execrows
UPDATE messages SET is_read = true, read_at = now()
WHERE conversation_id = $1 AND direction = 'INBOUND' AND is_read = false
`

func (q *Queries) MarkInboundMessagesRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, markInboundMessagesRead, conversationID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const updateConversationStatus = `-- name: UpdateConversationStatus :one
UPDATE conversations SET status = $3
WHERE id = $1 AND restaurant_id = $2
RETURNING ` + conversationColumns

type UpdateConversationStatusParams struct {
	ID           uuid.UUID          `json:"id"`
	RestaurantID uuid.UUID          `json:"restaurant_id"`
	Status       ConversationStatus `json:"status"`
}

func (q *Queries) UpdateConversationStatus(ctx context.Context, arg UpdateConversationStatusParams) (Conversation, error) {
	row := q.db.QueryRow(ctx, updateConversationStatus, arg.ID, arg.RestaurantID, string(arg.Status))
	return scanConversation(row)
}

const messageColumns = `id, conversation_id, direction, content, metadata, sender_id, is_read, read_at, created_at`

func scanMessage(row scanner) (Message, error) {
	var i Message
	err := row.Scan(
		&i.ID,
		&i.ConversationID,
		&i.Direction,
		&i.Content,
		&i.Metadata,
		&i.SenderID,
		&i.IsRead,
		&i.ReadAt,
		&i.CreatedAt,
	)
	return i, err
}

const createMessage = `-- name: CreateMessage :one
INSERT INTO messages (conversation_id, direction, content, metadata, sender_id, is_read)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + messageColumns

type CreateMessageParams struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	Direction      MessageDirection `json:"direction"`
	Content        string           `json:"content"`
	Metadata       []byte           `json:"metadata"`
	SenderID       pgtype.UUID      `json:"sender_id"`
	IsRead         bool             `json:"is_read"`
}

func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	row := q.db.QueryRow(ctx, createMessage,
		arg.ConversationID,
		string(arg.Direction),
		arg.Content,
		arg.Metadata,
		arg.SenderID,
		arg.IsRead,
	)
	return scanMessage(row)
}

const listMessages = `-- name: ListMessages :many
SELECT ` + messageColumns + ` FROM messages
WHERE conversation_id = $1
ORDER BY created_at, id
LIMIT $2 OFFSET $3
`

type ListMessagesParams struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Limit          int32     `json:"limit"`
	Offset         int32     `json:"offset"`
}

func (q *Queries) ListMessages(ctx context.Context, arg ListMessagesParams) ([]Message, error) {
	rows, err := q.db.Query(ctx, listMessages, arg.ConversationID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Message{}
	for rows.Next() {
		i, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const noteColumns = `id, conversation_id, author_id, content, created_at, updated_at`

func scanNote(row scanner) (ConversationNote, error) {
	var i ConversationNote
	err := row.Scan(
		&i.ID,
		&i.ConversationID,
		&i.AuthorID,
		&i.Content,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listNotes = `-- name: ListNotes :many
SELECT ` + noteColumns + ` FROM conversation_notes
WHERE conversation_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListNotes(ctx context.Context, conversationID uuid.UUID) ([]ConversationNote, error) {
	rows, err := q.db.Query(ctx, listNotes, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ConversationNote{}
	for rows.Next() {
		i, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createNote = `-- name: CreateNote :one
INSERT INTO conversation_notes (conversation_id, author_id, content)
VALUES ($1, $2, $3)
RETURNING ` + noteColumns

type CreateNoteParams struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	AuthorID       uuid.UUID `json:"author_id"`
	Content        string    `json:"content"`
}

func (q *Queries) CreateNote(ctx context.Context, arg CreateNoteParams) (ConversationNote, error) {
	row := q.db.QueryRow(ctx, createNote, arg.ConversationID, arg.AuthorID, arg.Content)
	return scanNote(row)
}

const getNote = `-- name: GetNote :one
SELECT ` + noteColumns + ` FROM conversation_notes
WHERE id = $1 AND conversation_id = $2
`

type GetNoteParams struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

func (q *Queries) GetNote(ctx context.Context, arg GetNoteParams) (ConversationNote, error) {
	row := q.db.QueryRow(ctx, getNote, arg.ID, arg.ConversationID)
	return scanNote(row)
}

const updateNote = `-- name: UpdateNote :one
UPDATE conversation_notes SET content = $2, updated_at = now()
WHERE id = $1
RETURNING ` + noteColumns

type UpdateNoteParams struct {
	ID      uuid.UUID `json:"id"`
	Content string    `json:"content"`
}

func (q *Queries) UpdateNote(ctx context.Context, arg UpdateNoteParams) (ConversationNote, error) {
	row := q.db.QueryRow(ctx, updateNote, arg.ID, arg.Content)
	return scanNote(row)
}

const deleteNote = `-- name: DeleteNote :exec
DELETE FROM conversation_notes WHERE id = $1
`

func (q *Queries) DeleteNote(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteNote, id)
	return err
}
