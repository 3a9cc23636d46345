package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/versolabs/verso/internal/crypto"
	"github.com/versolabs/verso/internal/llm"
	"github.com/versolabs/verso/internal/tools"
)

// DB is the subset of pgxpool.Pool the store needs. Narrowed for tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists conversations, messages, risk annotations, and the
// per-owner current-conversation pointer.
//
// When a cipher is configured, message parts are encrypted before insert.
// Reads that hit undecryptable content keep the stored value as-is so one
// bad row never hides a whole conversation.
type Store struct {
	db     DB
	cipher crypto.Cipher // nil disables at-rest encryption
	perms  Permissions
	logger *slog.Logger
}

// StoreOption configures optional Store behavior.
type StoreOption func(*Store)

// WithPermissions replaces the default owner-only access policy.
func WithPermissions(p Permissions) StoreOption {
	return func(s *Store) { s.perms = p }
}

// NewStore creates a Store. cipher may be nil.
func NewStore(db DB, cipher crypto.Cipher, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, cipher: cipher, perms: OwnerOnly{}, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConversation inserts a new active conversation for owner.
func (s *Store) CreateConversation(ctx context.Context, owner, title string) (Conversation, error) {
	conv := Conversation{
		ID:     uuid.NewString(),
		Owner:  owner,
		Title:  title,
		Status: StatusActive,
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, owner, title, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		conv.ID, conv.Owner, conv.Title, conv.Status,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// Conversation loads one conversation, enforcing ownership. Soft-deleted
// conversations are not found.
func (s *Store) Conversation(ctx context.Context, id, owner string) (Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(ctx, `
		SELECT id, owner, title, status, created_at, updated_at, message_count
		FROM conversations
		WHERE id = $1 AND status <> $2`,
		id, StatusDeleted,
	).Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("loading conversation: %w", err)
	}
	if !s.perms.CanView(conv, owner) {
		return Conversation{}, ErrAccessDenied
	}
	return conv, nil
}

// Conversations lists an owner's conversations, most recently updated
// first. Soft-deleted conversations are excluded.
func (s *Store) Conversations(ctx context.Context, owner string) ([]Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, owner, title, status, created_at, updated_at, message_count
		FROM conversations
		WHERE owner = $1 AND status <> $2
		ORDER BY updated_at DESC`,
		owner, StatusDeleted,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.Owner, &conv.Title, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// Messages loads a conversation's messages in sequence order, enforcing
// ownership.
func (s *Store) Messages(ctx context.Context, conversationID, owner string) ([]Message, error) {
	if _, err := s.Conversation(ctx, conversationID, owner); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, parts,
		       prompt_tokens, completion_tokens, thinking_tokens, total_tokens,
		       safety, metadata, sequence_number, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY sequence_number ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg      Message
			rawParts string
			safety   []byte
			metadata []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &rawParts,
			&msg.Tokens.PromptTokens, &msg.Tokens.CompletionTokens, &msg.Tokens.ThinkingTokens, &msg.Tokens.TotalTokens,
			&safety, &metadata, &msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		msg.Parts, err = s.decodeParts(rawParts, msg.ID)
		if err != nil {
			return nil, err
		}
		if len(safety) > 0 {
			if err := json.Unmarshal(safety, &msg.Safety); err != nil {
				return nil, fmt.Errorf("decoding safety for message %s: %w", msg.ID, err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for message %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// History loads a conversation's messages as canonical prompt contents.
func (s *Store) History(ctx context.Context, conversationID, owner string) ([]llm.Content, error) {
	msgs, err := s.Messages(ctx, conversationID, owner)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Content, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, llm.Content{Role: msg.Role, Parts: msg.Parts})
	}
	return out, nil
}

// SaveMessage appends one message. The conversation row is locked for the
// duration of the transaction so sequence numbers are gapless and unique
// under concurrent writers.
func (s *Store) SaveMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var status Status
	err = tx.QueryRow(ctx, `
		SELECT status FROM conversations WHERE id = $1 FOR UPDATE`,
		msg.ConversationID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("locking conversation: %w", err)
	}
	if status == StatusDeleted {
		return Message{}, ErrNotFound
	}

	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM messages WHERE conversation_id = $1`,
		msg.ConversationID,
	).Scan(&msg.SequenceNumber); err != nil {
		return Message{}, fmt.Errorf("computing sequence number: %w", err)
	}

	rawParts, err := s.encodeParts(msg.Parts)
	if err != nil {
		return Message{}, err
	}
	safety, err := json.Marshal(msg.Safety)
	if err != nil {
		return Message{}, fmt.Errorf("encoding safety: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return Message{}, fmt.Errorf("encoding metadata: %w", err)
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, role, parts,
			prompt_tokens, completion_tokens, thinking_tokens, total_tokens,
			safety, metadata, sequence_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, rawParts,
		msg.Tokens.PromptTokens, msg.Tokens.CompletionTokens, msg.Tokens.ThinkingTokens, msg.Tokens.TotalTokens,
		safety, metadata, msg.SequenceNumber,
	).Scan(&msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE conversations
		SET message_count = message_count + 1, updated_at = now()
		WHERE id = $1`,
		msg.ConversationID,
	); err != nil {
		return Message{}, fmt.Errorf("updating conversation counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("committing message: %w", err)
	}
	return msg, nil
}

// UpdateTitle sets a conversation's title, enforcing edit permission.
func (s *Store) UpdateTitle(ctx context.Context, id, owner, title string) error {
	conv, err := s.Conversation(ctx, id, owner)
	if err != nil {
		return err
	}
	if !s.perms.CanEdit(conv, owner) {
		return ErrAccessDenied
	}
	if _, err := s.db.Exec(ctx, `
		UPDATE conversations SET title = $1, updated_at = now() WHERE id = $2`,
		title, id,
	); err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	return nil
}

// Archive marks a conversation archived.
func (s *Store) Archive(ctx context.Context, id, owner string) error {
	return s.setStatus(ctx, id, owner, StatusArchived)
}

// Delete soft-deletes a conversation. Messages stay in place for audit;
// the conversation disappears from every listing and lookup.
func (s *Store) Delete(ctx context.Context, id, owner string) error {
	return s.setStatus(ctx, id, owner, StatusDeleted)
}

func (s *Store) setStatus(ctx context.Context, id, owner string, status Status) error {
	conv, err := s.Conversation(ctx, id, owner)
	if err != nil {
		return err
	}
	allowed := s.perms.CanEdit(conv, owner)
	if status == StatusDeleted {
		allowed = s.perms.CanDelete(conv, owner)
	}
	if !allowed {
		return ErrAccessDenied
	}
	_, err = s.db.Exec(ctx, `
		UPDATE conversations SET status = $1, updated_at = now() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("setting conversation status: %w", err)
	}
	return nil
}

// CurrentConversation returns the owner's current conversation ID, or
// ErrNotFound when none is set.
func (s *Store) CurrentConversation(ctx context.Context, owner string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		SELECT conversation_id FROM current_conversation WHERE owner = $1`,
		owner,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading current conversation: %w", err)
	}
	return id, nil
}

// SetCurrentConversation points the owner's current conversation at id.
func (s *Store) SetCurrentConversation(ctx context.Context, owner, id string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO current_conversation (owner, conversation_id)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET conversation_id = EXCLUDED.conversation_id`,
		owner, id,
	)
	if err != nil {
		return fmt.Errorf("setting current conversation: %w", err)
	}
	return nil
}

// AddRiskAnnotation attaches a risk report to a conversation.
func (s *Store) AddRiskAnnotation(ctx context.Context, conversationID string, report tools.RiskReport) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO risk_annotations (id, conversation_id, risk_level, category, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), conversationID, report.RiskLevel, report.Category, report.Reason,
	)
	if err != nil {
		return fmt.Errorf("adding risk annotation: %w", err)
	}
	return nil
}

// RiskAnnotations lists a conversation's risk annotations, oldest first.
func (s *Store) RiskAnnotations(ctx context.Context, conversationID, owner string) ([]RiskAnnotation, error) {
	if _, err := s.Conversation(ctx, conversationID, owner); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, risk_level, category, reason, created_at
		FROM risk_annotations
		WHERE conversation_id = $1
		ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing risk annotations: %w", err)
	}
	defer rows.Close()

	var out []RiskAnnotation
	for rows.Next() {
		var a RiskAnnotation
		if err := rows.Scan(&a.ID, &a.ConversationID, &a.RiskLevel, &a.Category, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning risk annotation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveMemory stores one remembered user fact.
func (s *Store) SaveMemory(ctx context.Context, owner, fact string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO memories (id, owner, fact) VALUES ($1, $2, $3)`,
		uuid.NewString(), owner, fact,
	)
	if err != nil {
		return fmt.Errorf("saving memory: %w", err)
	}
	return nil
}

// Memories lists an owner's remembered facts, oldest first.
func (s *Store) Memories(ctx context.Context, owner string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT fact FROM memories WHERE owner = $1 ORDER BY created_at ASC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fact string
		if err := rows.Scan(&fact); err != nil {
			return nil, fmt.Errorf("scanning memory: %w", err)
		}
		out = append(out, fact)
	}
	return out, rows.Err()
}

func (s *Store) encodeParts(parts []llm.Part) (string, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return "", fmt.Errorf("encoding parts: %w", err)
	}
	if s.cipher == nil {
		return string(raw), nil
	}
	enc, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("encrypting parts: %w", err)
	}
	return enc, nil
}

// decodeParts decrypts and decodes stored parts. An undecryptable payload
// degrades to a single opaque text part instead of failing the read.
func (s *Store) decodeParts(raw, messageID string) ([]llm.Part, error) {
	if s.cipher != nil && s.cipher.IsEncrypted(raw) {
		plain, err := s.cipher.Decrypt(raw)
		if err != nil {
			if errors.Is(err, crypto.ErrDecryption) {
				s.logger.Warn("undecryptable message content, returning raw", "message_id", messageID)
				return []llm.Part{llm.TextPart(raw)}, nil
			}
			return nil, fmt.Errorf("decrypting parts for message %s: %w", messageID, err)
		}
		raw = plain
	}

	var parts []llm.Part
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, fmt.Errorf("decoding parts for message %s: %w", messageID, err)
	}
	return parts, nil
}

// compile-time interface checks
var (
	_ tools.MemoryStore = (*Store)(nil)
)

// Recorder adapts the store into a RiskRecorder bound to one conversation.
type Recorder struct {
	Store          *Store
	ConversationID string
}

// RecordRisk implements tools.RiskRecorder.
func (r Recorder) RecordRisk(ctx context.Context, report tools.RiskReport) error {
	return r.Store.AddRiskAnnotation(ctx, r.ConversationID, report)
}

var _ tools.RiskRecorder = Recorder{}
