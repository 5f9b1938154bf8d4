// Package services – MessageService
//
// This file implements MessageService, which owns the append-only message
// log. It validates roles and content, stores messages in arrival order and
// serves history windows ending at an optional cursor. It never inspects
// content beyond rejecting blank text.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the conversation identifier and window parameters.
package services

import (
	"context"
	"iter"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/observability"
	"github.com/tbourn/go-session-store/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService appends to and reads from the message log.
type MessageService struct {
	DB *gorm.DB

	// MaxLimit caps a positive history limit; 0 disables the cap.
	MaxLimit int

	// Now supplies message timestamps; defaults to UTC wall clock.
	Now func() time.Time
}

// NewMessageService constructs a MessageService with no history cap.
func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Append validates and stores one message at the end of the conversation.
// Content is stored exactly as given; it only has to contain something other
// than whitespace.
func (s *MessageService) Append(ctx context.Context, conversationID, role, content string, agent *string, metadata map[string]any) (*domain.Message, error) {
	tr := observability.Tracer("MessageService")
	ctx, span := tr.Start(ctx, "Append",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("message.role", role),
		),
	)
	defer span.End()

	if !domain.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	agent, err := optionalLabel(agent, maxAgentLen)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	m, err := repo.CreateMessage(ctx, s.DB, repo.NewMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Agent:          agent,
		Metadata:       metadata,
	}, now)
	if err != nil {
		err = storeErr(err, ErrConversationNotFound)
		span.RecordError(err)
		return nil, err
	}
	observability.MessageAppended(role)
	span.SetAttributes(attribute.String("message.id", m.ID), attribute.Int64("message.seq", m.Seq))
	return m, nil
}

// History returns messages of a conversation in ascending order.
//
// limit 0 returns the whole history (or everything before the cursor);
// a positive limit returns the most recent limit messages. before, when not
// empty, is the ID of a message in the same conversation: only messages
// strictly older than it are considered.
func (s *MessageService) History(ctx context.Context, conversationID string, limit int, before string) ([]domain.Message, error) {
	tr := observability.Tracer("MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("limit", limit),
			attribute.String("before", before),
		),
	)
	defer span.End()

	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		return nil, storeErr(err, ErrConversationNotFound)
	}

	var cursor *domain.Message
	if before != "" {
		m, err := repo.GetMessage(ctx, s.DB, before)
		if err != nil {
			return nil, storeErr(err, ErrMessageNotFound)
		}
		if m.ConversationID != conversationID {
			return nil, ErrMessageNotFound
		}
		cursor = m
	}

	out, err := repo.ListMessages(ctx, s.DB, conversationID, limit, cursor)
	if err != nil {
		return nil, storeErr(err, nil)
	}
	if out == nil {
		out = []domain.Message{}
	}
	span.SetAttributes(attribute.Int("messages.returned", len(out)))
	return out, nil
}

// Pages walks the history backwards, newest page first. Each page is in
// ascending order. The sequence stops after the oldest page or on the first
// error, which is yielded with a nil page. Ranging over it again restarts
// from the newest message.
func (s *MessageService) Pages(ctx context.Context, conversationID string, pageSize int) iter.Seq2[[]domain.Message, error] {
	return func(yield func([]domain.Message, error) bool) {
		if pageSize <= 0 {
			yield(nil, ErrInvalidPageSize)
			return
		}
		if s.MaxLimit > 0 && pageSize > s.MaxLimit {
			pageSize = s.MaxLimit
		}
		before := ""
		for {
			page, err := s.History(ctx, conversationID, pageSize, before)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}
			if len(page) < pageSize {
				return
			}
			before = page[0].ID
		}
	}
}

// Get returns a single message by ID.
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if err != nil {
		return nil, storeErr(err, ErrMessageNotFound)
	}
	return m, nil
}

// Stats returns the message count and highest sequence number of a
// conversation, for cache validators.
func (s *MessageService) Stats(ctx context.Context, conversationID string) (count, lastSeq int64, err error) {
	count, lastSeq, err = repo.MessagesStats(ctx, s.DB, conversationID)
	return count, lastSeq, storeErr(err, nil)
}
