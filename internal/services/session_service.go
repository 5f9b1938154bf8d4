// Package services – SessionService
//
// This file implements SessionService, the façade collaborators use to work
// with conversations. It composes the conversation, message and audit
// services: start or resume a thread, record a user/assistant turn, append
// single messages, fetch history, and write audit entries.
//
// A turn is two separate appends, inbound first. If the outbound append
// fails the inbound stays stored and is returned with the error; a partial
// turn is a valid state. When the caller supplies a turn key, a turn record
// lets a retry replay a finished turn or finish a partial one without
// storing the inbound twice.
//
// Audit failures are logged and counted here and never turned into failures
// of the operation being audited.
package services

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/observability"
	"github.com/tbourn/go-session-store/internal/repo"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionOptions tunes a SessionService. Zero values select defaults.
type SessionOptions struct {
	// HistoryDefaultLimit is used by FetchHistory when the caller passes 0.
	HistoryDefaultLimit int
	// HistoryMaxLimit caps any history window.
	HistoryMaxLimit int
	// TurnTTL is how long a turn key stays replayable.
	TurnTTL time.Duration
	// AuditTimeout bounds each background audit write.
	AuditTimeout time.Duration
}

// SessionService is the session façade.
type SessionService struct {
	DB            *gorm.DB
	Conversations *ConversationService
	Messages      *MessageService
	Audits        *AuditService
	Log           zerolog.Logger

	HistoryDefaultLimit int
	TurnTTL             time.Duration
	AuditTimeout        time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewSessionService wires a façade over db with the GORM-backed services.
func NewSessionService(db *gorm.DB, log zerolog.Logger, opts SessionOptions) *SessionService {
	if opts.HistoryDefaultLimit <= 0 {
		opts.HistoryDefaultLimit = 20
	}
	if opts.TurnTTL <= 0 {
		opts.TurnTTL = 24 * time.Hour
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 5 * time.Second
	}
	msgs := NewMessageService(db)
	msgs.MaxLimit = opts.HistoryMaxLimit
	return &SessionService{
		DB:                  db,
		Conversations:       NewConversationService(db, GormConversationRepo{}),
		Messages:            msgs,
		Audits:              NewAuditService(db),
		Log:                 log,
		HistoryDefaultLimit: opts.HistoryDefaultLimit,
		TurnTTL:             opts.TurnTTL,
		AuditTimeout:        opts.AuditTimeout,
	}
}

func handleFor(c *domain.Conversation, created bool) domain.ThreadHandle {
	return domain.ThreadHandle{ConversationID: c.ID, ThreadKey: c.ThreadKey, Created: created}
}

// StartOrResume returns a handle for the thread addressed by key, creating
// the conversation on first contact. A blank key starts a new thread under
// a generated key.
func (s *SessionService) StartOrResume(ctx context.Context, key string, userID *string, channelID *int64) (domain.ThreadHandle, error) {
	if strings.TrimSpace(key) == "" {
		key = NewThreadKey()
	}
	c, created, err := s.Conversations.ResolveOrCreate(ctx, key, userID, channelID)
	if err != nil {
		return domain.ThreadHandle{}, err
	}
	if created {
		s.Log.Debug().Str("conversation_id", c.ID).Str("thread_key", c.ThreadKey).Msg("conversation created")
	}
	return handleFor(c, created), nil
}

// Resume returns a handle for an existing thread without creating one.
func (s *SessionService) Resume(ctx context.Context, key string) (domain.ThreadHandle, error) {
	c, err := s.Conversations.GetByThreadKey(ctx, key)
	if err != nil {
		return domain.ThreadHandle{}, err
	}
	return handleFor(c, false), nil
}

// Thread returns the conversation record behind a handle.
func (s *SessionService) Thread(ctx context.Context, h domain.ThreadHandle) (*domain.Conversation, error) {
	return s.Conversations.Get(ctx, h.ConversationID)
}

// NewThreadForChannel always starts a fresh thread bound to channelID, the
// equivalent of a chat bot's "/new" command.
func (s *SessionService) NewThreadForChannel(ctx context.Context, channelID int64, userID *string) (domain.ThreadHandle, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		c, err := s.Conversations.Create(ctx, "", userID, &channelID)
		if err == nil {
			return handleFor(c, true), nil
		}
		if !errors.Is(err, ErrThreadKeyTaken) {
			return domain.ThreadHandle{}, err
		}
		lastErr = err
	}
	return domain.ThreadHandle{}, lastErr
}

// RecordTurn stores a user message followed by the assistant reply and
// returns both. See the file comment for partial-turn and turn-key rules.
func (s *SessionService) RecordTurn(ctx context.Context, h domain.ThreadHandle, userText, assistantText string, agent *string, turnKey string) (*domain.Message, *domain.Message, error) {
	tr := observability.Tracer("SessionService")
	ctx, span := tr.Start(ctx, "RecordTurn",
		trace.WithAttributes(
			attribute.String("conversation.id", h.ConversationID),
			attribute.Bool("turn.keyed", turnKey != ""),
		),
	)
	defer span.End()

	turnKey = strings.TrimSpace(turnKey)
	if utf8.RuneCountInString(turnKey) > MaxThreadKeyLen {
		return nil, nil, ErrInvalidTurnKey
	}

	if turnKey != "" {
		rec, err := repo.GetTurn(ctx, s.DB, h.ConversationID, turnKey, time.Now().UTC())
		switch {
		case err == nil:
			span.SetAttributes(attribute.Bool("turn.replayed", true))
			return s.resumeTurn(ctx, h, rec, assistantText, agent)
		case !repo.IsNotFound(err):
			return nil, nil, storeErr(err, nil)
		}
	}

	in, err := s.Messages.Append(ctx, h.ConversationID, domain.RoleUser, userText, nil, nil)
	if err != nil {
		return nil, nil, err
	}

	var turn *domain.Turn
	if turnKey != "" {
		turn, err = repo.CreateTurn(ctx, s.DB, h.ConversationID, turnKey, in.ID, s.TurnTTL, time.Now().UTC())
		if err != nil {
			// Without a record, a retry under this key stores a new inbound.
			s.Log.Warn().Err(err).
				Str("conversation_id", h.ConversationID).
				Str("turn_key", turnKey).
				Msg("turn record not stored")
			turn = nil
		}
	}

	if err := s.Conversations.Touch(ctx, h.ConversationID); err != nil {
		s.Log.Warn().Err(err).Str("conversation_id", h.ConversationID).Msg("touch after inbound failed")
	}

	out, err := s.Messages.Append(ctx, h.ConversationID, domain.RoleAssistant, assistantText, agent, nil)
	if err != nil {
		s.partialTurn(h, in, err)
		span.RecordError(err)
		return in, nil, err
	}
	if turn != nil {
		s.completeTurn(ctx, turn.ID, out.ID)
	}
	return in, out, nil
}

// resumeTurn answers a keyed turn that already has a record: a complete
// turn is replayed as stored, a partial one gets only its outbound half.
func (s *SessionService) resumeTurn(ctx context.Context, h domain.ThreadHandle, rec *domain.Turn, assistantText string, agent *string) (*domain.Message, *domain.Message, error) {
	observability.TurnReplays.Inc()

	in, err := s.Messages.Get(ctx, rec.InboundID)
	if err != nil {
		return nil, nil, err
	}
	if rec.Complete() {
		out, err := s.Messages.Get(ctx, *rec.OutboundID)
		if err != nil {
			return in, nil, err
		}
		return in, out, nil
	}

	out, err := s.Messages.Append(ctx, h.ConversationID, domain.RoleAssistant, assistantText, agent, nil)
	if err != nil {
		s.partialTurn(h, in, err)
		return in, nil, err
	}
	s.completeTurn(ctx, rec.ID, out.ID)
	return in, out, nil
}

func (s *SessionService) partialTurn(h domain.ThreadHandle, in *domain.Message, err error) {
	observability.PartialTurns.Inc()
	s.Log.Warn().Err(err).
		Str("conversation_id", h.ConversationID).
		Str("inbound_id", in.ID).
		Msg("turn left partial: outbound not stored")
}

func (s *SessionService) completeTurn(ctx context.Context, turnID, outboundID string) {
	if err := repo.CompleteTurn(ctx, s.DB, turnID, outboundID); err != nil {
		s.Log.Warn().Err(err).Str("turn_id", turnID).Msg("turn record not completed")
	}
}

// Append stores a single message, for example a system notice.
func (s *SessionService) Append(ctx context.Context, h domain.ThreadHandle, role, content string, agent *string, metadata map[string]any) (*domain.Message, error) {
	return s.Messages.Append(ctx, h.ConversationID, role, content, agent, metadata)
}

// FetchHistory returns the most recent messages of a thread in ascending
// order. A limit of 0 selects HistoryDefaultLimit.
func (s *SessionService) FetchHistory(ctx context.Context, h domain.ThreadHandle, limit int, before string) ([]domain.Message, error) {
	if limit == 0 {
		limit = s.HistoryDefaultLimit
	}
	return s.Messages.History(ctx, h.ConversationID, limit, before)
}

// HistoryStats returns the message count and last sequence number of a
// thread.
func (s *SessionService) HistoryStats(ctx context.Context, h domain.ThreadHandle) (int64, int64, error) {
	return s.Messages.Stats(ctx, h.ConversationID)
}

// ListThreads returns a page of threads owned by userID or bound to
// channelID. At least one of them is required.
func (s *SessionService) ListThreads(ctx context.Context, userID *string, channelID *int64, page, pageSize int) ([]domain.Conversation, int64, error) {
	uid, err := optionalUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	return s.Conversations.ListPage(ctx, repo.ConversationFilter{UserID: uid, ChannelID: channelID}, page, pageSize)
}

// ThreadsStats returns the count and latest update time of the threads a
// ListThreads call with the same identity would page over.
func (s *SessionService) ThreadsStats(ctx context.Context, userID *string, channelID *int64) (int64, *time.Time, error) {
	uid, err := optionalUserID(userID)
	if err != nil {
		return 0, nil, err
	}
	f := repo.ConversationFilter{UserID: uid, ChannelID: channelID}
	if f.UserID == nil && f.ChannelID == nil {
		return 0, nil, ErrMissingIdentity
	}
	n, at, err := repo.ConversationsStats(ctx, s.DB, f)
	return n, at, storeErr(err, nil)
}

// UpdateThreadMetadata merges patch into the thread's metadata.
func (s *SessionService) UpdateThreadMetadata(ctx context.Context, h domain.ThreadHandle, patch map[string]any) (*domain.Conversation, error) {
	return s.Conversations.UpdateMetadata(ctx, h.ConversationID, patch)
}

// DeleteThread removes a thread with all of its messages.
func (s *SessionService) DeleteThread(ctx context.Context, h domain.ThreadHandle) error {
	return s.Conversations.Delete(ctx, h.ConversationID)
}

// Audit records an entry. A failure is logged, counted and returned, but
// the façade never fails any other operation because of it.
func (s *SessionService) Audit(ctx context.Context, rec AuditRecord) (*domain.AuditEntry, error) {
	e, err := s.Audits.Record(ctx, rec)
	if err != nil {
		observability.AuditFailures.Inc()
		s.Log.Error().Err(err).Str("action", rec.Action).Msg("audit entry not recorded")
		return nil, err
	}
	return e, nil
}

// AuditAsync validates rec and records it in the background. Invalid records
// are rejected before anything is queued, so the returned error is either an
// ErrInvalidArgument from AuditService.Validate or ErrSessionClosed once Close
// has been called. The write itself is detached from ctx cancellation but
// bounded by AuditTimeout; its failures are logged and counted only.
func (s *SessionService) AuditAsync(ctx context.Context, rec AuditRecord) error {
	rec, err := s.Audits.Validate(rec)
	if err != nil {
		observability.AuditFailures.Inc()
		s.Log.Error().Err(err).Str("action", rec.Action).Msg("audit entry rejected")
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		observability.AuditFailures.Inc()
		s.Log.Error().Str("action", rec.Action).Msg("audit entry dropped: session service closed")
		return ErrSessionClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	rec.Details = maps.Clone(rec.Details)
	go func() {
		defer s.inflight.Done()
		actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.AuditTimeout)
		defer cancel()
		_, _ = s.Audit(actx, rec)
	}()
	return nil
}

// QueryAudit returns ledger entries, newest first.
func (s *SessionService) QueryAudit(ctx context.Context, q AuditQuery) ([]domain.AuditEntry, error) {
	return s.Audits.Query(ctx, q)
}

// PurgeExpiredTurns removes turn records past their TTL.
func (s *SessionService) PurgeExpiredTurns(ctx context.Context) (int64, error) {
	n, err := repo.PurgeExpiredTurns(ctx, s.DB, time.Now().UTC())
	return n, storeErr(err, nil)
}

// Close stops accepting background audits and waits for in-flight ones, or
// for ctx to end.
func (s *SessionService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
