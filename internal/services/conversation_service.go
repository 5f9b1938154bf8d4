// Package services – ConversationService
//
// This file implements ConversationService, which owns conversation records
// and the mapping from external thread keys to internal identity. Its core
// operation, ResolveOrCreate, must yield exactly one record per thread key
// even when many callers make first contact at once: same-key calls inside
// one process are collapsed with singleflight, and the unique index on
// thread_key arbitrates between processes.
package services

import (
	"context"
	"maps"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/observability"
	"github.com/tbourn/go-session-store/internal/repo"
	"github.com/tbourn/go-session-store/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConversationRepo defines the repository contract required by
// ConversationService. GormConversationRepo is the production implementation.
type ConversationRepo interface {
	// Create inserts a conversation; ErrDuplicate on a taken thread key.
	Create(ctx context.Context, db *gorm.DB, c *domain.Conversation) error

	// InsertIfAbsent inserts unless the thread key exists; reports whether it did.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, c *domain.Conversation) (bool, error)

	// Get fetches by internal ID.
	Get(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error)

	// GetByThreadKey fetches by external key.
	GetByThreadKey(ctx context.Context, db *gorm.DB, key string) (*domain.Conversation, error)

	// Touch sets updated_at.
	Touch(ctx context.Context, db *gorm.DB, id string, now time.Time) error

	// UpdateMetadata merges patch into metadata and sets updated_at.
	UpdateMetadata(ctx context.Context, db *gorm.DB, id string, patch map[string]any, now time.Time) (*domain.Conversation, error)

	// Delete removes the conversation and everything it owns.
	Delete(ctx context.Context, db *gorm.DB, id string) error

	// List returns a page of conversations, newest first.
	List(ctx context.Context, db *gorm.DB, f repo.ConversationFilter, offset, limit int) ([]domain.Conversation, error)

	// Count returns the number of conversations matching f.
	Count(ctx context.Context, db *gorm.DB, f repo.ConversationFilter) (int64, error)
}

// GormConversationRepo implements ConversationRepo with the repo package.
type GormConversationRepo struct{}

func (GormConversationRepo) Create(ctx context.Context, db *gorm.DB, c *domain.Conversation) error {
	return repo.CreateConversation(ctx, db, c)
}

func (GormConversationRepo) InsertIfAbsent(ctx context.Context, db *gorm.DB, c *domain.Conversation) (bool, error) {
	return repo.InsertConversationIfAbsent(ctx, db, c)
}

func (GormConversationRepo) Get(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

func (GormConversationRepo) GetByThreadKey(ctx context.Context, db *gorm.DB, key string) (*domain.Conversation, error) {
	return repo.GetConversationByThreadKey(ctx, db, key)
}

func (GormConversationRepo) Touch(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return repo.TouchConversation(ctx, db, id, now)
}

func (GormConversationRepo) UpdateMetadata(ctx context.Context, db *gorm.DB, id string, patch map[string]any, now time.Time) (*domain.Conversation, error) {
	return repo.UpdateConversationMetadata(ctx, db, id, patch, now)
}

func (GormConversationRepo) Delete(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteConversation(ctx, db, id)
}

func (GormConversationRepo) List(ctx context.Context, db *gorm.DB, f repo.ConversationFilter, offset, limit int) ([]domain.Conversation, error) {
	return repo.ListConversations(ctx, db, f, offset, limit)
}

func (GormConversationRepo) Count(ctx context.Context, db *gorm.DB, f repo.ConversationFilter) (int64, error) {
	return repo.CountConversations(ctx, db, f)
}

// ConversationService provides conversation-level operations: resolving
// thread keys, touching, metadata updates, deletion and listings.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo
	// Now supplies timestamps; defaults to UTC wall clock.
	Now func() time.Time

	resolving singleflight.Group
}

// NewConversationService constructs a ConversationService backed by r.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	if r == nil {
		r = GormConversationRepo{}
	}
	return &ConversationService{
		DB:   db,
		Repo: r,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *ConversationService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

type resolved struct {
	conv    *domain.Conversation
	created bool
}

// ResolveOrCreate returns the conversation for key, creating it with the
// given identity when none exists. An existing conversation is returned
// unchanged; userID and channelID are then ignored.
func (s *ConversationService) ResolveOrCreate(ctx context.Context, key string, userID *string, channelID *int64) (*domain.Conversation, bool, error) {
	tr := observability.Tracer("ConversationService")
	ctx, span := tr.Start(ctx, "ResolveOrCreate",
		trace.WithAttributes(attribute.String("thread.key", key)),
	)
	defer span.End()

	key, err := NormalizeThreadKey(key)
	if err != nil {
		return nil, false, err
	}
	if userID, err = optionalUserID(userID); err != nil {
		return nil, false, err
	}

	// Only the caller whose closure runs may report created=true; callers
	// that joined an in-flight call observe an existing conversation.
	leader := false
	v, err, _ := s.resolving.Do(key, func() (any, error) {
		leader = true
		return s.resolveOrCreate(ctx, key, userID, channelID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	res := v.(resolved)
	conv := *res.conv
	conv.Metadata = maps.Clone(res.conv.Metadata)
	created := leader && res.created
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Bool("conversation.created", created),
	)
	return &conv, created, nil
}

func (s *ConversationService) resolveOrCreate(ctx context.Context, key string, userID *string, channelID *int64) (resolved, error) {
	existing, err := s.Repo.GetByThreadKey(ctx, s.DB, key)
	if err == nil {
		return resolved{conv: existing}, nil
	}
	if !repo.IsNotFound(err) {
		return resolved{}, storeErr(err, nil)
	}

	now := s.now()
	c := &domain.Conversation{
		ID:        NewID(),
		ThreadKey: key,
		UserID:    userID,
		ChannelID: channelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.Repo.InsertIfAbsent(ctx, s.DB, c)
	if err != nil {
		return resolved{}, storeErr(err, nil)
	}
	if inserted {
		observability.ConversationsCreated.Inc()
		return resolved{conv: c, created: true}, nil
	}

	// Another writer inserted the key between our read and our insert.
	observability.ResolveConflicts.Inc()
	winner, err := s.Repo.GetByThreadKey(ctx, s.DB, key)
	if err != nil {
		return resolved{}, storeErr(err, nil)
	}
	return resolved{conv: winner}, nil
}

// Create inserts a conversation with a caller-chosen key and fails with
// ErrThreadKeyTaken if the key is in use. An empty key gets a generated one.
func (s *ConversationService) Create(ctx context.Context, key string, userID *string, channelID *int64) (*domain.Conversation, error) {
	tr := observability.Tracer("ConversationService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	if key == "" {
		key = NewThreadKey()
	}
	key, err := NormalizeThreadKey(key)
	if err != nil {
		return nil, err
	}
	if userID, err = optionalUserID(userID); err != nil {
		return nil, err
	}
	now := s.now()
	c := &domain.Conversation{
		ID:        NewID(),
		ThreadKey: key,
		UserID:    userID,
		ChannelID: channelID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, s.DB, c); err != nil {
		if repo.IsDuplicate(err) {
			return nil, ErrThreadKeyTaken
		}
		return nil, storeErr(err, nil)
	}
	observability.ConversationsCreated.Inc()
	return c, nil
}

// Get returns the conversation with the given internal ID.
func (s *ConversationService) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := s.Repo.Get(ctx, s.DB, id)
	if err != nil {
		return nil, storeErr(err, ErrConversationNotFound)
	}
	return c, nil
}

// GetByThreadKey returns the conversation addressed by key.
func (s *ConversationService) GetByThreadKey(ctx context.Context, key string) (*domain.Conversation, error) {
	key, err := NormalizeThreadKey(key)
	if err != nil {
		return nil, err
	}
	c, err := s.Repo.GetByThreadKey(ctx, s.DB, key)
	if err != nil {
		return nil, storeErr(err, ErrConversationNotFound)
	}
	return c, nil
}

// Touch records activity on a conversation by advancing updated_at.
func (s *ConversationService) Touch(ctx context.Context, id string) error {
	return storeErr(s.Repo.Touch(ctx, s.DB, id, s.now()), ErrConversationNotFound)
}

// UpdateMetadata merges patch into the conversation metadata. Keys mapped
// to nil are removed.
func (s *ConversationService) UpdateMetadata(ctx context.Context, id string, patch map[string]any) (*domain.Conversation, error) {
	tr := observability.Tracer("ConversationService")
	ctx, span := tr.Start(ctx, "UpdateMetadata",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	c, err := s.Repo.UpdateMetadata(ctx, s.DB, id, patch, s.now())
	if err != nil {
		return nil, storeErr(err, ErrConversationNotFound)
	}
	return c, nil
}

// Delete removes a conversation together with its messages and turn
// records. Either all of them are removed or none are.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	tr := observability.Tracer("ConversationService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("conversation.id", id)),
	)
	defer span.End()

	return storeErr(s.Repo.Delete(ctx, s.DB, id), ErrConversationNotFound)
}

// FindByUser returns every conversation owned by userID, newest first.
func (s *ConversationService) FindByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if utf8.RuneCountInString(userID) > maxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	out, err := s.Repo.List(ctx, s.DB, repo.ConversationFilter{UserID: &userID}, 0, 0)
	return out, storeErr(err, nil)
}

// FindByChannel returns every conversation bound to channelID, newest first.
func (s *ConversationService) FindByChannel(ctx context.Context, channelID int64) ([]domain.Conversation, error) {
	out, err := s.Repo.List(ctx, s.DB, repo.ConversationFilter{ChannelID: &channelID}, 0, 0)
	return out, storeErr(err, nil)
}

// ListPage returns one page of conversations matching f plus the total
// number of matches. Invalid page values fall back to page 1 of 20.
func (s *ConversationService) ListPage(ctx context.Context, f repo.ConversationFilter, page, pageSize int) ([]domain.Conversation, int64, error) {
	tr := observability.Tracer("ConversationService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if f.UserID == nil && f.ChannelID == nil {
		return nil, 0, ErrMissingIdentity
	}
	if f.UserID != nil && utf8.RuneCountInString(*f.UserID) > maxUserIDLen {
		return nil, 0, ErrUserIDTooLong
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.Offset(page, pageSize)

	total, err := s.Repo.Count(ctx, s.DB, f)
	if err != nil {
		return nil, 0, storeErr(err, nil)
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}
	items, err := s.Repo.List(ctx, s.DB, f, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr(err, nil)
	}
	return items, total, nil
}
