// Thread HTTP handlers.
//
// This file exposes REST endpoints for conversation threads:
//   - POST   /threads                        (start or resume)
//   - GET    /threads                        (list by user or channel, paginated, ETag)
//   - POST   /channels/{channel_id}/threads  (always start a new thread)
//   - GET    /threads/{key}                  (fetch the conversation record)
//   - PATCH  /threads/{key}/metadata         (merge metadata)
//   - DELETE /threads/{key}                  (delete with all messages)
//
// Handlers are transport-thin: they validate input, call the session
// service, and translate results into HTTP responses (including
// conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/services"
	"github.com/tbourn/go-session-store/internal/utils"
)

//
// Service contracts (context-aware)
//

// SessionService is the façade the handlers drive.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts. *services.SessionService
// satisfies it.
type SessionService interface {
	StartOrResume(ctx context.Context, key string, userID *string, channelID *int64) (domain.ThreadHandle, error)
	Resume(ctx context.Context, key string) (domain.ThreadHandle, error)
	Thread(ctx context.Context, h domain.ThreadHandle) (*domain.Conversation, error)
	NewThreadForChannel(ctx context.Context, channelID int64, userID *string) (domain.ThreadHandle, error)
	ListThreads(ctx context.Context, userID *string, channelID *int64, page, pageSize int) ([]domain.Conversation, int64, error)
	ThreadsStats(ctx context.Context, userID *string, channelID *int64) (int64, *time.Time, error)
	UpdateThreadMetadata(ctx context.Context, h domain.ThreadHandle, patch map[string]any) (*domain.Conversation, error)
	DeleteThread(ctx context.Context, h domain.ThreadHandle) error

	RecordTurn(ctx context.Context, h domain.ThreadHandle, userText, assistantText string, agent *string, turnKey string) (*domain.Message, *domain.Message, error)
	Append(ctx context.Context, h domain.ThreadHandle, role, content string, agent *string, metadata map[string]any) (*domain.Message, error)
	FetchHistory(ctx context.Context, h domain.ThreadHandle, limit int, before string) ([]domain.Message, error)
	HistoryStats(ctx context.Context, h domain.ThreadHandle) (int64, int64, error)

	Audit(ctx context.Context, rec services.AuditRecord) (*domain.AuditEntry, error)
	AuditAsync(ctx context.Context, rec services.AuditRecord) error
	QueryAudit(ctx context.Context, q services.AuditQuery) ([]domain.AuditEntry, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for threads, messages, audit and health.
type Handlers struct {
	session SessionService
	info    AppInfo
	checks  []HealthCheck
}

// New constructs and returns a Handlers instance bound to the session
// service. checks feed /health/detailed.
func New(session SessionService, info AppInfo, checks ...HealthCheck) *Handlers {
	return &Handlers{session: session, info: info, checks: checks}
}

// callerID extracts the caller identity from Gin context (set by upstream
// middleware) or the "X-User-ID" header. Identity is optional: nil means
// the caller did not say who they are.
func callerID(c *gin.Context) *string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return &s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return &h
		}
	}
	return nil
}

//
// DTOs
//

// StartThreadRequest is the JSON payload for starting or resuming a thread.
type StartThreadRequest struct {
	// ThreadKey resumes that thread, or creates it on first contact.
	// Empty starts a new thread under a generated key.
	ThreadKey string `json:"thread_key" example:"9f1c2e4b7a6d40c58e3b2a1f0d9c8b7a"`
	// UserID records the owner on creation. Defaults to X-User-ID.
	UserID *string `json:"user_id,omitempty" example:"user123"`
	// ChannelID records the messaging channel on creation.
	ChannelID *int64 `json:"channel_id,omitempty" example:"123456789"`
}

// NewChannelThreadRequest is the optional JSON payload for a channel thread.
type NewChannelThreadRequest struct {
	UserID *string `json:"user_id,omitempty" example:"user123"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListThreadsResponse wraps a page of threads and pagination information.
type ListThreadsResponse struct {
	Threads    []domain.Conversation `json:"threads"`
	Pagination Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// bindOptionalJSON binds a JSON body when one was sent. An empty body
// leaves dst untouched.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// parseChannelID parses a channel identity from a path or query value.
func parseChannelID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("channel_id must be an integer")
	}
	return &n, nil
}

// resume resolves the :key path parameter, writing the error response on
// failure.
func (h *Handlers) resume(c *gin.Context) (domain.ThreadHandle, bool) {
	th, err := h.session.Resume(c.Request.Context(), c.Param("key"))
	if err != nil {
		failErr(c, err)
		return domain.ThreadHandle{}, false
	}
	return th, true
}

//
// Handlers
//

// StartThread godoc
// @ID          startThread
// @Summary     Start or resume a thread
// @Description Resolves thread_key to its conversation, creating it on first contact.
// @Description An empty thread_key starts a new thread under a generated key.
// @Tags        Threads
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Caller identity"  example(user123)
// @Param       body       body    handlers.StartThreadRequest  false  "Thread key and identity"
//
// @Success     201  {object}  domain.ThreadHandle  "Created"
// @Success     200  {object}  domain.ThreadHandle  "Resumed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads [post]
func (h *Handlers) StartThread(c *gin.Context) {
	var req StartThreadRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := req.UserID
	if uid == nil {
		uid = callerID(c)
	}

	th, err := h.session.StartOrResume(c.Request.Context(), req.ThreadKey, uid, req.ChannelID)
	if err != nil {
		failErr(c, err)
		return
	}
	status := http.StatusOK
	if th.Created {
		status = http.StatusCreated
	}
	ok(c, status, th)
}

// ListThreads godoc
// @ID          listThreads
// @Summary     List threads (paginated)
// @Description Returns a page of threads owned by user_id or bound to channel_id, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Threads
// @Produce     json
//
// @Param       X-User-ID      header  string  false "Caller identity, used when user_id is absent"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       user_id        query   string  false "Owner identity"
// @Param       channel_id     query   int     false "Channel identity"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListThreadsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /threads [get]
func (h *Handlers) ListThreads(c *gin.Context) {
	ctx := c.Request.Context()

	channelID, err := parseChannelID(c.Query("channel_id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	var uid *string
	if v := strings.TrimSpace(c.Query("user_id")); v != "" {
		uid = &v
	} else if channelID == nil {
		uid = callerID(c)
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.session.ThreadsStats(ctx, uid, channelID); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"threads:%s:%s:%d:%d:%d:%d"`, deref(uid), derefInt(channelID), page, pageSize, count, ts)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.session.ListThreads(ctx, uid, channelID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}

	totalPages := utils.TotalPages(total, pageSize)
	ok(c, http.StatusOK, ListThreadsResponse{
		Threads: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// NewChannelThread godoc
// @ID          newChannelThread
// @Summary     Start a new thread for a channel
// @Description Always creates a fresh thread bound to channel_id under a generated key.
// @Tags        Threads
// @Accept      json
// @Produce     json
//
// @Param       channel_id  path  int     true  "Channel identity"  example(123456789)
// @Param       body        body  handlers.NewChannelThreadRequest  false  "Optional owner"
//
// @Success     201  {object}  domain.ThreadHandle
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /channels/{channel_id}/threads [post]
func (h *Handlers) NewChannelThread(c *gin.Context) {
	channelID, err := parseChannelID(c.Param("channel_id"))
	if err != nil || channelID == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "channel_id must be an integer")
		return
	}
	var req NewChannelThreadRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := req.UserID
	if uid == nil {
		uid = callerID(c)
	}

	th, err := h.session.NewThreadForChannel(c.Request.Context(), *channelID, uid)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, th)
}

// GetThread godoc
// @ID          getThread
// @Summary     Get a thread
// @Description Returns the conversation record addressed by thread key.
// @Tags        Threads
// @Produce     json
//
// @Param       key  path  string  true  "Thread key"
//
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Thread not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads/{key} [get]
func (h *Handlers) GetThread(c *gin.Context) {
	th, found := h.resume(c)
	if !found {
		return
	}
	conv, err := h.session.Thread(c.Request.Context(), th)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// UpdateThreadMetadata godoc
// @ID          updateThreadMetadata
// @Summary     Merge thread metadata
// @Description Merges the JSON object into the thread's metadata. Keys set to null are removed.
// @Tags        Threads
// @Accept      json
// @Produce     json
//
// @Param       key   path  string          true  "Thread key"
// @Param       body  body  object  true  "Metadata patch"
//
// @Success     200  {object}  domain.Conversation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Thread not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads/{key}/metadata [patch]
func (h *Handlers) UpdateThreadMetadata(c *gin.Context) {
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil || patch == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON object")
		return
	}
	th, found := h.resume(c)
	if !found {
		return
	}
	conv, err := h.session.UpdateThreadMetadata(c.Request.Context(), th, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// DeleteThread godoc
// @ID          deleteThread
// @Summary     Delete a thread
// @Description Deletes the conversation and all of its messages.
// @Tags        Threads
//
// @Param       key  path  string  true  "Thread key"
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Thread not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads/{key} [delete]
func (h *Handlers) DeleteThread(c *gin.Context) {
	th, found := h.resume(c)
	if !found {
		return
	}
	if err := h.session.DeleteThread(c.Request.Context(), th); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) string {
	if n == nil {
		return ""
	}
	return strconv.FormatInt(*n, 10)
}
