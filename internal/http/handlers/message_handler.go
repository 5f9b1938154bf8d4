// Message HTTP handlers.
//
// This file exposes REST endpoints for the messages of a thread:
//   - POST /threads/{key}/turns     (record a user/assistant turn)
//   - POST /threads/{key}/messages  (append a single message)
//   - GET  /threads/{key}/messages  (recent history, cursor paginated, ETag)
//
// Turns accept an Idempotency-Key header that becomes the turn key: a
// retry with the same key returns the stored pair, or completes a partial
// turn, instead of storing the user message twice.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/http/middleware"
)

// HeaderInboundID carries the stored user message ID when a turn fails
// after its inbound half was persisted.
const HeaderInboundID = "X-Inbound-Message-ID"

//
// DTOs
//

// RecordTurnRequest is the JSON payload for a user/assistant exchange.
type RecordTurnRequest struct {
	// UserText is the inbound message. It must not be blank.
	UserText string `json:"user_text" binding:"required" example:"Show my open contracts"`
	// AssistantText is the reply. A blank reply leaves the turn partial.
	AssistantText string `json:"assistant_text" example:"You have 3 open contracts."`
	// Agent optionally labels which agent produced the reply.
	Agent *string `json:"agent,omitempty" example:"contracts"`
}

// RecordTurnResponse returns both stored halves of a turn.
type RecordTurnResponse struct {
	Thread   domain.ThreadHandle `json:"thread"`
	Inbound  *domain.Message     `json:"inbound"`
	Outbound *domain.Message     `json:"outbound"`
}

// AppendMessageRequest is the JSON payload for a single message.
type AppendMessageRequest struct {
	Role     string         `json:"role" binding:"required" example:"system"`
	Content  string         `json:"content" binding:"required" example:"Conversation handed over to a human agent."`
	Agent    *string        `json:"agent,omitempty" example:"supervisor"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HistoryResponse contains a window of messages in ascending order.
//
// NextCursor, when set, is passed back as `before` to fetch the window
// immediately older than this one.
type HistoryResponse struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

//
// Handlers
//

// RecordTurn godoc
// @ID          recordTurn
// @Summary     Record a turn
// @Description Stores the user message, then the assistant reply, on the thread (created on first contact).
// @Description If the reply cannot be stored the user message stays and its ID is returned in X-Inbound-Message-ID.
// @Description Supports safe retries via the Idempotency-Key header (same key → same pair).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Owner recorded on first contact"  example(user123)
// @Param       Idempotency-Key  header  string  false "Turn key for safe retries"        example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       key              path    string  true  "Thread key"
// @Param       body             body    handlers.RecordTurnRequest  true  "Turn payload"
//
// @Success     200  {object}  handlers.RecordTurnResponse
// @Header      200  {string}  Idempotency-Replayed  "true when the turn was answered from a previous request"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads/{key}/turns [post]
func (h *Handlers) RecordTurn(c *gin.Context) {
	ctx := c.Request.Context()

	var req RecordTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserText) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_text required")
		return
	}

	th, err := h.session.StartOrResume(ctx, c.Param("key"), callerID(c), nil)
	if err != nil {
		failErr(c, err)
		return
	}

	turnKey, _ := middleware.GetIdempotencyKey(c)
	in, out, err := h.session.RecordTurn(ctx, th, req.UserText, req.AssistantText, req.Agent, turnKey)
	if err != nil {
		if in != nil {
			c.Header(HeaderInboundID, in.ID)
		}
		failErr(c, err)
		return
	}

	if middleware.IsReplay(c) {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ok(c, http.StatusOK, RecordTurnResponse{Thread: th, Inbound: in, Outbound: out})
}

// AppendMessage godoc
// @ID          appendMessage
// @Summary     Append a message
// @Description Appends one message to an existing thread, for example a system notice.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       key   path  string  true  "Thread key"
// @Param       body  body  handlers.AppendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Thread not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /threads/{key}/messages [post]
func (h *Handlers) AppendMessage(c *gin.Context) {
	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "role and content required")
		return
	}
	th, found := h.resume(c)
	if !found {
		return
	}
	m, err := h.session.Append(c.Request.Context(), th, req.Role, req.Content, req.Agent, req.Metadata)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     Fetch thread history
// @Description Returns the most recent messages of a thread in chronological order.
// @Description Pass next_cursor back as `before` to page further into the past.
// @Tags        Messages
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       key            path    string  true  "Thread key"
// @Param       limit          query   int     false "Window size; 0 selects the server default"  minimum(0)
// @Param       before         query   string  false "Only messages older than this message ID"
//
// @Success     200  {object} handlers.HistoryResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Thread or cursor not found"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /threads/{key}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	before := strings.TrimSpace(c.Query("before"))

	th, found := h.resume(c)
	if !found {
		return
	}

	// ETag pre-check (best effort). Messages are append-only, so the count
	// and last sequence number identify the history state.
	if count, lastSeq, err := h.session.HistoryStats(ctx, th); err == nil {
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%s"`, th.ConversationID, count, lastSeq, limit, before)
		if notModified(c, etag) {
			return
		}
	}

	items, err := h.session.FetchHistory(ctx, th, limit, before)
	if err != nil {
		failErr(c, err)
		return
	}

	resp := HistoryResponse{Messages: items}
	if len(items) > 0 {
		// Fetch one message past the window to tell whether older ones exist.
		older, err := h.session.FetchHistory(ctx, th, 1, items[0].ID)
		if err != nil {
			failErr(c, err)
			return
		}
		if len(older) > 0 {
			resp.NextCursor = items[0].ID
		}
	}
	ok(c, http.StatusOK, resp)
}
