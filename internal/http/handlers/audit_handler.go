// Audit HTTP handlers.
//
// This file exposes the audit ledger:
//   - POST /audit  (append an entry, in the background unless ?wait=true)
//   - GET  /audit  (query entries, newest first)
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/services"
)

// RecordAuditRequest is the JSON payload for an audit entry.
type RecordAuditRequest struct {
	UserID  *string        `json:"user_id,omitempty" example:"user123"`
	Action  string         `json:"action" binding:"required" example:"contract.create"`
	Agent   *string        `json:"agent,omitempty" example:"contracts"`
	Details map[string]any `json:"details,omitempty"`
	// Success defaults to true.
	Success *bool `json:"success,omitempty" example:"true"`
}

// AcceptedResponse acknowledges a background write.
type AcceptedResponse struct {
	Status string `json:"status" example:"accepted"`
}

// AuditEntriesResponse lists ledger entries, newest first.
type AuditEntriesResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// RecordAudit godoc
// @ID          recordAudit
// @Summary     Record an audit entry
// @Description Appends an entry to the audit ledger. By default the write happens in the
// @Description background and the call returns 202; with wait=true it returns the stored entry.
// @Description Labels and user_id are validated before either mode writes, so both return 400 on bad input.
// @Tags        Audit
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "Caller identity, used when user_id is absent"
// @Param       wait       query   bool    false "Write synchronously"  default(false)
// @Param       body       body    handlers.RecordAuditRequest  true  "Audit entry"
//
// @Success     201  {object}  domain.AuditEntry
// @Success     202  {object}  handlers.AcceptedResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable or shutting down"
// @Router      /audit [post]
func (h *Handlers) RecordAudit(c *gin.Context) {
	var req RecordAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Action) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action required")
		return
	}
	wait := false
	if raw := c.Query("wait"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "wait must be a boolean")
			return
		}
		wait = b
	}

	rec := services.AuditRecord{
		UserID:  req.UserID,
		Action:  req.Action,
		Agent:   req.Agent,
		Details: req.Details,
		Success: req.Success,
	}
	if rec.UserID == nil {
		rec.UserID = callerID(c)
	}

	if !wait {
		if err := h.session.AuditAsync(c.Request.Context(), rec); err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
		return
	}
	e, err := h.session.Audit(c.Request.Context(), rec)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, e)
}

// QueryAudit godoc
// @ID          queryAudit
// @Summary     Query the audit ledger
// @Description Returns entries matching every given filter, newest first.
// @Description from is inclusive, to is exclusive (RFC 3339).
// @Tags        Audit
// @Produce     json
//
// @Param       user_id  query  string  false "Actor"
// @Param       action   query  string  false "Action label"
// @Param       agent    query  string  false "Agent label"
// @Param       success  query  bool    false "Outcome"
// @Param       from     query  string  false "Earliest timestamp (inclusive)"  format(date-time)
// @Param       to       query  string  false "Latest timestamp (exclusive)"    format(date-time)
// @Param       limit    query  int     false "Max entries"  minimum(0) maximum(1000) default(100)
//
// @Success     200  {object}  handlers.AuditEntriesResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /audit [get]
func (h *Handlers) QueryAudit(c *gin.Context) {
	q, err := parseAuditQuery(c)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	entries, err := h.session.QueryAudit(c.Request.Context(), q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AuditEntriesResponse{Entries: entries})
}

func parseAuditQuery(c *gin.Context) (services.AuditQuery, error) {
	var q services.AuditQuery
	optional := func(name string) *string {
		if v := strings.TrimSpace(c.Query(name)); v != "" {
			return &v
		}
		return nil
	}
	q.UserID = optional("user_id")
	q.Action = optional("action")
	q.Agent = optional("agent")

	if v := optional("success"); v != nil {
		b, err := strconv.ParseBool(*v)
		if err != nil {
			return q, errors.New("success must be a boolean")
		}
		q.Success = &b
	}
	for _, f := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := optional(f.name)
		if v == nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, *v)
		if err != nil {
			return q, errors.New(f.name + " must be an RFC 3339 timestamp")
		}
		ts = ts.UTC()
		*f.dst = &ts
	}
	if v := optional("limit"); v != nil {
		n, err := strconv.Atoi(*v)
		if err != nil || n < 0 {
			return q, errors.New("limit must be a non-negative integer")
		}
		q.Limit = n
	}
	return q, nil
}
