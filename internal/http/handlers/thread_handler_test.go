package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-session-store/internal/domain"
	"github.com/tbourn/go-session-store/internal/services"
)

var generatedKey = regexp.MustCompile(`^[0-9a-f]{32}$`)

// stubSession fails every call it does not override.
type stubSession struct {
	SessionService
	resume func(context.Context, string) (domain.ThreadHandle, error)
}

func (s stubSession) Resume(ctx context.Context, key string) (domain.ThreadHandle, error) {
	return s.resume(ctx, key)
}

func Test_callerID_and_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest(http.MethodGet, "/threads?page=0&page_size=1000", nil)
	if got := callerID(c); got != nil {
		t.Fatalf("callerID without identity = %q; want nil", *got)
	}
	c.Request.Header.Set("X-User-ID", "  hdr  ")
	if got := callerID(c); got == nil || *got != "hdr" {
		t.Fatalf("callerID from header = %v", got)
	}
	c.Set("userID", "ctx")
	if got := callerID(c); got == nil || *got != "ctx" {
		t.Fatalf("callerID from context = %v", got)
	}

	page, size := clampPagination(c)
	if page != 1 || size != 100 {
		t.Fatalf("clampPagination = (%d, %d); want (1, 100)", page, size)
	}
}

func TestStartThread_CreateThenResume(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))

	w := do(t, r, http.MethodPost, "/threads", nil, map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("first start status = %d; body=%s", w.Code, w.Body.String())
	}
	first := decode[domain.ThreadHandle](t, w)
	if !first.Created || !generatedKey.MatchString(first.ThreadKey) {
		t.Fatalf("unexpected handle: %+v", first)
	}

	w = do(t, r, http.MethodPost, "/threads", StartThreadRequest{ThreadKey: first.ThreadKey}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume status = %d; body=%s", w.Code, w.Body.String())
	}
	again := decode[domain.ThreadHandle](t, w)
	if again.Created || again.ConversationID != first.ConversationID {
		t.Fatalf("resume returned %+v; want existing %s", again, first.ConversationID)
	}

	// Caller-chosen keys are created on first contact.
	w = do(t, r, http.MethodPost, "/threads", StartThreadRequest{ThreadKey: "tg-chat-42", ChannelID: func() *int64 { n := int64(42); return &n }()}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("named start status = %d", w.Code)
	}
	if got := decode[domain.ThreadHandle](t, w); got.ThreadKey != "tg-chat-42" {
		t.Fatalf("thread key = %q", got.ThreadKey)
	}
}

func TestStartThread_BadInput(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))

	expectError(t, do(t, r, http.MethodPost, "/threads", "{not json", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(t, r, http.MethodPost, "/threads", StartThreadRequest{ThreadKey: "has space"}, nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestListThreads_PaginationAndETag(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))
	hdr := map[string]string{"X-User-ID": "u1"}

	for i := 0; i < 3; i++ {
		if w := do(t, r, http.MethodPost, "/threads", nil, hdr); w.Code != http.StatusCreated {
			t.Fatalf("create %d: status %d", i, w.Code)
		}
	}
	// Another owner's thread must not show up.
	do(t, r, http.MethodPost, "/threads", StartThreadRequest{UserID: strp("u2")}, nil)

	w := do(t, r, http.MethodGet, "/threads?page=1&page_size=2", nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; body=%s", w.Code, w.Body.String())
	}
	resp := decode[ListThreadsResponse](t, w)
	if len(resp.Threads) != 2 || resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	for _, th := range resp.Threads {
		if th.UserID == nil || *th.UserID != "u1" {
			t.Fatalf("thread %s owned by %v", th.ID, th.UserID)
		}
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	w = do(t, r, http.MethodGet, "/threads?page=1&page_size=2", nil, map[string]string{"X-User-ID": "u1", "If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d; want 304", w.Code)
	}

	do(t, r, http.MethodPost, "/threads", nil, hdr)
	w = do(t, r, http.MethodGet, "/threads?page=1&page_size=2", nil, map[string]string{"X-User-ID": "u1", "If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change after a new thread (status %d)", w.Code)
	}

	w = do(t, r, http.MethodGet, "/threads?user_id=u2", nil, nil)
	if got := decode[ListThreadsResponse](t, w); got.Pagination.Total != 1 {
		t.Fatalf("u2 total = %d; want 1", got.Pagination.Total)
	}
}

func TestListThreads_BadInput(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))
	expectError(t, do(t, r, http.MethodGet, "/threads", nil, nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(t, r, http.MethodGet, "/threads?channel_id=abc", nil, nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestNewChannelThread_AlwaysNew(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))

	keys := map[string]bool{}
	for i := 0; i < 2; i++ {
		w := do(t, r, http.MethodPost, "/channels/42/threads", nil, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d; body=%s", w.Code, w.Body.String())
		}
		keys[decode[domain.ThreadHandle](t, w).ThreadKey] = true
	}
	if len(keys) != 2 {
		t.Fatalf("expected two distinct thread keys, got %v", keys)
	}

	w := do(t, r, http.MethodGet, "/threads?channel_id=42", nil, nil)
	resp := decode[ListThreadsResponse](t, w)
	if resp.Pagination.Total != 2 {
		t.Fatalf("channel threads = %d; want 2", resp.Pagination.Total)
	}
	for _, th := range resp.Threads {
		if th.ChannelID == nil || *th.ChannelID != 42 {
			t.Fatalf("thread %s channel = %v", th.ID, th.ChannelID)
		}
	}

	expectError(t, do(t, r, http.MethodPost, "/channels/x/threads", nil, nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestGetUpdateDeleteThread(t *testing.T) {
	r := newTestRouter(New(newTestSession(t), AppInfo{}))
	do(t, r, http.MethodPost, "/threads", StartThreadRequest{ThreadKey: "k-1"}, nil)

	w := do(t, r, http.MethodGet, "/threads/k-1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if got := decode[domain.Conversation](t, w); got.ThreadKey != "k-1" {
		t.Fatalf("thread key = %q", got.ThreadKey)
	}
	expectError(t, do(t, r, http.MethodGet, "/threads/missing", nil, nil), http.StatusNotFound, ErrCodeNotFound)

	w = do(t, r, http.MethodPatch, "/threads/k-1/metadata", map[string]any{"lang": "en", "step": 1}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d; body=%s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodPatch, "/threads/k-1/metadata", `{"step": null}`, nil)
	got := decode[domain.Conversation](t, w)
	if got.Metadata["lang"] != "en" {
		t.Fatalf("metadata lost lang: %v", got.Metadata)
	}
	if _, present := got.Metadata["step"]; present {
		t.Fatalf("null value did not remove key: %v", got.Metadata)
	}
	expectError(t, do(t, r, http.MethodPatch, "/threads/k-1/metadata", `[1,2]`, nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(t, r, http.MethodPatch, "/threads/missing/metadata", `{"a":1}`, nil), http.StatusNotFound, ErrCodeNotFound)

	if w := do(t, r, http.MethodDelete, "/threads/k-1", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	expectError(t, do(t, r, http.MethodGet, "/threads/k-1", nil, nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, do(t, r, http.MethodDelete, "/threads/k-1", nil, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestGetThread_ServerErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unavailable", fmt.Errorf("%w: connection refused", services.ErrUnavailable), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := stubSession{resume: func(context.Context, string) (domain.ThreadHandle, error) {
				return domain.ThreadHandle{}, tc.err
			}}
			w := do(t, newTestRouter(New(svc, AppInfo{})), http.MethodGet, "/threads/k", nil, nil)
			expectError(t, w, tc.status, tc.code)
			// Causes stay in the logs, not in the response.
			if er := decode[ErrorResponse](t, w); er.Message == tc.err.Error() {
				t.Fatalf("server error leaked cause: %q", er.Message)
			}
		})
	}
}
