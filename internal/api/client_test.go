package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

type fakePortal struct {
	mu       sync.Mutex
	requests []recordedRequest
	routes   map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakePortal(t *testing.T) (*fakePortal, *Client) {
	t.Helper()
	fp := &fakePortal{routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL + "/", Token: StaticToken("secret-token")})
	require.NoError(t, err)
	return fp, client
}

func (fp *fakePortal) handle(method, path string, fn func(w http.ResponseWriter, r *http.Request)) {
	fp.routes[method+" "+path] = fn
}

func (fp *fakePortal) json(method, path string, status int, body string) {
	fp.handle(method, path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

func (fp *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Auth: r.Header.Get("Authorization")}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &rec.Body)
	}
	fp.mu.Lock()
	fp.requests = append(fp.requests, rec)
	fn := fp.routes[r.Method+" "+r.URL.Path]
	fp.mu.Unlock()

	if fn == nil {
		http.NotFound(w, r)
		return
	}
	fn(w, r)
}

func (fp *fakePortal) last(t *testing.T) recordedRequest {
	t.Helper()
	fp.mu.Lock()
	defer fp.mu.Unlock()
	require.NotEmpty(t, fp.requests)
	return fp.requests[len(fp.requests)-1]
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "  "})
	require.ErrorIs(t, err, ErrMissingBaseURL)
}

func TestUserGroupsIsUnauthenticated(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodGet, "/api/chat-groups/user/u1", 200,
		`{"groups":[{"_id":"g1","name":"Board","unreadCount":3,"members":["u1","u2"]}]}`)

	groups, err := c.UserGroups(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "g1", groups[0].ID)
	require.Equal(t, 3, groups[0].UnreadCount)
	require.Empty(t, fp.last(t).Auth)
}

func TestDirectThreadsSendsBearer(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodGet, "/api/direct-chats/user/u1", 200,
		`{"threads":[{"_id":"d1","participants":[{"_id":"u1","fullName":"Me"},"u2"],"unreadCount":2}]}`)

	threads, err := c.DirectThreads(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	require.Equal(t, 2, threads[0].UnreadCount)
	require.Equal(t, "u2", threads[0].Participants[1].ID)
	require.Equal(t, "Bearer secret-token", fp.last(t).Auth)
}

func TestGroupAndMembers(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodGet, "/api/chat-groups/g1", 200, `{"group":{"_id":"g1","name":"Board"}}`)
	fp.json(http.MethodGet, "/api/chat-groups/g1/members", 200,
		`{"members":[{"_id":"u1","fullName":"Ada","role":"admin"}]}`)

	group, err := c.Group(context.Background(), "g1")
	require.NoError(t, err)
	require.Equal(t, "Board", group.Name)

	members, err := c.GroupMembers(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "Ada", members[0].FullName)
}

func TestCreateGroupValidatesBeforeRequest(t *testing.T) {
	fp, c := newFakePortal(t)

	_, err := c.CreateGroup(context.Background(), models.GroupDraft{Name: ""})
	require.Error(t, err)
	fp.mu.Lock()
	require.Empty(t, fp.requests)
	fp.mu.Unlock()

	fp.json(http.MethodPost, "/api/chat-groups", 201, `{"group":{"_id":"g9","name":"New"}}`)
	group, err := c.CreateGroup(context.Background(), models.GroupDraft{Name: "New", Members: []string{"u1"}, CreatedBy: "u1"})
	require.NoError(t, err)
	require.Equal(t, "g9", group.ID)
	require.Equal(t, "New", fp.last(t).Body["name"])
}

func TestGroupMembershipAndDelete(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPut, "/api/chat-groups/g1/members/add/u3", 200, `{}`)
	fp.json(http.MethodPut, "/api/chat-groups/g1/members/remove/u3", 200, `{}`)
	fp.json(http.MethodDelete, "/api/chat-groups/g1", 204, ``)

	require.NoError(t, c.AddGroupMember(context.Background(), "g1", "u3"))
	require.NoError(t, c.RemoveGroupMember(context.Background(), "g1", "u3"))
	require.NoError(t, c.DeleteGroup(context.Background(), "g1"))
	require.Equal(t, http.MethodDelete, fp.last(t).Method)
}

func TestStartDirect(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPost, "/api/direct-chats/start", 200,
		`{"thread":{"_id":"d7","participants":["u1","m1"]}}`)

	thread, err := c.StartDirect(context.Background(), "m1")
	require.NoError(t, err)
	require.Equal(t, "d7", thread.ID)
	require.Equal(t, "m1", fp.last(t).Body["otherUserId"])
}

func TestStartDirectRejectsEmptyThread(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPost, "/api/direct-chats/start", 200, `{}`)

	_, err := c.StartDirect(context.Background(), "m1")
	require.Error(t, err)
}

func TestMessagesAcceptEnvelopeOrBareList(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodGet, "/api/messages/g1", 200,
		`[{"_id":"m1","chatGroup":"g1","sender":{"_id":"u1","fullName":"Ada"},"text":"hi","createdAt":"2026-01-02T03:04:05Z"}]`)
	fp.json(http.MethodGet, "/api/direct-chats/d1/messages", 200,
		`{"messages":[{"_id":"m2","thread":"d1","sender":"u2","text":"yo","createdAt":"2026-01-02T03:04:05Z"}]}`)

	group, err := c.GroupMessages(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, group, 1)
	require.Equal(t, models.GroupRef("g1"), group[0].Parent)
	require.Equal(t, "Bearer secret-token", fp.last(t).Auth)

	direct, err := c.DirectMessages(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, direct, 1)
	require.Equal(t, models.DirectRef("d1"), direct[0].Parent)
	require.Equal(t, "u2", direct[0].Sender.ID)
}

func TestSendGroupAndDirect(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPost, "/api/messages", 201,
		`{"_id":"m5","chatGroup":"g1","sender":"u1","text":"hello","createdAt":"2026-01-02T03:04:05Z"}`)
	fp.json(http.MethodPost, "/api/direct-chats/d1/messages", 201,
		`{"message":{"_id":"m6","thread":"d1","sender":"u1","text":"hey","createdAt":"2026-01-02T03:04:06Z"}}`)

	msg, err := c.SendGroup(context.Background(), "g1", "u1", "hello")
	require.NoError(t, err)
	require.Equal(t, "m5", msg.ID)
	body := fp.last(t).Body
	require.Equal(t, "g1", body["chatGroup"])
	require.Equal(t, "u1", body["sender"])
	require.Equal(t, "hello", body["text"])

	msg, err = c.SendDirect(context.Background(), "d1", "hey")
	require.NoError(t, err)
	require.Equal(t, "m6", msg.ID)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC), msg.Timestamp.UTC())
}

func TestReadAllAndCheck(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPut, "/api/messages/g1/readAll", 200, `{"ok":true}`)
	fp.json(http.MethodPut, "/api/direct-chats/d1/read-all", 200, `{}`)
	fp.json(http.MethodGet, "/api/messages/g1/check/4", 200, `{"hasNew":true}`)

	require.NoError(t, c.ReadAllGroup(context.Background(), "g1"))
	require.NoError(t, c.ReadAllDirect(context.Background(), "d1"))

	hasNew, err := c.CheckGroupMessages(context.Background(), "g1", 4)
	require.NoError(t, err)
	require.True(t, hasNew)
}

func TestHasRefundsUsesConfiguredPath(t *testing.T) {
	fp := &fakePortal{routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)
	fp.json(http.MethodGet, "/api/refund-requests/member/u1/exists", 200, `{"exists":true}`)

	c, err := New(Options{BaseURL: srv.URL, RefundPath: "/api/refund-requests/member/{userId}/exists"})
	require.NoError(t, err)

	exists, err := c.HasRefunds(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStatusError(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodGet, "/api/chat-groups/user/u1", 503, `{"error":"down, token=abcdefghijklmnopqrstuvwxyz0123456789ABCD"}`)

	_, err := c.UserGroups(context.Background(), "u1")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 503, se.StatusCode)
	require.True(t, se.Temporary())
	require.NotContains(t, se.Body, "abcdefghijklmnopqrstuvwxyz0123456789ABCD")

	_, err = c.Group(context.Background(), "missing")
	require.True(t, IsNotFound(err))
	require.True(t, errors.As(err, &se))
	require.False(t, se.Temporary())
}

func TestContextDeadlineBoundsRequest(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.handle(http.MethodGet, "/api/chat-groups/user/u1", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.UserGroups(ctx, "u1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThreadAPIDispatch(t *testing.T) {
	fp, c := newFakePortal(t)
	fp.json(http.MethodPut, "/api/messages/g1/readAll", 200, `{}`)
	fp.json(http.MethodPut, "/api/direct-chats/d1/read-all", 200, `{}`)
	fp.json(http.MethodGet, "/api/messages/g1/check/0", 200, `{"hasNew":false}`)
	ta := ThreadAPI{Client: c, SenderID: "u1"}

	require.NoError(t, ta.ReadAll(context.Background(), models.GroupRef("g1")))
	require.Equal(t, "/api/messages/g1/readAll", fp.last(t).Path)
	require.NoError(t, ta.ReadAll(context.Background(), models.DirectRef("d1")))
	require.Equal(t, "/api/direct-chats/d1/read-all", fp.last(t).Path)

	hasNew, err := ta.HasNew(context.Background(), models.GroupRef("g1"), 0)
	require.NoError(t, err)
	require.False(t, hasNew)

	_, err = ta.HasNew(context.Background(), models.DirectRef("d1"), 0)
	require.ErrorIs(t, err, models.ErrInvalidThreadKind)

	err = ta.ReadAll(context.Background(), models.ThreadRef{Kind: "bogus", ID: "x"})
	require.ErrorIs(t, err, models.ErrInvalidThreadKind)
}
