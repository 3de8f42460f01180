package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/chatsync/internal/config"
	"github.com/tOgg1/chatsync/internal/logging"
)

type portalRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakePortal struct {
	mu       sync.Mutex
	requests []portalRequest
}

func (fp *fakePortal) recorded() []portalRequest {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]portalRequest(nil), fp.requests...)
}

func (fp *fakePortal) saw(method, path string) bool {
	for _, r := range fp.recorded() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

func newFakePortal(t *testing.T) (*fakePortal, string) {
	t.Helper()
	fp := &fakePortal{}
	routes := map[string]string{
		"GET /api/chat-groups/user/u1":           `{"groups":[{"_id":"g1","name":"Ops","members":["u1","u2"],"unreadCount":2,"lastMessage":"deploy done","lastMessageTimestamp":"2026-03-01T09:00:00Z"}]}`,
		"GET /api/direct-chats/user/u1":          `{"threads":[{"_id":"d1","participants":[{"_id":"u1","fullName":"Una"},{"_id":"u2","fullName":"Bo"}],"unreadCount":1}]}`,
		"GET /api/messages/g1":                   `[{"_id":"m1","chatGroup":"g1","sender":{"_id":"u2","fullName":"Bo"},"text":"hello there","timestamp":"2026-03-01T09:00:00Z"}]`,
		"PUT /api/messages/g1/readAll":           `{}`,
		"POST /api/messages":                     `{"_id":"m2","chatGroup":"g1","sender":"u1","text":"hi","timestamp":"2026-03-01T09:01:00Z"}`,
		"POST /api/direct-chats/start":           `{"thread":{"_id":"d9","participants":[{"_id":"u1","fullName":"Una"},{"_id":"u9","fullName":"Nia"}]}}`,
		"POST /api/chat-groups":                  `{"_id":"g7","name":"Launch","members":["u2","u1"]}`,
		"DELETE /api/chat-groups/g1":             `{}`,
		"PUT /api/chat-groups/g1/members/add/u3": `{}`,
		"GET /api/refunds/user/u1":               `{"exists":false}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := portalRequest{Method: r.Method, Path: r.URL.Path}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		fp.mu.Lock()
		fp.requests = append(fp.requests, rec)
		fp.mu.Unlock()

		body, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return fp, srv.URL
}

// withTestConfig installs a config pointing at baseURL and a temporary
// context file, restoring globals on cleanup.
func withTestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	logging.Discard()

	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Session.UserID = "u1"
	cfg.Session.FullName = "Una"
	cfg.Session.Token = "test-token"
	cfg.Cache.Enabled = false
	cfg.Cache.DataDir = t.TempDir()

	prevCfg, prevCtx := appConfig, contextStorePath
	prevJSON, prevJSONL := jsonOutput, jsonlOutput
	appConfig = cfg
	contextStorePath = filepath.Join(t.TempDir(), "context.yaml")
	jsonOutput, jsonlOutput = false, false
	t.Cleanup(func() {
		appConfig, contextStorePath = prevCfg, prevCtx
		jsonOutput, jsonlOutput = prevJSON, prevJSONL
	})
	return cfg
}

func captureStdout(fn func() error) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	orig := os.Stdout
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	runErr := fn()
	_ = w.Close()
	os.Stdout = orig
	out := <-done
	_ = r.Close()
	return out, runErr
}

func TestThreadsListsInboxWithUnread(t *testing.T) {
	_, url := newFakePortal(t)
	withTestConfig(t, url)

	out, err := captureStdout(func() error { return threadsCmd.RunE(threadsCmd, nil) })
	require.NoError(t, err)
	require.Contains(t, out, "group:g1")
	require.Contains(t, out, "Ops")
	require.Contains(t, out, "direct:d1")
	require.Contains(t, out, "Bo")
	require.Contains(t, out, "3 unread")
}

func TestThreadsJSON(t *testing.T) {
	_, url := newFakePortal(t)
	withTestConfig(t, url)
	jsonOutput = true

	out, err := captureStdout(func() error { return threadsCmd.RunE(threadsCmd, nil) })
	require.NoError(t, err)

	var rows []threadRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, "group:g1", rows[0].Thread)
	require.Equal(t, 2, rows[0].Unread)
}

func TestMissingUserIsPreflightError(t *testing.T) {
	_, url := newFakePortal(t)
	cfg := withTestConfig(t, url)
	cfg.Session.UserID = ""

	_, err := captureStdout(func() error { return threadsCmd.RunE(threadsCmd, nil) })
	var pre *PreflightError
	require.ErrorAs(t, err, &pre)
	require.Contains(t, err.Error(), "--user")
}

func TestMissingBaseURLIsPreflightError(t *testing.T) {
	cfg := withTestConfig(t, "")
	cfg.API.BaseURL = ""

	err := groupsListCmd.RunE(groupsListCmd, nil)
	var pre *PreflightError
	require.ErrorAs(t, err, &pre)
}

func TestReadMarksThreadRead(t *testing.T) {
	fp, url := newFakePortal(t)
	withTestConfig(t, url)

	out, err := captureStdout(func() error { return readCmd.RunE(readCmd, []string{"group:g1"}) })
	require.NoError(t, err)
	require.Contains(t, out, "Bo")
	require.Contains(t, out, "hello there")
	require.True(t, fp.saw(http.MethodPut, "/api/messages/g1/readAll"))
}

func TestSendUsesSelectedThread(t *testing.T) {
	fp, url := newFakePortal(t)
	withTestConfig(t, url)

	_, err := captureStdout(func() error { return useCmd.RunE(useCmd, []string{"group:g1"}) })
	require.NoError(t, err)

	out, err := captureStdout(func() error { return sendCmd.RunE(sendCmd, []string{"hi"}) })
	require.NoError(t, err)
	require.Contains(t, out, "Sent to g1")

	var sent *portalRequest
	for _, r := range fp.recorded() {
		r := r
		if r.Method == http.MethodPost && r.Path == "/api/messages" {
			sent = &r
		}
	}
	require.NotNil(t, sent)
	require.Equal(t, "g1", sent.Body["chatGroup"])
	require.Equal(t, "u1", sent.Body["sender"])
	require.Equal(t, "hi", sent.Body["text"])
}

func TestSendRejectsBlankText(t *testing.T) {
	fp, url := newFakePortal(t)
	withTestConfig(t, url)

	err := sendCmd.RunE(sendCmd, []string{"group:g1", "   "})
	require.Error(t, err)
	require.Empty(t, fp.recorded())
}

func TestResolveThreadWithoutSelection(t *testing.T) {
	withTestConfig(t, "http://127.0.0.1:0")

	_, err := resolveThread(nil)
	var pre *PreflightError
	require.ErrorAs(t, err, &pre)

	_, err = resolveThread([]string{"g1"})
	require.Error(t, err)

	ref, err := resolveThread([]string{"direct:d1"})
	require.NoError(t, err)
	require.Equal(t, "direct:d1", ref.Key())
}

func TestUseAndContext(t *testing.T) {
	withTestConfig(t, "http://127.0.0.1:0")

	_, err := captureStdout(func() error { return useCmd.RunE(useCmd, []string{"direct:d1"}) })
	require.NoError(t, err)
	out, err := captureStdout(func() error { return contextCmd.RunE(contextCmd, nil) })
	require.NoError(t, err)
	require.Contains(t, out, "direct:d1")

	useClear = true
	defer func() { useClear = false }()
	_, err = captureStdout(func() error { return useCmd.RunE(useCmd, nil) })
	require.NoError(t, err)
	out, err = captureStdout(func() error { return contextCmd.RunE(contextCmd, nil) })
	require.NoError(t, err)
	require.Contains(t, out, "no context set")
}

func TestGroupsCreateAddsSelf(t *testing.T) {
	fp, url := newFakePortal(t)
	withTestConfig(t, url)

	groupCreateMembers = []string{"u2", "u2"}
	defer func() { groupCreateMembers = nil }()

	out, err := captureStdout(func() error { return groupsCreateCmd.RunE(groupsCreateCmd, []string{" Launch "}) })
	require.NoError(t, err)
	require.Contains(t, out, "Created group Launch (g7)")

	reqs := fp.recorded()
	require.Len(t, reqs, 1)
	require.Equal(t, "Launch", reqs[0].Body["name"])
	require.Equal(t, []any{"u2", "u1"}, reqs[0].Body["members"])
	require.Equal(t, "u1", reqs[0].Body["createdBy"])
}

func TestGroupsDeleteAndAddMember(t *testing.T) {
	fp, url := newFakePortal(t)
	withTestConfig(t, url)

	_, err := captureStdout(func() error { return groupsDeleteCmd.RunE(groupsDeleteCmd, []string{"g1"}) })
	require.NoError(t, err)
	_, err = captureStdout(func() error { return groupsAddMemberCmd.RunE(groupsAddMemberCmd, []string{"g1", "u3"}) })
	require.NoError(t, err)

	require.True(t, fp.saw(http.MethodDelete, "/api/chat-groups/g1"))
	require.True(t, fp.saw(http.MethodPut, "/api/chat-groups/g1/members/add/u3"))
}

func TestDMStartSelectsThread(t *testing.T) {
	_, url := newFakePortal(t)
	withTestConfig(t, url)
	dmUse = true
	defer func() { dmUse = false }()

	out, err := captureStdout(func() error { return dmStartCmd.RunE(dmStartCmd, []string{"u9"}) })
	require.NoError(t, err)
	require.Contains(t, out, "Nia")

	ref, err := resolveThread(nil)
	require.NoError(t, err)
	require.Equal(t, "direct:d9", ref.Key())
}

func TestRunWatchPrintsBadge(t *testing.T) {
	_, url := newFakePortal(t)
	withTestConfig(t, url)
	jsonlOutput = true

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, out) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"total":3`)
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	line := strings.SplitN(strings.TrimSpace(out.String()), "\n", 2)[0]
	var ev badgeEvent
	require.NoError(t, json.Unmarshal([]byte(line), &ev))
}

func TestApplyFlagOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	prev := []string{apiURL, userFlag, logLevel}
	defer func() { apiURL, userFlag, logLevel = prev[0], prev[1], prev[2] }()
	apiURL, userFlag, logLevel = "https://portal.test", "u42", "warn"

	l := config.NewLoader()
	applyFlagOverrides(l)
	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, "https://portal.test", cfg.API.BaseURL)
	require.Equal(t, "u42", cfg.Session.UserID)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestWriteTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "NAME"}, [][]string{{"g1", "Ops"}, {"group-22", "Sales"}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "ID        NAME", lines[0])
	require.Equal(t, "g1        Ops", lines[1])
	require.Equal(t, "group-22  Sales", lines[2])
}

func TestPreflightErrorFormatting(t *testing.T) {
	err := &PreflightError{Message: "no portal url configured", Hint: "set api.base_url", NextStep: "chatsync threads"}
	require.Equal(t, "no portal url configured\n  hint: set api.base_url\n  try:  chatsync threads", err.Error())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
