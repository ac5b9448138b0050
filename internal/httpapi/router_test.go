package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatapp/internal/ai"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/db"
	"github.com/suPer8Hu/chatapp/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatapp/internal/httpapi/middleware"
	"github.com/suPer8Hu/chatapp/internal/inference"
	"github.com/suPer8Hu/chatapp/internal/models"
	"github.com/suPer8Hu/chatapp/internal/stream"
	"github.com/suPer8Hu/chatapp/internal/usage"
	"github.com/suPer8Hu/chatapp/internal/users"
)

const testSecret = "test-secret"

type memRevocations struct {
	mu  sync.Mutex
	ids map[string]bool
}

func (m *memRevocations) RevokeToken(_ context.Context, jti string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[jti] = true
	return nil
}

func (m *memRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ids[jti], nil
}

type echoProvider struct{}

func (echoProvider) Name() string  { return "echo" }
func (echoProvider) Model() string { return "echo-1" }
func (echoProvider) Chat(_ context.Context, msgs []ai.Message) (string, error) {
	return "echo: " + msgs[len(msgs)-1].Content, nil
}
func (echoProvider) StreamChat(_ context.Context, msgs []ai.Message) (<-chan ai.Delta, <-chan error) {
	deltas := make(chan ai.Delta, 3)
	errs := make(chan error)
	deltas <- ai.Delta{Content: "echo: "}
	deltas <- ai.Delta{Content: msgs[len(msgs)-1].Content}
	deltas <- ai.Delta{Usage: &ai.Usage{PromptTokens: 1, CompletionTokens: 2}}
	close(deltas)
	close(errs)
	return deltas, errs
}

type testServer struct {
	router *gin.Engine
	users  *users.Repo
	usage  *usage.Repo
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open("sqlite", "file:"+name+"?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	userRepo := users.NewRepo(gdb)
	usageRepo := usage.NewRepo(gdb)
	revocations := &memRevocations{ids: map[string]bool{}}
	chatSvc := chat.NewService(chat.NewRepo(gdb))

	reg := ai.NewRegistry()
	reg.Register("echo", func(context.Context, string) (ai.Provider, error) { return echoProvider{}, nil })
	gw := inference.NewGateway(chatSvc, reg, usage.NewStoreRecorder(usageRepo, 0), inference.Options{Provider: "echo"})

	h := handlers.NewHandler(chatSvc, gw, usageRepo, revocations)
	resolver := auth.NewTokenResolver(testSecret, userRepo, revocations)
	return testServer{router: NewRouter(h, resolver, []string{"http://localhost:3000"}), users: userRepo, usage: usageRepo}
}

func (s testServer) login(t *testing.T, ext string) string {
	t.Helper()
	u := &models.User{Email: ext + "@example.com", ExternalAuthID: ext, FirstName: ext}
	if err := s.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tok, _, err := auth.Sign(testSecret, "test", ext, u.Email, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func doJSONRequest(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, w.Code, w.Body.String())
	}
}

func TestCreateChatSession_Validation(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ada")

	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{})
	assertStatus(t, w, http.StatusBadRequest)
	if env := decodeJSON[any](t, w); env.Success || env.Error == "" {
		t.Fatalf("expected failure envelope, got %+v", env)
	}

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"title": "", "initialMessage": ""})
	assertStatus(t, w, http.StatusBadRequest)

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, "{broken")
	assertStatus(t, w, http.StatusBadRequest)
}

func TestCreateChatSession_TitleKeptAsGiven(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ada")

	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"title": "   "})
	assertStatus(t, w, http.StatusCreated)
	if got := decodeJSON[chat.Session](t, w).Data.Title; got != "   " {
		t.Fatalf("expected whitespace title kept, got %q", got)
	}

	msg := "  " + strings.Repeat("0123456789", 5) + " xyz"
	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"initialMessage": msg})
	assertStatus(t, w, http.StatusCreated)
	if got := decodeJSON[chat.Session](t, w).Data.Title; got != msg[:50] {
		t.Fatalf("expected first 50 characters %q, got %q", msg[:50], got)
	}
}

func TestCreateChatSession_Unauthenticated(t *testing.T) {
	s := newTestServer(t)
	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", "", map[string]any{"title": "x"})
	assertStatus(t, w, http.StatusUnauthorized)
	if env := decodeJSON[any](t, w); env.Success {
		t.Fatalf("expected failure envelope")
	}

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", "not-a-jwt", map[string]any{"title": "x"})
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestSessionsLifecycle(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ada")

	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"initialMessage": "Plan a weekend in Lisbon"})
	assertStatus(t, w, http.StatusCreated)
	created := decodeJSON[chat.Session](t, w)
	if !created.Success || created.Data.Title != "Plan a weekend in Lisbon" || created.Data.Status != chat.StatusActive {
		t.Fatalf("unexpected created session %+v", created)
	}

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"title": "Second"})
	assertStatus(t, w, http.StatusCreated)
	second := decodeJSON[chat.Session](t, w)

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions", tok, nil)
	assertStatus(t, w, http.StatusOK)
	list := decodeJSON[[]chat.Session](t, w)
	if len(list.Data) != 2 || list.Data[0].ID != second.Data.ID {
		t.Fatalf("expected newest first, got %+v", list.Data)
	}

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions/"+created.Data.ID+"/messages", tok, nil)
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty array for new session, got %s", w.Body.String())
	}
}

func TestListChatSessions_EmptyArray(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "newbie")
	w := doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions", tok, nil)
	assertStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty data array, got %s", w.Body.String())
	}
}

func TestListChatMessages_AccessControl(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	mallory := s.login(t, "mallory")

	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", alice, map[string]any{"title": "private"})
	sess := decodeJSON[chat.Session](t, w).Data

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions/"+sess.ID+"/messages", mallory, nil)
	assertStatus(t, w, http.StatusNotFound)
	env := decodeJSON[[]chat.Message](t, w)
	if env.Success || env.Data != nil {
		t.Fatalf("foreign caller must get no data, got %+v", env)
	}

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions/%20/messages", alice, nil)
	assertStatus(t, w, http.StatusBadRequest)

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions/"+sess.ID+"/messages", "", nil)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestListChatMessages_EmptyParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handlers.NewHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/chat/sessions//messages", nil)
	middleware.WithIdentity(c, auth.Identity{UserID: "u-1"})

	h.ListChatMessages(c)
	assertStatus(t, w, http.StatusBadRequest)
}

func TestChat_StreamsAndStores(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ada")

	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", tok, map[string]any{"title": "t"})
	sess := decodeJSON[chat.Session](t, w).Data

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat", tok, map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "ping"}},
		"sessionId": sess.ID,
	})
	assertStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var text strings.Builder
	for ev, err := range stream.NewDecoder(w.Body).Events() {
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		text.WriteString(ev.Response)
	}
	if text.String() != "echo: ping" {
		t.Fatalf("unexpected streamed text %q", text.String())
	}

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/chat/sessions/"+sess.ID+"/messages", tok, nil)
	msgs := decodeJSON[[]chat.Message](t, w).Data
	if len(msgs) != 2 || msgs[0].Role != chat.RoleUser || msgs[1].Content != "echo: ping" {
		t.Fatalf("unexpected stored messages %+v", msgs)
	}

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/usage", tok, nil)
	assertStatus(t, w, http.StatusOK)
	totals := decodeJSON[usage.Totals](t, w).Data
	if totals.Requests != 1 || totals.TokensUsed != 3 {
		t.Fatalf("unexpected usage totals %+v", totals)
	}
}

func TestChat_ForeignSession(t *testing.T) {
	s := newTestServer(t)
	alice := s.login(t, "alice")
	mallory := s.login(t, "mallory")
	w := doJSONRequest(t, s.router, http.MethodPost, "/api/chat/sessions", alice, map[string]any{"title": "t"})
	sess := decodeJSON[chat.Session](t, w).Data

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/chat", mallory, map[string]any{
		"messages":  []map[string]string{{"role": "user", "content": "let me in"}},
		"sessionId": sess.ID,
	})
	assertStatus(t, w, http.StatusNotFound)
}

func TestMeAndLogout(t *testing.T) {
	s := newTestServer(t)
	tok := s.login(t, "ada")

	w := doJSONRequest(t, s.router, http.MethodGet, "/api/me", tok, nil)
	assertStatus(t, w, http.StatusOK)
	me := decodeJSON[auth.Identity](t, w).Data
	if me.ExternalID != "ada" || me.Email != "ada@example.com" {
		t.Fatalf("unexpected identity %+v", me)
	}

	w = doJSONRequest(t, s.router, http.MethodPost, "/api/auth/logout", tok, nil)
	assertStatus(t, w, http.StatusNoContent)

	w = doJSONRequest(t, s.router, http.MethodGet, "/api/me", tok, nil)
	assertStatus(t, w, http.StatusUnauthorized)
}

func TestNoRouteAndNoMethod(t *testing.T) {
	s := newTestServer(t)
	w := doJSONRequest(t, s.router, http.MethodGet, "/nope", "", nil)
	assertStatus(t, w, http.StatusNotFound)

	w = doJSONRequest(t, s.router, http.MethodDelete, "/ping", "", nil)
	assertStatus(t, w, http.StatusMethodNotAllowed)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assertStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assertStatus(t, w, http.StatusForbidden)
}
