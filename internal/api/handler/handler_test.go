package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tutorhub/backend/internal/eventfeed"
	"tutorhub/backend/internal/eventlog"
	"tutorhub/backend/internal/identity"
	"tutorhub/backend/internal/participant"
	"tutorhub/backend/internal/roomcode"
	"tutorhub/backend/internal/roomprovider"
	"tutorhub/backend/internal/session"
	"tutorhub/backend/internal/storage"
	"tutorhub/backend/internal/storage/storagetest"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	store  *storage.Service
	gate   *identity.Gate
	hub    *eventfeed.Hub
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storagetest.NewStore(t)
	hub := eventfeed.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	codes := roomcode.NewRegistry(store, store)
	rooms := roomprovider.NewLocal("https://rooms.test", "room-secret", time.Hour)
	events := eventlog.NewLog(store, hub)
	gate := identity.NewGate("api-secret", store)

	h := NewHandler(
		session.NewManager(store, codes, rooms, events),
		participant.NewManager(store, codes, rooms, events),
		gate,
		hub,
	)
	r := gin.New()
	h.RegisterRoutes(r)
	return &testAPI{router: r, store: store, gate: gate, hub: hub}
}

// user creates a user and returns its id and a bearer token.
func (a *testAPI) user(t *testing.T, name string) (string, string) {
	t.Helper()
	id := storagetest.CreateUser(t, a.store, name)
	token, err := a.gate.Issue(id, time.Hour)
	require.NoError(t, err)
	return id, token
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type sessionBody struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	RoomCode        string `json:"room_code"`
	MaxParticipants int    `json:"max_participants"`
	ActualStart     string `json:"actual_start"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *testAPI) createSession(t *testing.T, token string, capacity int) sessionBody {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/sessions", token, gin.H{"title": "Calculus", "max_participants": capacity})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[sessionBody](t, w)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t)
	ghostToken, err := api.gate.Issue("no-such-user", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"missing":      "",
		"malformed":    "not-a-jwt",
		"unknown user": ghostToken,
	} {
		t.Run(name, func(t *testing.T) {
			w := api.do(t, http.MethodGet, "/api/v1/sessions", token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "unauthorized", decode[errorBody](t, w).Error)
		})
	}
}

func TestAuth_QueryTokenOnlyOnEventFeed(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.user(t, "teacher")

	w := api.do(t, http.MethodGet, "/api/v1/sessions?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/sessions", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateSession(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.user(t, "teacher")

	s := api.createSession(t, token, 3)
	assert.Equal(t, "scheduled", s.Status)
	assert.Len(t, s.RoomCode, 6)
	assert.Equal(t, 3, s.MaxParticipants)

	w := api.do(t, http.MethodPost, "/api/v1/sessions", token, gin.H{"title": "Calculus", "max_participants": 500})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions", token, gin.H{"max_participants": 5})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", decode[errorBody](t, w).Error)
}

func TestCreateSession_CapacityZeroIsRejected(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.user(t, "teacher")

	w := api.do(t, http.MethodPost, "/api/v1/sessions", token, gin.H{"title": "Calculus", "max_participants": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "validation_error", decode[errorBody](t, w).Error)

	w = api.do(t, http.MethodPost, "/api/v1/sessions", token, gin.H{"title": "Calculus"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 50, decode[sessionBody](t, w).MaxParticipants)
}

func TestSessionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	_, owner := api.user(t, "teacher")
	_, stranger := api.user(t, "stranger")
	s := api.createSession(t, owner, 5)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	started := decode[sessionBody](t, w)
	assert.Equal(t, "active", started.Status)
	assert.NotEmpty(t, started.ActualStart)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, w).Error)

	w = api.do(t, http.MethodPatch, "/api/v1/sessions/"+s.ID, owner, gin.H{"title": "Calculus I"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/end", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ended", decode[sessionBody](t, w).Status)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/cancel", owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/missing/end", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinKickLeave(t *testing.T) {
	api := newTestAPI(t)
	ownerID, owner := api.user(t, "teacher")
	studentID, student := api.user(t, "student")
	_, second := api.user(t, "second")
	_, late := api.user(t, "late")
	s := api.createSession(t, owner, 2)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/join", student, gin.H{"room_code": strings.ToLower(s.RoomCode)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	joined := decode[joinSessionResponse](t, w)
	assert.Equal(t, s.ID, joined.SessionID)
	assert.NotEmpty(t, joined.MeetingToken)
	assert.Equal(t, "student", string(joined.Role))

	w = api.do(t, http.MethodPost, "/api/v1/sessions/join", student, gin.H{"room_code": s.RoomCode})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[joinSessionResponse](t, w).AlreadyJoined)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/join", second, gin.H{"room_code": s.RoomCode})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/join", late, gin.H{"room_code": s.RoomCode})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "session_full", decode[errorBody](t, w).Error)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/join", late, gin.H{"room_code": "NOPE22"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/join", late, gin.H{})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/participants/"+ownerID+"/kick", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/participants/"+studentID+"/kick", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/leave", student, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, w).Error)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/leave", second, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInviteDeclineAndDetail(t *testing.T) {
	api := newTestAPI(t)
	_, owner := api.user(t, "teacher")
	guestID, guest := api.user(t, "guest")
	_, stranger := api.user(t, "stranger")
	s := api.createSession(t, owner, 5)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/invitations", owner, gin.H{"user_ids": []string{guestID}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/invitations", owner, gin.H{"user_ids": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID, guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[struct {
		ID           string           `json:"id"`
		Participants []map[string]any `json:"participants"`
		Events       []map[string]any `json:"events"`
	}](t, w)
	assert.Equal(t, s.ID, detail.ID)
	assert.Len(t, detail.Participants, 2)
	require.Len(t, detail.Events, 2)
	assert.Equal(t, "session_created", detail.Events[0]["event_type"])
	assert.Equal(t, "participant_invited", detail.Events[1]["event_type"])

	w = api.do(t, http.MethodGet, "/api/v1/sessions/"+s.ID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/decline", guest, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/decline", guest, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListSessions(t *testing.T) {
	api := newTestAPI(t)
	_, owner := api.user(t, "teacher")
	for i := 0; i < 3; i++ {
		api.createSession(t, owner, 5)
	}

	w := api.do(t, http.MethodGet, "/api/v1/sessions?limit=2", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[sessionListResponse](t, w)
	assert.EqualValues(t, 3, page.Total)
	assert.Len(t, page.Sessions, 2)

	w = api.do(t, http.MethodGet, "/api/v1/sessions?status=active", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[sessionListResponse](t, w).Sessions)

	w = api.do(t, http.MethodGet, "/api/v1/sessions?limit=abc", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = api.do(t, http.MethodGet, "/api/v1/sessions?limit=500", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEventFeed(t *testing.T) {
	api := newTestAPI(t)
	_, owner := api.user(t, "teacher")
	_, student := api.user(t, "student")
	s := api.createSession(t, owner, 5)

	server := httptest.NewServer(api.router)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/sessions/" + s.ID + "/events/ws?token="

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+student, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+owner, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return api.hub.ClientCount(s.ID) == 1 }, time.Second, 10*time.Millisecond)

	w := api.do(t, http.MethodPost, "/api/v1/sessions/"+s.ID+"/start", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var event struct {
		EventType string `json:"event_type"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(bytes.Split(msg, []byte{'\n'})[0], &event))
	assert.Equal(t, "session_started", event.EventType)
	assert.Equal(t, s.ID, event.SessionID)
}
