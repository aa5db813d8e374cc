package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"muxic/internal/models"
)

func newRoomHandler(env *testEnv) *RoomHandler {
	return NewRoomHandler(env.rooms, env.syncSessions, env.stats)
}

func roomRequest(method, target, body, userID, roomID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = requestWithUser(req, userID)
	if roomID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("roomID", roomID)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func TestCreateRoomStartsSessionAndCountsStat(t *testing.T) {
	env := newTestEnv(t)
	handler := newRoomHandler(env)
	userID := env.createVerifiedUser(t, "alice@example.com", "alice_01", "password123")

	rr := httptest.NewRecorder()
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/v1/rooms",
		strings.NewReader(`{"name":"Friday Listening"}`)), userID)
	handler.Create(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var room models.Room
	if err := json.Unmarshal(rr.Body.Bytes(), &room); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if room.Code == "" {
		t.Fatal("created room has no join code")
	}

	if _, err := env.syncSessions.ActiveForRoom(room.ID); err != nil {
		t.Fatalf("ActiveForRoom() error = %v, want an open session", err)
	}

	stats, err := env.stats.Get(userID)
	if err != nil {
		t.Fatalf("stats.Get() error = %v", err)
	}
	if stats.RoomsCreated != 1 {
		t.Fatalf("RoomsCreated = %d, want 1", stats.RoomsCreated)
	}
}

func TestJoinByCode(t *testing.T) {
	env := newTestEnv(t)
	handler := newRoomHandler(env)
	creatorID := env.createVerifiedUser(t, "alice@example.com", "alice_01", "password123")
	guestID := env.createVerifiedUser(t, "bob@example.com", "bobby_01", "password123")

	room, err := env.rooms.Create(dbCreateRoomParams("Friday Listening", creatorID))
	if err != nil {
		t.Fatalf("rooms.Create() error = %v", err)
	}
	session, err := env.syncSessions.Start(room.ID)
	if err != nil {
		t.Fatalf("syncSessions.Start() error = %v", err)
	}

	rr := httptest.NewRecorder()
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/v1/rooms/join",
		strings.NewReader(fmt.Sprintf(`{"code":%q}`, room.Code))), guestID)
	handler.Join(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusOK, rr.Body.String())
	}

	member, err := env.rooms.IsParticipant(room.ID, guestID)
	if err != nil {
		t.Fatalf("IsParticipant() error = %v", err)
	}
	if !member {
		t.Fatal("guest is not a participant after joining")
	}

	stats, err := env.stats.Get(guestID)
	if err != nil {
		t.Fatalf("stats.Get() error = %v", err)
	}
	if stats.SessionsJoined != 1 {
		t.Fatalf("SessionsJoined = %d, want 1", stats.SessionsJoined)
	}

	events, err := env.syncSessions.EventsForSession(session.SessionID)
	if err != nil {
		t.Fatalf("EventsForSession() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != models.EventUserJoin {
		t.Fatalf("events = %v, want a single user_join", events)
	}
}

func TestJoinUnknownCodeNotFound(t *testing.T) {
	env := newTestEnv(t)
	handler := newRoomHandler(env)
	userID := env.createVerifiedUser(t, "alice@example.com", "alice_01", "password123")

	rr := httptest.NewRecorder()
	req := requestWithUser(httptest.NewRequest(http.MethodPost, "/api/v1/rooms/join",
		strings.NewReader(`{"code":"000000000000"}`)), userID)
	handler.Join(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d, body=%q", rr.Code, http.StatusNotFound, rr.Body.String())
	}
}

func TestQueueTrackRequiresParticipation(t *testing.T) {
	env := newTestEnv(t)
	handler := newRoomHandler(env)
	creatorID := env.createVerifiedUser(t, "alice@example.com", "alice_01", "password123")
	strangerID := env.createVerifiedUser(t, "bob@example.com", "bobby_01", "password123")

	room, err := env.rooms.Create(dbCreateRoomParams("Friday Listening", creatorID))
	if err != nil {
		t.Fatalf("rooms.Create() error = %v", err)
	}

	body := `{"title":"Song","url":"https://cdn.example.com/song.mp3"}`
	rr := httptest.NewRecorder()
	handler.QueueTrack(rr, roomRequest(http.MethodPost, "/api/v1/rooms/x/queue", body, strangerID, room.ID))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("stranger status = %d, want %d, body=%q", rr.Code, http.StatusForbidden, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	handler.QueueTrack(rr, roomRequest(http.MethodPost, "/api/v1/rooms/x/queue", body, creatorID, room.ID))
	if rr.Code != http.StatusCreated {
		t.Fatalf("creator status = %d, want %d, body=%q", rr.Code, http.StatusCreated, rr.Body.String())
	}
}
