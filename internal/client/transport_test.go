package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "https://consult.example.com", want: "wss://consult.example.com/ws"},
		{in: "https://consult.example.com/api/", want: "wss://consult.example.com/api/ws"},
		{in: "ws://localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "ftp://localhost", wantErr: true},
	}
	for _, c := range cases {
		got, err := wsURL(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got)
	}
}

func TestHTTPURL(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "ws://localhost:8080", want: "http://localhost:8080"},
		{in: "wss://consult.example.com", want: "https://consult.example.com"},
		{in: "http://localhost:8080/", want: "http://localhost:8080"},
		{in: "ftp://localhost", wantErr: true},
	}
	for _, c := range cases {
		got, err := httpURL(c.in)
		if c.wantErr {
			assert.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got)
	}
}

func TestIsAuthMessage(t *testing.T) {
	assert.True(t, isAuthMessage("authentication failed"))
	assert.True(t, isAuthMessage("Invalid Token"))
	assert.True(t, isAuthMessage("401 Unauthorized"))
	assert.False(t, isAuthMessage("server overloaded"))
}

func TestCheckHandshakeAck(t *testing.T) {
	require.NoError(t, checkHandshakeAck(&Envelope{Event: EventConnected}))

	raw, _ := json.Marshal(ErrorPayload{Message: "authentication failed"})
	err := checkHandshakeAck(&Envelope{Event: EventConnectError, Payload: raw})
	require.ErrorIs(t, err, ErrAuthFailed)

	raw, _ = json.Marshal(ErrorPayload{Message: "too many connections"})
	err = checkHandshakeAck(&Envelope{Event: EventConnectError, Payload: raw})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthFailed)

	assert.Error(t, checkHandshakeAck(&Envelope{Event: EventAck}))
}

// wsEchoServer upgrades /ws, validates the hello token and echoes every
// frame back with the ack event.
func wsEchoServer(t *testing.T, goodToken string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var h hello
		if err := conn.ReadJSON(&h); err != nil {
			return
		}
		if h.Auth.Token != goodToken {
			raw, _ := json.Marshal(ErrorPayload{Message: "authentication failed"})
			conn.WriteJSON(&Envelope{Event: EventConnectError, Payload: raw})
			return
		}
		conn.WriteJSON(&Envelope{Event: EventConnected})

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			env.Event = EventAck
			if err := conn.WriteJSON(&env); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDialWS(t *testing.T) {
	srv := wsEchoServer(t, "secret")

	tr, err := dialWS(srv.URL, "secret", 2*time.Second)
	require.NoError(t, err)
	defer tr.close()

	require.NoError(t, tr.write(&Envelope{Event: EventUserOnline, ID: 3, Payload: json.RawMessage(`"u1"`)}))
	env, err := tr.read()
	require.NoError(t, err)
	assert.Equal(t, EventAck, env.Event)
	assert.Equal(t, uint64(3), env.ID)
}

func TestDialWSBadToken(t *testing.T) {
	srv := wsEchoServer(t, "secret")

	_, err := dialWS(srv.URL, "wrong", 2*time.Second)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestNegotiateAuthAbortsFallback(t *testing.T) {
	var pollHits int32
	up := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var h hello
		conn.ReadJSON(&h)
		raw, _ := json.Marshal(ErrorPayload{Message: "invalid token"})
		conn.WriteJSON(&Envelope{Event: EventConnectError, Payload: raw})
	})
	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pollHits, 1)
		http.Error(w, "unexpected", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := negotiate(srv.URL, "wrong", 2*time.Second)
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Zero(t, atomic.LoadInt32(&pollHits), "auth rejection must not fall back to polling")
}

func TestNegotiateFallsBackToPolling(t *testing.T) {
	// No /ws route: the websocket dial fails and negotiation moves on to
	// the polling handshake.
	mux := http.NewServeMux()
	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var h hello
			if err := json.NewDecoder(r.Body).Decode(&h); err != nil || h.Auth.Token != "secret" {
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{"session": "s1"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/poll/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("session") != "s1" {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode([]*Envelope{
			{Event: EventUnreadConversationCount, Payload: json.RawMessage("4")},
			{Event: EventUserStatusChanged, Payload: json.RawMessage(`{"userId":"c1","status":"online"}`)},
		})
	})
	var emitted Envelope
	mux.HandleFunc("/poll/emit", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&emitted)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr, err := negotiate(srv.URL, "secret", 2*time.Second)
	require.NoError(t, err)
	defer tr.close()

	env, err := tr.read()
	require.NoError(t, err)
	assert.Equal(t, EventUnreadConversationCount, env.Event)
	env, err = tr.read()
	require.NoError(t, err)
	assert.Equal(t, EventUserStatusChanged, env.Event)

	require.NoError(t, tr.write(&Envelope{Event: EventUserOnline, Payload: json.RawMessage(`"u1"`)}))
	assert.Equal(t, EventUserOnline, emitted.Event)

	_, err = negotiate(srv.URL, "wrong", 2*time.Second)
	require.ErrorIs(t, err, ErrAuthFailed)
}
