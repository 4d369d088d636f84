package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrAuthFailed marks a handshake rejected by the server for a bad or expired
// credential. It is never retried by the reconnect loop.
var ErrAuthFailed = errors.New("authentication failed")

// transport is one negotiated connection to the push server. read blocks
// until a frame arrives or the connection dies.
type transport interface {
	read() (*Envelope, error)
	write(*Envelope) error
	close() error
}

// dialFunc opens a transport. Swapped out in tests.
type dialFunc func(serverURL, token string, timeout time.Duration) (transport, error)

// negotiate tries websocket first and falls back to long polling. An auth
// rejection on either transport aborts the fallback chain.
func negotiate(serverURL, token string, timeout time.Duration) (transport, error) {
	tr, wsErr := dialWS(serverURL, token, timeout)
	if wsErr == nil {
		return tr, nil
	}
	if errors.Is(wsErr, ErrAuthFailed) {
		return nil, wsErr
	}
	tr, pollErr := dialPoll(serverURL, token, timeout)
	if pollErr == nil {
		return tr, nil
	}
	if errors.Is(pollErr, ErrAuthFailed) {
		return nil, pollErr
	}
	return nil, fmt.Errorf("websocket: %v; polling: %w", wsErr, pollErr)
}

// --- WebSocket transport ---

type wsTransport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // serialises frame writes
}

func dialWS(serverURL, token string, timeout time.Duration) (transport, error) {
	u, err := wsURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.Dial(u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	var h hello
	h.Auth.Token = token
	conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteJSON(h); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake write: %w", err)
	}
	conn.SetWriteDeadline(time.Time{})

	conn.SetReadDeadline(time.Now().Add(timeout))
	var ack Envelope
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake read: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if err := checkHandshakeAck(&ack); err != nil {
		conn.Close()
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) read() (*Envelope, error) {
	var env Envelope
	if err := t.conn.ReadJSON(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (t *wsTransport) write(env *Envelope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteJSON(env)
}

func (t *wsTransport) close() error {
	return t.conn.Close()
}

// wsURL converts an http(s) base URL to its ws(s) endpoint.
func wsURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func checkHandshakeAck(env *Envelope) error {
	switch env.Event {
	case EventConnected:
		return nil
	case EventConnectError:
		var p ErrorPayload
		_ = json.Unmarshal(env.Payload, &p)
		if isAuthMessage(p.Message) {
			return fmt.Errorf("%s: %w", p.Message, ErrAuthFailed)
		}
		return fmt.Errorf("connect rejected: %s", p.Message)
	default:
		return fmt.Errorf("unexpected handshake reply %q", env.Event)
	}
}

func isAuthMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "auth") || strings.Contains(m, "token") || strings.Contains(m, "unauthorized")
}

// --- Long-polling transport ---

// pollTransport drives the HTTP fallback: one handshake request, then a GET
// loop that holds until the server has frames, and POSTs for outbound frames.
type pollTransport struct {
	base    string
	session string
	client  *http.Client

	mu     sync.Mutex
	buf    []*Envelope
	closed bool
}

func dialPoll(serverURL, token string, timeout time.Duration) (transport, error) {
	base, err := httpURL(serverURL)
	if err != nil {
		return nil, err
	}

	var h hello
	h.Auth.Token = token
	body, _ := json.Marshal(h)

	hc := &http.Client{Timeout: timeout}
	resp, err := hc.Post(base+"/poll", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("poll handshake: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %w", strings.TrimSpace(string(msg)), ErrAuthFailed)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("poll handshake: %d %s", resp.StatusCode, string(msg))
	}

	var out struct {
		Session string `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("poll handshake decode: %w", err)
	}

	// The poll GET is held server-side for up to ~25s, so the read client
	// needs headroom beyond the connect timeout.
	return &pollTransport{
		base:    base,
		session: out.Session,
		client:  &http.Client{Timeout: 40 * time.Second},
	}, nil
}

func (t *pollTransport) read() (*Envelope, error) {
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return nil, errors.New("poll transport closed")
		}
		if len(t.buf) > 0 {
			env := t.buf[0]
			t.buf = t.buf[1:]
			t.mu.Unlock()
			return env, nil
		}
		t.mu.Unlock()

		resp, err := t.client.Get(t.base + "/poll/events?session=" + url.QueryEscape(t.session))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, fmt.Errorf("poll events: %d", resp.StatusCode)
		}
		var batch []*Envelope
		err = json.NewDecoder(resp.Body).Decode(&batch)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("poll events decode: %w", err)
		}

		t.mu.Lock()
		t.buf = append(t.buf, batch...)
		t.mu.Unlock()
	}
}

func (t *pollTransport) write(env *Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	resp, err := t.client.Post(
		t.base+"/poll/emit?session="+url.QueryEscape(t.session),
		"application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("poll emit: %d", resp.StatusCode)
	}
	return nil
}

func (t *pollTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	req, err := http.NewRequest(http.MethodDelete, t.base+"/poll?session="+url.QueryEscape(t.session), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// httpURL converts a ws(s) base URL back to http(s).
func httpURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}
