package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/chatrelay/internal/accounts"
	"github.com/Tyrowin/chatrelay/internal/auth"
	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/config"
	"github.com/Tyrowin/chatrelay/internal/delivery"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/metrics"
	"github.com/Tyrowin/chatrelay/internal/presence"
	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/registry"
	"github.com/Tyrowin/chatrelay/internal/store/memory"
)

const (
	testOrigin  = "http://localhost:8080"
	readTimeout = 3 * time.Second
)

type testEnv struct {
	t        *testing.T
	srv      *Server
	ts       *httptest.Server
	registry *registry.Registry
	store    *memory.Store
	accounts *accounts.Service
	tokens   *auth.Issuer
}

// newTestEnv starts a full server over the memory store. mutate may adjust
// the configuration before the server is built.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimit.Burst = 1000
	cfg.HTTPRateLimit.RPS = 1000
	cfg.HTTPRateLimit.Burst = 1000
	if mutate != nil {
		mutate(&cfg)
	}

	logger := logging.Nop()
	m := metrics.New()
	reg := registry.New(logger, m)
	st := memory.New(chat.NewClock())
	coord := delivery.New(st.Messages(), reg, delivery.Config{DedupWindow: cfg.DedupWindow}, logger, m)
	pres := presence.New(reg, logger, m)
	tokens := auth.NewIssuer([]byte("test-secret"), time.Hour)
	acc := accounts.NewService(st.Users(), tokens, reg).WithCost(bcrypt.MinCost)

	srv := New(cfg, Deps{
		Registry:    reg,
		Coordinator: coord,
		Presence:    pres,
		Accounts:    acc,
		Messages:    st.Messages(),
		Tokens:      tokens,
		Logger:      logger,
		Metrics:     m,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	go pres.Run(ctx)
	srv.StartHub()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
		cancel()
	})

	return &testEnv{t: t, srv: srv, ts: ts, registry: reg, store: st, accounts: acc, tokens: tokens}
}

// signup creates a user and returns it with a valid token.
func (e *testEnv) signup(name string) (chat.User, string) {
	e.t.Helper()

	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
	u, err := e.accounts.Signup(context.Background(), name, email, "password123")
	require.NoError(e.t, err)

	token, err := e.tokens.Issue(u.ID)
	require.NoError(e.t, err)
	return u, token
}

func (e *testEnv) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
}

// dial opens a channel with the test origin.
func (e *testEnv) dial(token string) *websocket.Conn {
	e.t.Helper()

	conn, resp, err := e.dialWithOrigin(token, testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) dialWithOrigin(token, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(e.wsURL(token), headers)
}

// connect dials, registers and waits until the presence update includes
// the user, so the connection is reachable when it returns.
func (e *testEnv) connect(user chat.User, token string) *websocket.Conn {
	e.t.Helper()

	conn := e.dial(token)
	writeFrame(e.t, conn, protocol.Inbound{Type: protocol.TypeRegister, UserID: user.ID})
	readUntil(e.t, conn, func(f protocol.Outbound) bool {
		return f.Type == protocol.TypePresenceUpdate && slices.Contains(f.Online, user.ID)
	})
	return conn
}

// do sends an API request with an optional bearer token and JSON body.
func (e *testEnv) do(method, path, token string, body any) *http.Response {
	e.t.Helper()

	var r io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, r)
	require.NoError(e.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func writeFrame(t *testing.T, conn *websocket.Conn, in protocol.Inbound) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(in))
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var f protocol.Outbound
	require.NoError(t, json.Unmarshal(raw, &f), "frame %s", raw)
	return f
}

// readUntil skips frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Outbound) bool) protocol.Outbound {
	t.Helper()

	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if match(f) {
			return f
		}
	}
	t.Fatalf("no matching frame within %s", readTimeout)
	return protocol.Outbound{}
}

func ofType(typ string) func(protocol.Outbound) bool {
	return func(f protocol.Outbound) bool { return f.Type == typ }
}
