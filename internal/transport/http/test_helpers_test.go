package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vovakirdan/wirechat/internal/config"
	"github.com/vovakirdan/wirechat/internal/core"
	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/metrics"
	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/store"
	"github.com/vovakirdan/wirechat/internal/store/sqlite"
)

type testServer struct {
	*httptest.Server
	hub   *core.Hub
	store store.Store
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	return cfg
}

// startTestServer runs a hub with an in-memory store behind an httptest server.
func startTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	hub := core.NewHub(core.Options{Store: st, Metrics: metrics.New(reg)})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, st, &cfg, wlog.Nop(), reg)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, hub: hub, store: st}
}

func (ts *testServer) wsURL(query string) string {
	u := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(*proto.Frame) bool) *proto.Frame {
	t.Helper()
	for {
		var f proto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if match(&f) {
			return &f
		}
	}
}

func request(t *testing.T, ctx context.Context, conn *websocket.Conn, f *proto.Frame) *proto.Frame {
	t.Helper()
	if err := wsjson.Write(ctx, conn, f); err != nil {
		t.Fatalf("write %s: %v", f.Action, err)
	}
	return readUntil(t, ctx, conn, func(r *proto.Frame) bool { return r.ID == f.ID })
}
