package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/coder/websocket"

	"github.com/vovakirdan/wirechat/internal/auth"
	"github.com/vovakirdan/wirechat/internal/config"
	"github.com/vovakirdan/wirechat/internal/proto"
)

func secureConfig() config.Config {
	cfg := testConfig()
	cfg.JWTSecret = "test-secret"
	cfg.JWTRequired = true
	return cfg
}

func makeToken(t *testing.T, cfg config.Config, clientID string) string {
	t.Helper()
	token, err := auth.GenerateToken(jwtConfigFrom(&cfg), clientID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func TestWebSocketJWTRequired(t *testing.T) {
	cfg := secureConfig()
	ts := startTestServer(t, cfg)
	ctx := testContext(t)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, ts.wsURL(""), nil)
		if err == nil {
			t.Fatal("expected dial without token to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %+v", resp)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, ts.wsURL("token=garbage"), nil)
		if err == nil {
			t.Fatal("expected dial with invalid token to fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %+v", resp)
		}
	})

	t.Run("valid token in header", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+makeToken(t, cfg, "alice"))
		conn, _, err := websocket.Dial(ctx, ts.wsURL("clientId=mallory"), &websocket.DialOptions{HTTPHeader: header})
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")

		request(t, ctx, conn, &proto.Frame{Action: proto.ActionAttach, ID: "1", Channel: "general"})
		ack := request(t, ctx, conn, &proto.Frame{
			Action:   proto.ActionMessage,
			ID:       "2",
			Channel:  "general",
			Messages: []proto.Message{{Name: "chat.message"}},
		})
		if ack.Action != proto.ActionAck || len(ack.Messages) != 1 {
			t.Fatalf("expected ack, got %+v", ack)
		}
		// The token identity wins over the query parameter.
		if got := ack.Messages[0].ClientID; got != "alice" {
			t.Fatalf("expected client id alice, got %q", got)
		}
	})

	t.Run("valid token in query", func(t *testing.T) {
		conn := dial(t, ctx, ts.wsURL("token="+makeToken(t, cfg, "bob")))
		reply := request(t, ctx, conn, &proto.Frame{Action: proto.ActionAttach, ID: "1", Channel: "general"})
		if reply.Action != proto.ActionAttached {
			t.Fatalf("expected attached, got %+v", reply)
		}
	})
}

func TestTokenRefresh(t *testing.T) {
	cfg := secureConfig()
	ts := startTestServer(t, cfg)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/tokens", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+makeToken(t, cfg, "alice"))
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ClientID != "alice" {
		t.Fatalf("expected client id alice, got %q", body.ClientID)
	}
	claims, err := auth.ValidateToken(jwtConfigFrom(&cfg), body.Token)
	if err != nil {
		t.Fatalf("refreshed token invalid: %v", err)
	}
	if claims.ClientID != "alice" {
		t.Fatalf("expected claims for alice, got %q", claims.ClientID)
	}
}

func TestTokenRefreshRequiresAuth(t *testing.T) {
	ts := startTestServer(t, secureConfig())

	resp, err := ts.Client().Post(ts.URL+"/api/tokens", "application/json", nil)
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestTokenEndpointDisabledWithoutSecret(t *testing.T) {
	ts := startTestServer(t, testConfig())

	resp, err := ts.Client().Post(ts.URL+"/api/tokens", "application/json", nil)
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
