package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/vovakirdan/wirechat/internal/proto"
)

func TestListMessages(t *testing.T) {
	ts := startTestServer(t, testConfig())
	ctx := testContext(t)
	conn := dial(t, ctx, ts.wsURL("clientId=alice"))

	for i := range 3 {
		reply := request(t, ctx, conn, &proto.Frame{
			Action:   proto.ActionMessage,
			ID:       fmt.Sprintf("m%d", i),
			Channel:  "history",
			Messages: []proto.Message{{Name: "chat.message", Data: json.RawMessage(fmt.Sprintf(`{"text":"msg %d"}`, i))}},
		})
		if reply.Action != proto.ActionAck {
			t.Fatalf("publish %d: %+v", i, reply)
		}
	}

	resp, err := ts.Client().Get(ts.URL + "/api/channels/history/messages?limit=2")
	if err != nil {
		t.Fatalf("list request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body MessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Channel != "history" || len(body.Messages) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if string(body.Messages[0].Data) != `{"text":"msg 1"}` || string(body.Messages[1].Data) != `{"text":"msg 2"}` {
		t.Fatalf("expected the two newest messages oldest first, got %+v", body.Messages)
	}
	if body.Messages[1].ClientID != "alice" {
		t.Fatalf("unexpected client id %q", body.Messages[1].ClientID)
	}
}

func TestListMessagesBadLimit(t *testing.T) {
	ts := startTestServer(t, testConfig())

	for _, limit := range []string{"0", "-1", "abc"} {
		resp, err := ts.Client().Get(ts.URL + "/api/channels/general/messages?limit=" + limit)
		if err != nil {
			t.Fatalf("list request: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit %q: expected 400, got %d", limit, resp.StatusCode)
		}
	}
}
