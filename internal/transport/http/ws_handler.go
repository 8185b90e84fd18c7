package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/auth"
	"github.com/vovakirdan/wirechat/internal/config"
	"github.com/vovakirdan/wirechat/internal/core"
	"github.com/vovakirdan/wirechat/internal/proto"
	"github.com/vovakirdan/wirechat/internal/utils"
)

// Error codes returned by the WebSocket endpoint.
const (
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnsupportedVersion = "unsupported_version"
	ErrCodeRateLimited        = "rate_limited"
)

// WSHandler upgrades HTTP connections and bridges them to a core.Client.
type WSHandler struct {
	hub *core.Hub
	cfg *config.Config
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, jwt: jwtConfigFrom(cfg), log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if v := r.URL.Query().Get("v"); v != "" && v != strconv.Itoa(proto.ProtocolVersion) {
		writeJSONError(w, stdhttp.StatusBadRequest, ErrCodeUnsupportedVersion)
		return
	}

	clientID, err := h.authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		writeJSONError(w, stdhttp.StatusUnauthorized, ErrCodeUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), clientID, h.cfg.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("conn_id", client.ID).Str("client_id", clientID).Msg("ws connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// authenticate resolves the client identity. A token is mandatory when JWTRequired is set;
// otherwise an optional clientId query parameter is used, or a random identity.
func (h *WSHandler) authenticate(r *stdhttp.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = bearerToken(r.Header.Get("Authorization"))
	}

	if token != "" || h.cfg.JWTRequired {
		if h.jwt == nil {
			return "", errors.New("jwt secret not configured")
		}
		if token == "" {
			return "", errors.New("missing token")
		}
		claims, err := auth.ValidateToken(h.jwt, token)
		if err != nil {
			return "", err
		}
		return claims.ClientID, nil
	}

	if id := r.URL.Query().Get("clientId"); id != "" {
		return id, nil
	}
	return utils.NewID(), nil
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.RateLimit)
	for {
		var inbound proto.Frame
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws frame")
			return err
		}

		reply, err := h.handle(ctx, client, &inbound, limiter)
		if err != nil {
			return err
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

func (h *WSHandler) handle(ctx context.Context, client *core.Client, f *proto.Frame, limiter *rateLimiter) (*proto.Frame, error) {
	if protoErr := validateInbound(f); protoErr != nil {
		return &proto.Frame{Action: proto.ActionNack, ID: f.ID, Channel: f.Channel, Error: protoErr}, nil
	}
	if rateLimited(f.Action) && !limiter.allow() {
		h.log.Warn().Str("conn_id", client.ID).Str("client_id", client.ClientID).Msg("rate limit exceeded")
		return &proto.Frame{
			Action:  proto.ActionNack,
			ID:      f.ID,
			Channel: f.Channel,
			Error:   &proto.Error{Code: ErrCodeRateLimited, Msg: "too many requests"},
		}, nil
	}
	return h.hub.Handle(ctx, client, f)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case frame, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws frame")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSONError(w stdhttp.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `"}`))
}
