package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat/internal/app"
	"github.com/vovakirdan/wirechat/internal/auth"
	"github.com/vovakirdan/wirechat/internal/chat"
	"github.com/vovakirdan/wirechat/internal/config"
	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/realtime"
	"github.com/vovakirdan/wirechat/internal/transport/ws"
)

var configPath string

// loadConfig resolves configuration and applies flag overrides on top of it.
func loadConfig(overrides config.Config) (*config.Config, error) {
	bootLog := wlog.New("info")
	cfg, path, err := config.Load(bootLog, configPath)
	if err != nil {
		return nil, err
	}
	cfg.UpdateFrom(overrides)
	bootLog.Debug().Str("path", path).Msg("config loaded")
	return &cfg, nil
}

func buildServeCmd() *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(overrides)
			if err != nil {
				return err
			}
			logger := wlog.New(cfg.LogLevel)

			application, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting wirechat server")
			if err := application.Run(cmd.Context()); err != nil {
				return fmt.Errorf("server exited: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	cmd.Flags().DurationVar(&overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().BoolVar(&overrides.JWTRequired, "jwt-required", false, "reject WebSocket clients without a token")

	return cmd
}

func buildTokenCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a client token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			token, err := auth.GenerateToken(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.TokenTTL,
			}, clientID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "client identity to embed in the token")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

type checkOptions struct {
	url      string
	room     string
	token    string
	clientID string
	text     string
	timeout  time.Duration
}

func buildCheckCmd() *cobra.Command {
	opts := checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Attach to a room, enter presence, send a message and release",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runCheck(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "WebSocket endpoint")
	cmd.Flags().StringVar(&opts.room, "room", "lobby", "room id")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "wirechat-check", "client id when tokens are not required")
	cmd.Flags().StringVar(&opts.text, "text", "ping", "message text")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts checkOptions) error {
	logger := wlog.New(cfg.LogLevel)
	out := cmd.OutOrStdout()

	transport, err := ws.Dial(ctx, opts.url, ws.DialOptions{Token: opts.token, ClientID: opts.clientID, Logger: logger})
	if err != nil {
		return err
	}
	conn := realtime.NewConnection(transport, opts.clientID, logger)
	defer conn.Close()

	rooms := chat.NewRooms(conn, chat.LifecycleOptions{
		AttachTimeout: cfg.Room.AttachTimeout,
		DetachTimeout: cfg.Room.DetachTimeout,
		Logger:        logger,
	})
	room, err := rooms.Get(ctx, opts.room, chat.AllFeaturesEnabled)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), cfg.Room.DetachTimeout)
		defer cancel()
		if err := rooms.Release(releaseCtx, opts.room); err != nil {
			logger.Warn().Err(err).Str("room", opts.room).Msg("release room")
		}
	}()

	if err := room.Attach(ctx); err != nil {
		return fmt.Errorf("attach room: %w", err)
	}
	fmt.Fprintf(out, "room %s: %s\n", opts.room, room.Status())

	presence, err := room.Presence()
	if err != nil {
		return err
	}
	if err := presence.Enter(ctx, json.RawMessage(`{"check":true}`)); err != nil {
		return fmt.Errorf("enter presence: %w", err)
	}
	members, err := presence.Get(ctx)
	if err != nil {
		return fmt.Errorf("get presence: %w", err)
	}
	fmt.Fprintf(out, "presence: %d member(s)\n", len(members))

	msg, err := room.Messages().Send(ctx, chat.SendMessageParams{Text: opts.text})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Fprintf(out, "sent message %s at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
	return nil
}
