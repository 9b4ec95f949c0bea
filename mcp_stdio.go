package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/charles/api"
	"github.com/wricardo/charles/transport/mcp"
	"github.com/wricardo/charles/transport/websocket"
)

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:    "mcp",
		Aliases: []string{"stdio-mcp", "mcp-stdio"},
		Usage:   "run an MCP stdio server",
		Description: "The tools call a charles HTTP API. A server already answering at --api " +
			"(default: the configured server address) is reused; otherwise an internal one " +
			"is started on a random loopback port.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "base URL of a running charles server"},
		},
		Action: runStdioMCP,
	}
}

func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	// stdout carries the protocol
	logger := newLogger(s, os.Stderr)
	defer logger.Sync()

	baseURL := cmd.String("api")
	if baseURL == "" {
		baseURL = loopbackURL(s.Server.Addr())
	}

	if serverUp(baseURL) {
		logger.Info("using external API server", zap.String("url", baseURL))
	} else {
		logger.Info("no API server found, starting internal one", zap.String("tried", baseURL))

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		hub := websocket.NewHub(logger.Named("websocket"))
		go hub.Run(ctx)

		svc, manager, err := initializeServices(s, hub, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer manager.SaveAllSessions()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}
		internal := &http.Server{Handler: api.NewServer(svc, hub, logger.Named("api"))}
		go func() {
			if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("internal HTTP server error", zap.Error(err))
			}
		}()
		defer internal.Close()

		baseURL = "http://" + listener.Addr().String()
		logger.Info("internal HTTP server started", zap.String("url", baseURL))
	}

	client := mcp.NewClient(baseURL)
	if err := server.ServeStdio(client.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}
