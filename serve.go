package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/charles/api"
	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
	"github.com/wricardo/charles/game/session"
	"github.com/wricardo/charles/game/worlds"
	"github.com/wricardo/charles/settings"
	"github.com/wricardo/charles/transport/mcp"
	"github.com/wricardo/charles/transport/websocket"
)

// How often in-memory sessions are checked against their persisted copy
const pruneInterval = 5 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP server with REST API, WebSocket and MCP endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Usage: "HTTP server port"},
			&cli.StringFlag{Name: "worlds-dir", Usage: "directory of .world files"},
			&cli.StringFlag{Name: "sessions-dir", Usage: "directory for persisted sessions"},
			&cli.StringFlag{Name: "redis-addr", Usage: "store sessions in Redis at this address instead of files"},
			&cli.BoolFlag{Name: "ngrok", Usage: "expose the server through an ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
		},
		Action: serve,
	}
}

// applyServeFlags copies explicitly set flags over the loaded settings
func applyServeFlags(cmd *cli.Command, s *settings.Settings) {
	if cmd.IsSet("host") {
		s.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("worlds-dir") {
		s.Worlds.Dir = cmd.String("worlds-dir")
	}
	if cmd.IsSet("sessions-dir") {
		s.Sessions.Dir = cmd.String("sessions-dir")
	}
	if cmd.IsSet("redis-addr") {
		s.Redis.Addr = cmd.String("redis-addr")
	}
	if cmd.IsSet("ngrok") {
		s.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-domain") {
		s.Ngrok.Domain = cmd.String("ngrok-domain")
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, s)
	logger := newLogger(s, os.Stderr)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(logger.Named("websocket"))
	go hub.Run(ctx)

	svc, manager, err := initializeServices(s, hub, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	addr := s.Server.Addr()
	router := newRouter(svc, hub, loopbackURL(addr), logger)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.Server.ReadTimeout,
		WriteTimeout: s.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	var workers errgroup.Group
	workers.Go(func() error {
		manager.RunCleanup(ctx, s.Sessions.CleanupInterval, s.Sessions.MaxAge)
		return nil
	})
	workers.Go(func() error {
		manager.RunPruning(ctx, pruneInterval)
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			zap.String("addr", addr),
			zap.String("api", "http://"+addr+"/api"),
			zap.String("websocket", "ws://"+addr+"/ws?session=<session_id>"),
			zap.String("mcp", "http://"+addr+"/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if s.Ngrok.Enabled {
		workers.Go(func() error {
			runNgrok(ctx, s.Ngrok, router, logger.Named("ngrok"))
			return nil
		})
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		result = fmt.Errorf("HTTP server failed: %w", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	if err := manager.SaveAllSessions(); err != nil {
		logger.Warn("failed to save sessions on shutdown", zap.Error(err))
	}

	workers.Wait()
	logger.Info("server stopped")
	return result
}

// simulationOptions configures every simulation the server creates
func simulationOptions(s *settings.Settings, logger *zap.Logger) []engine.Option {
	return []engine.Option{
		engine.WithSize(s.Worlds.Width, s.Worlds.Height),
		engine.WithStepDelay(time.Duration(s.Robot.StepDelayMs) * time.Millisecond),
		engine.WithLogger(logger.Named("engine")),
	}
}

// newPersistence picks Redis when an address is configured, files otherwise
func newPersistence(s *settings.Settings, simOpts []engine.Option) (session.SessionPersistence, error) {
	if s.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		p, err := session.NewRedisPersistence(client,
			session.WithRedisPrefix(s.Redis.Prefix),
			session.WithRedisTTL(s.Redis.TTL),
			session.WithRedisSimulationOptions(simOpts...))
		if err != nil {
			client.Close()
			return nil, err
		}
		return p, nil
	}
	return session.NewFilePersistence(s.Sessions.Dir, simOpts...)
}

// initializeServices wires the worlds catalogue, session storage and the
// world service. hub may be nil.
func initializeServices(s *settings.Settings, hub *websocket.Hub, logger *zap.Logger) (service.WorldService, *session.Manager, error) {
	if err := os.MkdirAll(s.Worlds.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create worlds directory: %w", err)
	}
	catalog, err := worlds.NewManager(s.Worlds.Dir, s.Worlds.Width, s.Worlds.Height)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create worlds manager: %w", err)
	}

	simOpts := simulationOptions(s, logger)
	persistence, err := newPersistence(s, simOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	opts := []session.Option{
		session.WithPersistence(persistence),
		session.WithSimulationOptions(simOpts...),
		session.WithLogger(logger.Named("session")),
	}
	if hub != nil {
		opts = append(opts, session.WithRendererFactory(hub.Renderer))
	}
	manager := session.NewManager(opts...)
	if err := manager.LoadPersistedSessions(); err != nil {
		logger.Warn("failed to load persisted sessions", zap.Error(err))
	}

	svc := service.NewWorldService(manager, catalog,
		service.WithLogger(logger.Named("service")),
		service.WithMaxActions(s.Robot.MaxActions))
	return svc, manager, nil
}

// newRouter mounts the REST API at / and the MCP JSON-RPC endpoint at /mcp.
// The MCP tools call the API at baseURL.
func newRouter(svc service.WorldService, hub *websocket.Hub, baseURL string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(svc, hub, logger.Named("api")))
	mux.Handle("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mux
}

func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)
		data, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

// loopbackURL turns a listen address into a URL this process can dial.
// Wildcard hosts become 127.0.0.1.
func loopbackURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func runNgrok(ctx context.Context, cfg settings.NgrokSettings, handler http.Handler, logger *zap.Logger) {
	if cfg.AuthToken == "" {
		logger.Warn("ngrok enabled but no auth token set (ngrok.authtoken, CHARLES_NGROK_AUTHTOKEN or NGROK_AUTHTOKEN)")
		return
	}

	endpoint := ngrokconfig.HTTPEndpoint()
	if cfg.Domain != "" {
		endpoint = ngrokconfig.HTTPEndpoint(ngrokconfig.WithDomain(cfg.Domain))
	}

	tun, err := ngrok.Listen(ctx, endpoint, ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}
	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			logger.Warn("failed to close ngrok tunnel", zap.Error(err))
		}
	}()

	url := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", url),
		zap.String("api", url+"/api"),
		zap.String("mcp", url+"/mcp"))

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Warn("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// serverUp reports whether a charles server answers at baseURL
func serverUp(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
