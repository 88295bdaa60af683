// ABOUTME: Gateway orchestrator that serves the REST and SSE surface over HTTP or Tailscale
// ABOUTME: Owns the listener lifecycle, health endpoints and shutdown of the conversation stack

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/cool-squad/internal/autonomous"
	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/budget"
	"github.com/2389/cool-squad/internal/config"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/metrics"
	"github.com/2389/cool-squad/internal/router"
	"github.com/2389/cool-squad/internal/store"
)

// Deps are the components the gateway serves. Budget, Store and Thinker
// are optional.
type Deps struct {
	Conversations *conversation.Store
	Router        *router.Router
	Roster        *bot.Roster
	Budget        *budget.Tracker
	Store         store.Store
	Thinker       *autonomous.Thinker
}

// Gateway serves the cool-squad HTTP API.
type Gateway struct {
	config      *config.Config
	conv        *conversation.Store
	router      *router.Router
	roster      *bot.Roster
	budget      *budget.Tracker
	store       store.Store
	thinker     *autonomous.Thinker
	limiter     *authorLimiter
	mux         *http.ServeMux
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
}

// NewWithDeps creates a gateway around already constructed components.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		config:  cfg,
		conv:    deps.Conversations,
		router:  deps.Router,
		roster:  deps.Roster,
		budget:  deps.Budget,
		store:   deps.Store,
		thinker: deps.Thinker,
		limiter: newAuthorLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		mux:     http.NewServeMux(),
		logger:  logger.With("component", "gateway"),
	}
	g.registerRoutes()

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

// Handler returns the HTTP handler with every route registered.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

func (g *Gateway) registerRoutes() {
	g.mux.HandleFunc("GET /health", g.handleHealth)
	g.mux.HandleFunc("GET /health/ready", g.handleReady)
	if g.config.Metrics.Enabled {
		g.mux.Handle("GET "+g.config.Metrics.Path, metrics.Handler())
	}

	g.mux.HandleFunc("GET /api/channels", g.handleListChannels)
	g.mux.HandleFunc("GET /api/channels/{name}", g.handleGetChannel)
	g.mux.HandleFunc("POST /api/channels/{name}/messages", g.handlePostChannelMessage)
	g.mux.HandleFunc("GET /api/channels/{name}/bots", g.handleChannelBots)
	g.mux.HandleFunc("POST /api/channels/{name}/bots", g.handleAddChannelBot)
	g.mux.HandleFunc("DELETE /api/channels/{name}/bots/{bot}", g.handleRemoveChannelBot)

	g.mux.HandleFunc("GET /api/boards", g.handleListBoards)
	g.mux.HandleFunc("POST /api/boards", g.handleCreateBoard)
	g.mux.HandleFunc("GET /api/boards/{board}", g.handleBoardThreads)
	g.mux.HandleFunc("POST /api/boards/{board}/threads", g.handleCreateThread)
	g.mux.HandleFunc("GET /api/boards/{board}/threads/{thread}", g.handleGetThread)
	g.mux.HandleFunc("POST /api/boards/{board}/threads/{thread}/messages", g.handlePostThreadMessage)
	g.mux.HandleFunc("POST /api/boards/{board}/threads/{thread}/pin", g.handlePinThread)
	g.mux.HandleFunc("POST /api/boards/{board}/threads/{thread}/tags", g.handleTagThread)

	g.mux.HandleFunc("GET /api/bots", g.handleListBots)
	g.mux.HandleFunc("GET /api/bots/{bot}", g.handleGetBot)
	g.mux.HandleFunc("GET /api/bots/{bot}/monologue", g.handleGetMonologue)
	g.mux.HandleFunc("PATCH /api/bots/{bot}/monologue", g.handleUpdateMonologue)
	g.mux.HandleFunc("POST /api/bots/{bot}/monologue/thoughts", g.handleAddThought)
	g.mux.HandleFunc("DELETE /api/bots/{bot}/monologue/thoughts", g.handleClearThoughts)
	g.mux.HandleFunc("DELETE /api/bots/{bot}/monologue/tools", g.handleClearToolConsiderations)

	g.mux.HandleFunc("GET /api/budget", g.handleBudgetReport)
	g.mux.HandleFunc("PUT /api/budget/{provider}", g.handleSetLimit)
	g.mux.HandleFunc("PUT /api/budget/{provider}/{model}", g.handleSetLimit)
	g.mux.HandleFunc("DELETE /api/budget/{provider}", g.handleDeleteLimit)
	g.mux.HandleFunc("DELETE /api/budget/{provider}/{model}", g.handleDeleteLimit)

	g.mux.HandleFunc("GET /sse/channels/{name}", g.handleChannelStream)
	g.mux.HandleFunc("GET /sse/boards/{board}", g.handleBoardStream)
}

func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	if g.thinker != nil {
		g.thinker.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cool-squad", "tailscale"), nil
}

func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		return g.createFunnelListener()
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		tlsLn, err := g.newTLSListener(ln)
		if err != nil {
			_ = ln.Close()
			_ = g.tsnetServer.Close()
			return nil, err
		}
		return tlsLn, nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createFunnelListener exposes the API publicly over HTTPS with Tailscale certs.
func (g *Gateway) createFunnelListener() (net.Listener, error) {
	g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
	ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
	}
	return ln, nil
}

// newTLSListener wraps ln with certificates served by the local tailscale node.
func (g *Gateway) newTLSListener(ln net.Listener) (net.Listener, error) {
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, waits for bot runs and autonomous cycles,
// then closes streams and storage.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.thinker != nil {
		g.thinker.Wait()
	}
	if g.router != nil {
		g.router.Close()
	}
	if g.conv != nil {
		g.conv.Broadcaster().Close()
	}
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once at least one bot is loaded.
func (g *Gateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	bots := g.roster.Names()
	if len(bots) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no bots loaded"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d bots)", len(bots))
}
