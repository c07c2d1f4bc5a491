// Command toolbridge runs an MCP server that exposes local tools, resources
// and prompts over stdio or SSE, backed by the Anthropic Messages API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolbridge/toolbridge/builtin"
	"github.com/toolbridge/toolbridge/claude"
	"github.com/toolbridge/toolbridge/config"
	"github.com/toolbridge/toolbridge/logger"
	"github.com/toolbridge/toolbridge/mcp"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	transport := flag.String("transport", "", "transport to serve on (stdio or sse), overrides the config file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warning, error), overrides the config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Server.Transport = *transport
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Printf("%s %s\n", cfg.Server.Name, cfg.Server.Version)
		return
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	// On stdio the protocol owns stdout, so logs must go to stderr or a file.
	log, err := logger.Init(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	client, err := buildClient(cfg, log)
	if err != nil {
		return err
	}
	if client == nil {
		log.Warn("claude API key not configured, claude_conversation tool disabled")
	}

	bootstrap := func(sess *mcp.Session) error {
		opts := builtin.Options{Config: cfg}
		if client != nil {
			opts.Orchestrator = claude.NewOrchestrator(client, sess,
				claude.WithMaxIterations(cfg.Claude.MaxIterations),
				claude.WithOrchestratorLogger(log))
			opts.Conversations = claude.NewConversationStore()
		}
		return builtin.Register(sess, opts)
	}

	serverOptions := []mcp.ServerOption{
		mcp.WithServerLogger(log),
		mcp.WithServerLogLevelVar(logger.Level()),
		mcp.WithServerToolTimeout(cfg.ToolTimeout()),
		mcp.WithServerLoggingCapability(cfg.MCP.EnableLogging),
	}
	info := mcp.Info{Name: cfg.Server.Name, Version: cfg.Server.Version}

	switch cfg.Server.Transport {
	case "stdio":
		return serveStdio(cfg, info, bootstrap, serverOptions, log)
	case "sse":
		return serveSSE(cfg, info, bootstrap, serverOptions, log)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Server.Transport)
	}
}

func buildClient(cfg config.Config, log *slog.Logger) (*claude.Client, error) {
	if cfg.Claude.APIKey == "" {
		return nil, nil
	}

	options := []claude.ClientOption{
		claude.WithModel(cfg.Claude.Model),
		claude.WithMaxTokens(cfg.Claude.MaxTokens),
		claude.WithTemperature(cfg.Claude.Temperature),
		claude.WithHTTPClient(&http.Client{Timeout: cfg.ClaudeTimeout()}),
		claude.WithRateLimiter(claude.NewRateLimiter(cfg.Claude.RequestsPerMinute, cfg.Claude.TokensPerMinute)),
		claude.WithRetryPolicy(claude.RetryPolicy{
			MaxAttempts: cfg.Claude.MaxRetries,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		}),
		claude.WithClientLogger(log),
	}
	if cfg.Claude.BaseURL != "" {
		options = append(options, claude.WithBaseURL(cfg.Claude.BaseURL))
	}

	client, err := claude.NewClient(cfg.Claude.APIKey, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build claude client: %w", err)
	}
	return client, nil
}

func serveStdio(cfg config.Config, info mcp.Info, bootstrap func(*mcp.Session) error,
	options []mcp.ServerOption, log *slog.Logger,
) error {
	transport := mcp.NewStdIO(os.Stdin, os.Stdout)
	server := mcp.NewServer(info, transport, bootstrap, options...)

	log.Info("server starting",
		slog.String("transport", "stdio"),
		slog.String("version", cfg.Server.Version))

	served := make(chan struct{})
	go func() {
		server.Serve()
		close(served)
	}()

	select {
	case <-served:
	case sig := <-signals():
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func serveSSE(cfg config.Config, info mcp.Info, bootstrap func(*mcp.Session) error,
	options []mcp.ServerOption, log *slog.Logger,
) error {
	messageURL := fmt.Sprintf("http://%s/message", cfg.Server.HTTPAddr)
	transport := mcp.NewSSEServer(messageURL)
	server := mcp.NewServer(info, transport, bootstrap, options...)

	mux := http.NewServeMux()
	mux.Handle("/sse", transport.HandleSSE())
	mux.Handle("/message", transport.HandleMessage())

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go server.Serve()

	errs := make(chan error, 1)
	go func() {
		log.Info("server starting",
			slog.String("transport", "sse"),
			slog.String("addr", cfg.Server.HTTPAddr),
			slog.String("version", cfg.Server.Version))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("http server error: %w", err)
	case sig := <-signals():
		log.Info("received signal, shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("protocol shutdown failed", slog.String("error", err.Error()))
	}
	return httpServer.Shutdown(ctx)
}

func signals() chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}
