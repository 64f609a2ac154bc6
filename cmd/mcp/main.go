// Command mcp serves the digest pipeline as Model Context Protocol tools.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"coin-digest/internal/app"
	"coin-digest/internal/config"
	"coin-digest/internal/digest"
	"coin-digest/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverVersion = "1.0.0"

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initTracerFunc       = tracing.InitTracer
	openStoresFunc       = app.OpenStores
	newDigestServiceFunc = app.NewDigestService
	runStdioFunc         = func(ctx context.Context, server *mcp.Server) error {
		return server.Run(ctx, &mcp.StdioTransport{})
	}
	listenAndServeFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := loadEnvFunc(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	// stdout carries the protocol in stdio mode.
	log.SetOutput(os.Stderr)

	cfg := loadConfigFunc()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	stores := openStoresFunc(ctx, cfg, tracer)
	defer stores.Close()

	svc, err := newDigestServiceFunc(cfg, tracer, stores, nil, digest.PlainMarkup{})
	if err != nil {
		log.Fatalf("failed to build digest service: %v", err)
	}

	tools := &digestTools{digest: svc}
	if stores.Deliveries != nil {
		tools.deliveries = stores.Deliveries
	}
	server := newServer(tools)

	if err := serve(ctx, cfg, server); err != nil {
		log.Fatalf("mcp server: %v", err)
	}
}

func newServer(tools *digestTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "coin-digest", Version: serverVersion}, nil)
	tools.register(server)
	return server
}

func serve(ctx context.Context, cfg *config.Config, server *mcp.Server) error {
	if cfg.MCPTransport != "http" {
		return runStdioFunc(ctx, server)
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.MCPHTTPBind, strconv.Itoa(cfg.MCPHTTPPort)),
		Handler: handler,
	}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("mcp http shutdown: %v", err)
		}
	}()

	log.Printf("MCP streamable HTTP listening on %s", srv.Addr)
	if err := listenAndServeFunc(srv); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
