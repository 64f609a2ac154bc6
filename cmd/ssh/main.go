// Command ssh serves an interactive digest preview over SSH.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"coin-digest/internal/app"
	"coin-digest/internal/config"
	"coin-digest/internal/digest"
	"coin-digest/internal/tui"
	"coin-digest/pkg/tracing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	initTracerFunc       = tracing.InitTracer
	openStoresFunc       = app.OpenStores
	newDigestServiceFunc = app.NewDigestService
	newWishServerFunc    = wish.NewServer
	setupSignalNotify    = ossignal.Notify
	waitForSignalFunc    = func(quit <-chan os.Signal) { <-quit }
)

func main() {
	if err := loadEnvFunc(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	if len(cfg.SSHAuthorizedFingerprints) == 0 {
		log.Println("Warning: SSH_AUTHORIZED_FINGERPRINTS not set, any public key is accepted")
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.SSHPort)
	srv, err := newWishServerFunc(
		wish.WithAddress(addr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(keyAuth(cfg.SSHAuthorizedFingerprints)),
		wish.WithMiddleware(
			bubbletea.Middleware(sessionHandler(cfg, tracer, stores)),
			logging.Middleware(),
		),
	)
	if err != nil {
		log.Fatalf("failed to create SSH server: %v", err)
	}

	if srv != nil {
		go func() {
			log.Printf("SSH server listening on %s", addr)
			if err := srv.ListenAndServe(); err != nil && err != ssh.ErrServerClosed {
				log.Printf("SSH server stopped: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down SSH server...")

	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("SSH server shutdown error: %v", err)
		}
	}

	log.Println("SSH server exited")
}

// keyAuth accepts keys whose SHA256 fingerprint is listed. An empty list accepts any key.
func keyAuth(allowed []string) func(ssh.Context, ssh.PublicKey) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, fp := range allowed {
		set[fp] = struct{}{}
	}
	return func(ctx ssh.Context, key ssh.PublicKey) bool {
		fingerprint, ok := fingerprintAllowed(set, key)
		if !ok {
			log.Printf("SSH auth denied: user=%s fingerprint=%s", ctx.User(), fingerprint)
			return false
		}
		log.Printf("SSH auth accepted: user=%s fingerprint=%s", ctx.User(), fingerprint)
		return true
	}
}

func fingerprintAllowed(set map[string]struct{}, key gossh.PublicKey) (string, bool) {
	fingerprint := gossh.FingerprintSHA256(key)
	if len(set) == 0 {
		return fingerprint, true
	}
	_, ok := set[fingerprint]
	return fingerprint, ok
}

// sessionHandler builds a digest view per session, styled for the client's terminal.
func sessionHandler(cfg *config.Config, tracer trace.Tracer, stores app.Stores) bubbletea.Handler {
	return func(s ssh.Session) (tea.Model, []tea.ProgramOption) {
		markup := digest.NewTerminalMarkupFor(bubbletea.MakeRenderer(s))
		svc, err := newDigestServiceFunc(cfg, tracer, stores, nil, markup)
		if err != nil {
			wish.Fatalln(s, "digest unavailable:", err)
			return nil, nil
		}

		model := tui.NewDigestModel(svc, s.User())
		if pty, _, ok := s.Pty(); ok {
			model.SetSize(pty.Window.Width, pty.Window.Height)
		}
		return model, []tea.ProgramOption{tea.WithAltScreen()}
	}
}
