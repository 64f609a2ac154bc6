package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"testing"
	"time"

	"coin-digest/internal/app"
	"coin-digest/internal/config"

	"github.com/charmbracelet/ssh"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	gossh "golang.org/x/crypto/ssh"
)

func TestMainBootstrap(t *testing.T) {
	var options int
	restore := stubSSHDeps(&options)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
	if options != 4 {
		t.Fatalf("expected 4 server options, got %d", options)
	}
}

func TestFingerprintAllowed(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := gossh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("wrap key: %v", err)
	}
	fingerprint := gossh.FingerprintSHA256(key)

	if _, ok := fingerprintAllowed(map[string]struct{}{}, key); !ok {
		t.Fatal("empty allow list should accept any key")
	}
	if got, ok := fingerprintAllowed(map[string]struct{}{fingerprint: {}}, key); !ok || got != fingerprint {
		t.Fatalf("expected listed key to be accepted, got %q %v", got, ok)
	}
	if _, ok := fingerprintAllowed(map[string]struct{}{"SHA256:other": {}}, key); ok {
		t.Fatal("unlisted key should be rejected")
	}
}

func stubSSHDeps(options *int) func() {
	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origOpenStores := openStoresFunc
	origNewWishServer := newWishServerFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			AssetIDs:       []string{"bitcoin"},
			Currency:       "usd",
			Timezone:       "UTC",
			SSHPort:        2222,
			SSHHostKeyPath: ".ssh/test_key",
		}
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	openStoresFunc = func(context.Context, *config.Config, trace.Tracer) app.Stores { return app.Stores{} }
	newWishServerFunc = func(ops ...ssh.Option) (*ssh.Server, error) {
		*options = len(ops)
		return nil, nil
	}
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		openStoresFunc = origOpenStores
		newWishServerFunc = origNewWishServer
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
	}
}
