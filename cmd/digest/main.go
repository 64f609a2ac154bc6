// Command digest runs one fetch, compose and deliver cycle and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"coin-digest/internal/app"
	"coin-digest/internal/config"
	"coin-digest/internal/digest"
	"coin-digest/pkg/tracing"

	"github.com/joho/godotenv"
)

const runTimeout = 2 * time.Minute

var (
	loadEnvFunc                    = godotenv.Load
	loadConfigFunc                 = config.Load
	initTracerFunc                 = tracing.InitTracer
	openStoresFunc                 = app.OpenStores
	newSinkFunc                    = app.NewSink
	newDigestServiceFunc           = app.NewDigestService
	stdout               io.Writer = os.Stdout
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("digest failed: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "print the digest to the terminal instead of sending it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := loadEnvFunc(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := loadConfigFunc()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	stores := openStoresFunc(ctx, cfg, tracer)
	defer stores.Close()

	if *dryRun {
		svc, err := newDigestServiceFunc(cfg, tracer, stores, nil, digest.NewTerminalMarkup())
		if err != nil {
			return err
		}
		rec, text, err := svc.DryRun(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, text)
		log.Printf("run %s: %s, %d chars", rec.RunID, rec.Status, rec.MessageChars)
		return nil
	}

	svc, err := newDigestServiceFunc(cfg, tracer, stores, newSinkFunc(cfg), nil)
	if err != nil {
		return err
	}
	rec, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("run %s: %s, %d chars", rec.RunID, rec.Status, rec.MessageChars)
	return nil
}
