package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fmuoria/voice-interview-agent/internal/api"
	"github.com/fmuoria/voice-interview-agent/internal/archive"
	"github.com/fmuoria/voice-interview-agent/internal/config"
	"github.com/fmuoria/voice-interview-agent/internal/feedback"
	"github.com/fmuoria/voice-interview-agent/internal/interviews"
	"github.com/fmuoria/voice-interview-agent/internal/llm"
	"github.com/fmuoria/voice-interview-agent/internal/log"
	"github.com/fmuoria/voice-interview-agent/internal/notify"
	"github.com/fmuoria/voice-interview-agent/internal/session"
	"github.com/fmuoria/voice-interview-agent/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config.json (default: user config dir)")
	gmailAuth := flag.Bool("gmail-auth", false, "authorize Gmail sending and save the token, then exit")
	flag.Parse()

	if err := run(*configPath, *gmailAuth); err != nil {
		log.Error("voice interview agent stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, gmailAuth bool) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if gmailAuth {
		return notify.Authorize(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath, os.Stdin, os.Stdout)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg.ApplyToEnv()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := llm.New(ctx, llm.Options{
		Backend:   cfg.LLMBackend,
		Model:     cfg.LLMModel,
		ProjectID: cfg.GoogleCloudProject,
		Location:  cfg.GoogleCloudLocation,
		APIKey:    cfg.GeminiAPIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	var opts []feedback.Option
	if cfg.Archive.Enabled() {
		arc, err := archive.NewS3Archive(archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Bucket:    cfg.Archive.Bucket,
			UseSSL:    cfg.Archive.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("failed to create transcript archive: %w", err)
		}
		opts = append(opts, feedback.WithArchiver(arc))
		log.Info("transcript archive enabled", "endpoint", cfg.Archive.Endpoint, "bucket", cfg.Archive.Bucket)
	}

	reconciler := feedback.NewReconciler(st, 0)
	if cfg.ReconcileInterval > 0 {
		go reconciler.Loop(ctx, cfg.ReconcileInterval)
	}

	server := api.NewServer(api.Deps{
		Extractor:  interviews.NewExtractor(client, st, newNotifier(ctx, cfg)),
		Resolver:   session.NewResolver(st),
		Store:      st,
		Feedback:   feedback.NewGenerator(client, st, opts...),
		Reconciler: reconciler,
	})

	httpServer := &http.Server{
		Addr:              cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting voice interview agent", "addr", cfg.Port, "llm_backend", cfg.LLMBackend)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		log.Info("using postgres store")
		return pg, nil
	}

	mem := store.NewMemory()
	if cfg.SeedFile != "" {
		if err := mem.ImportFile(cfg.SeedFile); err != nil {
			return nil, fmt.Errorf("failed to seed memory store: %w", err)
		}
		log.Info("seeded memory store", "file", cfg.SeedFile)
	}
	log.Warn("using in-memory store; data is lost on restart")
	return mem, nil
}

func newNotifier(ctx context.Context, cfg *config.Config) notify.Notifier {
	if cfg.GmailCredentialsPath == "" {
		return notify.LogNotifier{}
	}
	sender, err := notify.NewGmailSender(ctx, cfg.GmailCredentialsPath, cfg.GmailTokenPath, cfg.GmailSender, cfg.AppURL)
	if err != nil {
		log.Warn("gmail unavailable, session codes will only be logged", "error", err)
		return notify.LogNotifier{}
	}
	return sender
}
