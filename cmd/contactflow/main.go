package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/mariusgr/contactflow"
	"github.com/mariusgr/contactflow/internal/config"
	"github.com/mariusgr/contactflow/internal/httpapi"
	"github.com/mariusgr/contactflow/pkg/notify"
	"github.com/mariusgr/contactflow/pkg/worker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("contactflow v0.1.0")
	fmt.Println("Usage: contactflow serve")
}

func serve() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", "file:"+cfg.Database.Path+"?_journal=WAL")
	if err != nil {
		slog.Error("database error", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	bundle, err := contactflow.NewSQLiteBundleWithOptions(db, worker.Config{
		MaxDeliveries: cfg.Workers.MaxDeliveries,
		RetryDelay:    time.Duration(cfg.Workers.RetryDelaySeconds) * time.Second,
	}, contactflow.NewLoggingObserver(slog.Default()), engineOptions(cfg.Engine))
	if err != nil {
		slog.Error("engine error", "err", err)
		os.Exit(1)
	}

	chat := &notify.SlackWebhookSender{
		WebhookURL: cfg.Notify.Slack.WebhookURL,
		Channel:    cfg.Notify.Slack.Channel,
	}
	email := emailSender(cfg.Notify.Email)

	contactflow.ContactWorkflow(chat, email).MustRegister(bundle.Engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Close out runs left RUNNING by a previous crash before taking work.
	recovered, err := contactflow.RecoverStuckRuns(ctx, bundle.Engine)
	if err != nil {
		slog.Error("recovery error", "err", err)
		os.Exit(1)
	}
	if recovered > 0 {
		slog.Info("recovered stuck runs", "count", recovered)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers.Count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := bundle.Worker.ProcessOne(ctx); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					slog.Error("worker error", "err", err)
				}
			}
		}()
	}

	srv := httpapi.NewServer(bundle.Engine, bundle.Worker, contactflow.WorkflowContactSubmission)
	srv.AllowedOrigins = cfg.Server.AllowedOrigins

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting contactflow server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
}

// engineOptions maps the engine section of the config file onto engine
// tuning: the default step retry policy and the run timeout.
func engineOptions(cfg config.EngineConfig) contactflow.EngineOptions {
	retry := contactflow.Retry(cfg.MaxAttempts).
		WithExponentialBackoff(
			time.Duration(cfg.InitialBackoffMs)*time.Millisecond,
			2.0,
			time.Duration(cfg.MaxBackoffMs)*time.Millisecond,
		).
		Policy()

	return contactflow.EngineOptions{
		DefaultRetry: &retry,
		RunTimeout:   time.Duration(cfg.RunTimeoutSeconds) * time.Second,
	}
}

func emailSender(cfg config.EmailConfig) notify.Sender {
	if cfg.Transport == "smtp" {
		return &notify.SMTPSender{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.From,
			To:       cfg.To,
			Subject:  cfg.Subject,
		}
	}
	return &notify.EmailAPISender{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		From:     cfg.From,
		To:       cfg.To,
		Subject:  cfg.Subject,
	}
}
