package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"captionbot/agent/internal/automation/webdriver"
	"captionbot/agent/internal/botserver"
	"captionbot/agent/internal/captions"
	"captionbot/agent/internal/config"
	"captionbot/agent/internal/delivery"
	"captionbot/agent/internal/health"
	"captionbot/agent/internal/join"
	"captionbot/agent/internal/notifier"
	"captionbot/agent/internal/orchestrator"
	"captionbot/agent/internal/sink"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadBot()
	if cfg.MeetingURL == "" {
		log.Fatal("MEETING_URL is required")
	}
	if cfg.BotID == "" {
		cfg.BotID = uuid.NewString()
		log.Printf("BOT_ID not set; generated %s", cfg.BotID)
	}

	started := time.Now()
	sk, err := sink.Open(cfg.OutputDir, cfg.BotID, sink.ParseLevel(cfg.LogLevel), started, os.Stdout)
	if err != nil {
		log.Fatalf("open sink: %v", err)
	}
	logger := sk.Logger()
	logger.Info("bot starting", "meetingUrl", cfg.MeetingURL, "logFile", sk.LogPath())

	pool := delivery.NewStreamPool(nil)
	defer pool.Close()
	notify, err := notifier.New(cfg.NotifierURLs, delivery.NewHTTPClient(10*time.Second), pool, notifier.Options{
		Retries:   cfg.NotifierRetries,
		BaseDelay: cfg.NotifierBaseDelay,
		Secret:    cfg.NotifierSecret,
	}, logger)
	if err != nil {
		logger.Error("notifier setup failed", "error", err)
		_ = sk.Close()
		os.Exit(1)
	}
	logger.Info("notifier ready", "destinations", notify.Destinations())

	driver := webdriver.NewClient(cfg.WebDriverURL)
	orch := orchestrator.New(orchestrator.Config{
		BotID:      cfg.BotID,
		MeetingURL: cfg.MeetingURL,
		BotName:    cfg.BotName,
		LobbyWait:  cfg.LobbyWait,
		AdmitWait:  cfg.AdmitWait,
		Captions: captions.Config{
			PollInterval: cfg.CaptionPoll,
			StablePolls:  cfg.StablePolls,
		},
	}, orchestrator.Deps{
		Browser:  driver.Factory(webdriver.Options{Headless: cfg.Headless}),
		Resolver: join.NewHTTPResolver(15 * time.Second),
		Notifier: notify,
		Sink:     sk,
		Logger:   logger,
	})

	bs := botserver.New(health.WebDriverCheck(cfg.WebDriverURL))
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           bs.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()
	bs.Attach(orch)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	launched := make(chan error, 1)
	go func() { launched <- orch.Launch(ctx) }()

	var launchErr error
	select {
	case launchErr = <-launched:
		if err := launchErr; err != nil {
			logger.Error("launch failed", "error", err, "subCode", join.SubCode(err))
		} else {
			// Capture continues until we are told to stop.
			<-ctx.Done()
		}
	case <-ctx.Done():
		launchErr = <-launched
	}
	logger.Info("shutting down", "status", orch.Status())

	sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	if err := orch.Shutdown(sctx); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
	if launchErr != nil && !errors.Is(launchErr, context.Canceled) {
		os.Exit(1)
	}
}
