package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"captionbot/agent/internal/api"
	"captionbot/agent/internal/config"
	"captionbot/agent/internal/launcher"
	"captionbot/agent/internal/runtime"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.LoadLauncher()

	// The exit callback fires from runtime goroutines, after svc is set.
	var svc *launcher.Service
	rt, closeRT, err := newRuntime(cfg, func(name string, code int, err error) {
		svc.HandleExit(name, code, err)
	})
	if err != nil {
		log.Fatalf("runtime: %v", err)
	}
	defer closeRT()

	svc = launcher.NewService(launcher.Config{
		Image:   cfg.Runtime.Image,
		PortMin: cfg.Runtime.PortMin,
		PortMax: cfg.Runtime.PortMax,
		BotEnv:  cfg.BotEnv(),
	}, rt, launcher.NewRegistry())

	h := api.NewHandlers(svc)
	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(api.NewRouter(h)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	idle := make(chan struct{})
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer close(idle)
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		// Stop running bots before draining HTTP
		svc.StopAll(ctx)
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("launcher starting on %s (runtime=%s)", addr, cfg.Runtime.Kind)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
	<-idle
}

func newRuntime(cfg config.Launcher, onExit runtime.ExitCallback) (runtime.Runtime, func(), error) {
	switch cfg.Runtime.Kind {
	case "docker":
		d, err := runtime.NewDocker(runtime.DockerOptions{
			Host:    cfg.Runtime.DockerHost,
			Network: cfg.Runtime.Network,
			HostIP:  cfg.Runtime.HostIP,
		}, onExit)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	case "local":
		return runtime.NewLocal(cfg.Runtime.BotCmd, onExit), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown runtime %q", cfg.Runtime.Kind)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
