package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"captionbot/agent/internal/sinkserver"
)

func main() {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("port", 8090)
	v.SetDefault("skew_secs", 300)
	v.BindEnv("port", "SINK_PORT")
	v.BindEnv("secret", "NOTIFIER_SECRET")
	v.BindEnv("skew_secs", "SINK_SKEW_SECS")

	srvImpl := sinkserver.NewServer(sinkserver.Config{
		Secret:   v.GetString("secret"),
		SkewSecs: v.GetInt("skew_secs"),
	}, sinkserver.NewRegistry())

	addr := ":" + v.GetString("port")
	srv := &http.Server{
		Addr:              addr,
		Handler:           srvImpl.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("sink listening on %s (webhook /wh/bot, stream /ws)", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}
